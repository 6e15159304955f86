// Package feed parses kill-feed text lines into kill facts.
//
// The game server reports kills as lines of the form
//
//	<victim> killed by <killer>
//
// Names are free text; they are trimmed and lower-cased because the
// historical match log stores lower-cased names.
package feed

import "strings"

const separator = " killed by "

// Kill is a parsed kill-feed line.
type Kill struct {
	Winner string // the killer
	Loser  string // the victim
}

// Parse extracts a kill from a feed line. It returns false for lines
// that are not kill reports; those are chat noise, not errors.
func Parse(line string) (Kill, bool) {
	victim, killer, found := strings.Cut(line, separator)
	if !found {
		return Kill{}, false
	}
	k := Kill{
		Winner: Normalize(killer),
		Loser:  Normalize(victim),
	}
	if k.Winner == "" || k.Loser == "" || k.Winner == k.Loser {
		return Kill{}, false
	}
	return k, true
}

// Normalize canonicalizes a player name the way the match log stores it.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
