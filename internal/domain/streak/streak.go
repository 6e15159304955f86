// Package streak tracks kill streaks and deathless streaks per player.
//
// Two counters are kept per (scope, player):
//
//   - rapid: consecutive kills within a timeout window of each other
//     ("double kill", "triple kill", ...). The window resets the
//     counter to 1 when it expires.
//   - deathless: kills since the player's last death, with no time
//     limit. Dying resets it to zero.
//
// The tracker is an explicit TTL cache; there is no module-level
// state, and expiry is evaluated lazily against an injectable clock.
package streak

import (
	"context"
	"sync"
	"time"
)

// Kind distinguishes milestone families.
type Kind string

const (
	KindRapid     Kind = "rapid"
	KindDeathless Kind = "deathless"
)

// Milestone is a streak tier worth announcing. The integration layer
// decides how (or whether) to render it.
type Milestone struct {
	Kind  Kind
	Count int
	Title string
}

// Announcement tiers, per the classic style.
var (
	rapidTitles = map[int]string{
		2: "Double Kill",
		3: "Triple Kill",
		4: "Ultra Kill",
		5: "Rampage",
	}
	deathlessTitles = map[int]string{
		3:  "Killing Spree",
		5:  "Unstoppable",
		7:  "Dominating",
		10: "Godlike",
	}
)

// Result summarizes the killer's streaks after one kill.
type Result struct {
	Rapid      int
	Deathless  int
	Milestones []Milestone
}

// Snapshot is a read-only view of one player's current streaks.
type Snapshot struct {
	Rapid     int       `json:"rapid"`
	Deathless int       `json:"deathless"`
	LastKill  time.Time `json:"last_kill"`
}

type key struct {
	scope  int64
	player string
}

type entry struct {
	rapid     int
	deathless int
	lastKill  time.Time
}

// Tracker maintains streak state keyed by (scope, player).
type Tracker struct {
	mu      sync.Mutex
	entries map[key]*entry
	timeout time.Duration
	now     func() time.Time
}

// DefaultTimeout is the rapid-kill chain window.
const DefaultTimeout = 15 * time.Second

// New creates a streak tracker with configuration options.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		entries: make(map[key]*entry),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Kill records one kill and returns the killer's updated streaks with
// any milestones crossed. The victim's streaks reset.
func (t *Tracker) Kill(ctx context.Context, scope int64, winner, loser string, ts time.Time) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ts.IsZero() {
		ts = t.now()
	}

	delete(t.entries, key{scope: scope, player: loser})

	k := key{scope: scope, player: winner}
	e, ok := t.entries[k]
	if !ok {
		e = &entry{}
		t.entries[k] = e
	}

	if e.rapid > 0 && ts.Sub(e.lastKill) <= t.timeout {
		e.rapid++
	} else {
		e.rapid = 1
	}
	e.deathless++
	e.lastKill = ts

	res := Result{Rapid: e.rapid, Deathless: e.deathless}
	if title, ok := rapidTitles[e.rapid]; ok {
		res.Milestones = append(res.Milestones, Milestone{Kind: KindRapid, Count: e.rapid, Title: title})
	}
	if title, ok := deathlessTitles[e.deathless]; ok {
		res.Milestones = append(res.Milestones, Milestone{Kind: KindDeathless, Count: e.deathless, Title: title})
	}
	return res
}

// Current returns the player's streak snapshot. An expired rapid chain
// reads as zero; the deathless count is unaffected by time.
func (t *Tracker) Current(ctx context.Context, scope int64, player string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key{scope: scope, player: player}]
	if !ok {
		return Snapshot{}
	}
	s := Snapshot{Rapid: e.rapid, Deathless: e.deathless, LastKill: e.lastKill}
	if t.now().Sub(e.lastKill) > t.timeout {
		s.Rapid = 0
	}
	return s
}

// Reset clears all streaks, e.g. on service restart or scope rebuild.
func (t *Tracker) Reset(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[key]*entry)
}
