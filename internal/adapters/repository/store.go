// Package repository defines the rating store interface and errors.
package repository

import (
	"context"
	"time"

	"fragrank/internal/domain/model"
	"fragrank/internal/domain/types"
)

// Entry represents a leaderboard row.
type Entry = types.Entry

// Store provides read/write access to rating state, the append-only
// match log, and the manual-adjustment audit log. All methods are
// scope-partitioned; scopes never interact.
type Store interface {
	// Rating returns the stored state for (scope, player). The second
	// return is false when the player has no state in the scope.
	Rating(ctx context.Context, scope int64, player string) (model.RatingState, bool, error)

	// PutRating upserts the state for (scope, player).
	PutRating(ctx context.Context, scope int64, player string, st model.RatingState) error

	// PutRatings upserts a batch of states, used by rebuilds.
	PutRatings(ctx context.Context, scope int64, states map[string]model.RatingState) error

	// ResetRatings discards all rating states in a scope. The match
	// log is untouched.
	ResetRatings(ctx context.Context, scope int64) error

	// AppendMatch durably records a match event and updates the
	// winner/loser frag counters.
	AppendMatch(ctx context.Context, ev model.MatchEvent) error

	// Matches returns a scope's full match log ascending by timestamp,
	// ties in insertion order.
	Matches(ctx context.Context, scope int64) ([]model.MatchEvent, error)

	// LastMatchTS returns the newest match timestamp in a scope, or
	// false when the scope has no matches.
	LastMatchTS(ctx context.Context, scope int64) (time.Time, bool, error)

	// LastActivity returns the newest last-activity timestamp across
	// the scope's rating states, or false when none carries one.
	LastActivity(ctx context.Context, scope int64) (time.Time, bool, error)

	// TopN returns up to n leaderboard entries ordered by rating desc,
	// player asc.
	TopN(ctx context.Context, scope int64, n int) ([]Entry, error)

	// RankOf returns the rank entry for one player.
	// Returns ErrNotFound if the player has no rating in the scope.
	RankOf(ctx context.Context, scope int64, player string) (Entry, error)

	// Count returns the number of players with a rating in the scope.
	Count(ctx context.Context, scope int64) int

	// AppendAudit records a manual adjustment.
	AppendAudit(ctx context.Context, e model.AuditEntry) error

	// Audits returns up to limit audit entries for (scope, player),
	// newest first.
	Audits(ctx context.Context, scope int64, player string, limit int) ([]model.AuditEntry, error)
}
