// Package model contains domain models passed between layers.
package model

import "time"

// KillEvent is a raw kill-feed event as it enters the system.
// Winner and Loser are normalized (trimmed, lower-cased) player names.
type KillEvent struct {
	EventID string    // unique id for idempotency
	Scope   int64     // rating scope the kill belongs to
	Winner  string    // the killer
	Loser   string    // the victim
	TS      time.Time // event timestamp
}

// MatchEvent is the immutable historical fact a kill becomes once
// accepted: winner beat loser at TS within a scope. The ordered
// sequence of MatchEvents per scope is the sole source of truth for
// rating rebuilds.
type MatchEvent struct {
	EventID string
	Scope   int64
	Winner  string
	Loser   string
	TS      time.Time
}

// RatingState holds a player's skill estimate in one scope.
type RatingState struct {
	Rating       float64
	Deviation    float64
	Volatility   float64
	LastActivity *time.Time // nil until the player's first match
}

// AuditEntry records a manual rating adjustment.
type AuditEntry struct {
	Scope     int64
	Player    string
	OldRating float64
	NewRating float64
	Reason    string
	TS        time.Time
}
