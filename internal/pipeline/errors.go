package pipeline

import "errors"

// Sentinel kinds for pipeline errors.
var (
	// ErrInvalidMatch marks a malformed match (empty names, self-kill).
	ErrInvalidMatch = errors.New("invalid match")

	// ErrPersistence wraps storage failures. The match log and rating
	// states may have diverged; RebuildScope restores consistency.
	ErrPersistence = errors.New("persistence failure")
)
