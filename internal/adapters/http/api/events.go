// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"fragrank/internal/domain/dedupe"
	"fragrank/internal/domain/model"
	"fragrank/pkg/metrics"
)

// EventDependencies defines the interface for event ingestion.
type EventDependencies interface {
	dedupe.Deduper
	Enqueue(ctx context.Context, e model.KillEvent) bool
	DefaultScope() int64
}

// EventsHandler handles kill-event submissions.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /events requests.
//
// The body carries either a raw kill-feed line or a structured
// winner/loser pair. Lines that are not kill events are acknowledged
// and discarded rather than rejected, since a feed relay cannot filter
// chatter on its side.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %w", op, ErrBadRequest, err))
		return
	}

	winner, loser, err := req.resolve()
	if err != nil {
		if req.Line != "" {
			// Non-kill chatter from the feed: acknowledge and drop.
			metrics.RecordEventDiscarded()
			writeJSON(w, http.StatusOK, ackResponse{Status: "discarded"})
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %w", op, ErrBadRequest, err))
		return
	}

	ts, err := req.timestamp()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %w", op, ErrBadRequest, err))
		return
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	scope := h.deps.DefaultScope()
	if req.Scope != nil {
		scope = *req.Scope
	}

	// Idempotency check: mark as seen first.
	if h.deps.SeenAndRecord(r.Context(), eventID) {
		metrics.RecordEventDuplicate()
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: eventID, Duplicate: true})
		return
	}

	ev := model.KillEvent{
		EventID: eventID,
		Scope:   scope,
		Winner:  winner,
		Loser:   loser,
		TS:      ts,
	}
	if ok := h.deps.Enqueue(r.Context(), ev); !ok {
		// Roll back the seen mark so a retry is not treated as a duplicate.
		h.deps.Unrecord(r.Context(), eventID)
		writeError(w, http.StatusTooManyRequests, "backpressure", fmt.Errorf("%s: %w", op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: eventID})
}
