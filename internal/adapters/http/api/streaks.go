// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"

	"fragrank/internal/domain/streak"
)

// StreakDependencies defines the interface for streak reads.
type StreakDependencies interface {
	Streaks(ctx context.Context, scope int64, player string) streak.Snapshot
}

// StreaksHandler handles live streak requests.
type StreaksHandler struct {
	deps StreakDependencies
}

// NewStreaksHandler creates a new streaks handler.
func NewStreaksHandler(deps StreakDependencies) *StreaksHandler {
	return &StreaksHandler{deps: deps}
}

// HandleGetStreaks handles GET /streaks/{scope}/{player} requests.
func (h *StreaksHandler) HandleGetStreaks(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_streaks"
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w", op, err))
		return
	}
	player, err := playerParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w", op, err))
		return
	}

	writeJSON(w, http.StatusOK, h.deps.Streaks(r.Context(), scope, player))
}
