// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"

	"fragrank/internal/pipeline"
)

// RebuildDependencies defines the interface for rebuild operations.
type RebuildDependencies interface {
	Rebuild(ctx context.Context, scope int64) (pipeline.RebuildResult, error)
}

// RebuildHandler handles scope rebuild requests.
type RebuildHandler struct {
	deps RebuildDependencies
}

// NewRebuildHandler creates a new rebuild handler.
func NewRebuildHandler(deps RebuildDependencies) *RebuildHandler {
	return &RebuildHandler{deps: deps}
}

// HandleRebuild handles POST /rebuild/{scope} requests.
//
// The rebuild runs synchronously; the handler returns once every
// player in the scope has been recomputed from the match log.
func (h *RebuildHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	const op = "api.rebuild"
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w", op, err))
		return
	}

	result, err := h.deps.Rebuild(r.Context(), scope)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("%s: %w", op, err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}
