// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fragrank/internal/domain/model"
	"fragrank/internal/pipeline"
)

const defaultAuditLimit = 20

// RatingDependencies defines the interface for rating reads and corrections.
type RatingDependencies interface {
	Rating(ctx context.Context, scope int64, player string) (model.RatingState, error)
	Adjust(ctx context.Context, scope int64, player string, adj pipeline.Adjustment, reason string) (model.AuditEntry, error)
	Audits(ctx context.Context, scope int64, player string, limit int) ([]model.AuditEntry, error)
}

// RatingsHandler handles per-player rating requests.
type RatingsHandler struct {
	deps RatingDependencies
}

// NewRatingsHandler creates a new ratings handler.
func NewRatingsHandler(deps RatingDependencies) *RatingsHandler {
	return &RatingsHandler{deps: deps}
}

// ratingResponse is the read shape for a single player's state.
type ratingResponse struct {
	Player       string     `json:"player"`
	Scope        int64      `json:"scope"`
	Rating       float64    `json:"rating"`
	Deviation    float64    `json:"deviation"`
	Volatility   float64    `json:"volatility"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// HandleGetRating handles GET /ratings/{scope}/{player} requests.
//
// Unknown players read as the default state rather than 404; a player
// who has never fragged is simply unrated, not missing.
func (h *RatingsHandler) HandleGetRating(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rating"
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

	st, err := h.deps.Rating(r.Context(), scope, player)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("%s: %w", op, err))
		return
	}
	writeJSON(w, http.StatusOK, ratingResponse{
		Player:       player,
		Scope:        scope,
		Rating:       st.Rating,
		Deviation:    st.Deviation,
		Volatility:   st.Volatility,
		LastActivity: st.LastActivity,
	})
}

// adjustRequest is the write shape for POST /ratings/{scope}/{player}/adjust.
type adjustRequest struct {
	Rating     float64  `json:"rating"`
	Delta      bool     `json:"delta,omitempty"`
	Deviation  *float64 `json:"deviation,omitempty"`
	Volatility *float64 `json:"volatility,omitempty"`
	Reason     string   `json:"reason"`
}

func (a adjustRequest) validate() error {
	if strings.TrimSpace(a.Reason) == "" {
		return errors.New("missing reason")
	}
	return nil
}

// HandleAdjustRating handles POST /ratings/{scope}/{player}/adjust requests.
func (h *RatingsHandler) HandleAdjustRating(w http.ResponseWriter, r *http.Request) {
	const op = "api.adjust_rating"
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

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %w", op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %w", op, ErrBadRequest, err))
		return
	}

	adj := pipeline.Adjustment{
		Rating:     req.Rating,
		Delta:      req.Delta,
		Deviation:  req.Deviation,
		Volatility: req.Volatility,
	}
	entry, err := h.deps.Adjust(r.Context(), scope, player, adj, req.Reason)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("%s: %w", op, err))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleGetAudit handles GET /audit/{scope}/{player}?limit=N requests.
func (h *RatingsHandler) HandleGetAudit(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_audit"
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

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: invalid limit", op, ErrBadRequest))
			return
		}
		limit = n
	}

	entries, err := h.deps.Audits(r.Context(), scope, player, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("%s: %w", op, err))
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
