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

	"github.com/go-chi/chi/v5"

	"fragrank/internal/adapters/repository"
	"fragrank/internal/domain/dedupe"
	"fragrank/internal/domain/feed"
	"fragrank/internal/domain/model"
	"fragrank/internal/domain/streak"
	"fragrank/internal/domain/types"
	"fragrank/internal/pipeline"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue pushes a kill event for async processing. Returns false on
	// backpressure.
	Enqueue(ctx context.Context, e model.KillEvent) bool

	// Rating reads a single player's current state.
	Rating(ctx context.Context, scope int64, player string) (model.RatingState, error)

	// TopN and RankOf expose leaderboard data.
	TopN(ctx context.Context, scope int64, n int) ([]Entry, error)
	RankOf(ctx context.Context, scope int64, player string) (Entry, error)

	// Streaks reads the live streak snapshot for a player.
	Streaks(ctx context.Context, scope int64, player string) streak.Snapshot

	// Audits lists manual adjustments, newest first.
	Audits(ctx context.Context, scope int64, player string, limit int) ([]model.AuditEntry, error)

	// Adjust applies a manual rating correction.
	Adjust(ctx context.Context, scope int64, player string, adj pipeline.Adjustment, reason string) (model.AuditEntry, error)

	// Rebuild replays a scope's match log from scratch.
	Rebuild(ctx context.Context, scope int64) (pipeline.RebuildResult, error)

	// DefaultScope is used when a request omits the scope.
	DefaultScope() int64
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	ratingsHandler     *RatingsHandler
	leaderboardHandler *LeaderboardHandler
	streaksHandler     *StreaksHandler
	rebuildHandler     *RebuildHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLeaderboardLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		eventsHandler:      NewEventsHandler(deps),
		ratingsHandler:     NewRatingsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLeaderboardLimit),
		streaksHandler:     NewStreaksHandler(deps),
		rebuildHandler:     NewRebuildHandler(deps),
	}
}

// Router builds the chi router with all routes and metrics middleware.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/metrics", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Post("/events", s.eventsHandler.HandlePostEvent)

	r.Route("/ratings/{scope}/{player}", func(r chi.Router) {
		r.Get("/", s.ratingsHandler.HandleGetRating)
		r.Post("/adjust", s.ratingsHandler.HandleAdjustRating)
	})
	r.Get("/audit/{scope}/{player}", s.ratingsHandler.HandleGetAudit)

	r.Get("/leaderboard/{scope}", s.leaderboardHandler.HandleGetLeaderboard)
	r.Get("/streaks/{scope}/{player}", s.streaksHandler.HandleGetStreaks)
	r.Post("/rebuild/{scope}", s.rebuildHandler.HandleRebuild)

	return r
}

// eventRequest accepts either a raw kill-feed line or a structured pair.
type eventRequest struct {
	EventID string `json:"event_id,omitempty"`
	Scope   *int64 `json:"scope,omitempty"`
	Line    string `json:"line,omitempty"`
	Winner  string `json:"winner,omitempty"`
	Loser   string `json:"loser,omitempty"`
	TS      string `json:"ts,omitempty"`
}

// resolve validates the request and extracts the winner/loser pair.
func (e eventRequest) resolve() (winner, loser string, err error) {
	if strings.TrimSpace(e.Line) != "" {
		kill, ok := feed.Parse(e.Line)
		if !ok {
			return "", "", errors.New("line is not a kill event")
		}
		return kill.Winner, kill.Loser, nil
	}
	winner = feed.Normalize(e.Winner)
	loser = feed.Normalize(e.Loser)
	switch {
	case winner == "" || loser == "":
		return "", "", errors.New("missing winner or loser")
	case winner == loser:
		return "", "", errors.New("winner and loser must differ")
	}
	return winner, loser, nil
}

// timestamp parses the optional ts field, defaulting to now.
func (e eventRequest) timestamp() (time.Time, error) {
	if strings.TrimSpace(e.TS) == "" {
		return time.Now().UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, e.TS)
	if err != nil {
		return time.Time{}, errors.New("invalid ts; must be RFC3339")
	}
	return ts.UTC(), nil
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// scopeParam parses the {scope} path parameter.
func scopeParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "scope")
	scope, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid scope %q", ErrBadRequest, raw)
	}
	return scope, nil
}

// playerParam reads and normalizes the {player} path parameter.
func playerParam(r *http.Request) (string, error) {
	player := feed.Normalize(chi.URLParam(r, "player"))
	if player == "" {
		return "", fmt.Errorf("%w: missing player", ErrBadRequest)
	}
	return player, nil
}

// isNotFound translates repository not-found errors to 404 responses.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
