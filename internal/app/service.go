// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"sync"
	"time"

	eventqueue "fragrank/internal/adapters/mq/queue"
	workerpool "fragrank/internal/adapters/mq/worker"
	"fragrank/internal/adapters/repository"
	"fragrank/internal/domain/dedupe"
	"fragrank/internal/domain/model"
	"fragrank/internal/domain/streak"
	"fragrank/internal/domain/types"
	"fragrank/internal/pipeline"
	"fragrank/pkg/logger"
	"fragrank/pkg/metrics"
)

// Service wires the rating pipeline, queue, workers, dedupe cache and
// streak tracker into one lifecycle and implements api.Dependencies.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	pipe       *pipeline.Pipeline
	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	streaks    *streak.Tracker
	workerPool *workerpool.Pool

	// Configuration
	workerCount   int
	queueSize     int
	dedupeSize    int
	streakTimeout time.Duration
	defaultScope  int64

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithStreakTimeout sets the rapid-kill chaining window.
func WithStreakTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.streakTimeout = d
		}
	}
}

// WithDefaultScope sets the scope used when events omit one.
func WithDefaultScope(scope int64) Option {
	return func(s *Service) {
		s.defaultScope = scope
	}
}

// WithStore sets a custom rating store, e.g. the Postgres one.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   1,
		queueSize:     65536,
		dedupeSize:    50000,
		streakTimeout: streak.DefaultTimeout,
		defaultScope:  0,
		logger:        nil, // replaced on Start when unset
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
//
// A single worker is the default on purpose: in-order processing keeps
// the incremental ratings identical to what a rebuild would produce.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting rating service")

	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}
	s.pipe = pipeline.New(s.store, pipeline.WithLogger(s.logger.Named("pipeline")))
	s.deduper = dedupe.NewInMemory(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
	s.streaks = streak.New(
		streak.WithTimeout(s.streakTimeout),
	)

	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.pipe, s.streaks)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "rating service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Int64("default_scope", s.defaultScope),
	)

	return nil
}

// Stop gracefully shuts down the service, draining the queue first.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(ctx, "stopping rating service")

	if s.workerPool != nil {
		_ = s.workerPool.Shutdown(ctx)
	}

	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	s.started = false
	s.logger.Info(ctx, "rating service stopped")
}

// SeenAndRecord atomically checks if an event id was seen and records
// it if not. Returns true if the event was already seen.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	return s.deduper.SeenAndRecord(ctx, id)
}

// Unrecord removes an event id from the seen list, allowing a retry.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue submits a kill event for asynchronous processing.
func (s *Service) Enqueue(ctx context.Context, e model.KillEvent) bool {
	ok := s.eventQueue.Enqueue(ctx, e)
	if !ok {
		s.logger.Warn(ctx, "queue rejected event",
			logger.String("event_id", e.EventID),
			logger.Int64("scope", e.Scope),
		)
	}
	return ok
}

// Rating reads a single player's current state.
func (s *Service) Rating(ctx context.Context, scope int64, player string) (model.RatingState, error) {
	return s.pipe.Rating(ctx, scope, player)
}

// TopN returns the top N leaderboard entries for a scope.
func (s *Service) TopN(ctx context.Context, scope int64, n int) ([]types.Entry, error) {
	return s.store.TopN(ctx, scope, n)
}

// RankOf returns the rank entry for one player.
func (s *Service) RankOf(ctx context.Context, scope int64, player string) (types.Entry, error) {
	return s.store.RankOf(ctx, scope, player)
}

// Streaks reads the live streak snapshot for a player.
func (s *Service) Streaks(ctx context.Context, scope int64, player string) streak.Snapshot {
	return s.streaks.Current(ctx, scope, player)
}

// Audits lists manual adjustments for a player, newest first.
func (s *Service) Audits(ctx context.Context, scope int64, player string, limit int) ([]model.AuditEntry, error) {
	return s.store.Audits(ctx, scope, player, limit)
}

// Adjust applies a manual rating correction.
func (s *Service) Adjust(ctx context.Context, scope int64, player string, adj pipeline.Adjustment, reason string) (model.AuditEntry, error) {
	return s.pipe.AdjustRating(ctx, scope, player, adj, reason)
}

// Rebuild replays a scope's match log from scratch.
func (s *Service) Rebuild(ctx context.Context, scope int64) (pipeline.RebuildResult, error) {
	return s.pipe.RebuildScope(ctx, scope)
}

// DefaultScope is used when a request omits the scope.
func (s *Service) DefaultScope() int64 {
	return s.defaultScope
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":       s.started,
		"worker_count":  s.workerCount,
		"queue_size":    s.queueSize,
		"dedupe_size":   s.dedupeSize,
		"default_scope": s.defaultScope,
	}

	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		players := s.store.Count(ctx, s.defaultScope)

		stats["queue_length"] = queueLen
		stats["tracked_players"] = players
		stats["dedupe_entries"] = s.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateTrackedPlayers(players)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
