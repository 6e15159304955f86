package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fragrank/internal/domain/model"
)

//go:embed schema.sql
var schema embed.FS

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Rating(ctx context.Context, scope int64, player string) (model.RatingState, bool, error) {
	var st model.RatingState
	err := s.pool.QueryRow(ctx, `
		SELECT rating, deviation, volatility, last_activity
		  FROM ratings WHERE scope = $1 AND player = $2
	`, scope, player).Scan(&st.Rating, &st.Deviation, &st.Volatility, &st.LastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.RatingState{}, false, nil
	}
	if err != nil {
		return model.RatingState{}, false, fmt.Errorf("read rating: %w", err)
	}
	return st, true, nil
}

const upsertRatingSQL = `
	INSERT INTO ratings(scope, player, rating, deviation, volatility, last_activity)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (scope, player) DO UPDATE
	  SET rating = EXCLUDED.rating,
	      deviation = EXCLUDED.deviation,
	      volatility = EXCLUDED.volatility,
	      last_activity = EXCLUDED.last_activity
`

func (s *PostgresStore) PutRating(ctx context.Context, scope int64, player string, st model.RatingState) error {
	_, err := s.pool.Exec(ctx, upsertRatingSQL, scope, player, st.Rating, st.Deviation, st.Volatility, st.LastActivity)
	if err != nil {
		return fmt.Errorf("write rating: %w", err)
	}
	return nil
}

func (s *PostgresStore) PutRatings(ctx context.Context, scope int64, states map[string]model.RatingState) error {
	batch := &pgx.Batch{}
	for player, st := range states {
		batch.Queue(upsertRatingSQL, scope, player, st.Rating, st.Deviation, st.Volatility, st.LastActivity)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write ratings batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) ResetRatings(ctx context.Context, scope int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM ratings WHERE scope = $1`, scope); err != nil {
		return fmt.Errorf("reset ratings: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendMatch(ctx context.Context, ev model.MatchEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO matches(event_id, scope, winner, loser, ts)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.EventID, ev.Scope, ev.Winner, ev.Loser, ev.TS)
	if err != nil {
		return fmt.Errorf("append match: %w", err)
	}
	return nil
}

func (s *PostgresStore) Matches(ctx context.Context, scope int64) ([]model.MatchEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, scope, winner, loser, ts
		  FROM matches WHERE scope = $1
		 ORDER BY ts ASC, id ASC
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}
	defer rows.Close()

	var out []model.MatchEvent
	for rows.Next() {
		var ev model.MatchEvent
		if err := rows.Scan(&ev.EventID, &ev.Scope, &ev.Winner, &ev.Loser, &ev.TS); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) LastMatchTS(ctx context.Context, scope int64) (time.Time, bool, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx, `SELECT max(ts) FROM matches WHERE scope = $1`, scope).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read last match ts: %w", err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return *ts, true, nil
}

func (s *PostgresStore) LastActivity(ctx context.Context, scope int64) (time.Time, bool, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx, `SELECT max(last_activity) FROM ratings WHERE scope = $1`, scope).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read last activity: %w", err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return *ts, true, nil
}

func (s *PostgresStore) TopN(ctx context.Context, scope int64, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT r.player, r.rating, r.deviation,
		       RANK() OVER (ORDER BY r.rating DESC) AS rnk,
		       (SELECT COUNT(*) FROM matches m WHERE m.scope = r.scope AND m.winner = r.player) AS wins,
		       (SELECT COUNT(*) FROM matches m WHERE m.scope = r.scope AND m.loser = r.player) AS losses
		  FROM ratings r
		 WHERE r.scope = $1
		 ORDER BY r.rating DESC, r.player ASC
		 LIMIT $2
	`, scope, n)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Player, &e.Rating, &e.Deviation, &e.Rank, &e.Wins, &e.Losses); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RankOf(ctx context.Context, scope int64, player string) (Entry, error) {
	var e Entry
	err := s.pool.QueryRow(ctx, `
		WITH ranked AS (
			SELECT player, rating, deviation,
			       RANK() OVER (ORDER BY rating DESC) AS rnk
			  FROM ratings WHERE scope = $1
		)
		SELECT r.player, r.rating, r.deviation, r.rnk,
		       (SELECT COUNT(*) FROM matches m WHERE m.scope = $1 AND m.winner = r.player) AS wins,
		       (SELECT COUNT(*) FROM matches m WHERE m.scope = $1 AND m.loser = r.player) AS losses
		  FROM ranked r WHERE r.player = $2
	`, scope, player).Scan(&e.Player, &e.Rating, &e.Deviation, &e.Rank, &e.Wins, &e.Losses)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read rank: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) Count(ctx context.Context, scope int64) int {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ratings WHERE scope = $1`, scope).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (s *PostgresStore) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rating_audit(scope, player, old_rating, new_rating, reason, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.Scope, e.Player, e.OldRating, e.NewRating, e.Reason, e.TS)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Audits(ctx context.Context, scope int64, player string, limit int) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT scope, player, old_rating, new_rating, reason, ts
		  FROM rating_audit
		 WHERE scope = $1 AND player = $2
		 ORDER BY id DESC
		 LIMIT $3
	`, scope, player, limit)
	if err != nil {
		return nil, fmt.Errorf("load audit log: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.Scope, &e.Player, &e.OldRating, &e.NewRating, &e.Reason, &e.TS); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return out, nil
}
