package repository

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"fragrank/internal/domain/model"
	"fragrank/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Each scope holds a treap ordered so that in-order traversal yields
// the leaderboard: rating DESC, then player ASC (deterministic).
// Subtree sizes give O(log n) rank queries.

// ratingScale controls fixed-point scaling from float64. Ratings live
// in the low thousands, so 9 decimal places fit comfortably in int64.
const ratingScale = 1_000_000_000

type ratingFP int64

func toFixedPoint(x float64) ratingFP {
	if math.IsNaN(x) {
		return 0
	}
	return ratingFP(math.Round(x * ratingScale))
}

// treap node
type node struct {
	player string
	score  ratingFP
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aScore, aPlayer) ranks earlier than
// (bScore, bPlayer) on the leaderboard.
func less(aScore ratingFP, aPlayer string, bScore ratingFP, bPlayer string) bool {
	if aScore != bScore {
		return aScore > bScore // higher rating ranks earlier
	}
	return aPlayer < bPlayer // tie-breaker by name asc
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

// scoreToPriority keeps higher ratings near the root, which makes
// top-N traversals touch fewer nodes.
func scoreToPriority(score ratingFP) uint64 {
	const offset = uint64(1) << 63
	return uint64(score) + offset
}

func insert(n *node, player string, score ratingFP) *node {
	if n == nil {
		return &node{player: player, score: score, prio: scoreToPriority(score), size: 1}
	}
	if less(score, player, n.score, n.player) {
		n.left = insert(n.left, player, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, player, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, player string, score ratingFP) *node {
	if n == nil {
		return nil
	}
	if score == n.score && player == n.player {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, player, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, player, score)
		}
	} else if less(score, player, n.score, n.player) {
		n.left = deleteNode(n.left, player, score)
	} else {
		n.right = deleteNode(n.right, player, score)
	}
	fix(n)
	return n
}

// countGreater returns the number of players with a strictly higher
// rating than score. Tied players share a rank, so a player's rank is
// countGreater+1.
func countGreater(n *node, score ratingFP) int {
	count := 0
	for n != nil {
		if n.score > score {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit players in leaderboard order.
func collectTopN(n *node, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.player)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// scopeState is the per-scope slice of the store.
type scopeState struct {
	root    *node
	states  map[string]model.RatingState
	matches []model.MatchEvent
	audits  []model.AuditEntry
	wins    map[string]int
	losses  map[string]int
}

func newScopeState() *scopeState {
	return &scopeState{
		states: make(map[string]model.RatingState),
		wins:   make(map[string]int),
		losses: make(map[string]int),
	}
}

// MemoryStore implements Store in process memory. It backs tests and
// deployments without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[int64]*scopeState
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[int64]*scopeState)}
}

// scope returns the scope slice, creating it on first touch.
// Caller must hold the write lock.
func (s *MemoryStore) scope(id int64) *scopeState {
	sc, ok := s.scopes[id]
	if !ok {
		sc = newScopeState()
		s.scopes[id] = sc
	}
	return sc
}

func (s *MemoryStore) Rating(ctx context.Context, scope int64, player string) (model.RatingState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[scope]
	if !ok {
		return model.RatingState{}, false, nil
	}
	st, ok := sc.states[player]
	return st, ok, nil
}

func (s *MemoryStore) PutRating(ctx context.Context, scope int64, player string, st model.RatingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(s.scope(scope), player, st)
	return nil
}

func (s *MemoryStore) PutRatings(ctx context.Context, scope int64, states map[string]model.RatingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scope(scope)
	for player, st := range states {
		s.putLocked(sc, player, st)
	}
	return nil
}

func (s *MemoryStore) putLocked(sc *scopeState, player string, st model.RatingState) {
	if old, ok := sc.states[player]; ok {
		sc.root = deleteNode(sc.root, player, toFixedPoint(old.Rating))
	}
	sc.states[player] = st
	sc.root = insert(sc.root, player, toFixedPoint(st.Rating))
}

func (s *MemoryStore) ResetRatings(ctx context.Context, scope int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scopes[scope]
	if !ok {
		return nil
	}
	sc.root = nil
	sc.states = make(map[string]model.RatingState)
	return nil
}

func (s *MemoryStore) AppendMatch(ctx context.Context, ev model.MatchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scope(ev.Scope)
	sc.matches = append(sc.matches, ev)
	sc.wins[ev.Winner]++
	sc.losses[ev.Loser]++
	return nil
}

func (s *MemoryStore) Matches(ctx context.Context, scope int64) ([]model.MatchEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[scope]
	if !ok {
		return nil, nil
	}
	out := make([]model.MatchEvent, len(sc.matches))
	copy(out, sc.matches)
	// Appends happen in timestamp order in normal operation, but
	// backfilled history may not; a stable sort preserves insertion
	// order within equal timestamps.
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out, nil
}

func (s *MemoryStore) LastMatchTS(ctx context.Context, scope int64) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[scope]
	if !ok || len(sc.matches) == 0 {
		return time.Time{}, false, nil
	}
	last := sc.matches[0].TS
	for _, m := range sc.matches[1:] {
		if m.TS.After(last) {
			last = m.TS
		}
	}
	return last, true, nil
}

func (s *MemoryStore) LastActivity(ctx context.Context, scope int64) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[scope]
	if !ok {
		return time.Time{}, false, nil
	}
	var last time.Time
	found := false
	for _, st := range sc.states {
		if st.LastActivity != nil && (!found || st.LastActivity.After(last)) {
			last = *st.LastActivity
			found = true
		}
	}
	return last, found, nil
}

func (s *MemoryStore) TopN(ctx context.Context, scope int64, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[scope]
	if !ok {
		return nil, nil
	}

	players := make([]string, 0, n)
	collectTopN(sc.root, n, &players)

	out := make([]Entry, 0, len(players))
	for _, p := range players {
		out = append(out, s.entryLocked(sc, p))
	}
	return out, nil
}

func (s *MemoryStore) RankOf(ctx context.Context, scope int64, player string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[scope]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if _, ok := sc.states[player]; !ok {
		return Entry{}, ErrNotFound
	}
	return s.entryLocked(sc, player), nil
}

// entryLocked assembles a leaderboard row. Tied ratings share a rank.
func (s *MemoryStore) entryLocked(sc *scopeState, player string) Entry {
	st := sc.states[player]
	return Entry{
		Rank:      countGreater(sc.root, toFixedPoint(st.Rating)) + 1,
		Player:    player,
		Rating:    st.Rating,
		Deviation: st.Deviation,
		Wins:      sc.wins[player],
		Losses:    sc.losses[player],
	}
}

func (s *MemoryStore) Count(ctx context.Context, scope int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[scope]
	if !ok {
		return 0
	}
	return len(sc.states)
}

func (s *MemoryStore) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scope(e.Scope)
	sc.audits = append(sc.audits, e)
	return nil
}

func (s *MemoryStore) Audits(ctx context.Context, scope int64, player string, limit int) ([]model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[scope]
	if !ok {
		return nil, nil
	}
	out := make([]model.AuditEntry, 0, limit)
	for i := len(sc.audits) - 1; i >= 0 && len(out) < limit; i-- {
		if sc.audits[i].Player == player {
			out = append(out, sc.audits[i])
		}
	}
	return out, nil
}
