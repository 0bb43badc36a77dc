// Package predict implements speculative precomputation: a bounded FIFO of
// plausible near-future contexts and a fingerprint-keyed store of decisions
// materialized for them during idle time.
//
// Predictions are best-effort, never required for correctness. The queue
// drops when full, the store evicts aggressively, and every error on the
// background path is swallowed and logged.
package predict

import (
	"sync"
	"time"

	"github.com/ashita-ai/sente/internal/model"
)

// damageDelta is the HP reduction assumed per predicted incoming hit.
const damageDelta = 10

// FollowUps derives the contexts judged likely to occur next: the same unit
// after taking one and two hits. At most two predictions per decision keeps
// the background load trivial.
func FollowUps(tc model.Context) []model.Context {
	var out []model.Context
	for _, delta := range []int{damageDelta, 2 * damageDelta} {
		if tc.HP-delta <= 0 {
			break
		}
		next := tc
		next.HP -= delta
		out = append(out, next)
	}
	return out
}

// Request is one queued precomputation: a unit, the predicted context, and
// its precomputed fingerprint.
type Request struct {
	UnitID      string
	Context     model.Context
	Fingerprint string
}

// Queue is a bounded FIFO of pending predictions. Push drops silently when
// full.
type Queue struct {
	mu    sync.Mutex
	items []Request
	cap   int
}

// NewQueue creates a queue holding at most capacity requests.
func NewQueue(capacity int) *Queue {
	return &Queue{cap: capacity}
}

// Push enqueues a request. Returns false if the queue is full and the
// request was dropped.
func (q *Queue) Push(r Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.cap {
		return false
	}
	q.items = append(q.items, r)
	return true
}

// Pop dequeues the oldest request.
func (q *Queue) Pop() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Request{}, false
	}
	r := q.items[0]
	q.items = q.items[1:]
	return r, true
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type storeEntry struct {
	decision   model.Decision
	insertedAt time.Time
}

// Store is the precompute store: fingerprint -> decision. Unlike the main
// cache its keys carry no unit id — the fingerprint already encodes the
// unit-relevant features, and keeping the schemes distinct is deliberate.
type Store struct {
	mu      sync.Mutex
	entries map[string]storeEntry
	cap     int
}

// NewStore creates a store capped at capacity entries.
func NewStore(capacity int) *Store {
	return &Store{entries: make(map[string]storeEntry), cap: capacity}
}

// Get returns the precomputed decision for a fingerprint, if any.
func (s *Store) Get(fingerprint string) (model.Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[fingerprint]
	return e.decision, ok
}

// Has reports whether a fingerprint is already materialized, so schedulers
// can skip redundant work without copying the decision.
func (s *Store) Has(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[fingerprint]
	return ok
}

// Put stores a decision. When the store grows past its cap the oldest half
// is evicted: precomputed entries are cheap to regenerate, so eviction
// aggressiveness only trades hit rate against CPU.
func (s *Store) Put(fingerprint string, d model.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fingerprint] = storeEntry{decision: d, insertedAt: time.Now()}
	if len(s.entries) > s.cap {
		s.evictOldestLocked(len(s.entries) / 2)
	}
}

// Prune evicts down to keep entries, oldest first. Used by the self-tuning
// loop when the store grows without a matching hit-rate benefit.
func (s *Store) Prune(keep int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.entries) - keep; n > 0 {
		s.evictOldestLocked(n)
	}
}

// evictOldestLocked removes the n oldest entries. Caller holds mu.
func (s *Store) evictOldestLocked(n int) {
	for ; n > 0; n-- {
		var oldestKey string
		var oldestAt time.Time
		first := true
		for k, e := range s.entries {
			if first || e.insertedAt.Before(oldestAt) {
				oldestKey, oldestAt, first = k, e.insertedAt, false
			}
		}
		if first {
			return
		}
		delete(s.entries, oldestKey)
	}
}

// Len returns the number of materialized entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear drops all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
}
