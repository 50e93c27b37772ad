package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/edalens/internal/analysis"
	"github.com/KaramelBytes/edalens/internal/dataset"
)

// Session is one uploaded dataset. The table and its classes are computed
// once at upload time and only read afterwards.
type Session struct {
	ID       string
	Name     string
	Table    *dataset.Table
	Classes  analysis.Classes
	Created  time.Time
	lastSeen time.Time
}

// Store keeps loaded tables in memory, keyed by a random id. Entries idle for
// longer than the TTL are evicted by Sweep.
type Store struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]*Session
	now   func() time.Time
}

// NewStore returns an empty store. ttl <= 0 disables eviction.
func NewStore(ttl time.Duration) *Store {
	return &Store{ttl: ttl, items: make(map[string]*Session), now: time.Now}
}

// Put stores t and returns its session.
func (s *Store) Put(t *dataset.Table) *Session {
	now := s.now()
	sess := &Session{
		ID:       uuid.NewString(),
		Name:     t.Name,
		Table:    t,
		Classes:  analysis.Classify(t),
		Created:  now,
		lastSeen: now,
	}
	s.mu.Lock()
	s.items[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the session for id and marks it as used.
func (s *Store) Get(id string) (*Session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.items[id]
	if !ok {
		return nil, false
	}
	if s.expired(sess) {
		delete(s.items, id)
		return nil, false
	}
	sess.lastSeen = s.now()
	return sess, true
}

// Delete drops id. Unknown ids are ignored.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Len is the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Sweep evicts expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.items {
		if s.expired(sess) {
			delete(s.items, id)
			n++
		}
	}
	return n
}

func (s *Store) expired(sess *Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.lastSeen) > s.ttl
}

// Janitor calls Sweep every interval until ctx is done. onSweep, if set,
// receives the number of evicted sessions.
func (s *Store) Janitor(ctx context.Context, interval time.Duration, onSweep func(int)) {
	if interval <= 0 {
		interval = time.Minute
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if n := s.Sweep(); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}
