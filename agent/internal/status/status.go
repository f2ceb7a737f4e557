package status

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/obsidianstack/piggyback/agent/internal/cycle"
	"github.com/obsidianstack/piggyback/agent/internal/logging"
)

// Entry is a cycle result together with the time it was recorded.
type Entry struct {
	Result    cycle.Result
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory result store, keyed by hostname.
type Store struct {
	mu     sync.RWMutex
	data   map[string]*Entry
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		data:   make(map[string]*Entry),
		ttl:    ttl,
		logger: logging.Default(logger).With("component", "status"),
		now:    time.Now,
	}
}

// TTL returns the store's time-to-live.
func (s *Store) TTL() time.Duration { return s.ttl }

// Record stores the results of one cycle, replacing earlier entries of the
// same hosts. Callers must not modify the results afterwards.
func (s *Store) Record(results []cycle.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, res := range results {
		s.data[res.Hostname] = &Entry{Result: res, UpdatedAt: now}
	}
}

// Get returns the live entry for hostname.
func (s *Store) Get(hostname string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[hostname]
	if !ok || !s.live(e) {
		return nil, false
	}
	return e, true
}

// List returns all live entries ordered by hostname.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if s.live(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Entry) int {
		return strings.Compare(a.Result.Hostname, b.Result.Hostname)
	})
	return out
}

// Results returns the results of all live entries ordered by hostname.
func (s *Store) Results() []cycle.Result {
	entries := s.List()
	out := make([]cycle.Result, len(entries))
	for i, e := range entries {
		out[i] = e.Result
	}
	return out
}

func (s *Store) live(e *Entry) bool {
	return e.UpdatedAt.After(s.now().Add(-s.ttl))
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for host, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, host)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := max(s.ttl/2, time.Second)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				s.logger.Debug("status: evicted stale hosts", "count", n)
			}
		}
	}
}
