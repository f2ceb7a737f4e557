package piggyback

import (
	"context"
	"slices"
	"sync"

	"github.com/obsidianstack/piggyback/pkg/types"
)

// fakeStore serves canned records per origin and records every query.
type fakeStore struct {
	mu      sync.Mutex
	records map[string][]types.Record
	errs    map[string]error
	queries []string
	last    []types.TimeSetting
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[string][]types.Record),
		errs:    make(map[string]error),
	}
}

func (s *fakeStore) Query(_ context.Context, origin string, settings []types.TimeSetting) ([]types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, origin)
	s.last = settings
	if err := s.errs[origin]; err != nil {
		return nil, err
	}
	return slices.Clone(s.records[origin]), nil
}

// queried returns the queried origins, sorted, since the two origin queries
// may run concurrently.
func (s *fakeStore) queried() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.queries)
	slices.Sort(out)
	return out
}

func (s *fakeStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = nil
}

func rec(source, data string, ok bool, reason string, st types.State) types.Record {
	return types.Record{
		SourceHostname:        source,
		RawData:               []byte(data),
		SuccessfullyProcessed: ok,
		Reason:                reason,
		ReasonStatus:          st,
	}
}
