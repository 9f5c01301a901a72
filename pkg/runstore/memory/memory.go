// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/leseb/websearch-gw/pkg/runstore"
)

func init() {
	runstore.Providers.Register("memory", func(_ context.Context, params map[string]string) (runstore.Store, error) {
		maxRuns := 0
		if v := params["max_runs"]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("memory run store: invalid max_runs %q", v)
			}
			maxRuns = n
		}
		return New(maxRuns), nil
	})
}

// compile-time check
var _ runstore.Store = (*Store)(nil)

// Store is an in-memory run store. When full, the oldest run is evicted.
type Store struct {
	mu      sync.RWMutex
	maxRuns int // 0 means unbounded
	runs    map[string]*runstore.Run
	order   []string // insertion order, oldest first
}

// New creates a new in-memory store holding at most maxRuns runs.
func New(maxRuns int) *Store {
	return &Store{
		maxRuns: maxRuns,
		runs:    make(map[string]*runstore.Run),
	}
}

// SaveRun stores a copy of run
func (s *Store) SaveRun(_ context.Context, run *runstore.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run.Clone()

	for s.maxRuns > 0 && len(s.order) > s.maxRuns {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.runs, oldest)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(_ context.Context, runID string) (*runstore.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[runID]
	if !exists {
		return nil, fmt.Errorf("run %s: %w", runID, runstore.ErrRunNotFound)
	}
	return run.Clone(), nil
}

// ListRuns returns up to limit runs, most recently inserted first
func (s *Store) ListRuns(_ context.Context, limit int) ([]*runstore.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	runs := make([]*runstore.Run, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(runs) < n; i-- {
		runs = append(runs, s.runs[s.order[i]].Clone())
	}
	return runs, nil
}

// Close is a no-op for the in-memory store
func (s *Store) Close() error {
	return nil
}
