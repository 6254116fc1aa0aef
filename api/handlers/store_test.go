package handlers

import (
	"context"
	"sort"
	"sync"

	"github.com/parth1006/workflow-engine/engine"
	"github.com/parth1006/workflow-engine/storage"
)

// memStore is an in-memory storage.Store for handler tests.
type memStore struct {
	mu     sync.Mutex
	graphs map[string]*engine.GraphDefinition
	runs   map[string]*engine.Run

	// failWith, when set, is returned by every method.
	failWith error
}

func newMemStore() *memStore {
	return &memStore{
		graphs: make(map[string]*engine.GraphDefinition),
		runs:   make(map[string]*engine.Run),
	}
}

func (s *memStore) SaveGraph(ctx context.Context, graph *engine.GraphDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.graphs[graph.ID] = graph
	return nil
}

func (s *memStore) GetGraph(ctx context.Context, graphID string) (*engine.GraphDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	g, ok := s.graphs[graphID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return g, nil
}

func (s *memStore) ListGraphs(ctx context.Context) ([]*engine.GraphDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := make([]*engine.GraphDefinition, 0, len(s.graphs))
	for _, g := range s.graphs {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) DeleteGraph(ctx context.Context, graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.graphs[graphID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.graphs, graphID)
	return nil
}

func (s *memStore) SaveRun(ctx context.Context, run *engine.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.runs[run.RunID] = run
	return nil
}

func (s *memStore) UpdateRun(ctx context.Context, run *engine.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.runs[run.RunID]; !ok {
		return storage.ErrNotFound
	}
	s.runs[run.RunID] = run
	return nil
}

func (s *memStore) GetRun(ctx context.Context, runID string) (*engine.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	run, ok := s.runs[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return run, nil
}

func (s *memStore) ListRuns(ctx context.Context, graphID string, limit int) ([]*engine.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	out := make([]*engine.Run, 0)
	for _, run := range s.runs {
		if run.GraphID == graphID {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) Ping(ctx context.Context) error { return s.failWith }

func (s *memStore) Close() error { return nil }

func (s *memStore) deleteRun(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}
