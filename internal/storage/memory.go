package storage

import (
	"context"
	"sort"
	"sync"

	"momenta/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	experiments map[string]model.ExperimentRecord
	moments     map[string]model.AggregatedMoments
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.experiments = make(map[string]model.ExperimentRecord)
	s.moments = make(map[string]model.AggregatedMoments)
	return nil
}

func (s *MemoryStore) SaveExperiment(_ context.Context, exp model.ExperimentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.experiments[exp.ID] = exp
	return nil
}

func (s *MemoryStore) GetExperiment(_ context.Context, id string) (model.ExperimentRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.experiments[id]
	return exp, ok, nil
}

func (s *MemoryStore) ListExperimentIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.experiments))
	for id := range s.experiments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) SaveMoments(_ context.Context, agg model.AggregatedMoments) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.moments[agg.RunID] = copyMoments(agg)
	return nil
}

func (s *MemoryStore) GetMoments(_ context.Context, runID string) (model.AggregatedMoments, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.moments[runID]
	if !ok {
		return model.AggregatedMoments{}, false, nil
	}
	return copyMoments(agg), true, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.experiments = make(map[string]model.ExperimentRecord)
	s.moments = make(map[string]model.AggregatedMoments)
	return nil
}

func copyMoments(agg model.AggregatedMoments) model.AggregatedMoments {
	copied := agg
	copied.Depths = append([]int(nil), agg.Depths...)
	copied.Stats = make(map[string][]model.DepthStat, len(agg.Stats))
	for name, stats := range agg.Stats {
		copied.Stats[name] = append([]model.DepthStat(nil), stats...)
	}
	return copied
}
