package storage

import (
	"context"
	"sort"
	"sync"

	"redsim/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	checkpoints map[int]model.Checkpoint
	best        *model.Checkpoint
	history     map[string][]float64
	summaries   map[string][]model.EpisodeSummary
	engagements map[string][]model.EngagementRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.checkpoints = make(map[int]model.Checkpoint)
	s.best = nil
	s.history = make(map[string][]float64)
	s.summaries = make(map[string][]model.EpisodeSummary)
	s.engagements = make(map[string][]model.EngagementRecord)
	return nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, cp model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[cp.Episode] = cp
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, episode int) (model.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[episode]
	return cp, ok, nil
}

func (s *MemoryStore) ListCheckpointEpisodes(_ context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	episodes := make([]int, 0, len(s.checkpoints))
	for episode := range s.checkpoints {
		episodes = append(episodes, episode)
	}
	sort.Ints(episodes)
	return episodes, nil
}

func (s *MemoryStore) SaveBestCheckpoint(_ context.Context, cp model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.best = &cp
	return nil
}

func (s *MemoryStore) GetBestCheckpoint(_ context.Context) (model.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.best == nil {
		return model.Checkpoint{}, false, nil
	}
	return *s.best, true, nil
}

func (s *MemoryStore) SaveRewardHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := append([]float64(nil), history...)
	s.history[runID] = copied
	return nil
}

func (s *MemoryStore) GetRewardHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	copied := append([]float64(nil), history...)
	return copied, true, nil
}

func (s *MemoryStore) SaveEpisodeSummaries(_ context.Context, runID string, summaries []model.EpisodeSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.EpisodeSummary, len(summaries))
	copy(copied, summaries)
	s.summaries[runID] = copied
	return nil
}

func (s *MemoryStore) GetEpisodeSummaries(_ context.Context, runID string) ([]model.EpisodeSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries, ok := s.summaries[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.EpisodeSummary, len(summaries))
	copy(copied, summaries)
	return copied, true, nil
}

func (s *MemoryStore) SaveEngagements(_ context.Context, runID string, engagements []model.EngagementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.EngagementRecord, 0, len(engagements))
	for _, engagement := range engagements {
		engagement.Trace = append([]model.ActionRecord(nil), engagement.Trace...)
		copied = append(copied, engagement)
	}
	s.engagements[runID] = copied
	return nil
}

func (s *MemoryStore) GetEngagements(_ context.Context, runID string) ([]model.EngagementRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	engagements, ok := s.engagements[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.EngagementRecord, 0, len(engagements))
	for _, engagement := range engagements {
		engagement.Trace = append([]model.ActionRecord(nil), engagement.Trace...)
		copied = append(copied, engagement)
	}
	return copied, true, nil
}
