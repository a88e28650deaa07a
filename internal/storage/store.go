package storage

import (
	"context"

	"redsim/internal/model"
)

// Store defines transaction-like persistence operations for training artifacts.
type Store interface {
	Init(ctx context.Context) error
	SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error
	GetCheckpoint(ctx context.Context, episode int) (model.Checkpoint, bool, error)
	ListCheckpointEpisodes(ctx context.Context) ([]int, error)
	SaveBestCheckpoint(ctx context.Context, cp model.Checkpoint) error
	GetBestCheckpoint(ctx context.Context) (model.Checkpoint, bool, error)
	SaveRewardHistory(ctx context.Context, runID string, history []float64) error
	GetRewardHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveEpisodeSummaries(ctx context.Context, runID string, summaries []model.EpisodeSummary) error
	GetEpisodeSummaries(ctx context.Context, runID string) ([]model.EpisodeSummary, bool, error)
	SaveEngagements(ctx context.Context, runID string, engagements []model.EngagementRecord) error
	GetEngagements(ctx context.Context, runID string) ([]model.EngagementRecord, bool, error)
}
