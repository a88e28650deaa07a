package train

import (
	"context"
	"errors"
	"testing"

	"redsim/internal/dqn"
	"redsim/internal/env"
	"redsim/internal/model"
	"redsim/internal/storage"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store := storage.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return store
}

func fastConfig(seed int64) Config {
	return Config{
		Episodes:        3,
		CheckpointEvery: 2,
		Seed:            seed,
		RunID:           "test-run",
		Env:             env.Config{MaxSteps: 5},
		Learner:         dqn.Config{BatchSize: 4, ReplayCapacity: 128},
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
	store := newTestStore(t)
	if _, err := New(Config{Episodes: -1}, store); err == nil {
		t.Fatal("expected error for negative episodes")
	}
	if _, err := New(Config{CheckpointEvery: -1}, store); err == nil {
		t.Fatal("expected error for negative checkpoint interval")
	}

	trainer, err := New(Config{}, store)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	if trainer.cfg.Episodes != DefaultEpisodes || trainer.cfg.CheckpointEvery != DefaultCheckpointEvery {
		t.Fatalf("defaults not applied: %+v", trainer.cfg)
	}
	if trainer.cfg.RunID != DefaultRunID {
		t.Fatalf("default run id not applied: %s", trainer.cfg.RunID)
	}
}

func TestRunPersistsHistoryAndCheckpoints(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var seen []int
	cfg := fastConfig(1)
	cfg.OnEpisode = func(summary model.EpisodeSummary) {
		seen = append(seen, summary.Episode)
	}

	trainer, err := New(cfg, store)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	result, err := trainer.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.EpisodesRun != 3 {
		t.Fatalf("episodes run: got %d want 3", result.EpisodesRun)
	}
	if len(result.History) != 3 {
		t.Fatalf("history length: got %d want 3", len(result.History))
	}
	if result.FinalEpsilon >= 1.0 {
		t.Fatalf("epsilon did not decay: %f", result.FinalEpsilon)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("unexpected episode callbacks: %+v", seen)
	}

	history, ok, err := store.GetRewardHistory(ctx, "test-run")
	if err != nil || !ok {
		t.Fatalf("reward history: ok=%t err=%v", ok, err)
	}
	if len(history) != 3 {
		t.Fatalf("persisted history length: got %d want 3", len(history))
	}

	summaries, ok, err := store.GetEpisodeSummaries(ctx, "test-run")
	if err != nil || !ok {
		t.Fatalf("episode summaries: ok=%t err=%v", ok, err)
	}
	if len(summaries) != 3 || summaries[0].SchemaVersion != storage.CurrentSchemaVersion {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}

	if _, ok, err := store.GetBestCheckpoint(ctx); err != nil || !ok {
		t.Fatalf("best checkpoint: ok=%t err=%v", ok, err)
	}
	episodes, err := store.ListCheckpointEpisodes(ctx)
	if err != nil {
		t.Fatalf("list checkpoints: %v", err)
	}
	if len(episodes) != 1 || episodes[0] != 2 {
		t.Fatalf("periodic checkpoints: got %+v want [2]", episodes)
	}
}

func TestRunResumeContinuesEpisodeNumbering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := New(fastConfig(2), store)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	if _, err := first.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}

	cfg := fastConfig(3)
	cfg.Resume = &ResumePoint{Episode: 2}
	var episodes []int
	cfg.OnEpisode = func(summary model.EpisodeSummary) {
		episodes = append(episodes, summary.Episode)
	}
	second, err := New(cfg, store)
	if err != nil {
		t.Fatalf("new resumed trainer: %v", err)
	}
	if _, err := second.Run(ctx); err != nil {
		t.Fatalf("resumed run: %v", err)
	}

	if len(episodes) != 3 || episodes[0] != 3 || episodes[2] != 5 {
		t.Fatalf("resumed episode numbering: got %+v want [3 4 5]", episodes)
	}

	history, ok, err := store.GetRewardHistory(ctx, "test-run")
	if err != nil || !ok {
		t.Fatalf("reward history: ok=%t err=%v", ok, err)
	}
	if len(history) != 6 {
		t.Fatalf("history should accumulate across runs: got %d want 6", len(history))
	}
}

func TestRunResumeFromEpisodeKeepsStoredBestCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	learner, err := dqn.NewLearner(dqn.Config{Seed: 7, BatchSize: 4, ReplayCapacity: 128})
	if err != nil {
		t.Fatalf("new learner: %v", err)
	}

	best := learner.Checkpoint(4, 10000)
	best.VersionedRecord = storage.Stamp()
	if err := store.SaveBestCheckpoint(ctx, best); err != nil {
		t.Fatalf("seed best checkpoint: %v", err)
	}
	periodic := learner.Checkpoint(2, -10000)
	periodic.VersionedRecord = storage.Stamp()
	if err := store.SaveCheckpoint(ctx, periodic); err != nil {
		t.Fatalf("seed periodic checkpoint: %v", err)
	}

	cfg := fastConfig(6)
	cfg.Resume = &ResumePoint{Episode: 2}
	trainer, err := New(cfg, store)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	result, err := trainer.Run(ctx)
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}

	// Every episode beats the resumed checkpoint's -10000, but none beats the
	// stored best; the best slot must survive untouched.
	got, ok, err := store.GetBestCheckpoint(ctx)
	if err != nil || !ok {
		t.Fatalf("best checkpoint: ok=%t err=%v", ok, err)
	}
	if got.Reward != 10000 || got.Episode != 4 {
		t.Fatalf("stored best checkpoint regressed: episode=%d reward=%f", got.Episode, got.Reward)
	}
	if result.BestReward != 10000 || result.BestEpisode != 4 {
		t.Fatalf("result best should report the stored best: %+v", result)
	}
}

func TestRunResumeFromMissingCheckpointFails(t *testing.T) {
	store := newTestStore(t)

	cfg := fastConfig(4)
	cfg.Resume = &ResumePoint{Episode: 99}
	trainer, err := New(cfg, store)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	if _, err := trainer.Run(context.Background()); err == nil {
		t.Fatal("expected error resuming from missing checkpoint")
	}

	cfg.Resume = &ResumePoint{Best: true}
	trainer, err = New(cfg, store)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	if _, err := trainer.Run(context.Background()); err == nil {
		t.Fatal("expected error resuming from empty best slot")
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	store := newTestStore(t)
	trainer, err := New(fastConfig(5), store)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := trainer.Run(ctx); err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestRunPersistsRecordsWhenCancelledMidRun(t *testing.T) {
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := fastConfig(8)
	cfg.Episodes = 5
	cfg.OnEpisode = func(summary model.EpisodeSummary) {
		if summary.Episode == 2 {
			cancel()
		}
	}
	trainer, err := New(cfg, store)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}

	_, err = trainer.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	history, ok, err := store.GetRewardHistory(context.Background(), "test-run")
	if err != nil || !ok {
		t.Fatalf("reward history after cancel: ok=%t err=%v", ok, err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 persisted rewards, got %d", len(history))
	}
	summaries, ok, err := store.GetEpisodeSummaries(context.Background(), "test-run")
	if err != nil || !ok {
		t.Fatalf("episode summaries after cancel: ok=%t err=%v", ok, err)
	}
	if len(summaries) != 2 || summaries[1].Episode != 2 {
		t.Fatalf("unexpected persisted summaries: %+v", summaries)
	}
}
