//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"redsim/internal/model"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "redsim.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	cp := model.Checkpoint{
		VersionedRecord: Stamp(),
		Episode:         25,
		Epsilon:         0.88,
		Reward:          120,
		Online: model.NetworkParams{Layers: []model.LayerParams{
			{Name: "trunk1", Rows: 1, Cols: 5, Weights: []float64{1, 2, 3, 4, 5}, Biases: []float64{0.5}},
		}},
		Target: model.NetworkParams{Layers: []model.LayerParams{
			{Name: "trunk1", Rows: 1, Cols: 5, Weights: []float64{1, 2, 3, 4, 5}, Biases: []float64{0.5}},
		}},
	}
	if err := store.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	loadedCP, ok, err := store.GetCheckpoint(ctx, 25)
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if !ok {
		t.Fatal("expected checkpoint 25")
	}
	if loadedCP.Epsilon != cp.Epsilon || len(loadedCP.Online.Layers) != 1 {
		t.Fatalf("unexpected checkpoint loaded: %+v", loadedCP)
	}

	episodes, err := store.ListCheckpointEpisodes(ctx)
	if err != nil {
		t.Fatalf("list episodes: %v", err)
	}
	if len(episodes) != 1 || episodes[0] != 25 {
		t.Fatalf("unexpected episodes: %+v", episodes)
	}

	if err := store.SaveBestCheckpoint(ctx, cp); err != nil {
		t.Fatalf("save best: %v", err)
	}
	best := cp
	best.Episode = 40
	best.Reward = 704
	if err := store.SaveBestCheckpoint(ctx, best); err != nil {
		t.Fatalf("save best again: %v", err)
	}
	loadedBest, ok, err := store.GetBestCheckpoint(ctx)
	if err != nil {
		t.Fatalf("get best: %v", err)
	}
	if !ok {
		t.Fatal("expected best checkpoint")
	}
	if loadedBest.Episode != 40 || loadedBest.Reward != 704 {
		t.Fatalf("best slot not overwritten: %+v", loadedBest)
	}

	history := []float64{-20, 104, 704}
	if err := store.SaveRewardHistory(ctx, "run-1", history); err != nil {
		t.Fatalf("save history: %v", err)
	}
	loadedHistory, ok, err := store.GetRewardHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok {
		t.Fatal("expected reward history run-1")
	}
	if len(loadedHistory) != len(history) || loadedHistory[1] != history[1] {
		t.Fatalf("unexpected history loaded: %+v", loadedHistory)
	}

	summaries := []model.EpisodeSummary{
		{VersionedRecord: Stamp(), Episode: 1, Steps: 50, Reward: -66, Epsilon: 0.995, Outcome: model.OutcomeTimeout},
	}
	if err := store.SaveEpisodeSummaries(ctx, "run-1", summaries); err != nil {
		t.Fatalf("save summaries: %v", err)
	}
	loadedSummaries, ok, err := store.GetEpisodeSummaries(ctx, "run-1")
	if err != nil {
		t.Fatalf("get summaries: %v", err)
	}
	if !ok {
		t.Fatal("expected summaries run-1")
	}
	if len(loadedSummaries) != 1 || loadedSummaries[0].Outcome != model.OutcomeTimeout {
		t.Fatalf("unexpected summaries loaded: %+v", loadedSummaries)
	}

	engagements := []model.EngagementRecord{
		{
			VersionedRecord: Stamp(),
			Target:          "192.168.1.100",
			Episode:         1,
			Outcome:         model.OutcomeFlagCaptured,
			Reward:          704,
			Trace: []model.ActionRecord{
				{Step: 1, ActionID: 0, Command: "nmap -sV 192.168.1.100", Reward: 9, Success: true},
			},
		},
	}
	if err := store.SaveEngagements(ctx, "run-1", engagements); err != nil {
		t.Fatalf("save engagements: %v", err)
	}
	loadedEngagements, ok, err := store.GetEngagements(ctx, "run-1")
	if err != nil {
		t.Fatalf("get engagements: %v", err)
	}
	if !ok {
		t.Fatal("expected engagements run-1")
	}
	if len(loadedEngagements) != 1 || len(loadedEngagements[0].Trace) != 1 {
		t.Fatalf("unexpected engagements loaded: %+v", loadedEngagements)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "redsim.db")

	first := NewSQLiteStore(dbPath)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("first init: %v", err)
	}
	cp := model.Checkpoint{VersionedRecord: Stamp(), Episode: 100, Reward: 612}
	if err := first.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}

	second := NewSQLiteStore(dbPath)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}
	t.Cleanup(func() {
		_ = second.Close()
	})

	loaded, ok, err := second.GetCheckpoint(ctx, 100)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if !ok || loaded.Reward != 612 {
		t.Fatalf("expected persisted checkpoint, got ok=%t value=%+v", ok, loaded)
	}
}
