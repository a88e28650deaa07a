// Package redsim is the embedding-friendly facade over training, deployment,
// and reporting for the simulated kill-chain agent.
package redsim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"redsim/internal/artifacts"
	"redsim/internal/dqn"
	"redsim/internal/env"
	"redsim/internal/export"
	"redsim/internal/model"
	"redsim/internal/report"
	"redsim/internal/storage"
	"redsim/internal/train"
)

const (
	defaultDBPath       = "redsim.db"
	defaultReportsDir   = "reports"
	defaultExportsDir   = "exports"
	defaultArtifactsDir = "artifacts"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ReportsDir   string
	ExportsDir   string
	ArtifactsDir string
}

type Client struct {
	store       storage.Store
	initialized bool

	reportsDir   string
	exportsDir   string
	artifactsDir string
}

// TrainRequest configures one training run. Zero values fall back to the
// learner and environment defaults.
type TrainRequest struct {
	Episodes        int
	CheckpointEvery int
	Seed            int64
	RunID           string

	MaxSteps       int
	AlertThreshold float64
	Deterministic  bool

	Gamma          float64
	LearningRate   float64
	BatchSize      int
	ReplayCapacity int
	Tau            float64
	EpsilonStart   float64
	EpsilonMin     float64
	EpsilonDecay   float64

	ResumeBest    bool
	ResumeEpisode int

	OnEpisode func(model.EpisodeSummary)
}

type TrainSummary struct {
	RunID        string
	EpisodesRun  int
	BestEpisode  int
	BestReward   float64
	FinalEpsilon float64
	History      []float64
}

// DeployRequest configures greedy rollouts from a stored checkpoint.
type DeployRequest struct {
	Best    bool
	Episode int

	Episodes int
	Target   string
	RunID    string
	Seed     int64

	MaxSteps      int
	Deterministic bool

	OnStep func(model.ActionRecord)
}

type ReportRequest struct {
	RunID  string
	OutDir string
}

type ChartRequest struct {
	RunID   string
	OutPath string
}

type ExportRequest struct {
	RunID   string
	OutPath string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	reportsDir := opts.ReportsDir
	if reportsDir == "" {
		reportsDir = defaultReportsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		reportsDir:   reportsDir,
		exportsDir:   exportsDir,
		artifactsDir: artifactsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

// Train runs a full training loop and persists its artifacts.
func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	if req.ResumeBest && req.ResumeEpisode > 0 {
		return TrainSummary{}, errors.New("use either resume best or resume episode")
	}
	if err := c.ensureStore(ctx); err != nil {
		return TrainSummary{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = train.DefaultRunID
	}

	cfg := train.Config{
		Episodes:        req.Episodes,
		CheckpointEvery: req.CheckpointEvery,
		Seed:            req.Seed,
		RunID:           runID,
		Env: env.Config{
			MaxSteps:       req.MaxSteps,
			AlertThreshold: req.AlertThreshold,
			Deterministic:  req.Deterministic,
		},
		Learner: dqn.Config{
			Gamma:          req.Gamma,
			LearningRate:   req.LearningRate,
			BatchSize:      req.BatchSize,
			ReplayCapacity: req.ReplayCapacity,
			Tau:            req.Tau,
			EpsilonStart:   req.EpsilonStart,
			EpsilonMin:     req.EpsilonMin,
			EpsilonDecay:   req.EpsilonDecay,
		},
		OnEpisode: req.OnEpisode,
	}
	if req.ResumeBest {
		cfg.Resume = &train.ResumePoint{Best: true}
	} else if req.ResumeEpisode > 0 {
		cfg.Resume = &train.ResumePoint{Episode: req.ResumeEpisode}
	}

	trainer, err := train.New(cfg, c.store)
	if err != nil {
		return TrainSummary{}, err
	}
	result, err := trainer.Run(ctx)
	if err != nil {
		return TrainSummary{}, err
	}

	if err := c.writeRunArtifacts(runID, req, result); err != nil {
		return TrainSummary{}, fmt.Errorf("write run artifacts: %w", err)
	}

	return TrainSummary{
		RunID:        runID,
		EpisodesRun:  result.EpisodesRun,
		BestEpisode:  result.BestEpisode,
		BestReward:   result.BestReward,
		FinalEpsilon: result.FinalEpsilon,
		History:      result.History,
	}, nil
}

// Deploy plays greedy episodes from a stored checkpoint and returns the
// engagement records.
func (c *Client) Deploy(ctx context.Context, req DeployRequest) ([]model.EngagementRecord, error) {
	if req.Best && req.Episode > 0 {
		return nil, errors.New("use either best or an episode checkpoint")
	}
	if !req.Best && req.Episode <= 0 {
		return nil, errors.New("deploy requires best or an episode checkpoint")
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	return train.Rollout(ctx, c.store, train.DeployConfig{
		Checkpoint: train.CheckpointRef{Best: req.Best, Episode: req.Episode},
		Episodes:   req.Episodes,
		Target:     req.Target,
		RunID:      req.RunID,
		Seed:       req.Seed,
		Env: env.Config{
			MaxSteps:      req.MaxSteps,
			Deterministic: req.Deterministic,
		},
		OnStep: req.OnStep,
	})
}

// RewardHistory returns the per-episode rewards stored under a run id.
func (c *Client) RewardHistory(ctx context.Context, runID string) ([]float64, error) {
	if runID == "" {
		runID = train.DefaultRunID
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetRewardHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("reward history not found for run id: %s", runID)
	}
	return history, nil
}

// EpisodeSummaries returns the stored episode summaries of a run.
func (c *Client) EpisodeSummaries(ctx context.Context, runID string) ([]model.EpisodeSummary, error) {
	if runID == "" {
		runID = train.DefaultRunID
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	summaries, ok, err := c.store.GetEpisodeSummaries(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("episode summaries not found for run id: %s", runID)
	}
	return summaries, nil
}

// Engagements returns the stored deployment traces of a run.
func (c *Client) Engagements(ctx context.Context, runID string) ([]model.EngagementRecord, error) {
	if runID == "" {
		runID = train.DefaultRunID
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	engagements, ok, err := c.store.GetEngagements(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("engagements not found for run id: %s", runID)
	}
	return engagements, nil
}

// Checkpoints lists the episodes with a stored periodic checkpoint.
func (c *Client) Checkpoints(ctx context.Context) ([]int, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	return c.store.ListCheckpointEpisodes(ctx)
}

// WriteReports renders a markdown engagement report for every stored
// engagement of a run, returning the written file paths.
func (c *Client) WriteReports(ctx context.Context, req ReportRequest) ([]string, error) {
	engagements, err := c.Engagements(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	outDir := req.OutDir
	if outDir == "" {
		outDir = c.reportsDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	now := time.Now()
	paths := make([]string, 0, len(engagements))
	for _, engagement := range engagements {
		name := report.Filename(fmt.Sprintf("%s_ep%d", engagement.Target, engagement.Episode), now)
		path := filepath.Join(outDir, name)
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		if err := report.Render(f, engagement, now); err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
		paths = append(paths, filepath.Clean(path))
	}
	return paths, nil
}

// WriteChart renders the reward-curve HTML chart for a run.
func (c *Client) WriteChart(ctx context.Context, req ChartRequest) (string, error) {
	runID := req.RunID
	if runID == "" {
		runID = train.DefaultRunID
	}
	history, err := c.RewardHistory(ctx, runID)
	if err != nil {
		return "", err
	}

	outPath := req.OutPath
	if outPath == "" {
		outPath = filepath.Join(c.exportsDir, fmt.Sprintf("rewards_%s.html", runID))
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	if err := report.RenderRewardChart(f, runID, history); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return filepath.Clean(outPath), nil
}

// ExportWorkbook writes the episode-metrics xlsx workbook for a run.
func (c *Client) ExportWorkbook(ctx context.Context, req ExportRequest) (string, error) {
	runID := req.RunID
	if runID == "" {
		runID = train.DefaultRunID
	}
	summaries, err := c.EpisodeSummaries(ctx, runID)
	if err != nil {
		return "", err
	}

	outPath := req.OutPath
	if outPath == "" {
		outPath = filepath.Join(c.exportsDir, fmt.Sprintf("episodes_%s.xlsx", runID))
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	if err := export.WriteEpisodeWorkbook(outPath, runID, summaries); err != nil {
		return "", err
	}
	return filepath.Clean(outPath), nil
}

// Runs lists the previously trained runs, most recent first.
func (c *Client) Runs() ([]artifacts.RunIndexEntry, error) {
	return artifacts.ListRunIndex(c.artifactsDir)
}

func (c *Client) writeRunArtifacts(runID string, req TrainRequest, result train.Result) error {
	art := artifacts.RunArtifacts{
		Config: artifacts.RunConfig{
			RunID:           runID,
			Episodes:        req.Episodes,
			CheckpointEvery: req.CheckpointEvery,
			Seed:            req.Seed,
			MaxSteps:        req.MaxSteps,
			AlertThreshold:  req.AlertThreshold,
			Deterministic:   req.Deterministic,
			Gamma:           req.Gamma,
			LearningRate:    req.LearningRate,
			BatchSize:       req.BatchSize,
			ReplayCapacity:  req.ReplayCapacity,
			Tau:             req.Tau,
			EpsilonStart:    req.EpsilonStart,
			EpsilonMin:      req.EpsilonMin,
			EpsilonDecay:    req.EpsilonDecay,
		},
		RewardHistory: result.History,
		BestEpisode:   result.BestEpisode,
		BestReward:    result.BestReward,
		FinalEpsilon:  result.FinalEpsilon,
	}
	if _, err := artifacts.WriteRunArtifacts(c.artifactsDir, art); err != nil {
		return err
	}
	return artifacts.AppendRunIndex(c.artifactsDir, artifacts.RunIndexEntry{
		RunID:        runID,
		Episodes:     result.EpisodesRun,
		Seed:         req.Seed,
		BestEpisode:  result.BestEpisode,
		BestReward:   result.BestReward,
		FinalEpsilon: result.FinalEpsilon,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
	})
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}
