package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"redsim/internal/dqn"
	"redsim/internal/env"
	"redsim/internal/model"
	"redsim/internal/replay"
	"redsim/internal/storage"
)

const (
	DefaultEpisodes        = 500
	DefaultCheckpointEvery = 25
	DefaultRunID           = "default"
)

// ResumePoint names the checkpoint a run continues from. Either the best
// slot or an explicit episode number.
type ResumePoint struct {
	Best    bool
	Episode int
}

// Config drives one training run.
type Config struct {
	Episodes        int
	CheckpointEvery int
	Seed            int64
	RunID           string

	Env     env.Config
	Learner dqn.Config

	Resume *ResumePoint

	// OnEpisode, when set, receives each finished episode's summary.
	OnEpisode func(model.EpisodeSummary)
}

// Result summarizes a completed training run.
type Result struct {
	EpisodesRun  int
	BestEpisode  int
	BestReward   float64
	FinalEpsilon float64
	History      []float64
}

type Trainer struct {
	cfg   Config
	store storage.Store
}

func New(cfg Config, store storage.Store) (*Trainer, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Episodes == 0 {
		cfg.Episodes = DefaultEpisodes
	}
	if cfg.Episodes < 0 {
		return nil, fmt.Errorf("episodes must be > 0, got %d", cfg.Episodes)
	}
	if cfg.CheckpointEvery == 0 {
		cfg.CheckpointEvery = DefaultCheckpointEvery
	}
	if cfg.CheckpointEvery < 0 {
		return nil, fmt.Errorf("checkpoint interval must be > 0, got %d", cfg.CheckpointEvery)
	}
	if cfg.RunID == "" {
		cfg.RunID = DefaultRunID
	}
	return &Trainer{cfg: cfg, store: store}, nil
}

// Run trains for the configured number of episodes, persisting the best and
// periodic checkpoints plus the reward history and episode summaries.
func (t *Trainer) Run(ctx context.Context) (Result, error) {
	rng := rand.New(rand.NewSource(t.cfg.Seed))

	envCfg := t.cfg.Env
	if envCfg.Rand == nil {
		envCfg.Rand = rng
	}
	environment, err := env.New(envCfg)
	if err != nil {
		return Result{}, fmt.Errorf("environment: %w", err)
	}

	learnerCfg := t.cfg.Learner
	if learnerCfg.Rand == nil {
		learnerCfg.Rand = rng
	}
	learner, err := dqn.NewLearner(learnerCfg)
	if err != nil {
		return Result{}, fmt.Errorf("learner: %w", err)
	}

	startEpisode := 1
	bestReward := math.Inf(-1)
	bestEpisode := 0
	if t.cfg.Resume != nil {
		cp, err := t.loadResumePoint(ctx, *t.cfg.Resume)
		if err != nil {
			return Result{}, err
		}
		if err := learner.Restore(cp); err != nil {
			return Result{}, fmt.Errorf("restore checkpoint: %w", err)
		}
		startEpisode = cp.Episode + 1
		bestReward = cp.Reward
		bestEpisode = cp.Episode

		// The best slot may hold a better reward than the checkpoint we
		// resume from; beating the resumed episode must not clobber it.
		best, ok, err := t.store.GetBestCheckpoint(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("load best checkpoint: %w", err)
		}
		if ok && best.Reward > bestReward {
			bestReward = best.Reward
			bestEpisode = best.Episode
		}
	}

	history, _, err := t.store.GetRewardHistory(ctx, t.cfg.RunID)
	if err != nil {
		return Result{}, fmt.Errorf("load reward history: %w", err)
	}
	summaries, _, err := t.store.GetEpisodeSummaries(ctx, t.cfg.RunID)
	if err != nil {
		return Result{}, fmt.Errorf("load episode summaries: %w", err)
	}

	for episode := startEpisode; episode < startEpisode+t.cfg.Episodes; episode++ {
		select {
		case <-ctx.Done():
			if err := t.saveRunRecords(context.WithoutCancel(ctx), history, summaries); err != nil {
				return Result{}, err
			}
			return Result{}, ctx.Err()
		default:
		}

		total, err := t.runEpisode(environment, learner)
		if err != nil {
			// The episode error takes precedence over a failed save.
			_ = t.saveRunRecords(ctx, history, summaries)
			return Result{}, fmt.Errorf("episode %d: %w", episode, err)
		}
		learner.DecayEpsilon()

		history = append(history, total)
		summary := model.EpisodeSummary{
			VersionedRecord: storage.Stamp(),
			Episode:         episode,
			Steps:           environment.Steps(),
			Reward:          total,
			Epsilon:         learner.Epsilon(),
			Outcome:         environment.Outcome(),
		}
		summaries = append(summaries, summary)
		if t.cfg.OnEpisode != nil {
			t.cfg.OnEpisode(summary)
		}

		if total > bestReward {
			bestReward = total
			bestEpisode = episode
			if err := t.saveCheckpoint(ctx, learner, episode, total, true); err != nil {
				return Result{}, err
			}
		}
		if episode%t.cfg.CheckpointEvery == 0 {
			if err := t.saveCheckpoint(ctx, learner, episode, total, false); err != nil {
				return Result{}, err
			}
		}
	}

	if err := t.saveRunRecords(ctx, history, summaries); err != nil {
		return Result{}, err
	}

	return Result{
		EpisodesRun:  t.cfg.Episodes,
		BestEpisode:  bestEpisode,
		BestReward:   bestReward,
		FinalEpsilon: learner.Epsilon(),
		History:      history,
	}, nil
}

// runEpisode plays one episode to termination, storing every transition and
// training once the replay memory holds a full batch.
func (t *Trainer) runEpisode(environment *env.Environment, learner *dqn.Learner) (float64, error) {
	environment.Reset()
	obs := environment.Observation()

	total := 0.0
	for !environment.Done() {
		action, err := learner.SelectAction(obs)
		if err != nil {
			return 0, err
		}
		next, reward, done, err := environment.Step(action)
		if err != nil {
			return 0, err
		}
		nextObs := next.Vector()

		learner.Observe(replay.Transition{
			State:     obs,
			Action:    action,
			Reward:    reward,
			NextState: nextObs,
			Done:      done,
		})
		if learner.Ready() {
			if _, err := learner.TrainStep(); err != nil {
				return 0, err
			}
		}

		obs = nextObs
		total += reward
	}
	return total, nil
}

func (t *Trainer) saveRunRecords(ctx context.Context, history []float64, summaries []model.EpisodeSummary) error {
	if err := t.store.SaveRewardHistory(ctx, t.cfg.RunID, history); err != nil {
		return fmt.Errorf("save reward history: %w", err)
	}
	if err := t.store.SaveEpisodeSummaries(ctx, t.cfg.RunID, summaries); err != nil {
		return fmt.Errorf("save episode summaries: %w", err)
	}
	return nil
}

func (t *Trainer) saveCheckpoint(ctx context.Context, learner *dqn.Learner, episode int, reward float64, best bool) error {
	cp := learner.Checkpoint(episode, reward)
	cp.VersionedRecord = storage.Stamp()
	if best {
		if err := t.store.SaveBestCheckpoint(ctx, cp); err != nil {
			return fmt.Errorf("save best checkpoint: %w", err)
		}
		return nil
	}
	if err := t.store.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint %d: %w", episode, err)
	}
	return nil
}

func (t *Trainer) loadResumePoint(ctx context.Context, resume ResumePoint) (model.Checkpoint, error) {
	if resume.Best {
		cp, ok, err := t.store.GetBestCheckpoint(ctx)
		if err != nil {
			return model.Checkpoint{}, fmt.Errorf("load best checkpoint: %w", err)
		}
		if !ok {
			return model.Checkpoint{}, errors.New("no best checkpoint to resume from")
		}
		return cp, nil
	}
	cp, ok, err := t.store.GetCheckpoint(ctx, resume.Episode)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("load checkpoint %d: %w", resume.Episode, err)
	}
	if !ok {
		return model.Checkpoint{}, fmt.Errorf("no checkpoint for episode %d", resume.Episode)
	}
	return cp, nil
}
