package train

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"redsim/internal/dqn"
	"redsim/internal/env"
	"redsim/internal/model"
	"redsim/internal/storage"
)

// DefaultTarget labels engagement records when no target is named.
const DefaultTarget = "192.168.1.100"

// CheckpointRef names a stored checkpoint: the best slot or an episode.
type CheckpointRef struct {
	Best    bool
	Episode int
}

// DeployConfig drives greedy rollouts of a trained policy.
type DeployConfig struct {
	Checkpoint CheckpointRef
	Episodes   int
	Target     string
	RunID      string
	Seed       int64

	Env     env.Config
	Learner dqn.Config

	// OnStep, when set, receives each executed action as it happens.
	OnStep func(model.ActionRecord)
}

// Rollout loads the named checkpoint and plays fully greedy episodes against
// the environment, returning one engagement record per episode. The records
// are also persisted under the run id for later reporting.
func Rollout(ctx context.Context, store storage.Store, cfg DeployConfig) ([]model.EngagementRecord, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Episodes == 0 {
		cfg.Episodes = 1
	}
	if cfg.Episodes < 0 {
		return nil, fmt.Errorf("episodes must be > 0, got %d", cfg.Episodes)
	}
	if cfg.Target == "" {
		cfg.Target = DefaultTarget
	}
	if cfg.RunID == "" {
		cfg.RunID = DefaultRunID
	}

	trainer := &Trainer{store: store}
	cp, err := trainer.loadResumePoint(ctx, ResumePoint{Best: cfg.Checkpoint.Best, Episode: cfg.Checkpoint.Episode})
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	envCfg := cfg.Env
	if envCfg.Rand == nil {
		envCfg.Rand = rng
	}
	environment, err := env.New(envCfg)
	if err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	learnerCfg := cfg.Learner
	if learnerCfg.Rand == nil {
		learnerCfg.Rand = rng
	}
	learner, err := dqn.NewLearner(learnerCfg)
	if err != nil {
		return nil, fmt.Errorf("learner: %w", err)
	}
	if err := learner.Restore(cp); err != nil {
		return nil, fmt.Errorf("restore checkpoint: %w", err)
	}

	records := make([]model.EngagementRecord, 0, cfg.Episodes)
	for episode := 1; episode <= cfg.Episodes; episode++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		environment.Reset()
		obs := environment.Observation()
		total := 0.0
		for !environment.Done() {
			action, err := learner.GreedyAction(obs)
			if err != nil {
				return nil, err
			}
			next, reward, _, err := environment.Step(action)
			if err != nil {
				return nil, err
			}
			obs = next.Vector()
			total += reward

			if cfg.OnStep != nil {
				trace := environment.Trace()
				cfg.OnStep(trace[len(trace)-1])
			}
		}

		records = append(records, model.EngagementRecord{
			VersionedRecord: storage.Stamp(),
			Target:          cfg.Target,
			Episode:         episode,
			FinalState:      environment.State(),
			Outcome:         environment.Outcome(),
			Reward:          total,
			Trace:           environment.Trace(),
		})
	}

	if err := store.SaveEngagements(ctx, cfg.RunID, records); err != nil {
		return nil, fmt.Errorf("save engagements: %w", err)
	}
	return records, nil
}
