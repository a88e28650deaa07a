package dqn

import (
	"fmt"
	"math/rand"

	"redsim/internal/model"
	"redsim/internal/replay"
)

// Config carries the learner hyperparameters. Zero values fall back to the
// defaults below.
type Config struct {
	Gamma          float64
	LearningRate   float64
	BatchSize      int
	ReplayCapacity int
	// Tau is the soft-update blend factor pulling the target network
	// toward the online network after every gradient step.
	Tau float64

	EpsilonStart float64
	EpsilonMin   float64
	EpsilonDecay float64

	Seed int64
	// Rand overrides the seeded source, letting callers share one generator.
	Rand *rand.Rand
}

func DefaultConfig() Config {
	return Config{
		Gamma:          0.99,
		LearningRate:   0.001,
		BatchSize:      32,
		ReplayCapacity: 50000,
		Tau:            0.005,
		EpsilonStart:   1.0,
		EpsilonMin:     0.01,
		EpsilonDecay:   0.995,
	}
}

// Learner owns the online and target networks plus the replay memory, and
// implements epsilon-greedy rollouts with double-DQN updates: the online
// network selects the bootstrap action, the target network evaluates it.
type Learner struct {
	cfg    Config
	rng    *rand.Rand
	online *Network
	target *Network
	memory *replay.Buffer

	epsilon float64
}

func NewLearner(cfg Config) (*Learner, error) {
	def := DefaultConfig()
	if cfg.Gamma == 0 {
		cfg.Gamma = def.Gamma
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.ReplayCapacity == 0 {
		cfg.ReplayCapacity = def.ReplayCapacity
	}
	if cfg.Tau == 0 {
		cfg.Tau = def.Tau
	}
	if cfg.EpsilonStart == 0 {
		cfg.EpsilonStart = def.EpsilonStart
	}
	if cfg.EpsilonMin == 0 {
		cfg.EpsilonMin = def.EpsilonMin
	}
	if cfg.EpsilonDecay == 0 {
		cfg.EpsilonDecay = def.EpsilonDecay
	}

	if cfg.Gamma <= 0 || cfg.Gamma > 1 {
		return nil, fmt.Errorf("gamma must be in (0, 1], got %f", cfg.Gamma)
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be > 0, got %f", cfg.LearningRate)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", cfg.BatchSize)
	}
	if cfg.Tau <= 0 || cfg.Tau >= 1 {
		return nil, fmt.Errorf("tau must be in (0, 1), got %f", cfg.Tau)
	}
	if cfg.EpsilonMin <= 0 {
		return nil, fmt.Errorf("epsilon floor must be > 0, got %f", cfg.EpsilonMin)
	}
	if cfg.EpsilonStart < cfg.EpsilonMin || cfg.EpsilonStart > 1 {
		return nil, fmt.Errorf("epsilon start must be in [floor, 1], got %f", cfg.EpsilonStart)
	}
	if cfg.EpsilonDecay <= 0 || cfg.EpsilonDecay >= 1 {
		return nil, fmt.Errorf("epsilon decay must be in (0, 1), got %f", cfg.EpsilonDecay)
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}

	memory, err := replay.New(cfg.ReplayCapacity)
	if err != nil {
		return nil, fmt.Errorf("replay memory: %w", err)
	}

	online := NewNetwork(rng)
	return &Learner{
		cfg:     cfg,
		rng:     rng,
		online:  online,
		target:  online.Clone(),
		memory:  memory,
		epsilon: cfg.EpsilonStart,
	}, nil
}

// SelectAction picks an action epsilon-greedily over the online Q-values.
func (l *Learner) SelectAction(state []float64) (int, error) {
	if l.rng.Float64() < l.epsilon {
		return l.rng.Intn(ActionCount), nil
	}
	return l.GreedyAction(state)
}

// GreedyAction picks the argmax action of the online network.
func (l *Learner) GreedyAction(state []float64) (int, error) {
	q, err := l.online.Forward(state)
	if err != nil {
		return 0, err
	}
	return argmax(q), nil
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// Observe stores a transition in replay memory.
func (l *Learner) Observe(t replay.Transition) {
	l.memory.Push(t)
}

// Ready reports whether replay memory holds at least one batch.
func (l *Learner) Ready() bool {
	return l.memory.Len() >= l.cfg.BatchSize
}

// TrainStep samples a uniform mini-batch, forms double-DQN targets, applies
// one gradient step to the online network, and soft-updates the target.
func (l *Learner) TrainStep() (float64, error) {
	batch, err := l.memory.Sample(l.rng, l.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("sample replay: %w", err)
	}

	states := make([][]float64, len(batch))
	actions := make([]int, len(batch))
	targets := make([]float64, len(batch))
	for i, tr := range batch {
		states[i] = tr.State
		actions[i] = tr.Action

		target := tr.Reward
		if !tr.Done {
			onlineNext, err := l.online.Forward(tr.NextState)
			if err != nil {
				return 0, err
			}
			targetNext, err := l.target.Forward(tr.NextState)
			if err != nil {
				return 0, err
			}
			target += l.cfg.Gamma * targetNext[argmax(onlineNext)]
		}
		targets[i] = target
	}

	loss, err := l.online.TrainBatch(states, actions, targets, l.cfg.LearningRate)
	if err != nil {
		return loss, fmt.Errorf("train batch: %w", err)
	}
	if err := l.target.SoftUpdateFrom(l.online, l.cfg.Tau); err != nil {
		return loss, err
	}
	return loss, nil
}

// DecayEpsilon applies one geometric decay step, clamped at the floor.
func (l *Learner) DecayEpsilon() {
	l.epsilon *= l.cfg.EpsilonDecay
	if l.epsilon < l.cfg.EpsilonMin {
		l.epsilon = l.cfg.EpsilonMin
	}
}

func (l *Learner) Epsilon() float64 { return l.epsilon }

// MemoryLen returns the number of transitions currently held in replay.
func (l *Learner) MemoryLen() int { return l.memory.Len() }

// BatchSize returns the configured mini-batch size.
func (l *Learner) BatchSize() int { return l.cfg.BatchSize }

// Checkpoint snapshots both parameter sets and the exploration state.
func (l *Learner) Checkpoint(episode int, reward float64) model.Checkpoint {
	return model.Checkpoint{
		Episode: episode,
		Epsilon: l.epsilon,
		Reward:  reward,
		Online:  l.online.Params(),
		Target:  l.target.Params(),
	}
}

// Restore loads both parameter sets and the exploration state from a
// checkpoint.
func (l *Learner) Restore(cp model.Checkpoint) error {
	if err := l.online.SetParams(cp.Online); err != nil {
		return fmt.Errorf("online parameters: %w", err)
	}
	if err := l.target.SetParams(cp.Target); err != nil {
		return fmt.Errorf("target parameters: %w", err)
	}
	if cp.Epsilon > 0 {
		l.epsilon = cp.Epsilon
	}
	return nil
}

// Online exposes the online network for greedy evaluation.
func (l *Learner) Online() *Network { return l.online }

// Target exposes the lagging target network.
func (l *Learner) Target() *Network { return l.target }
