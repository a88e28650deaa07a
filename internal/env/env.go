package env

import (
	"errors"
	"fmt"
	"math/rand"

	"redsim/internal/model"
)

var (
	// ErrInvalidAction is returned for action ids outside [0, ActionCount).
	ErrInvalidAction = errors.New("action id out of range")
	// ErrEpisodeDone is returned when stepping an already-terminal episode.
	ErrEpisodeDone = errors.New("episode is done")
)

const (
	DefaultMaxSteps       = 50
	DefaultAlertThreshold = 1.0
)

type Config struct {
	// MaxSteps is the per-episode step budget; exhaustion ends the episode
	// as a timeout failure.
	MaxSteps int
	// AlertThreshold ends the episode as a detection failure once the alert
	// level reaches it.
	AlertThreshold float64
	// Deterministic forces every action's success probability to 1.
	Deterministic bool
	// Seed feeds the environment's random source when Rand is nil.
	Seed int64
	// Rand overrides the seeded source, letting callers share one generator.
	Rand *rand.Rand
}

// Environment is the kill-chain engagement state machine. It owns the episode
// state, validates actions against access gating, applies stochastic outcomes,
// and shapes rewards.
type Environment struct {
	cfg Config
	rng *rand.Rand

	state   model.EpisodeState
	steps   int
	done    bool
	outcome model.Outcome
	trace   []model.ActionRecord
}

func New(cfg Config) (*Environment, error) {
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.MaxSteps < 0 {
		return nil, fmt.Errorf("max steps must be > 0, got %d", cfg.MaxSteps)
	}
	if cfg.AlertThreshold == 0 {
		cfg.AlertThreshold = DefaultAlertThreshold
	}
	if cfg.AlertThreshold < 0 || cfg.AlertThreshold > 1 {
		return nil, fmt.Errorf("alert threshold must be in (0, 1], got %f", cfg.AlertThreshold)
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	e := &Environment{cfg: cfg, rng: rng}
	e.Reset()
	return e, nil
}

// Reset starts a fresh episode and returns its initial state.
func (e *Environment) Reset() model.EpisodeState {
	e.state = model.EpisodeState{}
	e.steps = 0
	e.done = false
	e.outcome = ""
	e.trace = e.trace[:0]
	return e.state
}

// Step executes one action. It rejects out-of-range ids and terminal
// episodes before touching any state. A permitted attempt draws a Bernoulli
// outcome at the action's success probability; an attempt whose prerequisite
// is unmet costs exactly the wasted-step penalty and leaves state unchanged.
func (e *Environment) Step(actionID int) (model.EpisodeState, float64, bool, error) {
	spec, ok := Lookup(actionID)
	if !ok {
		return e.state, 0, e.done, fmt.Errorf("%w: %d", ErrInvalidAction, actionID)
	}
	if e.done {
		return e.state, 0, true, fmt.Errorf("%w: %s after %s", ErrEpisodeDone, spec.Name, e.outcome)
	}

	e.steps++

	if !spec.prereq(e.state) {
		e.checkBudget()
		e.record(spec, WastedStepPenalty, "Prerequisite not met.", false)
		return e.state, WastedStepPenalty, e.done, nil
	}

	p := spec.SuccessProb
	if e.cfg.Deterministic {
		p = 1
	}
	success := e.rng.Float64() < p

	reward := TimePenalty
	var output string
	var alertDelta float64
	if success {
		next, bonus, out := spec.apply(e.state)
		e.state = next
		reward += bonus
		output = out
		alertDelta = spec.AlertOnSuccess
	} else {
		output = spec.FailOutput
		alertDelta = spec.AlertOnFail
	}

	increase := e.raiseAlert(alertDelta)
	reward -= DetectionPenaltyRate * increase

	if success && spec.Terminal {
		e.done = true
		e.outcome = model.OutcomeFlagCaptured
	}
	if !e.done && e.state.AlertLevel >= e.cfg.AlertThreshold {
		e.done = true
		e.outcome = model.OutcomeDetected
	}
	e.checkBudget()

	e.record(spec, reward, output, success)
	return e.state, reward, e.done, nil
}

// raiseAlert applies delta clamped to [0, 1] and returns the realized increase
// (zero when the alert cooled down or was already saturated).
func (e *Environment) raiseAlert(delta float64) float64 {
	before := e.state.AlertLevel
	after := before + delta
	if after < 0 {
		after = 0
	}
	if after > 1 {
		after = 1
	}
	e.state.AlertLevel = after
	if after > before {
		return after - before
	}
	return 0
}

func (e *Environment) checkBudget() {
	if !e.done && e.steps >= e.cfg.MaxSteps {
		e.done = true
		e.outcome = model.OutcomeTimeout
	}
}

func (e *Environment) record(spec ActionSpec, reward float64, output string, success bool) {
	e.trace = append(e.trace, model.ActionRecord{
		Step:     e.steps,
		ActionID: spec.ID,
		Command:  spec.Command,
		Output:   output,
		Reward:   reward,
		Success:  success,
	})
}

// State returns the current episode state.
func (e *Environment) State() model.EpisodeState { return e.state }

// Observation flattens the current state into the network's input vector.
func (e *Environment) Observation() []float64 { return e.state.Vector() }

// Done reports whether the episode has terminated.
func (e *Environment) Done() bool { return e.done }

// Outcome is empty until the episode terminates.
func (e *Environment) Outcome() model.Outcome { return e.outcome }

// Steps returns the number of steps consumed this episode.
func (e *Environment) Steps() int { return e.steps }

// Trace returns the action records of the current episode, oldest first.
func (e *Environment) Trace() []model.ActionRecord {
	out := make([]model.ActionRecord, len(e.trace))
	copy(out, e.trace)
	return out
}
