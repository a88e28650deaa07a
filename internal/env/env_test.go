package env

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"redsim/internal/model"
)

func newDeterministicEnv(t *testing.T) *Environment {
	t.Helper()
	e, err := New(Config{Deterministic: true, Seed: 1})
	if err != nil {
		t.Fatalf("new environment: %v", err)
	}
	return e
}

func TestStepRejectsOutOfRangeActions(t *testing.T) {
	e := newDeterministicEnv(t)

	for _, id := range []int{-1, ActionCount, ActionCount + 7} {
		before := e.State()
		_, _, _, err := e.Step(id)
		if !errors.Is(err, ErrInvalidAction) {
			t.Fatalf("action %d: expected ErrInvalidAction, got %v", id, err)
		}
		if e.State() != before {
			t.Fatalf("action %d mutated state: %+v", id, e.State())
		}
		if e.Steps() != 0 {
			t.Fatalf("action %d consumed budget: steps=%d", id, e.Steps())
		}
	}
}

func TestKillChainSequenceCapturesFlag(t *testing.T) {
	e := newDeterministicEnv(t)

	sequence := []int{
		ActionPortScan,
		ActionBruteForceSSH,
		ActionReverseShellBash,
		ActionSudoEnum,
		ActionSUIDExploit,
		ActionFlagCapture,
	}

	total := 0.0
	var done bool
	var state model.EpisodeState
	for i, id := range sequence {
		var reward float64
		var err error
		state, reward, done, err = e.Step(id)
		if err != nil {
			t.Fatalf("step %d (action %d): %v", i, id, err)
		}
		total += reward
		if done && i != len(sequence)-1 {
			t.Fatalf("episode ended early at step %d", i)
		}
	}

	if !done {
		t.Fatal("expected episode to terminate on flag capture")
	}
	if state.Access != model.AccessRoot {
		t.Fatalf("expected root access, got %s", state.Access)
	}
	if e.Outcome() != model.OutcomeFlagCaptured {
		t.Fatalf("expected outcome %s, got %s", model.OutcomeFlagCaptured, e.Outcome())
	}
	// 10 + 50 + 30 + 20 + 100 + 500 milestone rewards minus one time
	// penalty per step.
	if want := 704.0; math.Abs(total-want) > 1e-9 {
		t.Fatalf("cumulative reward: got %f want %f", total, want)
	}
}

func TestPrivilegeEnumBeforeShellIsWastedStep(t *testing.T) {
	e := newDeterministicEnv(t)

	before := e.State()
	state, reward, done, err := e.Step(ActionSudoEnum)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if reward != WastedStepPenalty {
		t.Fatalf("reward: got %f want %f", reward, WastedStepPenalty)
	}
	if state != before {
		t.Fatalf("state changed on wasted step: %+v", state)
	}
	if done {
		t.Fatal("wasted step must not terminate the episode")
	}
}

func TestMilestoneRewardsAreGrantedOnce(t *testing.T) {
	e := newDeterministicEnv(t)

	if _, reward, _, err := e.Step(ActionPortScan); err != nil || reward != TimePenalty+RewardPortDiscovery {
		t.Fatalf("first scan: reward=%f err=%v", reward, err)
	}
	if _, reward, _, err := e.Step(ActionPortScan); err != nil || reward != TimePenalty {
		t.Fatalf("repeat scan: reward=%f err=%v", reward, err)
	}
}

func TestStepAfterTerminalFails(t *testing.T) {
	e := newDeterministicEnv(t)

	for _, id := range []int{ActionPortScan, ActionBruteForceSSH, ActionReverseShellBash, ActionSudoEnum, ActionSUIDExploit, ActionFlagCapture} {
		if _, _, _, err := e.Step(id); err != nil {
			t.Fatalf("action %d: %v", id, err)
		}
	}
	if !e.Done() {
		t.Fatal("expected terminal episode")
	}

	before := e.State()
	_, _, done, err := e.Step(ActionWait)
	if !errors.Is(err, ErrEpisodeDone) {
		t.Fatalf("expected ErrEpisodeDone, got %v", err)
	}
	if !done {
		t.Fatal("done flag must remain set")
	}
	if e.State() != before {
		t.Fatalf("terminal step mutated state: %+v", e.State())
	}
}

func TestNoisyReconTriggersDetection(t *testing.T) {
	e := newDeterministicEnv(t)

	// Directory busting raises the alert level by 0.10 per run; ten runs
	// saturate the alert meter and end the episode as detected.
	var done bool
	for i := 0; i < 10; i++ {
		var err error
		if _, _, done, err = e.Step(ActionDirBust); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if !done {
		t.Fatal("expected detection to terminate the episode")
	}
	if e.Outcome() != model.OutcomeDetected {
		t.Fatalf("expected outcome %s, got %s", model.OutcomeDetected, e.Outcome())
	}
	if e.State().AlertLevel < 1 {
		t.Fatalf("alert level below threshold: %f", e.State().AlertLevel)
	}
}

func TestDetectionPenaltyProportionalToAlertIncrease(t *testing.T) {
	e := newDeterministicEnv(t)

	_, reward, _, err := e.Step(ActionDirBust)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	want := TimePenalty - DetectionPenaltyRate*0.10
	if math.Abs(reward-want) > 1e-9 {
		t.Fatalf("reward: got %f want %f", reward, want)
	}
}

func TestWaitCoolsAlertAndNeverBelowZero(t *testing.T) {
	e := newDeterministicEnv(t)

	if _, _, _, err := e.Step(ActionWait); err != nil {
		t.Fatalf("wait on zero alert: %v", err)
	}
	if alert := e.State().AlertLevel; alert != 0 {
		t.Fatalf("alert went negative: %f", alert)
	}

	if _, _, _, err := e.Step(ActionDirBust); err != nil {
		t.Fatalf("dir bust: %v", err)
	}
	raised := e.State().AlertLevel
	if _, _, _, err := e.Step(ActionWait); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if cooled := e.State().AlertLevel; cooled >= raised {
		t.Fatalf("wait did not cool alert: before=%f after=%f", raised, cooled)
	}
}

func TestStepBudgetExhaustionTimesOut(t *testing.T) {
	e, err := New(Config{MaxSteps: 3, Deterministic: true})
	if err != nil {
		t.Fatalf("new environment: %v", err)
	}

	var done bool
	for i := 0; i < 3; i++ {
		if _, _, done, err = e.Step(ActionListener); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if !done {
		t.Fatal("expected timeout after exhausting the step budget")
	}
	if e.Outcome() != model.OutcomeTimeout {
		t.Fatalf("expected outcome %s, got %s", model.OutcomeTimeout, e.Outcome())
	}
}

func TestAccessLevelIsMonotonicWithinEpisode(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	e, err := New(Config{Rand: rng})
	if err != nil {
		t.Fatalf("new environment: %v", err)
	}

	for episode := 0; episode < 20; episode++ {
		prev := e.Reset().Access
		for !e.Done() {
			state, _, _, err := e.Step(rng.Intn(ActionCount))
			if err != nil {
				t.Fatalf("episode %d: %v", episode, err)
			}
			if state.Access < prev {
				t.Fatalf("access regressed from %s to %s", prev, state.Access)
			}
			if state.AlertLevel < 0 || state.AlertLevel > 1 {
				t.Fatalf("alert level out of range: %f", state.AlertLevel)
			}
			prev = state.Access
		}
	}
}

func TestResetClearsEpisodeState(t *testing.T) {
	e := newDeterministicEnv(t)

	for _, id := range []int{ActionPortScan, ActionBruteForceSSH, ActionDirBust} {
		if _, _, _, err := e.Step(id); err != nil {
			t.Fatalf("action %d: %v", id, err)
		}
	}
	if len(e.Trace()) == 0 {
		t.Fatal("expected trace entries before reset")
	}

	state := e.Reset()
	if state != (model.EpisodeState{}) {
		t.Fatalf("reset state not zeroed: %+v", state)
	}
	if e.Steps() != 0 || e.Done() || len(e.Trace()) != 0 {
		t.Fatalf("reset left residue: steps=%d done=%v trace=%d", e.Steps(), e.Done(), len(e.Trace()))
	}
}

func TestTraceRecordsCommandsAndOutcomes(t *testing.T) {
	e := newDeterministicEnv(t)

	if _, _, _, err := e.Step(ActionPortScan); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, _, _, err := e.Step(ActionSudoEnum); err != nil {
		t.Fatalf("gated enum: %v", err)
	}

	trace := e.Trace()
	if len(trace) != 2 {
		t.Fatalf("trace length: got %d want 2", len(trace))
	}
	if trace[0].Command != "nmap -sV target" || !trace[0].Success {
		t.Fatalf("unexpected first record: %+v", trace[0])
	}
	if trace[1].Success || trace[1].Reward != WastedStepPenalty {
		t.Fatalf("unexpected gated record: %+v", trace[1])
	}
}
