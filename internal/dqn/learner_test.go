package dqn

import (
	"math"
	"math/rand"
	"testing"

	"redsim/internal/replay"
)

func TestNewLearnerAppliesDefaults(t *testing.T) {
	l, err := NewLearner(Config{Seed: 1})
	if err != nil {
		t.Fatalf("new learner: %v", err)
	}
	def := DefaultConfig()
	if l.Epsilon() != def.EpsilonStart {
		t.Fatalf("epsilon: got %f want %f", l.Epsilon(), def.EpsilonStart)
	}
	if l.BatchSize() != def.BatchSize {
		t.Fatalf("batch size: got %d want %d", l.BatchSize(), def.BatchSize)
	}
}

func TestNewLearnerRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"gamma above one", Config{Gamma: 1.5}},
		{"negative learning rate", Config{LearningRate: -0.1}},
		{"tau of one", Config{Tau: 1}},
		{"decay of one", Config{EpsilonDecay: 1}},
		{"start below floor", Config{EpsilonStart: 0.001, EpsilonMin: 0.01}},
		{"negative capacity", Config{ReplayCapacity: -5}},
	}
	for _, tc := range cases {
		if _, err := NewLearner(tc.cfg); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestDecayEpsilonStopsAtFloor(t *testing.T) {
	l, err := NewLearner(Config{Seed: 2, EpsilonStart: 1.0, EpsilonMin: 0.01, EpsilonDecay: 0.5})
	if err != nil {
		t.Fatalf("new learner: %v", err)
	}

	l.DecayEpsilon()
	if got := l.Epsilon(); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("after one decay: got %f want 0.5", got)
	}

	for i := 0; i < 100; i++ {
		l.DecayEpsilon()
	}
	if got := l.Epsilon(); got != 0.01 {
		t.Fatalf("epsilon left the floor: got %f want 0.01", got)
	}
}

func TestGreedyActionMatchesOnlineArgmax(t *testing.T) {
	l, err := NewLearner(Config{Seed: 3})
	if err != nil {
		t.Fatalf("new learner: %v", err)
	}
	state := []float64{0, 1, 0, 0, 0.3}

	q, err := l.Online().Forward(state)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	got, err := l.GreedyAction(state)
	if err != nil {
		t.Fatalf("greedy action: %v", err)
	}
	if want := argmax(q); got != want {
		t.Fatalf("greedy action: got %d want %d", got, want)
	}
}

func TestSelectActionExploresAtFullEpsilon(t *testing.T) {
	l, err := NewLearner(Config{Seed: 4, EpsilonStart: 1.0})
	if err != nil {
		t.Fatalf("new learner: %v", err)
	}
	state := []float64{0, 0, 0, 0, 0}

	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		a, err := l.SelectAction(state)
		if err != nil {
			t.Fatalf("select action: %v", err)
		}
		if a < 0 || a >= ActionCount {
			t.Fatalf("action out of range: %d", a)
		}
		seen[a] = true
	}
	if len(seen) < ActionCount/2 {
		t.Fatalf("exploration too narrow: saw %d distinct actions", len(seen))
	}
}

func TestTrainStepRequiresFullBatch(t *testing.T) {
	l, err := NewLearner(Config{Seed: 5, BatchSize: 4})
	if err != nil {
		t.Fatalf("new learner: %v", err)
	}
	if l.Ready() {
		t.Fatal("learner ready with empty memory")
	}
	if _, err := l.TrainStep(); err == nil {
		t.Fatal("expected error training on empty memory")
	}
}

func TestTrainStepMovesTargetTowardOnline(t *testing.T) {
	l, err := NewLearner(Config{Seed: 6, BatchSize: 4, ReplayCapacity: 64, Tau: 0.1})
	if err != nil {
		t.Fatalf("new learner: %v", err)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 16; i++ {
		l.Observe(replay.Transition{
			State:     randomState(rng),
			Action:    i % ActionCount,
			Reward:    rng.Float64()*10 - 5,
			NextState: randomState(rng),
			Done:      i%5 == 0,
		})
	}
	if !l.Ready() {
		t.Fatal("learner not ready with a full batch stored")
	}

	targetBefore := l.Target().Params()
	loss, err := l.TrainStep()
	if err != nil {
		t.Fatalf("train step: %v", err)
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		t.Fatalf("non-finite loss: %f", loss)
	}

	onlineAfter := l.Online().Params()
	targetAfter := l.Target().Params()
	moved := false
	for li := range targetAfter.Layers {
		for wi := range targetAfter.Layers[li].Weights {
			prev := targetBefore.Layers[li].Weights[wi]
			onl := onlineAfter.Layers[li].Weights[wi]
			got := targetAfter.Layers[li].Weights[wi]

			lo, hi := prev, onl
			if lo > hi {
				lo, hi = hi, lo
			}
			if got < lo-1e-9 || got > hi+1e-9 {
				t.Fatalf("target weight outside blend interval: prev=%f online=%f got=%f", prev, onl, got)
			}
			if got != prev {
				moved = true
			}
		}
	}
	if !moved {
		t.Fatal("target network did not move after a gradient step")
	}
}

func TestLearnerConvergesOnBanditProblem(t *testing.T) {
	l, err := NewLearner(Config{
		Seed:         8,
		BatchSize:    8,
		LearningRate: 0.005,
		Tau:          0.05,
	})
	if err != nil {
		t.Fatalf("new learner: %v", err)
	}

	// One-step episodes from a single state: action 3 pays +10, the rest
	// pay -5. The greedy policy should settle on action 3.
	state := []float64{1, 0, 0, 0, 0}
	const best = 3
	for a := 0; a < ActionCount; a++ {
		reward := -5.0
		if a == best {
			reward = 10.0
		}
		for rep := 0; rep < 3; rep++ {
			l.Observe(replay.Transition{State: state, Action: a, Reward: reward, NextState: state, Done: true})
		}
	}

	for i := 0; i < 400; i++ {
		if _, err := l.TrainStep(); err != nil {
			t.Fatalf("train step %d: %v", i, err)
		}
	}

	got, err := l.GreedyAction(state)
	if err != nil {
		t.Fatalf("greedy action: %v", err)
	}
	if got != best {
		q, _ := l.Online().Forward(state)
		t.Fatalf("greedy action after training: got %d want %d (q=%v)", got, best, q)
	}
}

func TestCheckpointRestoreRoundTrip(t *testing.T) {
	src, err := NewLearner(Config{Seed: 9})
	if err != nil {
		t.Fatalf("new learner: %v", err)
	}
	rng := rand.New(rand.NewSource(10))
	for i := 0; i < 40; i++ {
		src.Observe(replay.Transition{
			State:     randomState(rng),
			Action:    rng.Intn(ActionCount),
			Reward:    rng.Float64(),
			NextState: randomState(rng),
		})
	}
	for i := 0; i < 5; i++ {
		if _, err := src.TrainStep(); err != nil {
			t.Fatalf("train step: %v", err)
		}
	}
	src.DecayEpsilon()

	cp := src.Checkpoint(42, 123.5)
	if cp.Episode != 42 || cp.Reward != 123.5 {
		t.Fatalf("checkpoint metadata: %+v", cp)
	}

	dst, err := NewLearner(Config{Seed: 11})
	if err != nil {
		t.Fatalf("new learner: %v", err)
	}
	if err := dst.Restore(cp); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if dst.Epsilon() != src.Epsilon() {
		t.Fatalf("epsilon not restored: got %f want %f", dst.Epsilon(), src.Epsilon())
	}

	state := randomState(rng)
	wantQ, err := src.Online().Forward(state)
	if err != nil {
		t.Fatalf("forward src: %v", err)
	}
	gotQ, err := dst.Online().Forward(state)
	if err != nil {
		t.Fatalf("forward dst: %v", err)
	}
	for i := range wantQ {
		if math.Abs(wantQ[i]-gotQ[i]) > 1e-12 {
			t.Fatalf("restored q[%d]: got %f want %f", i, gotQ[i], wantQ[i])
		}
	}
}
