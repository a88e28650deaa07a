// Package replay implements the fixed-capacity transition memory the learner
// samples uniformly from.
package replay

import (
	"fmt"
	"math/rand"
)

// Transition is one environment step: (state, action, reward, next state, done).
type Transition struct {
	State     []float64
	Action    int
	Reward    float64
	NextState []float64
	Done      bool
}

// Buffer is a ring over five parallel fields. Insertion overwrites the oldest
// entry once the buffer is full; sampling draws distinct populated indices.
type Buffer struct {
	states     [][]float64
	actions    []int
	rewards    []float64
	nextStates [][]float64
	dones      []bool

	capacity int
	cursor   int
	size     int
}

func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be > 0, got %d", capacity)
	}
	return &Buffer{
		states:     make([][]float64, capacity),
		actions:    make([]int, capacity),
		rewards:    make([]float64, capacity),
		nextStates: make([][]float64, capacity),
		dones:      make([]bool, capacity),
		capacity:   capacity,
	}, nil
}

// Push appends a transition, overwriting the oldest entry when full. The
// state vectors are copied so callers may reuse their slices.
func (b *Buffer) Push(t Transition) {
	b.states[b.cursor] = append([]float64(nil), t.State...)
	b.actions[b.cursor] = t.Action
	b.rewards[b.cursor] = t.Reward
	b.nextStates[b.cursor] = append([]float64(nil), t.NextState...)
	b.dones[b.cursor] = t.Done

	b.cursor = (b.cursor + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Sample draws batch distinct transitions uniformly from the populated slots.
func (b *Buffer) Sample(rng *rand.Rand, batch int) ([]Transition, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", batch)
	}
	if batch > b.size {
		return nil, fmt.Errorf("batch size %d exceeds stored transitions %d", batch, b.size)
	}

	// Rejection sampling keeps the draw O(batch) instead of permuting the
	// whole buffer; batch is tiny relative to a warm buffer.
	seen := make(map[int]struct{}, batch)
	out := make([]Transition, 0, batch)
	for len(out) < batch {
		idx := rng.Intn(b.size)
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, Transition{
			State:     b.states[idx],
			Action:    b.actions[idx],
			Reward:    b.rewards[idx],
			NextState: b.nextStates[idx],
			Done:      b.dones[idx],
		})
	}
	return out, nil
}

// At returns the transition stored at slot idx in insertion-ring order.
func (b *Buffer) At(idx int) (Transition, bool) {
	if idx < 0 || idx >= b.size {
		return Transition{}, false
	}
	return Transition{
		State:     b.states[idx],
		Action:    b.actions[idx],
		Reward:    b.rewards[idx],
		NextState: b.nextStates[idx],
		Done:      b.dones[idx],
	}, true
}

// Len returns the number of stored transitions.
func (b *Buffer) Len() int { return b.size }

// Cap returns the configured capacity.
func (b *Buffer) Cap() int { return b.capacity }
