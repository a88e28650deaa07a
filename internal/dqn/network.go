// Package dqn implements the dueling value network and the double-DQN
// learner that trains it against the engagement environment.
package dqn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"redsim/internal/model"
)

const (
	StateSize   = model.StateSize
	ActionCount = model.ActionCount
)

// Trunk and head widths. The shared trunk narrows before splitting into the
// scalar value stream and the per-action advantage stream.
const (
	trunkWidth   = 128
	featureWidth = 64
	headWidth    = 32
)

// ErrNonFiniteLoss is returned when a training batch produces a NaN or Inf
// loss; the pending gradient update is discarded in that case.
var ErrNonFiniteLoss = errors.New("non-finite training loss")

// denseLayer is one fully-connected layer: an out-by-in weight matrix, a bias
// vector, and the gradient/Adam-moment buffers that drive its updates.
type denseLayer struct {
	name    string
	weights *mat.Dense
	biases  *mat.VecDense

	gradW *mat.Dense
	gradB *mat.VecDense

	momentW *mat.Dense
	velW    *mat.Dense
	momentB *mat.VecDense
	velB    *mat.VecDense
}

func newDenseLayer(name string, in, out int, rng *rand.Rand) *denseLayer {
	weights := mat.NewDense(out, in, nil)
	// He initialization keeps ReLU activations from collapsing.
	scale := math.Sqrt(2.0 / float64(in))
	for i := 0; i < out; i++ {
		for j := 0; j < in; j++ {
			weights.Set(i, j, rng.NormFloat64()*scale)
		}
	}
	return &denseLayer{
		name:    name,
		weights: weights,
		biases:  mat.NewVecDense(out, nil),
		gradW:   mat.NewDense(out, in, nil),
		gradB:   mat.NewVecDense(out, nil),
		momentW: mat.NewDense(out, in, nil),
		velW:    mat.NewDense(out, in, nil),
		momentB: mat.NewVecDense(out, nil),
		velB:    mat.NewVecDense(out, nil),
	}
}

func (l *denseLayer) forward(x *mat.VecDense) *mat.VecDense {
	out, _ := l.weights.Dims()
	z := mat.NewVecDense(out, nil)
	z.MulVec(l.weights, x)
	z.AddVec(z, l.biases)
	return z
}

// backward accumulates parameter gradients for input x and upstream gradient
// dz, returning the gradient with respect to x.
func (l *denseLayer) backward(x, dz *mat.VecDense) *mat.VecDense {
	var outer mat.Dense
	outer.Outer(1, dz, x)
	l.gradW.Add(l.gradW, &outer)
	l.gradB.AddVec(l.gradB, dz)

	_, in := l.weights.Dims()
	dx := mat.NewVecDense(in, nil)
	dx.MulVec(l.weights.T(), dz)
	return dx
}

func (l *denseLayer) zeroGrad() {
	l.gradW.Zero()
	l.gradB.Zero()
}

func (l *denseLayer) adamStep(lr float64, step int) {
	const (
		beta1 = 0.9
		beta2 = 0.999
		eps   = 1e-8
	)
	correct1 := 1 - math.Pow(beta1, float64(step))
	correct2 := 1 - math.Pow(beta2, float64(step))

	rows, cols := l.weights.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			g := l.gradW.At(i, j)
			m := beta1*l.momentW.At(i, j) + (1-beta1)*g
			v := beta2*l.velW.At(i, j) + (1-beta2)*g*g
			l.momentW.Set(i, j, m)
			l.velW.Set(i, j, v)
			l.weights.Set(i, j, l.weights.At(i, j)-lr*(m/correct1)/(math.Sqrt(v/correct2)+eps))
		}
	}
	for i := 0; i < l.biases.Len(); i++ {
		g := l.gradB.AtVec(i)
		m := beta1*l.momentB.AtVec(i) + (1-beta1)*g
		v := beta2*l.velB.AtVec(i) + (1-beta2)*g*g
		l.momentB.SetVec(i, m)
		l.velB.SetVec(i, v)
		l.biases.SetVec(i, l.biases.AtVec(i)-lr*(m/correct1)/(math.Sqrt(v/correct2)+eps))
	}
}

func (l *denseLayer) resetOptimizerState() {
	l.momentW.Zero()
	l.velW.Zero()
	l.momentB.Zero()
	l.velB.Zero()
}

// Network is the dueling Q-network: a shared trunk of narrowing dense layers
// feeding a scalar value head and a per-action advantage head, combined as
// Q(s,a) = V(s) + (A(s,a) - mean_a A(s,a)).
type Network struct {
	trunk1      *denseLayer
	trunk2      *denseLayer
	valueHidden *denseLayer
	valueOut    *denseLayer
	advHidden   *denseLayer
	advOut      *denseLayer

	adamStep int
}

func NewNetwork(rng *rand.Rand) *Network {
	return &Network{
		trunk1:      newDenseLayer("trunk1", StateSize, trunkWidth, rng),
		trunk2:      newDenseLayer("trunk2", trunkWidth, featureWidth, rng),
		valueHidden: newDenseLayer("value_hidden", featureWidth, headWidth, rng),
		valueOut:    newDenseLayer("value_out", headWidth, 1, rng),
		advHidden:   newDenseLayer("adv_hidden", featureWidth, headWidth, rng),
		advOut:      newDenseLayer("adv_out", headWidth, ActionCount, rng),
	}
}

func (n *Network) layers() []*denseLayer {
	return []*denseLayer{n.trunk1, n.trunk2, n.valueHidden, n.valueOut, n.advHidden, n.advOut}
}

type forwardCache struct {
	x *mat.VecDense

	z1, h1 *mat.VecDense
	z2, h2 *mat.VecDense

	zv1, hv1 *mat.VecDense
	zv       *mat.VecDense

	za1, ha1 *mat.VecDense
	za       *mat.VecDense

	value float64
	q     []float64
}

func reluVec(z *mat.VecDense) *mat.VecDense {
	h := mat.NewVecDense(z.Len(), nil)
	for i := 0; i < z.Len(); i++ {
		if v := z.AtVec(i); v > 0 {
			h.SetVec(i, v)
		}
	}
	return h
}

// reluBackward masks the upstream gradient dh by the pre-activation sign.
func reluBackward(z, dh *mat.VecDense) *mat.VecDense {
	dz := mat.NewVecDense(z.Len(), nil)
	for i := 0; i < z.Len(); i++ {
		if z.AtVec(i) > 0 {
			dz.SetVec(i, dh.AtVec(i))
		}
	}
	return dz
}

func (n *Network) forwardPass(state []float64) *forwardCache {
	c := &forwardCache{x: mat.NewVecDense(len(state), append([]float64(nil), state...))}

	c.z1 = n.trunk1.forward(c.x)
	c.h1 = reluVec(c.z1)
	c.z2 = n.trunk2.forward(c.h1)
	c.h2 = reluVec(c.z2)

	c.zv1 = n.valueHidden.forward(c.h2)
	c.hv1 = reluVec(c.zv1)
	c.zv = n.valueOut.forward(c.hv1)
	c.value = c.zv.AtVec(0)

	c.za1 = n.advHidden.forward(c.h2)
	c.ha1 = reluVec(c.za1)
	c.za = n.advOut.forward(c.ha1)

	meanAdv := 0.0
	for i := 0; i < ActionCount; i++ {
		meanAdv += c.za.AtVec(i)
	}
	meanAdv /= ActionCount

	c.q = make([]float64, ActionCount)
	for i := 0; i < ActionCount; i++ {
		c.q[i] = c.value + c.za.AtVec(i) - meanAdv
	}
	return c
}

func (n *Network) checkState(state []float64) error {
	if len(state) != StateSize {
		return fmt.Errorf("state length: got %d want %d", len(state), StateSize)
	}
	return nil
}

// Forward returns the Q-value estimate for every action.
func (n *Network) Forward(state []float64) ([]float64, error) {
	if err := n.checkState(state); err != nil {
		return nil, err
	}
	return n.forwardPass(state).q, nil
}

// Value returns the state-value stream output V(s).
func (n *Network) Value(state []float64) (float64, error) {
	if err := n.checkState(state); err != nil {
		return 0, err
	}
	return n.forwardPass(state).value, nil
}

// Advantages returns the raw advantage stream output A(s, ·).
func (n *Network) Advantages(state []float64) ([]float64, error) {
	if err := n.checkState(state); err != nil {
		return nil, err
	}
	c := n.forwardPass(state)
	adv := make([]float64, ActionCount)
	for i := 0; i < ActionCount; i++ {
		adv[i] = c.za.AtVec(i)
	}
	return adv, nil
}

// TrainBatch runs one gradient step minimizing the mean squared error between
// the Q-values of the taken actions and their bootstrapped targets. A
// non-finite loss aborts the step without touching the parameters.
func (n *Network) TrainBatch(states [][]float64, actions []int, targets []float64, lr float64) (float64, error) {
	if len(states) == 0 || len(states) != len(actions) || len(states) != len(targets) {
		return 0, fmt.Errorf("batch shape mismatch: states=%d actions=%d targets=%d", len(states), len(actions), len(targets))
	}

	for _, l := range n.layers() {
		l.zeroGrad()
	}

	batch := float64(len(states))
	loss := 0.0
	for i, state := range states {
		if err := n.checkState(state); err != nil {
			return 0, err
		}
		action := actions[i]
		if action < 0 || action >= ActionCount {
			return 0, fmt.Errorf("action out of range: %d", action)
		}

		c := n.forwardPass(state)
		diff := c.q[action] - targets[i]
		loss += diff * diff
		g := 2 * diff / batch

		// Q(s,a) = V + A_a - mean(A): the value head sees the full
		// gradient, the advantage head sees it centered.
		dValue := g
		dAdv := mat.NewVecDense(ActionCount, nil)
		for j := 0; j < ActionCount; j++ {
			d := -g / ActionCount
			if j == action {
				d += g
			}
			dAdv.SetVec(j, d)
		}

		dzv := mat.NewVecDense(1, []float64{dValue})
		dhv1 := n.valueOut.backward(c.hv1, dzv)
		dzv1 := reluBackward(c.zv1, dhv1)
		dh2Value := n.valueHidden.backward(c.h2, dzv1)

		dha1 := n.advOut.backward(c.ha1, dAdv)
		dza1 := reluBackward(c.za1, dha1)
		dh2Adv := n.advHidden.backward(c.h2, dza1)

		dh2 := mat.NewVecDense(featureWidth, nil)
		dh2.AddVec(dh2Value, dh2Adv)
		dz2 := reluBackward(c.z2, dh2)
		dh1 := n.trunk2.backward(c.h1, dz2)
		dz1 := reluBackward(c.z1, dh1)
		n.trunk1.backward(c.x, dz1)
	}
	loss /= batch

	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, ErrNonFiniteLoss
	}

	n.adamStep++
	for _, l := range n.layers() {
		l.adamStep(lr, n.adamStep)
	}
	return loss, nil
}

// SoftUpdateFrom blends every parameter toward the online network's value:
// theta_target = (1-tau)*theta_target + tau*theta_online.
func (n *Network) SoftUpdateFrom(online *Network, tau float64) error {
	if tau <= 0 || tau >= 1 {
		return fmt.Errorf("tau must be in (0, 1), got %f", tau)
	}
	targetLayers := n.layers()
	onlineLayers := online.layers()
	for idx, tl := range targetLayers {
		ol := onlineLayers[idx]
		rows, cols := tl.weights.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				tl.weights.Set(i, j, (1-tau)*tl.weights.At(i, j)+tau*ol.weights.At(i, j))
			}
		}
		for i := 0; i < tl.biases.Len(); i++ {
			tl.biases.SetVec(i, (1-tau)*tl.biases.AtVec(i)+tau*ol.biases.AtVec(i))
		}
	}
	return nil
}

// Clone returns a deep copy with identical parameters and fresh optimizer
// state.
func (n *Network) Clone() *Network {
	clone := &Network{}
	src := n.layers()
	dst := make([]*denseLayer, len(src))
	for i, l := range src {
		rows, cols := l.weights.Dims()
		copied := &denseLayer{
			name:    l.name,
			weights: mat.DenseCopyOf(l.weights),
			biases:  mat.VecDenseCopyOf(l.biases),
			gradW:   mat.NewDense(rows, cols, nil),
			gradB:   mat.NewVecDense(rows, nil),
			momentW: mat.NewDense(rows, cols, nil),
			velW:    mat.NewDense(rows, cols, nil),
			momentB: mat.NewVecDense(rows, nil),
			velB:    mat.NewVecDense(rows, nil),
		}
		dst[i] = copied
	}
	clone.trunk1, clone.trunk2 = dst[0], dst[1]
	clone.valueHidden, clone.valueOut = dst[2], dst[3]
	clone.advHidden, clone.advOut = dst[4], dst[5]
	return clone
}

// Params exports the network parameters for checkpointing.
func (n *Network) Params() model.NetworkParams {
	var out model.NetworkParams
	for _, l := range n.layers() {
		rows, cols := l.weights.Dims()
		lp := model.LayerParams{
			Name:    l.name,
			Rows:    rows,
			Cols:    cols,
			Weights: make([]float64, 0, rows*cols),
			Biases:  make([]float64, rows),
		}
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				lp.Weights = append(lp.Weights, l.weights.At(i, j))
			}
			lp.Biases[i] = l.biases.AtVec(i)
		}
		out.Layers = append(out.Layers, lp)
	}
	return out
}

// SetParams restores exported parameters, rejecting shape mismatches. The
// optimizer moments are reset.
func (n *Network) SetParams(p model.NetworkParams) error {
	layers := n.layers()
	if len(p.Layers) != len(layers) {
		return fmt.Errorf("layer count: got %d want %d", len(p.Layers), len(layers))
	}
	for idx, lp := range p.Layers {
		l := layers[idx]
		rows, cols := l.weights.Dims()
		if lp.Rows != rows || lp.Cols != cols {
			return fmt.Errorf("layer %s shape: got %dx%d want %dx%d", l.name, lp.Rows, lp.Cols, rows, cols)
		}
		if len(lp.Weights) != rows*cols || len(lp.Biases) != rows {
			return fmt.Errorf("layer %s payload size: weights=%d biases=%d", l.name, len(lp.Weights), len(lp.Biases))
		}
	}
	for idx, lp := range p.Layers {
		l := layers[idx]
		rows, cols := l.weights.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				l.weights.Set(i, j, lp.Weights[i*cols+j])
			}
			l.biases.SetVec(i, lp.Biases[i])
		}
		l.resetOptimizerState()
	}
	n.adamStep = 0
	return nil
}
