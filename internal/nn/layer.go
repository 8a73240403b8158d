package nn

import (
	"context"
	"errors"
	"fmt"
	"math"

	"neurofault/internal/fault"
)

var (
	ErrShape      = errors.New("layer shape mismatch")
	ErrInputWidth = errors.New("input width mismatch")
)

// Layer is one pipeline stage: a group of LIF neurons with excitatory input
// weights and inhibitory lateral weights. A layer is driven by a single
// goroutine at a time.
type Layer struct {
	neurons      []LIFNeuron
	weights      [][]float64
	intraWeights [][]float64
	prevSpikes   []uint8

	faults     fault.Config
	injections []fault.Injection

	// as-built state restored by Init
	baseNeurons      []LIFNeuron
	baseWeights      [][]float64
	baseIntraWeights [][]float64
}

func NewLayer(neurons []LIFNeuron, weights, intraWeights [][]float64, faults fault.Config) (*Layer, error) {
	n := len(neurons)
	if n == 0 {
		return nil, fmt.Errorf("%w: layer has no neurons", ErrShape)
	}
	if len(weights) != n {
		return nil, fmt.Errorf("%w: weight rows got=%d want=%d", ErrShape, len(weights), n)
	}
	cols := len(weights[0])
	for i, row := range weights {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: weight row %d has %d columns, want %d", ErrShape, i, len(row), cols)
		}
	}
	if len(intraWeights) != n {
		return nil, fmt.Errorf("%w: intra weight rows got=%d want=%d", ErrShape, len(intraWeights), n)
	}
	for i, row := range intraWeights {
		if len(row) != n {
			return nil, fmt.Errorf("%w: intra weight row %d has %d columns, want %d", ErrShape, i, len(row), n)
		}
	}

	l := &Layer{
		baseNeurons:      append([]LIFNeuron(nil), neurons...),
		baseWeights:      copyMatrix(weights),
		baseIntraWeights: copyMatrix(intraWeights),
		faults:           faults.Clone(),
	}
	l.Init()
	return l, nil
}

func (l *Layer) NumNeurons() int { return len(l.baseNeurons) }

// InputWidth is the number of spike lines the layer consumes.
func (l *Layer) InputWidth() int { return len(l.baseWeights[0]) }

func (l *Layer) Neurons() []LIFNeuron { return append([]LIFNeuron(nil), l.neurons...) }

func (l *Layer) Weights() [][]float64 { return copyMatrix(l.weights) }

func (l *Layer) IntraWeights() [][]float64 { return copyMatrix(l.intraWeights) }

func (l *Layer) PrevSpikes() []uint8 { return append([]uint8(nil), l.prevSpikes...) }

func (l *Layer) FaultConfig() fault.Config { return l.faults.Clone() }

// Init restores the as-built neurons and matrices, clears the spike history
// and re-arms every transient fault.
func (l *Layer) Init() {
	l.neurons = append(l.neurons[:0], l.baseNeurons...)
	for i := range l.neurons {
		l.neurons[i].Init()
	}
	l.weights = copyMatrix(l.baseWeights)
	l.intraWeights = copyMatrix(l.baseIntraWeights)
	l.prevSpikes = make([]uint8, len(l.baseNeurons))
	l.injections = l.faults.Injections(len(l.baseNeurons))
}

// GenerateFaults applies every configured injection to the live state.
func (l *Layer) GenerateFaults() error {
	for i := range l.injections {
		inj := &l.injections[i]
		if l.faults.Transient == fault.TransientEveryInstant {
			inj.Failure.Reset()
		}
		if err := l.inject(inj); err != nil {
			return err
		}
	}
	return nil
}

func (l *Layer) inject(inj *fault.Injection) error {
	addr := inj.Address
	f := &inj.Failure

	switch addr.Component {
	case fault.ComponentWeights:
		if err := checkCell(l.weights, addr); err != nil {
			return err
		}
		l.weights[addr.Row][addr.Col] = fault.ApplyFloat(f, l.weights[addr.Row][addr.Col])
		return nil
	case fault.ComponentIntraWeights:
		if err := checkCell(l.intraWeights, addr); err != nil {
			return err
		}
		l.intraWeights[addr.Row][addr.Col] = fault.ApplyFloat(f, l.intraWeights[addr.Row][addr.Col])
		return nil
	case fault.ComponentNone:
		return nil
	}

	if addr.Neuron < 0 || addr.Neuron >= len(l.neurons) {
		return fmt.Errorf("%w: %s neuron=%d neurons=%d", fault.ErrAddressOutOfRange, addr.Component, addr.Neuron, len(l.neurons))
	}
	n := &l.neurons[addr.Neuron]

	switch addr.Component {
	case fault.ComponentVTh:
		n.VTh = fault.ApplyFloat(f, n.VTh)
	case fault.ComponentVRest:
		n.VRest = fault.ApplyFloat(f, n.VRest)
	case fault.ComponentVReset:
		n.VReset = fault.ApplyFloat(f, n.VReset)
	case fault.ComponentTau:
		n.Tau = fault.ApplyFloat(f, n.Tau)
	case fault.ComponentVMem:
		n.VMem = fault.ApplyFloat(f, n.VMem)
	case fault.ComponentDt:
		n.Dt = fault.ApplyFloat(f, n.Dt)
	case fault.ComponentTs:
		n.Ts = fault.ApplyBitFault(f, n.Ts)
	case fault.ComponentPrevSpikes:
		l.prevSpikes[addr.Neuron] = fault.ApplySpike(f, l.prevSpikes[addr.Neuron])
	default:
		return fmt.Errorf("%w: %s", fault.ErrUnknownComponent, addr.Component)
	}
	return nil
}

// BitsAt returns the current 64-bit pattern held at addr: IEEE-754 bits for
// floating attributes, raw bits for ts and the spike value for PrevSpikes.
func (l *Layer) BitsAt(addr fault.Address) (uint64, error) {
	switch addr.Component {
	case fault.ComponentWeights:
		if err := checkCell(l.weights, addr); err != nil {
			return 0, err
		}
		return math.Float64bits(l.weights[addr.Row][addr.Col]), nil
	case fault.ComponentIntraWeights:
		if err := checkCell(l.intraWeights, addr); err != nil {
			return 0, err
		}
		return math.Float64bits(l.intraWeights[addr.Row][addr.Col]), nil
	}
	if addr.Neuron < 0 || addr.Neuron >= len(l.neurons) {
		return 0, fmt.Errorf("%w: %s neuron=%d neurons=%d", fault.ErrAddressOutOfRange, addr.Component, addr.Neuron, len(l.neurons))
	}
	n := l.neurons[addr.Neuron]
	switch addr.Component {
	case fault.ComponentVTh:
		return math.Float64bits(n.VTh), nil
	case fault.ComponentVRest:
		return math.Float64bits(n.VRest), nil
	case fault.ComponentVReset:
		return math.Float64bits(n.VReset), nil
	case fault.ComponentTau:
		return math.Float64bits(n.Tau), nil
	case fault.ComponentVMem:
		return math.Float64bits(n.VMem), nil
	case fault.ComponentDt:
		return math.Float64bits(n.Dt), nil
	case fault.ComponentTs:
		return n.Ts, nil
	case fault.ComponentPrevSpikes:
		return uint64(l.prevSpikes[addr.Neuron]), nil
	default:
		return 0, fmt.Errorf("%w: %s", fault.ErrUnknownComponent, addr.Component)
	}
}

func checkCell(matrix [][]float64, addr fault.Address) error {
	if addr.Row < 0 || addr.Row >= len(matrix) || addr.Col < 0 || addr.Col >= len(matrix[addr.Row]) {
		return fmt.Errorf("%w: %s row=%d col=%d", fault.ErrAddressOutOfRange, addr.Component, addr.Row, addr.Col)
	}
	return nil
}

// Step processes one instant: faults are injected first, then every neuron
// integrates its excitatory input and the lateral inhibition from the
// previous instant's spikes.
func (l *Layer) Step(t uint64, in []uint8) ([]uint8, error) {
	if len(in) != l.InputWidth() {
		return nil, fmt.Errorf("%w: got=%d want=%d", ErrInputWidth, len(in), l.InputWidth())
	}
	if err := l.GenerateFaults(); err != nil {
		return nil, err
	}

	out := make([]uint8, len(l.neurons))
	for i := range l.neurons {
		extra := 0.0
		for k, spike := range in {
			if spike != 0 {
				extra += l.weights[i][k]
			}
		}
		intra := 0.0
		for k, spike := range l.prevSpikes {
			if k != i && spike != 0 {
				intra += l.intraWeights[i][k]
			}
		}
		out[i] = l.neurons[i].Update(t, extra+intra)
	}
	copy(l.prevSpikes, out)
	return out, nil
}

// Process runs the layer as a pipeline stage. It re-initialises the layer,
// consumes in until it is closed and forwards only instants with at least one
// spike. out is always closed on return so the next stage terminates too.
func (l *Layer) Process(ctx context.Context, in <-chan SpikeEvent, out chan<- SpikeEvent) error {
	defer close(out)
	l.Init()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			spikes, err := l.Step(ev.Ts, ev.Spikes)
			if err != nil {
				return fmt.Errorf("t=%d: %w", ev.Ts, err)
			}
			if !anySpike(spikes) {
				continue
			}
			select {
			case out <- SpikeEvent{Ts: ev.Ts, Spikes: spikes}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Clone returns an independent copy of the layer in its as-built state.
func (l *Layer) Clone() *Layer {
	c := &Layer{
		baseNeurons:      append([]LIFNeuron(nil), l.baseNeurons...),
		baseWeights:      copyMatrix(l.baseWeights),
		baseIntraWeights: copyMatrix(l.baseIntraWeights),
		faults:           l.faults.Clone(),
	}
	c.Init()
	return c
}

// WithFaults returns a clone of the layer carrying a different fault
// configuration.
func (l *Layer) WithFaults(faults fault.Config) *Layer {
	c := l.Clone()
	c.faults = faults.Clone()
	c.Init()
	return c
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
