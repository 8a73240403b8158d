// Package network wires layers into a staged pipeline: one goroutine per
// layer, connected by channels, fed by an encoder and drained by a decoder.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"neurofault/internal/fault"
	"neurofault/internal/logging"
	"neurofault/internal/nn"
)

var (
	ErrRaggedInput = errors.New("input rows have different durations")
	ErrInputWidth  = errors.New("input width mismatch")
	ErrSpikeValue  = errors.New("input spike must be 0 or 1")
	ErrBusy        = errors.New("network is already processing")
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "idle"
	}
}

// Network owns an ordered set of layers. During Process every layer is
// handed to exactly one worker; the run lock only rejects overlapping runs.
type Network struct {
	layers []*nn.Layer
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

func New(layers []*nn.Layer) (*Network, error) {
	if len(layers) == 0 {
		return nil, ErrNoLayers
	}
	for i := 1; i < len(layers); i++ {
		if layers[i].InputWidth() != layers[i-1].NumNeurons() {
			return nil, fmt.Errorf("%w %d: input width got=%d want=%d", ErrInvalidLayer, i, layers[i].InputWidth(), layers[i-1].NumNeurons())
		}
	}
	return &Network{
		layers: layers,
		logger: logging.Discard(),
	}, nil
}

// SetLogger routes pipeline tracing to logger.
func (n *Network) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.Discard()
	}
	n.logger = logger
}

func (n *Network) NumLayers() int { return len(n.layers) }

func (n *Network) InputWidth() int { return n.layers[0].InputWidth() }

func (n *Network) OutputWidth() int { return n.layers[len(n.layers)-1].NumNeurons() }

// Layers exposes the live layers. They must not be touched while Process runs.
func (n *Network) Layers() []*nn.Layer {
	return append([]*nn.Layer(nil), n.layers...)
}

func (n *Network) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Clone deep-copies every layer so the copy can run concurrently with n.
func (n *Network) Clone() *Network {
	layers := make([]*nn.Layer, len(n.layers))
	for i, l := range n.layers {
		layers[i] = l.Clone()
	}
	return &Network{layers: layers, logger: n.logger}
}

// WithFaults returns a clone whose layer at index carries faults.
func (n *Network) WithFaults(index int, faults fault.Config) (*Network, error) {
	if index < 0 || index >= len(n.layers) {
		return nil, fmt.Errorf("layer index %d out of range [0,%d)", index, len(n.layers))
	}
	layers := make([]*nn.Layer, len(n.layers))
	for i, l := range n.layers {
		if i == index {
			layers[i] = l.WithFaults(faults)
			continue
		}
		layers[i] = l.Clone()
	}
	return &Network{layers: layers, logger: n.logger}, nil
}

// Process runs input (rows = input lines, columns = instants) through every
// layer and returns the last layer's spikes with the same duration.
func (n *Network) Process(ctx context.Context, input [][]uint8) ([][]uint8, error) {
	duration, err := Duration(input)
	if err != nil {
		return nil, err
	}
	events, err := Encode(input, n.InputWidth(), duration)
	if err != nil {
		return nil, err
	}

	out, err := n.ProcessEvents(ctx, events)
	if err != nil {
		return nil, err
	}
	return Decode(out, n.OutputWidth(), duration), nil
}

// ProcessEvents streams events through the pipeline and collects the last
// stage's output in arrival order.
func (n *Network) ProcessEvents(ctx context.Context, events []nn.SpikeEvent) ([]nn.SpikeEvent, error) {
	if err := n.transition(StateIdle, StateRunning); err != nil {
		return nil, err
	}
	defer n.setState(StateIdle)

	// Buffers hold every event a stage could emit, so a failed stage never
	// blocks the stage before it.
	capacity := len(events)
	input := make(chan nn.SpikeEvent, capacity)

	var (
		wg   sync.WaitGroup
		errs = make([]error, len(n.layers))
		prev = (<-chan nn.SpikeEvent)(input)
	)
	for i, layer := range n.layers {
		next := make(chan nn.SpikeEvent, capacity)
		wg.Add(1)
		go func(i int, layer *nn.Layer, in <-chan nn.SpikeEvent, out chan<- nn.SpikeEvent) {
			defer wg.Done()
			if err := layer.Process(ctx, in, out); err != nil {
				errs[i] = fmt.Errorf("layer %d: %w", i, err)
			}
		}(i, layer, prev, next)
		prev = next
	}

	sent := 0
	for _, ev := range events {
		if !ev.HasSpike() {
			continue
		}
		input <- ev
		sent++
	}
	close(input)
	n.setState(StateDraining)
	n.logger.Log(ctx, logging.LevelTrace, "pipeline input closed", "events", sent, "layers", len(n.layers))

	var output []nn.SpikeEvent
	for ev := range prev {
		output = append(output, ev)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	n.logger.Log(ctx, logging.LevelTrace, "pipeline drained", "output_events", len(output))
	return output, nil
}

func (n *Network) transition(from, to State) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != from {
		return fmt.Errorf("%w: state=%s", ErrBusy, n.state)
	}
	n.state = to
	return nil
}

func (n *Network) setState(s State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

// Duration checks that every row has the same length and returns it.
func Duration(input [][]uint8) (int, error) {
	if len(input) == 0 {
		return 0, nil
	}
	duration := len(input[0])
	for i, row := range input {
		if len(row) != duration {
			return 0, fmt.Errorf("%w: row %d got=%d want=%d", ErrRaggedInput, i, len(row), duration)
		}
	}
	return duration, nil
}

// Encode turns a spike matrix into one event per column.
func Encode(input [][]uint8, width, duration int) ([]nn.SpikeEvent, error) {
	if len(input) != width {
		return nil, fmt.Errorf("%w: rows got=%d want=%d", ErrInputWidth, len(input), width)
	}
	events := make([]nn.SpikeEvent, 0, duration)
	for t := 0; t < duration; t++ {
		spikes := make([]uint8, width)
		for i, row := range input {
			if row[t] > 1 {
				return nil, fmt.Errorf("%w: line=%d t=%d value=%d", ErrSpikeValue, i, t, row[t])
			}
			spikes[i] = row[t]
		}
		events = append(events, nn.SpikeEvent{Ts: uint64(t), Spikes: spikes})
	}
	return events, nil
}

// Decode scatters events into a zero width×duration matrix.
func Decode(events []nn.SpikeEvent, width, duration int) [][]uint8 {
	out := make([][]uint8, width)
	for i := range out {
		out[i] = make([]uint8, duration)
	}
	for _, ev := range events {
		if ev.Ts >= uint64(duration) {
			continue
		}
		for i, s := range ev.Spikes {
			if i < width {
				out[i][ev.Ts] = s
			}
		}
	}
	return out
}
