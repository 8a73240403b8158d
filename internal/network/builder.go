package network

import (
	"errors"
	"fmt"
	"math"

	"neurofault/internal/fault"
	"neurofault/internal/nn"
)

var (
	ErrNoLayers     = errors.New("network must have at least one layer")
	ErrInvalidLayer = errors.New("invalid layer")
)

type layerParams struct {
	neurons      []nn.LIFNeuron
	weights      [][]float64
	intraWeights [][]float64
	faults       fault.Config
}

// Builder accumulates validated layers. The first validation failure sticks
// and is reported by Build; later AddLayer calls are ignored.
type Builder struct {
	inputWidth int
	layers     []layerParams
	err        error
}

func NewBuilder(inputWidth int) *Builder {
	return &Builder{inputWidth: inputWidth}
}

func (b *Builder) AddLayer(neurons []nn.LIFNeuron, weights, intraWeights [][]float64, faults fault.Config) *Builder {
	if b.err != nil {
		return b
	}
	if err := b.checkIntraWeights(len(neurons), intraWeights); err != nil {
		b.err = fmt.Errorf("%w %d: %v", ErrInvalidLayer, len(b.layers), err)
		return b
	}
	if err := b.checkWeights(len(neurons), weights); err != nil {
		b.err = fmt.Errorf("%w %d: %v", ErrInvalidLayer, len(b.layers), err)
		return b
	}
	b.layers = append(b.layers, layerParams{
		neurons:      append([]nn.LIFNeuron(nil), neurons...),
		weights:      copyMatrix(weights),
		intraWeights: copyMatrix(intraWeights),
		faults:       faults.Clone(),
	})
	return b
}

// AddLayerWithSameNeurons adds a layer of count copies of neuron.
func (b *Builder) AddLayerWithSameNeurons(neuron nn.LIFNeuron, count int, weights, intraWeights [][]float64, faults fault.Config) *Builder {
	neurons := make([]nn.LIFNeuron, count)
	for i := range neurons {
		neurons[i] = neuron
	}
	return b.AddLayer(neurons, weights, intraWeights, faults)
}

func (b *Builder) Err() error { return b.err }

func (b *Builder) Build() (*Network, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.layers) == 0 {
		return nil, ErrNoLayers
	}

	layers := make([]*nn.Layer, 0, len(b.layers))
	for i, p := range b.layers {
		layer, err := nn.NewLayer(p.neurons, p.weights, p.intraWeights, p.faults)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %v", ErrInvalidLayer, i, err)
		}
		layers = append(layers, layer)
	}
	return New(layers)
}

func (b *Builder) expectedColumns() int {
	if len(b.layers) == 0 {
		return b.inputWidth
	}
	return len(b.layers[len(b.layers)-1].neurons)
}

func (b *Builder) checkIntraWeights(neurons int, weights [][]float64) error {
	if neurons == 0 {
		return errors.New("layer has no neurons")
	}
	if len(weights) != neurons {
		return fmt.Errorf("intra weight rows got=%d want=%d", len(weights), neurons)
	}
	for i, row := range weights {
		if len(row) != neurons {
			return fmt.Errorf("intra weight row %d columns got=%d want=%d", i, len(row), neurons)
		}
		for j, w := range row {
			if math.IsNaN(w) || w > 0 {
				return fmt.Errorf("intra weight [%d][%d]=%g must be <= 0", i, j, w)
			}
			if i == j && w != 0 {
				return fmt.Errorf("intra weight diagonal [%d][%d]=%g must be 0", i, j, w)
			}
		}
	}
	return nil
}

func (b *Builder) checkWeights(neurons int, weights [][]float64) error {
	if len(weights) != neurons {
		return fmt.Errorf("weight rows got=%d want=%d", len(weights), neurons)
	}
	want := b.expectedColumns()
	for i, row := range weights {
		if len(row) != want {
			return fmt.Errorf("weight row %d columns got=%d want=%d", i, len(row), want)
		}
		for j, w := range row {
			if math.IsNaN(w) || w < 0 {
				return fmt.Errorf("weight [%d][%d]=%g must be >= 0", i, j, w)
			}
		}
	}
	return nil
}

// UniformInhibition builds an n x n lateral matrix with weight off the
// diagonal and zero on it.
func UniformInhibition(n int, weight float64) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			if i != j {
				out[i][j] = weight
			}
		}
	}
	return out
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
