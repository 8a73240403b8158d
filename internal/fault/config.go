package fault

import (
	"fmt"
	"strings"
)

type Component int

const (
	ComponentNone Component = iota
	ComponentVTh
	ComponentVRest
	ComponentVReset
	ComponentTau
	ComponentVMem
	ComponentTs
	ComponentDt
	ComponentWeights
	ComponentIntraWeights
	ComponentPrevSpikes
)

var componentNames = []string{
	ComponentNone:         "None",
	ComponentVTh:          "VTh",
	ComponentVRest:        "VRest",
	ComponentVReset:       "VReset",
	ComponentTau:          "Tau",
	ComponentVMem:         "VMem",
	ComponentTs:           "Ts",
	ComponentDt:           "Dt",
	ComponentWeights:      "Weights",
	ComponentIntraWeights: "IntraWeights",
	ComponentPrevSpikes:   "PrevSpikes",
}

// AllComponents lists every injectable component, in campaign order.
func AllComponents() []Component {
	return []Component{
		ComponentTs, ComponentDt, ComponentWeights,
		ComponentIntraWeights, ComponentPrevSpikes,
		ComponentVTh, ComponentVMem, ComponentVReset,
		ComponentVRest, ComponentTau,
	}
}

func (c Component) String() string {
	if c >= 0 && int(c) < len(componentNames) {
		return componentNames[c]
	}
	return fmt.Sprintf("Component(%d)", int(c))
}

func ParseComponent(s string) (Component, error) {
	needle := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	for i, name := range componentNames {
		if strings.ToLower(name) == needle {
			return Component(i), nil
		}
	}
	return ComponentNone, fmt.Errorf("%w: %s", ErrUnknownComponent, s)
}

// IsMatrix reports whether the component addresses a weight-matrix cell.
func (c Component) IsMatrix() bool {
	return c == ComponentWeights || c == ComponentIntraWeights
}

// TransientMode controls how long a transient flip stays spent.
type TransientMode int

const (
	// TransientOncePerRun flips the bit at the first processed instant of a
	// run and never again until the layer is re-initialised.
	TransientOncePerRun TransientMode = iota
	// TransientEveryInstant re-arms the flip before every processed instant,
	// so the bit toggles each time the layer steps.
	TransientEveryInstant
)

func (m TransientMode) String() string {
	if m == TransientEveryInstant {
		return "every_instant"
	}
	return "once_per_run"
}

func ParseTransientMode(s string) (TransientMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "once_per_run", "once":
		return TransientOncePerRun, nil
	case "every_instant", "every":
		return TransientEveryInstant, nil
	default:
		return TransientOncePerRun, fmt.Errorf("unsupported transient mode: %s", s)
	}
}

// Cell selects one weight-matrix entry.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Address is the fully resolved location of one injected bit.
type Address struct {
	Component Component
	Neuron    int
	Row       int
	Col       int
	Bit       uint32
}

// Config describes the faults injected into one layer.
type Config struct {
	Components []Component   `json:"components"`
	Failure    Failure       `json:"failure"`
	Neuron     int           `json:"neuron"`
	Cell       *Cell         `json:"cell,omitempty"`
	Transient  TransientMode `json:"transient_mode"`
}

func NewConfig(components []Component, failure Failure, neuron int) Config {
	return Config{
		Components: append([]Component(nil), components...),
		Failure:    failure,
		Neuron:     neuron,
	}
}

// NoFault is the fault-free configuration.
func NoFault() Config {
	return Config{Failure: NoFailure()}
}

func (c Config) WithCell(row, col int) Config {
	c.Cell = &Cell{Row: row, Col: col}
	return c
}

func (c Config) WithTransientMode(mode TransientMode) Config {
	c.Transient = mode
	return c
}

// Active reports whether the configuration injects anything at all.
func (c Config) Active() bool {
	if c.Failure.Kind == KindNone {
		return false
	}
	for _, comp := range c.Components {
		if comp != ComponentNone {
			return true
		}
	}
	return false
}

func (c Config) Clone() Config {
	out := c
	out.Components = append([]Component(nil), c.Components...)
	if c.Cell != nil {
		cell := *c.Cell
		out.Cell = &cell
	}
	out.Failure.Reset()
	return out
}

// DecodeMatrixPosition splits a flattened position into a matrix cell and a
// bit: the cell index is position/64, laid out row-major over rows.
func DecodeMatrixPosition(position uint32, rows int) (row, col int, bit uint32) {
	if rows <= 0 {
		return 0, 0, position % 64
	}
	cell := int(position / 64)
	return cell / rows, cell % rows, position % 64
}

// Addresses resolves every target component into a concrete address.
// matrixRows is the row count of the layer's matrices and is only used to
// decode flattened positions when no explicit cell is configured.
func (c Config) Addresses(matrixRows int) []Address {
	out := make([]Address, 0, len(c.Components))
	for _, comp := range c.Components {
		if comp == ComponentNone {
			continue
		}
		addr := Address{Component: comp, Neuron: c.Neuron, Bit: c.Failure.Bit % 64}
		if comp.IsMatrix() {
			if c.Cell != nil {
				addr.Row, addr.Col = c.Cell.Row, c.Cell.Col
			} else {
				addr.Row, addr.Col, addr.Bit = DecodeMatrixPosition(c.Failure.Bit, matrixRows)
			}
		}
		out = append(out, addr)
	}
	return out
}

// Injection pairs an address with its own failure instance so that every
// target keeps an independent transient state.
type Injection struct {
	Address Address
	Failure Failure
}

func (c Config) Injections(matrixRows int) []Injection {
	if !c.Active() {
		return nil
	}
	addrs := c.Addresses(matrixRows)
	out := make([]Injection, 0, len(addrs))
	for _, addr := range addrs {
		f := c.Failure
		f.Bit = addr.Bit
		f.Reset()
		out = append(out, Injection{Address: addr, Failure: f})
	}
	return out
}

// Name renders the configuration the way campaign result files are named:
// <Component>_<Failure>_<bit>_<neuron>.
func (c Config) Name() string {
	comp := ComponentNone
	if len(c.Components) > 0 {
		comp = c.Components[0]
	}
	compName := comp.String()
	if comp == ComponentNone {
		compName = "NoFault"
	}
	failure := "None"
	switch c.Failure.Kind {
	case KindStuckAt0:
		failure = fmt.Sprintf("StuckAt0_%d", c.Failure.Bit)
	case KindStuckAt1:
		failure = fmt.Sprintf("StuckAt1_%d", c.Failure.Bit)
	case KindTransientBitFlip:
		failure = fmt.Sprintf("Transient_%d", c.Failure.Bit)
	}
	return fmt.Sprintf("%s_%s_%d", compName, failure, c.Neuron)
}
