package nn

import "math"

// LIFNeuron is a leaky integrate-and-fire unit. The exported parameters are
// fault targets, so the layer mutates them in place.
type LIFNeuron struct {
	VTh    float64 `json:"v_th"`
	VRest  float64 `json:"v_rest"`
	VReset float64 `json:"v_reset"`
	Tau    float64 `json:"tau"`
	Dt     float64 `json:"dt"`

	VMem float64 `json:"v_mem"`
	Ts   uint64  `json:"ts"`
}

func NewLIFNeuron(vTh, vRest, vReset, tau, dt float64) LIFNeuron {
	return LIFNeuron{
		VTh:    vTh,
		VRest:  vRest,
		VReset: vReset,
		Tau:    tau,
		Dt:     dt,
		VMem:   vRest,
	}
}

// Update integrates weightedSum at instant t and reports whether the neuron
// fired. The potential decays toward VRest for the time elapsed since the
// last update.
func (n *LIFNeuron) Update(t uint64, weightedSum float64) uint8 {
	var delta uint64
	if t >= n.Ts {
		delta = t - n.Ts
	} else {
		delta = n.Ts - t
	}

	exponent := 0.0
	if delta != 0 && n.Tau != 0 {
		exponent = -(float64(delta) * n.Dt / n.Tau)
	}

	if n.VMem < n.VRest {
		n.VMem = n.VRest
	}
	n.VMem = n.VRest + (n.VMem-n.VRest)*math.Exp(exponent) + weightedSum
	n.Ts = t

	if n.VMem > n.VTh {
		n.VMem = n.VReset
		return 1
	}
	return 0
}

func (n *LIFNeuron) Init() {
	n.VMem = n.VRest
	n.Ts = 0
}

// NeuronsFromThresholds builds one neuron per threshold sharing the other
// parameters.
func NeuronsFromThresholds(thresholds []float64, vRest, vReset, tau, dt float64) []LIFNeuron {
	out := make([]LIFNeuron, len(thresholds))
	for i, th := range thresholds {
		out[i] = NewLIFNeuron(th, vRest, vReset, tau, dt)
	}
	return out
}
