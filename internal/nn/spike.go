package nn

// SpikeEvent carries one instant's firing vector between pipeline stages.
type SpikeEvent struct {
	Ts     uint64
	Spikes []uint8
}

func NewSpikeEvent(ts uint64, spikes []uint8) SpikeEvent {
	return SpikeEvent{Ts: ts, Spikes: append([]uint8(nil), spikes...)}
}

// HasSpike reports whether at least one entry fired.
func (e SpikeEvent) HasSpike() bool {
	return anySpike(e.Spikes)
}

func anySpike(spikes []uint8) bool {
	for _, s := range spikes {
		if s != 0 {
			return true
		}
	}
	return false
}
