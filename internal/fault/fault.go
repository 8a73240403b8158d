// Package fault describes hardware faults and the bit-level primitive that
// applies them to 64-bit patterns.
//
// Bit positions are counted from the most significant bit: position 0 is the
// sign bit of an IEEE-754 double (or the top bit of a raw uint64), position 63
// is the least significant bit. Positions are taken modulo 64.
package fault

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrUnknownComponent  = errors.New("unknown fault component")
	ErrUnknownFailure    = errors.New("unknown failure kind")
	ErrAddressOutOfRange = errors.New("fault address out of range")
)

type Kind int

const (
	KindNone Kind = iota
	KindStuckAt0
	KindStuckAt1
	KindTransientBitFlip
)

var kindNames = map[Kind]string{
	KindNone:             "None",
	KindStuckAt0:         "StuckAt0",
	KindStuckAt1:         "StuckAt1",
	KindTransientBitFlip: "TransientBitFlip",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts the canonical names case-insensitively, plus the short
// "transient" alias used in file names.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return KindNone, nil
	case "stuckat0", "stuck_at_0", "stuck-at-0":
		return KindStuckAt0, nil
	case "stuckat1", "stuck_at_1", "stuck-at-1":
		return KindStuckAt1, nil
	case "transientbitflip", "transient_bit_flip", "transient":
		return KindTransientBitFlip, nil
	default:
		return KindNone, fmt.Errorf("%w: %s", ErrUnknownFailure, s)
	}
}

// Failure is one fault instance. A transient bit-flip remembers whether it has
// already fired, so callers must hold it by pointer between applications.
type Failure struct {
	Kind Kind   `json:"kind"`
	Bit  uint32 `json:"bit"`

	fired bool
}

func NoFailure() Failure { return Failure{Kind: KindNone} }

func StuckAt0(bit uint32) Failure { return Failure{Kind: KindStuckAt0, Bit: bit} }

func StuckAt1(bit uint32) Failure { return Failure{Kind: KindStuckAt1, Bit: bit} }

func TransientBitFlip(bit uint32) Failure {
	return Failure{Kind: KindTransientBitFlip, Bit: bit}
}

func NewFailure(kind Kind, bit uint32) Failure {
	return Failure{Kind: kind, Bit: bit}
}

func (f *Failure) Fired() bool { return f.fired }

// Reset re-arms a transient flip.
func (f *Failure) Reset() { f.fired = false }

func (f Failure) String() string {
	if f.Kind == KindNone {
		return KindNone.String()
	}
	return fmt.Sprintf("%s(%d)", f.Kind, f.Bit)
}

// Mask returns the single-bit mask selected by an MSB-first position.
func Mask(position uint32) uint64 {
	return uint64(1) << (63 - position%64)
}

// BitAt reports the value of the MSB-first bit at position.
func BitAt(bits uint64, position uint32) bool {
	return bits&Mask(position) != 0
}

// ApplyBitFault returns bits with f applied. Only the given 64 bits are
// touched; converting the target to and from its native representation is
// the caller's job.
func ApplyBitFault(f *Failure, bits uint64) uint64 {
	if f == nil {
		return bits
	}
	mask := Mask(f.Bit)
	switch f.Kind {
	case KindStuckAt0:
		return bits &^ mask
	case KindStuckAt1:
		return bits | mask
	case KindTransientBitFlip:
		if f.fired {
			return bits
		}
		f.fired = true
		return bits ^ mask
	default:
		return bits
	}
}

func ApplyFloat(f *Failure, v float64) float64 {
	return math.Float64frombits(ApplyBitFault(f, math.Float64bits(v)))
}

// ApplySpike corrupts a binary spike entry directly instead of its bits.
func ApplySpike(f *Failure, spike uint8) uint8 {
	if f == nil {
		return spike
	}
	switch f.Kind {
	case KindStuckAt0:
		return 0
	case KindStuckAt1:
		return 1
	case KindTransientBitFlip:
		if f.fired {
			return spike
		}
		f.fired = true
		if spike != 0 {
			return 0
		}
		return 1
	default:
		return spike
	}
}
