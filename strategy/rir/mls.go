// Package rir measures the room/line impulse response with a known test
// signal and cancels echo by convolving the far end with the trimmed,
// L1-normalized response.
package rir

import (
	"fmt"
	"math"
)

// Test signal type names accepted by the "signal" parameter.
const (
	SignalMLS         = "mls"
	SignalSinePulse   = "sine_pulse"
	SignalSquarePulse = "square_pulse"
)

// mlsTaps holds the Galois LFSR feedback masks for the supported maximal
// length sequence orders. Each mask encodes a primitive polynomial:
//
//	10: x^10 + x^7 + 1
//	12: x^12 + x^11 + x^10 + x^4 + 1
//	14: x^14 + x^13 + x^12 + x^2 + 1
//	16: x^16 + x^15 + x^13 + x^4 + 1
var mlsTaps = map[int]uint32{
	10: 0x0240,
	12: 0x0E08,
	14: 0x3802,
	16: 0xD008,
}

// MLS generates a maximum length sequence of the given order as a ±1 signal
// of length 2^order - 1.
func MLS(order int) ([]float64, error) {
	mask, ok := mlsTaps[order]
	if !ok {
		return nil, fmt.Errorf("rir: unsupported MLS order %d (supported: 10, 12, 14, 16)", order)
	}

	length := (1 << order) - 1
	out := make([]float64, length)

	state := uint32(1)
	for i := range out {
		bit := state & 1
		state >>= 1

		if bit == 1 {
			state ^= mask
			out[i] = 1
		} else {
			out[i] = -1
		}
	}

	return out, nil
}

// SinePulse generates a half-sine windowed pulse of the given width.
func SinePulse(width int) ([]float64, error) {
	if width < 2 {
		return nil, fmt.Errorf("rir: pulse width must be >= 2: %d", width)
	}

	out := make([]float64, width)
	for i := range out {
		out[i] = math.Sin(math.Pi * float64(i) / float64(width-1))
	}

	return out, nil
}

// SquarePulse generates a two-level square pulse of the given width:
// +1 for the first half, -1 for the second.
func SquarePulse(width int) ([]float64, error) {
	if width < 2 {
		return nil, fmt.Errorf("rir: pulse width must be >= 2: %d", width)
	}

	out := make([]float64, width)
	for i := range out {
		if i < width/2 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}

	return out, nil
}

// testSignal builds the raw (unpadded) test signal for the given type.
func testSignal(signalType string, mlsOrder, pulseWidth int) ([]float64, error) {
	switch signalType {
	case SignalMLS:
		return MLS(mlsOrder)
	case SignalSinePulse:
		return SinePulse(pulseWidth)
	case SignalSquarePulse:
		return SquarePulse(pulseWidth)
	default:
		return nil, fmt.Errorf("rir: unknown test signal type %q", signalType)
	}
}
