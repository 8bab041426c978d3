package testutil

import (
	"math"
	"math/rand"
)

// DeterministicSine generates a deterministic sine wave.
func DeterministicSine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}
	return out
}

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// Impulse generates a unit impulse at the given position.
func Impulse(length, pos int) []float64 {
	out := make([]float64, length)
	if pos >= 0 && pos < length {
		out[pos] = 1
	}
	return out
}

// DelayedScaled returns src delayed by the given number of samples and
// scaled, keeping the original length. It models a single-tap echo path.
func DelayedScaled(src []float64, delay int, scale float64) []float64 {
	out := make([]float64, len(src))
	for i := delay; i < len(src); i++ {
		out[i] = scale * src[i-delay]
	}
	return out
}

// Mix sums any number of equally long signals sample by sample.
func Mix(signals ...[]float64) []float64 {
	if len(signals) == 0 {
		return nil
	}
	out := make([]float64, len(signals[0]))
	for _, s := range signals {
		for i := range out {
			out[i] += s[i]
		}
	}
	return out
}

// Convolve computes the direct-form convolution of signal and kernel,
// truncated to the signal length.
func Convolve(signal, kernel []float64) []float64 {
	out := make([]float64, len(signal))
	for i := range signal {
		for k, h := range kernel {
			if h == 0 {
				continue
			}
			j := i + k
			if j >= len(out) {
				break
			}
			out[j] += signal[i] * h
		}
	}
	return out
}

// RMS returns the root-mean-square level of the signal.
func RMS(signal []float64) float64 {
	if len(signal) == 0 {
		return 0
	}

	var sum float64
	for _, v := range signal {
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(signal)))
}

// BlockRMS splits the signal into consecutive blocks and returns the RMS of
// each, for convergence-trend assertions.
func BlockRMS(signal []float64, blockSize int) []float64 {
	if blockSize <= 0 {
		return nil
	}

	var out []float64
	for start := 0; start+blockSize <= len(signal); start += blockSize {
		out = append(out, RMS(signal[start:start+blockSize]))
	}

	return out
}
