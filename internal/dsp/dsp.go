// Package dsp implements the shared signal-processing primitives every
// demodulator variant in internal/demod builds on: FIR filter design,
// the FM discriminator, a second-order Costas carrier loop, and the
// Gardner/Mueller-Müller timing-error detectors. These are pure
// functions over []complex64/[]float64, with no protocol knowledge.
package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

// DesignLowpassFIR builds a Hamming-windowed sinc low-pass filter with
// the given cutoff frequency (Hz) and sample rate, per spec.md §4.2's
// "cutoff ~= 1.2 x symbol rate, 41-51 taps" guidance.
func DesignLowpassFIR(cutoffHz, sampleRateHz float64, taps int) []float64 {
	if taps%2 == 0 {
		taps++
	}
	coeffs := make([]float64, taps)
	center := float64(taps-1) / 2
	fc := cutoffHz / sampleRateHz
	for i := range coeffs {
		x := float64(i) - center
		if x == 0 {
			coeffs[i] = 2 * fc
		} else {
			coeffs[i] = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
		}
	}
	window.Hamming(coeffs)
	normalizeGain(coeffs)
	return coeffs
}

// DesignRRC builds a root-raised-cosine pulse-shaping filter with the
// given roll-off and symbol span, used by the DQPSK matched filter
// (spec.md §4.2: "roll-off 0.35, span ~= 8 symbols").
func DesignRRC(rolloff float64, samplesPerSymbol int, spanSymbols int) []float64 {
	taps := spanSymbols*samplesPerSymbol + 1
	if taps%2 == 0 {
		taps++
	}
	coeffs := make([]float64, taps)
	center := float64(taps-1) / 2
	T := float64(samplesPerSymbol)
	for i := range coeffs {
		t := (float64(i) - center) / T
		coeffs[i] = rrcSample(t, rolloff)
	}
	normalizeGain(coeffs)
	return coeffs
}

func rrcSample(t, beta float64) float64 {
	if t == 0 {
		return 1 - beta + 4*beta/math.Pi
	}
	denom := 1 - math.Pow(4*beta*t, 2)
	if math.Abs(denom) < 1e-8 {
		return (math.Pi / 4) * math.Sin(math.Pi/(4*beta)) * (4 * beta / math.Pi)
	}
	num := math.Sin(math.Pi*t*(1-beta)) + 4*beta*t*math.Cos(math.Pi*t*(1+beta))
	return num / (math.Pi * t * denom)
}

func normalizeGain(coeffs []float64) {
	var sum float64
	for _, c := range coeffs {
		sum += c
	}
	if sum == 0 {
		return
	}
	for i := range coeffs {
		coeffs[i] /= sum
	}
}

// FilterReal convolves a real sample stream with FIR coefficients,
// returning a same-length output (zero-padded history carried by the
// caller across calls via state, for streaming use see FIRState).
func FilterReal(samples, coeffs []float64) []float64 {
	out := make([]float64, len(samples))
	n := len(coeffs)
	for i := range samples {
		var acc float64
		for j := 0; j < n; j++ {
			idx := i - j
			if idx >= 0 {
				acc += coeffs[j] * samples[idx]
			}
		}
		out[i] = acc
	}
	return out
}

// FIRState is a streaming FIR filter that retains tail history across
// Process calls, for use inside a demodulator's per-block processing
// loop where block boundaries must not introduce filter transients.
type FIRState struct {
	coeffs  []float64
	history []float64
}

// NewFIRState creates a streaming filter for the given coefficients.
func NewFIRState(coeffs []float64) *FIRState {
	return &FIRState{coeffs: coeffs, history: make([]float64, len(coeffs)-1)}
}

// Coeffs returns the filter's coefficients, for callers that need to
// rebuild a fresh FIRState with the same design (e.g. on Reset).
func (f *FIRState) Coeffs() []float64 { return f.coeffs }

// Process filters one block, updating history for the next call.
func (f *FIRState) Process(block []float64) []float64 {
	n := len(f.coeffs)
	extended := make([]float64, len(f.history)+len(block))
	copy(extended, f.history)
	copy(extended[len(f.history):], block)

	out := make([]float64, len(block))
	for i := range block {
		var acc float64
		base := i + len(f.history)
		for j := 0; j < n; j++ {
			acc += f.coeffs[j] * extended[base-j]
		}
		out[i] = acc
	}
	if len(extended) >= len(f.history) {
		copy(f.history, extended[len(extended)-len(f.history):])
	}
	return out
}

// Discriminate computes the FM discriminator output for a block of
// complex baseband samples: the instantaneous-frequency estimate from
// the phase difference between consecutive samples, per spec.md §4.2's
// `atan2(Im(s*conj(s_prev)), Re(s*conj(s_prev)))`. prev is the last
// sample of the previous block (for continuity across block
// boundaries); it is updated to the final sample of this block.
func Discriminate(block []complex64, prev *complex64) []float64 {
	out := make([]float64, len(block))
	p := *prev
	for i, s := range block {
		prod := complex128(s) * complex128(complexConj(p))
		out[i] = math.Atan2(imag(prod), real(prod))
		p = s
	}
	*prev = p
	return out
}

func complexConj(c complex64) complex64 {
	return complex(real(c), -imag(c))
}

// CostasLoop is a second-order carrier-recovery loop with damping
// 0.707, per spec.md §4.2: `alpha = 4*zeta*Bw/(1+2*zeta*Bw+Bw^2)`,
// `beta = 4*Bw^2/(1+2*zeta*Bw+Bw^2)`.
type CostasLoop struct {
	alpha, beta  float64
	phase, freq  float64
}

// NewCostasLoop builds a loop for the given normalized loop bandwidth.
func NewCostasLoop(loopBandwidth float64) *CostasLoop {
	const zeta = 0.707106781 // 1/sqrt(2)
	bw := loopBandwidth
	denom := 1 + 2*zeta*bw + bw*bw
	return &CostasLoop{
		alpha: 4 * zeta * bw / denom,
		beta:  4 * bw * bw / denom,
	}
}

// Mix rotates a sample by the loop's current phase estimate and
// updates the loop from a four-quadrant QPSK phase-error detector.
func (c *CostasLoop) Mix(s complex64) complex64 {
	rot := complex(math.Cos(-c.phase), math.Sin(-c.phase))
	out := complex64(complex128(s) * complex128(rot))

	errSig := qpskPhaseError(out)
	c.freq += c.beta * errSig
	c.phase += c.freq + c.alpha*errSig
	c.phase = wrapPhase(c.phase)
	return out
}

func qpskPhaseError(s complex64) float64 {
	re, im := float64(real(s)), float64(imag(s))
	return sign(re)*im - sign(im)*re
}

func sign(x float64) float64 {
	if x >= 0 {
		return 1
	}
	return -1
}

func wrapPhase(p float64) float64 {
	for p >= 2*math.Pi {
		p -= 2 * math.Pi
	}
	for p < -2*math.Pi {
		p += 2 * math.Pi
	}
	return p
}

// MuellerMuller computes the timing-error term used by the FSK4 symbol
// clock: `(x[k+1] - x[k-1]) * x[k]`.
func MuellerMuller(prev, curr, next float64) float64 {
	return (next - prev) * curr
}

// Gardner computes the timing-error term used by the DQPSK symbol
// clock: `Re((late - early) * conj(prompt))`.
func Gardner(early, prompt, late complex64) float64 {
	diff := complex128(late) - complex128(early)
	return real(diff * complex128(complexConj(prompt)))
}
