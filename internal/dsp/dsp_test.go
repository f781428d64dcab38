package dsp

import (
	"math"
	"testing"
)

func TestDesignLowpassFIROddLength(t *testing.T) {
	coeffs := DesignLowpassFIR(3000, 48000, 40)
	if len(coeffs)%2 == 0 {
		t.Errorf("filter length %d should be forced odd", len(coeffs))
	}
}

func TestDiscriminateZeroForConstantPhase(t *testing.T) {
	block := make([]complex64, 8)
	for i := range block {
		block[i] = complex(1, 0)
	}
	prev := complex64(complex(1, 0))
	out := Discriminate(block, &prev)
	for i, v := range out {
		if math.Abs(v) > 1e-9 {
			t.Errorf("sample %d: discriminator = %v, want ~0 for constant phase", i, v)
		}
	}
}

func TestDiscriminateDetectsQuarterTurn(t *testing.T) {
	prev := complex64(complex(1, 0))
	block := []complex64{complex(0, 1)} // 90 degree advance
	out := Discriminate(block, &prev)
	if math.Abs(out[0]-math.Pi/2) > 1e-6 {
		t.Errorf("discriminator = %v, want pi/2", out[0])
	}
}

func TestCostasLoopLocksOnConstantOffset(t *testing.T) {
	loop := NewCostasLoop(0.02)
	var last complex64
	for i := 0; i < 500; i++ {
		// A constant symbol 0.3 rad off the real axis. The loop's
		// four-quadrant QPSK detector settles where |re| == |im|, i.e.
		// on the pi/4 constellation point nearest the input.
		sym := complex(math.Cos(0.3), math.Sin(0.3))
		last = loop.Mix(complex64(sym))
	}
	if angle := math.Atan2(float64(imag(last)), float64(real(last))); math.Abs(angle-math.Pi/4) > 0.05 {
		t.Errorf("after convergence, arg(out) = %v, want close to pi/4", angle)
	}
}

func TestMuellerMullerZeroOnSymmetricSamples(t *testing.T) {
	if got := MuellerMuller(1, 5, 1); got != 0 {
		t.Errorf("MuellerMuller(1,5,1) = %v, want 0", got)
	}
}

func TestGardnerZeroWhenEarlyEqualsLate(t *testing.T) {
	early := complex64(complex(0.5, 0.1))
	prompt := complex64(complex(1, 0))
	late := early
	if got := Gardner(early, prompt, late); got != 0 {
		t.Errorf("Gardner = %v, want 0 when early == late", got)
	}
}

func TestFIRStateMatchesBatchFilter(t *testing.T) {
	coeffs := DesignLowpassFIR(3000, 48000, 21)
	samples := make([]float64, 64)
	for i := range samples {
		samples[i] = math.Sin(float64(i) * 0.3)
	}
	batch := FilterReal(samples, coeffs)

	st := NewFIRState(coeffs)
	half := len(samples) / 2
	out1 := st.Process(samples[:half])
	out2 := st.Process(samples[half:])
	streamed := append(out1, out2...)

	// Streaming and batch filtering should agree away from the very
	// start, once the history buffer has been populated identically.
	for i := len(coeffs); i < len(samples); i++ {
		if math.Abs(batch[i]-streamed[i]) > 1e-9 {
			t.Errorf("sample %d: batch=%v streamed=%v", i, batch[i], streamed[i])
		}
	}
}
