package demod

import "trunkrx/internal/dsp"

// FSK4 demodulates DMR's 4-level FSK burst: FM discriminate, low-pass,
// slice against four adaptive thresholds maintained as midpoints of
// exponentially-weighted symbol-level averages (spec.md §4.2, alpha
// approx 0.01), with a Mueller-Mueller timing-error nudge on the symbol
// counter.
type FSK4 struct {
	baud          float64
	fs            float64
	filter        *dsp.FIRState
	prevSample    complex64
	samplesPerSym float64
	phaseAcc      float64

	mu            [4]float64 // running level estimates, ascending
	muInit        bool
	lastTwo       [2]float64 // last two filtered samples, for MM timing error
}

const fsk4Alpha = 0.01

func NewFSK4(baud float64) *FSK4 { return &FSK4{baud: baud} }

func (d *FSK4) Initialize(fs float64) {
	d.fs = fs
	d.samplesPerSym = fs / d.baud
	coeffs := dsp.DesignLowpassFIR(1.2*d.baud, fs, 45)
	d.filter = dsp.NewFIRState(coeffs)
	d.prevSample = complex(1, 0)
	d.phaseAcc = 0
	d.mu = [4]float64{-3, -1, 1, 3}
	d.muInit = false
}

func (d *FSK4) Reset() {
	d.filter = dsp.NewFIRState(d.filter.Coeffs())
	d.phaseAcc = 0
	d.muInit = false
}

func (d *FSK4) Process(block []complex64, emit func(symbol float64)) {
	disc := dsp.Discriminate(block, &d.prevSample)
	filtered := d.filter.Process(disc)

	for _, v := range filtered {
		d.phaseAcc++
		timingError := dsp.MuellerMuller(d.lastTwo[0], d.lastTwo[1], v)
		d.lastTwo[0] = d.lastTwo[1]
		d.lastTwo[1] = v

		// Nudge the symbol clock by a small fraction of the timing
		// error, same role as the fixed counter FSK2/C4FM use but
		// closed-loop per spec.md's FSK4 paragraph.
		d.phaseAcc -= 0.001 * timingError

		if d.phaseAcc >= d.samplesPerSym {
			d.phaseAcc -= d.samplesPerSym
			sym := d.slice(v)
			d.adapt(sym, v)
			emit(float64(sym))
		}
	}
}

// slice picks the symbol whose running level estimate is closest to v.
func (d *FSK4) slice(v float64) int {
	best, bestDist := 0, absF(v-d.mu[0])
	for i := 1; i < 4; i++ {
		if dist := absF(v - d.mu[i]); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

// adapt updates the exponentially-weighted level average for the
// symbol just sliced, per spec.md §4.2's adaptive-threshold rule.
func (d *FSK4) adapt(sym int, v float64) {
	d.mu[sym] = (1-fsk4Alpha)*d.mu[sym] + fsk4Alpha*v
}

// EyeOpening reports the eye-opening metric `(mu3 - mu0)/3` spec.md
// names, a rough signal-quality indicator.
func (d *FSK4) EyeOpening() float64 {
	return (d.mu[3] - d.mu[0]) / 3
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
