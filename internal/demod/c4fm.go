package demod

import "trunkrx/internal/dsp"

// c4fmBaud is P25 Phase 1's fixed symbol rate.
const c4fmBaud = 4800.0

// C4FM demodulates P25 Phase 1's 4-level continuous-phase FSK: FM
// discriminate, low-pass, slice against four fixed thresholds on the
// ideal +-1, +-3 deviation levels (spec.md §4.2).
type C4FM struct {
	fs            float64
	filter        *dsp.FIRState
	prevSample    complex64
	samplesPerSym float64
	phaseAcc      float64
	deviation     float64 // magnitude of the +-1 level; Initialize sets 1.0 and nothing updates it
}

func NewC4FM() *C4FM { return &C4FM{} }

func (d *C4FM) Initialize(fs float64) {
	d.fs = fs
	d.samplesPerSym = fs / c4fmBaud
	coeffs := dsp.DesignLowpassFIR(1.2*c4fmBaud, fs, 49)
	d.filter = dsp.NewFIRState(coeffs)
	d.prevSample = complex(1, 0)
	d.phaseAcc = 0
	d.deviation = 1.0
}

func (d *C4FM) Reset() {
	d.filter = dsp.NewFIRState(d.filter.Coeffs())
	d.phaseAcc = 0
}

func (d *C4FM) Process(block []complex64, emit func(symbol float64)) {
	disc := dsp.Discriminate(block, &d.prevSample)
	filtered := d.filter.Process(disc)

	for _, v := range filtered {
		d.phaseAcc++
		if d.phaseAcc >= d.samplesPerSym {
			d.phaseAcc -= d.samplesPerSym
			emit(d.slice(v))
		}
	}
}

// slice maps a filtered discriminator sample to one of the four C4FM
// symbols 0..3 in ascending-deviation order, thresholds at the
// midpoints between the ideal +-1, +-3 levels scaled by deviation (0
// and +-2*deviation): symbol 0 is the most negative deviation, symbol
// 3 the most positive.
func (d *C4FM) slice(v float64) float64 {
	switch {
	case v >= 2*d.deviation:
		return 3
	case v >= 0:
		return 2
	case v >= -2*d.deviation:
		return 1
	default:
		return 0
	}
}
