package demod

import "trunkrx/internal/dsp"

// FSK2 demodulates Motorola SmartNet's 2-level FSK control channel: FM
// discriminate, low-pass, slice on sign at a fixed symbol clock.
type FSK2 struct {
	baud           float64
	fs             float64
	filter         *dsp.FIRState
	prevSample     complex64
	samplesPerSym  float64
	phaseAcc       float64
}

// NewFSK2 builds an FSK2 demodulator for the given baud rate (3600 or
// 9600 per spec.md §4.3's SmartNet paragraph).
func NewFSK2(baud float64) *FSK2 {
	return &FSK2{baud: baud}
}

func (d *FSK2) Initialize(fs float64) {
	d.fs = fs
	d.samplesPerSym = fs / d.baud
	coeffs := dsp.DesignLowpassFIR(1.2*d.baud, fs, 45)
	d.filter = dsp.NewFIRState(coeffs)
	d.prevSample = complex(1, 0)
	d.phaseAcc = 0
}

func (d *FSK2) Reset() {
	d.filter = dsp.NewFIRState(d.filter.Coeffs())
	d.phaseAcc = 0
}

func (d *FSK2) Process(block []complex64, emit func(symbol float64)) {
	disc := dsp.Discriminate(block, &d.prevSample)
	filtered := d.filter.Process(disc)

	for _, v := range filtered {
		d.phaseAcc++
		if d.phaseAcc >= d.samplesPerSym {
			d.phaseAcc -= d.samplesPerSym
			symbol := 0.0
			if v >= 0 {
				symbol = 1.0
			}
			emit(symbol)
		}
	}
}
