package demod

import (
	"math"

	"trunkrx/internal/dsp"
)

// PI4DQPSK demodulates TETRA's pi/4-DQPSK traffic: RRC matched filter,
// Costas-style carrier recovery, Gardner timing recovery, then maps the
// angle between successive symbols to one of four differential dibits
// per spec.md §4.2's pi/4-DQPSK rule.
type PI4DQPSK struct {
	baud          float64
	rolloff       float64
	fs            float64
	matched       *dsp.FIRState
	costas        *dsp.CostasLoop
	samplesPerSym float64
	phaseAcc      float64

	early, prompt, late complex64
	prevSymbol          complex64
}

func NewPI4DQPSK(baud, rolloff float64) *PI4DQPSK {
	return &PI4DQPSK{baud: baud, rolloff: rolloff}
}

func (d *PI4DQPSK) Initialize(fs float64) {
	d.fs = fs
	d.samplesPerSym = fs / d.baud
	sps := int(d.samplesPerSym)
	if sps < 2 {
		sps = 2
	}
	coeffs := dsp.DesignRRC(d.rolloff, sps, 8)
	d.matched = dsp.NewFIRState(coeffs)
	d.costas = dsp.NewCostasLoop(0.01)
	d.phaseAcc = 0
	d.prevSymbol = complex(1, 0)
}

func (d *PI4DQPSK) Reset() {
	d.matched = dsp.NewFIRState(d.matched.Coeffs())
	d.phaseAcc = 0
}

func (d *PI4DQPSK) Process(block []complex64, emit func(symbol float64)) {
	re := make([]float64, len(block))
	im := make([]float64, len(block))
	for i, s := range block {
		re[i] = float64(real(s))
		im[i] = float64(imag(s))
	}
	fre := d.matched.Process(re)
	fim := d.matched.Process(im)

	for i := range fre {
		s := complex64(complex(fre[i], fim[i]))
		mixed := d.costas.Mix(s)

		d.early = d.prompt
		d.prompt = d.late
		d.late = mixed

		d.phaseAcc++
		timingErr := dsp.Gardner(d.early, d.prompt, d.late)
		d.phaseAcc -= 0.002 * timingErr

		if d.phaseAcc >= d.samplesPerSym {
			d.phaseAcc -= d.samplesPerSym
			dibit := d.differentialDecode(d.prompt)
			emit(float64(dibit))
		}
	}
}

// differentialDecode maps the angle of `current * conj(previous)` to
// one of the four pi/4-DQPSK dibits (spec.md §4.2).
func (d *PI4DQPSK) differentialDecode(current complex64) int {
	prod := complex128(current) * complex128(conj64(d.prevSymbol))
	d.prevSymbol = current
	angle := math.Atan2(imag(prod), real(prod))
	// Four quadrants, rotated by pi/4: map to dibits 0..3 in order.
	switch {
	case angle >= 0 && angle < math.Pi/2:
		return 0
	case angle >= math.Pi/2:
		return 1
	case angle < 0 && angle >= -math.Pi/2:
		return 3
	default:
		return 2
	}
}

func conj64(c complex64) complex64 { return complex(real(c), -imag(c)) }
