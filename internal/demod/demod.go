// Package demod implements the four demodulator variants spec.md §4.2
// names: FSK2, C4FM, FSK4, and pi/4-DQPSK. Each converts a stream of
// complex baseband blocks into a stream of soft symbol indices (0..1
// for binary FSK, 0..3 for the 4-ary variants), sharing the FM
// discriminator, filter design, and timing/carrier-recovery primitives
// in internal/dsp.
//
// Per spec.md §9's "polymorphic demodulators" design note, this is a
// closed sum over four monomorphized implementations behind one
// interface, not a runtime plugin system: the protocol family is fixed
// at configuration time and never switched.
package demod

// Demodulator is the common contract every variant implements:
// initialize, process a block emitting symbols via callback, reset.
type Demodulator interface {
	Initialize(fs float64)
	Process(block []complex64, emit func(symbol float64))
	Reset()
}

// Family identifies which demodulator variant a system configuration
// selects.
type Family int

const (
	FamilyFSK2 Family = iota
	FamilyC4FM
	FamilyFSK4
	FamilyPI4DQPSK
)

// New builds the demodulator variant for a family at the given baud
// rate (ignored by C4FM, which is always 4800 baud per the P25 Phase 1
// air interface) and, for DQPSK, roll-off factor.
func New(family Family, baud float64, rolloff float64) Demodulator {
	switch family {
	case FamilyFSK2:
		return NewFSK2(baud)
	case FamilyC4FM:
		return NewC4FM()
	case FamilyFSK4:
		return NewFSK4(baud)
	case FamilyPI4DQPSK:
		return NewPI4DQPSK(baud, rolloff)
	default:
		return NewFSK2(baud)
	}
}
