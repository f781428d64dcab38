package phy

import "trunkrx/internal/fec"

// P25FrameSync is the 48-bit P25 Phase 1 frame sync pattern (spec.md §4.3).
var P25FrameSync = bitsFromUint64(0x5575F5FF77FF, 48)

const (
	p25DUIDTsbk = 0x7

	// p25NonTSBKPayloadBits is the fixed post-NID payload width for
	// every DUID this scope treats as an opaque voice/data frame
	// (HDU/LDU/TDU/PDU): those bits pass straight to the call manager
	// via the codec black box, so no Golay/Hamming decode applies to
	// them here (spec.md §1's codec-black-box non-goal).
	p25NonTSBKPayloadBits = 144

	// TSBK's wire payload is Golay(24,12)- and Hamming(16,11)-protected
	// per spec.md §4.3 ("Golay for certain TSBK fields, Hamming for
	// others"): 7 Golay blocks and 4 Hamming blocks together decode to
	// exactly the 128 clean information bits the logical TSBK carries,
	// followed by its own 16-bit CRC-16 (spec.md §4.3's "144
	// information bits" split as 128 info + 16 CRC, matching the
	// established trunking-parser field layout).
	tsbkGolayBlocks   = 7
	tsbkHammingBlocks = 4
	tsbkFECBits       = tsbkGolayBlocks*24 + tsbkHammingBlocks*16 // 232 wire bits
	tsbkCleanBits     = tsbkGolayBlocks*12 + tsbkHammingBlocks*11 // 128 clean bits
	tsbkCRCBits       = 16
	tsbkWireBits      = tsbkFECBits + tsbkCRCBits // 248
)

// P25 implements the physical/MAC layer for APCO P25 Phase 1: frame
// sync search, NID extraction (NAC + DUID) with Golay(24,12)/(20,10)
// error correction, and Golay/Hamming-protected TSBK payload framing.
type P25 struct {
	sync        *SyncLock
	buf         []byte
	expectedNAC int // 0 means "no filter"
	frameIdx    uint64
}

// NewP25 builds a P25 physical layer, filtering on expectedNAC when
// nonzero (spec.md §4.3's NAC filter).
func NewP25(expectedNAC int) *P25 {
	return &P25{
		sync:        NewSyncLock([][]byte{P25FrameSync}, 4, 48+64+144),
		expectedNAC: expectedNAC,
	}
}

// SetSyncCallbacks wires the underlying sync-lock's acquired/lost
// hooks, typically to metrics counters (spec.md §7).
func (p *P25) SetSyncCallbacks(onAcquired, onLost func()) {
	p.sync.OnSyncAcquired = onAcquired
	p.sync.OnSyncLost = onLost
}

// Feed appends newly sliced symbol bits (already unpacked to 0/1 values
// by the caller, one per C4FM dibit-pair conversion) to the sliding bit
// buffer and returns any ProtocolUnits completed as a result.
func (p *P25) Feed(bits []byte) []ProtocolUnit {
	p.buf = append(p.buf, bits...)
	var out []ProtocolUnit

	for {
		if p.sync.State() == Searching {
			idx, found := p.sync.Search(p.buf)
			if !found {
				// Keep a bounded tail to avoid unbounded growth while
				// still searching.
				if len(p.buf) > 4096 {
					p.buf = p.buf[len(p.buf)-4096:]
				}
				return out
			}
			p.buf = p.buf[idx:]
			continue
		}

		// LOCKED: the 64-bit NID must be read (and BCH-style
		// Golay-corrected) first, since its DUID determines how many
		// further bits this frame carries.
		if len(p.buf) < 64 {
			return out
		}
		nid := p.buf[:64]
		nac, duid, nidCorrections, nidOK := decodeNID(nid)

		payloadBits := p25NonTSBKPayloadBits
		if nidOK && duid == p25DUIDTsbk {
			payloadBits = tsbkWireBits
		}
		total := 64 + payloadBits
		if len(p.buf) < total {
			return out
		}
		payload := p.buf[64:total]
		p.buf = p.buf[total:]
		p.frameIdx++

		if len(p.buf) >= 48 {
			p.sync.VerifyAtBoundary(p.buf[:48])
		}

		if !nidOK {
			// BCH/Golay-uncorrectable NID: the frame is unreadable,
			// drop it (spec.md §4.3, "uncorrectable units are dropped").
			continue
		}

		unit, ok := p.decodeFrame(nac, duid, payload, nidCorrections)
		if ok {
			out = append(out, unit)
		}
	}
}

// decodeNID extracts and Golay-corrects the NAC and DUID from a 64-bit
// NID (spec.md §4.3's "leading 12 bits are NAC and bits 60..63 are the
// DUID"). NAC sits in a Golay(24,12) codeword occupying nid[0:24]
// (info = the literal NAC bits, parity in the otherwise-unused
// nid[12:24]); DUID sits at the tail of a Golay(20,10) codeword over
// nid[44:64], bit-reversed so its 4 systematic info bits land on the
// literal nid[60:64] offset instead of the code's natural leading
// position. Both must decode cleanly or the whole NID is treated as
// uncorrectable.
func decodeNID(nid []byte) (nac, duid, corrections int, ok bool) {
	nacInfo, nacCorr, nacOK := fec.DecodeGolay2412(nid[0:24])
	if !nacOK {
		return 0, 0, 0, false
	}
	duidBlock := reverseBits(nid[44:64])
	duidInfo, duidCorr, duidOK := fec.DecodeGolay2010(duidBlock)
	if !duidOK {
		return 0, 0, 0, false
	}
	duidBits := reverseBits(duidInfo)[6:10]

	nac = bitsToInt(nacInfo)
	duid = bitsToInt(duidBits)
	return nac, duid, nacCorr + duidCorr, true
}

// EncodeNID is decodeNID's inverse, used to synthesize valid P25 NIDs
// in tests: it applies the same Golay(24,12)/Golay(20,10) systematic
// encoding decodeNID expects.
func EncodeNID(nac, duid int) []byte {
	nid := make([]byte, 64)
	copy(nid[0:24], fec.EncodeGolay2412(bitsFromUint64(uint64(nac), 12)))

	d := bitsFromUint64(uint64(duid), 4)
	info := make([]byte, 10)
	info[0], info[1], info[2], info[3] = d[3], d[2], d[1], d[0]
	copy(nid[44:64], reverseBits(fec.EncodeGolay2010(info)))
	return nid
}

func (p *P25) decodeFrame(nac, duid int, payload []byte, nidCorrections int) (ProtocolUnit, bool) {
	if p.expectedNAC != 0 && nac != p.expectedNAC {
		return ProtocolUnit{}, false
	}

	channelKind := p25DUIDName(duid)
	unit := ProtocolUnit{
		ChannelKind: channelKind,
		FrameIndex:  p.frameIdx,
	}

	if duid != p25DUIDTsbk {
		// Only TSBK carries trunking signaling in this implementation's
		// scope; other DUIDs (HDU/LDU/TDU/PDU) are voice/data frames
		// the call manager consumes via the codec black box, not the
		// signaling parser.
		unit.Bits = payload
		unit.CRCOk = true
		return unit, true
	}

	info, tsbkCorrections, ok := decodeTSBKWire(payload[:tsbkFECBits])
	if !ok {
		// Golay/Hamming-uncorrectable TSBK payload (spec.md §4.3).
		return ProtocolUnit{}, false
	}
	crcField := payload[tsbkFECBits:tsbkWireBits]
	want := fec.PackBits(crcField)
	got := fec.CRC16Bits(info, 0xFFFF)

	unit.CRCOk = got == uint16(want[0])<<8|uint16(want[1])
	unit.Bits = info
	unit.BEREstimate = float64(nidCorrections+tsbkCorrections) / float64(64+tsbkFECBits)
	return unit, true
}

// decodeTSBKWire Golay/Hamming-decodes a TSBK's 232-bit FEC-protected
// wire payload down to its 128 clean information bits, counting every
// corrected bit error. Any block that fails to decode makes the whole
// TSBK uncorrectable.
func decodeTSBKWire(wire []byte) (info []byte, corrections int, ok bool) {
	if len(wire) != tsbkFECBits {
		return nil, 0, false
	}
	info = make([]byte, 0, tsbkCleanBits)
	offset := 0
	for i := 0; i < tsbkGolayBlocks; i++ {
		clean, corr, blockOK := fec.DecodeGolay2412(wire[offset : offset+24])
		if !blockOK {
			return nil, 0, false
		}
		info = append(info, clean...)
		corrections += corr
		offset += 24
	}
	for i := 0; i < tsbkHammingBlocks; i++ {
		clean, corr, blockOK := fec.DecodeHamming1611(wire[offset : offset+16])
		if !blockOK {
			return nil, 0, false
		}
		info = append(info, clean...)
		corrections += corr
		offset += 16
	}
	return info, corrections, true
}

// EncodeTSBKWire is decodeTSBKWire's inverse, used to synthesize valid
// FEC-protected TSBK payloads in tests.
func EncodeTSBKWire(info []byte) []byte {
	wire := make([]byte, 0, tsbkFECBits)
	offset := 0
	for i := 0; i < tsbkGolayBlocks; i++ {
		wire = append(wire, fec.EncodeGolay2412(info[offset:offset+12])...)
		offset += 12
	}
	for i := 0; i < tsbkHammingBlocks; i++ {
		wire = append(wire, fec.EncodeHamming1611(info[offset:offset+11])...)
		offset += 11
	}
	return wire
}

func p25DUIDName(duid int) string {
	switch duid {
	case 0x0:
		return "hdu"
	case 0x3:
		return "tdu"
	case 0x5:
		return "ldu1"
	case p25DUIDTsbk:
		return "tsbk"
	case 0xA:
		return "ldu2"
	case 0xC:
		return "pdu"
	default:
		return "unknown"
	}
}

func bitsToInt(bits []byte) int {
	v := 0
	for _, b := range bits {
		v = (v << 1) | int(b)
	}
	return v
}

func bitsFromUint64(v uint64, n int) []byte {
	bits := make([]byte, n)
	for i := 0; i < n; i++ {
		shift := uint(n - 1 - i)
		bits[i] = byte((v >> shift) & 1)
	}
	return bits
}

// reverseBits returns a new slice with b's elements in reverse order.
func reverseBits(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
