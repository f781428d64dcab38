package phy

import "trunkrx/internal/fec"

// DMR sync patterns, 48 bits each (spec.md §4.3; grounded on
// pd0mz-go-dmr/dmr/sync.go's byte-array layout, re-expressed as bit
// slices for this package's Hamming-distance search).
var (
	DMRSyncBSVoice = bitsFromHex("755FD7DF75F7")
	DMRSyncBSData  = bitsFromHex("DFF57D75DF5D")
	DMRSyncMSVoice = bitsFromHex("7F7D5DD57DFD")
	DMRSyncMSData  = bitsFromHex("D5D7F77FD757")
)

const dmrSlotBits = 264

// DMR implements the physical layer for one DMR timeslot: 48-bit sync
// detection, 20-bit Golay(20,10)-protected slot type, and a 196-bit
// BPTC(196,96)-protected info field (spec.md §4.3).
type DMR struct {
	sync            *SyncLock
	buf             []byte
	frameIdx        uint64
	expectedColorCode int
}

// NewDMR builds a DMR physical layer filtering on expectedColorCode
// when nonzero.
func NewDMR(expectedColorCode int) *DMR {
	return &DMR{
		sync: NewSyncLock([][]byte{DMRSyncBSVoice, DMRSyncBSData, DMRSyncMSVoice, DMRSyncMSData}, 4, dmrSlotBits),
		expectedColorCode: expectedColorCode,
	}
}

// SetSyncCallbacks wires the underlying sync-lock's acquired/lost hooks.
func (d *DMR) SetSyncCallbacks(onAcquired, onLost func()) {
	d.sync.OnSyncAcquired = onAcquired
	d.sync.OnSyncLost = onLost
}

func (d *DMR) Feed(slot int, bits []byte) []ProtocolUnit {
	d.buf = append(d.buf, bits...)
	var out []ProtocolUnit

	for {
		if d.sync.State() == Searching {
			idx, found := d.sync.Search(d.buf)
			if !found {
				if len(d.buf) > 2048 {
					d.buf = d.buf[len(d.buf)-2048:]
				}
				return out
			}
			d.buf = d.buf[idx:]
			continue
		}

		const need = 20 + 196 // slot type + info field, sync already consumed
		if len(d.buf) < need {
			return out
		}
		slotType := d.buf[:20]
		info := d.buf[20:216]
		d.buf = d.buf[216:]
		d.frameIdx++

		if len(d.buf) >= 48 {
			d.sync.VerifyAtBoundary(d.buf[:48])
		}

		unit, ok := d.decodeSlot(slot, slotType, info)
		if ok {
			out = append(out, unit)
		}
	}
}

func (d *DMR) decodeSlot(slot int, slotType, info []byte) (ProtocolUnit, bool) {
	stInfo, _, stOK := fec.DecodeGolay2010(slotType)
	if !stOK {
		return ProtocolUnit{}, false
	}
	colorCode := bitsToInt(stInfo[:4])
	dataType := bitsToInt(stInfo[4:8])

	if d.expectedColorCode != 0 && colorCode != d.expectedColorCode {
		return ProtocolUnit{}, false
	}

	payload, bptcOK := fec.DecodeBPTC196_96(info)
	unit := ProtocolUnit{
		ChannelKind: dmrDataTypeName(dataType),
		Slot:        slot,
		FrameIndex:  d.frameIdx,
		Bits:        payload,
		CRCOk:       bptcOK,
	}
	return unit, true
}

func dmrDataTypeName(dt int) string {
	switch dt {
	case 0x00:
		return "voice_lc_header"
	case 0x01:
		return "voice_terminator"
	case 0x03:
		return "csbk"
	case 0x06:
		return "data_header"
	case 0x09:
		return "idle"
	default:
		return "unknown"
	}
}

func bitsFromHex(hex string) []byte {
	var v uint64
	for _, c := range hex {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= uint64(c - '0')
		case c >= 'A' && c <= 'F':
			v |= uint64(c-'A') + 10
		case c >= 'a' && c <= 'f':
			v |= uint64(c-'a') + 10
		}
	}
	return bitsFromUint64(v, len(hex)*4)
}
