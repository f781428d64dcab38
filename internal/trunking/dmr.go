package trunking

import "trunkrx/internal/phy"

const (
	dmrOpChannelGrant      = 0x06
	dmrOpTalkgroupAnnounce = 0x08
	dmrOpPreamble          = 0x3D
)

// DMRParser implements internal/trunking.Parser for DMR CSBKs
// (spec.md §4.4). Every grant carries the configured rest-channel
// frequency: the CSBK's slot flag is read but does not change it, and
// no channel identifier table or voice-channel index is consulted.
type DMRParser struct {
	ColorCode uint32
	State     SystemState
	RestChannelHz float64
}

// NewDMRParser builds a parser for a fixed rest-channel frequency.
func NewDMRParser(restChannelHz float64) *DMRParser {
	return &DMRParser{RestChannelHz: restChannelHz}
}

// HandleUnit dispatches a validated CSBK payload by its leading
// opcode (bits 0..5 of the BPTC-decoded payload), per spec.md §4.4.
func (d *DMRParser) HandleUnit(unit phy.ProtocolUnit, nowMS uint64) ([]Event, error) {
	if !unit.CRCOk || unit.ChannelKind != "csbk" || len(unit.Bits) < 6 {
		return nil, nil
	}
	opcode := extractField(unit.Bits, 0, 5)

	switch opcode {
	case dmrOpChannelGrant:
		if len(unit.Bits) < 64 {
			return nil, nil
		}
		source := extractField(unit.Bits, 16, 39)
		destination := extractField(unit.Bits, 40, 63)
		slotFlag := extractField(unit.Bits, 8, 8)
		_ = slotFlag // which TDMA half of the rest channel; frequency itself doesn't depend on it here

		grant := CallGrant{
			TalkgroupID:     uint32(destination),
			SourceID:        uint32(source),
			FrequencyHz:     d.RestChannelHz,
			CallType:        CallGroup,
			EncryptionLabel: EncryptionNone,
			TimestampMS:     nowMS,
		}
		return []Event{{CallGrant: &grant, Timestamp: nowMS}}, nil
	case dmrOpTalkgroupAnnounce, dmrOpPreamble:
		// State-only opcodes: no grant.
	}
	return nil, nil
}
