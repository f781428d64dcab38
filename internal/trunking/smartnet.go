package trunking

import "trunkrx/internal/phy"

const smartNetCommandGroupGrant = 0x00

// SmartNetParser implements internal/trunking.Parser for Motorola
// SmartNet Type II OSWs (spec.md §4.4). Unlike P25/DMR/TETRA, SmartNet
// carries no broadcast channel table: frequency is computed directly
// from the configured base and spacing.
type SmartNetParser struct {
	BaseHz      float64
	SpacingHz   float64
	State       SystemState
}

// NewSmartNetParser builds a parser for a fixed base/spacing pair
// (spec.md §8 S3: base=851_000_000, spacing=25_000).
func NewSmartNetParser(baseHz, spacingHz float64) *SmartNetParser {
	return &SmartNetParser{BaseHz: baseHz, SpacingHz: spacingHz}
}

// HandleUnit decodes one validated OSW (spec.md §4.4's "SmartNet OSW
// decoding": command high-5-bits = 0x00 means group voice channel
// grant, channel number = low 6 bits of the 11-bit command field).
func (s *SmartNetParser) HandleUnit(unit phy.ProtocolUnit, nowMS uint64) ([]Event, error) {
	if !unit.CRCOk || unit.ChannelKind != "osw" || len(unit.Bits) < 24 {
		return nil, nil
	}
	address := extractField(unit.Bits, 0, 9)
	command := extractField(unit.Bits, 13, 23) // address(10)+group(3) precede command(11)
	commandHigh5 := (command >> 6) & 0x1F
	channel := command & 0x3F

	if commandHigh5 != smartNetCommandGroupGrant {
		return nil, nil
	}
	grant := CallGrant{
		TalkgroupID:     uint32(address),
		FrequencyHz:     s.BaseHz + float64(channel)*s.SpacingHz,
		CallType:        CallGroup,
		EncryptionLabel: EncryptionNone,
		TimestampMS:     nowMS,
	}
	return []Event{{CallGrant: &grant, Timestamp: nowMS}}, nil
}
