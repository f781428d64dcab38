package trunking

import "trunkrx/internal/phy"

// P25 opcode values dispatched out of a TSBK payload (spec.md §4.4).
const (
	p25OpGroupVoiceGrant     = 0x00
	p25OpGroupVoiceUpdate    = 0x02
	p25OpUnitToUnitVoiceGrant = 0x04
	p25OpRFSSStatus          = 0x38
	p25OpNetworkStatus       = 0x3A
	p25OpAdjacentSite        = 0x3B
	p25OpIdentifierUpdate    = 0x3C
)

// P25Parser implements internal/trunking.Parser for APCO P25 Phase 1
// TSBK opcodes (spec.md §4.4).
type P25Parser struct {
	NAC          uint32
	WACN         uint32
	SystemID     uint32
	State        SystemState
	Channels     *ChannelIdentifierTable
	Holds        grantHold
	GrantUnresolvedMetric func()
}

// NewP25Parser builds a parser with its own channel identifier table.
func NewP25Parser() *P25Parser {
	return &P25Parser{Channels: NewChannelIdentifierTable()}
}

// HandleUnit dispatches one validated TSBK unit by its leading opcode
// (bits 0..5), per spec.md §4.4.
func (p *P25Parser) HandleUnit(unit phy.ProtocolUnit, nowMS uint64) ([]Event, error) {
	if !unit.CRCOk || unit.ChannelKind != "tsbk" || len(unit.Bits) < 6 {
		return nil, nil
	}
	opcode := extractField(unit.Bits, 0, 5)

	// An Identifier Update is applied before held grants are retried, so
	// a grant waiting on that identifier resolves on this same unit.
	if opcode == p25OpIdentifierUpdate {
		identifier := int(extractField(unit.Bits, 6, 9))
		base := int64(extractField(unit.Bits, 10, 41))
		spacing := int64(extractField(unit.Bits, 42, 51))
		offset := int64(extractField(unit.Bits, 52, 61))
		p.Channels.Update(identifier, base, spacing, offset)
	}

	var events []Event
	if resolved, expired := p.Holds.Resolve(p.Channels, nowMS); len(resolved) > 0 || expired > 0 {
		for _, g := range resolved {
			gg := g
			events = append(events, Event{CallGrant: &gg, Timestamp: nowMS})
		}
		if expired > 0 && p.GrantUnresolvedMetric != nil {
			for i := 0; i < expired; i++ {
				p.GrantUnresolvedMetric()
			}
		}
	}

	switch opcode {
	case p25OpGroupVoiceGrant:
		events = append(events, p.groupVoiceGrant(unit.Bits, nowMS, true)...)
	case p25OpGroupVoiceUpdate:
		events = append(events, p.groupVoiceGrant(unit.Bits, nowMS, false)...)
	case p25OpUnitToUnitVoiceGrant:
		options := extractField(unit.Bits, 6, 13)
		talkgroup := extractField(unit.Bits, 34, 49)
		source := extractField(unit.Bits, 50, 73)
		grant := CallGrant{
			TalkgroupID:     uint32(talkgroup),
			SourceID:        uint32(source),
			CallType:        CallPrivate,
			Encrypted:       options&0x40 != 0,
			EncryptionLabel: EncryptionNone,
			TimestampMS:     nowMS,
		}
		if grant.Encrypted {
			grant.EncryptionLabel = EncryptionTEA1
		}
		events = append(events, Event{CallGrant: &grant, Timestamp: nowMS})
	case p25OpIdentifierUpdate:
		// Already applied to the channel table above.
	case p25OpRFSSStatus, p25OpNetworkStatus, p25OpAdjacentSite:
		// System-state-only opcodes: no grant, no channel-table change
		// beyond what an Identifier Update already carries.
	}
	return events, nil
}

func (p *P25Parser) groupVoiceGrant(bits []byte, nowMS uint64, hasSource bool) []Event {
	options := extractField(bits, 6, 13)
	frequencyID := int(extractField(bits, 22, 33))
	talkgroup := extractField(bits, 34, 49)

	grant := CallGrant{
		TalkgroupID:     uint32(talkgroup),
		CallType:        CallGroup,
		Encrypted:       options&0x40 != 0,
		EncryptionLabel: EncryptionNone,
		TimestampMS:     nowMS,
	}
	if hasSource && len(bits) >= 74 {
		grant.SourceID = uint32(extractField(bits, 50, 73))
	}
	if grant.Encrypted {
		grant.EncryptionLabel = EncryptionTEA1
	}

	if hz, ok := p.Channels.Resolve(frequencyID); ok {
		grant.FrequencyHz = hz
		return []Event{{CallGrant: &grant, Timestamp: nowMS}}
	}
	p.Holds.Hold(frequencyID, grant, nowMS)
	return nil
}
