package trunking

import (
	"strings"

	"golang.org/x/text/encoding/charmap"

	"trunkrx/internal/phy"
)

// TETRA MCCH D-SETUP call types and encryption classes (spec.md §4.4).
const (
	tetraEncryptionClear = 0x0
	tetraEncryptionTEA1  = 0x1
	tetraEncryptionTEA2  = 0x2
	tetraEncryptionTEA3  = 0x3
)

// TETRAParser implements internal/trunking.Parser for ETSI TETRA
// BSCH/BNCH/MCCH logical channels (spec.md §4.4).
type TETRAParser struct {
	State        SystemState
	FrequencyBaseHz float64 // e.g. 380 MHz for the emergency band
	SpacingHz       float64 // 25 kHz default

	NetworkName     string
	LocationArea    uint32
}

// NewTETRAParser builds a parser for a given frequency-index base and
// channel spacing (spec.md §4.4 example: 380 MHz base, 25 kHz spacing).
func NewTETRAParser(frequencyBaseHz, spacingHz float64) *TETRAParser {
	return &TETRAParser{FrequencyBaseHz: frequencyBaseHz, SpacingHz: spacingHz}
}

// HandleUnit dispatches a validated TETRA unit by its logical channel
// (spec.md §4.4).
func (t *TETRAParser) HandleUnit(unit phy.ProtocolUnit, nowMS uint64) ([]Event, error) {
	if !unit.CRCOk {
		return nil, nil
	}
	switch unit.ChannelKind {
	case "bsch":
		return t.handleBSCH(unit.Bits, nowMS)
	case "bnch":
		return t.handleBNCH(unit.Bits)
	case "mcch":
		return t.handleMCCH(unit.Bits, nowMS)
	}
	return nil, nil
}

func (t *TETRAParser) handleBSCH(bits []byte, nowMS uint64) ([]Event, error) {
	if len(bits) < 30 {
		return nil, nil
	}
	candidate := SystemState{
		Identified: true,
		Type:       "tetra",
		MCC:        uint32(extractField(bits, 0, 9)),
		MNC:        uint32(extractField(bits, 10, 23)),
		ColorCode:  uint32(extractField(bits, 24, 29)),
	}
	if t.State.Identify(candidate) {
		si := SystemIdentified{
			Type:      candidate.Type,
			MCC:       candidate.MCC,
			MNC:       candidate.MNC,
			ColorCode: candidate.ColorCode,
		}
		return []Event{{SystemIdentified: &si, Timestamp: nowMS}}, nil
	}
	return nil, nil
}

func (t *TETRAParser) handleBNCH(bits []byte) ([]Event, error) {
	if len(bits) < 16 {
		return nil, nil
	}
	t.LocationArea = uint32(extractField(bits, 0, 15))
	t.NetworkName = decodeNetworkName(bits[16:])
	return nil, nil
}

// decodeNetworkName decodes the character-coded remainder of a BNCH
// PDU. ETSI EN 300 392-2 allows either 7-bit or 8-bit character
// coding; this repo decodes assuming 8-bit ISO-8859-1 octets and drops
// the control characters that yields, rather than assuming plain ASCII
// unconditionally. 7-bit character coding is not unpacked separately.
func decodeNetworkName(bits []byte) string {
	packed := packBitsToBytes(bits)
	decoded, err := charmap.ISO8859_1.NewDecoder().String(string(packed))
	if err != nil {
		decoded = string(packed)
	}
	var b strings.Builder
	for _, r := range decoded {
		if (r >= 0x20 && r < 0x7F) || r >= 0xA0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func packBitsToBytes(bits []byte) []byte {
	n := len(bits) / 8
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		var v byte
		for j := 0; j < 8; j++ {
			v = (v << 1) | bits[i*8+j]
		}
		out[i] = v
	}
	return out
}

func (t *TETRAParser) handleMCCH(bits []byte, nowMS uint64) ([]Event, error) {
	if len(bits) < 8 {
		return nil, nil
	}
	pduType := extractField(bits, 0, 7)
	switch {
	case pduType == 0x01: // D-SETUP, a single-value discriminator this core fixes for its MCCH subset
		return t.handleDSetup(bits, nowMS)
	case pduType == 0x02: // D-RELEASE
		return t.handleDRelease(bits, nowMS)
	}
	return nil, nil
}

func (t *TETRAParser) handleDSetup(bits []byte, nowMS uint64) ([]Event, error) {
	if len(bits) < 74 {
		return nil, nil
	}
	callTypeCode := extractField(bits, 8, 11)
	talkgroup := extractField(bits, 12, 35)
	source := extractField(bits, 36, 59)
	frequencyIndex := extractField(bits, 60, 71)
	encryptionClass := extractField(bits, 72, 73)

	callType := CallGroup
	if callTypeCode == 1 {
		callType = CallPrivate
	} else if callTypeCode == 2 {
		callType = CallEmergency
	}

	grant := CallGrant{
		TalkgroupID:     uint32(talkgroup),
		SourceID:        uint32(source),
		FrequencyHz:     t.FrequencyBaseHz + float64(frequencyIndex)*t.SpacingHz,
		CallType:        callType,
		Encrypted:       encryptionClass != tetraEncryptionClear,
		EncryptionLabel: tetraEncryptionLabel(encryptionClass),
		TimestampMS:     nowMS,
	}
	return []Event{{CallGrant: &grant, Timestamp: nowMS}}, nil
}

func (t *TETRAParser) handleDRelease(bits []byte, nowMS uint64) ([]Event, error) {
	if len(bits) < 32 {
		return nil, nil
	}
	talkgroup := extractField(bits, 8, 31)
	term := CallTerminate{TalkgroupID: uint32(talkgroup)}
	return []Event{{CallTerminate: &term, Timestamp: nowMS}}, nil
}

func tetraEncryptionLabel(class uint64) EncryptionLabel {
	switch class {
	case tetraEncryptionTEA1:
		return EncryptionTEA1
	case tetraEncryptionTEA2:
		return EncryptionTEA2
	case tetraEncryptionTEA3:
		return EncryptionTEA3
	default:
		return EncryptionNone
	}
}
