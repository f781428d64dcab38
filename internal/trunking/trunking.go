// Package trunking implements the signaling parser for each trunking
// family (spec.md §4.4): routes validated ProtocolUnits by logical
// channel, extracts grant/system-info fields at their literal bit
// offsets, and maintains per-system state and the channel identifier
// table.
package trunking

import "trunkrx/internal/phy"

// EncryptionLabel names the encryption algorithm a grant reports,
// never decrypted by this core (spec.md §1, §4.4).
type EncryptionLabel string

const (
	EncryptionNone EncryptionLabel = "none"
	EncryptionTEA1 EncryptionLabel = "TEA1"
	EncryptionTEA2 EncryptionLabel = "TEA2"
	EncryptionTEA3 EncryptionLabel = "TEA3"
	EncryptionTEA4 EncryptionLabel = "TEA4"
)

// CallType enumerates the call types a grant can carry.
type CallType string

const (
	CallGroup     CallType = "group"
	CallPrivate   CallType = "private"
	CallEmergency CallType = "emergency"
)

// CallGrant is the parser's primary output event (spec.md §3).
type CallGrant struct {
	TalkgroupID      uint32
	SourceID         uint32
	FrequencyHz      float64
	CallType         CallType
	Encrypted        bool
	EncryptionLabel  EncryptionLabel
	Priority         uint8
	TimestampMS      uint64
}

// SystemIdentified is emitted once a system's identity scalars are
// fixed (spec.md §6).
type SystemIdentified struct {
	Type      string
	NAC       uint32
	WACN      uint32
	SystemID  uint32
	MCC       uint32
	MNC       uint32
	ColorCode uint32
}

// CallEnded is emitted by the call manager, routed back through the
// event bus; trunking doesn't emit it but Event shares a sum type with
// it at the bus boundary (internal/events).
type CallEnded struct {
	TalkgroupID uint32
	DurationMS  uint64
}

// CallTerminate is emitted by a protocol family that carries an
// explicit call-teardown message (e.g. TETRA's MCCH D-RELEASE),
// naming the call to close by its talkgroup ID (spec.md §3, "destroyed
// on explicit terminator or after CALL_TIMEOUT_MS").
type CallTerminate struct {
	TalkgroupID uint32
}

// Event is the sum type parsers emit; exactly one of the fields is set.
type Event struct {
	SystemIdentified *SystemIdentified
	CallGrant        *CallGrant
	CallTerminate    *CallTerminate
	Timestamp        uint64
}

// Parser is the common contract every protocol family implements
// (SPEC_FULL.md §4.4).
type Parser interface {
	HandleUnit(unit phy.ProtocolUnit, nowMS uint64) ([]Event, error)
}

// ChannelIdentifierTable maps an integer channel/frequency identifier
// to the formula needed to resolve it to an RF frequency in Hz, built
// from broadcast Identifier Update / BNCH / base+spacing messages
// (spec.md §3).
type ChannelIdentifierTable struct {
	entries map[int]channelBand
}

type channelBand struct {
	baseRaw, spacingRaw, offsetRaw int64
}

// NewChannelIdentifierTable builds an empty table.
func NewChannelIdentifierTable() *ChannelIdentifierTable {
	return &ChannelIdentifierTable{entries: map[int]channelBand{}}
}

// Update stores (or idempotently overwrites) one identifier's band
// parameters. Applying the same update twice leaves the table
// unchanged; applying a new update for the same identifier overwrites
// only that entry (spec.md §8's round-trip law).
func (c *ChannelIdentifierTable) Update(identifier int, baseRaw, spacingRaw, offsetRaw int64) {
	c.entries[identifier] = channelBand{baseRaw, spacingRaw, offsetRaw}
}

// Resolve maps a frequency-ID to an actual frequency in Hz, per
// spec.md §4.4's `base*5kHz + offset + channel_id*spacing*125Hz`
// formula. The identifier band is keyed by the frequency-ID's low 4
// bits (P25's Identifier Update identifier field width); the full
// frequency-ID value is the channel_id parameter.
func (c *ChannelIdentifierTable) Resolve(frequencyID int) (hz float64, ok bool) {
	band, found := c.entries[frequencyID&0xF]
	if !found {
		return 0, false
	}
	hz = float64(band.baseRaw)*5000 + float64(band.offsetRaw) + float64(frequencyID)*float64(band.spacingRaw)*125
	return hz, true
}

// SystemState tracks the per-system identity scalars spec.md §3/§4.4
// describes: initial UNIDENTIFIED, transitions to IDENTIFIED on first
// successful broadcast, then stays locked to that system.
type SystemState struct {
	Identified bool
	Type       string
	NAC        uint32
	WACN       uint32
	SystemID   uint32
	MCC        uint32
	MNC        uint32
	ColorCode  uint32
}

// Identify fixes the system's scalars on first call; subsequent calls
// with contradicting scalars are ignored (spec.md §4.4's "decoder
// stays locked to its first-seen system").
func (s *SystemState) Identify(candidate SystemState) (changed bool) {
	if s.Identified {
		return false
	}
	*s = candidate
	s.Identified = true
	return true
}

// extractField reads an inclusive bit range [from, to] of a 0/1 byte
// slice (spec.md §4.4's "(a..b)" notation) and returns it MSB-first as
// an integer.
func extractField(bits []byte, from, to int) uint64 {
	if from < 0 || to >= len(bits) || from > to {
		return 0
	}
	var v uint64
	for i := from; i <= to; i++ {
		v = (v << 1) | uint64(bits[i])
	}
	return v
}

// pendingGrant is a grant awaiting frequency-ID resolution, held for
// up to one second per spec.md §4.4's "Failure semantics".
type pendingGrant struct {
	frequencyID int
	grant       CallGrant
	deadlineMS  uint64
}

// grantHold accumulates grants whose frequency could not yet be
// resolved and re-attempts resolution as Identifier Updates arrive.
type grantHold struct {
	pending []pendingGrant
}

// Hold queues a grant missing its frequency, to expire at nowMS+1000.
func (g *grantHold) Hold(frequencyID int, grant CallGrant, nowMS uint64) {
	g.pending = append(g.pending, pendingGrant{frequencyID, grant, nowMS + 1000})
}

// Resolve re-attempts resolution of every held grant against the
// table, returning newly resolvable grants and dropping any that have
// exceeded their deadline (counted by the caller).
func (g *grantHold) Resolve(table *ChannelIdentifierTable, nowMS uint64) (resolved []CallGrant, expired int) {
	var remaining []pendingGrant
	for _, p := range g.pending {
		if hz, ok := table.Resolve(p.frequencyID); ok {
			p.grant.FrequencyHz = hz
			resolved = append(resolved, p.grant)
			continue
		}
		if nowMS >= p.deadlineMS {
			expired++
			continue
		}
		remaining = append(remaining, p)
	}
	g.pending = remaining
	return resolved, expired
}
