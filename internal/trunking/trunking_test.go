package trunking

import (
	"testing"

	"trunkrx/internal/phy"
)

func bitsFromUint(v uint64, n int) []byte {
	bits := make([]byte, n)
	for i := 0; i < n; i++ {
		shift := uint(n - 1 - i)
		bits[i] = byte((v >> shift) & 1)
	}
	return bits
}

// buildP25TSBK assembles a 6-bit opcode followed by the rest of a
// 144-bit TSBK payload (the caller fills in whichever fields matter).
func buildP25TSBK(opcode int, fields map[[2]int]uint64) []byte {
	bits := make([]byte, 144)
	copy(bits[0:6], bitsFromUint(uint64(opcode), 6))
	for rng, val := range fields {
		copy(bits[rng[0]:rng[1]+1], bitsFromUint(val, rng[1]-rng[0]+1))
	}
	return bits
}

func TestP25IdentifierUpdateThenGroupVoiceGrantResolvesFrequency(t *testing.T) {
	p := NewP25Parser()

	idUpdate := buildP25TSBK(p25OpIdentifierUpdate, map[[2]int]uint64{
		{6, 9}:   1,
		{10, 41}: 851_000_000 / 5000,
		{42, 51}: 25000 / 125,
		{52, 61}: 0,
	})
	_, err := p.HandleUnit(phy.ProtocolUnit{ChannelKind: "tsbk", CRCOk: true, Bits: idUpdate}, 0)
	if err != nil {
		t.Fatal(err)
	}

	grant := buildP25TSBK(p25OpGroupVoiceGrant, map[[2]int]uint64{
		{22, 33}: 1,
		{34, 49}: 100,
		{50, 73}: 4097,
	})
	events, err := p.HandleUnit(phy.ProtocolUnit{ChannelKind: "tsbk", CRCOk: true, Bits: grant}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].CallGrant == nil {
		t.Fatalf("got %d events, want 1 CallGrant", len(events))
	}
	g := events[0].CallGrant
	if g.TalkgroupID != 100 || g.SourceID != 4097 {
		t.Errorf("grant = %+v, want talkgroup=100 source=4097", g)
	}
	if g.FrequencyHz != 851_025_000 {
		t.Errorf("frequency = %v, want 851025000 (spec.md S1)", g.FrequencyHz)
	}
	if g.Encrypted {
		t.Error("expected unencrypted grant")
	}
}

func TestP25GrantHeldUntilIdentifierUpdateArrives(t *testing.T) {
	p := NewP25Parser()
	grant := buildP25TSBK(p25OpGroupVoiceGrant, map[[2]int]uint64{
		{22, 33}: 1,
		{34, 49}: 100,
	})
	events, _ := p.HandleUnit(phy.ProtocolUnit{ChannelKind: "tsbk", CRCOk: true, Bits: grant}, 0)
	if len(events) != 0 {
		t.Fatalf("got %d events before identifier update, want 0", len(events))
	}

	idUpdate := buildP25TSBK(p25OpIdentifierUpdate, map[[2]int]uint64{
		{6, 9}:   1,
		{10, 41}: 851_000_000 / 5000,
		{42, 51}: 25000 / 125,
	})
	events, _ = p.HandleUnit(phy.ProtocolUnit{ChannelKind: "tsbk", CRCOk: true, Bits: idUpdate}, 500)
	if len(events) != 1 || events[0].CallGrant == nil {
		t.Fatalf("got %d events, want the held grant to resolve", len(events))
	}
}

func TestP25GrantExpiresAfterOneSecond(t *testing.T) {
	p := NewP25Parser()
	var unresolvedCount int
	p.GrantUnresolvedMetric = func() { unresolvedCount++ }

	grant := buildP25TSBK(p25OpGroupVoiceGrant, map[[2]int]uint64{
		{22, 33}: 1,
		{34, 49}: 100,
	})
	p.HandleUnit(phy.ProtocolUnit{ChannelKind: "tsbk", CRCOk: true, Bits: grant}, 0)

	// Drive an unrelated unit after the 1s deadline to trigger expiry.
	idle := buildP25TSBK(0x38, nil)
	p.HandleUnit(phy.ProtocolUnit{ChannelKind: "tsbk", CRCOk: true, Bits: idle}, 1500)

	if unresolvedCount != 1 {
		t.Errorf("unresolvedCount = %d, want 1", unresolvedCount)
	}
}

func TestSmartNetGroupGrant(t *testing.T) {
	s := NewSmartNetParser(851_000_000, 25_000)
	command := (0x00 << 6) | 3 // high-5=0x00 (grant), channel=3
	data := append(bitsFromUint(1234, 10), append(bitsFromUint(0, 3), bitsFromUint(uint64(command), 11)...)...)

	events, err := s.HandleUnit(phy.ProtocolUnit{ChannelKind: "osw", CRCOk: true, Bits: data}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].CallGrant == nil {
		t.Fatalf("got %d events, want 1 CallGrant", len(events))
	}
	g := events[0].CallGrant
	if g.TalkgroupID != 1234 {
		t.Errorf("talkgroup = %d, want 1234", g.TalkgroupID)
	}
	if g.FrequencyHz != 851_075_000 {
		t.Errorf("frequency = %v, want 851075000 (spec.md S3)", g.FrequencyHz)
	}
}

func TestDMRChannelGrant(t *testing.T) {
	d := NewDMRParser(851_500_000)
	bits := make([]byte, 64)
	copy(bits[0:6], bitsFromUint(dmrOpChannelGrant, 6))
	copy(bits[16:40], bitsFromUint(4097, 24))
	copy(bits[40:64], bitsFromUint(100, 24))

	events, err := d.HandleUnit(phy.ProtocolUnit{ChannelKind: "csbk", CRCOk: true, Bits: bits}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].CallGrant == nil {
		t.Fatalf("got %d events, want 1 CallGrant", len(events))
	}
	g := events[0].CallGrant
	if g.TalkgroupID != 100 || g.SourceID != 4097 {
		t.Errorf("grant = %+v, want talkgroup=100 source=4097", g)
	}
}

func TestTETRABSCHIdentifiesSystemThenDSetupGrantsCall(t *testing.T) {
	tp := NewTETRAParser(380_000_000, 25_000)

	bsch := make([]byte, 30)
	copy(bsch[0:10], bitsFromUint(234, 10))
	copy(bsch[10:24], bitsFromUint(14, 14))
	copy(bsch[24:30], bitsFromUint(1, 6))
	events, err := tp.HandleUnit(phy.ProtocolUnit{ChannelKind: "bsch", CRCOk: true, Bits: bsch}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].SystemIdentified == nil {
		t.Fatalf("got %d events, want 1 SystemIdentified", len(events))
	}
	si := events[0].SystemIdentified
	if si.MCC != 234 || si.MNC != 14 || si.ColorCode != 1 {
		t.Errorf("system = %+v, want mcc=234 mnc=14 cc=1", si)
	}

	mcch := make([]byte, 74)
	copy(mcch[0:8], bitsFromUint(0x01, 8)) // D-SETUP
	copy(mcch[12:36], bitsFromUint(1001, 24))
	copy(mcch[36:60], bitsFromUint(456789, 24))
	freqIdx := uint64((382_812_500 - 380_000_000) / 25_000)
	copy(mcch[60:72], bitsFromUint(freqIdx, 12))
	copy(mcch[72:74], bitsFromUint(0x01, 2)) // encryption class = TEA1

	events, err = tp.HandleUnit(phy.ProtocolUnit{ChannelKind: "mcch", CRCOk: true, Bits: mcch}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].CallGrant == nil {
		t.Fatalf("got %d events, want 1 CallGrant", len(events))
	}
	g := events[0].CallGrant
	if g.TalkgroupID != 1001 || g.SourceID != 456789 {
		t.Errorf("grant = %+v, want talkgroup=1001 source=456789", g)
	}
	if g.FrequencyHz != 382_812_500 {
		t.Errorf("frequency = %v, want 382812500 (spec.md S6)", g.FrequencyHz)
	}
	if !g.Encrypted || g.EncryptionLabel != EncryptionTEA1 {
		t.Errorf("expected encrypted TEA1 grant, got %+v", g)
	}
}

func TestTETRASecondBSCHIgnoredOnceIdentified(t *testing.T) {
	tp := NewTETRAParser(380_000_000, 25_000)
	first := make([]byte, 30)
	copy(first[0:10], bitsFromUint(234, 10))
	tp.HandleUnit(phy.ProtocolUnit{ChannelKind: "bsch", CRCOk: true, Bits: first}, 0)

	contradicting := make([]byte, 30)
	copy(contradicting[0:10], bitsFromUint(999, 10))
	events, _ := tp.HandleUnit(phy.ProtocolUnit{ChannelKind: "bsch", CRCOk: true, Bits: contradicting}, 10)
	if len(events) != 0 {
		t.Errorf("got %d events, want 0 (system stays locked to first-seen)", len(events))
	}
	if tp.State.MCC != 234 {
		t.Errorf("MCC = %d, want 234 to remain locked", tp.State.MCC)
	}
}
