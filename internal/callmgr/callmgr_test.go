package callmgr

import (
	"testing"

	"trunkrx/internal/trunking"
)

func TestHandleGrantOpensActiveCall(t *testing.T) {
	m := New(nil, nil)
	call := m.HandleGrant(trunking.CallGrant{TalkgroupID: 100, SourceID: 4097, FrequencyHz: 851_025_000}, 0)
	if call == nil {
		t.Fatal("expected a call to open")
	}
	calls := m.ActiveCalls()
	if len(calls) != 1 || calls[0].TalkgroupID != 100 {
		t.Fatalf("active calls = %+v, want one call for talkgroup 100", calls)
	}
}

func TestDisabledTalkgroupDropped(t *testing.T) {
	allowed := func(tg uint32) bool { return tg == 200 }
	m := New(allowed, nil)
	call := m.HandleGrant(trunking.CallGrant{TalkgroupID: 100}, 0)
	if call != nil {
		t.Error("expected grant for disabled talkgroup to be dropped (spec.md S2)")
	}
	if len(m.ActiveCalls()) != 0 {
		t.Error("expected no active calls")
	}
}

func TestTickExpiresCallAfterTimeout(t *testing.T) {
	var ended []CallEnded
	m := New(nil, nil)
	m.OnCallEnded = func(e CallEnded) { ended = append(ended, e) }
	m.HandleGrant(trunking.CallGrant{TalkgroupID: 100}, 0)

	m.Tick(4999)
	if len(m.ActiveCalls()) != 1 {
		t.Fatal("expected call to still be active at t=4999 (spec.md S5)")
	}

	m.Tick(5000)
	if len(m.ActiveCalls()) != 0 {
		t.Fatal("expected call to have expired by t=5000")
	}
	if len(ended) != 1 || ended[0].TalkgroupID != 100 {
		t.Fatalf("ended = %+v, want one CallEnded for talkgroup 100", ended)
	}
	if ended[0].DurationMS < 4999 || ended[0].DurationMS > 5001 {
		t.Errorf("duration = %d, want ~5000 (spec.md S5 tolerance)", ended[0].DurationMS)
	}
}

func TestEmergencyGrantGetsPriority10(t *testing.T) {
	m := New(nil, nil)
	m.HandleGrant(trunking.CallGrant{TalkgroupID: 911, CallType: trunking.CallEmergency}, 0)
	calls := m.ActiveCalls()
	if len(calls) != 1 || calls[0].Priority != 10 {
		t.Fatalf("priority = %v, want 10 for emergency grant", calls)
	}
}

func TestAudioQueueDropsLowestPriorityWhenFull(t *testing.T) {
	priorityFor := func(tg uint32) uint8 {
		if tg == 1 {
			return 5
		}
		return 1
	}
	m := New(nil, priorityFor)
	var dropped int
	m.AudioDroppedMetric = func() { dropped++ }
	m.HandleGrant(trunking.CallGrant{TalkgroupID: 1}, 0)
	m.HandleGrant(trunking.CallGrant{TalkgroupID: 2}, 0)

	for i := 0; i < maxQueuedFrames; i++ {
		m.HandleAudioFrame(2, []int16{0}, 0)
	}
	m.HandleAudioFrame(1, []int16{1}, 0)

	frames := m.DrainAudio()
	if len(frames) != maxQueuedFrames {
		t.Fatalf("queue length = %d, want bounded at %d", len(frames), maxQueuedFrames)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	var foundTG1 bool
	for _, f := range frames {
		if f.TalkgroupID == 1 {
			foundTG1 = true
		}
	}
	if !foundTG1 {
		t.Error("expected the higher-priority talkgroup's frame to survive the drop")
	}
}
