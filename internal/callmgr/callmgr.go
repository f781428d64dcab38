// Package callmgr implements the Call Manager (spec.md §4.5): an
// ordered-by-priority table of active calls driven by grants from
// internal/trunking, one bounded audio queue shared by all calls, and tick-based
// timeout expiry. Grounded on the teacher's session.go, which owns an
// equivalent mutex-guarded map keyed by a UUID session ID with a
// cleanup goroutine ticking on an interval; this package keeps that
// shape and swaps "web session" for "radio call".
package callmgr

import (
	"sync"

	"github.com/google/uuid"

	"trunkrx/internal/trunking"
)

// AudioFrame is one block of decoded PCM audio awaiting the sink.
type AudioFrame struct {
	TalkgroupID uint32
	PCM         []int16
}

// ActiveCall is one in-progress call (spec.md §3).
type ActiveCall struct {
	ID          string
	TalkgroupID uint32
	SourceID    uint32
	FrequencyHz float64
	CallType    trunking.CallType
	Priority    uint8
	Encrypted   bool
	StartedMS   uint64
	LastSeenMS  uint64
}

// CallEnded is emitted when a call's timeout expires (spec.md §4.5).
type CallEnded struct {
	TalkgroupID uint32
	CallID      string
	DurationMS  uint64
}

const defaultCallTimeoutMS = 5000
const maxQueuedFrames = 256

// Manager implements the Call Manager contract: handle_grant,
// handle_audio_frame, end_call, tick (spec.md §4.5).
type Manager struct {
	mu           sync.Mutex
	calls        map[uint32]*ActiveCall // keyed by talkgroup: one active call per talkgroup
	queue        []AudioFrame
	timeoutMS    uint64
	allowed      func(talkgroup uint32) bool
	priorityFor  func(talkgroup uint32) uint8

	OnCallEnded func(CallEnded)
	AudioDroppedMetric func()
}

// New builds a call manager. allowed and priorityFor mirror
// internal/config.Talkgroups.Allowed/PriorityFor; passing nil allows
// every talkgroup at priority 0.
func New(allowed func(uint32) bool, priorityFor func(uint32) uint8) *Manager {
	if allowed == nil {
		allowed = func(uint32) bool { return true }
	}
	if priorityFor == nil {
		priorityFor = func(uint32) uint8 { return 0 }
	}
	return &Manager{
		calls:       make(map[uint32]*ActiveCall),
		timeoutMS:   defaultCallTimeoutMS,
		allowed:     allowed,
		priorityFor: priorityFor,
	}
}

// HandleGrant opens (or refreshes) an active call for a CallGrant. A
// grant for a disabled talkgroup is silently dropped (spec.md §8 S2).
func (m *Manager) HandleGrant(grant trunking.CallGrant, nowMS uint64) *ActiveCall {
	if !m.allowed(grant.TalkgroupID) {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.calls[grant.TalkgroupID]; ok {
		existing.LastSeenMS = nowMS
		existing.SourceID = grant.SourceID
		return existing
	}

	priority := m.priorityFor(grant.TalkgroupID)
	if grant.CallType == trunking.CallEmergency {
		priority = 10
	}
	call := &ActiveCall{
		ID:          uuid.NewString(),
		TalkgroupID: grant.TalkgroupID,
		SourceID:    grant.SourceID,
		FrequencyHz: grant.FrequencyHz,
		CallType:    grant.CallType,
		Priority:    priority,
		Encrypted:   grant.Encrypted,
		StartedMS:   nowMS,
		LastSeenMS:  nowMS,
	}
	m.calls[grant.TalkgroupID] = call
	return call
}

// HandleAudioFrame enqueues one decoded PCM frame for a talkgroup's
// active call, refreshing its last-seen timestamp. When the bounded
// queue is full, the lowest-priority queued frame is dropped to make
// room (spec.md §4.5/§5's backpressure rule).
func (m *Manager) HandleAudioFrame(talkgroup uint32, pcm []int16, nowMS uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[talkgroup]
	if !ok {
		return
	}
	call.LastSeenMS = nowMS

	if len(m.queue) >= maxQueuedFrames {
		m.dropLowestPriorityLocked()
	}
	m.queue = append(m.queue, AudioFrame{TalkgroupID: talkgroup, PCM: pcm})
}

func (m *Manager) dropLowestPriorityLocked() {
	if len(m.queue) == 0 {
		return
	}
	worst := 0
	worstPriority := m.priorityOfQueued(m.queue[0].TalkgroupID)
	for i := 1; i < len(m.queue); i++ {
		p := m.priorityOfQueued(m.queue[i].TalkgroupID)
		if p < worstPriority {
			worst, worstPriority = i, p
		}
	}
	m.queue = append(m.queue[:worst], m.queue[worst+1:]...)
	if m.AudioDroppedMetric != nil {
		m.AudioDroppedMetric()
	}
}

func (m *Manager) priorityOfQueued(talkgroup uint32) uint8 {
	if c, ok := m.calls[talkgroup]; ok {
		return c.Priority
	}
	return 0
}

// DrainAudio removes and returns every queued audio frame, in FIFO
// order, for the caller to hand to an audiosink.Sink.
func (m *Manager) DrainAudio() []AudioFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}

// EndCall explicitly closes a call (e.g. on a TETRA D-RELEASE).
func (m *Manager) EndCall(talkgroup uint32, nowMS uint64) {
	m.mu.Lock()
	call, ok := m.calls[talkgroup]
	if ok {
		delete(m.calls, talkgroup)
	}
	m.mu.Unlock()
	if ok && m.OnCallEnded != nil {
		m.OnCallEnded(CallEnded{
			TalkgroupID: talkgroup,
			CallID:      call.ID,
			DurationMS:  nowMS - call.StartedMS,
		})
	}
}

// Tick expires any call whose last-seen timestamp is older than the
// call timeout (spec.md §8 S5: CALL_TIMEOUT_MS=5000).
func (m *Manager) Tick(nowMS uint64) {
	m.mu.Lock()
	var expired []*ActiveCall
	for tg, call := range m.calls {
		if nowMS-call.LastSeenMS >= m.timeoutMS {
			expired = append(expired, call)
			delete(m.calls, tg)
		}
	}
	m.mu.Unlock()

	for _, call := range expired {
		if m.OnCallEnded != nil {
			m.OnCallEnded(CallEnded{
				TalkgroupID: call.TalkgroupID,
				CallID:      call.ID,
				DurationMS:  nowMS - call.StartedMS,
			})
		}
	}
}

// ActiveCalls returns a snapshot of the active call table, ordered by
// descending priority.
func (m *Manager) ActiveCalls() []ActiveCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActiveCall, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, *c)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority > out[j-1].Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
