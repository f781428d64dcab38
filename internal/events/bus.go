// Package events implements Component F, the event bus (SPEC_FULL.md
// §2): it fans out SystemIdentified/CallGrant/AudioFrame/CallEnded/
// DroppedSamples to an in-process subscriber channel and, optionally,
// an MQTT topic and a WebSocket stream. Grounded on the teacher's
// mqtt_publisher.go (connection/reconnect handling) and websocket.go
// (broadcast-to-many-clients shape).
package events

import "sync"

// AudioFrame is the published form of one decoded PCM block handed to
// a call's sink (spec.md §6, "AudioFrame{...}").
type AudioFrame struct {
	TalkgroupID uint32 `json:"talkgroup_id"`
	PCM         []int16 `json:"pcm"`
}

// DroppedSamples reports one I/Q block dropped by the source's
// overflow backpressure (spec.md §6, "DroppedSamples{count}").
type DroppedSamples struct {
	Count int `json:"count"`
}

// Envelope is the transport wrapper every event takes once it leaves
// the core (SPEC_FULL.md §3): `{type, timestamp_ms, payload}`. The
// in-process subscriber channel instead carries the unwrapped typed
// event for zero-copy embedding, matching SPEC_FULL.md §3's distinction.
type Envelope struct {
	Type        string      `json:"type"`
	TimestampMS uint64      `json:"timestamp_ms"`
	Payload     interface{} `json:"payload"`
}

// Sink receives envelopes fanned out by the Bus; MQTT and WebSocket
// publishers both implement it.
type Sink interface {
	Publish(env Envelope) error
}

// Bus is a non-blocking fan-out point: a dedicated worker drains an
// internal channel fed by the DSP/signaling/call-manager workers and
// hands each envelope to every configured Sink, so a stalled sink
// (e.g. an unreachable MQTT broker) never blocks the DSP path
// (SPEC_FULL.md §5).
type Bus struct {
	mu          sync.RWMutex
	sinks       []Sink
	subscribers []chan interface{}
	in          chan Envelope
	done        chan struct{}
}

// NewBus builds a bus with an internal queue of the given depth.
func NewBus(queueDepth int) *Bus {
	return &Bus{
		in:   make(chan Envelope, queueDepth),
		done: make(chan struct{}),
	}
}

// AddSink registers an external sink (MQTT, WebSocket).
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Subscribe returns a channel that receives every event's unwrapped
// typed payload, for in-process embedding.
func (b *Bus) Subscribe(buffer int) <-chan interface{} {
	ch := make(chan interface{}, buffer)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Publish enqueues an envelope for asynchronous fan-out. If the
// internal queue is full, the envelope is dropped rather than
// blocking the caller (the one hard rule spec.md §5 imposes on
// anything touching the DSP path).
func (b *Bus) Publish(env Envelope) {
	select {
	case b.in <- env:
	default:
	}
}

// Run drains the internal queue until Stop is called, fanning each
// envelope out to every sink and subscriber.
func (b *Bus) Run() {
	for {
		select {
		case env := <-b.in:
			b.dispatch(env)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) dispatch(env Envelope) {
	b.mu.RLock()
	sinks := append([]Sink{}, b.sinks...)
	subs := append([]chan interface{}{}, b.subscribers...)
	b.mu.RUnlock()

	for _, s := range sinks {
		s.Publish(env)
	}
	for _, ch := range subs {
		select {
		case ch <- env.Payload:
		default:
		}
	}
}

// Stop terminates Run.
func (b *Bus) Stop() { close(b.done) }
