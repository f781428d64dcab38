package events

import (
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu   sync.Mutex
	envs []Envelope
}

func (r *recordingSink) Publish(env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}

func TestBusFansOutToSinksAndSubscribers(t *testing.T) {
	bus := NewBus(8)
	sink := &recordingSink{}
	bus.AddSink(sink)
	sub := bus.Subscribe(4)

	go bus.Run()
	defer bus.Stop()

	bus.Publish(Envelope{Type: "call_grant", TimestampMS: 1, Payload: "grant-1"})

	deadline := time.After(time.Second)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for sink to receive envelope")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	select {
	case payload := <-sub:
		if payload != "grant-1" {
			t.Errorf("payload = %v, want grant-1", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber channel")
	}
}

func TestBusPublishNonBlockingWhenQueueFull(t *testing.T) {
	bus := NewBus(1)
	bus.Publish(Envelope{Type: "a"})
	done := make(chan struct{})
	go func() {
		bus.Publish(Envelope{Type: "b"}) // must not block even though the queue is already full and nothing is draining it
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}
