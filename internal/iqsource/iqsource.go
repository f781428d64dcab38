// Package iqsource implements Component A (spec.md §4.1): a byte
// stream of interleaved 8-bit unsigned I/Q samples delivered over
// either an rtl_tcp transport or an in-memory mock generator, behind
// one Source interface. Grounded on other_examples/chzchzchz-nicerx__sdr.go's
// small SDR interface shape (SetBand/Info/Close/Reader), reduced to
// this system's four verbs.
package iqsource

import (
	"context"
	"errors"
)

// FatalError wraps a device-level failure that should abort startup
// with exit code 1 (spec.md §7), mirroring internal/config.FatalError.
type FatalError struct{ Err error }

func (e *FatalError) Error() string { return "iqsource: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

var ErrNotOpen = errors.New("iqsource: device not open")

// Block is one chunk of I/Q samples converted from the raw 8-bit
// unsigned wire format to normalized complex64, per spec.md §3:
// `(b - 127.4) / 128.0` for each of the I and Q byte lanes.
type Block struct {
	Samples []complex64
	SeqNum  uint64
}

// Source is the I/Q Source Driver contract (spec.md §4.1).
type Source interface {
	Open(ctx context.Context) error
	Tune(centerHz uint64) error
	Start(ctx context.Context) (<-chan Block, error)
	Stop() error
}

// GainSetter is implemented by sources that can apply an explicit gain
// (spec.md §6's `sdr.gain: "auto" | f64`); the mock source doesn't need
// it, so it's kept separate from Source rather than widening every
// implementation.
type GainSetter interface {
	SetGainMode(manual bool) error
	SetGain(tenthsDB int32) error
}

// BytesToIQ converts a buffer of interleaved 8-bit unsigned I/Q
// samples (rtl_tcp's wire format) into normalized complex64 samples.
func BytesToIQ(raw []byte) []complex64 {
	n := len(raw) / 2
	out := make([]complex64, n)
	for i := 0; i < n; i++ {
		iv := (float32(raw[2*i]) - 127.4) / 128.0
		qv := (float32(raw[2*i+1]) - 127.4) / 128.0
		out[i] = complex(iv, qv)
	}
	return out
}

// DropCounter is shared, transport-independent overflow-accounting
// infrastructure (spec.md §3/§5's bounded in-flight block queue with
// drop-oldest backpressure).
type DropCounter struct {
	dropped uint64
	onDrop  func(sampleCount int)
}

// NewDropCounter builds a counter that calls onDrop with the number of
// samples in the dropped block (typically wired to a Prometheus counter
// increment and a DroppedSamples event publication).
func NewDropCounter(onDrop func(sampleCount int)) *DropCounter {
	return &DropCounter{onDrop: onDrop}
}

// Enqueue pushes a block onto a bounded channel, dropping the oldest
// queued block to make room when full rather than blocking the
// producer (spec.md §5's "no cooperative suspension inside the DSP
// path" rule, applied at the very first hop).
func (d *DropCounter) Enqueue(ch chan Block, block Block) {
	select {
	case ch <- block:
		return
	default:
	}
	select {
	case oldest := <-ch:
		d.dropped++
		if d.onDrop != nil {
			d.onDrop(len(oldest.Samples))
		}
	default:
	}
	select {
	case ch <- block:
	default:
	}
}

// Dropped returns the cumulative number of dropped blocks.
func (d *DropCounter) Dropped() uint64 { return d.dropped }
