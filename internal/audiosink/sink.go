// Package audiosink implements the two concrete call-audio sinks this
// repo ships behind one interface (SPEC_FULL.md §4.5): a per-call WAV
// file writer, adapted from the teacher's decoder_wav.go, and an
// Opus-over-RTP multicast sink, adapted from the teacher's audio.go
// (there a multicast RTP *receiver*, here a transmitter of decoded
// call audio). spec.md's "blocking write to a local audio sink"
// contract is the degenerate case of either sink writing through a
// blocking io.Writer.
package audiosink

// Sink is the call-audio output contract spec.md §4.5 names.
type Sink interface {
	// WriteFrame blocks until a PCM frame has been handed off to the
	// sink (file write or network send), per spec.md §5's "no dropped
	// audio inside a call's own queue" expectation — backpressure
	// happens upstream in internal/callmgr's bounded queue, not here.
	WriteFrame(pcm []int16) error
	Close() error
}
