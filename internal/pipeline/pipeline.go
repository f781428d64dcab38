// Package pipeline wires components A through F (SPEC_FULL.md §2) into
// the three long-lived workers spec.md §5 describes: an I/Q ingest
// worker (source -> demodulator -> symbol queue), a signaling worker
// (symbol bits -> phy framing -> trunking parser -> call manager), and
// a call-manager tick worker (timeout expiry, audio drain, event
// publication). Grounded on the teacher's main.go, which starts its
// own fixed set of long-lived goroutines (HTTP server, shutdown
// handler, instance reporter) off one context.Context and tears them
// down together on cancellation; this package keeps that shape for a
// DSP pipeline instead of an HTTP server.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trunkrx/internal/audiosink"
	"trunkrx/internal/callmgr"
	"trunkrx/internal/codec"
	"trunkrx/internal/config"
	"trunkrx/internal/demod"
	"trunkrx/internal/events"
	"trunkrx/internal/fec"
	"trunkrx/internal/iqsource"
	"trunkrx/internal/logging"
	"trunkrx/internal/metrics"
	"trunkrx/internal/phy"
	"trunkrx/internal/trunking"
)

// symbolQueueDepth bounds the demodulator-to-signaling-worker handoff
// (spec.md §5's bounded SPSC queue between the demod and phy stages).
const symbolQueueDepth = 4096

// tickInterval is how often the call-manager worker expires timed-out
// calls and drains queued audio (spec.md §8 S5's CALL_TIMEOUT_MS=5000
// needs a tick granularity well under that to be observed promptly).
const tickInterval = 250 * time.Millisecond

// phyFeeder unifies the two Feed signatures internal/phy's four
// variants expose (P25/SmartNet/TETRA take a single bit slice per
// call; DMR additionally takes a TDMA slot number, since this receiver
// only ever monitors one fixed DMR timeslot) behind one contract this
// package's signaling worker can drive uniformly. TETRA does not use
// this wrapper: its own Feed tracks the 4-slot TDMA cycle internally
// (internal/phy/tetra.go), since slot boundaries aren't visible at
// this call's per-symbol granularity.
type phyFeeder interface {
	Feed(bits []byte) []phy.ProtocolUnit
	SetSyncCallbacks(onAcquired, onLost func())
}

type singleSlotFeeder struct {
	feed func(slot int, bits []byte) []phy.ProtocolUnit
	sync func(onAcquired, onLost func())
}

func (f singleSlotFeeder) Feed(bits []byte) []phy.ProtocolUnit { return f.feed(0, bits) }
func (f singleSlotFeeder) SetSyncCallbacks(onAcquired, onLost func()) { f.sync(onAcquired, onLost) }

// Pipeline owns every component instance for one configured trunking
// system and the goroutines connecting them.
type Pipeline struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Registry
	bus     *events.Bus

	source        iqsource.Source
	demodulator   demod.Demodulator
	bitsPerSymbol int

	feeder  phyFeeder
	parser  trunking.Parser
	calls   *callmgr.Manager
	sink    audiosink.Sink
	decoder codec.Decoder

	// voiceKinds names the phy.ProtocolUnit.ChannelKind values this
	// system's voice-bearing frames (as opposed to pure signaling) can
	// carry, per system type.
	voiceKinds map[string]bool

	// lastTalkgroup is the most recently granted talkgroup, touched
	// only by runSignaling. A single control-channel front end never
	// disambiguates which of several simultaneously-granted calls a
	// voice-bearing unit belongs to (that requires per-channel
	// reception this core's single-SDR scope excludes, spec.md §9),
	// so voice frames are attributed to the most recent grant as a
	// documented simplification.
	lastTalkgroup uint32

	drops *iqsource.DropCounter

	symbols chan float64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a pipeline for the configured system, wiring a phy layer,
// trunking parser and codec family by config.SystemConfig.Type and a
// demodulator by config.SystemConfig.Modulation.
func New(cfg *config.Config, logger *logging.Logger, reg *metrics.Registry, bus *events.Bus) (*Pipeline, error) {
	p := &Pipeline{
		cfg:     cfg,
		logger:  logger,
		metrics: reg,
		bus:     bus,
		symbols: make(chan float64, symbolQueueDepth),
	}

	if err := p.buildSystem(); err != nil {
		return nil, err
	}
	p.buildDemodulator()
	if err := p.buildSource(); err != nil {
		return nil, err
	}
	if err := p.buildSink(); err != nil {
		return nil, err
	}

	p.calls = callmgr.New(cfg.Talkgroups.Allowed, cfg.Talkgroups.PriorityFor)
	p.calls.AudioDroppedMetric = reg.PCMDropped.Inc
	p.calls.OnCallEnded = p.publishCallEnded

	p.feeder.SetSyncCallbacks(reg.SyncAcquired.Inc, reg.SyncLost.Inc)

	return p, nil
}

// buildSystem constructs the phy layer, trunking parser and codec
// family for the configured system type (spec.md §4.3/§4.4).
func (p *Pipeline) buildSystem() error {
	sys := p.cfg.System
	var codecFamily codec.Family
	switch sys.Type {
	case config.SystemP25, config.SystemP25Phase1, config.SystemP25Phase2:
		layer := phy.NewP25(int(sys.NAC))
		p.feeder = layer
		parser := trunking.NewP25Parser()
		parser.NAC = uint32(sys.NAC)
		parser.WACN = uint32(sys.WACN)
		parser.SystemID = uint32(sys.SystemID)
		parser.GrantUnresolvedMetric = p.metrics.GrantUnresolved.Inc
		p.parser = parser
		codecFamily = codec.FamilyIMBE
		p.voiceKinds = map[string]bool{"hdu": true, "ldu1": true, "ldu2": true}
	case config.SystemSmartnet, config.SystemSmartzone:
		layer := phy.NewSmartNet()
		p.feeder = layer
		p.parser = trunking.NewSmartNetParser(sys.BaseFrequencyHz, sys.ChannelSpacingHz)
		codecFamily = codec.FamilyAnalog
		p.voiceKinds = map[string]bool{} // SmartNet's OSW control channel carries no in-band voice payload.
	case config.SystemDMR:
		layer := phy.NewDMR(int(sys.ColorCode))
		p.feeder = singleSlotFeeder{feed: layer.Feed, sync: layer.SetSyncCallbacks}
		restHz := sys.BaseFrequencyHz
		if len(sys.ControlChannels) > 0 {
			restHz = sys.ControlChannels[0]
		}
		parser := trunking.NewDMRParser(restHz)
		parser.ColorCode = uint32(sys.ColorCode)
		p.parser = parser
		codecFamily = codec.FamilyAMBE
		p.voiceKinds = map[string]bool{"voice_lc_header": true, "voice_terminator": true}
	case config.SystemTETRA:
		layer := phy.NewTETRA()
		p.feeder = layer
		p.parser = trunking.NewTETRAParser(sys.BaseFrequencyHz, sys.ChannelSpacingHz)
		codecFamily = codec.FamilyAMBE
		p.voiceKinds = map[string]bool{} // this core never distinguishes a TETRA traffic channel from MCCH (see phy.tetraLogicalChannel).
	default:
		return &config.FatalError{Reason: fmt.Sprintf("pipeline: system type %q has no decoder variant in this build", sys.Type)}
	}
	p.decoder = codec.New(codecFamily)
	return nil
}

// buildDemodulator selects a demodulator family by config and records
// how many bits each emitted symbol expands to: 1 for the binary FSK2
// variant, 2 for the three 4-ary/DQPSK variants (spec.md §4.2).
func (p *Pipeline) buildDemodulator() {
	family, bitsPerSymbol := demodFamilyFor(p.cfg.System.Modulation)
	p.bitsPerSymbol = bitsPerSymbol
	p.demodulator = demod.New(family, float64(p.cfg.System.BaudRate), 0.2)
	p.demodulator.Initialize(float64(p.cfg.SDR.SampleRate))
}

func demodFamilyFor(modulation string) (demod.Family, int) {
	switch modulation {
	case "c4fm":
		return demod.FamilyC4FM, 2
	case "fsk4":
		return demod.FamilyFSK4, 2
	case "dqpsk", "pi4dqpsk":
		return demod.FamilyPI4DQPSK, 2
	default:
		return demod.FamilyFSK2, 1
	}
}

// buildSource selects the I/Q transport by config.SDRConfig.Transport
// (spec.md §4.1): "rtltcp" against real hardware, "mock" for tests and
// offline replays.
func (p *Pipeline) buildSource() error {
	p.drops = iqsource.NewDropCounter(p.onIQDropped)
	switch p.cfg.SDR.Transport {
	case "mock":
		p.source = iqsource.NewMockSource(nil)
	case "rtltcp", "":
		p.source = iqsource.NewRTLTCPSource(p.cfg.SDR.Address, p.cfg.SDR.SampleRate, p.drops)
	default:
		return &iqsource.FatalError{Err: fmt.Errorf("unknown sdr.transport %q", p.cfg.SDR.Transport)}
	}
	return nil
}

// buildSink selects the call-audio sink by config.AudioConfig.Sink
// (spec.md §4.5): "file" writes one WAV per call under recording_path,
// "rtp" multicasts Opus-encoded audio to rtp_multicast_addr.
func (p *Pipeline) buildSink() error {
	switch p.cfg.Audio.Sink {
	case "rtp":
		sink, err := audiosink.NewRTPSink(p.cfg.Audio.RTPMulticastAddr, 1, int(p.cfg.Audio.SampleRate), 1)
		if err != nil {
			return fmt.Errorf("pipeline: building rtp sink: %w", err)
		}
		p.sink = sink
	default:
		if !p.cfg.Audio.RecordCalls {
			p.sink = noopSink{}
			return nil
		}
		path := p.cfg.Audio.RecordingPath
		if path == "" {
			path = "call.wav"
		}
		sink, err := audiosink.NewWAVSink(path, int(p.cfg.Audio.SampleRate), 1, 16, p.cfg.Audio.CompressRecordings)
		if err != nil {
			return fmt.Errorf("pipeline: building wav sink: %w", err)
		}
		p.sink = sink
	}
	return nil
}

// noopSink discards audio when call recording is disabled, so the
// call manager's drain loop has a sink to write to unconditionally.
type noopSink struct{}

func (noopSink) WriteFrame(pcm []int16) error { return nil }
func (noopSink) Close() error                 { return nil }

// Run starts every worker and blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	defer cancel()

	if err := p.source.Open(runCtx); err != nil {
		return fmt.Errorf("pipeline: opening source: %w", err)
	}
	if setter, ok := p.source.(iqsource.GainSetter); ok {
		if err := applyGain(setter, p.cfg.SDR.Gain); err != nil {
			return fmt.Errorf("pipeline: applying sdr.gain: %w", err)
		}
	}

	blocks, err := p.source.Start(runCtx)
	if err != nil {
		return fmt.Errorf("pipeline: starting source: %w", err)
	}
	for _, freq := range p.cfg.System.ControlChannels {
		if err := p.source.Tune(uint64(freq)); err != nil {
			return fmt.Errorf("pipeline: tuning to control channel: %w", err)
		}
		break // spec.md §9: one front end tracks one control channel at a time.
	}

	p.wg.Add(3)
	go p.runIngest(runCtx, blocks)
	go p.runSignaling(runCtx)
	go p.runCallManager(runCtx)

	<-runCtx.Done()
	p.wg.Wait()
	_ = p.source.Stop()
	return p.sink.Close()
}

// Stop cancels every worker started by Run.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// runIngest is worker 1: drains I/Q blocks from the source and feeds
// them through the demodulator, pushing emitted symbols onto the
// bounded symbol queue. Per spec.md §5's hard rule, nothing in this
// loop ever blocks on a downstream consumer: a full symbol queue drops
// the newest symbol rather than stalling the demodulator.
func (p *Pipeline) runIngest(ctx context.Context, blocks <-chan iqsource.Block) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-blocks:
			if !ok {
				return
			}
			p.demodulator.Process(block.Samples, func(symbol float64) {
				select {
				case p.symbols <- symbol:
				default:
				}
			})
		}
	}
}

// runSignaling is worker 2: converts each symbol to its bit
// expansion, feeds the phy layer, routes validated ProtocolUnits to
// the trunking parser, and applies resulting events to the call
// manager and event bus.
func (p *Pipeline) runSignaling(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case symbol := <-p.symbols:
			bits := symbolToBits(symbol, p.bitsPerSymbol)
			units := p.feeder.Feed(bits)
			for _, unit := range units {
				p.handleUnit(unit)
			}
		}
	}
}

func (p *Pipeline) handleUnit(unit phy.ProtocolUnit) {
	if !unit.CRCOk {
		p.metrics.CRCFail.Inc()
		return
	}
	nowMS := uint64(time.Now().UnixMilli())
	evs, err := p.parser.HandleUnit(unit, nowMS)
	if err != nil {
		p.metrics.ParseErrors.Inc()
		p.logger.Warn("signaling parse error", logging.Err(err))
		return
	}
	for _, ev := range evs {
		p.handleEvent(ev)
	}
	if p.voiceKinds[unit.ChannelKind] {
		p.handleVoiceUnit(unit)
	}
}

// handleVoiceUnit attempts to decode a voice-bearing unit's payload
// and, on success, enqueues it on the call manager's audio queue for
// the most recently granted talkgroup. Decode fails for every real
// P25/DMR system since the IMBE/AMBE vocoder math is out of scope
// (codec.ErrCodecUnavailable), so nothing is enqueued for them.
// SmartNet and TETRA list no voice-bearing channel kinds, so their
// units never reach this path. A codec implementation only needs to
// satisfy codec.Decoder to light up here.
func (p *Pipeline) handleVoiceUnit(unit phy.ProtocolUnit) {
	nowMS := uint64(time.Now().UnixMilli())
	pcm, err := p.decoder.Decode(fec.PackBits(unit.Bits))
	if err != nil {
		return
	}
	p.calls.HandleAudioFrame(p.lastTalkgroup, pcm, nowMS)
}

func (p *Pipeline) handleEvent(ev trunking.Event) {
	switch {
	case ev.SystemIdentified != nil:
		p.bus.Publish(events.Envelope{Type: "system_identified", TimestampMS: ev.Timestamp, Payload: *ev.SystemIdentified})
		p.logger.Info("system identified",
			logging.String("type", ev.SystemIdentified.Type),
			logging.Uint32("nac", ev.SystemIdentified.NAC),
			logging.Uint32("wacn", ev.SystemIdentified.WACN))
	case ev.CallGrant != nil:
		p.metrics.GrantsEmitted.Inc()
		p.lastTalkgroup = ev.CallGrant.TalkgroupID
		call := p.calls.HandleGrant(*ev.CallGrant, ev.Timestamp)
		if call != nil {
			p.metrics.TotalCalls.Inc()
		}
		p.bus.Publish(events.Envelope{Type: "call_grant", TimestampMS: ev.Timestamp, Payload: *ev.CallGrant})
	case ev.CallTerminate != nil:
		p.calls.EndCall(ev.CallTerminate.TalkgroupID, ev.Timestamp)
	}
}

// onIQDropped is the DropCounter callback: it bumps the Prometheus
// counter and publishes a DroppedSamples event (spec.md §6) with the
// size of the block that was discarded.
func (p *Pipeline) onIQDropped(sampleCount int) {
	p.metrics.IQDropped.Inc()
	p.bus.Publish(events.Envelope{
		Type:        "dropped_samples",
		TimestampMS: uint64(time.Now().UnixMilli()),
		Payload:     events.DroppedSamples{Count: sampleCount},
	})
}

func (p *Pipeline) publishCallEnded(ended callmgr.CallEnded) {
	p.bus.Publish(events.Envelope{
		Type:        "call_ended",
		TimestampMS: uint64(time.Now().UnixMilli()),
		Payload:     ended,
	})
}

// runCallManager is worker 3: ticks the call manager's timeout expiry
// and drains queued audio to the codec and audio sink on a fixed
// interval, independent of the signaling worker's pace.
func (p *Pipeline) runCallManager(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			nowMS := uint64(time.Now().UnixMilli())
			p.calls.Tick(nowMS)
			p.metrics.ActiveCalls.Set(float64(len(p.calls.ActiveCalls())))
			for _, frame := range p.calls.DrainAudio() {
				if err := p.sink.WriteFrame(frame.PCM); err != nil {
					p.logger.Warn("audio sink write failed", logging.Err(err))
					p.metrics.AudioSinkDown.Set(1)
				} else {
					p.metrics.AudioSinkDown.Set(0)
				}
				p.bus.Publish(events.Envelope{
					Type:        "audio_frame",
					TimestampMS: nowMS,
					Payload:     events.AudioFrame{TalkgroupID: frame.TalkgroupID, PCM: frame.PCM},
				})
			}
		}
	}
}

// applyGain sets the source to automatic gain, or switches to manual
// and applies the configured value in dB (converted to rtl_tcp's
// tenths-of-a-dB wire units), per spec.md §6's `sdr.gain: "auto" | f64`.
func applyGain(setter iqsource.GainSetter, gain config.Gain) error {
	if gain.Auto {
		return setter.SetGainMode(false)
	}
	return setter.SetGain(int32(gain.Value * 10))
}

// symbolToBits expands one soft symbol index into its bit-per-symbol
// value: a single 0/1 bit for binary FSK2, or the high/low dibit pair
// for the three 4-ary/DQPSK demodulator variants (spec.md §4.2).
func symbolToBits(symbol float64, bitsPerSymbol int) []byte {
	v := int(symbol + 0.5)
	bits := make([]byte, bitsPerSymbol)
	for i := 0; i < bitsPerSymbol; i++ {
		shift := uint(bitsPerSymbol - 1 - i)
		bits[i] = byte((v >> shift) & 1)
	}
	return bits
}
