package iqsource

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// rtl_tcp command bytes (the documented wire command set: setFrequency,
// setSampleRate, setGainMode, setPPM), matching SPEC_FULL.md §4.1.
const (
	rtltcpSetFrequency  = 0x01
	rtltcpSetSampleRate = 0x02
	rtltcpSetGainMode   = 0x03
	rtltcpSetGain       = 0x04
	rtltcpSetPPM        = 0x05
)

// RTLTCPSource streams I/Q samples from an rtl_tcp server.
type RTLTCPSource struct {
	addr       string
	sampleRate uint32

	mu       sync.Mutex
	conn     net.Conn
	reader   *bufio.Reader
	drops    *DropCounter
	stopped  bool
}

// NewRTLTCPSource builds a client for an rtl_tcp server at addr
// (host:port).
func NewRTLTCPSource(addr string, sampleRateHz uint32, drops *DropCounter) *RTLTCPSource {
	return &RTLTCPSource{addr: addr, sampleRate: sampleRateHz, drops: drops}
}

// DongleInfo is the 12-byte header an rtl_tcp server sends immediately
// on connect: magic "RTL0", a big-endian tuner-type code, and a
// big-endian tuner-gain count. This is the only "device enumeration"
// an rtl_tcp-based source can offer (spec.md §1 excludes USB-layer
// RTL2832U control from this module's scope); `--devices` reports it
// per configured address rather than walking a USB bus.
type DongleInfo struct {
	Magic      string
	TunerType  uint32
	TunerGains uint32
}

// ListDevices dials addr, reads its dongle-info header, and
// disconnects. Satisfies the CLI's `--devices` surface (spec.md §6)
// for the rtl_tcp transport.
func ListDevices(ctx context.Context, addr string) (DongleInfo, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return DongleInfo{}, fmt.Errorf("dial rtl_tcp at %s: %w", addr, err)
	}
	defer conn.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(conn, header); err != nil {
		return DongleInfo{}, fmt.Errorf("reading dongle info from %s: %w", addr, err)
	}
	return DongleInfo{
		Magic:      string(header[0:4]),
		TunerType:  binary.BigEndian.Uint32(header[4:8]),
		TunerGains: binary.BigEndian.Uint32(header[8:12]),
	}, nil
}

// Open dials the rtl_tcp server and applies a fixed 1 MiB receive
// buffer size via a raw socket-option call (golang.org/x/sys/unix),
// the same SO_RCVBUF-style tuning the teacher's audio.go applies to
// its multicast receive socket, here against a plain TCP stream
// instead of a multicast group.
func (s *RTLTCPSource) Open(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return &FatalError{Err: fmt.Errorf("dial rtl_tcp at %s: %w", s.addr, err)}
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if raw, err := tc.SyscallConn(); err == nil {
			raw.Control(func(fd uintptr) {
				unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, 1<<20)
			})
		}
	}
	reader := bufio.NewReaderSize(conn, 1<<16)
	header := make([]byte, 12)
	if _, err := io.ReadFull(reader, header); err != nil {
		conn.Close()
		return &FatalError{Err: fmt.Errorf("reading dongle info from %s: %w", s.addr, err)}
	}

	s.mu.Lock()
	s.conn = conn
	s.reader = reader
	s.mu.Unlock()

	if err := s.setSampleRate(s.sampleRate); err != nil {
		conn.Close()
		return &FatalError{Err: err}
	}
	return nil
}

func (s *RTLTCPSource) sendCommand(cmd byte, param uint32) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}
	buf := make([]byte, 5)
	buf[0] = cmd
	binary.BigEndian.PutUint32(buf[1:], param)
	_, err := conn.Write(buf)
	return err
}

func (s *RTLTCPSource) setSampleRate(hz uint32) error {
	return s.sendCommand(rtltcpSetSampleRate, hz)
}

// Tune sets the tuner center frequency.
func (s *RTLTCPSource) Tune(centerHz uint64) error {
	return s.sendCommand(rtltcpSetFrequency, uint32(centerHz))
}

// SetGainMode switches between automatic (0) and manual (1) gain.
func (s *RTLTCPSource) SetGainMode(manual bool) error {
	var v uint32
	if manual {
		v = 1
	}
	return s.sendCommand(rtltcpSetGainMode, v)
}

// SetPPM sets the frequency correction in parts per million.
func (s *RTLTCPSource) SetPPM(ppm int32) error {
	return s.sendCommand(rtltcpSetPPM, uint32(ppm))
}

// SetGain switches the tuner to manual mode and applies the given gain
// in tenths of a dB, the wire units rtl_tcp's setGain command expects.
func (s *RTLTCPSource) SetGain(tenthsDB int32) error {
	if err := s.SetGainMode(true); err != nil {
		return err
	}
	return s.sendCommand(rtltcpSetGain, uint32(tenthsDB))
}

const readBlockBytes = 16384

// Start begins streaming blocks on a background goroutine, converting
// raw bytes to normalized complex64 via BytesToIQ and applying
// drop-oldest backpressure through the shared DropCounter.
func (s *RTLTCPSource) Start(ctx context.Context) (<-chan Block, error) {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()
	if reader == nil {
		return nil, ErrNotOpen
	}

	out := make(chan Block, 64)
	go func() {
		defer close(out)
		buf := make([]byte, readBlockBytes)
		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, err := readFullOrPartial(reader, buf)
			if err != nil {
				return
			}
			if n%2 != 0 {
				n--
			}
			block := Block{Samples: BytesToIQ(buf[:n]), SeqNum: seq}
			seq++
			if s.drops != nil {
				s.drops.Enqueue(out, block)
			} else {
				select {
				case out <- block:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func readFullOrPartial(r *bufio.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if n > 0 {
		return n, nil
	}
	return 0, err
}

// Stop closes the underlying connection.
func (s *RTLTCPSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.conn == nil {
		return nil
	}
	s.stopped = true
	return s.conn.Close()
}
