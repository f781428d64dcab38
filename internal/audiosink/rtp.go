package audiosink

import (
	"fmt"
	"net"

	"github.com/pion/rtp"
	"golang.org/x/net/ipv4"
	"gopkg.in/hraban/opus.v2"
)

// rtpMulticastTTL bounds how many router hops the call-audio multicast
// may cross between this process and its listeners.
const rtpMulticastTTL = 8

const (
	rtpOpusPayloadType = 111
	rtpClockRateHz     = 48000
)

// RTPSink Opus-encodes decoded call PCM and sends it as RTP packets to
// a multicast address, one sink per call, one SSRC per call — the
// mirror image of the teacher's audio.go AudioReceiver, which consumes
// an RTP multicast stream rather than producing one.
type RTPSink struct {
	conn        *net.UDPConn
	encoder     *opus.Encoder
	ssrc        uint32
	sequence    uint16
	timestamp   uint32
	sampleRate  int
	channels    int
}

// NewRTPSink dials a multicast address and builds an Opus encoder for
// the given sample rate/channel count.
func NewRTPSink(multicastAddr string, ssrc uint32, sampleRate, channels int) (*RTPSink, error) {
	addr, err := net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return nil, fmt.Errorf("audiosink: resolve rtp multicast addr: %w", err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("audiosink: dial rtp multicast: %w", err)
	}
	// Bound the multicast hop count the way the teacher's audio.go joins
	// a multicast group on a specific local interface rather than
	// leaving the OS default (1) or unlimited TTL in place.
	if pc := ipv4.NewPacketConn(conn); pc != nil {
		_ = pc.SetMulticastTTL(rtpMulticastTTL)
	}
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("audiosink: new opus encoder: %w", err)
	}
	return &RTPSink{
		conn:       conn,
		encoder:    enc,
		ssrc:       ssrc,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// WriteFrame Opus-encodes one PCM frame and sends it as a single RTP
// packet.
func (s *RTPSink) WriteFrame(pcm []int16) error {
	encoded := make([]byte, 4000)
	n, err := s.encoder.Encode(pcm, encoded)
	if err != nil {
		return fmt.Errorf("audiosink: opus encode: %w", err)
	}

	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    rtpOpusPayloadType,
			SequenceNumber: s.sequence,
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
		},
		Payload: encoded[:n],
	}
	s.sequence++
	s.timestamp += uint32(len(pcm) / s.channels)

	raw, err := packet.Marshal()
	if err != nil {
		return fmt.Errorf("audiosink: marshal rtp packet: %w", err)
	}
	_, err = s.conn.Write(raw)
	return err
}

// Close releases the underlying UDP socket.
func (s *RTPSink) Close() error {
	return s.conn.Close()
}
