// Package codec defines the vocoder black-box seam spec.md §4.5/§9
// names: this repo decodes protocol framing and signaling, never
// speech. Grounded on the interface shape of
// dbehnke-dmr-nexus/pkg/codec's AMBE Converter (encoded frame in, PCM
// frame out, an error when unavailable).
package codec

import "errors"

// ErrCodecUnavailable is returned by every digital-voice codec
// variant: the IMBE/AMBE bitstream-to-PCM transform is out of scope
// per spec.md's Non-goals.
var ErrCodecUnavailable = errors.New("codec: vocoder math not implemented, out of scope")

// Decoder is the per-call codec contract: decode one frame of
// protocol-specific encoded voice bits into signed 16-bit PCM.
type Decoder interface {
	Decode(frame []byte) (pcm []int16, err error)
}

// Family identifies which codec a call requires.
type Family string

const (
	FamilyIMBE   Family = "imbe"   // P25 Phase 1
	FamilyAMBE   Family = "ambe"   // DMR / TETRA
	FamilyAnalog Family = "analog" // SmartNet FM voice
)

// New builds the Decoder for a call's protocol family. One instance
// is created per ActiveCall and discarded with it (spec.md §9's
// "Global mutable state" design note).
func New(family Family) Decoder {
	switch family {
	case FamilyIMBE:
		return &imbeDecoder{}
	case FamilyAMBE:
		return &ambeDecoder{}
	default:
		return &analogDecoder{}
	}
}

// imbeDecoder is an intentionally unimplemented stub: P25's IMBE
// vocoder bitstream format is proprietary and its math is out of
// scope for this repo.
type imbeDecoder struct{}

func (d *imbeDecoder) Decode(frame []byte) ([]int16, error) {
	return nil, ErrCodecUnavailable
}

// ambeDecoder is an intentionally unimplemented stub covering both
// DMR's and TETRA's AMBE+2 voice frames.
type ambeDecoder struct{}

func (d *ambeDecoder) Decode(frame []byte) ([]int16, error) {
	return nil, ErrCodecUnavailable
}

// analogDecoder passes SmartNet's already-demodulated FM audio
// straight through: the FM discriminator bank in internal/dsp has
// already produced PCM-equivalent samples, so there is no bitstream to
// decode.
type analogDecoder struct{}

func (d *analogDecoder) Decode(frame []byte) ([]int16, error) {
	pcm := make([]int16, len(frame)/2)
	for i := range pcm {
		pcm[i] = int16(uint16(frame[2*i]) | uint16(frame[2*i+1])<<8)
	}
	return pcm, nil
}
