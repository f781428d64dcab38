package codec

import (
	"errors"
	"testing"
)

func TestIMBEAndAMBEAreUnavailable(t *testing.T) {
	for _, f := range []Family{FamilyIMBE, FamilyAMBE} {
		d := New(f)
		_, err := d.Decode([]byte{0, 1, 2, 3})
		if !errors.Is(err, ErrCodecUnavailable) {
			t.Errorf("family %s: err = %v, want ErrCodecUnavailable", f, err)
		}
	}
}

func TestAnalogPassesThroughAsPCM(t *testing.T) {
	d := New(FamilyAnalog)
	pcm, err := d.Decode([]byte{0x01, 0x00, 0xFF, 0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if len(pcm) != 2 || pcm[0] != 1 || pcm[1] != -1 {
		t.Errorf("pcm = %v, want [1 -1]", pcm)
	}
}
