package fec

import (
	"math/rand"
	"testing"
)

func randomBits(r *rand.Rand, n int) []byte {
	bits := make([]byte, n)
	for i := range bits {
		bits[i] = byte(r.Intn(2))
	}
	return bits
}

func flipOne(bits []byte, pos int) []byte {
	out := append([]byte{}, bits...)
	out[pos] ^= 1
	return out
}

func TestGolay2010CorrectsSingleError(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	info := randomBits(r, 10)
	cw := EncodeGolay2010(info)
	corrupted := flipOne(cw, 3)
	got, corrected, ok := DecodeGolay2010(corrupted)
	if !ok {
		t.Fatal("expected correction to succeed")
	}
	if corrected != 1 {
		t.Errorf("corrected = %d, want 1", corrected)
	}
	for i := range info {
		if got[i] != info[i] {
			t.Fatalf("info mismatch at %d", i)
		}
	}
}

func TestGolay2412CorrectsSingleError(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	info := randomBits(r, 12)
	cw := EncodeGolay2412(info)
	corrupted := flipOne(cw, 10)
	got, _, ok := DecodeGolay2412(corrupted)
	if !ok {
		t.Fatal("expected correction to succeed")
	}
	for i := range info {
		if got[i] != info[i] {
			t.Fatalf("info mismatch at %d", i)
		}
	}
}

func TestHamming1611CorrectsSingleError(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	info := randomBits(r, 11)
	cw := EncodeHamming1611(info)
	corrupted := flipOne(cw, 7)
	got, _, ok := DecodeHamming1611(corrupted)
	if !ok {
		t.Fatal("expected correction to succeed")
	}
	for i := range info {
		if got[i] != info[i] {
			t.Fatalf("info mismatch at %d", i)
		}
	}
}

func TestBPTCRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	payload := randomBits(r, 96)
	encoded := EncodeBPTC196_96(payload)
	if len(encoded) != 196 {
		t.Fatalf("encoded length = %d, want 196", len(encoded))
	}
	decoded, ok := DecodeBPTC196_96(encoded)
	if !ok {
		t.Fatal("expected BPTC decode to succeed on a clean block")
	}
	for i := range payload {
		if decoded[i] != payload[i] {
			t.Fatalf("payload mismatch at bit %d", i)
		}
	}
}

func TestViterbiRoundTripNoNoise(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	bits := randomBits(r, 40)
	encoded := Encode(bits)
	decodedBits, metric := Decode(encoded)
	if metric != 0 {
		t.Errorf("path metric = %d, want 0 for a noiseless channel", metric)
	}
	for i := range bits {
		if decodedBits[i] != bits[i] {
			t.Fatalf("bit mismatch at %d: got %d want %d", i, decodedBits[i], bits[i])
		}
	}
}

func TestViterbiToleratesSingleFlip(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	bits := randomBits(r, 20)
	encoded := Encode(bits)
	encoded[5][0] ^= 1
	decodedBits, _ := Decode(encoded)
	mismatches := 0
	for i := range bits {
		if decodedBits[i] != bits[i] {
			mismatches++
		}
	}
	if mismatches > 2 {
		t.Errorf("too many mismatches after single-bit channel error: %d", mismatches)
	}
}
