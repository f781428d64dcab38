package fec

// Hamming1611 is the 16-bit TSBK-field code: 11 information bits, 5
// parity bits, correcting up to 1 bit error (spec.md §4.3's "Hamming
// for others").
var Hamming1611 = &linearCode{n: 16, k: 11, parityRows: buildParityRows(16, 11), maxErrors: 1}

// Hamming1511 is the 15-bit variant BPTC(196,96) applies to each row.
var Hamming1511 = &linearCode{n: 15, k: 11, parityRows: buildParityRows(15, 11), maxErrors: 1}

// DecodeHamming1611 corrects a 16-bit codeword.
func DecodeHamming1611(bits []byte) (info []byte, corrected int, ok bool) {
	return Hamming1611.Decode(bits)
}

// EncodeHamming1611 encodes 11 information bits into a 16-bit codeword.
func EncodeHamming1611(info []byte) []byte { return Hamming1611.Encode(info) }

// DecodeHamming1511 corrects a 15-bit codeword.
func DecodeHamming1511(bits []byte) (info []byte, corrected int, ok bool) {
	return Hamming1511.Decode(bits)
}

// EncodeHamming1511 encodes 11 information bits into a 15-bit codeword.
func EncodeHamming1511(info []byte) []byte { return Hamming1511.Encode(info) }
