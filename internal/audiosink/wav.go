package audiosink

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// wavHeaderSize is the fixed length of a canonical 44-byte PCM WAV
// header: 12-byte RIFF/WAVE preamble, 24-byte "fmt " chunk, 8-byte
// "data" chunk tag+size.
const wavHeaderSize = 44

// WAVSink writes one call's decoded PCM to a WAV file, per-call,
// finalizing the header sizes on Close. Grounded on the teacher's
// WAVWriter (decoder_wav.go): same placeholder-then-backpatch header
// strategy, same little-endian int16 sample format.
type WAVSink struct {
	file          *os.File
	path          string
	sampleRate    int
	channels      int
	bitsPerSample int
	dataSize      int64
	compress      bool
}

// NewWAVSink creates filename and writes a placeholder header.
// compress requests that Close additionally gzip the file and remove
// the original, per SPEC_FULL.md §3's recording-sidecar addition.
func NewWAVSink(filename string, sampleRate, channels, bitsPerSample int, compress bool) (*WAVSink, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("audiosink: create wav file: %w", err)
	}
	w := &WAVSink{
		file:          file,
		path:          filename,
		sampleRate:    sampleRate,
		channels:      channels,
		bitsPerSample: bitsPerSample,
		compress:      compress,
	}
	if _, err := w.file.Write(w.headerBytes(0xFFFFFFFF, 0xFFFFFFFF)); err != nil {
		file.Close()
		return nil, fmt.Errorf("audiosink: write wav header: %w", err)
	}
	return w, nil
}

// headerBytes lays out the 44-byte PCM WAV header directly as bytes
// from this sink's own audio parameters (sample rate, channel count,
// bit depth) rather than through an intermediate struct, since RIFF's
// fields aren't uniformly aligned in a way Go's struct layout would
// reproduce for free (Subchunk1Size stays fixed at 16 regardless of
// struct field order, and callers need placeholder vs. final sizes
// side by side). chunkSize and dataChunkSize are passed in explicitly
// so the same layout serves both the placeholder write and the
// backpatched final write.
func (w *WAVSink) headerBytes(chunkSize, dataChunkSize uint32) []byte {
	buf := make([]byte, wavHeaderSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], chunkSize)
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // fmt chunk size for PCM
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM audio format
	binary.LittleEndian.PutUint16(buf[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(w.sampleRate*w.channels*w.bitsPerSample/8))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(w.channels*w.bitsPerSample/8))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(w.bitsPerSample))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataChunkSize)
	return buf
}

// WriteFrame appends PCM samples to the file's data section.
func (w *WAVSink) WriteFrame(pcm []int16) error {
	sampleBytes := make([]byte, 2)
	for _, sample := range pcm {
		binary.LittleEndian.PutUint16(sampleBytes, uint16(sample))
		if _, err := w.file.Write(sampleBytes); err != nil {
			return fmt.Errorf("audiosink: write sample: %w", err)
		}
		w.dataSize += int64(w.bitsPerSample / 8)
	}
	return nil
}

// Close backpatches the header with final sizes, then, if compression
// was requested, gzips the file in place and removes the plain .wav.
func (w *WAVSink) Close() error {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		w.file.Close()
		return fmt.Errorf("audiosink: seek to header: %w", err)
	}
	header := w.headerBytes(uint32(w.dataSize+wavHeaderSize-8), uint32(w.dataSize))
	if _, err := w.file.Write(header); err != nil {
		w.file.Close()
		return fmt.Errorf("audiosink: backpatch header: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	if w.compress {
		return w.gzipAndRemove()
	}
	return nil
}

func (w *WAVSink) gzipAndRemove() error {
	in, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("audiosink: reopen wav for compression: %w", err)
	}
	defer in.Close()

	out, err := os.Create(w.path + ".gz")
	if err != nil {
		return fmt.Errorf("audiosink: create gz sidecar: %w", err)
	}

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		return fmt.Errorf("audiosink: gzip wav: %w", err)
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(w.path)
}
