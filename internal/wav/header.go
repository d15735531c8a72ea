// Package wav writes RIFF/WAVE files incrementally.
//
// The header is written with zero length fields when the file is opened;
// the two lengths are backpatched when the writer is closed. Extra RIFF
// subchunks (an "id3 " tag, for example) may follow the audio data.
//
// I/O failures are wrapped with github.com/pkg/errors and carry a stack
// trace ("%+v"); the cause and the sentinel errors below still match with
// errors.Is.
package wav

import (
	"fmt"
	"math"
)

// Header layout
const (
	HeaderSize      = 44
	ChunkSizeOffset = 4  // RIFF ChunkSize field
	DataSizeOffset  = 40 // data Subchunk2Size field

	fmtChunkSize = 16 // PCM / IEEE float fmt chunk without extension

	// riffOverhead is ChunkSize for an empty file:
	// "WAVE" (4) + fmt chunk (8 + 16) + data chunk header (8).
	riffOverhead = 36

	maxChunkSize = math.MaxUint32
)

// Audio format tags for the fmt chunk
const (
	FormatPCM       = 1
	FormatIEEEFloat = 3
)

// SampleFormat is the numeric representation of samples in the data chunk.
type SampleFormat int

const (
	Int16   SampleFormat = iota + 1 // 16-bit signed integer PCM
	Float32                         // 32-bit IEEE float
)

// BytesPerSample returns the byte width of one sample, 0 if unknown.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case Int16:
		return 2
	case Float32:
		return 4
	default:
		return 0
	}
}

// AudioFormat returns the fmt chunk format tag.
func (f SampleFormat) AudioFormat() uint16 {
	if f == Float32 {
		return FormatIEEEFloat
	}
	return FormatPCM
}

func (f SampleFormat) String() string {
	switch f {
	case Int16:
		return "int16"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// Header mirrors the 44-byte on-disk layout of a canonical WAV header.
// It is written as-is with binary.Write in little-endian order.
type Header struct {
	// RIFF header
	RiffID    [4]byte // "RIFF"
	ChunkSize uint32  // 36 + data bytes + extra subchunk bytes
	WaveID    [4]byte // "WAVE"

	// fmt subchunk
	FmtID         [4]byte // "fmt "
	FmtSize       uint32  // 16
	AudioFormat   uint16  // 1 = PCM, 3 = IEEE float
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample/8
	BlockAlign    uint16 // NumChannels * BitsPerSample/8
	BitsPerSample uint16

	// data subchunk
	DataID   [4]byte // "data"
	DataSize uint32  // Subchunk2Size: audio payload bytes only
}

// NewHeader derives a header skeleton with both length fields zeroed.
// This is a pure function: (channels, rate, format) → Header.
func NewHeader(channels, sampleRate int, format SampleFormat) (Header, error) {
	bps := format.BytesPerSample()
	switch {
	case bps == 0:
		return Header{}, fmt.Errorf("wav: unsupported sample format %v", format)
	case channels < 1 || channels > math.MaxUint16:
		return Header{}, fmt.Errorf("wav: invalid number of channels %d", channels)
	case sampleRate < 1 || int64(sampleRate)*int64(channels)*int64(bps) > math.MaxUint32:
		return Header{}, fmt.Errorf("wav: invalid sample rate %d", sampleRate)
	}

	blockAlign := channels * bps
	if blockAlign > math.MaxUint16 {
		return Header{}, fmt.Errorf("wav: block align %d too large", blockAlign)
	}

	return Header{
		RiffID:        [4]byte{'R', 'I', 'F', 'F'},
		WaveID:        [4]byte{'W', 'A', 'V', 'E'},
		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       fmtChunkSize,
		AudioFormat:   format.AudioFormat(),
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: uint16(8 * bps),
		DataID:        [4]byte{'d', 'a', 't', 'a'},
	}, nil
}
