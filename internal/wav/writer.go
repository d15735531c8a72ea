package wav

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned for any operation on a finalized writer.
	ErrClosed = errors.New("wav: writer is closed")
	// ErrChunkWritten is returned for sample writes after a subchunk was appended.
	ErrChunkWritten = errors.New("wav: samples written after subchunk")
	// ErrTooLarge is returned when a write would overflow the 32-bit RIFF size.
	ErrTooLarge = errors.New("wav: file would exceed 4 GiB")
	// ErrShortBlock is returned when a block holds fewer samples than frames*channels.
	ErrShortBlock = errors.New("wav: block shorter than frame count")
	// ErrChunkID is returned for subchunk ids that are not 4 bytes.
	ErrChunkID = errors.New("wav: subchunk id must be 4 bytes")
)

// scratchSamples bounds the conversion buffer, whatever the block size.
const scratchSamples = 4096

// Writer streams samples into a WAV container.
// Lengths are backpatched by Close; the writer is inert afterwards.
type Writer struct {
	ws     io.WriteSeeker
	closer io.Closer // set when the writer owns the handle
	bw     *bufio.Writer

	header   Header
	format   SampleFormat
	channels int

	dataBytes  int64 // audio payload, reported in Subchunk2Size
	extraBytes int64 // appended subchunks incl. headers and padding

	chunked bool
	closed  bool

	scratch []byte
}

// Create opens path for writing and writes the header skeleton.
// This is boundary code - performs file I/O.
//
// On error nothing is left open and the partial file is removed.
func Create(path string, channels, sampleRate int, format SampleFormat) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "wav: create")
	}

	w, err := NewWriter(f, channels, sampleRate, format)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewWriter writes a header skeleton to ws and returns a writer positioned
// at the start of the data chunk. The caller keeps ownership of ws; if ws
// is also an io.Closer it is not closed by Close.
func NewWriter(ws io.WriteSeeker, channels, sampleRate int, format SampleFormat) (*Writer, error) {
	h, err := NewHeader(channels, sampleRate, format)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		ws:       ws,
		bw:       bufio.NewWriter(ws),
		header:   h,
		format:   format,
		channels: channels,
		scratch:  make([]byte, scratchSamples*format.BytesPerSample()),
	}

	if err := binary.Write(w.bw, binary.LittleEndian, &w.header); err != nil {
		return nil, errors.Wrap(err, "wav: write header")
	}
	if err := w.bw.Flush(); err != nil {
		return nil, errors.Wrap(err, "wav: write header")
	}

	return w, nil
}

// Format returns the sample format of the data chunk.
func (w *Writer) Format() SampleFormat { return w.format }

// Channels returns the channel count.
func (w *Writer) Channels() int { return w.channels }

// DataBytes returns the audio payload written so far.
func (w *Writer) DataBytes() int64 { return w.dataBytes }

// ExtraBytes returns the bytes written by WriteChunk, headers and padding included.
func (w *Writer) ExtraBytes() int64 { return w.extraBytes }

// Frames returns the number of sample frames written so far.
func (w *Writer) Frames() int64 {
	return w.dataBytes / int64(w.header.BlockAlign)
}

// WriteInt16 writes frames interleaved frames from samples, converting to
// the writer's sample format. It returns the number of frames written.
func (w *Writer) WriteInt16(samples []int16, frames int) (int, error) {
	n, err := w.prepare(len(samples), frames)
	if err != nil || n == 0 {
		return 0, err
	}

	bps := w.format.BytesPerSample()
	for off := 0; off < n; off += scratchSamples {
		block := samples[off:min(off+scratchSamples, n)]
		buf := w.scratch[:len(block)*bps]
		switch w.format {
		case Int16:
			for i, s := range block {
				binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
			}
		case Float32:
			for i, s := range block {
				binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(s)/32768))
			}
		}
		if err := w.write(buf); err != nil {
			return 0, err
		}
	}

	return frames, nil
}

// WriteFloat32 writes frames interleaved frames of float samples in [-1, 1].
// Values are clamped when the writer produces integer PCM.
func (w *Writer) WriteFloat32(samples []float32, frames int) (int, error) {
	n, err := w.prepare(len(samples), frames)
	if err != nil || n == 0 {
		return 0, err
	}

	bps := w.format.BytesPerSample()
	for off := 0; off < n; off += scratchSamples {
		block := samples[off:min(off+scratchSamples, n)]
		buf := w.scratch[:len(block)*bps]
		switch w.format {
		case Int16:
			for i, s := range block {
				binary.LittleEndian.PutUint16(buf[i*2:], uint16(floatToInt16(s)))
			}
		case Float32:
			for i, s := range block {
				binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
			}
		}
		if err := w.write(buf); err != nil {
			return 0, err
		}
	}

	return frames, nil
}

// WriteBuffer writes every frame of an audio buffer. Integer buffers are
// rescaled from their SourceBitDepth (16 when unset) to 16 bits.
func (w *Writer) WriteBuffer(buf audio.Buffer) (int, error) {
	if buf == nil {
		return 0, nil
	}
	if f := buf.PCMFormat(); f != nil && f.NumChannels != 0 && f.NumChannels != w.channels {
		return 0, errors.Errorf("wav: buffer has %d channels, writer has %d", f.NumChannels, w.channels)
	}

	switch b := buf.(type) {
	case *audio.IntBuffer:
		samples := make([]int16, len(b.Data))
		for i, v := range b.Data {
			samples[i] = rescaleToInt16(v, b.SourceBitDepth)
		}
		return w.WriteInt16(samples, len(samples)/w.channels)
	case *audio.Float32Buffer:
		return w.WriteFloat32(b.Data, len(b.Data)/w.channels)
	default:
		fb := buf.AsFloat32Buffer()
		return w.WriteFloat32(fb.Data, len(fb.Data)/w.channels)
	}
}

// WriteChunk appends a RIFF subchunk after everything written so far:
// id, little-endian payload size, payload. Odd payloads get one zero pad
// byte that is counted in ChunkSize but not in the subchunk's size field.
// Subchunk bytes never count towards Subchunk2Size.
func (w *Writer) WriteChunk(id string, payload []byte) error {
	if w.closed {
		return ErrClosed
	}
	if len(id) != 4 {
		return errors.Wrapf(ErrChunkID, "%q", id)
	}

	pad := int64(len(payload) & 1)
	total := 8 + int64(len(payload)) + pad
	if err := w.reserve(total); err != nil {
		return err
	}

	var hdr [8]byte
	copy(hdr[0:4], id)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	if _, err := w.bw.Write(hdr[:]); err != nil {
		return errors.Wrapf(err, "wav: write %q chunk", id)
	}
	if _, err := w.bw.Write(payload); err != nil {
		return errors.Wrapf(err, "wav: write %q chunk", id)
	}
	if pad == 1 {
		if err := w.bw.WriteByte(0); err != nil {
			return errors.Wrapf(err, "wav: write %q chunk", id)
		}
	}

	w.extraBytes += total
	w.chunked = true
	return nil
}

// Close flushes buffered data, rewrites ChunkSize and Subchunk2Size in
// place and closes the destination if the writer owns it. The handle is
// released even when the backpatch fails. A second Close returns ErrClosed.
func (w *Writer) Close() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	err := w.finalize()
	if w.closer != nil {
		if cerr := w.closer.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "wav: close")
		}
	}
	return err
}

func (w *Writer) finalize() error {
	if err := w.bw.Flush(); err != nil {
		return errors.Wrap(err, "wav: flush")
	}

	w.header.ChunkSize = uint32(riffOverhead + w.dataBytes + w.extraBytes)
	w.header.DataSize = uint32(w.dataBytes)

	if err := w.patch(ChunkSizeOffset, w.header.ChunkSize); err != nil {
		return err
	}
	if err := w.patch(DataSizeOffset, w.header.DataSize); err != nil {
		return err
	}

	if _, err := w.ws.Seek(0, io.SeekEnd); err != nil {
		return errors.Wrap(err, "wav: seek end")
	}
	return nil
}

func (w *Writer) patch(offset int64, v uint32) error {
	if _, err := w.ws.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrapf(err, "wav: seek to offset %d", offset)
	}
	if err := binary.Write(w.ws, binary.LittleEndian, v); err != nil {
		return errors.Wrapf(err, "wav: rewrite offset %d", offset)
	}
	return nil
}

// prepare validates a sample write and reserves its bytes.
// It returns the number of samples to consume.
func (w *Writer) prepare(have, frames int) (int, error) {
	switch {
	case w.closed:
		return 0, ErrClosed
	case w.chunked:
		return 0, ErrChunkWritten
	case frames < 0:
		return 0, errors.Wrapf(ErrShortBlock, "negative frame count %d", frames)
	}

	n := frames * w.channels
	if n > have {
		return 0, errors.Wrapf(ErrShortBlock, "%d frames need %d samples, have %d", frames, n, have)
	}
	if err := w.reserve(int64(n) * int64(w.format.BytesPerSample())); err != nil {
		return 0, err
	}
	return n, nil
}

// reserve fails when adding n bytes would overflow ChunkSize.
func (w *Writer) reserve(n int64) error {
	if riffOverhead+w.dataBytes+w.extraBytes+n > maxChunkSize {
		return ErrTooLarge
	}
	return nil
}

func (w *Writer) write(buf []byte) error {
	if _, err := w.bw.Write(buf); err != nil {
		return errors.Wrap(err, "wav: write samples")
	}
	w.dataBytes += int64(len(buf))
	return nil
}

func floatToInt16(v float32) int16 {
	switch {
	case v != v: // NaN
		return 0
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	}
	return int16(v * 32767)
}

func rescaleToInt16(v, depth int) int16 {
	switch {
	case depth > 16:
		v >>= uint(depth - 16)
	case depth > 0 && depth < 16:
		v <<= uint(16 - depth)
	}
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
