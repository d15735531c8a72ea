package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/riff"
	gowav "github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// memWAV returns a writer over an in-memory WriteSeeker and a func that
// returns the bytes written so far.
func memWAV(t *testing.T, channels, rate int, format SampleFormat) (*Writer, func() []byte) {
	t.Helper()
	ws := &writerseeker.WriterSeeker{}
	w, err := NewWriter(ws, channels, rate, format)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	return w, func() []byte {
		data, err := io.ReadAll(ws.Reader())
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		return data
	}
}

func chunkSize(b []byte) uint32 { return binary.LittleEndian.Uint32(b[ChunkSizeOffset:]) }
func dataSize(b []byte) uint32  { return binary.LittleEndian.Uint32(b[DataSizeOffset:]) }

func TestCreate_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")

	w, err := Create(path, 2, 44100, Int16)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	wav, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if len(wav) != HeaderSize {
		t.Fatalf("WAV size = %d, want %d", len(wav), HeaderSize)
	}
	if string(wav[0:4]) != "RIFF" {
		t.Errorf("RIFF magic = %q, want \"RIFF\"", string(wav[0:4]))
	}
	if chunkSize(wav) != 36 {
		t.Errorf("ChunkSize = %d, want 36", chunkSize(wav))
	}
	if string(wav[8:12]) != "WAVE" {
		t.Errorf("WAVE format = %q, want \"WAVE\"", string(wav[8:12]))
	}
	if string(wav[12:16]) != "fmt " {
		t.Errorf("fmt chunk = %q, want \"fmt \"", string(wav[12:16]))
	}
	if fmtSize := binary.LittleEndian.Uint32(wav[16:20]); fmtSize != 16 {
		t.Errorf("fmt size = %d, want 16", fmtSize)
	}
	if audioFormat := binary.LittleEndian.Uint16(wav[20:22]); audioFormat != 1 {
		t.Errorf("Audio format = %d, want 1 (PCM)", audioFormat)
	}
	if channels := binary.LittleEndian.Uint16(wav[22:24]); channels != 2 {
		t.Errorf("Channels = %d, want 2", channels)
	}
	if sampleRate := binary.LittleEndian.Uint32(wav[24:28]); sampleRate != 44100 {
		t.Errorf("Sample rate = %d, want 44100", sampleRate)
	}
	if byteRate := binary.LittleEndian.Uint32(wav[28:32]); byteRate != 176400 {
		t.Errorf("Byte rate = %d, want 176400", byteRate)
	}
	if blockAlign := binary.LittleEndian.Uint16(wav[32:34]); blockAlign != 4 {
		t.Errorf("Block align = %d, want 4", blockAlign)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:36]); bits != 16 {
		t.Errorf("Bits per sample = %d, want 16", bits)
	}
	if string(wav[36:40]) != "data" {
		t.Errorf("data chunk = %q, want \"data\"", string(wav[36:40]))
	}
	if dataSize(wav) != 0 {
		t.Errorf("Data size = %d, want 0", dataSize(wav))
	}
}

func TestWriter_EmptyForEveryFormat(t *testing.T) {
	for _, format := range []SampleFormat{Int16, Float32} {
		for _, channels := range []int{1, 2, 6} {
			for _, rate := range []int{1, 8000, 48000, 96000} {
				w, data := memWAV(t, channels, rate, format)
				if err := w.Close(); err != nil {
					t.Fatalf("Close failed: %v", err)
				}
				wav := data()
				if len(wav) != 44 || chunkSize(wav) != 36 || dataSize(wav) != 0 {
					t.Errorf("%v/%d/%d: size=%d ChunkSize=%d DataSize=%d, want 44/36/0",
						format, channels, rate, len(wav), chunkSize(wav), dataSize(wav))
				}
			}
		}
	}
}

func TestWriter_Float32Header(t *testing.T) {
	w, data := memWAV(t, 1, 48000, Float32)
	w.Close()
	wav := data()

	if f := binary.LittleEndian.Uint16(wav[20:22]); f != FormatIEEEFloat {
		t.Errorf("Audio format = %d, want 3 (IEEE float)", f)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:36]); bits != 32 {
		t.Errorf("Bits per sample = %d, want 32", bits)
	}
	if byteRate := binary.LittleEndian.Uint32(wav[28:32]); byteRate != 192000 {
		t.Errorf("Byte rate = %d, want 192000", byteRate)
	}
	if blockAlign := binary.LittleEndian.Uint16(wav[32:34]); blockAlign != 4 {
		t.Errorf("Block align = %d, want 4", blockAlign)
	}
}

func TestWriter_DataSizeAcrossBlocks(t *testing.T) {
	tests := []struct {
		channels int
		format   SampleFormat
	}{
		{1, Int16},
		{2, Int16},
		{1, Float32},
		{3, Float32},
	}

	blocks := []int{480, 1, 0, 1000, 5000, 17}

	for _, tt := range tests {
		w, data := memWAV(t, tt.channels, 48000, tt.format)

		total := 0
		for _, frames := range blocks {
			samples := make([]int16, frames*tt.channels)
			n, err := w.WriteInt16(samples, frames)
			if err != nil {
				t.Fatalf("WriteInt16 failed: %v", err)
			}
			if n != frames {
				t.Errorf("WriteInt16 = %d frames, want %d", n, frames)
			}
			total += frames
		}
		if w.Frames() != int64(total) {
			t.Errorf("Frames = %d, want %d", w.Frames(), total)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		wav := data()
		want := total * tt.channels * tt.format.BytesPerSample()
		if int(dataSize(wav)) != want {
			t.Errorf("%d ch %v: Subchunk2Size = %d, want %d", tt.channels, tt.format, dataSize(wav), want)
		}
		if int(chunkSize(wav)) != 36+want {
			t.Errorf("ChunkSize = %d, want %d", chunkSize(wav), 36+want)
		}
		if len(wav) != 44+want {
			t.Errorf("file size = %d, want %d", len(wav), 44+want)
		}
	}
}

func TestWriter_DataIntegrity(t *testing.T) {
	w, data := memWAV(t, 2, 44100, Int16)

	samples := []int16{1, -1, 0x0102, -32768, 32767, 0}
	if _, err := w.WriteInt16(samples, 3); err != nil {
		t.Fatal(err)
	}
	w.Close()

	want := []byte{0x01, 0x00, 0xFF, 0xFF, 0x02, 0x01, 0x00, 0x80, 0xFF, 0x7F, 0x00, 0x00}
	if got := data()[HeaderSize:]; !bytes.Equal(got, want) {
		t.Errorf("data = % X, want % X", got, want)
	}
}

func TestWriter_PartialBlock(t *testing.T) {
	// Only the requested frames are consumed from a larger block.
	w, data := memWAV(t, 1, 48000, Int16)

	samples := []int16{1, 2, 3, 4, 5, 6, 7, 8}
	if _, err := w.WriteInt16(samples, 3); err != nil {
		t.Fatal(err)
	}
	w.Close()

	if got := dataSize(data()); got != 6 {
		t.Errorf("Data size = %d, want 6", got)
	}
}

func TestWriter_ShortBlock(t *testing.T) {
	w, _ := memWAV(t, 2, 48000, Int16)
	defer w.Close()

	if _, err := w.WriteInt16(make([]int16, 5), 3); !errors.Is(err, ErrShortBlock) {
		t.Errorf("WriteInt16 error = %v, want ErrShortBlock", err)
	}
	if _, err := w.WriteFloat32(make([]float32, 2), -1); !errors.Is(err, ErrShortBlock) {
		t.Errorf("WriteFloat32 error = %v, want ErrShortBlock", err)
	}
	if w.DataBytes() != 0 {
		t.Errorf("DataBytes = %d, want 0", w.DataBytes())
	}
}

func TestWriter_Int16ToFloat32(t *testing.T) {
	w, data := memWAV(t, 1, 48000, Float32)

	if _, err := w.WriteInt16([]int16{0, 16384, -32768}, 3); err != nil {
		t.Fatal(err)
	}
	w.Close()

	body := data()[HeaderSize:]
	want := []float32{0, 0.5, -1}
	for i, v := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
		if got != v {
			t.Errorf("sample %d = %v, want %v", i, got, v)
		}
	}
}

func TestWriter_Float32ToInt16Clamps(t *testing.T) {
	w, data := memWAV(t, 1, 48000, Int16)

	in := []float32{0, 1, -1, 2.5, -7, 0.5, float32(math.NaN())}
	if _, err := w.WriteFloat32(in, len(in)); err != nil {
		t.Fatal(err)
	}
	w.Close()

	body := data()[HeaderSize:]
	want := []int16{0, 32767, -32768, 32767, -32768, 16383, 0}
	for i, v := range want {
		got := int16(binary.LittleEndian.Uint16(body[i*2:]))
		if got != v {
			t.Errorf("sample %d = %d, want %d", i, got, v)
		}
	}
}

func TestWriter_WriteBuffer(t *testing.T) {
	w, data := memWAV(t, 2, 48000, Int16)

	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 48000},
		Data:           []int{1 << 8, -(1 << 8), 0x7FFFFF, 0},
		SourceBitDepth: 24,
	}
	n, err := w.WriteBuffer(ib)
	if err != nil {
		t.Fatalf("WriteBuffer failed: %v", err)
	}
	if n != 2 {
		t.Errorf("WriteBuffer = %d frames, want 2", n)
	}

	fb := &audio.Float32Buffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 48000},
		Data:   []float32{1, -1},
	}
	if _, err := w.WriteBuffer(fb); err != nil {
		t.Fatalf("WriteBuffer failed: %v", err)
	}
	w.Close()

	body := data()[HeaderSize:]
	want := []int16{1, -1, 32767, 0, 32767, -32768}
	if len(body) != len(want)*2 {
		t.Fatalf("data length = %d, want %d", len(body), len(want)*2)
	}
	for i, v := range want {
		got := int16(binary.LittleEndian.Uint16(body[i*2:]))
		if got != v {
			t.Errorf("sample %d = %d, want %d", i, got, v)
		}
	}
}

func TestWriter_WriteBufferChannelMismatch(t *testing.T) {
	w, _ := memWAV(t, 1, 48000, Int16)
	defer w.Close()

	ib := &audio.IntBuffer{Format: &audio.Format{NumChannels: 2}, Data: []int{0, 0}}
	if _, err := w.WriteBuffer(ib); err == nil {
		t.Error("expected channel mismatch error")
	}
}

func TestWriter_WriteChunkCountsOnlyInChunkSize(t *testing.T) {
	w, data := memWAV(t, 1, 48000, Int16)

	if _, err := w.WriteInt16(make([]int16, 100), 100); err != nil {
		t.Fatal(err)
	}
	payload := []byte("ID3 payload!") // even length
	if err := w.WriteChunk("id3 ", payload); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	wav := data()
	if dataSize(wav) != 200 {
		t.Errorf("Subchunk2Size = %d, want 200", dataSize(wav))
	}
	if chunkSize(wav) != uint32(36+200+8+len(payload)) {
		t.Errorf("ChunkSize = %d, want %d", chunkSize(wav), 36+200+8+len(payload))
	}
	if len(wav) != 44+200+8+len(payload) {
		t.Errorf("file size = %d, want %d", len(wav), 44+200+8+len(payload))
	}

	tail := wav[44+200:]
	if string(tail[0:4]) != "id3 " {
		t.Errorf("chunk id = %q, want \"id3 \"", string(tail[0:4]))
	}
	if size := binary.LittleEndian.Uint32(tail[4:8]); size != uint32(len(payload)) {
		t.Errorf("chunk size = %d, want %d", size, len(payload))
	}
	if !bytes.Equal(tail[8:], payload) {
		t.Errorf("chunk payload = %q, want %q", tail[8:], payload)
	}
}

func TestWriter_MultipleChunks(t *testing.T) {
	w, data := memWAV(t, 1, 48000, Int16)

	w.WriteChunk("abcd", []byte{1, 2})
	w.WriteChunk("efgh", []byte{3, 4, 5, 6})
	if w.ExtraBytes() != 8+2+8+4 {
		t.Errorf("ExtraBytes = %d, want 22", w.ExtraBytes())
	}
	w.Close()

	wav := data()
	if chunkSize(wav) != 36+22 {
		t.Errorf("ChunkSize = %d, want 58", chunkSize(wav))
	}
	if dataSize(wav) != 0 {
		t.Errorf("Subchunk2Size = %d, want 0", dataSize(wav))
	}
}

func TestWriter_OddChunkPadded(t *testing.T) {
	w, data := memWAV(t, 1, 8000, Int16)

	w.WriteInt16([]int16{7, 8}, 2)
	payload := []byte{0xA, 0xB, 0xC}
	if err := w.WriteChunk("id3 ", payload); err != nil {
		t.Fatal(err)
	}
	w.Close()

	wav := data()
	if len(wav) != 44+4+8+3+1 {
		t.Fatalf("file size = %d, want %d", len(wav), 44+4+8+3+1)
	}
	if chunkSize(wav) != uint32(len(wav)-8) {
		t.Errorf("ChunkSize = %d, want %d", chunkSize(wav), len(wav)-8)
	}
	if size := binary.LittleEndian.Uint32(wav[44+4+4:]); size != 3 {
		t.Errorf("chunk size field = %d, want 3 (pad byte not counted)", size)
	}
	if wav[len(wav)-1] != 0 {
		t.Errorf("pad byte = 0x%02X, want 0", wav[len(wav)-1])
	}

	// A RIFF parser must walk every chunk and land exactly on EOF.
	p := riff.New(bytes.NewReader(wav))
	if err := p.ParseHeaders(); err != nil {
		t.Fatalf("ParseHeaders: %v", err)
	}
	var ids []string
	for {
		ch, err := p.NextChunk()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextChunk: %v", err)
		}
		ids = append(ids, string(ch.ID[:]))
		buf := make([]byte, ch.Size)
		if _, err := io.ReadFull(ch, buf); err != nil {
			t.Fatalf("read %q: %v", string(ch.ID[:]), err)
		}
	}
	want := []string{"fmt ", "data", "id3 "}
	if len(ids) != len(want) {
		t.Fatalf("chunks = %q, want %q", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestWriter_BadChunkID(t *testing.T) {
	w, _ := memWAV(t, 1, 8000, Int16)
	defer w.Close()

	if err := w.WriteChunk("id3", nil); !errors.Is(err, ErrChunkID) {
		t.Errorf("WriteChunk error = %v, want ErrChunkID", err)
	}
}

func TestWriter_SamplesAfterChunkRejected(t *testing.T) {
	w, _ := memWAV(t, 1, 8000, Int16)
	defer w.Close()

	w.WriteChunk("id3 ", []byte{0, 0})
	if _, err := w.WriteInt16([]int16{1}, 1); !errors.Is(err, ErrChunkWritten) {
		t.Errorf("WriteInt16 error = %v, want ErrChunkWritten", err)
	}
}

func TestWriter_UseAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.wav")

	w, err := Create(path, 1, 48000, Int16)
	if err != nil {
		t.Fatal(err)
	}
	w.WriteInt16([]int16{1, 2, 3, 4}, 4)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(path)

	if err := w.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close error = %v, want ErrClosed", err)
	}
	if _, err := w.WriteInt16([]int16{1}, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteInt16 after Close error = %v, want ErrClosed", err)
	}
	if _, err := w.WriteFloat32([]float32{1}, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteFloat32 after Close error = %v, want ErrClosed", err)
	}
	if err := w.WriteChunk("id3 ", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteChunk after Close error = %v, want ErrClosed", err)
	}

	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("file changed after use-after-close")
	}
}

func TestWriter_TooLarge(t *testing.T) {
	w, _ := memWAV(t, 1, 48000, Int16)
	defer w.Close()

	// Pretend almost 4 GiB has been written.
	w.dataBytes = math.MaxUint32 - 36 - 2

	if _, err := w.WriteInt16([]int16{1}, 1); err != nil {
		t.Fatalf("last sample that fits: %v", err)
	}
	if _, err := w.WriteInt16([]int16{1}, 1); !errors.Is(err, ErrTooLarge) {
		t.Errorf("WriteInt16 error = %v, want ErrTooLarge", err)
	}
	if err := w.WriteChunk("id3 ", nil); !errors.Is(err, ErrTooLarge) {
		t.Errorf("WriteChunk error = %v, want ErrTooLarge", err)
	}
}

func TestNewWriter_Validation(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		rate     int
		format   SampleFormat
	}{
		{"zero channels", 0, 48000, Int16},
		{"negative channels", -1, 48000, Int16},
		{"too many channels", 70000, 48000, Int16},
		{"zero rate", 1, 0, Int16},
		{"unknown format", 1, 48000, SampleFormat(0)},
	}

	for _, tt := range tests {
		ws := &writerseeker.WriterSeeker{}
		if _, err := NewWriter(ws, tt.channels, tt.rate, tt.format); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestCreate_BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.wav")

	if _, err := Create(path, 1, 48000, Int16); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestCreate_InvalidFormatRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")

	if _, err := Create(path, 0, 48000, Int16); err == nil {
		t.Fatal("expected error for zero channels")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("partial file left behind: %v", err)
	}
}

func TestWriter_DecodesWithGoAudio(t *testing.T) {
	w, data := memWAV(t, 2, 22050, Int16)

	samples := make([]int16, 2*300)
	for i := range samples {
		samples[i] = int16(i*97 - 20000)
	}
	w.WriteInt16(samples[:200], 100)
	w.WriteInt16(samples[200:], 200)
	w.WriteChunk("id3 ", []byte("tag"))
	w.Close()

	d := gowav.NewDecoder(bytes.NewReader(data()))
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}

	if d.NumChans != 2 {
		t.Errorf("NumChans = %d, want 2", d.NumChans)
	}
	if d.SampleRate != 22050 {
		t.Errorf("SampleRate = %d, want 22050", d.SampleRate)
	}
	if d.BitDepth != 16 {
		t.Errorf("BitDepth = %d, want 16", d.BitDepth)
	}
	if d.WavAudioFormat != FormatPCM {
		t.Errorf("WavAudioFormat = %d, want 1", d.WavAudioFormat)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
	for i, s := range samples {
		if buf.Data[i] != int(s) {
			t.Fatalf("sample %d = %d, want %d", i, buf.Data[i], s)
		}
	}
}

type countingCloser struct {
	*writerseeker.WriterSeeker
	closed int
}

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

func TestNewWriter_CallerOwnsHandle(t *testing.T) {
	cc := &countingCloser{WriterSeeker: &writerseeker.WriterSeeker{}}

	w, err := NewWriter(cc, 1, 8000, Int16)
	if err != nil {
		t.Fatal(err)
	}
	w.Close()

	if cc.closed != 0 {
		t.Errorf("Close closed the caller's handle %d times", cc.closed)
	}
}

var errDiskFull = errors.New("disk full")

// failingSeeker rejects every write.
type failingSeeker struct{}

func (failingSeeker) Write([]byte) (int, error)       { return 0, errDiskFull }
func (failingSeeker) Seek(int64, int) (int64, error) { return 0, nil }

func TestNewWriter_WriteErrorKeepsCauseAndStack(t *testing.T) {
	_, err := NewWriter(failingSeeker{}, 1, 48000, Int16)
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("NewWriter error = %v, want disk full", err)
	}
	if !strings.HasPrefix(err.Error(), "wav: write header") {
		t.Errorf("error = %q, want wav: write header prefix", err)
	}
	if !strings.Contains(fmt.Sprintf("%+v", err), "writer.go") {
		t.Errorf("expected stack trace in %%+v output:\n%+v", err)
	}
}
