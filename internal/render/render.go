// Package render pulls sample blocks from a render engine and encodes each
// song into its own WAV file, optionally tagged.
package render

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"

	"github.com/binaryphile/nsfconv/internal/id3"
	"github.com/binaryphile/nsfconv/internal/wav"
)

// DefaultBlockFrames is the number of frames requested per Render call.
const DefaultBlockFrames = 480

// maxIdleBlocks bounds consecutive empty blocks from an engine that has not stopped.
const maxIdleBlocks = 1000

// ErrStalled is returned when the engine keeps producing nothing without stopping.
var ErrStalled = errors.New("render: engine produced no frames")

// Engine renders songs one at a time as interleaved signed 16-bit frames.
type Engine interface {
	SongCount() int
	// SetSong selects song i (0-based) and resets playback state.
	SetSong(i int) error
	// Render fills dst with up to len(dst)/channels frames and returns the
	// number of frames produced.
	Render(dst []int16) (int, error)
	Stopped() bool
	// Format expands a metadata template (%t %a %c %n %e) for song i.
	Format(template string, i int) string
}

// Templates are the metadata templates for each tag frame.
type Templates struct {
	Artist    string
	Album     string
	Composer  string
	Title     string
	Track     string
	Copyright string
}

// DefaultTemplates returns the templates used when none are configured.
func DefaultTemplates() Templates {
	return Templates{
		Artist:    "%a",
		Album:     "%t",
		Composer:  "%a",
		Title:     "%t #%n",
		Track:     "%n/%e",
		Copyright: "%c",
	}
}

// Options configures encoding. Channels and SampleRate must match the engine.
type Options struct {
	Channels    int
	SampleRate  int
	Format      wav.SampleFormat
	BlockFrames int

	Tag       bool
	Templates Templates
	// Amend, when set, adjusts the template-derived metadata for song i.
	Amend func(i int, meta id3.TrackMeta) id3.TrackMeta

	Tracks []int  // 1-based subset, nil for all songs
	Dest   string // output directory, empty for beside the input
	Named  bool   // Artist-Album-NN-Title.wav instead of <input>.<n>.wav

	Log     io.Writer // progress lines, nil discards
	Verbose bool
}

// DefaultOptions returns mono 48 kHz 16-bit output with tagging enabled.
func DefaultOptions() Options {
	return Options{
		Channels:    1,
		SampleRate:  48000,
		Format:      wav.Int16,
		BlockFrames: DefaultBlockFrames,
		Tag:         true,
		Templates:   DefaultTemplates(),
	}
}

// OutputError reports a failure to create or write an output file.
type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string { return fmt.Sprintf("output %s: %v", e.Path, e.Err) }
func (e *OutputError) Unwrap() error { return e.Err }

// EngineError reports a failure to select or render a song.
type EngineError struct {
	Song int // 1-based
	Err  error
}

func (e *EngineError) Error() string { return fmt.Sprintf("song %d: %v", e.Song, e.Err) }
func (e *EngineError) Unwrap() error { return e.Err }

// TrackMeta expands the templates for song i and applies Amend.
func (o Options) TrackMeta(eng Engine, i int) id3.TrackMeta {
	meta := id3.TrackMeta{
		Artist:    eng.Format(o.Templates.Artist, i),
		Album:     eng.Format(o.Templates.Album, i),
		Composer:  eng.Format(o.Templates.Composer, i),
		Title:     eng.Format(o.Templates.Title, i),
		Track:     eng.Format(o.Templates.Track, i),
		Copyright: eng.Format(o.Templates.Copyright, i),
	}
	if o.Amend != nil {
		meta = o.Amend(i, meta)
	}
	return meta
}

// Track renders song i (0-based) into a new WAV file at path.
// This is boundary code - performs file I/O.
//
// The file is closed on every path. On error the file may be incomplete
// but its header lengths describe what was written.
func Track(eng Engine, i int, path string, opts Options) (err error) {
	if err := eng.SetSong(i); err != nil {
		return &EngineError{Song: i + 1, Err: err}
	}

	w, err := wav.Create(path, opts.Channels, opts.SampleRate, opts.Format)
	if err != nil {
		return &OutputError{Path: path, Err: err}
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = &OutputError{Path: path, Err: cerr}
		}
	}()

	if err := encode(eng, w, i, path, opts); err != nil {
		return err
	}

	if opts.Tag {
		tag, err := id3.Encode(opts.TrackMeta(eng, i))
		if err != nil {
			return fmt.Errorf("song %d tag: %w", i+1, err)
		}
		if err := w.WriteChunk(id3.ChunkID, tag); err != nil {
			return &OutputError{Path: path, Err: err}
		}
	}

	if opts.Verbose && opts.Log != nil {
		fmt.Fprintf(opts.Log, "  %d frames, %d ch %s, %d data bytes, %d chunk bytes\n",
			w.Frames(), w.Channels(), w.Format(), w.DataBytes(), w.ExtraBytes())
	}
	return nil
}

// encode forwards rendered blocks to w until the engine stops.
func encode(eng Engine, w *wav.Writer, i int, path string, opts Options) error {
	frames := opts.BlockFrames
	if frames <= 0 {
		frames = DefaultBlockFrames
	}
	block := make([]int16, frames*opts.Channels)
	buf := sampleBuffer(opts, len(block))

	idle := 0
	for !eng.Stopped() {
		n, err := eng.Render(block)
		if err != nil {
			return &EngineError{Song: i + 1, Err: err}
		}
		if n < 0 || n > frames {
			return &EngineError{Song: i + 1, Err: fmt.Errorf("render returned %d frames for a %d frame block", n, frames)}
		}
		if n == 0 {
			idle++
			if idle >= maxIdleBlocks && !eng.Stopped() {
				return &EngineError{Song: i + 1, Err: ErrStalled}
			}
			continue
		}
		idle = 0

		if _, err := w.WriteBuffer(fillBuffer(buf, block[:n*opts.Channels])); err != nil {
			return &OutputError{Path: path, Err: err}
		}
	}
	return nil
}

// sampleBuffer returns the block buffer matching the output format:
// float samples for IEEE float output, 16-bit integers otherwise.
func sampleBuffer(opts Options, samples int) audio.Buffer {
	format := &audio.Format{NumChannels: opts.Channels, SampleRate: opts.SampleRate}
	if opts.Format == wav.Float32 {
		return &audio.Float32Buffer{Format: format, Data: make([]float32, samples), SourceBitDepth: 32}
	}
	return &audio.IntBuffer{Format: format, Data: make([]int, samples), SourceBitDepth: 16}
}

// fillBuffer copies samples into buf, resizing it within its capacity.
func fillBuffer(buf audio.Buffer, samples []int16) audio.Buffer {
	switch b := buf.(type) {
	case *audio.Float32Buffer:
		b.Data = b.Data[:len(samples)]
		for i, s := range samples {
			b.Data[i] = float32(s) / 32768
		}
	case *audio.IntBuffer:
		b.Data = b.Data[:len(samples)]
		for i, s := range samples {
			b.Data[i] = int(s)
		}
	}
	return buf
}
