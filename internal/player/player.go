package player

import (
	"errors"
	"fmt"
	"io"

	"github.com/binaryphile/nsfconv/internal/nsf"
)

var (
	ErrNoFile = errors.New("player: no file loaded")
	ErrNoSong = errors.New("player: no song selected")
)

// maxEmptyReads bounds consecutive zero-length reads from a source.
const maxEmptyReads = 100

// Source yields interleaved signed 16-bit samples for one song.
// Read returns io.EOF once the song has ended.
type Source interface {
	Read(dst []int16) (int, error)
	Close() error
}

// Opener starts a Source for a song (0-based).
type Opener interface {
	Open(f *nsf.File, song int, cfg Config) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(f *nsf.File, song int, cfg Config) (Source, error)

func (fn OpenerFunc) Open(f *nsf.File, song int, cfg Config) (Source, error) {
	return fn(f, song, cfg)
}

// Player renders one song at a time from sources supplied by an Opener.
// It stops a song when the source ends or when PlayTime+FadeTime has
// elapsed, fading linearly over the final FadeTime.
type Player struct {
	cfg    Config
	opener Opener

	file *nsf.File
	src  Source
	song int

	pos        int64 // frames rendered in the current song
	total      int64
	fadeStart  int64
	fadeFrames int64
	stopped    bool
}

// New validates cfg and returns an idle player.
func New(cfg Config, opener Opener) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opener == nil {
		return nil, fmt.Errorf("%w: no opener", ErrConfig)
	}
	return &Player{
		cfg:        cfg,
		opener:     opener,
		song:       -1,
		total:      cfg.TotalFrames(),
		fadeStart:  cfg.frames(cfg.PlayTime),
		fadeFrames: cfg.TotalFrames() - cfg.frames(cfg.PlayTime),
		stopped:    true,
	}, nil
}

// Load sets the file whose songs are rendered. Any active song is closed.
func (p *Player) Load(f *nsf.File) error {
	if f == nil {
		return ErrNoFile
	}
	if err := p.closeSource(); err != nil {
		return err
	}
	p.file = f
	return nil
}

// Config returns the playback configuration.
func (p *Player) Config() Config { return p.cfg }

// SongCount returns the number of songs in the loaded file.
func (p *Player) SongCount() int {
	if p.file == nil {
		return 0
	}
	return p.file.Songs
}

// SetSong selects song i (0-based) and restarts playback from its beginning.
func (p *Player) SetSong(i int) error {
	if p.file == nil {
		return ErrNoFile
	}
	if i < 0 || i >= p.file.Songs {
		return fmt.Errorf("player: song %d out of range 0-%d", i, p.file.Songs-1)
	}
	if err := p.closeSource(); err != nil {
		return err
	}

	src, err := p.opener.Open(p.file, i, p.cfg)
	if err != nil {
		return fmt.Errorf("player: open song %d: %w", i+1, err)
	}

	p.src = src
	p.song = i
	p.pos = 0
	p.stopped = false
	return nil
}

// Render fills dst with whole interleaved frames and returns the number of
// frames produced. It returns 0 once the song has stopped.
func (p *Player) Render(dst []int16) (int, error) {
	if p.src == nil {
		return 0, ErrNoSong
	}
	if p.stopped {
		return 0, nil
	}

	ch := p.cfg.Channels
	want := int64(len(dst) / ch)
	if remaining := p.total - p.pos; want > remaining {
		want = remaining
	}
	need := int(want) * ch

	n, eof, err := p.fill(dst[:need])
	if err != nil {
		return 0, err
	}

	frames := n / ch
	p.fade(dst[:frames*ch])
	p.pos += int64(frames)

	if eof || p.pos >= p.total {
		p.stopped = true
	}
	return frames, nil
}

// Stopped reports whether the current song has finished.
func (p *Player) Stopped() bool { return p.stopped }

// Song returns the selected song (0-based), or -1.
func (p *Player) Song() int { return p.song }

// Format expands a metadata template for song i using the loaded file.
func (p *Player) Format(template string, i int) string {
	if p.file == nil {
		return ""
	}
	return p.file.Format(template, i)
}

// Close releases the active source.
func (p *Player) Close() error {
	p.stopped = true
	return p.closeSource()
}

func (p *Player) fill(dst []int16) (n int, eof bool, err error) {
	empty := 0
	for n < len(dst) {
		m, err := p.src.Read(dst[n:])
		n += m
		if errors.Is(err, io.EOF) {
			return n, true, nil
		}
		if err != nil {
			return n, false, fmt.Errorf("player: render song %d: %w", p.song+1, err)
		}
		if m == 0 {
			empty++
			if empty >= maxEmptyReads {
				return n, false, io.ErrNoProgress
			}
			continue
		}
		empty = 0
	}
	return n, false, nil
}

// fade scales frames that fall inside the fade window.
func (p *Player) fade(samples []int16) {
	if p.fadeFrames <= 0 {
		return
	}
	ch := p.cfg.Channels
	for f := 0; f*ch < len(samples); f++ {
		abs := p.pos + int64(f)
		if abs < p.fadeStart {
			continue
		}
		gain := float64(p.total-abs) / float64(p.fadeFrames)
		for c := 0; c < ch; c++ {
			i := f*ch + c
			samples[i] = int16(float64(samples[i]) * gain)
		}
	}
}

func (p *Player) closeSource() error {
	if p.src == nil {
		return nil
	}
	err := p.src.Close()
	p.src = nil
	p.song = -1
	p.stopped = true
	return err
}
