// Package player drives an audio source through a play-time and fade-out
// policy and exposes it as a track-by-track render engine.
package player

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfig marks an invalid playback configuration.
var ErrConfig = errors.New("player: invalid configuration")

// Config holds playback parameters shared by every song.
type Config struct {
	PlayTime   time.Duration // length before the fade starts
	FadeTime   time.Duration // linear fade-out appended after PlayTime
	LoopNum    int           // loop count passed to the renderer
	Channels   int
	SampleRate int
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		PlayTime:   3*time.Minute + 30*time.Second,
		FadeTime:   8 * time.Second,
		LoopNum:    2,
		Channels:   1,
		SampleRate: 48000,
	}
}

// Validate rejects parameters no renderer can honor.
// This is a pure function: Config → error.
func (c Config) Validate() error {
	switch {
	case c.Channels < 1:
		return fmt.Errorf("%w: channels %d", ErrConfig, c.Channels)
	case c.SampleRate < 1:
		return fmt.Errorf("%w: sample rate %d", ErrConfig, c.SampleRate)
	case c.PlayTime <= 0:
		return fmt.Errorf("%w: play time %v", ErrConfig, c.PlayTime)
	case c.FadeTime < 0:
		return fmt.Errorf("%w: fade time %v", ErrConfig, c.FadeTime)
	case c.LoopNum < 0:
		return fmt.Errorf("%w: loop count %d", ErrConfig, c.LoopNum)
	}
	return nil
}

// frames converts a duration to a frame count at the configured rate.
func (c Config) frames(d time.Duration) int64 {
	return int64(d) * int64(c.SampleRate) / int64(time.Second)
}

// TotalFrames is the frame count of a song that plays to the end of its fade.
func (c Config) TotalFrames() int64 {
	return c.frames(c.PlayTime + c.FadeTime)
}
