package id3

import "fmt"

// Text frame ids written for every track, in output order.
const (
	FrameArtist    = "TPE1"
	FrameAlbum     = "TALB"
	FrameComposer  = "TCOM"
	FrameTitle     = "TIT2"
	FrameTrack     = "TRCK"
	FrameCopyright = "TCOP"
)

// TrackMeta contains the descriptive strings for one track.
// Any field may be empty; empty fields still produce a frame.
type TrackMeta struct {
	Artist    string
	Album     string
	Composer  string
	Title     string
	Track     string // "N" or "N/Total"
	Copyright string
}

// Frames returns the fixed frame sequence for a track:
// artist, album, composer, title, track number, copyright.
func (m TrackMeta) Frames() []Frame {
	return []Frame{
		{FrameArtist, m.Artist},
		{FrameAlbum, m.Album},
		{FrameComposer, m.Composer},
		{FrameTitle, m.Title},
		{FrameTrack, m.Track},
		{FrameCopyright, m.Copyright},
	}
}

// Encode builds the complete tag for a track.
// This is a pure function: TrackMeta → tag bytes.
// No I/O is performed - the caller hands the bytes to the WAV writer.
func Encode(meta TrackMeta) ([]byte, error) {
	tag, err := Build(meta.Frames())
	if err != nil {
		return nil, fmt.Errorf("build tag: %w", err)
	}
	return tag, nil
}
