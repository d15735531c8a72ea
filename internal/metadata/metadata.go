// Package metadata provides JSON parsing for manual track metadata.
// Used when the strings in the NSF header are missing or too terse to
// tag with; values in the file override the header-derived ones.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/binaryphile/nsfconv/internal/id3"
	"github.com/binaryphile/nsfconv/internal/musicbrainz"
)

// Album represents album metadata from a JSON file.
type Album struct {
	Artist     string  `json:"artist"`
	AlbumTitle string  `json:"album"`
	Composer   string  `json:"composer"`
	Copyright  string  `json:"copyright"`
	Year       string  `json:"year"`
	Tracks     []Track `json:"tracks"`
}

// Track overrides the fields of one song. Num is 1-based.
type Track struct {
	Num    int    `json:"num"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// ParseJSON reads and parses a metadata JSON file.
func ParseJSON(path string) (*Album, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var album Album
	if err := json.Unmarshal(data, &album); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &album, nil
}

// FromRelease converts a MusicBrainz release to album overrides.
// This is a pure function: Release → Album
func FromRelease(r *musicbrainz.Release) *Album {
	album := &Album{
		Artist:     r.Artist,
		AlbumTitle: r.Title,
	}
	if r.Year > 0 {
		album.Year = strconv.Itoa(r.Year)
	}

	album.Tracks = make([]Track, 0, len(r.Tracks))
	for i, t := range r.Tracks {
		num := t.Num
		if num == 0 {
			num = i + 1
		}
		track := Track{Num: num, Title: t.Title}
		if r.Compilation {
			track.Artist = t.Artist
		}
		album.Tracks = append(album.Tracks, track)
	}
	return album
}

// Validate checks the overrides against the song count.
// All issues are returned as warnings - caller decides whether to proceed.
func (a *Album) Validate(songCount int) []error {
	var errs []error

	if a.Artist == "" && a.AlbumTitle == "" && a.Composer == "" && a.Copyright == "" && len(a.Tracks) == 0 {
		errs = append(errs, errors.New("no fields set: expected artist, album, composer, copyright or tracks"))
	}
	if len(a.Tracks) > songCount {
		errs = append(errs, fmt.Errorf("track count mismatch: JSON has %d, file has %d songs",
			len(a.Tracks), songCount))
	}

	seen := make(map[int]bool)
	for i, t := range a.Tracks {
		switch {
		case t.Num < 1 || t.Num > songCount:
			errs = append(errs, fmt.Errorf("track %d: num %d out of range 1-%d", i+1, t.Num, songCount))
		case seen[t.Num]:
			errs = append(errs, fmt.Errorf("track %d: duplicate num %d", i+1, t.Num))
		}
		seen[t.Num] = true

		if t.Title == "" {
			errs = append(errs, fmt.Errorf("track %d missing title", i+1))
		}
	}

	return errs
}

// Apply overrides meta for song i (0-based) with every non-empty field.
// A copyright left empty is filled from Year.
func (a *Album) Apply(i int, meta id3.TrackMeta) id3.TrackMeta {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	set(&meta.Artist, a.Artist)
	set(&meta.Album, a.AlbumTitle)
	set(&meta.Composer, a.Composer)
	set(&meta.Copyright, a.Copyright)
	if meta.Copyright == "" {
		meta.Copyright = a.Year
	}

	for _, t := range a.Tracks {
		if t.Num == i+1 {
			set(&meta.Title, t.Title)
			set(&meta.Artist, t.Artist)
		}
	}
	return meta
}
