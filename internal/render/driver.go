package render

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// OutputPath replaces the extension of input with .<song>.wav (1-based).
// This is a pure function: (input, song) → path
//
//	OutputPath("music/game.nsf", 0) = "music/game.1.wav"
func OutputPath(input string, song int) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + "." + strconv.Itoa(song+1) + ".wav"
}

// Songs resolves the 1-based track selection to 0-based song indices.
// An empty selection means every song.
func Songs(count int, tracks []int) ([]int, error) {
	if len(tracks) == 0 {
		songs := make([]int, count)
		for i := range songs {
			songs[i] = i
		}
		return songs, nil
	}

	songs := make([]int, 0, len(tracks))
	for _, t := range tracks {
		if t < 1 || t > count {
			return nil, fmt.Errorf("track %d out of range 1-%d", t, count)
		}
		songs = append(songs, t-1)
	}
	return songs, nil
}

// Path returns the output path for song i of input under opts.
func (o Options) Path(eng Engine, input string, i int) string {
	var path string
	if o.Named {
		meta := o.TrackMeta(eng, i)
		path = GenerateFilename(meta.Artist, meta.Album, i+1, meta.Title)
		if o.Dest == "" {
			path = filepath.Join(filepath.Dir(input), path)
		}
	} else {
		path = OutputPath(input, i)
	}

	if o.Dest != "" {
		path = filepath.Join(o.Dest, filepath.Base(path))
	}
	return path
}

// Run renders every selected song of eng and stops at the first error.
// Files finished before the error are left in place.
func Run(eng Engine, input string, opts Options) error {
	log := opts.Log
	if log == nil {
		log = io.Discard
	}

	songs, err := Songs(eng.SongCount(), opts.Tracks)
	if err != nil {
		return err
	}

	for _, i := range songs {
		path := opts.Path(eng, input, i)
		fmt.Fprintf(log, "generating %s\n", path)

		if err := Track(eng, i, path, opts); err != nil {
			return err
		}

		if opts.Verbose {
			meta := opts.TrackMeta(eng, i)
			fmt.Fprintf(log, "  %s - %s\n", meta.Track, meta.Title)
		}
	}
	return nil
}
