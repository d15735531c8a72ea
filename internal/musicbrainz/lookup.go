// Package musicbrainz looks up release track listings, used to give
// rendered songs real titles.
package musicbrainz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uploadedlobster.com/mbtypes"
	"go.uploadedlobster.com/musicbrainzws2"
)

// Release is a soundtrack release. Tracks is empty in Search results.
type Release struct {
	MBID        string
	Title       string
	Artist      string
	Year        int
	TrackCount  int // summed over all media
	Tracks      []Track
	Compilation bool // credited to Various Artists
}

// Track is one entry of a release, numbered across media.
type Track struct {
	Num    int
	Title  string
	Artist string // may differ from the release artist on compilations
}

const (
	unknownArtist  = "Unknown Artist"
	variousArtists = "Various Artists"
)

// requestInterval is the MusicBrainz rate limit: 1 request per second.
const requestInterval = time.Second

// Client wraps the MusicBrainz API
type Client struct {
	client *musicbrainzws2.Client
	last   time.Time
}

// NewClient creates a new MusicBrainz API client
func NewClient(appName, version, contact string) *Client {
	client := musicbrainzws2.NewClient(musicbrainzws2.AppInfo{
		Name:    appName,
		Version: version,
		URL:     contact,
	})
	return &Client{client: client}
}

// Close releases client resources
func (c *Client) Close() error {
	return c.client.Close()
}

// wait blocks until the next request is allowed.
func (c *Client) wait(ctx context.Context) error {
	delay := requestInterval - time.Since(c.last)
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	c.last = time.Now()
	return nil
}

// GetReleaseTracks fetches a release with its recordings. Tracks of every
// medium are numbered in one sequence, the way songs in an NSF file are.
func (c *Client) GetReleaseTracks(ctx context.Context, mbid string) (*Release, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	r, err := c.client.LookupRelease(ctx, mbtypes.MBID(mbid), musicbrainzws2.IncludesFilter{
		Includes: []string{"recordings", "artists", "artist-credits"},
	})
	if err != nil {
		return nil, fmt.Errorf("release %s: %w", mbid, err)
	}

	release := newRelease(string(r.ID), r.Title, r.Date.Year, r.ArtistCredit, r.Media)
	release.Tracks = flattenTracks(r.Media, r.ArtistCredit)
	return &release, nil
}

// Search returns release summaries matching a free-text query.
// Track lists are not included; use GetReleaseTracks for those.
func (c *Client) Search(ctx context.Context, query string) ([]Release, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.client.SearchReleases(ctx, musicbrainzws2.SearchFilter{Query: query},
		musicbrainzws2.DefaultPaginator())
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	releases := make([]Release, 0, len(result.Releases))
	for _, r := range result.Releases {
		releases = append(releases, newRelease(string(r.ID), r.Title, r.Date.Year, r.ArtistCredit, r.Media))
	}
	return releases, nil
}

// newRelease keeps the release fields used for matching and tagging.
// This is a pure function: release fields → Release
func newRelease(mbid, title string, year int, credit musicbrainzws2.ArtistCredit, media []musicbrainzws2.Medium) Release {
	return Release{
		MBID:        mbid,
		Title:       title,
		Artist:      artistName(credit),
		Year:        year,
		TrackCount:  countTracks(media),
		Compilation: isCompilation(credit),
	}
}

// flattenTracks numbers the tracks of all media from 1.
func flattenTracks(media []musicbrainzws2.Medium, albumCredit musicbrainzws2.ArtistCredit) []Track {
	var tracks []Track
	for _, m := range media {
		for _, t := range m.Tracks {
			tracks = append(tracks, Track{
				Num:    len(tracks) + 1,
				Title:  t.Title,
				Artist: trackArtist(t, albumCredit),
			})
		}
	}
	return tracks
}

func artistName(credit musicbrainzws2.ArtistCredit) string {
	if len(credit) == 0 {
		return unknownArtist
	}
	return credit.String()
}

// trackArtist prefers the track credit, then the recording credit, then
// the release credit.
func trackArtist(t musicbrainzws2.Track, albumCredit musicbrainzws2.ArtistCredit) string {
	switch {
	case len(t.ArtistCredit) > 0:
		return t.ArtistCredit.String()
	case len(t.Recording.ArtistCredit) > 0:
		return t.Recording.ArtistCredit.String()
	default:
		return artistName(albumCredit)
	}
}

func isCompilation(credit musicbrainzws2.ArtistCredit) bool {
	return len(credit) > 0 && credit.String() == variousArtists
}

func countTracks(media []musicbrainzws2.Medium) (n int) {
	for _, m := range media {
		n += m.TrackCount
	}
	return n
}

// ErrNoRelease is returned by FindRelease when a search has no results.
var ErrNoRelease = errors.New("musicbrainz: no matching release")

// SortReleasesByTrackMatch orders releases whose track count equals
// trackCount first, newest first within each group.
// This is a pure function: the input slice is not modified.
func SortReleasesByTrackMatch(releases []Release, trackCount int) []Release {
	sorted := make([]Release, len(releases))
	copy(sorted, releases)

	sort.SliceStable(sorted, func(i, j int) bool {
		mi := sorted[i].TrackCount == trackCount
		mj := sorted[j].TrackCount == trackCount
		if mi != mj {
			return mi
		}
		return sorted[i].Year > sorted[j].Year
	})
	return sorted
}

// FindRelease searches for query and fetches the tracks of the release
// that best matches trackCount.
func (c *Client) FindRelease(ctx context.Context, query string, trackCount int) (*Release, error) {
	releases, err := c.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(releases) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoRelease, query)
	}

	best := SortReleasesByTrackMatch(releases, trackCount)[0]
	return c.GetReleaseTracks(ctx, best.MBID)
}
