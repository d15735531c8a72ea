package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/binaryphile/nsfconv/internal/id3"
	"github.com/binaryphile/nsfconv/internal/metadata"
	"github.com/binaryphile/nsfconv/internal/musicbrainz"
	"github.com/binaryphile/nsfconv/internal/nsf"
	"github.com/binaryphile/nsfconv/internal/player"
	"github.com/binaryphile/nsfconv/internal/render"
	"github.com/binaryphile/nsfconv/internal/wav"
)

const (
	appName    = "nsfconv"
	appVersion = "1.0"
	appURL     = "https://github.com/binaryphile/nsfconv"
)

// Exit codes
const (
	exitOK     = 0
	exitUsage  = 1
	exitOutput = 2
	exitConfig = 3
	exitInput  = 4
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// .env is optional; real environment variables win
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(stderr, "Warning: .env: %v\n", err)
		}
	}

	defaults := player.DefaultConfig()

	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	renderer := fs.String("renderer", envString("NSFCONV_RENDERER", ""),
		"Renderer command; placeholders {path} {song} {rate} {channels} {loops} {seconds}")
	playTime := fs.Duration("play-time", envDuration("NSFCONV_PLAY_TIME", defaults.PlayTime), "Play time before fade-out")
	fadeTime := fs.Duration("fade-time", envDuration("NSFCONV_FADE_TIME", defaults.FadeTime), "Fade-out length")
	loops := fs.Int("loops", envInt("NSFCONV_LOOPS", defaults.LoopNum), "Loop count passed to the renderer")
	channels := fs.Int("channels", envInt("NSFCONV_CHANNELS", defaults.Channels), "Output channels")
	rate := fs.Int("rate", envInt("NSFCONV_RATE", defaults.SampleRate), "Output sample rate")
	floatOut := fs.Bool("float", false, "Write 32-bit float samples instead of 16-bit PCM")
	block := fs.Int("block", render.DefaultBlockFrames, "Frames per render block")
	noTag := fs.Bool("no-tag", false, "Do not append an ID3 tag")
	tracks := fs.String("tracks", "", "Comma-separated track numbers to render (default: all)")
	metaFile := fs.String("metadata", "", "JSON metadata file overriding NSF strings")
	strict := fs.Bool("strict", false, "Fail on metadata validation warnings")
	mbQuery := fs.String("mb", "", "Search MusicBrainz for track titles")
	named := fs.Bool("named", false, "Name files Artist-Album-NN-Title.wav")
	dest := fs.String("dest", envString("NSFCONV_DEST", ""), "Destination directory (default: beside input)")
	dryRun := fs.Bool("dry-run", false, "Show what would be done")

	verbose := fs.Bool("v", false, "Verbose output")
	fs.BoolVar(verbose, "verbose", false, "Verbose output")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] <file.nsf>\n\n", appName)
		fmt.Fprintf(stderr, "Render each song of an NSF file to a WAV file.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return exitUsage
	}
	input := fs.Arg(0)

	cfg := player.Config{
		PlayTime:   *playTime,
		FadeTime:   *fadeTime,
		LoopNum:    *loops,
		Channels:   *channels,
		SampleRate: *rate,
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}

	fmt.Fprintf(stdout, "%s - NSF to WAV\n", appName)
	fmt.Fprintln(stdout, strings.Repeat("=", 60))
	fmt.Fprintf(stdout, "loading %s\n", input)

	file, err := nsf.Load(input)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitInput
	}

	selected, err := parseTracks(*tracks)
	if err != nil {
		fmt.Fprintf(stderr, "Error: -tracks: %v\n", err)
		return exitUsage
	}
	if _, err := render.Songs(file.Songs, selected); err != nil {
		fmt.Fprintf(stderr, "Error: -tracks: %v\n", err)
		return exitUsage
	}

	fmt.Fprintf(stdout, "%d songs\n", file.Songs)
	if *verbose {
		fmt.Fprintf(stdout, "Title: %s\nArtist: %s\nCopyright: %s\n", file.Title, file.Artist, file.Copyright)
		fmt.Fprintf(stdout, "Chips: %s, PAL: %t, Bankswitched: %t\n", file.Chips, file.IsPAL(), file.Bankswitched())
	}

	var album *metadata.Album
	switch {
	case *metaFile != "":
		album, err = metadata.ParseJSON(*metaFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitInput
		}
		if errs := album.Validate(file.Songs); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(stderr, "Warning: %v\n", e)
			}
			if *strict {
				fmt.Fprintln(stderr, "Validation failed (--strict mode)")
				return exitInput
			}
		}
	case *mbQuery != "":
		album = lookupTitles(*mbQuery, file.Songs, stdout, stderr)
	}

	var opener player.ExecOpener
	if !*dryRun {
		opener, err = player.ParseCommand(*renderer)
		if err == nil {
			err = opener.Check()
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v (set -renderer or NSFCONV_RENDERER)\n", err)
			return exitConfig
		}
	}

	p, err := player.New(cfg, opener)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}
	defer p.Close()
	if err := p.Load(file); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}

	opts := render.DefaultOptions()
	opts.Channels = cfg.Channels
	opts.SampleRate = cfg.SampleRate
	opts.BlockFrames = *block
	opts.Tag = !*noTag
	opts.Tracks = selected
	opts.Dest = *dest
	opts.Named = *named
	opts.Log = stdout
	opts.Verbose = *verbose
	if *floatOut {
		opts.Format = wav.Float32
	}
	if album != nil {
		opts.Amend = album.Apply
	}

	if *dryRun {
		fmt.Fprintln(stdout, "\n[DRY RUN] Would generate:")
		songs, _ := render.Songs(file.Songs, selected)
		for _, i := range songs {
			meta := opts.TrackMeta(p, i)
			fmt.Fprintf(stdout, "  %s  %s\n", opts.Path(p, input, i), formatMeta(meta))
		}
		return exitOK
	}

	if *dest != "" {
		if err := os.MkdirAll(*dest, 0755); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitOutput
		}
	}

	start := time.Now()
	if err := render.Run(p, input, opts); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	fmt.Fprintf(stdout, "\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(stdout, "Done! Rendered %s in %s\n", input, time.Since(start).Round(time.Millisecond))
	return exitOK
}

// exitCode maps a render error to its exit status.
func exitCode(err error) int {
	var outErr *render.OutputError
	var engErr *render.EngineError
	switch {
	case errors.As(err, &outErr):
		return exitOutput
	case errors.As(err, &engErr):
		return exitConfig
	default:
		return exitOutput
	}
}

// lookupTitles fetches titles from MusicBrainz. Failures are warnings.
// This is boundary code - performs network I/O.
func lookupTitles(query string, songs int, stdout, stderr io.Writer) *metadata.Album {
	client := musicbrainz.NewClient(appName, appVersion, appURL)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Fprintf(stdout, "Searching MusicBrainz for: %s\n", query)
	release, err := client.FindRelease(ctx, query, songs)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: MusicBrainz lookup failed: %v\n", err)
		return nil
	}

	fmt.Fprintf(stdout, "Found: %s - %s (%d, %d tracks)\n", release.Artist, release.Title, release.Year, len(release.Tracks))
	if len(release.Tracks) != songs {
		fmt.Fprintf(stderr, "Warning: Track count mismatch (%d songs, %d tracks in release)\n", songs, len(release.Tracks))
	}
	return metadata.FromRelease(release)
}

// parseTracks parses "1,3,5" into track numbers.
// This is a pure function: string → []int
func parseTracks(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var tracks []int
	for _, field := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("invalid track number %q", field)
		}
		tracks = append(tracks, n)
	}
	return tracks, nil
}

func formatMeta(m id3.TrackMeta) string {
	return fmt.Sprintf("[%s] %s - %s (%s)", m.Track, m.Artist, m.Title, m.Album)
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
