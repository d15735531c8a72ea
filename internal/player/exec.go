package player

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/binaryphile/nsfconv/internal/nsf"
)

// ErrNoRenderer is returned when no renderer command is configured or the
// command cannot be found.
var ErrNoRenderer = errors.New("player: renderer not available")

// waitDelay bounds how long Close waits on output held open by children.
const waitDelay = 2 * time.Second

// ExecOpener renders songs with an external command that writes raw
// interleaved signed 16-bit little-endian PCM to stdout.
//
// Arguments may contain placeholders:
//
//	{path}      NSF file path
//	{song}      song number (1-based)
//	{rate}      sample rate
//	{channels}  channel count
//	{loops}     loop count
//	{seconds}   play time plus fade time, whole seconds
type ExecOpener struct {
	Command string
	Args    []string
}

// ParseCommand splits a command line on whitespace into an ExecOpener.
// This is a pure function: string → ExecOpener.
func ParseCommand(line string) (ExecOpener, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ExecOpener{}, fmt.Errorf("%w: empty command", ErrNoRenderer)
	}
	return ExecOpener{Command: fields[0], Args: fields[1:]}, nil
}

// Check verifies the command is installed and accessible.
func (o ExecOpener) Check() error {
	if o.Command == "" {
		return fmt.Errorf("%w: empty command", ErrNoRenderer)
	}
	if _, err := exec.LookPath(o.Command); err != nil {
		return fmt.Errorf("%w: %v", ErrNoRenderer, err)
	}
	return nil
}

// ExpandArgs substitutes the placeholders for one song.
// This is a pure function: (args, file, song, cfg) → args.
func ExpandArgs(args []string, f *nsf.File, song int, cfg Config) []string {
	seconds := int64((cfg.PlayTime + cfg.FadeTime).Seconds())
	r := strings.NewReplacer(
		"{path}", f.Path,
		"{song}", strconv.Itoa(song+1),
		"{rate}", strconv.Itoa(cfg.SampleRate),
		"{channels}", strconv.Itoa(cfg.Channels),
		"{loops}", strconv.Itoa(cfg.LoopNum),
		"{seconds}", strconv.FormatInt(seconds, 10),
	)

	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

// Open starts the renderer for song.
// This is boundary code - starts an external process.
func (o ExecOpener) Open(f *nsf.File, song int, cfg Config) (Source, error) {
	if err := o.Check(); err != nil {
		return nil, err
	}

	cmd := exec.Command(o.Command, ExpandArgs(o.Args, f, song, cfg)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("renderer stdout: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start renderer: %w", err)
	}

	return &execSource{
		cmd:    cmd,
		r:      bufio.NewReaderSize(stdout, 64*1024),
		stderr: stderr,
	}, nil
}

type execSource struct {
	cmd    *exec.Cmd
	r      *bufio.Reader
	stderr *bytes.Buffer
	buf    []byte
	done   bool
	waited bool
}

func (s *execSource) Read(dst []int16) (int, error) {
	if s.done {
		return 0, io.EOF
	}
	if cap(s.buf) < 2*len(dst) {
		s.buf = make([]byte, 2*len(dst))
	}
	buf := s.buf[:2*len(dst)]

	n, err := io.ReadFull(s.r, buf)
	samples := n / 2
	for i := 0; i < samples; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
	}

	switch {
	case err == nil:
		return samples, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		if werr := s.wait(); werr != nil {
			return samples, werr
		}
		return samples, io.EOF
	default:
		return samples, fmt.Errorf("read renderer output: %w", err)
	}
}

// Close kills the renderer if it is still running and reaps it.
func (s *execSource) Close() error {
	if s.waited {
		return nil
	}
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	s.waited = true
	return nil
}

func (s *execSource) wait() error {
	s.waited = true
	if err := s.cmd.Wait(); err != nil {
		msg := strings.TrimSpace(s.stderr.String())
		if msg != "" {
			return fmt.Errorf("renderer failed: %w: %s", err, msg)
		}
		return fmt.Errorf("renderer failed: %w", err)
	}
	return nil
}
