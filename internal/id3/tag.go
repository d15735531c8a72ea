// Package id3 synthesizes ID3v2.4 tags byte for byte.
//
// Only text frames in ISO-8859-1 are supported. The tag is meant to be
// carried inside an "id3 " RIFF subchunk of a WAV file.
package id3

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// Tag layout constants
const (
	HeaderSize      = 10 // "ID3" + version + revision + flags + size
	FrameHeaderSize = 10 // id + size + flags
	MajorVersion    = 4
	Revision        = 0

	sizeOffset = 6 // offset of the tag size field in the header

	// EncodingISO88591 is the text encoding byte for Latin-1 frames.
	EncodingISO88591 = 0x00
)

// ChunkID is the RIFF subchunk id used to carry a tag inside a WAV file.
const ChunkID = "id3 "

var (
	ErrFrameID      = errors.New("invalid frame id")
	ErrFrameTooLong = errors.New("frame too long")
	ErrTagTooLong   = errors.New("tag too long")
)

// Frame is one text frame: a 4-character id and its text.
type Frame struct {
	ID   string
	Text string
}

// Builder assembles one tag. It owns the buffer and the position of the
// reserved size field; frames are appended in call order.
//
// The first error sticks: later calls are no-ops and Bytes returns it.
type Builder struct {
	buf []byte
	err error
}

// NewBuilder starts a tag with its 10-byte header. The size field is
// zero until Bytes backpatches it.
func NewBuilder() *Builder {
	buf := make([]byte, HeaderSize, 256)
	copy(buf[0:3], "ID3")
	buf[3] = MajorVersion
	buf[4] = Revision
	buf[5] = 0 // flags
	// buf[6:10] reserved for the synchsafe tag size
	return &Builder{buf: buf}
}

// AddTextFrame appends a Latin-1 text frame.
//
// Layout: id (4) | synchsafe size (4) | flags (2) | encoding (1) | text | NUL.
// The declared size covers the encoding byte, the text and the terminator,
// so an empty text declares size 2.
func (b *Builder) AddTextFrame(id, text string) *Builder {
	if b.err != nil {
		return b
	}
	if !validFrameID(id) {
		b.err = fmt.Errorf("%w: %q", ErrFrameID, id)
		return b
	}

	latin1 := encodeLatin1(text)
	size := len(latin1) + 2
	if size > MaxSynchsafe {
		b.err = fmt.Errorf("%s: %w (%d bytes)", id, ErrFrameTooLong, size)
		return b
	}
	if len(b.buf)-HeaderSize+FrameHeaderSize+size > MaxSynchsafe {
		b.err = fmt.Errorf("%s: %w", id, ErrTagTooLong)
		return b
	}

	b.buf = append(b.buf, id...)
	b.buf = AppendSynchsafe(b.buf, uint32(size))
	b.buf = append(b.buf, 0, 0) // no compression, encryption or grouping
	b.buf = append(b.buf, EncodingISO88591)
	b.buf = append(b.buf, latin1...)
	b.buf = append(b.buf, 0)

	return b
}

// Len returns the number of bytes written so far, header included.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Bytes backpatches the tag size and returns a copy of the finished tag.
// The size field counts every byte after the 10-byte header.
func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	PutSynchsafe(b.buf[sizeOffset:sizeOffset+4], uint32(len(b.buf)-HeaderSize))

	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out, nil
}

// Build assembles a tag from frames, preserving their order.
// This is a pure function: frames → tag bytes.
func Build(frames []Frame) ([]byte, error) {
	b := NewBuilder()
	for _, f := range frames {
		b.AddTextFrame(f.ID, f.Text)
	}
	return b.Bytes()
}

func validFrameID(id string) bool {
	if len(id) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		c := id[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// encodeLatin1 maps s to ISO-8859-1. Runes outside Latin-1 become '?'.
// NUL is dropped since it terminates the frame text.
func encodeLatin1(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r == 0 {
			continue
		}
		c, ok := charmap.ISO8859_1.EncodeRune(r)
		if !ok {
			c = '?'
		}
		out = append(out, c)
	}
	return out
}
