// Package nsf reads NES Sound Format headers and the descriptive strings
// they carry.
package nsf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Header layout
const (
	HeaderSize = 0x80
	Magic      = "NESM\x1A"

	offVersion   = 0x05
	offSongs     = 0x06
	offStartSong = 0x07
	offLoad      = 0x08
	offInit      = 0x0A
	offPlay      = 0x0C
	offTitle     = 0x0E
	offArtist    = 0x2E
	offCopyright = 0x4E
	offNTSCSpeed = 0x6E
	offBanks     = 0x70
	offPALSpeed  = 0x78
	offRegion    = 0x7A
	offChips     = 0x7B

	stringSize = 32
)

// Region bits (header byte 0x7A)
const (
	RegionPAL  = 0x01
	RegionDual = 0x02
)

// Chip is a bitmask of expansion sound hardware (header byte 0x7B).
type Chip uint8

const (
	ChipVRC6 Chip = 1 << iota
	ChipVRC7
	ChipFDS
	ChipMMC5
	ChipN163
	ChipS5B
)

var chipNames = []struct {
	chip Chip
	name string
}{
	{ChipVRC6, "VRC6"},
	{ChipVRC7, "VRC7"},
	{ChipFDS, "FDS"},
	{ChipMMC5, "MMC5"},
	{ChipN163, "N163"},
	{ChipS5B, "5B"},
}

// String lists the chips, e.g. "VRC6+FDS". An empty mask is "2A03".
func (c Chip) String() string {
	var names []string
	for _, cn := range chipNames {
		if c&cn.chip != 0 {
			names = append(names, cn.name)
		}
	}
	if len(names) == 0 {
		return "2A03"
	}
	return strings.Join(names, "+")
}

var (
	ErrTooShort = errors.New("nsf: file too short")
	ErrMagic    = errors.New("nsf: not an NSF file")
	ErrNoSongs  = errors.New("nsf: no songs")
)

// File is a parsed NSF header plus the program data that follows it.
type File struct {
	Path string // empty when parsed from memory

	Version   int
	Songs     int
	StartSong int // 1-based

	LoadAddr uint16
	InitAddr uint16
	PlayAddr uint16

	Title     string
	Artist    string
	Copyright string

	NTSCSpeed uint16 // play call period in microseconds
	PALSpeed  uint16
	Banks     [8]byte
	Region    uint8
	Chips     Chip

	Data []byte
}

// Load reads and parses an NSF file.
// This is boundary code - performs file I/O.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nsf: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// Parse decodes an NSF image.
// This is a pure function: bytes → File.
func Parse(data []byte) (*File, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrTooShort, len(data), HeaderSize)
	}
	if string(data[0:5]) != Magic {
		return nil, ErrMagic
	}

	f := &File{
		Version:   int(data[offVersion]),
		Songs:     int(data[offSongs]),
		StartSong: int(data[offStartSong]),
		LoadAddr:  binary.LittleEndian.Uint16(data[offLoad:]),
		InitAddr:  binary.LittleEndian.Uint16(data[offInit:]),
		PlayAddr:  binary.LittleEndian.Uint16(data[offPlay:]),
		Title:     decodeString(data[offTitle : offTitle+stringSize]),
		Artist:    decodeString(data[offArtist : offArtist+stringSize]),
		Copyright: decodeString(data[offCopyright : offCopyright+stringSize]),
		NTSCSpeed: binary.LittleEndian.Uint16(data[offNTSCSpeed:]),
		PALSpeed:  binary.LittleEndian.Uint16(data[offPALSpeed:]),
		Region:    data[offRegion],
		Chips:     Chip(data[offChips]),
		Data:      data[HeaderSize:],
	}
	copy(f.Banks[:], data[offBanks:offBanks+8])

	switch {
	case f.Songs == 0:
		return nil, ErrNoSongs
	case f.StartSong < 1 || f.StartSong > f.Songs:
		return nil, fmt.Errorf("nsf: starting song %d out of range 1-%d", f.StartSong, f.Songs)
	case len(f.Data) == 0:
		return nil, fmt.Errorf("%w: no program data", ErrTooShort)
	}

	return f, nil
}

// IsPAL reports whether the tune is PAL only.
func (f *File) IsPAL() bool {
	return f.Region&RegionDual == 0 && f.Region&RegionPAL != 0
}

// Bankswitched reports whether any bank init value is set.
func (f *File) Bankswitched() bool {
	return f.Banks != [8]byte{}
}

// Format expands a metadata template for song (0-based):
//
//	%t  title      %a  artist      %c  copyright
//	%n  song number (1-based)      %e  song count
//	%%  literal percent
//
// Unknown sequences are copied verbatim.
func (f *File) Format(template string, song int) string {
	var b strings.Builder
	b.Grow(len(template) + 32)

	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '%' || i+1 == len(template) {
			b.WriteByte(c)
			continue
		}
		i++
		switch template[i] {
		case 't':
			b.WriteString(f.Title)
		case 'a':
			b.WriteString(f.Artist)
		case 'c':
			b.WriteString(f.Copyright)
		case 'n':
			b.WriteString(strconv.Itoa(song + 1))
		case 'e':
			b.WriteString(strconv.Itoa(f.Songs))
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(template[i])
		}
	}
	return b.String()
}

// decodeString reads a NUL-padded Latin-1 header field.
// "<?>" is the NSF convention for an unknown value.
func decodeString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(field)
	if err != nil {
		return ""
	}
	str := strings.TrimSpace(string(s))
	if str == "<?>" {
		return ""
	}
	return str
}
