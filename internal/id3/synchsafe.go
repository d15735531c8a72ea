package id3

import "fmt"

// MaxSynchsafe is the largest value a 4-byte synchsafe integer can carry (28 bits).
const MaxSynchsafe = 1<<28 - 1

// PutSynchsafe encodes v into b[0:4] as four 7-bit groups, most significant
// group first. The top bit of every byte is always zero.
//
// v must not exceed MaxSynchsafe; callers validate sizes before encoding.
func PutSynchsafe(b []byte, v uint32) {
	if v > MaxSynchsafe {
		panic(fmt.Sprintf("id3: synchsafe value %d exceeds 28 bits", v))
	}
	_ = b[3] // bounds check hint, same as encoding/binary
	b[0] = byte(v>>21) & 0x7F
	b[1] = byte(v>>14) & 0x7F
	b[2] = byte(v>>7) & 0x7F
	b[3] = byte(v) & 0x7F
}

// AppendSynchsafe appends the synchsafe encoding of v to b.
func AppendSynchsafe(b []byte, v uint32) []byte {
	var enc [4]byte
	PutSynchsafe(enc[:], v)
	return append(b, enc[:]...)
}

// Synchsafe decodes a synchsafe integer from b[0:4].
// Bit 7 of each byte is ignored.
func Synchsafe(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0]&0x7F)<<21 |
		uint32(b[1]&0x7F)<<14 |
		uint32(b[2]&0x7F)<<7 |
		uint32(b[3]&0x7F)
}
