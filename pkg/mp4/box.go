// Package mp4 generates ISO BMFF boxes for fragmented MP4 init and media
// segments by concatenation. Unlike a general-purpose
// muxer/demuxer, this package only ever writes boxes forward: no box is
// ever parsed back out of a byte stream by this package (round-trip
// parsing for tests is done externally via github.com/abema/go-mp4).
package mp4

import "encoding/binary"

// mp4Epoch is the offset, in seconds, between the Unix epoch and the MP4
// epoch (1904-01-01), used by the tkhd/mvhd timestamp fields.
const mp4Epoch = 0x7C25B080

// identityMatrix is the unity transformation matrix used by mvhd/tkhd.
var identityMatrix = [9]uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

// box prepends an 8-byte {size, type} header to the concatenation of its
// bodies.
func box(boxType string, bodies ...[]byte) []byte {
	size := 8
	for _, b := range bodies {
		size += len(b)
	}
	out := make([]byte, 8, size)
	binary.BigEndian.PutUint32(out[0:4], uint32(size))
	copy(out[4:8], boxType)
	for _, b := range bodies {
		out = append(out, b...)
	}
	return out
}

// fullBoxHeader returns the 4-byte version+flags prefix shared by every
// ISO BMFF FullBox.
func fullBoxHeader(version uint8, flags uint32) []byte {
	return []byte{version, byte(flags >> 16), byte(flags >> 8), byte(flags)}
}

func putUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func putUint16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func putUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Mdat wraps payload with the `mdat` box header.
func Mdat(payload []byte) []byte {
	return box("mdat", payload)
}
