package flv

import "encoding/binary"

// ProbeResult is the outcome of validating an FLV file header.
type ProbeResult struct {
	Match     bool
	DataOffset int
	HasAudio  bool
	HasVideo  bool
}

// Probe validates the 9-byte FLV header: 'F','L','V', version=1, a flags
// byte carrying hasAudio at bit 2 and hasVideo at bit 0, and a big-endian
// u32 header size >= 9. A header shorter than 9 bytes, or one that fails
// these checks, yields Match=false.
func Probe(firstBytes []byte) ProbeResult {
	if len(firstBytes) < 9 {
		return ProbeResult{}
	}
	if firstBytes[0] != 'F' || firstBytes[1] != 'L' || firstBytes[2] != 'V' {
		return ProbeResult{}
	}
	if firstBytes[3] != 1 {
		return ProbeResult{}
	}
	flags := firstBytes[4]
	headerSize := binary.BigEndian.Uint32(firstBytes[5:9])
	if headerSize < 9 {
		return ProbeResult{}
	}
	return ProbeResult{
		Match:      true,
		DataOffset: int(headerSize),
		HasAudio:   flags&0x04 != 0,
		HasVideo:   flags&0x01 != 0,
	}
}
