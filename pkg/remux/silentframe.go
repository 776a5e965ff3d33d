package remux

// silentAACFrames holds one pre-encoded silent (near-zero-energy) raw AAC
// frame per channel count, used to fill audio timestamp gaps.
// When a stream's channel count isn't in the table, the gap filler
// repeats the previous real frame's bytes instead.
var silentAACFrames = map[uint8][]byte{
	1: {0x01, 0x40, 0x20, 0x0c, 0x0f, 0xfe},
	2: {0x21, 0x00, 0x49, 0x90, 0x02, 0x19, 0x00, 0x23, 0x80},
}

// silentFrameFor returns the table entry for channelCount, or nil if the
// caller should fall back to repeating the previous frame.
func silentFrameFor(channelCount uint8) []byte {
	return silentAACFrames[channelCount]
}
