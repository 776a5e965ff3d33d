package codec

import (
	"fmt"

	"transmux/pkg/bitio"
)

// MPEG Audio version and layer identifiers, from the frame header table.
const (
	mpegVersionReserved = 0
	mpegVersion1        = 1
	mpegVersion2        = 2
	mpegVersion25       = 3

	mpegLayerReserved = 0
	mpegLayer1        = 1
	mpegLayer2        = 2
	mpegLayer3        = 3
)

// bitRateTable is ffmpeg's ff_mpa_bitrate_tab, indexed [version group][layer-1][bitrate index].
var bitRateTable = [2][3][16]int{
	{
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, -1},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, -1},
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, -1},
	},
	{
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, -1},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},
	},
}

var sampleRateTable = [3][4]int{
	{44100, 48000, 32000, 0},
	{22050, 24000, 16000, 0},
	{11025, 12000, 8000, 0},
}

// MP3FrameHeader is a decoded MPEG-1/2/2.5 Layer I/II/III frame header.
type MP3FrameHeader struct {
	Version         uint8
	Layer           uint8
	BitrateIndex    uint8
	SampleRateIndex uint8
	Padding         uint8
	Mode            uint8
	SampleSize      int
	FrameSize       int
}

// DecodeMP3FrameHeader decodes the 4-byte frame header (CRC, if present, is
// not consumed here) and derives the frame size.
func DecodeMP3FrameHeader(data []byte) (*MP3FrameHeader, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("mp3 frame header too short")
	}
	bs := bitio.NewReader(data)
	if bs.GetBits(11) != 0x7FF {
		return nil, fmt.Errorf("mp3 frame must start with 0xFFE sync word")
	}

	h := &MP3FrameHeader{}
	switch bs.GetBits(2) {
	case 0x00:
		h.Version = mpegVersion25
	case 0x01:
		h.Version = mpegVersionReserved
	case 0x02:
		h.Version = mpegVersion2
	case 0x03:
		h.Version = mpegVersion1
	}

	switch bs.GetBits(2) {
	case 0x00:
		h.Layer = mpegLayerReserved
	case 0x01:
		h.Layer = mpegLayer3
	case 0x02:
		h.Layer = mpegLayer2
	case 0x03:
		h.Layer = mpegLayer1
	}
	if h.Layer == mpegLayerReserved || h.Version == mpegVersionReserved {
		return nil, fmt.Errorf("reserved mp3 version/layer")
	}

	bs.SkipBits(1) // protection_bit
	h.BitrateIndex = uint8(bs.GetBits(4))
	h.SampleRateIndex = uint8(bs.GetBits(2))
	h.Padding = uint8(bs.GetBit())
	bs.SkipBits(1) // private_bit
	h.Mode = uint8(bs.GetBits(2))

	if h.Layer == mpegLayer1 {
		h.SampleSize = 384
	} else if h.Layer == mpegLayer2 {
		h.SampleSize = 1152
	} else if h.Version == mpegVersion1 {
		h.SampleSize = 1152
	} else {
		h.SampleSize = 576
	}

	br := h.BitRate()
	sr := h.SampleRate()
	if br == 0 || sr == 0 {
		return nil, fmt.Errorf("mp3 frame has free or reserved bitrate/sample rate")
	}
	h.FrameSize = h.SampleSize / 8 * br / sr
	if h.Layer == mpegLayer1 {
		h.FrameSize += int(h.Padding) * 4
	} else {
		h.FrameSize += int(h.Padding)
	}
	return h, nil
}

// ChannelCount returns 1 for single-channel mode (0b11), else 2.
func (h *MP3FrameHeader) ChannelCount() int {
	if h.Mode == 0x03 {
		return 1
	}
	return 2
}

// BitRate returns the frame's bit rate in bits/second.
func (h *MP3FrameHeader) BitRate() int {
	group := 0
	if h.Version == mpegVersion2 || h.Version == mpegVersion25 {
		group = 1
	}
	if h.BitrateIndex == 0 || h.BitrateIndex == 15 {
		return 0
	}
	return bitRateTable[group][h.Layer-1][h.BitrateIndex] * 1000
}

// SampleRate returns the frame's sample rate in Hz.
func (h *MP3FrameHeader) SampleRate() int {
	if h.Version == mpegVersionReserved {
		return 0
	}
	return sampleRateTable[h.Version-1][h.SampleRateIndex]
}

// RefSampleDurationMP3 returns the nominal per-sample duration in the given
// timescale: 1152 samples/frame for MP3.
func RefSampleDurationMP3(timescale uint32, sampleRate uint32) float64 {
	return 1152 * float64(timescale) / float64(sampleRate)
}
