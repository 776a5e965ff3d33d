// Package flv implements the FLV container: header probing, tag encode/
// decode, and the streaming demuxer state machine.
package flv

import "errors"

// TagType identifies an FLV tag's payload kind.
type TagType uint8

const (
	TagAudio  TagType = 8
	TagVideo  TagType = 9
	TagScript TagType = 18
)

// SoundFormat is the FLV audio tag's SoundFormat nibble.
type SoundFormat uint8

const (
	SoundMP3 SoundFormat = 2
	SoundAAC SoundFormat = 10
)

// VideoCodecID is the FLV video tag's CodecID nibble.
type VideoCodecID uint8

const VideoAVC VideoCodecID = 7

const (
	AVCPacketSequenceHeader uint8 = 0
	AVCPacketNALU           uint8 = 1
	AVCPacketEndOfSequence  uint8 = 2

	AACPacketSequenceHeader uint8 = 0
	AACPacketRaw            uint8 = 1
)

// HeaderSize is the fixed length of an FLV tag header.
const HeaderSize = 11

// PutUint24 writes the big-endian 24-bit encoding of v into b[0:3].
func PutUint24(b []byte, v uint32) {
	_ = b[2]
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// GetUint24 reads a big-endian 24-bit value from b[0:3].
func GetUint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Tag is a decoded FLV tag header.
type Tag struct {
	TagType           TagType
	DataSize          uint32
	Timestamp         uint32
	TimestampExtended uint8
	StreamID          uint32
}

// Encode serializes the tag header to its 11-byte wire form.
func (t Tag) Encode() []byte {
	b := make([]byte, HeaderSize)
	b[0] = uint8(t.TagType)
	PutUint24(b[1:], t.DataSize)
	PutUint24(b[4:], t.Timestamp)
	b[7] = t.TimestampExtended
	PutUint24(b[8:], t.StreamID)
	return b
}

// Decode reads an 11-byte tag header from data.
func (t *Tag) Decode(data []byte) error {
	if len(data) < HeaderSize {
		return errors.New("flv: tag header shorter than 11 bytes")
	}
	t.TagType = TagType(data[0] & 0x1F)
	t.DataSize = GetUint24(data[1:])
	t.Timestamp = GetUint24(data[4:])
	t.TimestampExtended = data[7]
	t.StreamID = GetUint24(data[8:])
	return nil
}

// AbsoluteTimestamp combines Timestamp's low 24 bits with the extended
// high-8-bit byte to form the signed millisecond timestamp.
func (t Tag) AbsoluteTimestamp() int32 {
	return int32(uint32(t.TimestampExtended)<<24 | t.Timestamp)
}

// VideoTagHeader is the first bytes of a video tag's payload.
type VideoTagHeader struct {
	FrameType       uint8
	CodecID         VideoCodecID
	AVCPacketType   uint8
	CompositionTime int32
}

// Decode reads a video tag header; data must be at least 1 byte, and at
// least 5 when CodecID is AVC.
func (v *VideoTagHeader) Decode(data []byte) (headerLen int, err error) {
	if len(data) < 1 {
		return 0, errors.New("flv: video tag empty")
	}
	v.FrameType = data[0] >> 4
	v.CodecID = VideoCodecID(data[0] & 0x0F)
	if v.CodecID != VideoAVC {
		return 1, nil
	}
	if len(data) < 5 {
		return 0, errors.New("flv: avc video tag shorter than 5 bytes")
	}
	v.AVCPacketType = data[1]
	// Sign-extend the 24-bit composition time offset.
	v.CompositionTime = int32(GetUint24(data[2:])<<8) >> 8
	return 5, nil
}

// AudioTagHeader is the first bytes of an audio tag's payload.
type AudioTagHeader struct {
	SoundFormat   SoundFormat
	SoundRate     uint8
	SoundSize     uint8
	SoundType     uint8
	AACPacketType uint8
}

// Decode reads an audio tag header; data must be at least 1 byte, and at
// least 2 when SoundFormat is AAC.
func (a *AudioTagHeader) Decode(data []byte) (headerLen int, err error) {
	if len(data) < 1 {
		return 0, errors.New("flv: audio tag empty")
	}
	a.SoundFormat = SoundFormat(data[0] >> 4)
	a.SoundRate = (data[0] >> 2) & 0x03
	a.SoundSize = (data[0] >> 1) & 0x01
	a.SoundType = data[0] & 0x01
	if a.SoundFormat != SoundAAC {
		return 1, nil
	}
	if len(data) < 2 {
		return 0, errors.New("flv: aac audio tag shorter than 2 bytes")
	}
	a.AACPacketType = data[1]
	return 2, nil
}
