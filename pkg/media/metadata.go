package media

import "sort"

// AudioMetadata is the track metadata aggregated on the first AAC
// AudioSpecificConfig or MP3 frame header.
type AudioMetadata struct {
	Codec             string // "mp4a.40.N" or "mp3"
	SampleRate        uint32
	ChannelCount      uint8
	Config            []byte // AudioSpecificConfig bytes, empty for MP3
	RefSampleDuration float64
	Duration          uint32
	Timescale         uint32
}

// VideoMetadata is the track metadata aggregated on the first AVC
// AVCDecoderConfigurationRecord.
type VideoMetadata struct {
	AVCC              []byte // raw avcC payload
	CodecWidth        uint32
	CodecHeight       uint32
	PresentWidth      uint32
	PresentHeight     uint32
	Profile           string
	Level             string
	ProfileIdc        uint8
	LevelIdc          uint8
	FixedFrameRate    bool
	FPSNum            uint32
	FPSDen            uint32
	RefSampleDuration float64
	Duration          uint32
	Timescale         uint32
}

// KeyframesIndex pairs a video keyframe's presentation time with the
// absolute byte offset of its FLV tag, derived from onMetaData's
// `keyframes` field and used for byte-range seek.
type KeyframesIndex struct {
	Times         []float64
	FilePositions []int64
}

// GetNearestKeyframe performs a binary search on Times and returns the
// keyframe at or before ms; an ms before the first keyframe yields the
// first keyframe.
func (k *KeyframesIndex) GetNearestKeyframe(ms float64) (index int, milliseconds float64, filePosition int64, ok bool) {
	if k == nil || len(k.Times) == 0 {
		return 0, 0, 0, false
	}
	i := sort.Search(len(k.Times), func(i int) bool { return k.Times[i] > ms })
	idx := i - 1
	if idx < 0 {
		idx = 0
	}
	return idx, k.Times[idx], k.FilePositions[idx], true
}

// MediaInfo is the aggregated read-only bundle emitted exactly once per
// session.
type MediaInfo struct {
	MimeType string
	HasAudio bool
	HasVideo bool
	Audio    *AudioMetadata
	Video    *VideoMetadata
	Duration uint32
	Keyframes *KeyframesIndex
}

// Complete reports whether every field required by the declared
// hasAudio/hasVideo flags has been populated.
func (m *MediaInfo) Complete() bool {
	if m.HasAudio && m.Audio == nil {
		return false
	}
	if m.HasVideo && m.Video == nil {
		return false
	}
	return m.HasAudio || m.HasVideo
}
