// Package media holds the data model shared by the FLV demuxer and the fMP4
// remuxer: tracks, samples, track metadata, MediaInfo and the keyframe/
// segment indices used for seek.
package media

// TrackID identifies a track; 1 is video, 2 is audio.
type TrackID int

const (
	TrackVideo TrackID = 1
	TrackAudio TrackID = 2
)

// NALU is one length-prefixed NAL unit as carried inside a video Sample.
// Data includes its own length prefix (3 or 4 bytes, big-endian, per the
// AVCDecoderConfigurationRecord's lengthSizeMinusOne).
type NALU struct {
	Type uint8
	Data []byte
}

// SampleFlags are the per-sample dependency flags that feed the fMP4
// `sdtp`/`trun` sample-flags fields.
type SampleFlags struct {
	IsLeading     uint8
	DependsOn     uint8
	IsDependedOn  uint8
	HasRedundancy uint8
	IsNonSync     uint8
}

// Sample is one decoded FLV tag payload, audio or video.
type Sample struct {
	DTS          int64
	PTS          int64
	CTS          int64
	Duration     int64
	Size         int64
	OriginalDTS  int64
	IsKeyframe   bool
	Units        []NALU // video only, ordered
	Unit         []byte // audio only: raw AAC frame or raw MPEG frame
	Flags        SampleFlags
	FilePosition int64 // video only, optional
}

// Track is a mutable batch container for one track's pending samples,
// drained on each remux pass.
type Track struct {
	ID             TrackID
	Type           string // "audio" or "video"
	SequenceNumber uint32
	Samples        []*Sample
	Length         int64 // running byte length of queued samples
}

// NewTrack constructs an empty track of the given id/type.
func NewTrack(id TrackID, trackType string) *Track {
	return &Track{ID: id, Type: trackType}
}

// Push appends a sample to the batch and updates the running length.
func (t *Track) Push(s *Sample) {
	t.Samples = append(t.Samples, s)
	t.Length += s.Size
}

// Reset clears the batch without touching SequenceNumber, which must keep
// monotonically increasing across remux passes.
func (t *Track) Reset() {
	t.Samples = t.Samples[:0]
	t.Length = 0
}

// Empty reports whether the batch currently has no samples.
func (t *Track) Empty() bool {
	return len(t.Samples) == 0
}
