package mp4

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"transmux/pkg/media"
)

// TrackMeta is everything GenerateInitSegment needs to build one track's
// `trak`, `stsd` sample entry and `trex`.
type TrackMeta struct {
	ID        uint32
	Type      string // "audio" or "video"
	Timescale uint32
	Duration  uint32
	Audio     *media.AudioMetadata
	Video     *media.VideoMetadata
}

// Codec returns the track's codec identifier ("mp3", "mp4a.40.2", "avc1.PPCCLL").
func (m TrackMeta) Codec() string {
	if m.Audio != nil {
		return m.Audio.Codec
	}
	if m.Video != nil {
		return m.Video.Profile
	}
	return ""
}

// Validate reports every field GenerateInitSegment needs but doesn't have,
// so the caller can log one combined warning instead of failing opaquely
// partway through box generation.
func (m TrackMeta) Validate() error {
	var result *multierror.Error
	switch m.Type {
	case "video":
		if m.Video == nil {
			result = multierror.Append(result, fmt.Errorf("video track has no metadata"))
			break
		}
		if len(m.Video.AVCC) == 0 {
			result = multierror.Append(result, fmt.Errorf("video track has no avcC"))
		}
		if m.Video.CodecWidth == 0 || m.Video.CodecHeight == 0 {
			result = multierror.Append(result, fmt.Errorf("video track has zero dimensions"))
		}
	case "audio":
		if m.Audio == nil {
			result = multierror.Append(result, fmt.Errorf("audio track has no metadata"))
			break
		}
		if m.Audio.SampleRate == 0 {
			result = multierror.Append(result, fmt.Errorf("audio track has zero sample rate"))
		}
		if m.Audio.Codec != "mp3" && len(m.Audio.Config) == 0 {
			result = multierror.Append(result, fmt.Errorf("AAC audio track has no AudioSpecificConfig"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown track type %q", m.Type))
	}
	return result.ErrorOrNil()
}
