package mp4

import (
	"bytes"
	"testing"

	gomp4 "github.com/abema/go-mp4"
	"github.com/stretchr/testify/require"

	"transmux/pkg/media"
)

func boxPaths(t *testing.T, data []byte) []gomp4.BoxPath {
	t.Helper()
	var paths []gomp4.BoxPath
	_, err := gomp4.ReadBoxStructure(bytes.NewReader(data), func(h *gomp4.ReadHandle) (interface{}, error) {
		paths = append(paths, h.Path)
		return h.Expand()
	})
	require.NoError(t, err)
	return paths
}

// avcCRecord is the full raw AVCDecoderConfigurationRecord (matching the
// flv package's own sequence-header fixture) that a video track's avcC
// payload wraps verbatim.
var avcCRecord = []byte{
	0x01, 0x42, 0x00, 0x1E, 0xFF, 0xE1,
	0x00, 0x06, 0x67, 0x42, 0x00, 0x1E, 0xF4, 0xE0,
	0x01,
	0x00, 0x04, 0x68, 0xCE, 0x3C, 0x80,
}

func videoTrackMeta() TrackMeta {
	return TrackMeta{
		ID:        1,
		Type:      "video",
		Timescale: 1000,
		Video: &media.VideoMetadata{
			AVCC:          avcCRecord,
			CodecWidth:    16,
			CodecHeight:   16,
			PresentWidth:  16,
			PresentHeight: 16,
			Profile:       "avc1.42001e",
		},
	}
}

func audioTrackMeta() TrackMeta {
	return TrackMeta{
		ID:        2,
		Type:      "audio",
		Timescale: 1000,
		Audio: &media.AudioMetadata{
			Codec:        "mp4a.40.2",
			SampleRate:   44100,
			ChannelCount: 2,
			Config:       []byte{0x12, 0x10},
		},
	}
}

func TestGenerateInitSegmentVideoBoxStructure(t *testing.T) {
	data := GenerateInitSegment(videoTrackMeta())

	paths := boxPaths(t, data)
	want := []gomp4.BoxPath{
		{gomp4.BoxTypeFtyp()},
		{gomp4.BoxTypeMoov()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeMvhd()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeTkhd()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMdhd()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeHdlr()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeVmhd()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeDinf()},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeDinf(), gomp4.BoxTypeDref(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeDinf(), gomp4.BoxTypeDref(), gomp4.BoxTypeUrl(),
		},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl()},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeAvc1(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeAvc1(), gomp4.BoxTypeAvcC(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStts(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStsc(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStsz(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStco(),
		},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeMvex()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeMvex(), gomp4.BoxTypeTrex()},
	}
	require.Equal(t, want, paths)
}

func TestGenerateInitSegmentAudioBoxStructure(t *testing.T) {
	data := GenerateInitSegment(audioTrackMeta())
	paths := boxPaths(t, data)

	want := []gomp4.BoxPath{
		{gomp4.BoxTypeFtyp()},
		{gomp4.BoxTypeMoov()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeMvhd()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeTkhd()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMdhd()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeHdlr()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeSmhd()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeDinf()},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeDinf(), gomp4.BoxTypeDref(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeDinf(), gomp4.BoxTypeDref(), gomp4.BoxTypeUrl(),
		},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl()},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeMp4a(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(), gomp4.BoxTypeMp4a(), gomp4.BoxTypeEsds(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStts(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStsc(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStsz(),
		},
		{
			gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(),
			gomp4.BoxTypeStbl(), gomp4.BoxTypeStco(),
		},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeMvex()},
		{gomp4.BoxTypeMoov(), gomp4.BoxTypeMvex(), gomp4.BoxTypeTrex()},
	}
	require.Equal(t, want, paths)
}

func TestTrackMetaCodec(t *testing.T) {
	if got := videoTrackMeta().Codec(); got != "avc1.42001e" {
		t.Errorf("Codec() = %q, want %q", got, "avc1.42001e")
	}
	if got := audioTrackMeta().Codec(); got != "mp4a.40.2" {
		t.Errorf("Codec() = %q, want %q", got, "mp4a.40.2")
	}
	if got := (TrackMeta{}).Codec(); got != "" {
		t.Errorf("Codec() on an empty TrackMeta = %q, want empty", got)
	}
}

func TestTrackMetaValidate(t *testing.T) {
	if err := videoTrackMeta().Validate(); err != nil {
		t.Errorf("Validate() on a well-formed video track = %v, want nil", err)
	}
	if err := audioTrackMeta().Validate(); err != nil {
		t.Errorf("Validate() on a well-formed audio track = %v, want nil", err)
	}

	if err := (TrackMeta{Type: "video"}).Validate(); err == nil {
		t.Error("Validate() on a video track with no metadata: want error")
	}

	badVideo := videoTrackMeta()
	badVideo.Video.AVCC = nil
	badVideo.Video.CodecWidth = 0
	if err := badVideo.Validate(); err == nil {
		t.Error("Validate() on a video track missing avcC and dimensions: want error")
	}

	badAudio := audioTrackMeta()
	badAudio.Audio.Config = nil
	if err := badAudio.Validate(); err == nil {
		t.Error("Validate() on an AAC track with no AudioSpecificConfig: want error")
	}

	mp3 := audioTrackMeta()
	mp3.Audio.Codec = "mp3"
	mp3.Audio.Config = nil
	if err := mp3.Validate(); err != nil {
		t.Errorf("Validate() on an mp3 track with no Config = %v, want nil (mp3 needs no ASC)", err)
	}

	if err := (TrackMeta{Type: "subtitle"}).Validate(); err == nil {
		t.Error("Validate() on an unknown track type: want error")
	}
}
