package flv

import (
	"encoding/binary"
	"testing"

	"transmux/pkg/media"
	"transmux/pkg/transmuxerr"
)

// avcSeqHeaderPayload is the raw AVCDecoderConfigurationRecord bytes wrapping
// a baseline-profile, 16x16 SPS and a matching PPS (mirrors the codec
// package's own avcC fixture).
var avcSeqHeaderPayload = []byte{
	0x01, 0x42, 0x00, 0x1E, 0xFF, 0xE1,
	0x00, 0x06, 0x67, 0x42, 0x00, 0x1E, 0xF4, 0xE0,
	0x01,
	0x00, 0x04, 0x68, 0xCE, 0x3C, 0x80,
}

// aacSeqHeaderPayload is the widely-used AAC-LC 44.1kHz stereo ASC.
var aacSeqHeaderPayload = []byte{0x12, 0x10}

func tagBytes(tagType TagType, timestamp uint32, body []byte) []byte {
	header := Tag{
		TagType:           tagType,
		DataSize:          uint32(len(body)),
		Timestamp:         timestamp & 0x00FFFFFF,
		TimestampExtended: uint8(timestamp >> 24),
	}.Encode()
	buf := append(append([]byte{}, header...), body...)
	prevSize := make([]byte, 4)
	binary.BigEndian.PutUint32(prevSize, uint32(len(header)+len(body)))
	return append(buf, prevSize...)
}

func flvStream(tags ...[]byte) []byte {
	buf := make([]byte, 4) // PreviousTagSize0
	for _, tag := range tags {
		buf = append(buf, tag...)
	}
	return buf
}

func videoSeqHeaderTag(timestamp uint32) []byte {
	body := append([]byte{0x17, 0x00, 0x00, 0x00, 0x00}, avcSeqHeaderPayload...)
	return tagBytes(TagVideo, timestamp, body)
}

func videoNALUTag(timestamp uint32, keyframe bool, naluPayload []byte) []byte {
	frameType := byte(0x27)
	if keyframe {
		frameType = 0x17
	}
	body := append([]byte{frameType, 0x01, 0x00, 0x00, 0x00}, naluPayload...)
	return tagBytes(TagVideo, timestamp, body)
}

func audioSeqHeaderTag(timestamp uint32) []byte {
	body := append([]byte{0xAF, 0x00}, aacSeqHeaderPayload...)
	return tagBytes(TagAudio, timestamp, body)
}

func audioRawTag(timestamp uint32, payload []byte) []byte {
	body := append([]byte{0xAF, 0x01}, payload...)
	return tagBytes(TagAudio, timestamp, body)
}

// oneIDRNalu is a single length-prefixed NALU with type 5 (IDR).
var oneIDRNalu = []byte{0x00, 0x00, 0x00, 0x01, 0x65}

func TestParseChunksTooShortConsumesNothing(t *testing.T) {
	d := NewDemuxer(false, true, 0)
	n, err := d.ParseChunks([]byte{0, 0})
	if err != nil {
		t.Fatalf("ParseChunks() error = %v", err)
	}
	if n != 0 {
		t.Errorf("consumed = %d, want 0 for data shorter than PreviousTagSize0", n)
	}
}

func TestParseChunksVideoOnlyDispatchesMediaInfoAndSamples(t *testing.T) {
	d := NewDemuxer(false, true, 0)

	var gotInfo *media.MediaInfo
	d.OnMediaInfo(func(info *media.MediaInfo) { gotInfo = info })

	var dispatchCount int
	d.OnDataAvailable(func(audio, video *media.Track) {
		dispatchCount++
		if video.Empty() {
			t.Error("OnDataAvailable called with an empty video track")
		}
	})

	stream := flvStream(
		videoSeqHeaderTag(0),
		videoNALUTag(0, true, oneIDRNalu),
	)
	n, err := d.ParseChunks(stream)
	if err != nil {
		t.Fatalf("ParseChunks() error = %v", err)
	}
	if n != len(stream) {
		t.Errorf("consumed = %d, want %d (the full well-formed stream)", n, len(stream))
	}
	if gotInfo == nil {
		t.Fatal("OnMediaInfo was never called")
	}
	if !gotInfo.HasVideo || gotInfo.Video == nil {
		t.Errorf("MediaInfo = %+v, want HasVideo=true with populated Video", gotInfo)
	}
	if gotInfo.Video.CodecWidth != 16 || gotInfo.Video.CodecHeight != 16 {
		t.Errorf("Video dims = %dx%d, want 16x16", gotInfo.Video.CodecWidth, gotInfo.Video.CodecHeight)
	}
	if dispatchCount != 1 {
		t.Errorf("OnDataAvailable called %d times, want 1", dispatchCount)
	}
}

func TestParseChunksAudioAndVideoTogether(t *testing.T) {
	d := NewDemuxer(true, true, 0)

	var gotInfo *media.MediaInfo
	d.OnMediaInfo(func(info *media.MediaInfo) { gotInfo = info })

	stream := flvStream(
		videoSeqHeaderTag(0),
		audioSeqHeaderTag(0),
		videoNALUTag(0, true, oneIDRNalu),
		audioRawTag(0, []byte{0x21, 0x10, 0x04, 0x60}),
	)
	n, err := d.ParseChunks(stream)
	if err != nil {
		t.Fatalf("ParseChunks() error = %v", err)
	}
	if n != len(stream) {
		t.Errorf("consumed = %d, want %d", n, len(stream))
	}
	if gotInfo == nil {
		t.Fatal("OnMediaInfo was never called")
	}
	if gotInfo.Audio == nil || gotInfo.Audio.SampleRate != 44100 {
		t.Errorf("Audio = %+v, want a populated 44100Hz track", gotInfo.Audio)
	}
	if gotInfo.MimeType == "" {
		t.Error("MimeType left empty after dispatch")
	}
}

func TestParseChunksPartialTagRetainsRemainder(t *testing.T) {
	d := NewDemuxer(false, true, 0)
	full := flvStream(videoSeqHeaderTag(0))
	partial := full[:len(full)-3] // truncate inside the trailing PreviousTagSize

	n, err := d.ParseChunks(partial)
	if err != nil {
		t.Fatalf("ParseChunks() error = %v", err)
	}
	if n != 4 {
		t.Errorf("consumed = %d, want 4 (only the leading PreviousTagSize0, tag withheld until complete)", n)
	}
}

func TestParseChunksWarnsOnBadPreviousTagSize0(t *testing.T) {
	d := NewDemuxer(false, true, 0)
	var warned bool
	d.OnError(func(kind transmuxerr.Kind, detail string) {
		if kind == transmuxerr.KindFormatError {
			warned = true
		}
	})
	stream := flvStream(videoSeqHeaderTag(0))
	stream[3] = 0x01 // corrupt the leading PreviousTagSize0
	if _, err := d.ParseChunks(stream); err != nil {
		t.Fatalf("ParseChunks() error = %v, want nil (a non-fatal warning)", err)
	}
	if !warned {
		t.Error("OnError was not invoked for a non-zero PreviousTagSize0")
	}
}

func TestParseChunksIgnoresTagWhenTrackNotDeclared(t *testing.T) {
	d := NewDemuxer(false, false, 0) // neither track declared
	var dispatched bool
	d.OnDataAvailable(func(audio, video *media.Track) { dispatched = true })
	stream := flvStream(videoSeqHeaderTag(0), videoNALUTag(0, true, oneIDRNalu))
	n, err := d.ParseChunks(stream)
	if err != nil {
		t.Fatalf("ParseChunks() error = %v", err)
	}
	if n != len(stream) {
		t.Errorf("consumed = %d, want %d (tags for undeclared tracks are still skipped over)", n, len(stream))
	}
	if dispatched {
		t.Error("OnDataAvailable fired despite no declared track ever receiving samples")
	}
}

func TestParseChunksMalformedNALUWarnsButKeepsParsing(t *testing.T) {
	d := NewDemuxer(false, true, 0)
	var warned bool
	d.OnError(func(kind transmuxerr.Kind, detail string) { warned = true })

	// naluSize field claims far more bytes than are actually present.
	badNalu := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	stream := flvStream(videoSeqHeaderTag(0), videoNALUTag(1, true, badNalu))
	n, err := d.ParseChunks(stream)
	if err != nil {
		t.Fatalf("ParseChunks() error = %v, want nil (dispatch errors are non-fatal warnings)", err)
	}
	if n != len(stream) {
		t.Errorf("consumed = %d, want %d even though the NALU payload was malformed", n, len(stream))
	}
	if !warned {
		t.Error("OnError was not invoked for a malformed NALU length prefix")
	}
}
