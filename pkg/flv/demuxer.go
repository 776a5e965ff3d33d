package flv

import (
	"encoding/binary"
	"fmt"

	"transmux/pkg/amf"
	"transmux/pkg/codec"
	"transmux/pkg/media"
	"transmux/pkg/transmuxerr"
	"transmux/pkg/transmuxlog"
)

var log = transmuxlog.For("flv")

type parseState int

const (
	stateNeedPrevTagSize0 parseState = iota
	stateNeedTagHeader
)

// OnError is invoked for a parse warning that does not abort the stream.
type OnError func(kind transmuxerr.Kind, detail string)

// Demuxer is the streaming FLV-to-sample state machine. ParseChunks
// takes bytes in order; the demuxer reports how many it consumed,
// leaving the remainder for the caller (the stash controller) to retain
// and re-present alongside the next arrival.
type Demuxer struct {
	ua   codec.UserAgent
	state parseState

	hasAudio bool
	hasVideo bool

	VideoTrack *media.Track
	AudioTrack *media.Track

	info *media.MediaInfo

	videoMetaDispatched bool
	audioMetaDispatched bool
	dispatchPending     bool
	mediaInfoSent       bool

	avcc           *codec.AVCDecoderConfigurationRecord
	sps            *codec.SPSInfo
	naluLengthSize int

	asc *codec.AudioSpecificConfig

	videoCodec string
	audioCodec string

	onMediaInfo     func(*media.MediaInfo)
	onDataAvailable func(audio, video *media.Track)
	onError         OnError
}

// NewDemuxer constructs a demuxer seeded with the header-declared track
// presence from Probe.
func NewDemuxer(hasAudio, hasVideo bool, ua codec.UserAgent) *Demuxer {
	return &Demuxer{
		ua:         ua,
		state:      stateNeedPrevTagSize0,
		hasAudio:   hasAudio,
		hasVideo:   hasVideo,
		VideoTrack: media.NewTrack(media.TrackVideo, "video"),
		AudioTrack: media.NewTrack(media.TrackAudio, "audio"),
		info:       &media.MediaInfo{HasAudio: hasAudio, HasVideo: hasVideo},
	}
}

// OnMediaInfo registers the one-shot MediaInfo callback.
func (d *Demuxer) OnMediaInfo(fn func(*media.MediaInfo)) { d.onMediaInfo = fn }

// OnDataAvailable registers the per-batch sample-ready callback.
func (d *Demuxer) OnDataAvailable(fn func(audio, video *media.Track)) { d.onDataAvailable = fn }

// OnError registers the non-fatal warning callback.
func (d *Demuxer) OnError(fn OnError) { d.onError = fn }

func (d *Demuxer) warn(kind transmuxerr.Kind, detail string) {
	log.WithField("kind", kind).Warn(detail)
	if d.onError != nil {
		d.onError(kind, detail)
	}
}

// ParseChunks consumes as many complete tag records from data as are
// available, starting at offset 0, and returns the number of bytes
// consumed. The caller must retain data[consumed:] and prepend it to the
// next arrival. A single-byte chunk, or a tag whose declared size would
// overrun data, consumes 0 bytes.
func (d *Demuxer) ParseChunks(data []byte) (int, error) {
	offset := 0
	for {
		switch d.state {
		case stateNeedPrevTagSize0:
			if len(data)-offset < 4 {
				d.maybeDispatch()
				return offset, nil
			}
			if binary.BigEndian.Uint32(data[offset:offset+4]) != 0 {
				d.warn(transmuxerr.KindFormatError, "first PreviousTagSize is non-zero")
			}
			offset += 4
			d.state = stateNeedTagHeader

		case stateNeedTagHeader:
			if len(data)-offset < HeaderSize {
				d.maybeDispatch()
				return offset, nil
			}
			var tag Tag
			if err := tag.Decode(data[offset:]); err != nil {
				return offset, transmuxerr.Wrap(transmuxerr.KindFormatError, "tag header decode", err)
			}
			need := HeaderSize + int(tag.DataSize) + 4
			if len(data)-offset < need {
				d.maybeDispatch()
				return offset, nil
			}
			body := data[offset+HeaderSize : offset+HeaderSize+int(tag.DataSize)]
			prevSize := binary.BigEndian.Uint32(data[offset+HeaderSize+int(tag.DataSize):])
			if prevSize != tag.DataSize+HeaderSize {
				d.warn(transmuxerr.KindFormatError, "PreviousTagSize mismatch")
			}
			if err := d.dispatchTag(tag, body, int64(offset)); err != nil {
				d.warn(errKind(err), err.Error())
			}
			offset += need
		}
	}
}

func errKind(err error) transmuxerr.Kind {
	if e, ok := err.(*transmuxerr.Error); ok {
		return e.Kind
	}
	return transmuxerr.KindFormatError
}

func (d *Demuxer) dispatchTag(tag Tag, body []byte, filePos int64) error {
	switch tag.TagType {
	case TagScript:
		return d.handleScriptTag(body)
	case TagAudio:
		if !d.hasAudio {
			return nil
		}
		return d.handleAudioTag(tag, body)
	case TagVideo:
		if !d.hasVideo {
			return nil
		}
		return d.handleVideoTag(tag, body, filePos)
	default:
		return nil
	}
}

func (d *Demuxer) handleScriptTag(body []byte) error {
	md, err := amf.DecodeOnMetaData(body)
	if err != nil || md == nil {
		return nil
	}
	if md.HasAudio != nil && !d.hasAudio {
		d.hasAudio = true
		d.info.HasAudio = true
	}
	if md.HasVideo != nil && !d.hasVideo {
		d.hasVideo = true
		d.info.HasVideo = true
	}
	if md.Duration != nil {
		d.info.Duration = uint32(*md.Duration * 1000)
	}
	if md.Keyframes != nil && len(md.Keyframes.Times) > 1 {
		d.info.Keyframes = &media.KeyframesIndex{
			Times:         append([]float64(nil), md.Keyframes.Times[1:]...),
			FilePositions: toInt64Slice(md.Keyframes.FilePositions[1:]),
		}
	}
	return nil
}

func toInt64Slice(in []float64) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

func (d *Demuxer) handleAudioTag(tag Tag, body []byte) error {
	var hdr AudioTagHeader
	n, err := hdr.Decode(body)
	if err != nil {
		return transmuxerr.Wrap(transmuxerr.KindFormatError, "audio tag header", err)
	}
	payload := body[n:]

	switch hdr.SoundFormat {
	case SoundAAC:
		if hdr.AACPacketType == AACPacketSequenceHeader {
			asc, err := codec.DecodeAudioSpecificConfig(payload)
			if err != nil {
				return transmuxerr.Wrap(transmuxerr.KindFormatError, "AudioSpecificConfig", err)
			}
			d.asc = asc
			d.audioCodec = asc.CodecString(d.ua)
			d.info.Audio = &media.AudioMetadata{
				Codec:             d.audioCodec,
				SampleRate:        asc.SampleRate,
				ChannelCount:      asc.ChannelConfig,
				Config:            asc.CanonicalConfig(d.ua),
				RefSampleDuration: asc.RefSampleDuration(1000),
			}
			d.audioMetaDispatched = true
			return nil
		}
		if d.asc == nil {
			return nil
		}
		s := &media.Sample{
			DTS:         int64(tag.AbsoluteTimestamp()),
			PTS:         int64(tag.AbsoluteTimestamp()),
			OriginalDTS: int64(tag.AbsoluteTimestamp()),
			Unit:        append([]byte(nil), payload...),
			Size:        int64(len(payload)),
		}
		d.AudioTrack.Push(s)
		d.dispatchPending = true
		return nil

	case SoundMP3:
		fh, err := codec.DecodeMP3FrameHeader(payload)
		if err != nil {
			return transmuxerr.Wrap(transmuxerr.KindFormatError, "mp3 frame header", err)
		}
		if !d.audioMetaDispatched {
			d.audioCodec = "mp3"
			d.info.Audio = &media.AudioMetadata{
				Codec:             "mp3",
				SampleRate:        uint32(fh.SampleRate()),
				ChannelCount:      uint8(fh.ChannelCount()),
				RefSampleDuration: codec.RefSampleDurationMP3(1000, uint32(fh.SampleRate())),
			}
			d.audioMetaDispatched = true
		}
		s := &media.Sample{
			DTS:         int64(tag.AbsoluteTimestamp()),
			PTS:         int64(tag.AbsoluteTimestamp()),
			OriginalDTS: int64(tag.AbsoluteTimestamp()),
			Unit:        append([]byte(nil), payload...),
			Size:        int64(len(payload)),
		}
		d.AudioTrack.Push(s)
		d.dispatchPending = true
		return nil

	default:
		return transmuxerr.New(transmuxerr.KindCodecUnsupported, fmt.Sprintf("audio format %d unsupported", hdr.SoundFormat))
	}
}

func (d *Demuxer) handleVideoTag(tag Tag, body []byte, filePos int64) error {
	var hdr VideoTagHeader
	n, err := hdr.Decode(body)
	if err != nil {
		return transmuxerr.Wrap(transmuxerr.KindFormatError, "video tag header", err)
	}
	if hdr.CodecID != VideoAVC {
		return transmuxerr.New(transmuxerr.KindCodecUnsupported, fmt.Sprintf("video codec %d unsupported", hdr.CodecID))
	}
	payload := body[n:]

	switch hdr.AVCPacketType {
	case AVCPacketSequenceHeader:
		avcc, err := codec.DecodeAVCDecoderConfigurationRecord(payload)
		if err != nil {
			return transmuxerr.Wrap(transmuxerr.KindFormatError, "AVCDecoderConfigurationRecord", err)
		}
		if len(avcc.SPS) == 0 {
			return transmuxerr.New(transmuxerr.KindFormatError, "avcC carries no SPS")
		}
		sps, err := codec.ParseSPS(avcc.SPS[0])
		if err != nil {
			return transmuxerr.Wrap(transmuxerr.KindFormatError, "SPS", err)
		}
		d.avcc = avcc
		d.sps = sps
		d.naluLengthSize = avcc.NaluLengthSize
		d.videoCodec = "avc1." + sps.ProfileString(avcc.ProfileCompatibility)
		d.info.Video = &media.VideoMetadata{
			AVCC:              avcc.Raw,
			CodecWidth:        sps.CodecWidth,
			CodecHeight:       sps.CodecHeight,
			PresentWidth:      sps.PresentWidth,
			PresentHeight:     sps.PresentHeight,
			Profile:           d.videoCodec,
			ProfileIdc:        sps.ProfileIdc,
			LevelIdc:          sps.LevelIdc,
			FixedFrameRate:    sps.FixedFrameRate,
			FPSNum:            sps.FPSNum,
			FPSDen:            sps.FPSDen,
			RefSampleDuration: 1000 * float64(sps.FPSDen) / float64(sps.FPSNum),
		}
		d.videoMetaDispatched = true
		return nil

	case AVCPacketEndOfSequence:
		return nil

	case AVCPacketNALU:
		if d.avcc == nil {
			return nil
		}
		units, err := splitNALUs(payload, d.naluLengthSize)
		if err != nil {
			return transmuxerr.Wrap(transmuxerr.KindFormatError, "video NALU split", err)
		}
		s := &media.Sample{
			DTS:          int64(tag.AbsoluteTimestamp()),
			PTS:          int64(tag.AbsoluteTimestamp()) + int64(hdr.CompositionTime),
			CTS:          int64(hdr.CompositionTime),
			OriginalDTS:  int64(tag.AbsoluteTimestamp()),
			IsKeyframe:   hdr.FrameType == 1,
			Units:        units,
			Size:         int64(len(payload)),
			FilePosition: filePos,
		}
		if s.IsKeyframe {
			s.Flags = media.SampleFlags{DependsOn: 2, IsNonSync: 0}
		} else {
			s.Flags = media.SampleFlags{DependsOn: 1, IsNonSync: 1}
		}
		d.VideoTrack.Push(s)
		d.dispatchPending = true
		return nil

	default:
		return transmuxerr.New(transmuxerr.KindFormatError, fmt.Sprintf("unknown AVCPacketType %d", hdr.AVCPacketType))
	}
}

// splitNALUs walks a length-prefixed NALU stream, validating that each
// declared naluSize fits within the remaining payload; a sample whose
// naluSize exceeds the remaining bytes aborts parsing.
func splitNALUs(data []byte, lengthSize int) ([]media.NALU, error) {
	if lengthSize != 3 && lengthSize != 4 {
		lengthSize = 4
	}
	var units []media.NALU
	offset := 0
	for offset < len(data) {
		if len(data)-offset < lengthSize {
			return nil, fmt.Errorf("truncated NALU length prefix")
		}
		var naluSize int
		if lengthSize == 4 {
			naluSize = int(binary.BigEndian.Uint32(data[offset:]))
		} else {
			naluSize = int(GetUint24(data[offset:]))
		}
		if naluSize > len(data)-offset-lengthSize {
			return nil, fmt.Errorf("naluSize %d exceeds remaining payload", naluSize)
		}
		full := data[offset : offset+lengthSize+naluSize]
		naluType := uint8(0)
		if naluSize > 0 {
			naluType = full[lengthSize] & 0x1F
		}
		units = append(units, media.NALU{Type: naluType, Data: full})
		offset += lengthSize + naluSize
	}
	return units, nil
}

// maybeDispatch fires MediaInfo once both declared tracks' metadata has
// arrived, and onDataAvailable whenever the pending batches are non-empty
// and their metadata is ready.
func (d *Demuxer) maybeDispatch() {
	if d.onMediaInfo != nil && d.info.Complete() && !d.mediaInfoSent {
		d.mediaInfoSent = true
		d.finalizeMimeType()
		d.onMediaInfo(d.info)
	}

	videoReady := !d.hasVideo || d.videoMetaDispatched
	audioReady := !d.hasAudio || d.audioMetaDispatched
	if !videoReady || !audioReady {
		return
	}
	if !d.dispatchPending {
		return
	}
	if d.AudioTrack.Empty() && d.VideoTrack.Empty() {
		return
	}
	d.dispatchPending = false
	if d.onDataAvailable != nil {
		d.onDataAvailable(d.AudioTrack, d.VideoTrack)
	}
}

func (d *Demuxer) finalizeMimeType() {
	switch {
	case d.videoCodec != "" && d.audioCodec != "":
		d.info.MimeType = fmt.Sprintf(`video/x-flv; codecs="%s,%s"`, d.videoCodec, d.audioCodec)
	case d.videoCodec != "":
		d.info.MimeType = fmt.Sprintf(`video/x-flv; codecs="%s"`, d.videoCodec)
	case d.audioCodec != "":
		d.info.MimeType = fmt.Sprintf(`video/x-flv; codecs="%s"`, d.audioCodec)
	default:
		d.info.MimeType = "video/x-flv"
	}
}
