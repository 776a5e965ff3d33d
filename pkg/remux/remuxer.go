package remux

import (
	"math"

	"transmux/pkg/media"
	"transmux/pkg/mp4"
	"transmux/pkg/transmuxlog"
)

var log = transmuxlog.For("remux")

// InitSegment is the one-shot fMP4 header emitted per track.
type InitSegment struct {
	Type          string
	Container     string
	Codec         string
	Data          []byte
	MediaDuration uint32
}

// MediaSegment is one moof+mdat (or, for MP3, one raw frame run) batch.
type MediaSegment struct {
	Type            string
	Data            []byte
	SampleCount     int
	Info            *media.MediaSegmentInfo
	TimestampOffset *int64
}

type trackState struct {
	trackID           uint32
	isAudio           bool
	isAAC             bool
	channelCount      uint8
	refSampleDuration float64

	nextDts      *int64
	lastDuration int64
	stashed      *media.Sample
	segments     media.MediaSegmentInfoList
	syncPoints   media.IDRSampleList
	sequenceNumber uint32
	firstAfterSeek bool
}

// Remuxer converts corrected FLV samples into fMP4 init and media
// segments.
type Remuxer struct {
	cfg     Config
	dtsBase *int64

	video *trackState
	audio *trackState

	lastVideoBeginDts *int64

	onInitSegment  func(InitSegment)
	onMediaSegment func(MediaSegment)
}

// NewRemuxer constructs a remuxer with the given workaround configuration.
func NewRemuxer(cfg Config) *Remuxer {
	return &Remuxer{cfg: cfg}
}

// OnInitSegment registers the init-segment callback.
func (r *Remuxer) OnInitSegment(fn func(InitSegment)) { r.onInitSegment = fn }

// OnMediaSegment registers the media-segment callback.
func (r *Remuxer) OnMediaSegment(fn func(MediaSegment)) { r.onMediaSegment = fn }

// Open emits InitSegment for each declared track.
func (r *Remuxer) Open(info *media.MediaInfo) {
	if info.HasVideo && info.Video != nil {
		r.video = &trackState{trackID: uint32(media.TrackVideo), refSampleDuration: info.Video.RefSampleDuration}
		meta := mp4.TrackMeta{ID: 1, Type: "video", Timescale: 1000, Duration: info.Duration, Video: info.Video}
		if err := meta.Validate(); err != nil {
			log.WithField("track", "video").Warn(err.Error())
		}
		data := mp4.GenerateInitSegment(meta)
		r.emitInit(InitSegment{Type: "video", Container: "video/mp4", Codec: meta.Codec(), Data: data, MediaDuration: info.Duration})
	}
	if info.HasAudio && info.Audio != nil {
		r.audio = &trackState{
			trackID:           uint32(media.TrackAudio),
			isAudio:           true,
			isAAC:             info.Audio.Codec != "mp3",
			channelCount:      info.Audio.ChannelCount,
			refSampleDuration: info.Audio.RefSampleDuration,
		}
		meta := mp4.TrackMeta{ID: 2, Type: "audio", Timescale: 1000, Duration: info.Duration, Audio: info.Audio}
		if err := meta.Validate(); err != nil {
			log.WithField("track", "audio").Warn(err.Error())
		}
		data := mp4.GenerateInitSegment(meta)
		r.emitInit(InitSegment{Type: "audio", Container: "audio/mp4", Codec: meta.Codec(), Data: data, MediaDuration: info.Duration})
	}
}

func (r *Remuxer) emitInit(seg InitSegment) {
	if r.onInitSegment != nil {
		r.onInitSegment(seg)
	}
}

// Remux is the demuxer's OnDataAvailable sink: it corrects, interpolates
// and emits media segments for whichever track batches are non-empty.
func (r *Remuxer) Remux(audioTrack, videoTrack *media.Track) {
	r.ensureDtsBase(audioTrack, videoTrack)
	if r.video != nil {
		r.remuxTrack(r.video, videoTrack, false)
	}
	if r.audio != nil {
		r.remuxTrack(r.audio, audioTrack, false)
	}
}

// FlushStashedSamples reinjects each track's stashed trailing sample as a
// one-sample forced batch.
func (r *Remuxer) FlushStashedSamples() {
	if r.video != nil {
		r.remuxTrack(r.video, media.NewTrack(media.TrackVideo, "video"), true)
	}
	if r.audio != nil {
		r.remuxTrack(r.audio, media.NewTrack(media.TrackAudio, "audio"), true)
	}
}

// Seek clears both tracks' stashed samples, segment-info lists and
// per-track nextDts; keyframe sync-point history survives a seek, and a
// pause/resume leaves everything intact.
func (r *Remuxer) Seek(dts int64) {
	for _, ts := range []*trackState{r.video, r.audio} {
		if ts == nil {
			continue
		}
		ts.stashed = nil
		ts.segments.Clear()
		ts.nextDts = nil
		ts.firstAfterSeek = true
	}
	r.lastVideoBeginDts = nil
}

func (r *Remuxer) ensureDtsBase(audioTrack, videoTrack *media.Track) {
	if r.dtsBase != nil {
		return
	}
	var candidates []int64
	if videoTrack != nil && !videoTrack.Empty() {
		candidates = append(candidates, videoTrack.Samples[0].OriginalDTS)
	}
	if audioTrack != nil && !audioTrack.Empty() {
		candidates = append(candidates, audioTrack.Samples[0].OriginalDTS)
	}
	if len(candidates) == 0 {
		return
	}
	min := candidates[0]
	for _, c := range candidates[1:] {
		if c < min {
			min = c
		}
	}
	r.dtsBase = &min
}

func (r *Remuxer) remuxTrack(ts *trackState, track *media.Track, force bool) {
	var full []*media.Sample
	if ts.stashed != nil {
		full = append(full, ts.stashed)
		ts.stashed = nil
	}
	full = append(full, track.Samples...)
	track.Reset()

	if len(full) == 0 {
		return
	}
	if len(full) < 2 && !force {
		ts.stashed = full[0]
		return
	}
	if r.dtsBase == nil {
		// No track has produced a sample yet to anchor dtsBase; hold.
		ts.stashed = full[len(full)-1]
		return
	}

	shifted := make([]int64, len(full))
	for i, s := range full {
		shifted[i] = s.OriginalDTS - *r.dtsBase
	}

	emitCount := len(full) - 1
	if force {
		emitCount = len(full)
	} else {
		ts.stashed = full[len(full)-1]
	}
	if emitCount == 0 {
		return
	}

	durations := make([]int64, emitCount)
	for i := 0; i < emitCount; i++ {
		if i+1 < len(full) {
			durations[i] = shifted[i+1] - shifted[i]
		} else if ts.lastDuration > 0 {
			durations[i] = ts.lastDuration
		} else {
			durations[i] = int64(math.Floor(ts.refSampleDuration))
		}
	}

	corr := r.correction(ts, shifted[0])

	emitted := make([]*media.Sample, emitCount)
	for i := 0; i < emitCount; i++ {
		s := full[i]
		s.DTS = shifted[i] - corr
		s.PTS = s.DTS + s.CTS
		s.Duration = durations[i]
		emitted[i] = s
	}
	ts.lastDuration = durations[emitCount-1]

	if ts.isAudio && ts.isAAC && r.cfg.FixAudioTimestampGap {
		emitted = r.fillAudioGaps(ts, emitted)
	}
	if ts.isAudio && r.cfg.SeekStartSilentPad && ts.isAAC && ts.firstAfterSeek && r.lastVideoBeginDts != nil {
		if emitted[0].DTS > *r.lastVideoBeginDts {
			emitted = prependSilentFrame(emitted, *r.lastVideoBeginDts, ts.channelCount)
		}
	}
	if !ts.isAudio && r.cfg.ForceKeyframe && len(emitted) > 0 {
		emitted[0].Flags.DependsOn = 2
		emitted[0].Flags.IsNonSync = 0
	}

	r.emitSegment(ts, emitted, corr)

	last := emitted[len(emitted)-1]
	nextDts := last.DTS + last.Duration
	ts.nextDts = &nextDts

	if !ts.isAudio && ts.firstAfterSeek {
		begin := emitted[0].DTS
		r.lastVideoBeginDts = &begin
	}
	ts.firstAfterSeek = false
}

// correction computes the per-track DTS-correction constant for a batch
// whose first (shifted) sample lands at firstShifted.
func (r *Remuxer) correction(ts *trackState, firstShifted int64) int64 {
	if ts.nextDts != nil {
		return firstShifted - *ts.nextDts
	}
	if ts.segments.IsEmpty() {
		return 0
	}
	last, ok := ts.segments.LastSampleBefore(firstShifted)
	if !ok {
		return 0
	}
	distance := firstShifted - (last.OriginalDts + last.Duration)
	if distance <= 3 && distance >= -3 {
		distance = 0
	}
	expectedDts := last.Dts + last.Duration + distance
	return firstShifted - expectedDts
}

// fillAudioGaps inserts silent AAC frames after any sample whose computed
// duration exceeds 1.5x refSampleDuration.
func (r *Remuxer) fillAudioGaps(ts *trackState, samples []*media.Sample) []*media.Sample {
	out := make([]*media.Sample, 0, len(samples))
	normal := int64(math.Floor(ts.refSampleDuration))
	for i, s := range samples {
		if i == len(samples)-1 || float64(s.Duration) <= 1.5*ts.refSampleDuration {
			out = append(out, s)
			continue
		}
		nextDts := samples[i+1].DTS
		gap := float64(s.Duration) - ts.refSampleDuration
		n := int(math.Ceil(gap / ts.refSampleDuration))
		s.Duration = normal
		out = append(out, s)

		frame := silentFrameFor(ts.channelCount)
		if frame == nil {
			frame = s.Unit
		}
		cursor := s.DTS + normal
		for k := 0; k < n; k++ {
			dur := normal
			if k == n-1 {
				dur = nextDts - cursor
			}
			out = append(out, &media.Sample{
				DTS: cursor, PTS: cursor, Duration: dur,
				Unit: append([]byte(nil), frame...), Size: int64(len(frame)),
			})
			cursor += dur
		}
	}
	return out
}

// prependSilentFrame inserts one silent frame at videoBeginDts to align
// the first post-seek audio segment with the video segment it accompanies.
func prependSilentFrame(samples []*media.Sample, videoBeginDts int64, channelCount uint8) []*media.Sample {
	first := samples[0]
	frame := silentFrameFor(channelCount)
	if frame == nil {
		frame = first.Unit
	}
	filler := &media.Sample{
		DTS: videoBeginDts, PTS: videoBeginDts, Duration: first.DTS - videoBeginDts,
		Unit: append([]byte(nil), frame...), Size: int64(len(frame)),
	}
	return append([]*media.Sample{filler}, samples...)
}

func (r *Remuxer) emitSegment(ts *trackState, samples []*media.Sample, corr int64) {
	var payload []byte
	for _, s := range samples {
		if ts.isAudio {
			payload = append(payload, s.Unit...)
		} else {
			for _, u := range s.Units {
				payload = append(payload, u.Data...)
			}
		}
	}

	info := buildSegmentInfo(samples, corr)
	if !r.cfg.IsLive {
		ts.segments.Append(info)
	}
	if !ts.isAudio {
		var keyframes []media.SampleInfo
		for _, s := range samples {
			if s.IsKeyframe {
				keyframes = append(keyframes, media.SampleInfo{Dts: s.DTS, Pts: s.PTS, OriginalDts: s.DTS + corr, FilePosition: s.FilePosition})
			}
		}
		ts.syncPoints.AppendArray(keyframes)
	}

	trackType := "video"
	if ts.isAudio {
		trackType = "audio"
	}

	seg := MediaSegment{Type: trackType, SampleCount: len(samples), Info: info}
	if ts.isAudio && !ts.isAAC {
		seg.Data = payload
		if ts.firstAfterSeek {
			off := samples[0].DTS
			seg.TimestampOffset = &off
		}
	} else {
		moof := mp4.GenerateMoof(ts.trackID, ts.sequenceNumber, samples[0].DTS, samples)
		seg.Data = append(moof, mp4.Mdat(payload)...)
	}

	ts.sequenceNumber++
	log.WithField("track", trackType).Debugf("emitting segment seq=%d samples=%d", ts.sequenceNumber, len(samples))
	if r.onMediaSegment != nil {
		r.onMediaSegment(seg)
	}
}

func buildSegmentInfo(samples []*media.Sample, corr int64) *media.MediaSegmentInfo {
	first, last := samples[0], samples[len(samples)-1]
	info := &media.MediaSegmentInfo{
		BeginDts:         first.DTS,
		EndDts:           last.DTS + last.Duration,
		BeginPts:         first.PTS,
		EndPts:           last.PTS + last.Duration,
		OriginalBeginDts: first.DTS + corr,
		OriginalEndDts:   last.DTS + last.Duration + corr,
		FirstSample:      media.SampleInfo{Dts: first.DTS, Pts: first.PTS, Duration: first.Duration, OriginalDts: first.DTS + corr, FilePosition: first.FilePosition},
		LastSample:       media.SampleInfo{Dts: last.DTS, Pts: last.PTS, Duration: last.Duration, OriginalDts: last.DTS + corr, FilePosition: last.FilePosition},
	}
	for _, s := range samples {
		if s.IsKeyframe {
			info.SyncPoints = append(info.SyncPoints, media.SampleInfo{Dts: s.DTS, Pts: s.PTS, Duration: s.Duration, OriginalDts: s.DTS + corr, FilePosition: s.FilePosition})
		}
	}
	return info
}
