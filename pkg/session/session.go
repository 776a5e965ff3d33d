// Package session wires the stash controller, FLV demuxer and fMP4
// remuxer into the single top-level pipeline the consumer controls.
package session

import (
	"github.com/google/uuid"

	"transmux/pkg/codec"
	"transmux/pkg/flv"
	"transmux/pkg/loader"
	"transmux/pkg/media"
	"transmux/pkg/remux"
	"transmux/pkg/stash"
	"transmux/pkg/transmuxerr"
	"transmux/pkg/transmuxlog"
)

var log = transmuxlog.For("session")

// Config carries the runtime tuning options the pipeline accepts.
type Config struct {
	EnableStashBuffer    bool
	IsLive               bool
	SeekType             string // "range", "param", "custom"
	AccurateSeek         bool
	FixAudioTimestampGap bool
	ForceKeyframe        bool
	SeekStartSilentPad   bool
	UserAgent            codec.UserAgent
}

// Session is one open()/close() lifetime of the pipeline.
type Session struct {
	id     uuid.UUID
	cfg    Config
	source loader.DataSource

	ld     loader.Loader
	stash  *stash.Controller
	demux  *flv.Demuxer
	remux  *remux.Remuxer
	probed bool
	probeBuf []byte

	onMediaInfo          func(*media.MediaInfo)
	onInitSegment        func(remux.InitSegment)
	onMediaSegment       func(remux.MediaSegment)
	onLoadingComplete    func()
	onRecoveredEarlyEof  func()
	onRecommendSeekpoint func(ms float64)
	onStatistics         func(speed float64)
	onError              func(kind transmuxerr.Kind, detail string)
}

// New constructs a session with the given config, bound to the given
// transport loader. The loader is not opened until Open is called.
func New(cfg Config, ld loader.Loader) *Session {
	return &Session{id: uuid.New(), cfg: cfg, ld: ld, remux: remux.NewRemuxer(remux.Config{
		FixAudioTimestampGap: cfg.FixAudioTimestampGap,
		ForceKeyframe:        cfg.ForceKeyframe,
		SeekStartSilentPad:   cfg.SeekStartSilentPad,
		IsLive:               cfg.IsLive,
	})}
}

// ID returns the session's unique identifier.
func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) OnMediaInfo(fn func(*media.MediaInfo))               { s.onMediaInfo = fn }
func (s *Session) OnInitSegment(fn func(remux.InitSegment))            { s.onInitSegment = fn }
func (s *Session) OnMediaSegment(fn func(remux.MediaSegment))          { s.onMediaSegment = fn }
func (s *Session) OnLoadingComplete(fn func())                         { s.onLoadingComplete = fn }
func (s *Session) OnRecoveredEarlyEof(fn func())                       { s.onRecoveredEarlyEof = fn }
func (s *Session) OnRecommendSeekpoint(fn func(ms float64))            { s.onRecommendSeekpoint = fn }
func (s *Session) OnStatistics(fn func(speed float64))                 { s.onStatistics = fn }
func (s *Session) OnError(fn func(kind transmuxerr.Kind, detail string)) { s.onError = fn }

// Open starts the pipeline against ds.
func (s *Session) Open(ds loader.DataSource) error {
	s.source = ds
	s.remux.OnInitSegment(func(seg remux.InitSegment) {
		if s.onInitSegment != nil {
			s.onInitSegment(seg)
		}
	})
	s.remux.OnMediaSegment(func(seg remux.MediaSegment) {
		if s.onMediaSegment != nil {
			s.onMediaSegment(seg)
		}
	})

	s.ld.OnContentLengthKnown(func(length int64) {
		s.source.Filesize = length
	})
	s.ld.OnURLRedirect(func(url string) {
		log.WithField("url", url).Info("loader redirected")
	})
	s.ld.OnDataArrival(s.handleDataArrival)
	s.ld.OnError(func(code loader.ErrorCode, detail string) {
		s.raise(mapLoaderError(code), detail)
	})
	s.ld.OnComplete(func(from, to int64) {
		if s.stash != nil {
			if err := s.stash.Complete(from, to); err != nil {
				if transmuxerr.Is(err, transmuxerr.KindEarlyEOF) {
					s.recoverEarlyEof(to)
					return
				}
				s.raise(transmuxerr.KindInternalError, err.Error())
				return
			}
		}
		if s.onLoadingComplete != nil {
			s.onLoadingComplete()
		}
	})

	rng := loader.Range{From: 0, To: -1}
	return s.ld.Open(ds, rng)
}

func mapLoaderError(code loader.ErrorCode) transmuxerr.Kind {
	switch code {
	case loader.ErrConnectingTimeout:
		return transmuxerr.KindConnectingTimeout
	case loader.ErrHTTPStatusInvalid:
		return transmuxerr.KindHTTPStatusCodeInvalid
	default:
		return transmuxerr.KindTransportException
	}
}

func (s *Session) raise(kind transmuxerr.Kind, detail string) {
	log.WithField("kind", kind).Error(detail)
	if s.onError != nil {
		s.onError(kind, detail)
	}
}

// handleDataArrival accumulates bytes until the FLV header can be probed,
// then builds the demuxer/stash pair and feeds every subsequent chunk
// through it.
func (s *Session) handleDataArrival(chunk []byte, absOffset, total int64) {
	if !s.probed {
		s.probeBuf = append(s.probeBuf, chunk...)
		if len(s.probeBuf) < 9 {
			return
		}
		result := flv.Probe(s.probeBuf)
		if !result.Match {
			s.raise(transmuxerr.KindFormatError, "input does not begin with a valid FLV header")
			return
		}
		s.probed = true
		s.demux = flv.NewDemuxer(result.HasAudio, result.HasVideo, s.cfg.UserAgent)
		s.demux.OnMediaInfo(func(info *media.MediaInfo) {
			s.remux.Open(info)
			if s.onMediaInfo != nil {
				s.onMediaInfo(info)
			}
		})
		s.demux.OnDataAvailable(func(audio, video *media.Track) {
			s.remux.Remux(audio, video)
		})
		s.demux.OnError(func(kind transmuxerr.Kind, detail string) {
			s.raise(kind, detail)
		})
		s.stash = stash.NewController(s.demux, s.cfg.EnableStashBuffer, s.source.Filesize, s.cfg.IsLive, s.ld)

		remainder := s.probeBuf[result.DataOffset:]
		s.probeBuf = nil
		if len(remainder) > 0 {
			if err := s.stash.Append(remainder, absOffset+int64(len(chunk))-int64(len(remainder))); err != nil {
				s.raise(transmuxerr.KindInternalError, err.Error())
			}
		}
		return
	}

	if err := s.stash.Append(chunk, absOffset); err != nil {
		s.raise(transmuxerr.KindInternalError, err.Error())
	}
}

func (s *Session) recoverEarlyEof(receivedTo int64) {
	log.Warn("recovering from early EOF, reconnecting")
	rng := loader.Range{From: receivedTo + 1, To: -1}
	if err := s.ld.Open(s.source, rng); err != nil {
		s.raise(transmuxerr.KindUnrecoverableEarlyEOF, err.Error())
		return
	}
	if s.onRecoveredEarlyEof != nil {
		s.onRecoveredEarlyEof()
	}
}

// Pause aborts the in-flight load and clears the stash, recording the byte
// offset the stream must resume from.
func (s *Session) Pause() {
	if s.stash != nil {
		s.stash.Pause()
	}
	if s.ld != nil {
		s.ld.Abort()
	}
}

// Resume reopens the loader at the byte offset Pause recorded.
func (s *Session) Resume() error {
	if s.stash == nil {
		return nil
	}
	offset := s.stash.Resume()
	return s.ld.Open(s.source, loader.Range{From: offset, To: -1})
}

// Seek aborts the in-flight load, clears remuxer state, and re-opens the
// loader at byteOffset as given; Seek does not look the offset up in the
// keyframe index itself (RecommendSeekpoint does that).
func (s *Session) Seek(ms float64, byteOffset int64) error {
	s.ld.Abort()
	s.remux.FlushStashedSamples()
	s.remux.Seek(int64(ms))
	if s.stash != nil {
		s.stash.Seek(byteOffset)
	}
	rng := loader.Range{From: byteOffset, To: -1}
	return s.ld.Open(s.source, rng)
}

// RecommendSeekpoint reports the nearest keyframe's millisecond offset for
// ms using info's keyframe index.
func (s *Session) RecommendSeekpoint(info *media.MediaInfo, ms float64) (milliseconds float64, byteOffset int64, ok bool) {
	if info == nil || info.Keyframes == nil {
		return 0, 0, false
	}
	_, millis, pos, found := info.Keyframes.GetNearestKeyframe(ms)
	if !found {
		return 0, 0, false
	}
	if s.onRecommendSeekpoint != nil {
		s.onRecommendSeekpoint(millis)
	}
	return millis, pos, true
}

// Close tears the pipeline down; idempotent.
func (s *Session) Close() {
	if s.ld != nil {
		s.ld.Destroy()
	}
	s.stash = nil
	s.demux = nil
	s.probed = false
	s.probeBuf = nil
}

// UpdateURL rebinds the session's data source URL without disturbing
// pipeline state.
func (s *Session) UpdateURL(url string) { s.source.URL = url }
