// Package stash implements the I/O controller: a growable byte buffer
// bridging chunked network delivery and the FLV demuxer's record-aligned
// parsing, sized adaptively from the loader's observed throughput.
package stash

import (
	"math"

	"transmux/pkg/transmuxerr"
	"transmux/pkg/transmuxlog"
)

var log = transmuxlog.For("stash")

// speedLadderKiB is the observed-throughput ladder the stash size tracks:
// the nearest-lower rung of this progression, in KiB/s.
var speedLadderKiB = []int{64, 128, 256, 384, 512, 768, 1024, 1536, 2048, 3072, 4096}

const (
	maxStashSizeKiB = 8192
	bufferSlack     = 1 << 20 // 1 MiB
)

// SpeedSource reports the loader's currently observed transfer rate in
// bytes per second. Both HTTPRangeLoader and WebSocketLoader satisfy this
// via their CurrentSpeed method.
type SpeedSource interface {
	CurrentSpeed() float64
}

// Parser is the record-aligned consumer the stash hands contiguous bytes
// to. It is satisfied by *flv.Demuxer.
type Parser interface {
	ParseChunks(data []byte) (consumed int, err error)
}

// Controller owns the growable stash buffer and the virtual absolute-byte
// offset mapping consumers rely on (stashByteStart + i).
type Controller struct {
	parser      Parser
	speedSource SpeedSource
	isLive      bool

	buf          []byte
	byteStart    int64 // absolute file offset of buf[0]
	enableStash  bool
	stashSize    int // bytes; current sizing threshold, never shrinks within a session
	paused       bool
	resumeOffset int64

	totalLength   int64 // 0 when unknown
	totalReceived int64
	lastRangeTo   int64

	onEarlyEof func()
}

// NewController constructs a stash controller over parser. enableStash
// mirrors the `enableStashBuffer` config option. isLive and speedSource
// drive the adaptive stash-size algorithm; speedSource may be nil (the
// stash then stays at its initial, zero-throughput size).
func NewController(parser Parser, enableStash bool, totalLength int64, isLive bool, speedSource SpeedSource) *Controller {
	c := &Controller{
		parser:      parser,
		enableStash: enableStash,
		totalLength: totalLength,
		isLive:      isLive,
		speedSource: speedSource,
	}
	c.stashSize = stashSizeForSpeed(0, isLive) * 1024
	return c
}

// snapToLadder returns the largest speedLadderKiB rung not exceeding
// speedKiB, or the ladder's floor when speedKiB falls below every rung.
func snapToLadder(speedKiB float64) int {
	snapped := speedLadderKiB[0]
	for _, rung := range speedLadderKiB {
		if float64(rung) > speedKiB {
			break
		}
		snapped = rung
	}
	return snapped
}

// stashSizeForSpeed derives the target stash size in KiB from an observed
// speed in KiB/s: the snapped ladder rung directly for live streams; for
// non-live streams, the rung itself up to 512, floor(rung*1.5) between 512
// and 1024, and rung*2 above 1024 — capped at 8192.
func stashSizeForSpeed(speedKiB float64, isLive bool) int {
	normalized := snapToLadder(speedKiB)
	if isLive {
		return normalized
	}
	var size float64
	switch {
	case normalized <= 512:
		size = float64(normalized)
	case normalized <= 1024:
		size = math.Floor(float64(normalized) * 1.5)
	default:
		size = float64(normalized) * 2
	}
	if size > maxStashSizeKiB {
		size = maxStashSizeKiB
	}
	return int(size)
}

// resample recomputes the stash-size threshold from the currently observed
// speed. The threshold never shrinks within a session, even if throughput
// later drops.
func (c *Controller) resample() {
	if c.speedSource == nil {
		return
	}
	speedKiB := c.speedSource.CurrentSpeed() / 1024
	target := stashSizeForSpeed(speedKiB, c.isLive) * 1024
	if target > c.stashSize {
		c.stashSize = target
	}
}

// ensureCapacity grows buf's backing array to at least need bytes, in
// doublings from stashSize+1MiB of slack; capacity never shrinks within a
// session.
func (c *Controller) ensureCapacity(need int) {
	target := c.stashSize + bufferSlack
	if target < need {
		target = need
	}
	if cap(c.buf) >= target {
		return
	}
	newCap := cap(c.buf)
	if newCap == 0 {
		newCap = target
	}
	for newCap < target {
		newCap *= 2
	}
	grown := make([]byte, len(c.buf), newCap)
	copy(grown, c.buf)
	c.buf = grown
}

// OnEarlyEof registers the recoverable-EOF callback, invoked by Complete
// when totalLength is known and data stops short of it.
func (c *Controller) OnEarlyEof(fn func()) { c.onEarlyEof = fn }

// Append appends a contiguous chunk arriving at absOffset. Non-contiguous
// arrival (a gap or overlap with the current buffer) is a programmer
// error in the loader and is reported as IllegalState.
func (c *Controller) Append(chunk []byte, absOffset int64) error {
	if len(c.buf) == 0 {
		if c.totalReceived > 0 && absOffset != c.totalReceived {
			return transmuxerr.New(transmuxerr.KindIllegalState, "non-contiguous chunk arrival at stash controller")
		}
		c.byteStart = absOffset
	} else if absOffset != c.byteStart+int64(len(c.buf)) {
		return transmuxerr.New(transmuxerr.KindIllegalState, "non-contiguous chunk arrival at stash controller")
	}
	c.resample()
	c.ensureCapacity(len(c.buf) + len(chunk))
	c.buf = append(c.buf, chunk...)
	c.totalReceived = absOffset + int64(len(chunk))

	if c.paused {
		return nil
	}
	if c.enableStash && len(c.buf) < c.stashSize {
		return nil
	}
	return c.drain()
}

// Drain forces a parse pass over whatever bytes are currently buffered,
// regardless of the stash-size threshold; used at end-of-stream and by
// explicit flush paths.
func (c *Controller) Drain() error { return c.drain() }

func (c *Controller) drain() error {
	consumed, err := c.parser.ParseChunks(c.buf)
	if err != nil {
		return err
	}
	if consumed > 0 {
		c.buf = append(c.buf[:0], c.buf[consumed:]...)
		c.byteStart += int64(consumed)
	}
	return nil
}

// Complete signals end-of-stream: drains any remainder and checks for an
// early EOF against a known total length.
func (c *Controller) Complete(rangeFrom, rangeTo int64) error {
	c.lastRangeTo = rangeTo
	if err := c.Drain(); err != nil {
		return err
	}
	if c.totalLength > 0 && c.totalReceived < c.totalLength {
		log.WithField("received", c.totalReceived).Warn("early EOF, attempting reconnect")
		if c.onEarlyEof != nil {
			c.onEarlyEof()
		}
		return transmuxerr.New(transmuxerr.KindEarlyEOF, "stream ended before declared length")
	}
	return nil
}

// Pause suspends draining and clears the buffered stash, recording the
// next byte the loader must resume from: stashByteStart+stashUsed when
// the stash is non-empty, else the next byte past everything already
// received. Aborting the loader itself is the caller's responsibility.
func (c *Controller) Pause() int64 {
	if len(c.buf) > 0 {
		c.resumeOffset = c.byteStart + int64(len(c.buf))
	} else {
		c.resumeOffset = c.totalReceived
	}
	c.paused = true
	c.buf = c.buf[:0]
	return c.resumeOffset
}

// Resume clears the pause flag and resets the virtual offset mapping to
// the byte recorded by Pause, ready for the loader to reopen there.
func (c *Controller) Resume() int64 {
	c.paused = false
	c.byteStart = c.resumeOffset
	c.totalReceived = c.resumeOffset
	c.buf = c.buf[:0]
	return c.resumeOffset
}

// Seek discards all buffered bytes and resets the virtual offset to
// byteOffset, preparing for a fresh contiguous Append stream starting
// there. The stash-size threshold is left untouched: it never shrinks
// within a session.
func (c *Controller) Seek(byteOffset int64) {
	c.buf = c.buf[:0]
	c.byteStart = byteOffset
	c.totalReceived = byteOffset
}

// ByteStart returns the absolute file offset of the first buffered byte.
func (c *Controller) ByteStart() int64 { return c.byteStart }

// Buffered returns the number of bytes currently held.
func (c *Controller) Buffered() int { return len(c.buf) }
