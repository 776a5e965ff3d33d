// Package remux implements the fMP4 remuxer: DTS correction, duration
// interpolation, silent-frame gap fill and segment emission.
package remux

// Config carries workaround flags for known player/browser quirks. All
// default to off; the caller opts a target runtime in rather than the
// remuxer probing a user agent itself.
type Config struct {
	FixAudioTimestampGap bool
	ForceKeyframe        bool // forces the first sample of each video segment to report as an IDR
	SeekStartSilentPad   bool
	IsLive               bool
}
