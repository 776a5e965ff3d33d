package codec

import "testing"

// mp3Frame128kbps44100Stereo is a standard MPEG-1 Layer III, 128kbps,
// 44100Hz, stereo, unpadded frame header (the common "FF FB 90 xx" header).
var mp3Frame128kbps44100Stereo = []byte{0xFF, 0xFB, 0x90, 0x00}

func TestDecodeMP3FrameHeader(t *testing.T) {
	h, err := DecodeMP3FrameHeader(mp3Frame128kbps44100Stereo)
	if err != nil {
		t.Fatalf("DecodeMP3FrameHeader() error = %v", err)
	}
	if h.Version != mpegVersion1 {
		t.Errorf("Version = %d, want mpegVersion1", h.Version)
	}
	if h.Layer != mpegLayer3 {
		t.Errorf("Layer = %d, want mpegLayer3", h.Layer)
	}
	if h.BitrateIndex != 9 {
		t.Errorf("BitrateIndex = %d, want 9", h.BitrateIndex)
	}
	if h.SampleRateIndex != 0 {
		t.Errorf("SampleRateIndex = %d, want 0", h.SampleRateIndex)
	}
	if h.Padding != 0 {
		t.Errorf("Padding = %d, want 0", h.Padding)
	}
	if got := h.BitRate(); got != 128000 {
		t.Errorf("BitRate() = %d, want 128000", got)
	}
	if got := h.SampleRate(); got != 44100 {
		t.Errorf("SampleRate() = %d, want 44100", got)
	}
	if got := h.ChannelCount(); got != 2 {
		t.Errorf("ChannelCount() = %d, want 2", got)
	}
	if h.SampleSize != 1152 {
		t.Errorf("SampleSize = %d, want 1152", h.SampleSize)
	}
	if h.FrameSize != 417 {
		t.Errorf("FrameSize = %d, want 417", h.FrameSize)
	}
}

func TestDecodeMP3FrameHeaderMonoMode(t *testing.T) {
	// Same as mp3Frame128kbps44100Stereo but with mode bits set to 0x03
	// (single channel): byte index 3, bits 6-7.
	data := []byte{0xFF, 0xFB, 0x90, 0xC0}
	h, err := DecodeMP3FrameHeader(data)
	if err != nil {
		t.Fatalf("DecodeMP3FrameHeader() error = %v", err)
	}
	if got := h.ChannelCount(); got != 1 {
		t.Errorf("ChannelCount() = %d, want 1 for single-channel mode", got)
	}
}

func TestDecodeMP3FrameHeaderRejectsBadSync(t *testing.T) {
	data := []byte{0x00, 0xFB, 0x90, 0x00}
	if _, err := DecodeMP3FrameHeader(data); err == nil {
		t.Error("want error for a missing sync word, got nil")
	}
}

func TestDecodeMP3FrameHeaderRejectsReservedVersion(t *testing.T) {
	// version bits (12-13) = 01 -> reserved.
	data := []byte{0xFF, 0xEB, 0x90, 0x00}
	if _, err := DecodeMP3FrameHeader(data); err == nil {
		t.Error("want error for a reserved version, got nil")
	}
}

func TestDecodeMP3FrameHeaderTooShort(t *testing.T) {
	if _, err := DecodeMP3FrameHeader([]byte{0xFF, 0xFB}); err == nil {
		t.Error("want error for a truncated header, got nil")
	}
}

func TestRefSampleDurationMP3(t *testing.T) {
	got := RefSampleDurationMP3(1000, 44100)
	want := 1152.0 * 1000.0 / 44100.0
	if got != want {
		t.Errorf("RefSampleDurationMP3() = %v, want %v", got, want)
	}
}
