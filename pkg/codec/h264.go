// Package codec decodes the H.264 SPS, the AVCDecoderConfigurationRecord,
// the AAC AudioSpecificConfig and the MPEG audio frame header — the
// bitstream-level helpers the FLV demuxer needs.
package codec

import (
	"fmt"

	"transmux/pkg/bitio"
)

// profileIdc values used when deriving the `avc1.PPCCLL` codec string.
const (
	ProfileBaseline = 66
	ProfileMain     = 77
	ProfileExtended = 88
	ProfileHigh     = 100
)

// sps carries the subset of ITU-T H.264 §7.3.2.1 fields needed to derive
// coded/display resolution, SAR and frame rate.
type sps struct {
	ProfileIdc                 uint8
	LevelIdc                   uint8
	SeqParameterSetID          uint64
	ChromaFormatIdc            uint64
	PicWidthInMbsMinus1        uint64
	PicHeightInMapUnitsMinus1  uint64
	FrameMbsOnlyFlag           uint8
	FrameCroppingFlag          uint8
	FrameCropLeftOffset        uint64
	FrameCropRightOffset       uint64
	FrameCropTopOffset         uint64
	FrameCropBottomOffset      uint64
	VUIParametersPresentFlag   uint8
	VUI                        vuiParameters
}

type vuiParameters struct {
	AspectRatioInfoPresentFlag uint8
	AspectRatioIdc             uint8
	SarWidth                   uint16
	SarHeight                  uint16
	TimingInfoPresentFlag      uint8
	NumUnitsInTick             uint32
	TimeScale                  uint32
	FixedFrameRateFlag         uint8
}

const extendedSar = 255

func (s *sps) decode(bs *bitio.Reader) {
	s.ProfileIdc = bs.Uint8(8)
	bs.SkipBits(6) // constraint_set0.5_flag
	bs.SkipBits(2) // reserved_zero_2bits
	s.LevelIdc = bs.Uint8(8)
	s.SeqParameterSetID = bs.ReadUE()

	switch s.ProfileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		s.ChromaFormatIdc = bs.ReadUE()
		if s.ChromaFormatIdc == 3 {
			bs.SkipBits(1) // separate_colour_plane_flag
		}
		bs.ReadUE() // bit_depth_luma_minus8
		bs.ReadUE() // bit_depth_chroma_minus8
		bs.SkipBits(1)
		if bs.GetBit() == 1 { // seq_scaling_matrix_present_flag
			n := 8
			if s.ChromaFormatIdc == 3 {
				n = 12
			}
			bs.SkipBits(n)
		}
	}

	bs.ReadUE() // log2_max_frame_num_minus4
	picOrderCntType := bs.ReadUE()
	if picOrderCntType == 0 {
		bs.ReadUE() // log2_max_pic_order_cnt_lsb_minus4
	} else if picOrderCntType == 1 {
		bs.SkipBits(1) // delta_pic_order_always_zero_flag
		bs.ReadSE()    // offset_for_non_ref_pic
		bs.ReadSE()    // offset_for_top_to_bottom_field
		numRefFrames := bs.ReadUE()
		for i := uint64(0); i < numRefFrames; i++ {
			bs.ReadSE()
		}
	}
	bs.ReadUE()    // max_num_ref_frames
	bs.SkipBits(1) // gaps_in_frame_num_value_allowed_flag
	s.PicWidthInMbsMinus1 = bs.ReadUE()
	s.PicHeightInMapUnitsMinus1 = bs.ReadUE()
	s.FrameMbsOnlyFlag = bs.GetBit()
	if s.FrameMbsOnlyFlag == 0 {
		bs.SkipBits(1) // mb_adaptive_frame_field_flag
	}
	bs.SkipBits(1) // direct_8x8_inference_flag
	s.FrameCroppingFlag = bs.GetBit()
	if s.FrameCroppingFlag == 1 {
		s.FrameCropLeftOffset = bs.ReadUE()
		s.FrameCropRightOffset = bs.ReadUE()
		s.FrameCropTopOffset = bs.ReadUE()
		s.FrameCropBottomOffset = bs.ReadUE()
	}
	s.VUIParametersPresentFlag = bs.GetBit()
	if s.VUIParametersPresentFlag == 1 {
		s.VUI.decode(bs)
	}
}

func (v *vuiParameters) decode(bs *bitio.Reader) {
	v.AspectRatioInfoPresentFlag = bs.Uint8(1)
	if v.AspectRatioInfoPresentFlag == 1 {
		v.AspectRatioIdc = bs.Uint8(8)
		if v.AspectRatioIdc == extendedSar {
			v.SarWidth = bs.Uint16(16)
			v.SarHeight = bs.Uint16(16)
		}
	}
	if bs.Uint8(1) == 1 { // overscan_info_present_flag
		bs.SkipBits(1)
	}
	if bs.Uint8(1) == 1 { // video_signal_type_present_flag
		bs.SkipBits(3) // video_format
		bs.SkipBits(1) // video_full_range_flag
		if bs.Uint8(1) == 1 {
			bs.SkipBits(24) // colour_primaries, transfer_characteristics, matrix_coefficients
		}
	}
	if bs.Uint8(1) == 1 { // chroma_loc_info_present_flag
		bs.ReadUE()
		bs.ReadUE()
	}
	v.TimingInfoPresentFlag = bs.Uint8(1)
	if v.TimingInfoPresentFlag == 1 {
		v.NumUnitsInTick = bs.Uint32(32)
		v.TimeScale = bs.Uint32(32)
		v.FixedFrameRateFlag = bs.Uint8(1)
	}
}

// SPSInfo is everything the FLV video-tag path and the fMP4 track-metadata
// builder need out of a SPS NAL unit.
type SPSInfo struct {
	ProfileIdc    uint8
	LevelIdc      uint8
	CodecWidth    uint32
	CodecHeight   uint32
	PresentWidth  uint32
	PresentHeight uint32
	SarRatio      [2]uint32 // width:height, {1,1} when absent
	FixedFrameRate bool
	FPSNum        uint32
	FPSDen        uint32
}

// ProfileString returns the two-hex-digit profile + constraint + level
// string used in the `avc1.PPCCLL` codec identifier, e.g. "42001f" (the
// part after "avc1.") for baseline profile at level 3.1. compatibility is the avcC record's
// ProfileCompatibility byte (constraint_set flags), not the SPS itself.
func (info *SPSInfo) ProfileString(compatibility uint8) string {
	return fmt.Sprintf("%02x%02x%02x", info.ProfileIdc, compatibility, info.LevelIdc)
}

// refFrameRateNum/refFrameRateDen is substituted when the SPS declares a non-fixed or zero
// frame rate.
const refFrameRateNum = 23976
const refFrameRateDen = 1000

// ParseSPS decodes codec size, display size, SAR and frame rate out of a
// raw (Annex-B-free, start-code-free) SPS RBSP payload.
func ParseSPS(rbsp []byte) (*SPSInfo, error) {
	if len(rbsp) < 4 {
		return nil, fmt.Errorf("sps too short")
	}
	sodb := rbspToSodb(rbsp)
	bs := bitio.NewReader(sodb)
	var s sps
	s.decode(bs)

	subWidthC, subHeightC := uint32(2), uint32(2)
	if s.ChromaFormatIdc == 3 {
		subWidthC, subHeightC = 1, 1
	} else if s.ChromaFormatIdc == 1 {
		subWidthC, subHeightC = 2, 2
	} else if s.ChromaFormatIdc == 2 {
		subWidthC, subHeightC = 2, 1
	}

	codecWidth := (uint32(s.PicWidthInMbsMinus1) + 1) * 16
	mbHeightUnit := uint32(2)
	if s.FrameMbsOnlyFlag == 1 {
		mbHeightUnit = 1
	}
	codecHeight := mbHeightUnit * (uint32(s.PicHeightInMapUnitsMinus1) + 1) * 16

	cropUnitX := subWidthC
	cropUnitY := subHeightC * mbHeightUnit
	presentWidth := codecWidth
	presentHeight := codecHeight
	if s.FrameCroppingFlag == 1 {
		presentWidth -= uint32(s.FrameCropLeftOffset+s.FrameCropRightOffset) * cropUnitX
		presentHeight -= uint32(s.FrameCropTopOffset+s.FrameCropBottomOffset) * cropUnitY
	}

	info := &SPSInfo{
		ProfileIdc:    s.ProfileIdc,
		LevelIdc:      s.LevelIdc,
		CodecWidth:    codecWidth,
		CodecHeight:   codecHeight,
		PresentWidth:  presentWidth,
		PresentHeight: presentHeight,
		SarRatio:      [2]uint32{1, 1},
	}

	if s.VUI.AspectRatioInfoPresentFlag == 1 {
		if s.VUI.AspectRatioIdc == extendedSar && s.VUI.SarWidth != 0 && s.VUI.SarHeight != 0 {
			info.SarRatio = [2]uint32{uint32(s.VUI.SarWidth), uint32(s.VUI.SarHeight)}
		} else if w, h, ok := sarFromIdc(s.VUI.AspectRatioIdc); ok {
			info.SarRatio = [2]uint32{w, h}
		}
	}
	if info.SarRatio[0] != 1 || info.SarRatio[1] != 1 {
		info.PresentWidth = info.PresentWidth * info.SarRatio[0] / info.SarRatio[1]
	}

	if s.VUI.TimingInfoPresentFlag == 1 && s.VUI.NumUnitsInTick != 0 && s.VUI.FixedFrameRateFlag == 1 {
		info.FixedFrameRate = true
		info.FPSNum = s.VUI.TimeScale
		info.FPSDen = s.VUI.NumUnitsInTick * 2
	} else {
		info.FixedFrameRate = false
		info.FPSNum = refFrameRateNum
		info.FPSDen = refFrameRateDen
	}

	return info, nil
}

// sarFromIdc maps the standard aspect_ratio_idc table (Table E-1) to a
// width:height ratio; idc 0 and reserved values report !ok.
func sarFromIdc(idc uint8) (w, h uint32, ok bool) {
	table := map[uint8][2]uint32{
		1: {1, 1}, 2: {12, 11}, 3: {10, 11}, 4: {16, 11}, 5: {40, 33},
		6: {24, 11}, 7: {20, 11}, 8: {32, 11}, 9: {80, 33}, 10: {18, 11},
		11: {15, 11}, 12: {64, 33}, 13: {160, 99}, 14: {4, 3}, 15: {3, 2}, 16: {2, 1},
	}
	v, ok := table[idc]
	return v[0], v[1], ok
}

// rbspToSodb strips H.264 emulation-prevention bytes (0x00 0x00 0x03 -> 0x00
// 0x00) and drops the NAL header byte, leaving the pure SODB the SPS parser
// expects.
func rbspToSodb(nal []byte) []byte {
	if len(nal) == 0 {
		return nal
	}
	src := nal[1:] // drop nal header byte
	out := make([]byte, 0, len(src))
	zeros := 0
	for i := 0; i < len(src); i++ {
		if zeros >= 2 && src[i] == 0x03 && i+1 < len(src) && src[i+1] <= 0x03 {
			zeros = 0
			continue
		}
		if src[i] == 0x00 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, src[i])
	}
	return out
}

// AVCDecoderConfigurationRecord is the ISO/IEC 14496-15 `avcC` payload: a
// profile/level summary plus the SPS/PPS parameter sets, as handed to the
// fMP4 `avcC` box and to ParseSPS for the first SPS.
type AVCDecoderConfigurationRecord struct {
	ConfigurationVersion uint8
	AVCProfileIndication uint8
	ProfileCompatibility uint8
	AVCLevelIndication   uint8
	NaluLengthSize       int // lengthSizeMinusOne + 1, must be 3 or 4
	SPS                  [][]byte
	PPS                  [][]byte
	Raw                  []byte
}

// DecodeAVCDecoderConfigurationRecord parses the AVC sequence header body
// (after the FLV 5-byte video-tag prefix has been stripped). Only the first
// SPS is interpreted; the record must declare at least one SPS and a
// lengthSizeMinusOne mapping to 3 or 4 bytes.
func DecodeAVCDecoderConfigurationRecord(data []byte) (*AVCDecoderConfigurationRecord, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("avcC too short")
	}
	rec := &AVCDecoderConfigurationRecord{Raw: append([]byte(nil), data...)}
	rec.ConfigurationVersion = data[0]
	rec.AVCProfileIndication = data[1]
	rec.ProfileCompatibility = data[2]
	rec.AVCLevelIndication = data[3]
	lengthSizeMinusOne := data[4] & 0x03
	rec.NaluLengthSize = int(lengthSizeMinusOne) + 1
	if rec.NaluLengthSize != 3 && rec.NaluLengthSize != 4 {
		return nil, fmt.Errorf("unsupported avcC lengthSizeMinusOne=%d", lengthSizeMinusOne)
	}

	off := 5
	numSPS := int(data[off] & 0x1F)
	off++
	if numSPS == 0 {
		return nil, fmt.Errorf("avcC has no SPS")
	}
	for i := 0; i < numSPS; i++ {
		if off+2 > len(data) {
			return nil, fmt.Errorf("avcC truncated in SPS list")
		}
		l := int(data[off])<<8 | int(data[off+1])
		off += 2
		if off+l > len(data) {
			return nil, fmt.Errorf("avcC SPS length overruns record")
		}
		rec.SPS = append(rec.SPS, data[off:off+l])
		off += l
	}

	if off >= len(data) {
		return nil, fmt.Errorf("avcC truncated before PPS count")
	}
	numPPS := int(data[off])
	off++
	for i := 0; i < numPPS; i++ {
		if off+2 > len(data) {
			return nil, fmt.Errorf("avcC truncated in PPS list")
		}
		l := int(data[off])<<8 | int(data[off+1])
		off += 2
		if off+l > len(data) {
			return nil, fmt.Errorf("avcC PPS length overruns record")
		}
		rec.PPS = append(rec.PPS, data[off:off+l])
		off += l
	}

	return rec, nil
}
