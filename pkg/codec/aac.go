package codec

import (
	"fmt"

	"transmux/pkg/bitio"
)

// AAC object types used by the ASC parser and the UA-promotion table.
const (
	AACObjectTypeAACMain = 1
	AACObjectTypeAACLC   = 2
	AACObjectTypeAACSSR  = 3
	AACObjectTypeAACLTP  = 4
	AACObjectTypeSBR     = 5 // HE-AAC, explicit signaling
)

// aacSampleRateTable is the 13-entry sampling-frequency-index table from
// ISO/IEC 14496-3 §1.6.2.4; index 15 is an escape (explicit 24-bit rate,
// not needed for FLV-delivered AAC).
var aacSampleRateTable = [13]uint32{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// AudioSpecificConfig is the decoded ISO/IEC 14496-3 ASC, before any
// UA-targeted object-type promotion is applied.
type AudioSpecificConfig struct {
	ObjectType            uint8
	SamplingIndex         uint8
	SampleRate            uint32
	ChannelConfig         uint8
	ExtensionSamplingIndex uint8
	ExtensionObjectType   uint8
}

// DecodeAudioSpecificConfig reads the ASC fields out of the FLV AAC
// sequence-header payload: object type (5 bits), sampling index (4 bits),
// channel config (4 bits), with an SBR extension header (4+5 bits) read
// when the object type is explicit HE-AAC (5).
func DecodeAudioSpecificConfig(data []byte) (*AudioSpecificConfig, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("AudioSpecificConfig too short")
	}
	bs := bitio.NewReader(data)
	asc := &AudioSpecificConfig{}
	asc.ObjectType = bs.Uint8(5)
	asc.SamplingIndex = bs.Uint8(4)
	if asc.SamplingIndex == 15 {
		return nil, fmt.Errorf("explicit sample rate escape not supported")
	}
	asc.SampleRate = aacSampleRateTable[asc.SamplingIndex]
	asc.ChannelConfig = bs.Uint8(4)
	if asc.ObjectType == AACObjectTypeSBR {
		asc.ExtensionSamplingIndex = bs.Uint8(4)
		asc.ExtensionObjectType = bs.Uint8(5)
	}
	return asc, nil
}

// UserAgent selects the object-type-promotion rule applied when
// reconstructing the canonical ASC blob.
type UserAgent int

const (
	UserAgentGeneric UserAgent = iota
	UserAgentFirefox
	UserAgentAndroid
)

// PromotedObjectType applies a per-UA compatibility shim:
//   - Firefox: HE-AAC (5) when SamplingIndex >= 6, else LC-AAC (2).
//   - Android: always LC-AAC (2).
//   - otherwise: HE-AAC (5) except when mono, which stays LC-AAC (2).
func (asc *AudioSpecificConfig) PromotedObjectType(ua UserAgent) uint8 {
	switch ua {
	case UserAgentFirefox:
		if asc.SamplingIndex >= 6 {
			return AACObjectTypeSBR
		}
		return AACObjectTypeAACLC
	case UserAgentAndroid:
		return AACObjectTypeAACLC
	default:
		if asc.ChannelConfig == 1 {
			return AACObjectTypeAACLC
		}
		return AACObjectTypeSBR
	}
}

// CanonicalConfig reconstructs the 2- or 4-byte config blob (4 bytes, with
// an explicit SBR extension, whenever the promoted object type is HE-AAC)
// used as the `mp4a.40.N` DecoderSpecificInfo and to
// derive the `mp4a.40.N` codec string.
func (asc *AudioSpecificConfig) CanonicalConfig(ua UserAgent) []byte {
	objectType := asc.PromotedObjectType(ua)
	bw := bitio.NewWriter(4)
	bw.PutUint8(objectType, 5)
	bw.PutUint8(asc.SamplingIndex, 4)
	bw.PutUint8(asc.ChannelConfig, 4)
	if objectType == AACObjectTypeSBR {
		extIdx := asc.ExtensionSamplingIndex
		if extIdx == 0 {
			extIdx = asc.SamplingIndex
		}
		bw.PutUint8(extIdx, 4)
		bw.PutUint8(AACObjectTypeAACLC, 5)
	}
	bw.PutUint8(0, 3) // pad to a whole byte count
	bits := bw.Bits()
	if len(bits) > 4 {
		bits = bits[:4]
	}
	return bits
}

// CodecString returns the `mp4a.40.N` identifier used in MediaInfo.mimeType
// and InitSegment.codec.
func (asc *AudioSpecificConfig) CodecString(ua UserAgent) string {
	return fmt.Sprintf("mp4a.40.%d", asc.PromotedObjectType(ua))
}

// RefSampleDuration returns the nominal per-sample duration in the given
// timescale: 1024 samples/frame for AAC.
func (asc *AudioSpecificConfig) RefSampleDuration(timescale uint32) float64 {
	return 1024 * float64(timescale) / float64(asc.SampleRate)
}
