package mp4

import "transmux/pkg/media"

// tfhdFlagsDefaultBaseIsMoof marks that sample data-offsets in this
// fragment are relative to the enclosing `moof`.
const tfhdFlagsDefaultBaseIsMoof = 0x020000

// trunFlagsFull requests data-offset, sample-duration, sample-size,
// sample-flags and sample-composition-time-offset per sample.
const trunFlagsFull = 0x00000F01

// GenerateMoof builds `mfhd(sequenceNumber) + traf(tfhd+tfdt+trun+sdtp)`
// for one track's batch of samples. baseMediaDecodeTime is the
// batch's first sample's corrected DTS.
func GenerateMoof(trackID, sequenceNumber uint32, baseMediaDecodeTime int64, samples []*media.Sample) []byte {
	mfhdBox := mfhd(sequenceNumber)
	tfhdBox := tfhd(trackID)
	tfdtBox := tfdt(baseMediaDecodeTime)
	sdtpBox := sdtp(samples)

	trunPayloadLen := 12 + 16*len(samples)
	trunHeaderLen := 8 + trunPayloadLen

	trafBodyLenWithoutTrun := len(tfhdBox) + len(tfdtBox) + len(sdtpBox)
	moofBodyLen := len(mfhdBox) + 8 /*traf header*/ + trafBodyLenWithoutTrun + trunHeaderLen
	moofBoxLen := 8 + moofBodyLen

	dataOffset := int32(moofBoxLen + 8) // + mdat header

	trunBox := trun(samples, dataOffset)
	traf := box("traf", tfhdBox, tfdtBox, trunBox, sdtpBox)
	return box("moof", mfhdBox, traf)
}

func mfhd(sequenceNumber uint32) []byte {
	body := append(fullBoxHeader(0, 0), putUint32(sequenceNumber)...)
	return box("mfhd", body)
}

func tfhd(trackID uint32) []byte {
	body := append(fullBoxHeader(0, tfhdFlagsDefaultBaseIsMoof), putUint32(trackID)...)
	return box("tfhd", body)
}

func tfdt(baseMediaDecodeTime int64) []byte {
	body := append(fullBoxHeader(1, 0), putUint64(uint64(baseMediaDecodeTime))...)
	return box("tfdt", body)
}

func trun(samples []*media.Sample, dataOffset int32) []byte {
	body := fullBoxHeader(0, trunFlagsFull)
	body = append(body, putUint32(uint32(len(samples)))...)
	body = append(body, putUint32(uint32(dataOffset))...)
	for _, s := range samples {
		flags := s.Flags
		sampleFlags := uint32(flags.IsLeading)<<26 | uint32(flags.DependsOn)<<24 |
			uint32(flags.IsDependedOn)<<22 | uint32(flags.HasRedundancy)<<20 |
			uint32(flags.IsNonSync)<<16
		body = append(body, putUint32(uint32(s.Duration))...)
		body = append(body, putUint32(uint32(s.Size))...)
		body = append(body, putUint32(sampleFlags)...)
		body = append(body, putUint32(uint32(int32(s.CTS)))...)
	}
	return box("trun", body)
}

func sdtp(samples []*media.Sample) []byte {
	body := fullBoxHeader(0, 0)
	for _, s := range samples {
		f := s.Flags
		body = append(body, f.IsLeading<<6|f.DependsOn<<4|f.IsDependedOn<<2|f.HasRedundancy)
	}
	return box("sdtp", body)
}
