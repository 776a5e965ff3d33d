package mp4

// GenerateInitSegment produces `ftyp || moov` for one track.
func GenerateInitSegment(meta TrackMeta) []byte {
	ftyp := box("ftyp",
		[]byte("isom"), putUint32(0x00000200),
		[]byte("isom"), []byte("iso2"), []byte("avc1"), []byte("mp41"),
	)
	moov := box("moov", mvhd(meta.Duration), trak(meta), mvex(meta))
	return append(ftyp, moov...)
}

func mvhd(duration uint32) []byte {
	body := make([]byte, 0, 100)
	body = append(body, fullBoxHeader(0, 0)...)
	body = append(body, putUint32(mp4Epoch)...)          // creation_time
	body = append(body, putUint32(mp4Epoch)...)          // modification_time
	body = append(body, putUint32(1000)...)              // timescale
	body = append(body, putUint32(duration)...)          // duration
	body = append(body, putUint32(0x00010000)...)        // rate 1.0
	body = append(body, putUint16(0x0100)...)            // volume 1.0
	body = append(body, make([]byte, 2)...)              // reserved
	body = append(body, make([]byte, 8)...)              // reserved[2]
	for _, m := range identityMatrix {
		body = append(body, putUint32(m)...)
	}
	body = append(body, make([]byte, 24)...) // pre_defined[6]
	body = append(body, putUint32(0xFFFFFFFF)...) // next_track_ID
	return box("mvhd", body)
}

func trak(meta TrackMeta) []byte {
	return box("trak", tkhd(meta), mdia(meta))
}

func tkhd(meta TrackMeta) []byte {
	volume := uint16(0)
	if meta.Type == "audio" {
		volume = 0x0100
	}
	width, height := uint32(0), uint32(0)
	if meta.Video != nil {
		width, height = meta.Video.PresentWidth, meta.Video.PresentHeight
	}
	body := make([]byte, 0, 92)
	body = append(body, fullBoxHeader(0, 0x000007)...) // enabled|in_movie|in_preview
	body = append(body, putUint32(mp4Epoch)...)
	body = append(body, putUint32(mp4Epoch)...)
	body = append(body, putUint32(meta.ID)...)
	body = append(body, make([]byte, 4)...) // reserved
	body = append(body, putUint32(meta.Duration)...)
	body = append(body, make([]byte, 8)...) // reserved[2]
	body = append(body, putUint16(0)...)    // layer
	body = append(body, putUint16(0)...)    // alternate_group
	body = append(body, putUint16(volume)...)
	body = append(body, make([]byte, 2)...) // reserved
	for _, m := range identityMatrix {
		body = append(body, putUint32(m)...)
	}
	body = append(body, putUint32(width<<16)...)
	body = append(body, putUint32(height<<16)...)
	return box("tkhd", body)
}

func mdia(meta TrackMeta) []byte {
	return box("mdia", mdhd(meta), hdlr(meta), minf(meta))
}

func mdhd(meta TrackMeta) []byte {
	body := make([]byte, 0, 24)
	body = append(body, fullBoxHeader(0, 0)...)
	body = append(body, putUint32(mp4Epoch)...)
	body = append(body, putUint32(mp4Epoch)...)
	body = append(body, putUint32(meta.Timescale)...)
	body = append(body, putUint32(meta.Duration)...)
	body = append(body, putUint16(0x55C4)...) // language "und"
	body = append(body, putUint16(0)...)      // pre_defined
	return box("mdhd", body)
}

func hdlr(meta TrackMeta) []byte {
	handlerType := "vide"
	name := "VideoHandler"
	if meta.Type == "audio" {
		handlerType = "soun"
		name = "SoundHandler"
	}
	body := make([]byte, 0, 32+len(name))
	body = append(body, fullBoxHeader(0, 0)...)
	body = append(body, make([]byte, 4)...) // pre_defined
	body = append(body, []byte(handlerType)...)
	body = append(body, make([]byte, 12)...) // reserved[3]
	body = append(body, []byte(name)...)
	body = append(body, 0) // null terminator
	return box("hdlr", body)
}

func minf(meta TrackMeta) []byte {
	mediaHeader := smhd()
	if meta.Type == "video" {
		mediaHeader = vmhd()
	}
	return box("minf", mediaHeader, dinf(), stbl(meta))
}

func vmhd() []byte {
	body := append(fullBoxHeader(0, 1), make([]byte, 8)...) // graphicsmode+opcolor
	return box("vmhd", body)
}

func smhd() []byte {
	body := append(fullBoxHeader(0, 0), make([]byte, 4)...) // balance+reserved
	return box("smhd", body)
}

func dinf() []byte {
	url := box("url ", fullBoxHeader(0, 0x000001))
	dref := append(fullBoxHeader(0, 0), putUint32(1)...)
	dref = append(dref, url...)
	return box("dinf", box("dref", dref))
}

func stbl(meta TrackMeta) []byte {
	empty := append(fullBoxHeader(0, 0), putUint32(0)...)
	stsz := append(fullBoxHeader(0, 0), putUint32(0)...)
	stsz = append(stsz, putUint32(0)...)
	return box("stbl",
		stsd(meta),
		box("stts", empty),
		box("stsc", empty),
		box("stsz", stsz),
		box("stco", empty),
	)
}

func stsd(meta TrackMeta) []byte {
	body := append(fullBoxHeader(0, 0), putUint32(1)...)
	if meta.Type == "audio" {
		if meta.Audio != nil && meta.Audio.Codec == "mp3" {
			body = append(body, mp3SampleEntry(meta)...)
		} else {
			body = append(body, mp4aSampleEntry(meta)...)
		}
	} else {
		body = append(body, avc1SampleEntry(meta)...)
	}
	return box("stsd", body)
}

func sampleEntryHeader() []byte {
	b := make([]byte, 8)
	b[6] = 0
	b[7] = 1 // data_reference_index = 1
	return b
}

func mp4aSampleEntry(meta TrackMeta) []byte {
	sampleRate, channels := uint32(44100), uint16(2)
	var config []byte
	if meta.Audio != nil {
		sampleRate = meta.Audio.SampleRate
		channels = uint16(meta.Audio.ChannelCount)
		config = meta.Audio.Config
	}
	body := sampleEntryHeader()
	body = append(body, make([]byte, 8)...) // reserved[2]
	body = append(body, putUint16(channels)...)
	body = append(body, putUint16(16)...) // samplesize
	body = append(body, make([]byte, 4)...) // pre_defined+reserved
	body = append(body, putUint32(sampleRate<<16)...)
	body = append(body, esds(meta.ID, config)...)
	return box("mp4a", body)
}

func mp3SampleEntry(meta TrackMeta) []byte {
	sampleRate, channels := uint32(44100), uint16(2)
	if meta.Audio != nil {
		sampleRate = meta.Audio.SampleRate
		channels = uint16(meta.Audio.ChannelCount)
	}
	body := sampleEntryHeader()
	body = append(body, make([]byte, 8)...)
	body = append(body, putUint16(channels)...)
	body = append(body, putUint16(16)...)
	body = append(body, make([]byte, 4)...)
	body = append(body, putUint32(sampleRate<<16)...)
	return box(".mp3", body)
}

// esds builds the MPEG-4 ES_Descriptor carrying the AudioSpecificConfig
// as the DecoderSpecificInfo, grounded on flv.js's mp4-generator.js esds
// layout (single-byte descriptor lengths, since AAC configs never
// approach the 128-byte expandable-length boundary).
func esds(trackID uint32, config []byte) []byte {
	body := fullBoxHeader(0, 0)
	esDescLen := 3 + 2 + 13 + 2 + len(config) + 3
	body = append(body, 0x03, byte(esDescLen))
	body = append(body, byte(trackID>>8), byte(trackID), 0x00) // ES_ID, stream_priority

	decConfigLen := 13 + 2 + len(config)
	body = append(body, 0x04, byte(decConfigLen))
	body = append(body, 0x40)             // objectTypeIndication: MPEG-4 AAC
	body = append(body, 0x15)             // streamType(6)=audio(5)<<2 | upStream(0) | reserved(1)
	body = append(body, 0x00, 0x00, 0x00) // bufferSizeDB
	body = append(body, putUint32(0)...)  // maxBitrate
	body = append(body, putUint32(0)...)  // avgBitrate

	body = append(body, 0x05, byte(len(config)))
	body = append(body, config...)

	body = append(body, 0x06, 0x01, 0x02) // SLConfigDescriptor
	return box("esds", body)
}

func avc1SampleEntry(meta TrackMeta) []byte {
	var width, height uint16
	var avcc []byte
	if meta.Video != nil {
		width, height = uint16(meta.Video.CodecWidth), uint16(meta.Video.CodecHeight)
		avcc = meta.Video.AVCC
	}
	body := sampleEntryHeader()
	body = append(body, make([]byte, 16)...) // pre_defined+reserved+pre_defined[3]
	body = append(body, putUint16(width)...)
	body = append(body, putUint16(height)...)
	body = append(body, putUint32(0x00480000)...) // horizresolution 72dpi
	body = append(body, putUint32(0x00480000)...) // vertresolution 72dpi
	body = append(body, make([]byte, 4)...)       // reserved
	body = append(body, putUint16(1)...)          // frame_count

	compressorName := make([]byte, 32)
	name := "xqq/flv.js"
	compressorName[0] = byte(len(name))
	copy(compressorName[1:], name)
	body = append(body, compressorName...)

	body = append(body, putUint16(0x0018)...) // depth
	body = append(body, putUint16(0xFFFF)...) // pre_defined = -1
	body = append(body, box("avcC", avcc)...)
	return box("avc1", body)
}

func mvex(meta TrackMeta) []byte {
	return box("mvex", trex(meta.ID))
}

func trex(trackID uint32) []byte {
	body := fullBoxHeader(0, 0)
	body = append(body, putUint32(trackID)...)
	body = append(body, putUint32(1)...) // default_sample_description_index
	body = append(body, putUint32(0)...) // default_sample_duration
	body = append(body, putUint32(0)...) // default_sample_size
	body = append(body, putUint32(0)...) // default_sample_flags
	return box("trex", body)
}
