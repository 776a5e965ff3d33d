package mp4

import (
	"bytes"
	"testing"

	gomp4 "github.com/abema/go-mp4"
	"github.com/stretchr/testify/require"

	"transmux/pkg/media"
)

func sampleFixtures() []*media.Sample {
	return []*media.Sample{
		{
			Duration: 33, Size: 100, CTS: 0,
			Flags: media.SampleFlags{DependsOn: 2, IsNonSync: 0},
		},
		{
			Duration: 33, Size: 80, CTS: 33,
			Flags: media.SampleFlags{DependsOn: 1, IsNonSync: 1},
		},
	}
}

func TestGenerateMoofBoxStructure(t *testing.T) {
	data := GenerateMoof(1, 7, 1000, sampleFixtures())

	var paths []gomp4.BoxPath
	_, err := gomp4.ReadBoxStructure(bytes.NewReader(data), func(h *gomp4.ReadHandle) (interface{}, error) {
		paths = append(paths, h.Path)
		return h.Expand()
	})
	require.NoError(t, err)

	want := []gomp4.BoxPath{
		{gomp4.BoxTypeMoof()},
		{gomp4.BoxTypeMoof(), gomp4.BoxTypeMfhd()},
		{gomp4.BoxTypeMoof(), gomp4.BoxTypeTraf()},
		{gomp4.BoxTypeMoof(), gomp4.BoxTypeTraf(), gomp4.BoxTypeTfhd()},
		{gomp4.BoxTypeMoof(), gomp4.BoxTypeTraf(), gomp4.BoxTypeTfdt()},
		{gomp4.BoxTypeMoof(), gomp4.BoxTypeTraf(), gomp4.BoxTypeTrun()},
		{gomp4.BoxTypeMoof(), gomp4.BoxTypeTraf(), gomp4.BoxTypeSdtp()},
	}
	require.Equal(t, want, paths)
}

func TestGenerateMoofDataOffsetPointsPastMdatHeader(t *testing.T) {
	samples := sampleFixtures()
	moof := GenerateMoof(1, 7, 1000, samples)

	var mediaData []byte
	for _, s := range samples {
		mediaData = append(mediaData, make([]byte, s.Size)...)
	}
	mdat := Mdat(mediaData)

	fullSegment := append(append([]byte{}, moof...), mdat...)

	var dataOffset int32
	_, err := gomp4.ReadBoxStructure(bytes.NewReader(fullSegment), func(h *gomp4.ReadHandle) (interface{}, error) {
		if h.BoxInfo.Type == gomp4.BoxTypeTrun() {
			box, _, err := h.ReadPayload()
			require.NoError(t, err)
			trun := box.(*gomp4.Trun)
			dataOffset = trun.DataOffset
		}
		return h.Expand()
	})
	require.NoError(t, err)

	// The offset trun declares must land exactly at the first byte of the
	// mdat's payload, wherever that box actually starts.
	mdatPayloadOffset := int32(len(moof) + 8)
	if dataOffset != mdatPayloadOffset {
		t.Errorf("trun data_offset = %d, want %d (mdat payload start)", dataOffset, mdatPayloadOffset)
	}
}

func TestGenerateMoofSampleFields(t *testing.T) {
	samples := sampleFixtures()
	moof := GenerateMoof(1, 7, 1000, samples)

	var gotSizes []uint32
	var gotDurations []uint32
	var gotBaseMediaDecodeTime uint64
	_, err := gomp4.ReadBoxStructure(bytes.NewReader(moof), func(h *gomp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case gomp4.BoxTypeTrun():
			box, _, err := h.ReadPayload()
			require.NoError(t, err)
			trun := box.(*gomp4.Trun)
			for _, e := range trun.Entries {
				gotSizes = append(gotSizes, e.SampleSize)
				gotDurations = append(gotDurations, e.SampleDuration)
			}
		case gomp4.BoxTypeTfdt():
			box, _, err := h.ReadPayload()
			require.NoError(t, err)
			tfdt := box.(*gomp4.Tfdt)
			gotBaseMediaDecodeTime = tfdt.BaseMediaDecodeTimeV1
		}
		return h.Expand()
	})
	require.NoError(t, err)

	require.Equal(t, []uint32{100, 80}, gotSizes)
	require.Equal(t, []uint32{33, 33}, gotDurations)
	require.Equal(t, uint64(1000), gotBaseMediaDecodeTime)
}

func TestMdatWrapsPayload(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	data := Mdat(payload)
	if len(data) != 8+len(payload) {
		t.Fatalf("len(Mdat()) = %d, want %d", len(data), 8+len(payload))
	}
	if string(data[4:8]) != "mdat" {
		t.Errorf("box type = %q, want mdat", data[4:8])
	}
	if string(data[8:]) != string(payload) {
		t.Errorf("Mdat payload = %v, want %v", data[8:], payload)
	}
}
