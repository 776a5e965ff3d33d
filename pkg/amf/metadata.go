// Package amf extracts the `onMetaData` script-tag fields the FLV demuxer
// needs out of the FLV script-tag payload, decoded with
// github.com/yutopp/go-amf0. AMF decoding itself is delegated entirely to
// that library; this package is the thin interface-level adapter on top
// of it.
package amf

import (
	"bytes"
	"io"
	"reflect"

	amf0 "github.com/yutopp/go-amf0"
)

// decodeAll reads successive AMF0-encoded values from r until EOF,
// mirroring the behavior previously provided by amf0.DecodeAll (not
// present in the pinned library version), which is relied on by
// DecodeOnMetaData below.
func decodeAll(r io.Reader) ([]interface{}, error) {
	dec := amf0.NewDecoder(r)
	var values []interface{}
	for {
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// MetaData is the subset of `onMetaData` fields the demuxer consumes to
// seed track metadata before any AVC/AAC sequence header has arrived.
// Fields are pointers so "absent" and "present but zero" are
// distinguishable; a field is only populated when it is present and of
// the expected AMF0 type.
type MetaData struct {
	HasAudio      *bool
	HasVideo      *bool
	AudioDataRate *float64
	VideoDataRate *float64
	Width         *float64
	Height        *float64
	Duration      *float64
	FrameRate     *float64
	Keyframes     *KeyframesIndex
}

// KeyframesIndex is the raw `keyframes` object out of onMetaData: parallel
// `times`/`filepositions` arrays, entry 0 of which actually describes the
// AVC sequence header and is stripped by the caller.
type KeyframesIndex struct {
	Times         []float64
	FilePositions []float64
}

// DecodeOnMetaData decodes an FLV script-tag body and, if it is an
// `onMetaData` call, returns the extracted fields. A script tag with a
// different name, or a payload AMF0 can't parse, yields (nil, nil): a
// malformed or irrelevant script tag is a warning, not a failure.
func DecodeOnMetaData(data []byte) (*MetaData, error) {
	values, err := decodeAll(bytes.NewReader(data))
	if err != nil || len(values) < 2 {
		return nil, nil
	}
	name, ok := values[0].(string)
	if !ok || name != "onMetaData" {
		return nil, nil
	}

	fields := mapFields(values[1])
	if fields == nil {
		return nil, nil
	}

	md := &MetaData{}
	if b, ok := asBool(fields["hasAudio"]); ok {
		md.HasAudio = &b
	}
	if b, ok := asBool(fields["hasVideo"]); ok {
		md.HasVideo = &b
	}
	if n, ok := asNumber(fields["audiodatarate"]); ok {
		md.AudioDataRate = &n
	}
	if n, ok := asNumber(fields["videodatarate"]); ok {
		md.VideoDataRate = &n
	}
	if n, ok := asNumber(fields["width"]); ok {
		md.Width = &n
	}
	if n, ok := asNumber(fields["height"]); ok {
		md.Height = &n
	}
	if n, ok := asNumber(fields["duration"]); ok {
		md.Duration = &n
	}
	if n, ok := asNumber(fields["framerate"]); ok {
		md.FrameRate = &n
	}
	if kf := mapFields(fields["keyframes"]); kf != nil {
		times := asNumberSlice(kf["times"])
		positions := asNumberSlice(kf["filepositions"])
		if len(times) > 0 && len(positions) > 0 {
			md.Keyframes = &KeyframesIndex{Times: times, FilePositions: positions}
		}
	}
	return md, nil
}

// mapFields reflects over any map-shaped AMF0 value (amf0.ECMAArray,
// amf0.Object or plain map[string]interface{}) without depending on the
// library's exact named type.
func mapFields(v interface{}) map[string]interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil
	}
	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, ok := iter.Key().Interface().(string)
		if !ok {
			continue
		}
		out[k] = iter.Value().Interface()
	}
	return out
}

func asBool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func asNumberSlice(v interface{}) []float64 {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]float64, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		if n, ok := asNumber(rv.Index(i).Interface()); ok {
			out = append(out, n)
		}
	}
	return out
}
