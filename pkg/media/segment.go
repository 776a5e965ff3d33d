package media

import "sort"

// SampleInfo is a lightweight record of one sample's timing and, for video
// keyframes, its source byte offset — the element type of IDRSampleList and
// of a MediaSegmentInfo's first/last/sync-point fields.
type SampleInfo struct {
	Dts          int64
	Pts          int64
	Duration     int64
	OriginalDts  int64
	FilePosition int64
}

// IDRSampleList is the ordered video-keyframe index, sorted by OriginalDts.
// A batch whose first entry precedes the list's tail resets the list
// (reset-on-backward-jump), so replays and seek-to-start don't need an
// explicit clear from the caller.
type IDRSampleList struct {
	items []SampleInfo
}

// AppendArray appends a batch of keyframe records, in originalDts order,
// resetting the list first if the batch's head precedes the list's current
// tail. Appending an empty slice is a no-op.
func (l *IDRSampleList) AppendArray(batch []SampleInfo) {
	if len(batch) == 0 {
		return
	}
	if len(l.items) > 0 && batch[0].OriginalDts < l.items[len(l.items)-1].OriginalDts {
		l.items = l.items[:0]
	}
	l.items = append(l.items, batch...)
}

// Items returns the underlying sorted slice; callers must not mutate it.
func (l *IDRSampleList) Items() []SampleInfo { return l.items }

// Clear empties the list.
func (l *IDRSampleList) Clear() { l.items = l.items[:0] }

// GetLastSyncPointBefore returns the element with the largest Dts < dts, or
// ok=false when no such element exists.
func (l *IDRSampleList) GetLastSyncPointBefore(dts int64) (SampleInfo, bool) {
	i := sort.Search(len(l.items), func(i int) bool { return l.items[i].Dts >= dts })
	if i == 0 {
		return SampleInfo{}, false
	}
	return l.items[i-1], true
}

// MediaSegmentInfo is one remuxed fMP4 segment's timing summary.
type MediaSegmentInfo struct {
	BeginDts         int64
	EndDts           int64
	BeginPts         int64
	EndPts           int64
	OriginalBeginDts int64
	OriginalEndDts   int64
	FirstSample      SampleInfo
	LastSample       SampleInfo
	SyncPoints       []SampleInfo
}

// MediaSegmentInfoList is the per-track, OriginalBeginDts-ordered segment
// index used for seek lookup and cross-discontinuity DTS correction.
// Insertion uses binary search, with a cached last-append location fast
// path for the common monotonically-increasing-append case.
type MediaSegmentInfoList struct {
	segments       []*MediaSegmentInfo
	lastAppendIdx  int
}

// Append inserts info keeping the list sorted by OriginalBeginDts.
func (l *MediaSegmentInfoList) Append(info *MediaSegmentInfo) {
	n := len(l.segments)
	if n == 0 {
		l.segments = append(l.segments, info)
		l.lastAppendIdx = 0
		return
	}
	if l.lastAppendIdx < n && l.segments[l.lastAppendIdx].OriginalBeginDts <= info.OriginalBeginDts &&
		(l.lastAppendIdx == n-1 || l.segments[l.lastAppendIdx+1].OriginalBeginDts > info.OriginalBeginDts) {
		idx := l.lastAppendIdx + 1
		l.insertAt(idx, info)
		l.lastAppendIdx = idx
		return
	}
	idx := sort.Search(n, func(i int) bool { return l.segments[i].OriginalBeginDts > info.OriginalBeginDts })
	l.insertAt(idx, info)
	l.lastAppendIdx = idx
}

func (l *MediaSegmentInfoList) insertAt(idx int, info *MediaSegmentInfo) {
	l.segments = append(l.segments, nil)
	copy(l.segments[idx+1:], l.segments[idx:])
	l.segments[idx] = info
}

// Clear empties the list, as happens on seek (but not on pause).
func (l *MediaSegmentInfoList) Clear() {
	l.segments = l.segments[:0]
	l.lastAppendIdx = 0
}

// IsEmpty reports whether the list has no segments.
func (l *MediaSegmentInfoList) IsEmpty() bool { return len(l.segments) == 0 }

// Last returns the most recently appended segment by position, or nil if
// the list is empty.
func (l *MediaSegmentInfoList) Last() *MediaSegmentInfo {
	if len(l.segments) == 0 {
		return nil
	}
	return l.segments[len(l.segments)-1]
}

// LastSampleBefore returns the LastSample of the segment covering the
// largest OriginalBeginDts <= originalDts, used by the remuxer's DTS
// correction when nextDts is undefined.
func (l *MediaSegmentInfoList) LastSampleBefore(originalDts int64) (SampleInfo, bool) {
	n := len(l.segments)
	if n == 0 {
		return SampleInfo{}, false
	}
	i := sort.Search(n, func(i int) bool { return l.segments[i].OriginalBeginDts > originalDts })
	if i == 0 {
		return SampleInfo{}, false
	}
	return l.segments[i-1].LastSample, true
}

// SegmentAt returns the segment whose [BeginDts, EndDts) range contains dts,
// used for seek lookup.
func (l *MediaSegmentInfoList) SegmentAt(dts int64) (*MediaSegmentInfo, bool) {
	n := len(l.segments)
	i := sort.Search(n, func(i int) bool { return l.segments[i].BeginDts > dts })
	if i == 0 {
		return nil, false
	}
	seg := l.segments[i-1]
	if dts >= seg.BeginDts && dts < seg.EndDts {
		return seg, true
	}
	return nil, false
}
