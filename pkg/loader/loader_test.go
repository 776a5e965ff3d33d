package loader

import "testing"

func TestRangeOpenEndedSentinel(t *testing.T) {
	r := Range{From: 0, To: -1}
	if r.To != -1 {
		t.Errorf("Range.To = %d, want -1 for open-ended", r.To)
	}
}

func TestErrorCodeDistinctValues(t *testing.T) {
	codes := []ErrorCode{ErrConnectingTimeout, ErrHTTPStatusInvalid, ErrException}
	seen := map[ErrorCode]bool{}
	for _, c := range codes {
		if seen[c] {
			t.Errorf("ErrorCode %d is not distinct", c)
		}
		seen[c] = true
	}
}
