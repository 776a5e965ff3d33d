package loader

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketLoaderNeedStashBuffer(t *testing.T) {
	l := NewWebSocketLoader(nil)
	if l.NeedStashBuffer() {
		t.Error("NeedStashBuffer() = true, want false: WebSocket framing is already record-aligned")
	}
}

func wsEchoServer(t *testing.T, frames [][]byte) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.BinaryMessage, f); err != nil {
				return
			}
		}
		// Keep the connection open briefly so the client's Abort/Destroy
		// has something to actually tear down.
		time.Sleep(100 * time.Millisecond)
	}))
}

func TestWebSocketLoaderOpenDeliversBinaryFramesAtIncreasingOffsets(t *testing.T) {
	frames := [][]byte{[]byte("abc"), []byte("defgh")}
	srv := wsEchoServer(t, frames)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	l := NewWebSocketLoader(nil)
	var mu sync.Mutex
	var gotOffsets []int64
	var gotChunks [][]byte
	allReceived := make(chan struct{})
	l.OnDataArrival(func(chunk []byte, absOffset, total int64) {
		mu.Lock()
		gotOffsets = append(gotOffsets, absOffset)
		gotChunks = append(gotChunks, append([]byte(nil), chunk...))
		done := len(gotChunks) == len(frames)
		mu.Unlock()
		if done {
			close(allReceived)
		}
	})
	l.OnError(func(code ErrorCode, detail string) {
		t.Errorf("unexpected loader error: %d %s", code, detail)
	})

	if err := l.Open(DataSource{URL: wsURL}, Range{From: 0, To: -1}); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l.Destroy()

	select {
	case <-allReceived:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for both frames")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOffsets[0] != 0 {
		t.Errorf("first chunk absOffset = %d, want 0", gotOffsets[0])
	}
	if gotOffsets[1] != int64(len(frames[0])) {
		t.Errorf("second chunk absOffset = %d, want %d", gotOffsets[1], len(frames[0]))
	}
	if string(gotChunks[0]) != "abc" || string(gotChunks[1]) != "defgh" {
		t.Errorf("chunks = %q, %q, want %q, %q", gotChunks[0], gotChunks[1], "abc", "defgh")
	}
}

func TestWebSocketLoaderAbortStopsDelivery(t *testing.T) {
	frames := [][]byte{[]byte("abc")}
	srv := wsEchoServer(t, frames)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	l := NewWebSocketLoader(nil)
	received := make(chan struct{}, 1)
	l.OnDataArrival(func(chunk []byte, absOffset, total int64) {
		select {
		case received <- struct{}{}:
		default:
		}
	})
	var errAfterAbort bool
	var mu sync.Mutex
	l.OnError(func(code ErrorCode, detail string) {
		mu.Lock()
		errAfterAbort = true
		mu.Unlock()
	})

	if err := l.Open(DataSource{URL: wsURL}, Range{From: 0, To: -1}); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	<-received
	l.Abort()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if errAfterAbort {
		t.Error("onError was invoked after a clean Abort(), want silence")
	}
}

func TestWebSocketLoaderCurrentSpeedZeroBeforeOpen(t *testing.T) {
	l := NewWebSocketLoader(nil)
	if got := l.CurrentSpeed(); got != 0 {
		t.Errorf("CurrentSpeed() = %v before Open, want 0", got)
	}
}
