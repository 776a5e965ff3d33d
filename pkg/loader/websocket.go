package loader

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketLoader streams a live FLV source over a WebSocket connection.
// It requests no byte range from the server: a WebSocket source is a live
// push, not seekable.
type WebSocketLoader struct {
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	received int64
	started  time.Time
	closed   bool

	onContentLength func(int64)
	onRedirect      func(string)
	onData          func([]byte, int64, int64)
	onError         func(ErrorCode, string)
	onComplete      func(int64, int64)
}

// NewWebSocketLoader constructs a loader using the given dialer, or
// websocket.DefaultDialer when dialer is nil.
func NewWebSocketLoader(dialer *websocket.Dialer) *WebSocketLoader {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebSocketLoader{dialer: dialer}
}

func (l *WebSocketLoader) OnContentLengthKnown(fn func(int64)) { l.onContentLength = fn }
func (l *WebSocketLoader) OnURLRedirect(fn func(string))       { l.onRedirect = fn }
func (l *WebSocketLoader) OnDataArrival(fn func(chunk []byte, absOffset, total int64)) {
	l.onData = fn
}
func (l *WebSocketLoader) OnError(fn func(ErrorCode, string))       { l.onError = fn }
func (l *WebSocketLoader) OnComplete(fn func(rangeFrom, rangeTo int64)) { l.onComplete = fn }

// NeedStashBuffer reports false: WebSocket message framing already
// delivers record-friendly chunks.
func (l *WebSocketLoader) NeedStashBuffer() bool { return false }

func (l *WebSocketLoader) CurrentSpeed() float64 {
	elapsed := time.Since(l.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(l.received) / elapsed
}

// Open dials ds.URL and begins pumping binary frames to onData. No range is
// sent to the server; rng.From only sets the absolute offset reported for
// the first delivered byte, and rng.To is ignored.
func (l *WebSocketLoader) Open(ds DataSource, rng Range) error {
	conn, _, err := l.dialer.Dial(ds.URL, nil)
	if err != nil {
		if l.onError != nil {
			l.onError(ErrConnectingTimeout, err.Error())
		}
		return err
	}
	l.mu.Lock()
	l.conn = conn
	l.started = time.Now()
	l.received = rng.From
	l.mu.Unlock()

	go l.pump(rng.From)
	return nil
}

func (l *WebSocketLoader) pump(startOffset int64) {
	offset := startOffset
	for {
		l.mu.Lock()
		conn := l.conn
		closed := l.closed
		l.mu.Unlock()
		if closed || conn == nil {
			return
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			l.mu.Lock()
			closed = l.closed
			l.mu.Unlock()
			if !closed && l.onError != nil {
				l.onError(ErrException, err.Error())
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		l.mu.Lock()
		l.received = offset + int64(len(data))
		total := l.received
		l.mu.Unlock()
		if l.onData != nil {
			l.onData(data, offset, total)
		}
		offset += int64(len(data))
	}
}

// Abort closes the WebSocket connection without invoking onComplete.
func (l *WebSocketLoader) Abort() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.conn != nil {
		l.conn.Close()
	}
}

// Destroy is equivalent to Abort for this loader.
func (l *WebSocketLoader) Destroy() { l.Abort() }
