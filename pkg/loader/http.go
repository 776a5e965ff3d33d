package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"transmux/pkg/transmuxlog"
)

var log = transmuxlog.For("loader")

// HTTPRangeLoader fetches a media source over HTTP(S) range requests. It
// is the reference Loader implementation for non-live VOD sources.
type HTTPRangeLoader struct {
	client *http.Client

	mu       sync.Mutex
	cancel   context.CancelFunc
	received int64
	started  time.Time

	onContentLength func(int64)
	onRedirect      func(string)
	onData          func([]byte, int64, int64)
	onError         func(ErrorCode, string)
	onComplete      func(int64, int64)
}

// NewHTTPRangeLoader constructs a loader using the given HTTP client, or
// http.DefaultClient when client is nil.
func NewHTTPRangeLoader(client *http.Client) *HTTPRangeLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRangeLoader{client: client}
}

func (l *HTTPRangeLoader) OnContentLengthKnown(fn func(int64))                 { l.onContentLength = fn }
func (l *HTTPRangeLoader) OnURLRedirect(fn func(string))                       { l.onRedirect = fn }
func (l *HTTPRangeLoader) OnDataArrival(fn func(chunk []byte, absOffset, total int64)) {
	l.onData = fn
}
func (l *HTTPRangeLoader) OnError(fn func(ErrorCode, string))       { l.onError = fn }
func (l *HTTPRangeLoader) OnComplete(fn func(rangeFrom, rangeTo int64)) { l.onComplete = fn }

// NeedStashBuffer reports true: plain HTTP delivery benefits from the
// jitter-smoothing stash buffer.
func (l *HTTPRangeLoader) NeedStashBuffer() bool { return true }

// CurrentSpeed returns bytes/second observed since Open, 0 before the
// first byte arrives.
func (l *HTTPRangeLoader) CurrentSpeed() float64 {
	elapsed := time.Since(l.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(l.received) / elapsed
}

// Open issues a ranged GET and streams the response body to onData in
// fixed-size reads, invoking onComplete on EOF or onError on failure.
func (l *HTTPRangeLoader) Open(ds DataSource, rng Range) error {
	ctx, cancel := context.WithCancel(context.Background())
	l.mu.Lock()
	l.cancel = cancel
	l.started = time.Now()
	l.received = rng.From
	l.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ds.URL, nil)
	if err != nil {
		l.fail(ErrException, err.Error())
		return err
	}
	if rng.To >= 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.From, rng.To))
	} else if rng.From > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", rng.From))
	}

	resp, err := l.client.Do(req)
	if err != nil {
		l.fail(ErrConnectingTimeout, err.Error())
		return err
	}

	if req.URL.String() != resp.Request.URL.String() && l.onRedirect != nil {
		l.onRedirect(resp.Request.URL.String())
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		l.fail(ErrHTTPStatusInvalid, fmt.Sprintf("unexpected status %d", resp.StatusCode))
		return fmt.Errorf("loader: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > 0 && l.onContentLength != nil {
		l.onContentLength(rng.From + resp.ContentLength)
	}

	go l.pump(resp.Body, rng)
	return nil
}

func (l *HTTPRangeLoader) pump(body io.ReadCloser, rng Range) {
	defer body.Close()
	buf := make([]byte, 64*1024)
	offset := rng.From
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			l.mu.Lock()
			l.received = offset + int64(n)
			l.mu.Unlock()
			if l.onData != nil {
				l.onData(chunk, offset, l.received)
			}
			offset += int64(n)
		}
		if err == io.EOF {
			if l.onComplete != nil {
				l.onComplete(rng.From, offset-1)
			}
			return
		}
		if err != nil {
			log.WithField("offset", offset).Warn(err.Error())
			l.fail(ErrException, err.Error())
			return
		}
	}
}

func (l *HTTPRangeLoader) fail(code ErrorCode, detail string) {
	if l.onError != nil {
		l.onError(code, detail)
	}
}

// Abort cancels the in-flight request, if any.
func (l *HTTPRangeLoader) Abort() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
}

// Destroy is equivalent to Abort for this loader; it holds no other
// resources.
func (l *HTTPRangeLoader) Destroy() { l.Abort() }
