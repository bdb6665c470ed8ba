package relay

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// recordingSink 记录每次写入及其时间
type recordingSink struct {
	mu     sync.Mutex
	writes []string
	times  []time.Time
	// failAfter > 0 时，第 failAfter+1 次写入返回错误
	failAfter int
}

var errCallerGone = errors.New("broken pipe")

func (s *recordingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.writes) >= s.failAfter {
		return 0, errCallerGone
	}
	s.writes = append(s.writes, string(p))
	s.times = append(s.times, time.Now())
	return len(p), nil
}

func (s *recordingSink) Flush() error { return nil }

func (s *recordingSink) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

func (s *recordingSink) Text() string {
	return strings.Join(s.Writes(), "")
}

// backend 是一个假的模型服务，按给定行输出 NDJSON
type backend struct {
	*httptest.Server
	hits atomic.Int32
}

func newBackend(t *testing.T, status int, lines ...string) *backend {
	t.Helper()
	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		if status != http.StatusOK {
			http.Error(w, "boom", status)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}))
	t.Cleanup(b.Close)
	return b
}

func newTestClient(t *testing.T) *http.Client {
	t.Helper()
	tr := &http.Transport{}
	t.Cleanup(tr.CloseIdleConnections)
	return &http.Client{Transport: tr}
}

func newTestRelay(t *testing.T, url string, opts Options) *Relay {
	t.Helper()
	up := NewUpstreamClient(newTestClient(t), UpstreamOptions{URL: url, BufferSize: 8}, zap.NewNop())
	return New(up, opts, zap.NewNop())
}

// fastOptions 去掉所有等待，便于断言内容
func fastOptions() Options {
	return Options{ChunkSize: 3, Profiles: Profiles{}, PassthroughDelay: 0}
}
