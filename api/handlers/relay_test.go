package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/llmrelay/internal/ctxkeys"
	"github.com/BaSui01/llmrelay/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ndjsonBackend 是按给定片段输出 NDJSON 的假模型服务
func ndjsonBackend(t *testing.T, status int, fragments ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, f := range fragments {
			fmt.Fprintf(w, "{\"response\":%q,\"done\":false}\n", f)
		}
		fmt.Fprint(w, "{\"response\":\"\",\"done\":true}\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newRealRelay(url string) *relay.Relay {
	upstream := relay.NewUpstreamClient(nil, relay.UpstreamOptions{URL: url, BufferSize: 8}, zap.NewNop())
	opts := relay.DefaultOptions()
	opts.Profiles = relay.Profiles{}
	opts.PassthroughDelay = 0
	return relay.New(upstream, opts, zap.NewNop())
}

func newRelayMux(runner Runner, maxStreams int, rejects RejectRecorder) *http.ServeMux {
	h := NewRelayHandler(runner, maxStreams, rejects, zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", h.HandleGenerate)
	mux.HandleFunc("/api/generate_raw", h.HandleGenerateRaw)
	mux.HandleFunc("/api/send_message", h.HandleSendMessage)
	return mux
}

type countingRejects struct{ n atomic.Int32 }

func (c *countingRejects) RecordStreamRejected() { c.n.Add(1) }

// blockingRunner 在 release 关闭前一直占用流
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	model   atomic.Value
}

func (b *blockingRunner) Run(ctx context.Context, mode relay.Mode, req *relay.GenerationRequest, sink relay.Sink) relay.Outcome {
	if m, ok := ctxkeys.Model(ctx); ok {
		b.model.Store(m)
	}
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	_, _ = sink.Write([]byte("done"))
	return relay.Outcome{Mode: mode, State: relay.StateCompleted}
}

const helloBody = `{"model":"llama3","prompt":"say hello"}`

func TestRelayHandler_SendMessage(t *testing.T) {
	backend := ndjsonBackend(t, http.StatusOK, "Hel", "lo ", "world")
	mux := newRelayMux(newRealRelay(backend.URL), 0, nil)

	w := serve(mux, http.MethodPost, "/api/send_message", helloBody)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "Hello world", w.Body.String())
	assert.True(t, w.Flushed)
}

func TestRelayHandler_GeneratePaced(t *testing.T) {
	backend := ndjsonBackend(t, http.StatusOK, "Hello", " world")
	mux := newRelayMux(newRealRelay(backend.URL), 0, nil)

	w := serve(mux, http.MethodPost, "/api/generate", `{"model":"llama3","prompt":"hi","stream_speed":"fast"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello world", w.Body.String())
}

func TestRelayHandler_GenerateRaw(t *testing.T) {
	backend := ndjsonBackend(t, http.StatusOK, "Hi")
	mux := newRelayMux(newRealRelay(backend.URL), 0, nil)

	w := serve(mux, http.MethodPost, "/api/generate_raw", helloBody)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"response":"Hi","done":false}`, lines[0])
	assert.JSONEq(t, `{"response":"","done":true}`, lines[1])
}

func TestRelayHandler_UpstreamErrorInStream(t *testing.T) {
	backend := ndjsonBackend(t, http.StatusInternalServerError)
	mux := newRelayMux(newRealRelay(backend.URL), 0, nil)

	w := serve(mux, http.MethodPost, "/api/send_message", helloBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "{\"error\":\"API Error: 500\"}\n", w.Body.String())
}

func TestRelayHandler_Validation(t *testing.T) {
	mux := newRelayMux(newRealRelay("http://127.0.0.1:1"), 0, nil)

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "missing model", body: `{"prompt":"hi"}`, code: http.StatusBadRequest},
		{name: "missing prompt", body: `{"model":"llama3"}`, code: http.StatusBadRequest},
		{name: "invalid json", body: `{"model":`, code: http.StatusBadRequest},
		{name: "empty body", body: "", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(mux, http.MethodPost, "/api/generate", tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestRelayHandler_MethodNotAllowed(t *testing.T) {
	mux := newRelayMux(newRealRelay("http://127.0.0.1:1"), 0, nil)

	w := serve(mux, http.MethodGet, "/api/generate", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
}

func TestRelayHandler_AdmissionControl(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	rejects := &countingRejects{}
	srv := httptest.NewServer(newRelayMux(runner, 1, rejects))
	defer srv.Close()

	first := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/api/generate", "application/json", strings.NewReader(helloBody))
		if err == nil {
			first <- resp
		}
		close(first)
	}()

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first stream did not start")
	}
	assert.Equal(t, "llama3", runner.model.Load())

	resp, err := http.Post(srv.URL+"/api/send_message", "application/json", strings.NewReader(helloBody))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "TOO_MANY_STREAMS")
	assert.Equal(t, int32(1), rejects.n.Load())

	close(runner.release)
	firstResp, ok := <-first
	require.True(t, ok)
	data, _ := io.ReadAll(firstResp.Body)
	firstResp.Body.Close()
	assert.Equal(t, "done", string(data))

	// 槽位释放后可以再次进入
	go func() { <-runner.started }()
	resp, err = http.Post(srv.URL+"/api/send_message", "application/json", strings.NewReader(helloBody))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
