package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxLineSize 是单行上游数据的默认上限
const DefaultMaxLineSize = 1 << 20

// ErrUpstreamStatus 表示后端返回了非 2xx 状态
var ErrUpstreamStatus = errors.New("upstream returned non-2xx status")

// StatusError 携带后端的 HTTP 状态码
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.StatusCode)
}

// Unwrap 使 errors.Is(err, ErrUpstreamStatus) 成立
func (e *StatusError) Unwrap() error {
	return ErrUpstreamStatus
}

// UpstreamClient 向后端生成接口发起流式请求
type UpstreamClient struct {
	client      *http.Client
	url         string
	timeout     time.Duration
	bufferSize  int
	maxLineSize int
	logger      *zap.Logger
}

// UpstreamOptions 配置 UpstreamClient
type UpstreamOptions struct {
	// URL 是后端生成接口的完整地址
	URL string
	// Timeout 是整个生成请求的截止时间，0 表示只受调用方 ctx 约束
	Timeout time.Duration
	// BufferSize 是行通道容量
	BufferSize int
	// MaxLineSize 是单行的字节上限，0 表示 DefaultMaxLineSize。超长的行结束该流。
	MaxLineSize int
}

// NewUpstreamClient 创建上游客户端
func NewUpstreamClient(client *http.Client, opts UpstreamOptions, logger *zap.Logger) *UpstreamClient {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BufferSize < 0 {
		opts.BufferSize = 0
	}
	if opts.MaxLineSize <= 0 {
		opts.MaxLineSize = DefaultMaxLineSize
	}
	return &UpstreamClient{
		client:      client,
		url:         opts.URL,
		timeout:     opts.Timeout,
		bufferSize:  opts.BufferSize,
		maxLineSize: opts.MaxLineSize,
		logger:      logger.With(zap.String("component", "upstream")),
	}
}

// Open 发起请求。返回的 Stream 必须被 Close。
// 非 2xx 状态返回 *StatusError，此时连接已经释放。
func (u *UpstreamClient) Open(ctx context.Context, req *GenerationRequest) (*Stream, error) {
	body, err := json.Marshal(req.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var cancel context.CancelFunc
	if u.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := u.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	s := &Stream{
		lines:       make(chan []byte, u.bufferSize),
		done:        make(chan struct{}),
		cancel:      cancel,
		maxLineSize: u.maxLineSize,
	}
	go s.produce(ctx, resp.Body)
	return s, nil
}

// Stream 是一次上游响应的行序列，由单个生产者 goroutine 填充
type Stream struct {
	lines       chan []byte
	done        chan struct{}
	cancel      context.CancelFunc
	maxLineSize int

	mu        sync.Mutex
	err       error
	lineCount int

	closeOnce sync.Once
}

// Lines 返回行通道；上游结束或 Close 后通道关闭
func (s *Stream) Lines() <-chan []byte {
	return s.lines
}

// Err 返回读取过程中的错误（正常 EOF 为 nil）。应在 Lines 关闭后调用。
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LineCount 返回已产出的非空行数
func (s *Stream) LineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lineCount
}

// Close 取消上游请求并等待生产者退出，连接随之释放。可重复调用。
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Done 在生产者退出、连接关闭后关闭
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) produce(ctx context.Context, body io.ReadCloser) {
	defer close(s.done)
	defer body.Close()
	defer close(s.lines)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, min(64*1024, s.maxLineSize)), s.maxLineSize)
	for scanner.Scan() {
		trimmed := bytes.TrimSpace(scanner.Bytes())
		if len(trimmed) == 0 {
			continue
		}
		s.mu.Lock()
		s.lineCount++
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		case s.lines <- bytes.Clone(trimmed):
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else if errors.Is(err, bufio.ErrTooLong) {
			err = fmt.Errorf("upstream line exceeds %d bytes: %w", s.maxLineSize, err)
		}
		s.setErr(err)
	}
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
