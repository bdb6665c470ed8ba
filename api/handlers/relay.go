package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/llmrelay/internal/ctxkeys"
	"github.com/BaSui01/llmrelay/relay"
	"github.com/BaSui01/llmrelay/types"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// =============================================================================
// 🔁 流式转发 Handler
// =============================================================================

// Runner 执行一次转发，*relay.Relay 是默认实现
type Runner interface {
	Run(ctx context.Context, mode relay.Mode, req *relay.GenerationRequest, sink relay.Sink) relay.Outcome
}

// RejectRecorder 记录被准入控制拒绝的请求
type RejectRecorder interface {
	RecordStreamRejected()
}

// RelayHandler 处理三个生成端点
type RelayHandler struct {
	runner  Runner
	slots   *semaphore.Weighted
	rejects RejectRecorder
	logger  *zap.Logger
}

// NewRelayHandler 创建转发处理器。maxStreams 为 0 表示不限制并发。
func NewRelayHandler(runner Runner, maxStreams int, rejects RejectRecorder, logger *zap.Logger) *RelayHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &RelayHandler{
		runner:  runner,
		rejects: rejects,
		logger:  logger.With(zap.String("handler", "relay")),
	}
	if maxStreams > 0 {
		h.slots = semaphore.NewWeighted(int64(maxStreams))
	}
	return h
}

// HandleGenerate 处理 POST /api/generate（分块节奏文本）
// @Summary 流式生成（节奏文本）
// @Tags 生成
// @Accept json
// @Produce plain
// @Param request body api.GenerateRequest true "生成请求"
// @Router /api/generate [post]
func (h *RelayHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, relay.ModePaced)
}

// HandleGenerateRaw 处理 POST /api/generate_raw（NDJSON 透传）
// @Summary 流式生成（原始 NDJSON）
// @Tags 生成
// @Accept json
// @Produce x-ndjson
// @Router /api/generate_raw [post]
func (h *RelayHandler) HandleGenerateRaw(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, relay.ModePassthrough)
}

// HandleSendMessage 处理 POST /api/send_message（无节奏文本）
// @Summary 流式生成（低延迟文本）
// @Tags 生成
// @Accept json
// @Produce plain
// @Router /api/send_message [post]
func (h *RelayHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, relay.ModeSimple)
}

func (h *RelayHandler) serve(w http.ResponseWriter, r *http.Request, mode relay.Mode) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "method not allowed").
			WithHTTPStatus(http.StatusMethodNotAllowed), h.logger)
		return
	}

	var req relay.GenerationRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := req.Validate(); err != nil {
		WriteErr(w, r, err, h.logger)
		return
	}

	// 准入控制在写出响应头之前完成，超限直接返回 503
	if h.slots != nil {
		if !h.slots.TryAcquire(1) {
			if h.rejects != nil {
				h.rejects.RecordStreamRejected()
			}
			WriteError(w, r, types.NewError(types.ErrTooManyStreams, "too many concurrent streams").
				WithHTTPStatus(http.StatusServiceUnavailable).
				WithRetryable(true), h.logger)
			return
		}
		defer h.slots.Release(1)
	}

	sink := newResponseSink(w)

	header := w.Header()
	header.Set("Content-Type", mode.ContentType())
	header.Set("Cache-Control", "no-cache")
	header.Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
	header.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_ = sink.Flush()

	ctx := ctxkeys.WithModel(r.Context(), req.Model)
	outcome := h.runner.Run(ctx, mode, &req, sink)

	requestID, _ := ctxkeys.RequestID(r.Context())
	h.logger.Debug("stream finished",
		zap.String("request_id", requestID),
		zap.String("mode", mode.String()),
		zap.String("state", outcome.State.String()),
		zap.Int("units", outcome.Units),
	)
}

// =============================================================================
// 🔧 响应通道
// =============================================================================

// responseSink 把 http.ResponseWriter 适配为 relay.Sink
type responseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newResponseSink(w http.ResponseWriter) *responseSink {
	rc := http.NewResponseController(w)
	// 流可能持续很久，解除服务器级写超时
	_ = rc.SetWriteDeadline(time.Time{})
	return &responseSink{w: w, rc: rc}
}

func (s *responseSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *responseSink) Flush() error {
	err := s.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}
