package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// decodeNotice 是解码失败时插入输出流的提示
const decodeNotice = "Failed to decode response"

// Sink 是调用方的响应通道。每个单元写入后立即 Flush。
type Sink interface {
	io.Writer
	Flush() error
}

// Opener 打开一次上游流，*UpstreamClient 是默认实现
type Opener interface {
	Open(ctx context.Context, req *GenerationRequest) (*Stream, error)
}

// Observer 接收每次转发的开始与结束事件，用于指标统计
type Observer interface {
	StreamStarted(mode Mode)
	StreamFinished(outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) StreamStarted(Mode)     {}
func (nopObserver) StreamFinished(Outcome) {}

// multiObserver 按顺序通知多个观察者
type multiObserver []Observer

func (m multiObserver) StreamStarted(mode Mode) {
	for _, o := range m {
		o.StreamStarted(mode)
	}
}

func (m multiObserver) StreamFinished(outcome Outcome) {
	for _, o := range m {
		o.StreamFinished(outcome)
	}
}

// Observers 合并多个观察者，nil 会被跳过
func Observers(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return nopObserver{}
	case 1:
		return out[0]
	}
	return out
}

// Options 配置转发管线
type Options struct {
	// ChunkSize 是重新分块的目标字符数
	ChunkSize int
	// Profiles 是 paced 模式的档位间隔
	Profiles Profiles
	// PassthroughDelay 是 passthrough 模式的固定间隔
	PassthroughDelay time.Duration
}

// DefaultOptions 返回 chunk 3、50/20/10ms 档位、透传 10ms
func DefaultOptions() Options {
	return Options{
		ChunkSize:        3,
		Profiles:         DefaultProfiles(),
		PassthroughDelay: 10 * time.Millisecond,
	}
}

// Relay 把上游流按模式转换后写入调用方。
// 每次 Run 拥有独立的连接、缓冲与节奏器，Relay 本身无共享可变状态。
type Relay struct {
	upstream Opener
	opts     Options
	observer Observer
	tracer   trace.Tracer
	logger   *zap.Logger
}

// Option 修改 Relay
type Option func(*Relay)

// WithObserver 设置事件观察者
func WithObserver(o Observer) Option {
	return func(r *Relay) {
		if o != nil {
			r.observer = o
		}
	}
}

// New 创建 Relay
func New(upstream Opener, opts Options, logger *zap.Logger, options ...Option) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ChunkSize < 1 {
		opts.ChunkSize = 1
	}
	r := &Relay{
		upstream: upstream,
		opts:     opts,
		observer: nopObserver{},
		tracer:   otel.Tracer("github.com/BaSui01/llmrelay/relay"),
		logger:   logger.With(zap.String("component", "relay")),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Run 执行一次转发并返回最终结果。
// 非 2xx 或连接失败时向 sink 写入一行 {"error":"API Error: ..."}，不返回 HTTP 层错误。
func (r *Relay) Run(ctx context.Context, mode Mode, req *GenerationRequest, sink Sink) Outcome {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "relay."+mode.String(), trace.WithAttributes(
		attribute.String("relay.mode", mode.String()),
		attribute.String("relay.model", req.Model),
	))
	defer span.End()

	r.observer.StreamStarted(mode)

	e := &execution{
		relay:  r,
		mode:   mode,
		sink:   sink,
		state:  StateIdle,
		logger: r.logger.With(zap.String("mode", mode.String()), zap.String("model", req.Model)),
	}
	out := e.execute(ctx, req)
	out.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("relay.outcome", out.State.String()),
		attribute.Int("relay.units", out.Units),
		attribute.Int("relay.decode_errors", out.DecodeErrors),
	)
	if out.State == StateUpstreamFailed {
		span.SetStatus(codes.Error, fmt.Sprint(out.Err))
	}

	r.observer.StreamFinished(out)

	fields := []zap.Field{
		zap.String("outcome", out.State.String()),
		zap.Int("units", out.Units),
		zap.Int("bytes", out.Bytes),
		zap.Int("decode_errors", out.DecodeErrors),
		zap.Bool("done", out.Done),
		zap.Duration("duration", out.Duration),
	}
	switch {
	case out.State == StateUpstreamFailed:
		e.logger.Warn("relay stream failed", append(fields, zap.Int("status", out.StatusCode), zap.Error(out.Err))...)
	case out.Truncated:
		e.logger.Warn("relay stream truncated", append(fields, zap.Error(out.Err))...)
	default:
		e.logger.Info("relay stream finished", fields...)
	}
	return out
}

// execution 是单次 Run 的状态，不跨请求共享
type execution struct {
	relay  *Relay
	mode   Mode
	sink   Sink
	state  State
	logger *zap.Logger

	units        int
	bytes        int
	decodeErrors int
	// done 表示已收到后端的 done:true
	done bool
}

func (e *execution) transition(to State) {
	e.logger.Debug("relay state", zap.Stringer("from", e.state), zap.Stringer("to", to))
	e.state = to
}

func (e *execution) execute(ctx context.Context, req *GenerationRequest) Outcome {
	e.transition(StateConnecting)
	stream, err := e.relay.upstream.Open(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return e.finish(StateCancelled, ctx.Err())
		}
		out := e.finish(StateUpstreamFailed, err)
		var se *StatusError
		if errors.As(err, &se) {
			out.StatusCode = se.StatusCode
		}
		_ = e.notice(apiErrorMessage(err))
		return out
	}
	defer stream.Close()

	e.transition(StateStreaming)

	switch e.mode {
	case ModePassthrough:
		err = e.passthrough(ctx, stream)
	case ModeSimple:
		err = e.simple(ctx, stream)
	default:
		err = e.paced(ctx, stream, req.Profile())
	}
	return e.conclude(ctx, stream, err)
}

// paced: 解码 → 重新分块 → 节奏输出，结束时冲刷缓冲区
func (e *execution) paced(ctx context.Context, stream *Stream, profile Profile) error {
	chunker := NewRechunker(e.relay.opts.ChunkSize)
	pacer := NewPacer(e.relay.opts.Profiles.Delay(profile))

	err := e.pump(ctx, stream, func(line []byte) error {
		switch d := Decode(line).(type) {
		case Fragment:
			e.done = e.done || d.Done
			for _, unit := range chunker.Push(d.Text) {
				if err := e.emit(ctx, pacer, []byte(unit)); err != nil {
					return err
				}
			}
		case DecodeError:
			e.decodeFailed(d)
			return e.notice(decodeNotice)
		}
		return nil
	})
	if err != nil {
		if n := chunker.Buffered(); n > 0 {
			e.logger.Debug("discarding buffered text", zap.Int("chars", n))
		}
		return err
	}
	if tail := chunker.Flush(); tail != "" {
		return e.emit(ctx, pacer, []byte(tail))
	}
	return nil
}

// passthrough: 原样转发每一行，固定间隔；不合法的行只计数
func (e *execution) passthrough(ctx context.Context, stream *Stream) error {
	pacer := NewPacer(e.relay.opts.PassthroughDelay)
	return e.pump(ctx, stream, func(line []byte) error {
		if !json.Valid(line) {
			e.decodeFailed(DecodeError{Raw: line, Err: errNotObject})
		}
		unit := make([]byte, 0, len(line)+1)
		unit = append(unit, line...)
		unit = append(unit, '\n')
		return e.emit(ctx, pacer, unit)
	})
}

// simple: 解码后立即输出文本
func (e *execution) simple(ctx context.Context, stream *Stream) error {
	return e.pump(ctx, stream, func(line []byte) error {
		switch d := Decode(line).(type) {
		case Fragment:
			e.done = e.done || d.Done
			if d.Text != "" {
				return e.emit(ctx, nil, []byte(d.Text))
			}
		case DecodeError:
			e.decodeFailed(d)
			return e.notice(decodeNotice)
		}
		return nil
	})
}

// pump 逐行读取直到上游结束；ctx 取消或 handle 出错时立即返回
func (e *execution) pump(ctx context.Context, stream *Stream, handle func([]byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-stream.Lines():
			if !ok {
				return nil
			}
			if err := handle(line); err != nil {
				return err
			}
		}
	}
}

// emit 等待节奏器后写出一个单元。任何写入失败都视为调用方已断开。
func (e *execution) emit(ctx context.Context, pacer *Pacer, unit []byte) error {
	if pacer != nil {
		if err := pacer.Wait(ctx); err != nil {
			return err
		}
	}
	if err := e.write(ctx, unit); err != nil {
		return err
	}
	e.units++
	e.bytes += len(unit)
	return nil
}

func (e *execution) notice(message string) error {
	line, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return err
	}
	return e.write(context.Background(), append(line, '\n'))
}

func (e *execution) write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := e.sink.Write(p); err != nil {
		return fmt.Errorf("write to caller: %w", err)
	}
	if err := e.sink.Flush(); err != nil {
		return fmt.Errorf("flush to caller: %w", err)
	}
	return nil
}

func (e *execution) decodeFailed(d DecodeError) {
	e.decodeErrors++
	e.logger.Debug("malformed upstream line",
		zap.Int("count", e.decodeErrors),
		zap.ByteString("line", truncate(d.Raw, 256)),
		zap.Error(d.Err),
	)
}

func (e *execution) conclude(ctx context.Context, stream *Stream, err error) Outcome {
	if err != nil || ctx.Err() != nil {
		if err == nil {
			err = ctx.Err()
		}
		return e.finish(StateCancelled, err)
	}

	if serr := stream.Err(); serr != nil {
		if e.done {
			// 生成已经结束，之后的读取错误不影响结果
			e.logger.Debug("upstream error after done", zap.Error(serr))
			return e.finish(StateCompleted, nil)
		}
		if stream.LineCount() == 0 {
			out := e.finish(StateUpstreamFailed, serr)
			_ = e.notice(apiErrorMessage(serr))
			return out
		}
		out := e.finish(StateCompleted, serr)
		out.Truncated = true
		return out
	}
	return e.finish(StateCompleted, nil)
}

func (e *execution) finish(state State, err error) Outcome {
	e.transition(state)
	return Outcome{
		Mode:         e.mode,
		State:        state,
		Err:          err,
		Units:        e.units,
		Bytes:        e.bytes,
		DecodeErrors: e.decodeErrors,
		Done:         e.done,
	}
}

func apiErrorMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("API Error: %d", se.StatusCode)
	}
	return "API Error: " + err.Error()
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
