// =============================================================================
// 📡 LLMRelay OpenTelemetry 初始化
// =============================================================================
// 关闭时不创建导出器，全局 provider 保持 noop；relay 的 StreamMeter 同样挂在
// noop MeterProvider 上，调用方无需区分两种情况。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/BaSui01/llmrelay/config"
	"github.com/BaSui01/llmrelay/internal/tlsutil"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
	"google.golang.org/grpc/credentials"
)

// BuildInfo 描述当前进程，写入 OTel resource
type BuildInfo struct {
	Version    string
	GitCommit  string
	BackendURL string
}

// Providers 持有 SDK 的 TracerProvider、MeterProvider 以及 relay 的 StreamMeter。
// 遥测关闭时 tp/mp 为 nil，Shutdown 不做任何事。
type Providers struct {
	tp      *sdktrace.TracerProvider
	mp      *sdkmetric.MeterProvider
	streams *StreamMeter
}

// Enabled 表示是否安装了真实导出器
func (p *Providers) Enabled() bool {
	return p != nil && p.tp != nil
}

// StreamMeter 返回记录转发事件的 relay.Observer
func (p *Providers) StreamMeter() *StreamMeter {
	if p == nil {
		return nil
	}
	return p.streams
}

// Init 初始化 OTel SDK。cfg.Enabled 为 false 时返回 noop Providers，不连接任何外部服务。
func Init(cfg config.TelemetryConfig, build BuildInfo, logger *zap.Logger) (*Providers, error) {
	if !cfg.Enabled {
		streams, err := NewStreamMeter(nil)
		if err != nil {
			return nil, fmt.Errorf("create stream meter: %w", err)
		}
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{streams: streams}, nil
	}

	ctx := context.Background()

	res, err := newResource(ctx, cfg.ServiceName, build)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	} else {
		creds := credentials.NewTLS(tlsutil.DefaultTLSConfig())
		traceOpts = append(traceOpts, otlptracegrpc.WithTLSCredentials(creds))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithTLSCredentials(creds))
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	// 流式请求可能持续数分钟，采样按父 span 决定，根 span 按比例采样
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.ExportInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.ExportInterval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	streams, err := NewStreamMeter(mp)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, fmt.Errorf("create stream meter: %w", err)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.Bool("insecure", cfg.Insecure),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.Duration("export_interval", cfg.ExportInterval),
	)

	return &Providers{tp: tp, mp: mp, streams: streams}, nil
}

// newResource 描述服务实例。每个进程一个 instance id，空字段不写入。
func newResource(ctx context.Context, serviceName string, build BuildInfo) (*resource.Resource, error) {
	version := build.Version
	if version == "" {
		version = buildVersion()
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version),
		semconv.ServiceInstanceIDKey.String(uuid.NewString()),
	}
	if build.GitCommit != "" {
		attrs = append(attrs, attribute.String("llmrelay.git_commit", build.GitCommit))
	}
	if build.BackendURL != "" {
		attrs = append(attrs, attribute.String("llmrelay.backend.url", build.BackendURL))
	}
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

// Shutdown 导出剩余数据并关闭导出器。对 noop Providers 与 nil 安全。
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// buildVersion 从构建信息中读取模块版本，取不到时为 "dev"
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
