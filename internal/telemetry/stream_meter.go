package telemetry

import (
	"context"

	"github.com/BaSui01/llmrelay/relay"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/BaSui01/llmrelay/relay"

// StreamMeter 将转发事件记录为 OTel 指标，实现 relay.Observer
type StreamMeter struct {
	active   metric.Int64UpDownCounter
	finished metric.Int64Counter
	duration metric.Float64Histogram
	units    metric.Int64Counter
}

// NewStreamMeter 使用 provider 创建仪表，provider 为 nil 时使用全局 MeterProvider
func NewStreamMeter(provider metric.MeterProvider) (*StreamMeter, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	active, err := meter.Int64UpDownCounter("llmrelay.relay.streams.active",
		metric.WithDescription("Relay streams currently in flight"))
	if err != nil {
		return nil, err
	}
	finished, err := meter.Int64Counter("llmrelay.relay.streams",
		metric.WithDescription("Finished relay streams"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("llmrelay.relay.stream.duration",
		metric.WithDescription("Relay stream duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	units, err := meter.Int64Counter("llmrelay.relay.units",
		metric.WithDescription("Output units written to callers"))
	if err != nil {
		return nil, err
	}

	return &StreamMeter{active: active, finished: finished, duration: duration, units: units}, nil
}

// StreamStarted 流开始
func (m *StreamMeter) StreamStarted(mode relay.Mode) {
	m.active.Add(context.Background(), 1, metric.WithAttributes(attribute.String("mode", mode.String())))
}

// StreamFinished 流结束
func (m *StreamMeter) StreamFinished(o relay.Outcome) {
	ctx := context.Background()
	modeAttr := attribute.String("mode", o.Mode.String())

	m.active.Add(ctx, -1, metric.WithAttributes(modeAttr))
	m.finished.Add(ctx, 1, metric.WithAttributes(
		modeAttr,
		attribute.String("state", o.State.String()),
		attribute.Bool("truncated", o.Truncated),
	))
	m.duration.Record(ctx, o.Duration.Seconds(), metric.WithAttributes(modeAttr))
	m.units.Add(ctx, int64(o.Units), metric.WithAttributes(modeAttr))
}
