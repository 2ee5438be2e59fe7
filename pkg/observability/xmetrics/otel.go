package xmetrics

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultInstrumentationName = "github.com/omeyang/xmemo/xmetrics"
	unknownValue               = "unknown"

	// MetricOperationTotal 是操作计数，按 component/operation/status/outcome 分组
	MetricOperationTotal = "xmemo.operation.total"
	// MetricOperationDuration 是操作耗时（秒）
	MetricOperationDuration = "xmemo.operation.duration"
	// MetricOperationInflight 是已开始未结束的操作数，按 component/operation 分组
	MetricOperationInflight = "xmemo.operation.inflight"
)

type otelConfig struct {
	instrumentationName string
	tracerProvider      trace.TracerProvider
	meterProvider       metric.MeterProvider
}

// Option 配置 [NewOTelObserver]
type Option func(*otelConfig)

// WithInstrumentationName 设置 instrumentation scope 名称，空值被忽略
func WithInstrumentationName(name string) Option {
	return func(cfg *otelConfig) {
		if name != "" {
			cfg.instrumentationName = name
		}
	}
}

// WithTracerProvider 设置 TracerProvider，nil 被忽略
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(cfg *otelConfig) {
		if provider != nil {
			cfg.tracerProvider = provider
		}
	}
}

// WithMeterProvider 设置 MeterProvider，nil 被忽略
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(cfg *otelConfig) {
		if provider != nil {
			cfg.meterProvider = provider
		}
	}
}

type otelObserver struct {
	tracer   trace.Tracer
	total    metric.Int64Counter
	duration metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

// NewOTelObserver 创建基于 OpenTelemetry 的 Observer，未指定的 provider 取 otel 全局值。
func NewOTelObserver(opts ...Option) (Observer, error) {
	cfg := &otelConfig{
		instrumentationName: defaultInstrumentationName,
		tracerProvider:      otel.GetTracerProvider(),
		meterProvider:       otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	meter := cfg.meterProvider.Meter(cfg.instrumentationName)
	o := &otelObserver{tracer: cfg.tracerProvider.Tracer(cfg.instrumentationName)}
	var err error
	if o.total, err = meter.Int64Counter(MetricOperationTotal,
		metric.WithDescription("store operations"), metric.WithUnit("{operation}")); err != nil {
		return nil, fmt.Errorf("xmetrics: create %s: %w", MetricOperationTotal, err)
	}
	if o.duration, err = meter.Float64Histogram(MetricOperationDuration,
		metric.WithDescription("store operation duration"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("xmetrics: create %s: %w", MetricOperationDuration, err)
	}
	if o.inflight, err = meter.Int64UpDownCounter(MetricOperationInflight,
		metric.WithDescription("store operations in flight"), metric.WithUnit("{operation}")); err != nil {
		return nil, fmt.Errorf("xmetrics: create %s: %w", MetricOperationInflight, err)
	}
	return o, nil
}

func (o *otelObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	component := orUnknown(opts.Component)
	operation := orUnknown(opts.Operation)
	base := []attribute.KeyValue{
		attribute.String("component", component),
		attribute.String("operation", operation),
	}

	ctx, span := o.tracer.Start(ctx, component+"."+operation,
		trace.WithSpanKind(mapSpanKind(opts.Kind)),
		trace.WithAttributes(base...),
		trace.WithAttributes(attrsToOTel(opts.Attrs)...),
	)
	s := &otelSpan{
		span:     span,
		observer: o,
		ctx:      context.WithoutCancel(ctx),
		base:     base,
		start:    time.Now(),
	}
	o.inflight.Add(s.ctx, 1, metric.WithAttributes(base...))
	return ctx, s
}

type otelSpan struct {
	span     trace.Span
	observer *otelObserver
	// ctx 不随请求取消，保证 End 时指标仍能记录
	ctx     context.Context
	base    []attribute.KeyValue
	start   time.Time
	endOnce sync.Once
}

// End 幂等，只有第一次调用记录指标
func (s *otelSpan) End(result Result) {
	s.endOnce.Do(func() {
		status := resolveStatus(result)
		outcome := orUnknown(result.Outcome)
		s.finishSpan(result, status, outcome)
		s.record(status, outcome)
	})
}

func (s *otelSpan) finishSpan(result Result, status Status, outcome string) {
	if result.Err != nil {
		s.span.RecordError(result.Err)
	}
	switch {
	case status != StatusError:
		s.span.SetStatus(codes.Ok, "")
	case result.Err != nil:
		s.span.SetStatus(codes.Error, result.Err.Error())
	default:
		s.span.SetStatus(codes.Error, "operation failed")
	}
	s.span.SetAttributes(attribute.String("outcome", outcome))
	s.span.SetAttributes(attrsToOTel(result.Attrs)...)
	s.span.End()
}

func (s *otelSpan) record(status Status, outcome string) {
	o := s.observer
	o.inflight.Add(s.ctx, -1, metric.WithAttributes(s.base...))

	attrs := append(slices.Clip(s.base),
		attribute.String("status", string(status)),
		attribute.String("outcome", outcome),
	)
	set := metric.WithAttributeSet(attribute.NewSet(attrs...))
	o.total.Add(s.ctx, 1, set)
	o.duration.Record(s.ctx, time.Since(s.start).Seconds(), set)
}

func orUnknown(s string) string {
	if s == "" {
		return unknownValue
	}
	return s
}

func resolveStatus(result Result) Status {
	if result.Status != "" {
		return result.Status
	}
	if result.Err != nil {
		return StatusError
	}
	return StatusOK
}

func mapSpanKind(kind Kind) trace.SpanKind {
	switch kind {
	case KindServer:
		return trace.SpanKindServer
	case KindClient:
		return trace.SpanKindClient
	default:
		return trace.SpanKindInternal
	}
}

func attrsToOTel(attrs []Attr) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	converted := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Key == "" || attr.Value == nil {
			continue
		}
		converted = append(converted, toKeyValue(attr))
	}
	return converted
}

func toKeyValue(attr Attr) attribute.KeyValue {
	switch v := attr.Value.(type) {
	case string:
		return attribute.String(attr.Key, v)
	case bool:
		return attribute.Bool(attr.Key, v)
	case int:
		return attribute.Int(attr.Key, v)
	case int64:
		return attribute.Int64(attr.Key, v)
	case float64:
		return attribute.Float64(attr.Key, v)
	case time.Duration:
		return attribute.Int64(attr.Key, v.Nanoseconds())
	default:
		return attribute.String(attr.Key, fmt.Sprint(v))
	}
}
