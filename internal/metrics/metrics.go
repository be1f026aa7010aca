package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"echogate/internal/config"
)

const meterName = "echogate"

var (
	attrModel  = attribute.Key("echogate.model")
	attrStream = attribute.Key("echogate.stream")
	attrStatus = attribute.Key("echogate.status")
	attrCode   = attribute.Key("echogate.code")
	attrOp     = attribute.Key("echogate.op")
)

// Recorder owns the gateway's instruments.
type Recorder struct {
	provider *sdkmetric.MeterProvider

	requests       metric.Int64Counter
	authRejections metric.Int64Counter
	logWrites      metric.Int64Counter
	duration       metric.Float64Histogram
}

// Setup builds a Recorder. When metrics are disabled the instruments are no-ops.
func Setup(cfg config.MetricsConfig) (*Recorder, error) {
	if !cfg.Enabled {
		return New(noop.NewMeterProvider().Meter(meterName))
	}

	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	interval := time.Duration(cfg.Interval) * time.Second
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)

	rec, err := New(provider.Meter(meterName))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	rec.provider = provider
	return rec, nil
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error

	r.requests, err = meter.Int64Counter(
		"echogate.chat.requests",
		metric.WithDescription("Chat completion requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	r.authRejections, err = meter.Int64Counter(
		"echogate.auth.rejections",
		metric.WithDescription("Requests rejected by the bearer token gate"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	r.logWrites, err = meter.Int64Counter(
		"echogate.logs.writes",
		metric.WithDescription("Chat log inserts and deletes by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	r.duration, err = meter.Float64Histogram(
		"echogate.chat.duration",
		metric.WithDescription("Chat completion handling time in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RecordChat records one chat completion. status is "ok" or an error code.
func (r *Recorder) RecordChat(ctx context.Context, model string, stream bool, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attrModel.String(model), attrStream.Bool(stream), attrStatus.String(status))
	r.requests.Add(ctx, 1, attrs)
	r.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// AuthRejected counts a rejected request by error code.
func (r *Recorder) AuthRejected(code string) {
	if r == nil {
		return
	}
	r.authRejections.Add(context.Background(), 1, metric.WithAttributes(attrCode.String(code)))
}

// RecordLogWrite counts a persistence operation ("insert" or "delete").
func (r *Recorder) RecordLogWrite(ctx context.Context, op string, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.logWrites.Add(ctx, 1, metric.WithAttributes(attrOp.String(op), attrStatus.String(status)))
}

// Shutdown flushes pending exports.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}
