// Package observer provides optional OTEL-based observability for the bot.
//
// It sets up trace and metric providers with OTLP HTTP exporters and exposes
// the instruments the monitor, notifier, and engine client report into.
// Users export to any OTEL-compatible backend by setting standard OTEL env
// vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/dnslin/aria2-tg-bot/internal/observer"

// Instruments holds the OTEL instruments the bot reports into.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	// Counters
	EngineCalls   metric.Int64Counter // by method and outcome
	MessageEdits  metric.Int64Counter
	Notifications metric.Int64Counter

	// Histograms
	TickDuration metric.Float64Histogram
}

// Init sets up OTEL trace and metric providers with OTLP HTTP exporters.
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context, serviceName string) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	meter := otel.Meter(scopeName)

	engineCalls, err := meter.Int64Counter("engine.calls",
		metric.WithDescription("aria2 RPC calls by method and outcome"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}

	messageEdits, err := meter.Int64Counter("telegram.message.edits",
		metric.WithDescription("Tracking-message edits issued by the monitor"),
		metric.WithUnit("{edit}"))
	if err != nil {
		return nil, err
	}

	notifications, err := meter.Int64Counter("notifications.delivered",
		metric.WithDescription("Terminal-outcome notifications delivered"),
		metric.WithUnit("{notification}"))
	if err != nil {
		return nil, err
	}

	tickDuration, err := meter.Float64Histogram("monitor.tick.duration",
		metric.WithDescription("Duration of one monitor pass"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:        otel.Tracer(scopeName),
		Meter:         meter,
		EngineCalls:   engineCalls,
		MessageEdits:  messageEdits,
		Notifications: notifications,
		TickDuration:  tickDuration,
	}, nil
}
