// Package telemetry wires knecht to OpenTelemetry. Init installs OTLP/HTTP
// metric and log providers globally; the Record* helpers in recorder.go use
// whatever providers are installed, so they are no-ops until Init runs.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Environment variables that override the configured endpoints.
const (
	EnvMetricsURL = "KNECHT_OTEL_METRICS_URL"
	EnvLogsURL    = "KNECHT_OTEL_LOGS_URL"
)

// ShutdownFunc flushes and stops the providers installed by Init.
type ShutdownFunc func(context.Context) error

// Endpoints resolves the metrics and logs URLs, preferring the environment
// over the configured values.
func Endpoints(metricsURL, logsURL string) (string, string) {
	if v := os.Getenv(EnvMetricsURL); v != "" {
		metricsURL = v
	}
	if v := os.Getenv(EnvLogsURL); v != "" {
		logsURL = v
	}
	return metricsURL, logsURL
}

// Init builds an OTLP/HTTP exporter for each non-empty URL and registers the
// matching SDK provider globally. With both URLs empty it installs nothing
// and returns a no-op shutdown.
func Init(ctx context.Context, metricsURL, logsURL, version string) (ShutdownFunc, error) {
	if metricsURL == "" && logsURL == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(resourceAttrs(version)...))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	var shutdowns []ShutdownFunc
	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}

	if metricsURL != "" {
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(metricsURL))
		if err != nil {
			return nil, fmt.Errorf("metrics exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	if logsURL != "" {
		exp, err := otlploghttp.New(ctx, otlploghttp.WithEndpointURL(logsURL))
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("logs exporter: %w", err)
		}
		lp := sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
			sdklog.WithResource(res),
		)
		global.SetLoggerProvider(lp)
		shutdowns = append(shutdowns, lp.Shutdown)
	}

	// Instruments bind to the provider current at first use.
	resetInstruments()
	return shutdown, nil
}

// resourceAttrs labels every exported record with the service identity and
// the acting user.
func resourceAttrs(version string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", "knecht"),
	}
	if version != "" {
		attrs = append(attrs, attribute.String("service.version", version))
	}
	if v := os.Getenv("KNECHT_ACTOR"); v != "" {
		attrs = append(attrs, attribute.String("knecht.actor", v))
	}
	return attrs
}
