package telemetry

import (
	"context"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterRecorderName = "github.com/knechtdev/knecht"
	loggerName        = "knecht"
)

// recorderInstruments holds all lazy-initialized OTel metric instruments.
type recorderInstruments struct {
	storeOpsTotal   metric.Int64Counter
	commandsTotal   metric.Int64Counter
	storeDurationMs metric.Float64Histogram
}

var (
	instMu   sync.Mutex
	instOnce sync.Once
	inst     recorderInstruments
)

func resetInstruments() {
	instMu.Lock()
	defer instMu.Unlock()
	instOnce = sync.Once{}
}

// initInstruments registers the recorder instruments against the current
// global MeterProvider. Called lazily on first use.
func initInstruments() {
	instMu.Lock()
	defer instMu.Unlock()
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(meterRecorderName)

		inst.storeOpsTotal, _ = m.Int64Counter("knecht.store.ops.total",
			metric.WithDescription("Total task store operations"),
		)
		inst.commandsTotal, _ = m.Int64Counter("knecht.commands.total",
			metric.WithDescription("Total CLI command invocations"),
		)
		inst.storeDurationMs, _ = m.Float64Histogram("knecht.store.duration_ms",
			metric.WithDescription("Task store load-apply-persist latency in milliseconds"),
			metric.WithUnit("ms"),
		)
	})
}

// statusStr returns "ok" or "error" depending on whether err is nil.
func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// emit sends an OTel log event with the given body and key-value attributes.
func emit(ctx context.Context, body string, sev otellog.Severity, attrs ...otellog.KeyValue) {
	logger := global.GetLoggerProvider().Logger(loggerName)
	var r otellog.Record
	r.SetBody(otellog.StringValue(body))
	r.SetSeverity(sev)
	r.AddAttributes(attrs...)
	logger.Emit(ctx, r)
}

// maxErrLog caps the error text attached to log records.
const maxErrLog = 1024

// errKV returns a log KeyValue with the error message, or empty string if nil.
func errKV(err error) otellog.KeyValue {
	if err != nil {
		return otellog.String("error", truncate(err.Error(), maxErrLog))
	}
	return otellog.String("error", "")
}

// severity returns SeverityInfo on success, SeverityError on failure.
func severity(err error) otellog.Severity {
	if err != nil {
		return otellog.SeverityError
	}
	return otellog.SeverityInfo
}

// truncate trims s to limit bytes and appends "…" when truncated, without
// splitting a multi-byte rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "…"
}

// RecordStoreOp records one task store operation (metrics + log event).
// op is the Store method name, e.g. "create" or "next".
func RecordStoreOp(ctx context.Context, op string, durationMs float64, err error) {
	initInstruments()
	status := statusStr(err)
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	)
	inst.storeOpsTotal.Add(ctx, 1, attrs)
	inst.storeDurationMs.Record(ctx, durationMs, attrs)
	emit(ctx, "store.op", severity(err),
		otellog.String("op", op),
		otellog.Float64("duration_ms", durationMs),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordCommand records a CLI command invocation (metrics + log event).
// exit is the process exit code.
func RecordCommand(ctx context.Context, name string, exit int) {
	initInstruments()
	status := "ok"
	sev := otellog.SeverityInfo
	if exit != 0 {
		status = "error"
		sev = otellog.SeverityError
	}
	inst.commandsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", name),
			attribute.String("status", status),
		),
	)
	emit(ctx, "cli.command", sev,
		otellog.String("command", name),
		otellog.Int("exit", exit),
	)
}
