// Package telemetry installs the process-wide OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterFile   = "file"
)

// TraceFile is the span log written by the file exporter inside the run dir.
const TraceFile = "traces.jsonl"

type Config struct {
	Exporter string
	// RunDir receives TraceFile when Exporter is "file".
	RunDir string
	// SampleRatio is the fraction of root spans kept; <= 0 or >= 1 keeps all.
	SampleRatio float64
}

// Shutdown flushes buffered spans and releases the exporter.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup builds a batching tracer provider for cfg and installs it globally.
// With ExporterNone (or an empty exporter) the global no-op provider is kept.
func Setup(cfg Config) (Shutdown, error) {
	var w io.Writer
	var closer io.Closer
	switch cfg.Exporter {
	case "", ExporterNone:
		return noop, nil
	case ExporterStdout:
		w = os.Stdout
	case ExporterFile:
		if cfg.RunDir == "" {
			return nil, fmt.Errorf("telemetry: file exporter needs a run dir")
		}
		f, err := os.OpenFile(filepath.Join(cfg.RunDir, TraceFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("telemetry: open trace file: %w", err)
		}
		w, closer = f, f
	default:
		return nil, fmt.Errorf("telemetry: unknown exporter %q", cfg.Exporter)
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("telemetry: exporter: %w", err)
	}
	tp := NewProvider(exp, cfg.SampleRatio)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if closer != nil {
			if cerr := closer.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}, nil
}

// NewProvider batches spans into exp, sampling root spans at ratio.
func NewProvider(exp sdktrace.SpanExporter, ratio float64) *sdktrace.TracerProvider {
	sampler := sdktrace.AlwaysSample()
	if ratio > 0 && ratio < 1 {
		sampler = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
}
