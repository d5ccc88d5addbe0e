package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Sentinel-Gate/sessiontrack/internal/config"
)

// tracerName is the instrumentation scope of tracker and sweeper spans.
const tracerName = "github.com/Sentinel-Gate/sessiontrack"

// setupTracing installs the global tracer provider when tracing.output is set.
// The returned shutdown flushes pending spans and closes the output file; it
// is a no-op when tracing is disabled.
func setupTracing(cfg *config.Config, stdout io.Writer) (func(context.Context) error, error) {
	if cfg.Tracing.Output == "" {
		return func(context.Context) error { return nil }, nil
	}

	var (
		w    io.Writer
		file *os.File
	)
	switch {
	case cfg.Tracing.Output == "stdout":
		w = stdout
	default:
		path := parseFileURI(cfg.Tracing.Output)
		if path == "" {
			return nil, fmt.Errorf("invalid tracing output URI: %s", cfg.Tracing.Output)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open tracing output %s: %w", path, err)
		}
		w, file = f, f
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "sessiontrack"),
			attribute.String("service.version", Version),
		)),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if file != nil {
			err = errors.Join(err, file.Close())
		}
		return err
	}, nil
}
