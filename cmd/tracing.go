// Copyright © 2024 The bpflint authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// startTracing writes spans to the file at path as JSON until the returned
// shutdown function is called.  An empty path disables tracing and returns
// a nil provider.
func startTracing(path string) (trace.TracerProvider, func(context.Context) error, error) {
	if path == "" {
		return nil, func(context.Context) error { return nil }, nil
	}
	f, err := os.Create(path) //nolint:gosec // CLI tool writes user-specified files
	if err != nil {
		return nil, nil, fmt.Errorf("creating trace file: %w", err)
	}
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(f),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName("bpflint"))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), f.Close())
	}
	return tp, shutdown, nil
}
