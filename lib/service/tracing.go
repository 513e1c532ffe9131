// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracingConfig configures InitTracing.
type TracingConfig struct {
	// Exporter is "none" or "stdout".
	Exporter string

	// Writer receives stdout spans. Defaults to os.Stdout.
	Writer io.Writer

	ServiceName    string
	ServiceVersion string
	Environment    string
}

// InitTracing installs the global tracer provider selected by
// config.Exporter and returns its shutdown function. With "none" the
// global no-op provider is left in place and shutdown does nothing.
func InitTracing(config TracingConfig) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var options []stdouttrace.Option
	switch config.Exporter {
	case "", "none":
		return noop, nil
	case "stdout":
		options = append(options, stdouttrace.WithPrettyPrint())
		if config.Writer != nil {
			options = append(options, stdouttrace.WithWriter(config.Writer))
		}
	default:
		return noop, fmt.Errorf("unknown trace exporter %q", config.Exporter)
	}

	exporter, err := stdouttrace.New(options...)
	if err != nil {
		return noop, fmt.Errorf("creating stdout trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			"",
			attribute.String("service.name", config.ServiceName),
			attribute.String("service.version", config.ServiceVersion),
			attribute.String("deployment.environment", config.Environment),
		)),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}
