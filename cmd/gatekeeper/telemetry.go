// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/bureau-foundation/gatekeeper/lib/config"
	"github.com/bureau-foundation/gatekeeper/lib/version"
)

// meterName scopes the instruments the binary hands to its services.
const meterName = "github.com/bureau-foundation/gatekeeper"

// newMeterProvider builds a provider that pushes to the configured
// OTLP collector and installs it as the global provider. It returns
// nil when no collector is configured.
func newMeterProvider(ctx context.Context, cfg *config.Config) (*sdkmetric.MeterProvider, error) {
	if cfg.Metrics.OTLPEndpoint == "" {
		return nil, nil
	}

	options := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Metrics.OTLPEndpoint),
	}
	if cfg.Metrics.Insecure {
		options = append(options, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(serviceResource(cfg.Environment)),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.Metrics.Interval),
		)),
	)
	otel.SetMeterProvider(provider)
	return provider, nil
}

func serviceResource(environment config.Environment) *resource.Resource {
	return resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName("gatekeeper"),
		semconv.ServiceVersion(version.Info()),
		semconv.DeploymentEnvironment(string(environment)),
	)
}
