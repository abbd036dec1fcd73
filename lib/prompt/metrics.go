// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bureau-foundation/gatekeeper/lib/document"
)

const meterName = "github.com/bureau-foundation/gatekeeper/lib/prompt"

// Metric names.
const (
	MetricPromptsCreated      = "gatekeeper.prompt.created"
	MetricPromptsDeleted      = "gatekeeper.prompt.deleted"
	MetricTamperRecoveries    = "gatekeeper.prompt.tamper_recoveries"
	MetricIgnoredInteractions = "gatekeeper.prompt.ignored_interactions"
)

type metrics struct {
	kind    attribute.KeyValue
	created metric.Int64Counter
	deleted metric.Int64Counter
	tamper  metric.Int64Counter
	ignored metric.Int64Counter
}

func newMetrics(meter metric.Meter, kind document.Kind) (*metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m := &metrics{kind: attribute.String("kind", string(kind))}

	var err error
	if m.created, err = meter.Int64Counter(MetricPromptsCreated,
		metric.WithDescription("Prompt messages posted."),
	); err != nil {
		return nil, err
	}
	if m.deleted, err = meter.Int64Counter(MetricPromptsDeleted,
		metric.WithDescription("Messages deleted from prompt channels."),
	); err != nil {
		return nil, err
	}
	if m.tamper, err = meter.Int64Counter(MetricTamperRecoveries,
		metric.WithDescription("Prompts re-posted after a deletion or content-stripping edit."),
	); err != nil {
		return nil, err
	}
	if m.ignored, err = meter.Int64Counter(MetricIgnoredInteractions,
		metric.WithDescription("Actions that changed nothing: stale, malformed, or declined by the adapter."),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) add(ctx context.Context, counter metric.Int64Counter) {
	counter.Add(ctx, 1, metric.WithAttributes(m.kind))
}
