package session

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	meterName  = "github.com/sbi-steve/backend/internal/session"
	tracerName = meterName
)

type metrics struct {
	started        metric.Int64Counter
	startFailures  metric.Int64Counter
	finalized      metric.Int64Counter
	finalizeErrors metric.Int64Counter
	active         metric.Int64UpDownCounter
}

func newMetrics(mp metric.MeterProvider) *metrics {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &metrics{}
	// Instrument creation only fails on invalid names; fall back to no-ops.
	var err error
	nm := noop.Meter{}
	if m.started, err = meter.Int64Counter("steve.sessions.started", metric.WithDescription("Recording sessions started")); err != nil {
		m.started, _ = nm.Int64Counter("")
	}
	if m.startFailures, err = meter.Int64Counter("steve.sessions.start_failures", metric.WithDescription("Recording session starts that failed")); err != nil {
		m.startFailures, _ = nm.Int64Counter("")
	}
	if m.finalized, err = meter.Int64Counter("steve.sessions.finalized", metric.WithDescription("Recording sessions finalized, by trigger")); err != nil {
		m.finalized, _ = nm.Int64Counter("")
	}
	if m.finalizeErrors, err = meter.Int64Counter("steve.sessions.finalize_errors", metric.WithDescription("Finalize pipelines that reported an error")); err != nil {
		m.finalizeErrors, _ = nm.Int64Counter("")
	}
	if m.active, err = meter.Int64UpDownCounter("steve.sessions.active", metric.WithDescription("Currently registered recording sessions")); err != nil {
		m.active, _ = nm.Int64UpDownCounter("")
	}
	return m
}

func (m *metrics) sessionStarted(ctx context.Context, registered bool) {
	m.started.Add(ctx, 1)
	if registered {
		m.active.Add(ctx, 1)
	}
}

func (m *metrics) startFailed(ctx context.Context, reason string) {
	m.startFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) sessionFinalized(ctx context.Context, trigger Trigger, failed bool, wasRegistered bool) {
	attrs := metric.WithAttributes(attribute.String("trigger", trigger.String()))
	m.finalized.Add(ctx, 1, attrs)
	if failed {
		m.finalizeErrors.Add(ctx, 1, attrs)
	}
	if wasRegistered {
		m.active.Add(ctx, -1)
	}
}
