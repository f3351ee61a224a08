// Package metrics exposes the OpenTelemetry-backed counters the engine,
// breaker and auth packages emit, adapted from the teacher's
// resilience.OTelMetricsCollector (attribute-tagged counters per
// circuit-breaker name) down to a single Meter built directly against
// go.opentelemetry.io/otel/metric rather than the teacher's own
// telemetry.MetricInstruments helper, which lives in a sibling module this
// repo does not otherwise need (see DESIGN.md).
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Collector records poll, retry and breaker events. A nil *Collector is
// valid and records nothing, so components can be constructed without one
// in tests.
type Collector struct {
	polls          metric.Int64Counter
	retries        metric.Int64Counter
	breakerChanges metric.Int64Counter
	breakerReject  metric.Int64Counter
	oauthRefreshes metric.Int64Counter
}

// New builds a Collector against the global otel MeterProvider under the
// instrumentation name "httpsource".
func New() (*Collector, error) {
	meter := otel.Meter("httpsource")

	polls, err := meter.Int64Counter("httpsource.endpoint.polls",
		metric.WithDescription("Polls attempted per endpoint, tagged by outcome"))
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("httpsource.http.retries",
		metric.WithDescription("HTTP retry attempts per endpoint"))
	if err != nil {
		return nil, err
	}
	breakerChanges, err := meter.Int64Counter("httpsource.breaker.state_changes",
		metric.WithDescription("Circuit breaker state transitions per endpoint"))
	if err != nil {
		return nil, err
	}
	breakerReject, err := meter.Int64Counter("httpsource.breaker.rejections",
		metric.WithDescription("Polls skipped because the breaker was open"))
	if err != nil {
		return nil, err
	}
	oauthRefreshes, err := meter.Int64Counter("httpsource.oauth2.refreshes",
		metric.WithDescription("OAuth2 client-credentials token refreshes"))
	if err != nil {
		return nil, err
	}

	return &Collector{
		polls:          polls,
		retries:        retries,
		breakerChanges: breakerChanges,
		breakerReject:  breakerReject,
		oauthRefreshes: oauthRefreshes,
	}, nil
}

func (c *Collector) RecordPoll(ctx context.Context, endpointID string, outcome string, records int) {
	if c == nil {
		return
	}
	c.polls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpointID),
		attribute.String("outcome", outcome),
	))
}

func (c *Collector) RecordRetry(ctx context.Context, endpointID string) {
	if c == nil {
		return
	}
	c.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpointID)))
}

// RecordStateChange satisfies internal/breaker.MetricsCollector.
func (c *Collector) RecordStateChange(name string, from, to string) {
	if c == nil {
		return
	}
	c.breakerChanges.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordRejection satisfies internal/breaker.MetricsCollector.
func (c *Collector) RecordRejection(name string) {
	if c == nil {
		return
	}
	c.breakerReject.Add(context.Background(), 1, metric.WithAttributes(attribute.String("breaker", name)))
}

func (c *Collector) RecordOAuth2Refresh(ctx context.Context, ok bool) {
	if c == nil {
		return
	}
	c.oauthRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", ok)))
}
