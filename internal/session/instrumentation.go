// ABOUTME: OpenTelemetry tracer and meters for sessions
// ABOUTME: Counts active sessions, started runs and dropped media frames

package session

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/2389/appstream-gateway/internal/session"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)

	activeSessions = upDownCounter("appstream.sessions.active", "Sessions currently accepted")
	runsStarted    = counter("appstream.runs.started", "Execution runs started by sessions")
	mediaDropped   = counter("appstream.media.dropped", "Telephony media frames dropped")
)

func counter(name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

func upDownCounter(name, desc string) metric.Int64UpDownCounter {
	c, err := meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64UpDownCounter{}
	}
	return c
}
