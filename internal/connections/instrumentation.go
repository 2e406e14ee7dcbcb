// ABOUTME: OpenTelemetry tracer for the connections package
// ABOUTME: Spans cover one activation each

package connections

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/2389/appstream-gateway/internal/connections"

var tracer = otel.Tracer(scopeName)
