package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Telemetry wraps the whole server with otelhttp so propagation headers from
// upstream callers are honored before Tracing starts route spans.
func Telemetry(next http.Handler) http.Handler {
	return otelhttp.NewMiddleware("horizon-api")(next)
}
