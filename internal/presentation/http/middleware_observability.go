package httppresentation

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const headerRequestID = "X-Request-ID"

// ObservabilityMiddleware combines:
// - W3C trace context extraction and a server span per request
// - X-Request-ID generation + echo
// - request-scoped logger injection
// - HTTP metrics with the route template as label
// - one access log line per request
func ObservabilityMiddleware(tel observability.Observability) gin.HandlerFunc {
	tracer, base, metrics := observability.Resolve(tel)
	base = base.With(observability.F("component", "http_server"))
	requests := metrics.Counter(observability.MHTTPRequests)
	duration := metrics.Histogram(observability.MHTTPRequestDuration)
	prop := otel.GetTextMapPropagator()

	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx := prop.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.String("http.target", c.Request.URL.Path),
			attribute.String("http.user_agent", c.Request.UserAgent()),
		)
		defer span.End()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(headerRequestID, rid)

		ctx, logger := logctx.Enrich(ctx, base, observability.F("request_id", rid))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		statusLabel := strconv.Itoa(status)
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, statusLabel)
		}

		labels := []observability.Label{
			observability.L("method", c.Request.Method),
			observability.L("route", route),
			observability.L("status", statusLabel),
		}
		requests.Add(1, labels...)
		duration.Observe(time.Since(start).Seconds(), labels...)

		fields := []observability.Field{
			observability.F("method", c.Request.Method),
			observability.F("route", route),
			observability.F("path", c.Request.URL.Path),
			observability.F("status", status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, observability.F("error", c.Errors.String()))
		}
		logger.Info("http_access", fields...)
	}
}
