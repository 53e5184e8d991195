package oteltrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

type tracer struct{ t trace.Tracer }

// New returns a tracer from tp, or from the global provider when tp is nil.
func New(tp trace.TracerProvider, name string) observability.Tracer {
	if name == "" {
		name = "minishop-orders"
	}
	if tp == nil {
		return &tracer{t: otel.Tracer(name)}
	}
	return &tracer{t: tp.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
