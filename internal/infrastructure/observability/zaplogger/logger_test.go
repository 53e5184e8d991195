package zaplogger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

func TestLoggerCarriesBoundFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := Wrap(zap.New(core)).With(observability.F("service", "order-service"))

	logger.Info("use_case_done",
		observability.F("order_id", int64(7)),
		observability.F("error", errors.New("boom")),
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	require.Equal(t, "order-service", ctx["service"])
	require.Equal(t, int64(7), ctx["order_id"])
	require.Equal(t, "boom", ctx["error"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Service: "orders", Level: "loud"})
	require.Error(t, err)
}
