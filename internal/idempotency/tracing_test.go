package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTracedHarness(t *testing.T) (*harness, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return newHarness(t, WithTracerProvider(tp)), recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) string {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestExecuteSpanCarriesDecision(t *testing.T) {
	h, recorder := newTracedHarness(t)
	ctx := context.Background()

	_, err := h.coord.Execute(ctx, "k1", ordersOpts, nil, h.respond(201, "created"))
	require.NoError(t, err)
	_, err = h.coord.Execute(ctx, "k1", ordersOpts, nil, h.respond(201, "created"))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	for _, span := range spans {
		require.Equal(t, "idempotency.execute", span.Name())
		require.Equal(t, "orders", spanAttr(span, "idempotency.prefix"))
		require.Equal(t, codes.Unset, span.Status().Code)
	}
	require.Equal(t, DecisionExecuted, spanAttr(spans[0], "idempotency.decision"))
	require.Equal(t, DecisionReplayed, spanAttr(spans[1], "idempotency.decision"))
}

func TestExecuteSpanRecordsConflictError(t *testing.T) {
	h, recorder := newTracedHarness(t)
	ctx := context.Background()

	locked, err := h.store.TryLock(ctx, DeriveKey("orders", "k1"), "in-flight", time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	_, err = h.coord.Execute(ctx, "k1", ordersOpts, nil, h.respond(201, "created"))
	require.ErrorIs(t, err, ErrConflict)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, DecisionConflict, spanAttr(spans[0], "idempotency.decision"))
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Contains(t, spans[0].Status().Description, "already being processed")
	require.NotEmpty(t, spans[0].Events(), "error should be recorded as a span event")
}
