package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracer_DisabledWithoutEndpoint(t *testing.T) {
	tp, err := InitTracer("payment-ledger", "", zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, tp)
}

func TestInitTracer_WithEndpoint(t *testing.T) {
	tp, err := InitTracer("payment-ledger", "http://localhost:14268/api/traces", zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, tp)
	defer tp.Shutdown(context.Background()) //nolint:errcheck

	_, span := StartSpan(context.Background(), "test.span")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestLedgerOperationsTotal_Counts(t *testing.T) {
	before := testutil.ToFloat64(LedgerOperationsTotal.WithLabelValues("test_op", OutcomeSuccess))
	LedgerOperationsTotal.WithLabelValues("test_op", OutcomeSuccess).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(LedgerOperationsTotal.WithLabelValues("test_op", OutcomeSuccess)))
}
