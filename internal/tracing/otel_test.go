package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitOpenTelemetryIdempotent(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("nexus-test", "0.0.0"))
	require.NoError(t, InitOpenTelemetry("nexus-test", "0.0.0"))

	assert.NoError(t, ShutdownOpenTelemetry(context.Background()))
	// A second shutdown, and one without a provider, are no-ops.
	assert.NoError(t, ShutdownOpenTelemetry(context.Background()))
}

func TestStartSpanPropagatesTraceID(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("nexus-test", "0.0.0"))
	defer func() {
		require.NoError(t, ShutdownOpenTelemetry(context.Background()))
	}()

	ctx, span := StartSpan(context.Background(), "nexus.test", "test.op")
	defer span.End()

	assert.NotEmpty(t, GetTraceID(ctx))
}

func TestStartSpanKeepsExistingTraceID(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("nexus-test", "0.0.0"))
	defer func() {
		require.NoError(t, ShutdownOpenTelemetry(context.Background()))
	}()

	base := WithTraceID(context.Background(), "trace-preset")
	ctx, span := StartSpan(base, "nexus.test", "test.op")
	defer span.End()

	assert.Equal(t, "trace-preset", GetTraceID(ctx))
}
