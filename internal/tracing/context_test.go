package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithChatID(ctx, "chat-1")
	ctx = WithRequestID(ctx, "req-1")

	assert.Equal(t, "trace-1", GetTraceID(ctx))
	assert.Equal(t, "chat-1", GetChatID(ctx))
	assert.Equal(t, "req-1", GetRequestID(ctx))

	tc := FromContext(ctx)
	assert.Equal(t, "trace-1", tc.TraceID)
	assert.Equal(t, "chat-1", tc.ChatID)
	assert.Equal(t, "req-1", tc.RequestID)
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetChatID(ctx))
	assert.Empty(t, GetRequestID(ctx))
}

func TestNewContextSkipsEmptyFields(t *testing.T) {
	ctx := NewContext(context.Background(), &TraceContext{ChatID: "chat-1"})
	assert.Empty(t, GetTraceID(ctx))
	assert.Equal(t, "chat-1", GetChatID(ctx))
}

func TestNewRequestContext(t *testing.T) {
	a := NewRequestContext(context.Background())
	b := NewRequestContext(context.Background())

	assert.NotEmpty(t, GetTraceID(a))
	assert.NotEqual(t, GetTraceID(a), GetTraceID(b))
}
