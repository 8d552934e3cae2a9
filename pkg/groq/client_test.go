package groq

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturedRequest is the wire shape we assert against.
type capturedRequest struct {
	Model       string        `json:"model"`
	Messages    []capturedMsg `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type capturedMsg struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func newTestServer(t *testing.T, status int, body string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

const successBody = `{
	"id": "chatcmpl-1",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "Entropy always increases."}}],
	"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
}`

func testRequest() Request {
	return Request{
		Model:       DefaultModel,
		Messages:    []Message{{Role: "user", Content: "Explain entropy"}},
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

func TestClient_CompleteSuccess(t *testing.T) {
	var captured capturedRequest
	srv := newTestServer(t, http.StatusOK, successBody, &captured)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Logger: zerolog.Nop()})
	reply, err := c.Complete(context.Background(), "gsk_test", testRequest())

	require.NoError(t, err)
	assert.Equal(t, "Entropy always increases.", reply)

	assert.Equal(t, DefaultModel, captured.Model)
	assert.InDelta(t, DefaultTemperature, captured.Temperature, 0.001)
	assert.Equal(t, DefaultMaxTokens, captured.MaxTokens)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)

	var content string
	require.NoError(t, json.Unmarshal(captured.Messages[0].Content, &content))
	assert.Equal(t, "Explain entropy", content)
}

func TestClient_CompleteSendsBearerKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(successBody))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Logger: zerolog.Nop()})
	_, err := c.Complete(context.Background(), "gsk_secret", testRequest())

	require.NoError(t, err)
	assert.Equal(t, "Bearer gsk_secret", gotAuth)
}

func TestClient_CompleteImageAttachedToFinalMessage(t *testing.T) {
	var captured capturedRequest
	srv := newTestServer(t, http.StatusOK, successBody, &captured)
	defer srv.Close()

	req := Request{
		Model: DefaultVisionModel,
		Messages: []Message{
			{Role: "user", Content: "earlier question"},
			{Role: "assistant", Content: "earlier answer"},
			{Role: "user", Content: "What is in this picture?"},
		},
		Image:       "data:image/png;base64,AAAA",
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}

	c := NewClient(Config{BaseURL: srv.URL, Logger: zerolog.Nop()})
	_, err := c.Complete(context.Background(), "gsk_test", req)
	require.NoError(t, err)

	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "assistant", captured.Messages[1].Role)

	// Earlier user turns stay plain strings.
	var plain string
	require.NoError(t, json.Unmarshal(captured.Messages[0].Content, &plain))
	assert.Equal(t, "earlier question", plain)

	// The final message carries a two-part text+image content block.
	var parts []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url"`
	}
	require.NoError(t, json.Unmarshal(captured.Messages[2].Content, &parts))
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "What is in this picture?", parts[0].Text)
	assert.Equal(t, "image_url", parts[1].Type)
	assert.Equal(t, "data:image/png;base64,AAAA", parts[1].ImageURL.URL)
}

func TestClient_CompleteClassifiesUnauthorized(t *testing.T) {
	srv := newTestServer(t, http.StatusUnauthorized, `{"error": {"message": "invalid api key supplied"}}`, nil)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Logger: zerolog.Nop()})
	_, err := c.Complete(context.Background(), "gsk_bad", testRequest())

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid API key.", apiErr.Message)
	assert.True(t, apiErr.CountsAgainstKey())
}

func TestClient_CompleteClassifiesRateLimit(t *testing.T) {
	srv := newTestServer(t, http.StatusTooManyRequests, `{"error": {"message": "rate limit reached"}}`, nil)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Logger: zerolog.Nop()})
	_, err := c.Complete(context.Background(), "gsk_test", testRequest())

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "Rate limit hit. Try another key.", apiErr.Message)
	assert.True(t, apiErr.CountsAgainstKey())
}

func TestClient_CompleteProviderErrorKeepsMessage(t *testing.T) {
	srv := newTestServer(t, http.StatusInternalServerError, `{"error": {"message": "model is overloaded"}}`, nil)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Logger: zerolog.Nop()})
	_, err := c.Complete(context.Background(), "gsk_test", testRequest())

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "model is overloaded", apiErr.Message)
	assert.False(t, apiErr.CountsAgainstKey())
}

func TestClient_CompleteDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limit reached"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Logger: zerolog.Nop()})
	_, err := c.Complete(context.Background(), "gsk_test", testRequest())

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_CompleteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed before use, connection refused

	c := NewClient(Config{BaseURL: srv.URL, Logger: zerolog.Nop()})
	_, err := c.Complete(context.Background(), "gsk_test", testRequest())

	require.Error(t, err)
	var apiErr *Error
	assert.False(t, errors.As(err, &apiErr))
	assert.False(t, KeyFault(err))
}

func TestClient_CompleteRejectsEmptyRequest(t *testing.T) {
	c := NewClient(Config{Logger: zerolog.Nop()})
	_, err := c.Complete(context.Background(), "gsk_test", Request{Model: DefaultModel})
	assert.Error(t, err)
}

func TestClient_CompleteEmptyChoices(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"id": "chatcmpl-1", "choices": []}`, nil)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Logger: zerolog.Nop()})
	_, err := c.Complete(context.Background(), "gsk_test", testRequest())

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "API error", apiErr.Message)
}
