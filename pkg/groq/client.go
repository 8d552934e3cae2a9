package groq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/pocccco-max/nexusv2/internal/tracing"
)

// Defaults matching the shipped configuration.
const (
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultModel       = "llama-3.3-70b-versatile"
	DefaultVisionModel = "llama-3.2-90b-vision-preview"

	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
)

// Message is one turn of the outgoing request.
type Message struct {
	Role    string
	Content string
}

// Request is a single completion call. When Image is set (a data URI), it is
// attached to the final message as a two-part text+image content block.
type Request struct {
	Model       string
	Messages    []Message
	Image       string
	Temperature float64
	MaxTokens   int
}

// Completer is the provider surface the send pipeline depends on. The
// acquired key is passed per call; the client holds no credentials.
type Completer interface {
	Complete(ctx context.Context, secret string, req Request) (string, error)
}

// Client calls the Groq chat completions endpoint.
type Client struct {
	baseURL string
	logger  zerolog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Logger  zerolog.Logger
}

// NewClient creates a Groq client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		logger:  cfg.Logger,
	}
}

// Complete performs exactly one completion call with the given key as bearer
// authorization. Errors are classified: *Error for non-2xx responses, a
// wrapped transport error otherwise.
func (c *Client) Complete(ctx context.Context, secret string, req Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("request has no messages")
	}

	// Retries stay off: callers decide how to react to a failed call,
	// typically by rotating to another key on the next send.
	client := openai.NewClient(
		option.WithAPIKey(secret),
		option.WithBaseURL(c.baseURL),
		option.WithMaxRetries(0),
	)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for i, m := range req.Messages {
		last := i == len(req.Messages)-1
		switch {
		case m.Role == "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		case last && req.Image != "":
			messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(m.Content),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: req.Image,
				}),
			}))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
	}

	logger := tracing.LoggerFromContext(ctx, c.logger)
	start := time.Now()

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		classified := classify(err)
		logger.Warn().
			Str("model", req.Model).
			Dur("duration", time.Since(start)).
			Err(classified).
			Msg("Completion call failed")
		return "", classified
	}

	if len(resp.Choices) == 0 {
		return "", &Error{Status: http.StatusOK, Message: "API error"}
	}

	logger.Debug().
		Str("model", req.Model).
		Dur("duration", time.Since(start)).
		Int64("promptTokens", resp.Usage.PromptTokens).
		Int64("completionTokens", resp.Usage.CompletionTokens).
		Msg("Completion call succeeded")

	return resp.Choices[0].Message.Content, nil
}

// classify maps SDK errors onto the pipeline's taxonomy. Non-2xx responses
// become *Error with the provider's message; anything without a response is
// a transport failure and left as a wrapped error.
func classify(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("network error: %w", err)
	}

	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		return &Error{Status: apiErr.StatusCode, Message: "Invalid API key."}
	case http.StatusTooManyRequests:
		return &Error{Status: apiErr.StatusCode, Message: "Rate limit hit. Try another key."}
	default:
		message := apiErr.Message
		if message == "" {
			message = "API error"
		}
		return &Error{Status: apiErr.StatusCode, Message: message}
	}
}
