package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pocccco-max/nexusv2/internal/observability"
	"github.com/pocccco-max/nexusv2/internal/tracing"
	"github.com/pocccco-max/nexusv2/pkg/chat"
	"github.com/pocccco-max/nexusv2/pkg/groq"
	"github.com/pocccco-max/nexusv2/pkg/keypool"
)

// historyWindow bounds how many trailing messages are sent to the provider.
// Older history stays in the store but never leaves the process.
const historyWindow = 20

var (
	// ErrBusy means a send is already in flight on the chat. The request is
	// rejected, not queued; callers may simply drop it.
	ErrBusy = errors.New("send already in progress")

	// ErrEmptyMessage means the send carried neither text nor an image.
	ErrEmptyMessage = errors.New("nothing to send")
)

// Pipeline runs the send state machine over the key pool, the chat store,
// and the provider client.
type Pipeline struct {
	keys   *keypool.Pool
	chats  *chat.Manager
	client groq.Completer
	logger zerolog.Logger

	model       string
	visionModel string
	temperature float64
	maxTokens   int

	mu      sync.Mutex
	sending map[string]bool
}

// Config holds pipeline configuration.
type Config struct {
	Keys   *keypool.Pool
	Chats  *chat.Manager
	Client groq.Completer
	Logger zerolog.Logger

	Model       string
	VisionModel string
	Temperature float64
	MaxTokens   int
}

// New creates a send pipeline.
func New(cfg Config) (*Pipeline, error) {
	observability.EnsureRegistered()

	if cfg.Keys == nil {
		return nil, fmt.Errorf("key pool is required")
	}
	if cfg.Chats == nil {
		return nil, fmt.Errorf("chat manager is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("provider client is required")
	}

	p := &Pipeline{
		keys:        cfg.Keys,
		chats:       cfg.Chats,
		client:      cfg.Client,
		logger:      cfg.Logger,
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		sending:     make(map[string]bool),
	}
	if p.model == "" {
		p.model = groq.DefaultModel
	}
	if p.visionModel == "" {
		p.visionModel = groq.DefaultVisionModel
	}
	if p.temperature == 0 {
		p.temperature = groq.DefaultTemperature
	}
	if p.maxTokens == 0 {
		p.maxTokens = groq.DefaultMaxTokens
	}

	return p, nil
}

// Send runs one exchange on the active chat: text, an image (as a data URI),
// or both. The returned message is the assistant reply appended to the chat,
// which on provider failure is the synthetic error reply; the error return
// is reserved for sends that never started (busy, empty) and for store
// failures. No timeout is imposed here; bound latency through ctx.
func (p *Pipeline) Send(ctx context.Context, text, image string) (chat.Message, error) {
	if text == "" && image == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}

	chatID, err := p.chats.EnsureActive(ctx)
	if err != nil {
		return chat.Message{}, err
	}

	ctx = tracing.WithChatID(ctx, chatID)
	ctx, span := tracing.StartSpan(ctx, "nexus.pipeline", "pipeline.send",
		attribute.String("chat_id", chatID),
		attribute.Bool("has_image", image != ""))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, p.logger)

	if !p.begin(chatID) {
		logger.Debug().Msg("Send rejected, chat already sending")
		return chat.Message{}, ErrBusy
	}
	defer p.end(chatID)

	// The user message is persisted before the provider call begins. A crash
	// mid-call never loses the user's input.
	if _, err := p.chats.AppendUserMessage(ctx, chatID, text, image); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chat.Message{}, err
	}

	model := p.model
	if image != "" {
		model = p.visionModel
	}

	start := time.Now()
	reply, outcome, callErr := p.call(ctx, chatID, model, image)
	observability.RecordSend(model, time.Since(start), outcome)

	if callErr != nil {
		logger.Warn().Str("outcome", outcome).Err(callErr).Msg("Send failed")
		reply = errorReply(callErr)
	} else {
		logger.Info().Str("outcome", outcome).Str("model", model).Msg("Send completed")
	}

	msg, err := p.chats.AppendAssistantMessage(ctx, chatID, reply)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chat.Message{}, err
	}
	return msg, nil
}

// call acquires a key and makes the single provider call. It reports key
// health back to the pool and classifies the outcome for metrics.
func (p *Pipeline) call(ctx context.Context, chatID, model, image string) (string, string, error) {
	c, ok := p.chats.Get(chatID)
	if !ok {
		return "", "store", fmt.Errorf("chat %q not found", chatID)
	}

	window := c.Messages
	if len(window) > historyWindow {
		window = window[len(window)-historyWindow:]
	}
	messages := make([]groq.Message, len(window))
	for i, m := range window {
		messages[i] = groq.Message{Role: m.Role, Content: m.Content}
	}

	req := groq.Request{
		Model:       model,
		Messages:    messages,
		Image:       image,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}

	secret, err := p.keys.Acquire()
	if err != nil {
		return "", "no_key", err
	}

	// Exactly one call per send; the next user-initiated send draws the next
	// key in rotation, there is no automatic failover here.
	reply, err := p.client.Complete(ctx, secret, req)
	if err != nil {
		if groq.KeyFault(err) {
			if reportErr := p.keys.ReportFailure(ctx, secret); reportErr != nil {
				p.logger.Error().Err(reportErr).Msg("Failed to record key failure")
			}
		}
		return "", classifyOutcome(err), err
	}

	if err := p.keys.ReportSuccess(ctx, secret); err != nil {
		p.logger.Error().Err(err).Msg("Failed to record key success")
	}
	return reply, "success", nil
}

// errorReply renders a failure as the assistant message persisted in its
// place, so the error is part of the conversation history.
func errorReply(err error) string {
	message := "Network error. Please try again."

	var apiErr *groq.Error
	switch {
	case errors.Is(err, keypool.ErrNoActiveKey):
		message = "No active API keys. Add one in Settings."
	case errors.As(err, &apiErr):
		message = apiErr.Message
	}

	return fmt.Sprintf("Sorry, I ran into an issue: **%s**\n\nPlease check your API keys in Settings.", message)
}

func classifyOutcome(err error) string {
	var apiErr *groq.Error
	switch {
	case errors.Is(err, keypool.ErrNoActiveKey):
		return "no_key"
	case errors.As(err, &apiErr):
		switch apiErr.Status {
		case 401:
			return "auth"
		case 429:
			return "rate_limited"
		default:
			return "provider"
		}
	default:
		return "transport"
	}
}

// begin marks the chat as sending; it returns false when a send is already
// in flight, which is the only concurrency guard the pipeline has.
func (p *Pipeline) begin(chatID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sending[chatID] {
		return false
	}
	p.sending[chatID] = true
	return true
}

func (p *Pipeline) end(chatID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sending, chatID)
}

// Sending reports whether a send is in flight on the chat.
func (p *Pipeline) Sending(chatID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sending[chatID]
}
