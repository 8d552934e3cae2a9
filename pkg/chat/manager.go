package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pocccco-max/nexusv2/internal/observability"
	"github.com/pocccco-max/nexusv2/internal/tracing"
	"github.com/pocccco-max/nexusv2/pkg/kvstore"
)

// recordKey is the store record holding every chat.
const recordKey = "chat-store"

// Manager owns the chat store record and the active-chat pointer.
type Manager struct {
	store  kvstore.Store
	logger zerolog.Logger

	mu       sync.Mutex
	chats    map[string]*Chat
	activeID string
}

// NewManager loads the persisted chat store. An empty store gets an initial
// chat; otherwise the most recently updated chat becomes active.
func NewManager(ctx context.Context, store kvstore.Store, logger zerolog.Logger) (*Manager, error) {
	observability.EnsureRegistered()

	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	m := &Manager{
		store:  store,
		logger: logger,
		chats:  make(map[string]*Chat),
	}

	data, err := store.Get(ctx, recordKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat store: %w", err)
	}
	if data != nil {
		if err := json.Unmarshal(data, &m.chats); err != nil {
			return nil, fmt.Errorf("failed to parse chat store record: %w", err)
		}
	}

	if len(m.chats) == 0 {
		if _, err := m.Create(ctx); err != nil {
			return nil, err
		}
	} else {
		var latest *Chat
		for _, c := range m.chats {
			if latest == nil || c.Updated.After(latest.Updated) {
				latest = c
			}
		}
		m.activeID = latest.ID
	}

	observability.SetActiveChats(len(m.chats))
	logger.Info().Int("chats", len(m.chats)).Str("active", m.activeID).Msg("Chat store loaded")

	return m, nil
}

// Create inserts a new empty chat and makes it active.
func (m *Manager) Create(ctx context.Context) (Chat, error) {
	ctx, span := tracing.StartSpan(ctx, "nexus.chat", "chat.create")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	c := &Chat{
		ID:      NewChatID(),
		Title:   DefaultTitle,
		Created: now,
		Updated: now,
	}
	prevActive := m.activeID
	m.chats[c.ID] = c
	m.activeID = c.ID

	if err := m.persist(ctx); err != nil {
		delete(m.chats, c.ID)
		m.activeID = prevActive
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Chat{}, err
	}

	logger := tracing.LoggerFromContext(ctx, m.logger)
	logger.Info().Str("chat_id", c.ID).Msg("Chat created")

	return cloneChat(c), nil
}

// EnsureActive returns the active chat ID, creating a chat when none exists.
func (m *Manager) EnsureActive(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.activeID != "" {
		if _, ok := m.chats[m.activeID]; ok {
			id := m.activeID
			m.mu.Unlock()
			return id, nil
		}
	}
	m.mu.Unlock()

	c, err := m.Create(ctx)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// ActiveID returns the active chat ID, or "" before first load.
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// SwitchTo points the active-chat pointer at id. Unknown IDs are ignored;
// callers validate against Get or List first.
func (m *Manager) SwitchTo(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chats[id]; !ok {
		m.logger.Debug().Str("chat_id", id).Msg("Switch to unknown chat ignored")
		return
	}
	m.activeID = id
}

// Get returns a copy of the chat with the given ID.
func (m *Manager) Get(id string) (Chat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chats[id]
	if !ok {
		return Chat{}, false
	}
	return cloneChat(c), true
}

// List returns every chat ordered most-recently-updated first. The ordering
// is derived on each call and never stored.
func (m *Manager) List() []Chat {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Chat, 0, len(m.chats))
	for _, c := range m.chats {
		out = append(out, cloneChat(c))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Updated.After(out[j].Updated)
	})
	return out
}

// Delete removes a chat. Deleting the active chat promotes the remaining
// chat with the newest Updated timestamp, or creates a fresh chat when the
// store would be left empty.
func (m *Manager) Delete(ctx context.Context, id string) error {
	ctx = tracing.WithChatID(ctx, id)
	ctx, span := tracing.StartSpan(ctx, "nexus.chat", "chat.delete",
		attribute.String("chat_id", id))
	defer span.End()

	m.mu.Lock()

	removed, ok := m.chats[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.chats, id)

	prevActive := m.activeID
	if m.activeID == id {
		m.activeID = ""
		var latest *Chat
		for _, c := range m.chats {
			if latest == nil || c.Updated.After(latest.Updated) {
				latest = c
			}
		}
		if latest != nil {
			m.activeID = latest.ID
		}
	}

	err := m.persist(ctx)
	if err != nil {
		m.chats[id] = removed
		m.activeID = prevActive
	}
	needsChat := err == nil && prevActive == id && m.activeID == ""
	m.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if needsChat {
		if _, err := m.Create(ctx); err != nil {
			return err
		}
	}

	logger := tracing.LoggerFromContext(ctx, m.logger)
	logger.Info().Str("chat_id", id).Msg("Chat deleted")

	return nil
}

// Clear empties a chat in place, keeping its ID and Created timestamp but
// resetting the title. Unknown IDs are a no-op.
func (m *Manager) Clear(ctx context.Context, id string) error {
	ctx = tracing.WithChatID(ctx, id)
	ctx, span := tracing.StartSpan(ctx, "nexus.chat", "chat.clear",
		attribute.String("chat_id", id))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chats[id]
	if !ok {
		return nil
	}

	prev := *c
	c.Messages = nil
	c.Title = DefaultTitle
	c.Updated = time.Now()

	if err := m.persist(ctx); err != nil {
		*c = prev
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logger := tracing.LoggerFromContext(ctx, m.logger)
	logger.Info().Str("chat_id", id).Msg("Chat cleared")

	return nil
}

// AppendUserMessage appends a user turn and persists. Empty text with an
// image gets the placeholder content; the first message of a chat sets the
// title from its text.
func (m *Manager) AppendUserMessage(ctx context.Context, id, text, image string) (Message, error) {
	if text == "" && image == "" {
		return Message{}, fmt.Errorf("message must carry text or an image")
	}

	content := text
	if content == "" {
		content = ImagePlaceholder
	}

	msg := Message{
		Role:      RoleUser,
		Content:   content,
		Image:     image,
		Timestamp: time.Now(),
	}

	if err := m.append(ctx, id, msg, text); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// AppendAssistantMessage appends an assistant turn and persists.
func (m *Manager) AppendAssistantMessage(ctx context.Context, id, content string) (Message, error) {
	if content == "" {
		return Message{}, fmt.Errorf("message content cannot be empty")
	}

	msg := Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}

	if err := m.append(ctx, id, msg, ""); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// append adds one message to a chat. titleText carries the raw user input
// used to derive the title when this is the chat's first message.
func (m *Manager) append(ctx context.Context, id string, msg Message, titleText string) error {
	ctx = tracing.WithChatID(ctx, id)
	ctx, span := tracing.StartSpan(ctx, "nexus.chat", "chat.append_message",
		attribute.String("chat_id", id),
		attribute.String("role", msg.Role))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chats[id]
	if !ok {
		err := fmt.Errorf("chat %q not found", id)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	prevTitle := c.Title
	prevUpdated := c.Updated
	c.Messages = append(c.Messages, msg)
	if len(c.Messages) == 1 && msg.Role == RoleUser {
		c.Title = DeriveTitle(titleText)
	}
	c.Updated = time.Now()

	if err := m.persist(ctx); err != nil {
		c.Messages = c.Messages[:len(c.Messages)-1]
		c.Title = prevTitle
		c.Updated = prevUpdated
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logger := tracing.LoggerFromContext(ctx, m.logger)
	logger.Debug().Str("chat_id", id).Str("role", msg.Role).Msg("Message appended")

	return nil
}

// persist writes the whole store record. Callers hold m.mu.
func (m *Manager) persist(ctx context.Context) error {
	data, err := json.Marshal(m.chats)
	if err != nil {
		return fmt.Errorf("failed to marshal chat store: %w", err)
	}
	if err := m.store.Put(ctx, recordKey, data); err != nil {
		return fmt.Errorf("failed to persist chat store: %w", err)
	}
	observability.SetActiveChats(len(m.chats))
	return nil
}

func cloneChat(c *Chat) Chat {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}
