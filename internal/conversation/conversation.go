// Package conversation keeps multi-turn history so follow-up queries carry context.
package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/hllm/internal/cache"
)

// ErrNotFound is returned for unknown or expired conversations
var ErrNotFound = errors.New("conversation not found")

// Role of a message author
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Conversation is a persisted message history
type Conversation struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Messages  []Message      `json:"messages"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Store persists conversations in a cache with a sliding TTL
type Store struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time

	mu sync.Mutex // serializes read-modify-write of a conversation
}

// NewStore creates a store. ttl <= 0 uses 24h.
func NewStore(c cache.Cache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{cache: c, ttl: ttl, now: time.Now}
}

// Create starts an empty conversation and returns its ID
func (s *Store) Create(metadata map[string]any) (string, error) {
	conv := Conversation{
		ID:        uuid.NewString(),
		CreatedAt: s.now().UTC(),
		Messages:  []Message{},
		Metadata:  metadata,
	}
	if err := s.save(conv); err != nil {
		return "", err
	}
	return conv.ID, nil
}

// Append adds a message to an existing conversation and refreshes its TTL
func (s *Store) Append(id string, role Role, content string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.Get(id)
	if err != nil {
		return err
	}
	conv.Messages = append(conv.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: s.now().UTC(),
		Metadata:  metadata,
	})
	return s.save(conv)
}

// Get returns the full conversation
func (s *Store) Get(id string) (Conversation, error) {
	data, ok := s.cache.Get(key(id))
	if !ok {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return Conversation{}, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return conv, nil
}

// History returns the messages of a conversation, oldest first
func (s *Store) History(id string) ([]Message, error) {
	conv, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return conv.Messages, nil
}

// Exists reports whether a conversation is stored and unexpired
func (s *Store) Exists(id string) bool {
	_, ok := s.cache.Get(key(id))
	return ok
}

// Delete removes a conversation
func (s *Store) Delete(id string) error {
	if !s.Exists(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.cache.Delete(key(id))
}

// Context formats the last max messages as a preamble for the next query.
// It returns "" when the conversation has no messages.
func (s *Store) Context(id string, max int) (string, error) {
	msgs, err := s.History(id)
	if err != nil {
		return "", err
	}
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	if len(msgs) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("CONVERSATION HISTORY:\n")
	for _, m := range msgs {
		label := "User"
		if m.Role == RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "\n%s: %s\n", label, m.Content)
	}
	b.WriteString("\nCurrent question (answer based on the conversation context above):\n")
	return b.String(), nil
}

// Export renders a conversation as a plain-text transcript
func (s *Store) Export(id string) (string, error) {
	conv, err := s.Get(id)
	if err != nil {
		return "", err
	}

	rule := strings.Repeat("=", 50)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nH-LLM Multi-Model Conversation Transcript\nConversation ID: %s\nCreated: %s\n%s\n\n",
		rule, conv.ID, conv.CreatedAt.Format(time.RFC3339), rule)

	for _, m := range conv.Messages {
		fmt.Fprintf(&b, "[%s] %s:\n%s\n\n", m.Timestamp.Format(time.RFC3339), strings.ToUpper(string(m.Role)), m.Content)
	}

	fmt.Fprintf(&b, "%s\nEnd of Transcript\n%s\n", rule, rule)
	return b.String(), nil
}

func (s *Store) save(conv Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	if err := s.cache.Set(key(conv.ID), data, s.ttl); err != nil {
		return fmt.Errorf("store conversation %s: %w", conv.ID, err)
	}
	return nil
}

func key(id string) string {
	return cache.Key("conversation", id)
}
