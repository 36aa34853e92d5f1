// Package notify keeps the transient messages shown to console users.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
)

// DefaultTTL is how long a message stays visible.
const DefaultTTL = 4 * time.Second

const maxMessages = 20

// Level classifies a message.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Message is one transient notification.
type Message struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UserMessager is implemented by errors that carry text meant for end users,
// such as the message field of a remote error body.
type UserMessager interface {
	UserMessage() string
}

// Center collects notifications and dismisses them once their TTL elapses.
// It is safe for concurrent use by every open screen.
type Center struct {
	mu       sync.Mutex
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	messages []Message
}

// NewCenter creates an empty center. A non-positive ttl selects DefaultTTL.
func NewCenter(logger *slog.Logger, ttl time.Duration) *Center {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Center{
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Error raises a message for err. Cancellations are not user-visible and
// are dropped. Repeating the text of an active message extends it instead
// of stacking a duplicate.
func (c *Center) Error(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	level := LevelError
	if errors.Is(err, httpx.ErrValidation) {
		level = LevelWarning
	}
	text := Describe(err)

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.pruneLocked(now)
	for i := range c.messages {
		if c.messages[i].Text == text {
			c.messages[i].ExpiresAt = now.Add(c.ttl)
			return
		}
	}
	msg := Message{
		ID:        c.newID(),
		Level:     level,
		Text:      text,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.messages = append(c.messages, msg)
	if len(c.messages) > maxMessages {
		c.messages = c.messages[len(c.messages)-maxMessages:]
	}
	c.logger.Info("notification raised",
		slog.String("id", msg.ID),
		slog.String("level", string(level)),
		slog.Any("error", err))
}

// Active returns the messages that have not expired, oldest first.
func (c *Center) Active() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(c.now())
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Dismiss removes a message before it expires.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, msg := range c.messages {
		if msg.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Center) pruneLocked(now time.Time) {
	kept := c.messages[:0]
	for _, msg := range c.messages {
		if now.Before(msg.ExpiresAt) {
			kept = append(kept, msg)
		}
	}
	c.messages = kept
}

// Describe turns err into text suitable for end users.
func Describe(err error) string {
	var um UserMessager
	if errors.As(err, &um) && um.UserMessage() != "" {
		return um.UserMessage()
	}
	switch {
	case errors.Is(err, httpx.ErrValidation):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "The server took too long to respond."
	case errors.Is(err, httpx.ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, httpx.ErrForbidden):
		return "You are not allowed to view this list."
	case errors.Is(err, httpx.ErrNotFound):
		return "The requested list does not exist."
	case errors.Is(err, httpx.ErrUpstream):
		return "The server is unavailable. Please try again."
	}
	return "Failed to load data."
}
