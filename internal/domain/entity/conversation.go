package entity

import (
	"fmt"
	"sync"
	"time"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	PlanID    string      `json:"plan_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type AccessibilityNeed string

const (
	NeedScreenReader       AccessibilityNeed = "screen_reader"
	NeedHighContrast       AccessibilityNeed = "high_contrast"
	NeedLargeText          AccessibilityNeed = "large_text"
	NeedKeyboardNavigation AccessibilityNeed = "keyboard_navigation"
	NeedColorBlindness     AccessibilityNeed = "color_blindness"
	NeedMotorImpairment    AccessibilityNeed = "motor_impairment"
)

func ParseAccessibilityNeed(s string) (AccessibilityNeed, error) {
	switch AccessibilityNeed(s) {
	case NeedScreenReader, NeedHighContrast, NeedLargeText,
		NeedKeyboardNavigation, NeedColorBlindness, NeedMotorImpairment:
		return AccessibilityNeed(s), nil
	}
	return "", fmt.Errorf("unknown accessibility need: %q", s)
}

// ConversationContext is the per-session state. History is append-only;
// History() hands out a copy so a concurrently running executor never
// observes a torn read.
type ConversationContext struct {
	SessionID string
	UserID    string

	mu          sync.RWMutex
	currentURL  string
	history     []Message
	preferences map[string]any
	needs       map[AccessibilityNeed]struct{}
}

func NewConversationContext(sessionID, userID, currentURL string) *ConversationContext {
	return &ConversationContext{
		SessionID:   sessionID,
		UserID:      userID,
		currentURL:  currentURL,
		preferences: map[string]any{},
		needs:       map[AccessibilityNeed]struct{}{},
	}
}

func (c *ConversationContext) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.mu.Lock()
	c.history = append(c.history, msg)
	c.mu.Unlock()
}

func (c *ConversationContext) History() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}

func (c *ConversationContext) CurrentURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentURL
}

func (c *ConversationContext) SetCurrentURL(url string) {
	c.mu.Lock()
	c.currentURL = url
	c.mu.Unlock()
}

// SetPreferences replaces the preference map wholesale.
func (c *ConversationContext) SetPreferences(prefs map[string]any) {
	cp := make(map[string]any, len(prefs))
	for k, v := range prefs {
		cp[k] = v
	}
	c.mu.Lock()
	c.preferences = cp
	c.mu.Unlock()
}

func (c *ConversationContext) Preferences() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.preferences))
	for k, v := range c.preferences {
		out[k] = v
	}
	return out
}

func (c *ConversationContext) DeclareNeed(need AccessibilityNeed) {
	c.mu.Lock()
	c.needs[need] = struct{}{}
	c.mu.Unlock()
}

func (c *ConversationContext) Needs() []AccessibilityNeed {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AccessibilityNeed, 0, len(c.needs))
	for n := range c.needs {
		out = append(out, n)
	}
	return out
}
