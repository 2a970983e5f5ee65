package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role says who spoke a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the conversation.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	summaryWindow   = 6
	summaryTopics   = 3
	summaryTopicLen = 50
)

// History is a bounded, concurrency-safe log of turns. When full, the oldest
// turn is dropped.
type History struct {
	mu    sync.Mutex
	limit int
	turns []Turn
}

// NewHistory returns a history keeping at most limit turns.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &History{limit: limit}
}

// Add appends a turn and returns it with its ID and timestamp set.
func (h *History) Add(role Role, text string) Turn {
	t := Turn{ID: uuid.NewString(), Role: role, Text: text, Timestamp: time.Now()}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, t)
	if over := len(h.turns) - h.limit; over > 0 {
		h.turns = append(h.turns[:0:0], h.turns[over:]...)
	}
	return t
}

// Turns returns a copy of the turns, oldest first.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of stored turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Clear drops every turn.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// Summary describes the conversation: the number of exchanges and the first
// few user messages among the most recent turns.
func (h *History) Summary() string {
	turns := h.Turns()
	if len(turns) == 0 {
		return "No conversation history"
	}

	var topics []string
	for _, t := range turns[max(0, len(turns)-summaryWindow):] {
		if t.Role != RoleUser {
			continue
		}
		topics = append(topics, clip(t.Text, summaryTopicLen))
		if len(topics) == summaryTopics {
			break
		}
	}
	return fmt.Sprintf("Conversation: %d exchanges. Recent topics: %s", len(turns)/2, strings.Join(topics, ", "))
}

// clip shortens s to n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
