package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wouteroostervld/ragweaver/pkg/retrieval"
)

// Role tags a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a conversation. Error replies are kept with
// IsError set so the history remains a complete audit trail.
type Turn struct {
	ID             string
	Role           Role
	Content        string
	Timestamp      time.Time
	RelevantChunks []retrieval.Result // retrieval behind an assistant reply
	IsError        bool
}

// History is the append-only conversation state of one chat stage.
// It grows until the user clears it explicitly.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewHistory creates an empty conversation
func NewHistory() *History {
	return &History{}
}

// Append adds a turn, assigning an ID and timestamp when missing
func (h *History) Append(t Turn) Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	h.turns = append(h.turns, t)
	return t
}

// Turns returns a copy of all turns in order
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	turns := make([]Turn, len(h.turns))
	copy(turns, h.turns)
	return turns
}

// Last returns a copy of the most recent n turns
func (h *History) Last(n int) []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n >= len(h.turns) {
		n = len(h.turns)
	}
	turns := make([]Turn, n)
	copy(turns, h.turns[len(h.turns)-n:])
	return turns
}

// Len returns the number of turns
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Clear discards the conversation
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
