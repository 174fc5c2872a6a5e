package conversation

import (
	"sync"

	"github.com/introspect-ai/sophia/pkg/provider/llm"
)

// defaultHistoryMessages bounds the verbatim turn window when no token
// counter is available.
const defaultHistoryMessages = 20

// TokenCounter estimates the context cost of a message list. [LLMEngine]
// satisfies this.
type TokenCounter interface {
	CountTokens(messages []llm.Message) (int, error)
}

// Handle is the in-memory state of one live conversation. It is created
// lazily on the first chat turn for a user, lives for the process lifetime,
// and is never evicted. The persona prompt is captured once at creation;
// later prompt edits only take effect on a fresh handle.
//
// All state behind mu; Lock also serialises engine turns for this handle,
// since the rolling summary is a read-modify-write across the engine call.
type Handle struct {
	userID     int64
	seedPrompt string

	mu      sync.Mutex
	summary string
	history []llm.Message
}

// NewHandle creates a handle seeded with the persona prompt and the prior
// persisted summary (empty for a new user).
func NewHandle(userID int64, seedPrompt, priorSummary string) *Handle {
	return &Handle{
		userID:     userID,
		seedPrompt: seedPrompt,
		summary:    priorSummary,
	}
}

// UserID returns the owning user id.
func (h *Handle) UserID() int64 { return h.userID }

// SeedPrompt returns the persona prompt captured at creation time.
func (h *Handle) SeedPrompt() string { return h.seedPrompt }

// Summary returns the current rolling summary. Safe for concurrent use.
func (h *Handle) Summary() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.summary
}

// turn snapshots the state needed for one engine call. Must be called with
// mu held.
func (h *Handle) turn(message string) Turn {
	history := make([]llm.Message, len(h.history))
	copy(history, h.history)
	return Turn{
		PersonaPrompt: h.seedPrompt,
		PriorSummary:  h.summary,
		History:       history,
		Message:       message,
	}
}

// commit records the completed turn: the new summary replaces the old one and
// the exchange is appended to the verbatim window. Must be called with mu
// held.
func (h *Handle) commit(message, reply, summary string) {
	h.summary = summary
	h.history = append(h.history,
		llm.Message{Role: "user", Content: message},
		llm.Message{Role: "assistant", Content: reply},
	)
}

// prune drops the oldest exchanges once the verbatim window exceeds
// budgetTokens. Dropped turns are already folded into the rolling summary, so
// no information is lost. With a nil counter (or zero budget) the window is
// capped at [defaultHistoryMessages] messages instead. Must be called with mu
// held.
func (h *Handle) prune(counter TokenCounter, budgetTokens int) {
	if counter == nil || budgetTokens <= 0 {
		for len(h.history) > defaultHistoryMessages {
			h.history = h.history[2:]
		}
		return
	}

	for len(h.history) > 2 {
		n, err := counter.CountTokens(h.history)
		if err != nil || n <= budgetTokens {
			return
		}
		h.history = h.history[2:]
	}
}
