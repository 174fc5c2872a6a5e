// Package conversation implements the per-user conversation lifecycle: lazy
// handle creation, per-key turn serialisation, engine invocation, and
// persistence of the rolling summary.
//
// The package is the only stateful part of the system. Everything
// language-related is delegated to an [llm.Provider]; everything durable lives
// in the store.
package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/introspect-ai/sophia/pkg/provider/llm"
)

// Turn carries the full context of one request/response exchange into the
// engine. The engine itself is stateless; all conversation state is owned by
// the [Handle] that assembles the Turn.
type Turn struct {
	// PersonaPrompt is the system prompt seeded when the handle was created.
	PersonaPrompt string

	// PriorSummary is the rolling summary of everything that happened before
	// the verbatim History window. Empty for a brand-new conversation.
	PriorSummary string

	// History is the recent verbatim turn window, oldest first.
	History []llm.Message

	// Message is the new user input driving this turn.
	Message string
}

// Result is the outcome of one engine turn.
type Result struct {
	// Reply is the assistant's response to Turn.Message.
	Reply string

	// Summary is the updated rolling summary with this turn folded in.
	Summary string

	// Usage aggregates token accounting across the completion and
	// summarisation calls.
	Usage llm.Usage
}

// Engine drives one request/response turn. Any provider implementing this
// contract is substitutable; the production implementation is [LLMEngine].
type Engine interface {
	AdvanceTurn(ctx context.Context, t Turn) (*Result, error)
}

// LLMEngine implements [Engine] on top of an [llm.Provider]: one completion
// for the reply, one for the progressive summary update.
type LLMEngine struct {
	provider   llm.Provider
	summariser *Summariser

	// mu guards the tuning fields, which can be hot-reloaded via SetTuning.
	mu          sync.RWMutex
	temperature float64
	maxTokens   int
}

// EngineConfig tunes the completion calls made by [LLMEngine].
type EngineConfig struct {
	// Temperature for reply completions. The default of 0 requests greedy
	// decoding, matching the deterministic-counsellor deployment profile.
	Temperature float64

	// MaxTokens caps reply length. Zero means 1000.
	MaxTokens int
}

// defaultMaxTokens caps replies when EngineConfig.MaxTokens is zero.
const defaultMaxTokens = 1000

// NewLLMEngine creates an engine that produces replies and summary updates
// through provider.
func NewLLMEngine(provider llm.Provider, cfg EngineConfig) *LLMEngine {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &LLMEngine{
		provider:    provider,
		summariser:  NewSummariser(provider),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Compile-time interface check.
var _ Engine = (*LLMEngine)(nil)

// SetTuning updates the completion parameters for subsequent turns. Turns
// already in flight keep the values they started with.
func (e *LLMEngine) SetTuning(cfg EngineConfig) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	e.mu.Lock()
	e.temperature = cfg.Temperature
	e.maxTokens = cfg.MaxTokens
	e.mu.Unlock()
}

// AdvanceTurn sends the turn to the model and returns the reply together with
// the updated rolling summary. The call is synchronous; the caller is
// responsible for ensuring only one turn per handle is in flight.
func (e *LLMEngine) AdvanceTurn(ctx context.Context, t Turn) (*Result, error) {
	messages := make([]llm.Message, 0, len(t.History)+2)
	if t.PriorSummary != "" {
		messages = append(messages, llm.Message{
			Role:    "system",
			Content: "Summary of the conversation so far:\n" + t.PriorSummary,
		})
	}
	messages = append(messages, t.History...)
	messages = append(messages, llm.Message{Role: "user", Content: t.Message})

	e.mu.RLock()
	temperature, maxTokens := e.temperature, e.maxTokens
	e.mu.RUnlock()

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: t.PersonaPrompt,
		Messages:     messages,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: completion: %w", err)
	}

	summary, sumUsage, err := e.summariser.Summarise(ctx, t.PriorSummary, []llm.Message{
		{Role: "user", Content: t.Message},
		{Role: "assistant", Content: resp.Content},
	})
	if err != nil {
		return nil, fmt.Errorf("engine: summarise: %w", err)
	}

	return &Result{
		Reply:   resp.Content,
		Summary: summary,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens + sumUsage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens + sumUsage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens + sumUsage.TotalTokens,
		},
	}, nil
}

// CountTokens estimates the context cost of messages using the underlying
// provider's tokeniser. Used by handles to bound their verbatim history.
func (e *LLMEngine) CountTokens(messages []llm.Message) (int, error) {
	return e.provider.CountTokens(messages)
}
