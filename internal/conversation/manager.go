package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/introspect-ai/sophia/internal/observe"
	"github.com/introspect-ai/sophia/internal/persona"
	"github.com/introspect-ai/sophia/internal/store"
)

// ErrUnknownUser is returned by Chat when the caller-supplied user id does
// not belong to a known user. The HTTP layer maps it to 401.
var ErrUnknownUser = errors.New("conversation: unknown user")

// ErrEngine wraps engine and provider failures during a chat turn. The HTTP
// layer maps it to 502.
var ErrEngine = errors.New("conversation: engine failure")

// Store is the persistence surface the Manager needs. *store.Store satisfies
// this; tests inject fakes.
type Store interface {
	GetUserID(ctx context.Context, name string) (int64, error)
	CreateUser(ctx context.Context, name string) (int64, error)
	GetUser(ctx context.Context, id int64) (*store.User, error)
	GetPrompt(ctx context.Context, id int64) (string, error)
	SetPrompt(ctx context.Context, id int64, prompt string) error
	GetSummary(ctx context.Context, userID int64) (string, error)
	UpsertSummary(ctx context.Context, userID int64, summary string) error
}

// Manager drives the conversation lifecycle: login, prompt management,
// summary lookup, and chat turns. It owns no state of its own — handles live
// in the injected [Registry] and durable state in the injected [Store].
//
// All methods are safe for concurrent use. Turns for the same user are
// serialised on the handle lock; turns for different users proceed
// independently.
type Manager struct {
	store    Store
	engine   Engine
	registry *Registry
	metrics  *observe.Metrics

	// counter bounds the verbatim history window. Nil falls back to a
	// message-count cap.
	counter TokenCounter

	// historyBudget is the token budget for the verbatim window. Atomic so
	// the config watcher can adjust it while turns are running.
	historyBudget atomic.Int64
}

// ManagerConfig holds the dependencies for a [Manager].
type ManagerConfig struct {
	Store    Store
	Engine   Engine
	Registry *Registry

	// Metrics may be nil; observe.DefaultMetrics() is used then.
	Metrics *observe.Metrics

	// TokenCounter may be nil. [LLMEngine] satisfies it.
	TokenCounter TokenCounter

	// HistoryBudgetTokens caps the verbatim turn window per handle.
	// Zero falls back to a message-count cap.
	HistoryBudgetTokens int
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		store:    cfg.Store,
		engine:   cfg.Engine,
		registry: cfg.Registry,
		metrics:  cfg.Metrics,
		counter:  cfg.TokenCounter,
	}
	m.historyBudget.Store(int64(cfg.HistoryBudgetTokens))
	if m.registry == nil {
		m.registry = NewRegistry()
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// SetHistoryBudget updates the verbatim history token budget for subsequent
// turns.
func (m *Manager) SetHistoryBudget(tokens int) {
	m.historyBudget.Store(int64(tokens))
}

// LoginResult is returned by [Manager.Login].
type LoginResult struct {
	// UserID identifies the (possibly just created) user.
	UserID int64

	// Summary is the persisted rolling summary, empty for a new user. Returned
	// so the client can restore conversational context after a restart.
	Summary string
}

// Login ensures a user row exists for name and returns its id together with
// the persisted summary.
//
// The lookup+create pair is not atomic; on a lost insert race the uniqueness
// conflict is retried as a lookup (see [store.Store.GetOrCreateUser]).
func (m *Manager) Login(ctx context.Context, name string) (*LoginResult, error) {
	outcome := "existing"

	id, err := m.store.GetUserID(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		outcome = "created"
		id, err = m.store.CreateUser(ctx, name)
		if errors.Is(err, store.ErrConflict) {
			// Lost the insert race against a concurrent login.
			outcome = "existing"
			id, err = m.store.GetUserID(ctx, name)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("login %q: %w", name, err)
	}

	summary, err := m.store.GetSummary(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("login %q: %w", name, err)
	}

	m.metrics.RecordLogin(ctx, outcome)
	observe.Logger(ctx).Info("user logged in", "user_id", id, "outcome", outcome)

	return &LoginResult{UserID: id, Summary: summary}, nil
}

// Prompt returns the stored persona prompt for the user.
// Returns [store.ErrNotFound] for an unknown id.
func (m *Manager) Prompt(ctx context.Context, userID int64) (string, error) {
	return m.store.GetPrompt(ctx, userID)
}

// SetPrompt overwrites the stored persona prompt and echoes the stored value
// back. Returns [store.ErrNotFound] for an unknown id.
//
// The new prompt has no retroactive effect on an already-materialised handle;
// it is picked up by the next fresh handle (e.g., after a process restart).
func (m *Manager) SetPrompt(ctx context.Context, userID int64, prompt string) (string, error) {
	if err := m.store.SetPrompt(ctx, userID, prompt); err != nil {
		return "", err
	}
	return prompt, nil
}

// Summary returns the persisted rolling summary for the user — the empty
// string when no turn has occurred yet. Returns [store.ErrNotFound] for an
// unknown id.
func (m *Manager) Summary(ctx context.Context, userID int64) (string, error) {
	if _, err := m.store.GetUser(ctx, userID); err != nil {
		return "", err
	}
	return m.store.GetSummary(ctx, userID)
}

// Chat drives one conversation turn for userID:
//
//  1. Validates the user exists; unknown ids fail with [ErrUnknownUser]
//     before any handle is created.
//  2. Finds or lazily builds the conversation handle, seeded with the user's
//     current persona prompt (default template when empty) and the persisted
//     summary.
//  3. Invokes the engine, holding the handle lock so turns for the same user
//     never interleave.
//  4. Persists the updated summary while still holding the lock, so the
//     read-modify-write across the engine call has a single writer per key.
func (m *Manager) Chat(ctx context.Context, userID int64, message string) (string, error) {
	start := time.Now()

	user, err := m.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("chat user %d: %w", userID, ErrUnknownUser)
	}
	if err != nil {
		return "", fmt.Errorf("chat user %d: %w", userID, err)
	}

	h, created, err := m.registry.GetOrCreate(userID, func() (*Handle, error) {
		summary, err := m.store.GetSummary(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("chat user %d: load summary: %w", userID, err)
		}
		return NewHandle(userID, persona.Resolve(user.Prompt), summary), nil
	})
	if err != nil {
		return "", err
	}
	if created {
		m.metrics.ActiveConversations.Add(ctx, 1)
		observe.Logger(ctx).Info("conversation handle created",
			"user_id", userID,
			"resumed", h.Summary() != "",
		)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	engineStart := time.Now()
	res, err := m.engine.AdvanceTurn(ctx, h.turn(message))
	m.metrics.EngineDuration.Record(ctx, time.Since(engineStart).Seconds())
	if err != nil {
		m.metrics.RecordEngineError(ctx)
		m.metrics.RecordChatTurn(ctx, "error", time.Since(start).Seconds())
		return "", fmt.Errorf("chat user %d: %w: %w", userID, ErrEngine, err)
	}

	if err := m.store.UpsertSummary(ctx, userID, res.Summary); err != nil {
		m.metrics.RecordChatTurn(ctx, "error", time.Since(start).Seconds())
		return "", fmt.Errorf("chat user %d: %w", userID, err)
	}

	h.commit(message, res.Reply, res.Summary)
	h.prune(m.counter, int(m.historyBudget.Load()))

	m.metrics.RecordChatTurn(ctx, "ok", time.Since(start).Seconds())
	observe.Logger(ctx).Debug("chat turn completed",
		"user_id", userID,
		"prompt_tokens", res.Usage.PromptTokens,
		"completion_tokens", res.Usage.CompletionTokens,
	)

	return res.Reply, nil
}
