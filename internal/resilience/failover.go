package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/introspect-ai/sophia/pkg/provider/llm"
)

// ErrAllFailed is returned when every backend in a [Failover] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("all llm backends failed")

// FailoverConfig configures the per-backend circuit breaker created for each
// provider in a [Failover].
type FailoverConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// backend pairs a provider with its dedicated circuit breaker.
type backend struct {
	name     string
	provider llm.Provider
	breaker  *CircuitBreaker
}

// Failover implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary
// fails or its breaker is open, the next healthy fallback is tried in
// registration order.
//
// Register all backends before the first call; AddFallback is not safe to
// call concurrently with completions.
type Failover struct {
	backends []backend
	cfg      FailoverConfig
}

// Compile-time interface assertion.
var _ llm.Provider = (*Failover)(nil)

// NewFailover creates a [Failover] with primary as the preferred backend.
func NewFailover(primaryName string, primary llm.Provider, cfg FailoverConfig) *Failover {
	f := &Failover{cfg: cfg}
	f.add(primaryName, primary)
	return f
}

// AddFallback registers an additional backend, tried after all earlier ones.
func (f *Failover) AddFallback(name string, provider llm.Provider) {
	f.add(name, provider)
}

func (f *Failover) add(name string, provider llm.Provider) {
	cbCfg := f.cfg.CircuitBreaker
	cbCfg.Name = name
	f.backends = append(f.backends, backend{
		name:     name,
		provider: provider,
		breaker:  NewCircuitBreaker(cbCfg),
	})
}

// Complete sends the request to the first healthy backend and returns its
// response.
func (f *Failover) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return execute(f, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion sends the request to the first healthy backend and returns
// a streaming chunk channel. Only the initial connection attempt is covered
// by failover; once a stream is established, mid-stream errors are the
// caller's responsibility.
func (f *Failover) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return execute(f, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// CountTokens delegates to the first healthy backend's token counter.
func (f *Failover) CountTokens(messages []llm.Message) (int, error) {
	return execute(f, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities returns the primary's capabilities. This does not participate
// in failover because capabilities are static metadata.
func (f *Failover) Capabilities() llm.ModelCapabilities {
	if len(f.backends) > 0 {
		return f.backends[0].provider.Capabilities()
	}
	return llm.ModelCapabilities{}
}

// execute tries fn against each backend in order until one succeeds.
// Circuit-breaker-open backends are skipped. Returns [ErrAllFailed] wrapped
// with the last error when every backend fails.
func execute[R any](f *Failover, fn func(llm.Provider) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range f.backends {
		b := &f.backends[i]
		var result R
		err := b.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(b.provider)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping llm backend (circuit open)", "backend", b.name)
		} else {
			slog.Warn("llm backend failed, trying next", "backend", b.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
