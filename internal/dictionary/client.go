package dictionary

import (
	"context"
	"errors"

	"github.com/MrWong99/sumirevox/internal/resilience"
	"github.com/MrWong99/sumirevox/pkg/voicevox"
)

// Compile-time interface assertions.
var (
	_ Client = (*EngineClient)(nil)
	_ Client = (*guardedClient)(nil)
)

// EngineClient adapts a [voicevox.Client] to [Client].
type EngineClient struct {
	engine *voicevox.Client
}

// FromVoicevox wraps an engine client.
func FromVoicevox(c *voicevox.Client) *EngineClient {
	return &EngineClient{engine: c}
}

// List implements [Client].
func (c *EngineClient) List(ctx context.Context) (map[string]Word, error) {
	raw, err := c.engine.UserDict(ctx)
	if err != nil {
		return nil, err
	}
	words := make(map[string]Word, len(raw))
	for id, w := range raw {
		words[id] = Word{Surface: w.Surface, Pronunciation: w.Pronunciation}
	}
	return words, nil
}

// Add implements [Client].
func (c *EngineClient) Add(ctx context.Context, surface, pronunciation string) (string, error) {
	return c.engine.AddWord(ctx, surface, pronunciation)
}

// Delete implements [Client].
func (c *EngineClient) Delete(ctx context.Context, id string) error {
	return c.engine.DeleteWord(ctx, id)
}

// EngineFailure reports whether err indicates an unhealthy engine. Client
// side mistakes (4xx answers, malformed ids) and cancellation do not, so they
// never trip a breaker built with [NewEngineBreaker].
func EngineFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, voicevox.ErrInvalidID) {
		return false
	}
	var se *voicevox.StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

// NewEngineBreaker returns a circuit breaker for engine calls that counts only
// [EngineFailure] errors.
func NewEngineBreaker(cfg resilience.CircuitBreakerConfig) *resilience.CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "voicevox"
	}
	cfg.IsFailure = EngineFailure
	return resilience.NewCircuitBreaker(cfg)
}

// guardedClient routes every call through a circuit breaker.
type guardedClient struct {
	next Client
	cb   *resilience.CircuitBreaker
}

// WithBreaker returns a [Client] that executes every call of next through cb.
// While the breaker is open, calls fail with [resilience.ErrCircuitOpen].
func WithBreaker(next Client, cb *resilience.CircuitBreaker) Client {
	return &guardedClient{next: next, cb: cb}
}

func (g *guardedClient) List(ctx context.Context) (map[string]Word, error) {
	return resilience.Call(g.cb, func() (map[string]Word, error) { return g.next.List(ctx) })
}

func (g *guardedClient) Add(ctx context.Context, surface, pronunciation string) (string, error) {
	return resilience.Call(g.cb, func() (string, error) { return g.next.Add(ctx, surface, pronunciation) })
}

func (g *guardedClient) Delete(ctx context.Context, id string) error {
	return g.cb.Execute(func() error { return g.next.Delete(ctx, id) })
}
