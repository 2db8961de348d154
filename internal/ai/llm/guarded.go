package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
	"github.com/yungbote/learnmate-backend/internal/platform/breaker"
)

// Guard routes every call through b. Breaker rejections become
// model-execution errors tagged "circuit_open".
func Guard(c Client, b *breaker.Breaker) Client {
	if b == nil {
		return c
	}
	return &guarded{inner: c, b: b}
}

type guarded struct {
	inner Client
	b     *breaker.Breaker
}

func (g *guarded) Provider() string { return g.inner.Provider() }

func (g *guarded) Complete(ctx context.Context, msgs []Message, p Params) (string, error) {
	out, err := breaker.Do(g.b, func() (string, error) { return g.inner.Complete(ctx, msgs, p) })
	return out, g.wrap(p, err)
}

func (g *guarded) Stream(ctx context.Context, msgs []Message, p Params, onDelta func(string) error) (string, error) {
	out, err := breaker.Do(g.b, func() (string, error) { return g.inner.Stream(ctx, msgs, p, onDelta) })
	return out, g.wrap(p, err)
}

func (g *guarded) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any, p Params) (map[string]any, error) {
	out, err := breaker.Do(g.b, func() (map[string]any, error) {
		return g.inner.GenerateJSON(ctx, system, user, schemaName, schema, p)
	})
	return out, g.wrap(p, err)
}

func (g *guarded) wrap(p Params, err error) error {
	if err == nil || !errors.Is(err, breaker.ErrOpen) {
		return err
	}
	model := p.Model
	if model == "" {
		model = g.inner.Provider()
	}
	return apierr.ModelExecution(model, "circuit_open", err)
}

// IsClientError reports 4xx failures that should not count against a breaker.
func IsClientError(err error) bool {
	var sc interface{ HTTPStatusCode() int }
	if errors.As(err, &sc) {
		code := sc.HTTPStatusCode()
		return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
	}
	return false
}
