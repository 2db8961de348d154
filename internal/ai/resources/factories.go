package resources

import (
	"context"

	"github.com/yungbote/learnmate-backend/internal/ai/llm"
)

// EmbedderHandle is the "embedding" resource.
type EmbedderHandle struct {
	llm.Embedder
	Name    string
	closeFn func(ctx context.Context) error
}

func (h *EmbedderHandle) Close(ctx context.Context) error {
	if h.closeFn == nil {
		return nil
	}
	return h.closeFn(ctx)
}

// ModelHandle is the "model" resource: an LLM client registered under Name
// and optionally pinned to a provider model id.
type ModelHandle struct {
	llm.Client
	Name  string
	Model string
}

func (h *ModelHandle) Close(context.Context) error { return nil }

// Params returns p with the handle's model filled in when unset. An empty
// Model leaves the provider default in place.
func (h *ModelHandle) Params(p llm.Params) llm.Params {
	if p.Model == "" {
		p.Model = h.Model
	}
	return p
}

// EmbedderFactory shares one embedder across all names. newFn may return a
// per-name embedder and an optional close func; nil newFn reuses base.
func EmbedderFactory(base llm.Embedder, newFn func(ctx context.Context, name string) (llm.Embedder, func(context.Context) error, error)) Factory {
	return func(ctx context.Context, name string, _ map[string]any) (Resource, error) {
		if newFn == nil {
			return &EmbedderHandle{Embedder: base, Name: name}, nil
		}
		e, closeFn, err := newFn(ctx, name)
		if err != nil {
			return nil, err
		}
		return &EmbedderHandle{Embedder: e, Name: name, closeFn: closeFn}, nil
	}
}

// ModelFactory reads the provider model id from opts["model"] on first
// construction.
func ModelFactory(client llm.Client) Factory {
	return func(_ context.Context, name string, opts map[string]any) (Resource, error) {
		model, _ := opts["model"].(string)
		return &ModelHandle{Client: client, Name: name, Model: model}, nil
	}
}

// DefaultFactories wires the built-in resource types.
func DefaultFactories(client llm.Client, emb llm.Embedder) map[ResourceType]Factory {
	f := map[ResourceType]Factory{}
	if client != nil {
		f[Model] = ModelFactory(client)
	}
	if emb != nil {
		f[Embedding] = EmbedderFactory(emb, nil)
	}
	return f
}
