// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/yungbote/learnmate-backend/internal/ai/llm"
)

// Fake answers with the configured funcs; unset funcs return Text / JSON.
type Fake struct {
	Text string
	JSON map[string]any
	Err  error

	CompleteFn func(ctx context.Context, msgs []llm.Message, p llm.Params) (string, error)
	JSONFn     func(ctx context.Context, system, user, schemaName string) (map[string]any, error)
	StreamFn   func(ctx context.Context, msgs []llm.Message, onDelta func(string) error) (string, error)

	mu          sync.Mutex
	calls       int
	schemaCalls map[string]int
	lastMsgs    []llm.Message
}

var _ llm.Client = (*Fake)(nil)

func (f *Fake) Provider() string { return "fake" }

func (f *Fake) record(msgs []llm.Message, schema string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if msgs != nil {
		f.lastMsgs = append([]llm.Message(nil), msgs...)
	}
	if schema != "" {
		if f.schemaCalls == nil {
			f.schemaCalls = map[string]int{}
		}
		f.schemaCalls[schema]++
	}
}

func (f *Fake) Complete(ctx context.Context, msgs []llm.Message, p llm.Params) (string, error) {
	f.record(msgs, "")
	if f.CompleteFn != nil {
		return f.CompleteFn(ctx, msgs, p)
	}
	if f.Err != nil {
		return "", f.Err
	}
	return f.Text, nil
}

func (f *Fake) Stream(ctx context.Context, msgs []llm.Message, p llm.Params, onDelta func(string) error) (string, error) {
	if f.StreamFn != nil {
		f.record(msgs, "")
		return f.StreamFn(ctx, msgs, onDelta)
	}
	text, err := f.Complete(ctx, msgs, p)
	if err != nil {
		return "", err
	}
	for _, word := range strings.SplitAfter(text, " ") {
		if word == "" || onDelta == nil {
			continue
		}
		if err := onDelta(word); err != nil {
			return text, err
		}
	}
	return text, nil
}

func (f *Fake) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any, p llm.Params) (map[string]any, error) {
	f.record(nil, schemaName)
	if f.JSONFn != nil {
		return f.JSONFn(ctx, system, user, schemaName)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.JSON, nil
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) SchemaCalls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schemaCalls[name]
}

func (f *Fake) LastMessages() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Message(nil), f.lastMsgs...)
}
