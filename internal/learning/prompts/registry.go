package prompts

import (
	"fmt"
	"strings"
	"sync"
)

type Template struct {
	Name       PromptName
	Version    int
	SchemaName string
	Schema     func() map[string]any
	System     func(Input) string
	User       func(Input) string
	Validate   Validator
}

var (
	mu       sync.RWMutex
	registry = map[PromptName]Template{}
	once     sync.Once
)

// Register registers a compiled Template, replacing any previous version.
func Register(t Template) {
	mu.Lock()
	registry[t.Name] = t
	mu.Unlock()
}

func lookup(name PromptName) (Template, bool) {
	once.Do(RegisterAll)
	mu.RLock()
	defer mu.RUnlock()
	t, ok := registry[name]
	return t, ok
}

// Build renders the named prompt for in, ready for llm.Client.GenerateJSON.
func Build(name PromptName, in Input) (Prompt, error) {
	t, ok := lookup(name)
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt: %s", string(name))
	}
	if t.Schema == nil {
		return Prompt{}, fmt.Errorf("prompt %s missing schema", string(name))
	}
	if t.System == nil || t.User == nil {
		return Prompt{}, fmt.Errorf("prompt %s missing system/user renderers", string(name))
	}
	if t.Validate != nil {
		if err := t.Validate(in); err != nil {
			return Prompt{}, fmt.Errorf("%s: %w", string(name), err)
		}
	}
	return Prompt{
		Name:       string(t.Name),
		Version:    t.Version,
		SchemaName: strings.TrimSpace(t.SchemaName),
		Schema:     t.Schema(),
		System:     strings.TrimSpace(t.System(in)),
		User:       strings.TrimSpace(t.User(in)),
	}, nil
}

func Schema(name PromptName) (schemaName string, schema map[string]any, ok bool) {
	t, ok := lookup(name)
	if !ok || t.Schema == nil {
		return "", nil, false
	}
	return t.SchemaName, t.Schema(), true
}
