// Package llm defines the remote text-generation boundary used by the AI
// layer. Providers live under internal/platform and satisfy Client.
package llm

import (
	"context"
	"errors"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Params are per-call sampling parameters. Zero values mean provider default.
type Params struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Client is a remote text-generation endpoint.
type Client interface {
	Provider() string
	Complete(ctx context.Context, msgs []Message, p Params) (string, error)
	// Stream calls onDelta for every text chunk and returns the full text.
	Stream(ctx context.Context, msgs []Message, p Params, onDelta func(delta string) error) (string, error)
	// GenerateJSON asks for a response that conforms to schema.
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any, p Params) (map[string]any, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

var ErrEmptyCompletion = errors.New("llm: empty completion")

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

func Temperature(v float64) *float64 { return &v }

// SplitSystem returns the concatenated system messages and the remaining turns.
func SplitSystem(msgs []Message) (string, []Message) {
	var sys []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if s := strings.TrimSpace(m.Content); s != "" {
				sys = append(sys, s)
			}
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}
