// Package gemini adapts google.golang.org/genai to the llm.Client boundary.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"

	"github.com/yungbote/learnmate-backend/internal/ai/llm"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/envutil"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const providerName = "gemini"

type Config struct {
	APIKey     string
	Model      string
	EmbedModel string
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:     envutil.String("GEMINI_API_KEY", envutil.String("GOOGLE_API_KEY", "")),
		Model:      envutil.String("GEMINI_MODEL", "gemini-2.5-flash"),
		EmbedModel: envutil.String("GEMINI_EMBED_MODEL", "gemini-embedding-001"),
	}
}

type Client struct {
	log        *logger.Logger
	metrics    *observability.Metrics
	genai      *genai.Client
	model      string
	embedModel string
}

var _ llm.Client = (*Client)(nil)
var _ llm.Embedder = (*Client)(nil)

func NewClient(ctx context.Context, log *logger.Logger, metrics *observability.Metrics, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "gemini-embedding-001"
	}
	return &Client{
		log:        logger.OrNop(log).With("client", "GeminiClient"),
		metrics:    metrics,
		genai:      gc,
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
	}, nil
}

func (c *Client) Provider() string { return providerName }

func (c *Client) modelFor(p llm.Params) string {
	if m := strings.TrimSpace(p.Model); m != "" {
		return m
	}
	return c.model
}

// toContents maps chat turns onto genai contents; system turns become the
// system instruction.
func toContents(msgs []llm.Message, p llm.Params) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, turns := llm.SplitSystem(msgs)
	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if p.Temperature != nil {
		t := float32(*p.Temperature)
		cfg.Temperature = &t
	}
	if p.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.MaxTokens)
	}
	return contents, cfg
}

func (c *Client) Complete(ctx context.Context, msgs []llm.Message, p llm.Params) (string, error) {
	model := c.modelFor(p)
	contents, cfg := toContents(msgs, p)

	ctx, span := observability.StartSpan(ctx, "gemini generate", attribute.String("llm.model", model))
	start := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, model, contents, cfg)
	c.observe(model, err, start)
	observability.EndSpan(span, err)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrEmptyCompletion
	}
	return text, nil
}

func (c *Client) Stream(ctx context.Context, msgs []llm.Message, p llm.Params, onDelta func(delta string) error) (string, error) {
	model := c.modelFor(p)
	contents, cfg := toContents(msgs, p)

	ctx, span := observability.StartSpan(ctx, "gemini stream", attribute.String("llm.model", model))
	start := time.Now()
	var (
		full    strings.Builder
		lastErr error
	)
	for resp, err := range c.genai.Models.GenerateContentStream(ctx, model, contents, cfg) {
		if err != nil {
			lastErr = fmt.Errorf("gemini stream: %w", err)
			break
		}
		delta := resp.Text()
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				lastErr = err
				break
			}
		}
	}
	c.observe(model, lastErr, start)
	observability.EndSpan(span, lastErr)
	if lastErr != nil {
		return full.String(), lastErr
	}
	if full.Len() == 0 {
		return "", llm.ErrEmptyCompletion
	}
	return full.String(), nil
}

// GenerateJSON requests application/json output. The schema is sent in the
// prompt so any genai model version accepts it.
func (c *Client) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any, p llm.Params) (map[string]any, error) {
	rawSchema, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", schemaName, err)
	}
	sys := strings.TrimSpace(system) + "\n\nRespond with a single JSON object named " + schemaName +
		" that validates against this JSON schema:\n" + string(rawSchema)

	model := c.modelFor(p)
	contents, cfg := toContents([]llm.Message{llm.System(sys), llm.User(user)}, p)
	cfg.ResponseMIMEType = "application/json"

	ctx, span := observability.StartSpan(ctx, "gemini json", attribute.String("llm.model", model))
	start := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, model, contents, cfg)
	c.observe(model, err, start)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("gemini generate json: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(resp.Text()), &obj); err != nil {
		return nil, fmt.Errorf("gemini json output (%s): %w", schemaName, err)
	}
	return obj, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	start := time.Now()
	res, err := c.genai.Models.EmbedContent(ctx, c.embedModel, contents, nil)
	c.observe(c.embedModel, err, start)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	out := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

func (c *Client) observe(model string, err error, start time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.ObserveLLMRequest(providerName, model, status, time.Since(start))
}
