package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/learnmate-backend/internal/ai/llm"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/ctxutil"
	"github.com/yungbote/learnmate-backend/internal/platform/envutil"
	"github.com/yungbote/learnmate-backend/internal/platform/httpx"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const providerName = "openai"

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	EmbedModel string
	Timeout    time.Duration
	MaxRetries int
}

// ConfigFromEnv reads OPENAI_* variables.
func ConfigFromEnv() Config {
	return Config{
		APIKey:     envutil.String("OPENAI_API_KEY", ""),
		BaseURL:    envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
		Model:      envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		EmbedModel: envutil.String("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		Timeout:    time.Duration(envutil.Int("OPENAI_TIMEOUT_SECONDS", 180)) * time.Second,
		MaxRetries: envutil.Int("OPENAI_MAX_RETRIES", 4),
	}
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	log        *logger.Logger
	metrics    *observability.Metrics
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

var _ llm.Client = (*Client)(nil)
var _ llm.Embedder = (*Client)(nil)

func NewClient(log *logger.Logger, metrics *observability.Metrics, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		log:        logger.OrNop(log).With("client", "OpenAIClient"),
		metrics:    metrics,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		backoff:    time.Second,
	}, nil
}

func (c *Client) Provider() string { return providerName }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) buildRequest(msgs []llm.Message, p llm.Params) chatRequest {
	model := strings.TrimSpace(p.Model)
	if model == "" {
		model = c.model
	}
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return chatRequest{
		Model:       model,
		Messages:    out,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
}

func (c *Client) Complete(ctx context.Context, msgs []llm.Message, p llm.Params) (string, error) {
	req := c.buildRequest(msgs, p)
	var resp chatResponse
	if err := c.do(ctx, http.MethodPost, "/v1/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", llm.ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any, p llm.Params) (map[string]any, error) {
	req := c.buildRequest([]llm.Message{llm.System(system), llm.User(user)}, p)
	req.ResponseFormat = &responseFormat{
		Type:       "json_schema",
		JSONSchema: &jsonSchemaSpec{Name: schemaName, Schema: schema, Strict: true},
	}
	var resp chatResponse
	if err := c.do(ctx, http.MethodPost, "/v1/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, llm.ErrEmptyCompletion
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &obj); err != nil {
		return nil, fmt.Errorf("openai json output (%s): %w", schemaName, err)
	}
	return obj, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	clean := make([]string, len(texts))
	for i, s := range texts {
		if s = strings.TrimSpace(s); s == "" {
			s = " "
		}
		clean[i] = s
	}
	var resp embeddingsResponse
	if err := c.do(ctx, http.MethodPost, "/v1/embeddings", embeddingsRequest{Model: c.embedModel, Input: clean}, &resp); err != nil {
		return nil, err
	}
	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("openai embeddings: missing vector at index %d", i)
		}
	}
	return out, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any, accept string) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if accept == "text/event-stream" && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// caller owns the body
		return resp, nil, nil
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpx.StatusError{Service: providerName, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// do retries transient failures with exponential backoff, honouring Retry-After.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	ctx = ctxutil.Default(ctx)
	model := modelOf(body)
	ctx, span := observability.StartSpan(ctx, "openai "+path,
		attribute.String("llm.provider", providerName),
		attribute.String("llm.model", model),
	)
	start := time.Now()
	backoff := c.backoff

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		resp, raw, err := c.doOnce(ctx, method, path, body, "")
		if err == nil {
			c.metrics.ObserveLLMRequest(providerName, model, "ok", time.Since(start))
			observability.EndSpan(span, nil)
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}
		lastErr = err
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			break
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			lastErr = err
			break
		}
		backoff *= 2
	}
	c.metrics.ObserveLLMRequest(providerName, model, statusLabel(lastErr), time.Since(start))
	observability.EndSpan(span, lastErr)
	return lastErr
}

func modelOf(body any) string {
	switch b := body.(type) {
	case chatRequest:
		return b.Model
	case embeddingsRequest:
		return b.Model
	default:
		return ""
	}
}

func statusLabel(err error) string {
	var se *httpx.StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &se):
		return fmt.Sprintf("http_%d", se.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
