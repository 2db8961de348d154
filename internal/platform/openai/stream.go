package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/learnmate-backend/internal/ai/llm"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/ctxutil"
)

// Stream requests a chunked completion and forwards content deltas. It does
// not retry once the first byte has been delivered.
func (c *Client) Stream(ctx context.Context, msgs []llm.Message, p llm.Params, onDelta func(delta string) error) (string, error) {
	ctx = ctxutil.Default(ctx)
	req := c.buildRequest(msgs, p)
	req.Stream = true

	ctx, span := observability.StartSpan(ctx, "openai stream",
		attribute.String("llm.provider", providerName),
		attribute.String("llm.model", req.Model),
	)
	start := time.Now()

	resp, _, err := c.doOnce(ctx, http.MethodPost, "/v1/chat/completions", req, "text/event-stream")
	if err != nil {
		c.metrics.ObserveLLMRequest(providerName, req.Model, statusLabel(err), time.Since(start))
		observability.EndSpan(span, err)
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = streamSSE(resp.Body, func(_ string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			return nil
		}
		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Content == "" {
				continue
			}
			full.WriteString(ch.Delta.Content)
			if onDelta != nil {
				if err := onDelta(ch.Delta.Content); err != nil {
					return err
				}
			}
		}
		return nil
	})
	c.metrics.ObserveLLMRequest(providerName, req.Model, statusLabel(err), time.Since(start))
	observability.EndSpan(span, err)
	if err != nil {
		return full.String(), err
	}
	if full.Len() == 0 {
		return "", llm.ErrEmptyCompletion
	}
	return full.String(), nil
}
