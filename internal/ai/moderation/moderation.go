// Package moderation screens user input, AI output and images for harmful
// content. A cheap pattern check runs first; longer text and images go to a
// remote classifier. Classifier outages fail open unless configured otherwise.
package moderation

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const (
	RefusalMessage      = "I'm sorry, I can't provide that content."
	harmfulLanguage     = "Content contains prohibited language"
	unavailableReason   = "moderation unavailable"
	remoteTextMinLength = 50
	patternConfidence   = 0.9
	degradedConfidence  = 0.5
	fullConfidence      = 1.0
)

var harmfulPattern = regexp.MustCompile(`(?i)\b(hate|racial slur|violent)\b`)

// Result is a moderation verdict. Reason is empty for safe content.
type Result struct {
	IsSafe     bool    `json:"is_safe"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence"`
}

func safe(conf float64) Result { return Result{IsSafe: true, Confidence: conf} }

type TextClassifier interface {
	ClassifyText(ctx context.Context, text string, threshold float64) (Result, error)
}

type ImageClassifier interface {
	ClassifyImage(ctx context.Context, imageURL string, threshold float64) (Result, error)
}

// Recorder receives moderation decisions. *observability.Metrics satisfies it.
type Recorder interface {
	IncModeration(path, verdict string)
}

type Moderator struct {
	cfg   config.Config
	log   *logger.Logger
	text  TextClassifier
	image ImageClassifier
	rec   Recorder
}

func New(cfg config.Config, log *logger.Logger, text TextClassifier, image ImageClassifier, rec Recorder) *Moderator {
	return &Moderator{
		cfg:   cfg,
		log:   logger.OrNop(log).With("service", "ContentModerator"),
		text:  text,
		image: image,
		rec:   rec,
	}
}

func (m *Moderator) record(path string, r Result) Result {
	if m.rec != nil {
		verdict := "safe"
		if !r.IsSafe {
			verdict = "unsafe"
		}
		m.rec.IncModeration(path, verdict)
	}
	return r
}

func (m *Moderator) degraded(path string, err error) Result {
	m.log.Warn("Moderation classifier unavailable", "path", path, "fail_open", m.cfg.ModerationFailOpen, "error", err)
	if m.rec != nil {
		m.rec.IncModeration(path, "degraded")
	}
	if m.cfg.ModerationFailOpen {
		return safe(degradedConfidence)
	}
	return Result{IsSafe: false, Reason: unavailableReason, Confidence: degradedConfidence}
}

// CheckText moderates text. The returned error is reserved for caller
// cancellation; classifier failures are absorbed per the fail-open policy.
func (m *Moderator) CheckText(ctx context.Context, text string, contentCtx map[string]any) (Result, error) {
	if m == nil || !m.cfg.ContentModerationEnabled {
		return safe(fullConfidence), nil
	}
	if harmfulPattern.MatchString(text) {
		m.log.Info("Text flagged by pattern check", "content_type", contentCtx["content_type"])
		return m.record("pattern", Result{IsSafe: false, Reason: harmfulLanguage, Confidence: patternConfidence}), nil
	}
	if utf8.RuneCountInString(text) > remoteTextMinLength && m.text != nil {
		r, err := m.text.ClassifyText(ctx, text, m.cfg.ContentModerationThreshold)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			return m.degraded("text", err), nil
		}
		return m.record("text", r), nil
	}
	return safe(fullConfidence), nil
}

func (m *Moderator) CheckImage(ctx context.Context, imageURL string, contentCtx map[string]any) (Result, error) {
	if m == nil || !m.cfg.ContentModerationEnabled {
		return safe(fullConfidence), nil
	}
	if strings.TrimSpace(imageURL) == "" || m.image == nil {
		return safe(fullConfidence), nil
	}
	r, err := m.image.ClassifyImage(ctx, imageURL, m.cfg.ContentModerationThreshold)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return m.degraded("image", err), nil
	}
	return m.record("image", r), nil
}

// ModerateAIResponse replaces unsafe model output with a refusal.
func (m *Moderator) ModerateAIResponse(ctx context.Context, text string, contentCtx map[string]any) string {
	if contentCtx == nil {
		contentCtx = map[string]any{}
	}
	if _, ok := contentCtx["content_type"]; !ok {
		contentCtx["content_type"] = "ai_response"
	}
	r, err := m.CheckText(ctx, text, contentCtx)
	if err != nil {
		return text
	}
	if !r.IsSafe {
		m.log.Warn("AI response replaced by refusal", "reason", r.Reason)
		return RefusalMessage
	}
	return text
}

var (
	textFields  = []string{"text", "title", "description", "caption"}
	imageFields = []string{"image_url", "media_url", "thumbnail_url"}
)

// CheckUserContent moderates a string or a map of user-submitted fields.
// The first unsafe verdict wins.
func (m *Moderator) CheckUserContent(ctx context.Context, content any, contentType string) (Result, error) {
	contentCtx := map[string]any{"content_type": contentType}
	switch v := content.(type) {
	case string:
		return m.CheckText(ctx, v, contentCtx)
	case map[string]any:
		var parts []string
		for _, f := range textFields {
			if s, ok := v[f].(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			r, err := m.CheckText(ctx, strings.Join(parts, " "), contentCtx)
			if err != nil || !r.IsSafe {
				return r, err
			}
		}
		for _, f := range imageFields {
			s, ok := v[f].(string)
			if !ok || strings.TrimSpace(s) == "" {
				continue
			}
			r, err := m.CheckImage(ctx, s, contentCtx)
			if err != nil || !r.IsSafe {
				return r, err
			}
		}
	}
	return safe(fullConfidence), nil
}
