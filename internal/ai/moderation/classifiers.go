package moderation

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/ai/llm"
	"github.com/yungbote/learnmate-backend/internal/ai/resources"
	"github.com/yungbote/learnmate-backend/internal/platform/gcp"
)

const textSchemaName = "moderation_verdict"

var textSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"is_safe":    map[string]any{"type": "boolean"},
		"reason":     map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
	},
	"required":             []string{"is_safe", "reason", "confidence"},
	"additionalProperties": false,
}

const textSystemPrompt = `You are a content safety classifier for an educational platform used by students.
Decide whether the text is safe. Unsafe means hateful, harassing, sexually explicit, violent, self-harm encouraging or otherwise harmful.
Return is_safe, a short reason (empty when safe) and your confidence between 0 and 1.`

// LLMTextClassifier asks a JSON-schema constrained model for a verdict. With
// Resources set, each call holds the shared "model" resource registered under
// Name; otherwise Client is used directly.
type LLMTextClassifier struct {
	Client    llm.Client
	Resources *resources.Manager
	Name      string
}

func NewLLMTextClassifier(client llm.Client, rm *resources.Manager, cfg config.Config) *LLMTextClassifier {
	return &LLMTextClassifier{Client: client, Resources: rm, Name: cfg.Model("content_moderation", "text")}
}

// ClassifyText flags content only when the model says unsafe with at least
// threshold confidence.
func (c *LLMTextClassifier) ClassifyText(ctx context.Context, text string, threshold float64) (Result, error) {
	if c == nil || (c.Client == nil && c.Resources == nil) {
		return Result{}, fmt.Errorf("text classifier not configured")
	}
	var out map[string]any
	classify := func(client llm.Client, p llm.Params) error {
		var err error
		out, err = client.GenerateJSON(ctx, textSystemPrompt, text, textSchemaName, textSchema, p)
		return err
	}
	params := llm.Params{Temperature: llm.Temperature(0)}
	var err error
	if c.Resources != nil {
		err = c.Resources.With(ctx, resources.Model, c.Name, nil, func(r resources.Resource) error {
			h, ok := r.(*resources.ModelHandle)
			if !ok {
				return fmt.Errorf("unexpected resource %T", r)
			}
			return classify(h.Client, h.Params(params))
		})
	} else {
		err = classify(c.Client, params)
	}
	if err != nil {
		return Result{}, fmt.Errorf("classify text: %w", err)
	}
	isSafe, _ := out["is_safe"].(bool)
	conf, _ := out["confidence"].(float64)
	reason, _ := out["reason"].(string)
	if !isSafe && conf >= threshold {
		if strings.TrimSpace(reason) == "" {
			reason = "Content flagged by classifier"
		}
		return Result{IsSafe: false, Reason: reason, Confidence: conf}, nil
	}
	if conf == 0 {
		conf = 1
	}
	return Result{IsSafe: true, Confidence: conf}, nil
}

// SafeSearchDetector is satisfied by gcp.SafeSearch.
type SafeSearchDetector interface {
	DetectSafeSearch(ctx context.Context, imageURL string) (gcp.SafeSearchResult, error)
}

// VisionImageClassifier flags images whose adult, violence or racy
// likelihood is LIKELY or above. With Resources set, detection runs while
// holding the "model" resource registered under Name.
type VisionImageClassifier struct {
	Detector  SafeSearchDetector
	Resources *resources.Manager
	Name      string
}

func NewVisionImageClassifier(d SafeSearchDetector, rm *resources.Manager, cfg config.Config) *VisionImageClassifier {
	return &VisionImageClassifier{Detector: d, Resources: rm, Name: cfg.Model("content_moderation", "image")}
}

func (c *VisionImageClassifier) ClassifyImage(ctx context.Context, imageURL string, _ float64) (Result, error) {
	if c == nil || c.Detector == nil {
		return Result{}, fmt.Errorf("image classifier not configured")
	}
	var res gcp.SafeSearchResult
	detect := func() error {
		var err error
		res, err = c.Detector.DetectSafeSearch(ctx, imageURL)
		return err
	}
	var err error
	if c.Resources != nil {
		err = c.Resources.With(ctx, resources.Model, c.Name, nil, func(resources.Resource) error { return detect() })
	} else {
		err = detect()
	}
	if err != nil {
		return Result{}, fmt.Errorf("classify image: %w", err)
	}
	worst, category := res.Worst()
	if worst < gcp.Likely {
		return Result{IsSafe: true, Confidence: 1}, nil
	}
	conf := 0.75
	if worst == gcp.VeryLikely {
		conf = 0.9
	}
	return Result{IsSafe: false, Reason: "Image flagged as " + category, Confidence: conf}, nil
}
