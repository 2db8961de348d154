package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/learnmate-backend/internal/ai/llm"
	"github.com/yungbote/learnmate-backend/internal/ai/resources"
	"github.com/yungbote/learnmate-backend/internal/platform/gcp"
)

type YouTubeSource struct {
	API gcp.YouTube
}

func (s *YouTubeSource) Type() ContentType { return Video }

func (s *YouTubeSource) Search(ctx context.Context, query string, f Filters, max int, safe bool) ([]Item, error) {
	if s == nil || s.API == nil {
		return nil, fmt.Errorf("youtube source not configured")
	}
	hits, err := s.API.SearchVideos(ctx, gcp.VideoQuery{
		Query:           query,
		MaxResults:      max,
		SafeSearch:      safe,
		Language:        f.Language,
		PublishedAfter:  f.MinDate,
		PublishedBefore: f.MaxDate,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(hits))
	for _, h := range hits {
		out = append(out, Item{
			ID:           "video-" + h.VideoID,
			Title:        h.Title,
			Description:  h.Description,
			URL:          h.URL(),
			MediaURL:     h.URL(),
			ThumbnailURL: h.ThumbnailURL,
			Author:       h.ChannelTitle,
			Source:       "youtube",
			Type:         Video,
			PublishedAt:  h.PublishedAt,
			Language:     f.Language,
		})
	}
	return out, nil
}

type BooksSource struct {
	API gcp.Books
}

func (s *BooksSource) Type() ContentType { return Book }

func (s *BooksSource) Search(ctx context.Context, query string, f Filters, max int, _ bool) ([]Item, error) {
	if s == nil || s.API == nil {
		return nil, fmt.Errorf("books source not configured")
	}
	hits, err := s.API.SearchBooks(ctx, gcp.BookQuery{Query: query, MaxResults: max, Language: f.Language})
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(hits))
	for _, h := range hits {
		it := Item{
			ID:           "book-" + h.VolumeID,
			Title:        h.Title,
			Description:  h.Description,
			URL:          h.InfoURL,
			ThumbnailURL: h.ThumbnailURL,
			Author:       strings.Join(h.Authors, ", "),
			Source:       "google_books",
			Type:         Book,
			PublishedAt:  h.PublishedAt,
			Language:     h.Language,
		}
		if h.PageCount > 0 {
			it.Metadata = map[string]any{"page_count": h.PageCount}
		}
		out = append(out, it)
	}
	return out, nil
}

const generatorModel = "content_generator"

var generatedSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":       map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"author":      map[string]any{"type": "string"},
					"url":         map[string]any{"type": "string"},
					"minutes":     map[string]any{"type": "integer"},
					"language":    map[string]any{"type": "string"},
					"topics":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required":             []string{"title", "description", "author", "url", "minutes", "language", "topics"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"items"},
	"additionalProperties": false,
}

// GeneratedSource produces course or podcast suggestions with the shared
// "content_generator" model resource.
type GeneratedSource struct {
	Kind      ContentType
	Resources *resources.Manager
	// Model is the provider model id; empty uses the provider default.
	Model string
	now   func() time.Time
}

func NewGeneratedSource(kind ContentType, rm *resources.Manager, model string) *GeneratedSource {
	return &GeneratedSource{Kind: kind, Resources: rm, Model: model, now: time.Now}
}

func (s *GeneratedSource) Type() ContentType { return s.Kind }

func (s *GeneratedSource) Search(ctx context.Context, query string, f Filters, max int, _ bool) ([]Item, error) {
	if s == nil || s.Resources == nil {
		return nil, fmt.Errorf("content generator not configured")
	}
	var raw map[string]any
	var opts map[string]any
	if s.Model != "" {
		opts = map[string]any{"model": s.Model}
	}
	err := s.Resources.With(ctx, resources.Model, generatorModel, opts, func(r resources.Resource) error {
		h, ok := r.(*resources.ModelHandle)
		if !ok {
			return fmt.Errorf("unexpected resource %T", r)
		}
		system := fmt.Sprintf("You recommend real, well-known educational %ss. Only suggest resources you are confident exist.", s.Kind)
		user := fmt.Sprintf("Suggest up to %d %ss for someone learning about: %s", max, s.Kind, query)
		if f.Language != "" {
			user += "\nLanguage: " + f.Language
		}
		var err error
		raw, err = h.GenerateJSON(ctx, system, user, string(s.Kind)+"_suggestions", generatedSchema, h.Params(llm.Params{}))
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.toItems(raw, query, max), nil
}

func (s *GeneratedSource) toItems(raw map[string]any, query string, max int) []Item {
	list, _ := raw["items"].([]any)
	now := time.Now()
	if s.now != nil {
		now = s.now()
	}
	out := make([]Item, 0, len(list))
	for i, e := range list {
		if max > 0 && len(out) >= max {
			break
		}
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		id := string(s.Kind) + "-" + uuid.NewString()
		it := Item{
			ID:          id,
			Title:       str(m, "title", fmt.Sprintf("%s %s %d", query, s.Kind, i+1)),
			Description: str(m, "description", fmt.Sprintf("A %s about %s", s.Kind, query)),
			URL:         str(m, "url", ""),
			Author:      str(m, "author", ""),
			Source:      "generated",
			Type:        s.Kind,
			Language:    str(m, "language", "en"),
		}
		if mins, ok := m["minutes"].(float64); ok && mins > 0 {
			it.Duration = strconv.Itoa(int(mins)) + "m"
		}
		if topics, ok := m["topics"].([]any); ok {
			ts := make([]string, 0, len(topics))
			for _, t := range topics {
				if v, ok := t.(string); ok {
					ts = append(ts, v)
				}
			}
			it.Metadata = map[string]any{"topics": ts}
		}
		if s.Kind == Podcast {
			at := now.AddDate(0, 0, -((i * 7) % 60))
			it.PublishedAt = &at
		}
		out = append(out, it)
	}
	return out
}

func str(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
