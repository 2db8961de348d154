package retrieval

import (
	"context"
	"time"
)

type ContentType string

const (
	Video   ContentType = "video"
	Book    ContentType = "book"
	Course  ContentType = "course"
	Podcast ContentType = "podcast"
)

// AllTypes is the fixed fan-out order.
var AllTypes = []ContentType{Video, Book, Course, Podcast}

type RelevanceLevel string

const (
	High      RelevanceLevel = "high"
	Medium    RelevanceLevel = "medium"
	Low       RelevanceLevel = "low"
	Unrelated RelevanceLevel = "unrelated"
)

// Rank orders levels, higher is more relevant.
func (r RelevanceLevel) Rank() int {
	switch r {
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	default:
		return 0
	}
}

type Item struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	URL          string         `json:"url"`
	MediaURL     string         `json:"media_url,omitempty"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
	Author       string         `json:"author,omitempty"`
	Source       string         `json:"source"`
	Type         ContentType    `json:"type"`
	PublishedAt  *time.Time     `json:"published_at,omitempty"`
	Duration     string         `json:"duration,omitempty"`
	Language     string         `json:"language,omitempty"`
	Relevance    RelevanceLevel `json:"relevance,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

const defaultLanguage = "en"

type Filters struct {
	MinDate  *time.Time `json:"min_date,omitempty"`
	MaxDate  *time.Time `json:"max_date,omitempty"`
	Language string     `json:"language,omitempty"`
}

// Keep reports whether it passes the filters. An undated item counts as
// published at now and an item without a language counts as "en".
func (f *Filters) Keep(it Item, now time.Time) bool {
	if f == nil {
		return true
	}
	published := now
	if it.PublishedAt != nil {
		published = *it.PublishedAt
	}
	if f.MinDate != nil && published.Before(*f.MinDate) {
		return false
	}
	if f.MaxDate != nil && published.After(*f.MaxDate) {
		return false
	}
	lang := it.Language
	if lang == "" {
		lang = defaultLanguage
	}
	if f.Language != "" && lang != f.Language {
		return false
	}
	return true
}

type Source interface {
	Type() ContentType
	Search(ctx context.Context, query string, f Filters, max int, safe bool) ([]Item, error)
}
