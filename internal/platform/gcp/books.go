package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	books "google.golang.org/api/books/v1"

	"github.com/yungbote/learnmate-backend/internal/platform/ctxutil"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type BookQuery struct {
	Query      string
	MaxResults int
	Language   string
}

type BookHit struct {
	VolumeID     string
	Title        string
	Description  string
	Authors      []string
	InfoURL      string
	ThumbnailURL string
	Language     string
	PageCount    int64
	PublishedAt  *time.Time
}

type Books interface {
	SearchBooks(ctx context.Context, q BookQuery) ([]BookHit, error)
}

type booksService struct {
	log *logger.Logger
	svc *books.Service
}

func NewBooks(ctx context.Context, log *logger.Logger, apiKey, endpoint string) (Books, error) {
	svc, err := books.NewService(ctxutil.Default(ctx), APIOptions(apiKey, endpoint)...)
	if err != nil {
		return nil, fmt.Errorf("books client: %w", err)
	}
	return &booksService{log: logger.OrNop(log).With("service", "gcp.Books"), svc: svc}, nil
}

func (s *booksService) SearchBooks(ctx context.Context, q BookQuery) ([]BookHit, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, nil
	}
	max := q.MaxResults
	if max <= 0 {
		max = 5
	}
	if max > 40 {
		max = 40
	}
	call := s.svc.Volumes.List(q.Query).MaxResults(int64(max)).PrintType("books")
	if q.Language != "" {
		call = call.LangRestrict(q.Language)
	}
	resp, err := call.Context(ctxutil.Default(ctx)).Do()
	if err != nil {
		return nil, fmt.Errorf("books search: %w", err)
	}

	out := make([]BookHit, 0, len(resp.Items))
	for _, v := range resp.Items {
		if v == nil || v.VolumeInfo == nil {
			continue
		}
		info := v.VolumeInfo
		title := info.Title
		if info.Subtitle != "" {
			title += ": " + info.Subtitle
		}
		hit := BookHit{
			VolumeID:    v.Id,
			Title:       collapseWhitespace(title),
			Description: collapseWhitespace(info.Description),
			Authors:     info.Authors,
			InfoURL:     info.InfoLink,
			Language:    info.Language,
			PageCount:   info.PageCount,
			PublishedAt: parsePublishedDate(info.PublishedDate),
		}
		if info.ImageLinks != nil {
			hit.ThumbnailURL = info.ImageLinks.Thumbnail
		}
		out = append(out, hit)
	}
	s.log.Debug("Books search", "query_len", len(q.Query), "results", len(out))
	return out, nil
}

// parsePublishedDate accepts the "2006", "2006-01" and "2006-01-02" forms the
// Books API returns.
func parsePublishedDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
