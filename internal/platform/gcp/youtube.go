package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/youtube/v3"

	"github.com/yungbote/learnmate-backend/internal/platform/ctxutil"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type VideoQuery struct {
	Query           string
	MaxResults      int
	SafeSearch      bool
	Language        string
	PublishedAfter  *time.Time
	PublishedBefore *time.Time
}

type VideoHit struct {
	VideoID      string
	Title        string
	Description  string
	ChannelTitle string
	ThumbnailURL string
	PublishedAt  *time.Time
}

func (h VideoHit) URL() string { return "https://www.youtube.com/watch?v=" + h.VideoID }

type YouTube interface {
	SearchVideos(ctx context.Context, q VideoQuery) ([]VideoHit, error)
}

type youTubeService struct {
	log *logger.Logger
	svc *youtube.Service
}

// NewYouTube builds a Data API v3 client. endpoint is optional.
func NewYouTube(ctx context.Context, log *logger.Logger, apiKey, endpoint string) (YouTube, error) {
	svc, err := youtube.NewService(ctxutil.Default(ctx), APIOptions(apiKey, endpoint)...)
	if err != nil {
		return nil, fmt.Errorf("youtube client: %w", err)
	}
	return &youTubeService{log: logger.OrNop(log).With("service", "gcp.YouTube"), svc: svc}, nil
}

func (s *youTubeService) SearchVideos(ctx context.Context, q VideoQuery) ([]VideoHit, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, nil
	}
	max := q.MaxResults
	if max <= 0 {
		max = 5
	}
	call := s.svc.Search.List([]string{"snippet"}).
		Q(q.Query).
		Type("video").
		MaxResults(int64(max))
	if q.SafeSearch {
		call = call.SafeSearch("strict")
	} else {
		call = call.SafeSearch("moderate")
	}
	if q.Language != "" {
		call = call.RelevanceLanguage(q.Language)
	}
	if q.PublishedAfter != nil {
		call = call.PublishedAfter(q.PublishedAfter.UTC().Format(time.RFC3339))
	}
	if q.PublishedBefore != nil {
		call = call.PublishedBefore(q.PublishedBefore.UTC().Format(time.RFC3339))
	}
	resp, err := call.Context(ctxutil.Default(ctx)).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}

	out := make([]VideoHit, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it == nil || it.Id == nil || it.Id.VideoId == "" || it.Snippet == nil {
			continue
		}
		hit := VideoHit{
			VideoID:      it.Id.VideoId,
			Title:        collapseWhitespace(it.Snippet.Title),
			Description:  collapseWhitespace(it.Snippet.Description),
			ChannelTitle: it.Snippet.ChannelTitle,
			ThumbnailURL: bestThumbnail(it.Snippet.Thumbnails),
		}
		if t, err := time.Parse(time.RFC3339, it.Snippet.PublishedAt); err == nil {
			hit.PublishedAt = &t
		}
		out = append(out, hit)
	}
	s.log.Debug("YouTube search", "query_len", len(q.Query), "results", len(out))
	return out, nil
}

func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
