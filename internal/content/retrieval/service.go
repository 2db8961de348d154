package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/learnmate-backend/internal/ai/cache"
	"github.com/yungbote/learnmate-backend/internal/ai/degrade"
	"github.com/yungbote/learnmate-backend/internal/ai/moderation"
	"github.com/yungbote/learnmate-backend/internal/platform/breaker"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const DefaultMaxResults = 5

// TextChecker is the slice of the moderator used to screen results.
type TextChecker interface {
	CheckText(ctx context.Context, text string, contentCtx map[string]any) (moderation.Result, error)
}

// Recorder receives per-source outcomes. *observability.Metrics satisfies it.
type Recorder interface {
	IncContentSource(source, status string)
}

type Service struct {
	log       *logger.Logger
	sources   map[ContentType]Source
	breakers  map[ContentType]*breaker.Breaker
	moderator TextChecker
	rec       Recorder
	cache     *cache.ResultCache
	now       func() time.Time
}

type ServiceOption func(*Service)

// WithBreakers guards each source with its own breaker.
func WithBreakers(newBreaker func(name string) *breaker.Breaker) ServiceOption {
	return func(s *Service) {
		for typ := range s.sources {
			s.breakers[typ] = newBreaker("content_" + string(typ))
		}
	}
}

func WithModerator(m TextChecker) ServiceOption {
	return func(s *Service) { s.moderator = m }
}

func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.rec = r }
}

// WithCache memoises searches under the "recommendations" TTL. Cached maps
// are shared between callers and must not be mutated.
func WithCache(c *cache.ResultCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithClock sets the time undated items are treated as published at.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(log *logger.Logger, sources []Source, opts ...ServiceOption) *Service {
	s := &Service{
		log:      logger.OrNop(log).With("service", "ContentRetrievalService"),
		sources:  make(map[ContentType]Source, len(sources)),
		breakers: make(map[ContentType]*breaker.Breaker, len(sources)),
		now:      time.Now,
	}
	for _, src := range sources {
		if src != nil {
			s.sources[src.Type()] = src
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchAllSources queries every content type concurrently. A failing source
// contributes an empty list; every type key is always present.
func (s *Service) SearchAllSources(ctx context.Context, query string, filters *Filters, maxResults int, safeSearch bool) map[ContentType][]Item {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	var f Filters
	if filters != nil {
		f = *filters
	}
	out, _ := cache.Do(ctx, s.cache, "recommendations", "content_search",
		[]any{strings.ToLower(strings.TrimSpace(query)), maxResults, filterKey(f), cache.KV{K: "safe", V: safeSearch}},
		func(ctx context.Context) (map[ContentType][]Item, error) {
			return s.searchAll(ctx, query, f, maxResults, safeSearch), nil
		})
	return out
}

func (s *Service) searchAll(ctx context.Context, query string, f Filters, maxResults int, safeSearch bool) map[ContentType][]Item {
	var (
		mu  sync.Mutex
		out = make(map[ContentType][]Item, len(AllTypes))
	)
	for _, typ := range AllTypes {
		out[typ] = []Item{}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, typ := range AllTypes {
		src, ok := s.sources[typ]
		if !ok {
			continue
		}
		g.Go(func() error {
			items := s.searchOne(gctx, src, query, f, maxResults, safeSearch)
			mu.Lock()
			out[typ] = items
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Service) searchOne(ctx context.Context, src Source, query string, f Filters, maxResults int, safeSearch bool) []Item {
	typ := src.Type()
	start := time.Now()
	failed := false
	raw := degrade.Fallback(ctx, s.log, "content_search_"+string(typ), []Item{}, func(ctx context.Context) ([]Item, error) {
		items, err := breaker.Do(s.breakers[typ], func() ([]Item, error) {
			return src.Search(ctx, query, f, maxResults, safeSearch)
		})
		if err != nil {
			failed = true
		}
		return items, err
	})
	if s.rec != nil {
		status := "ok"
		if failed {
			status = "error"
		}
		s.rec.IncContentSource(string(typ), status)
	}

	items := make([]Item, 0, len(raw))
	for _, it := range raw {
		if !f.Keep(it, s.now()) {
			continue
		}
		if safeSearch && !s.safe(ctx, it) {
			continue
		}
		it.Relevance = ScoreRelevance(query, itemText(it))
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Relevance.Rank() > items[j].Relevance.Rank()
	})
	if len(items) > maxResults {
		items = items[:maxResults]
	}
	s.log.Debug("Content source searched",
		"content_type", typ,
		"results", len(items),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return items
}

func (s *Service) safe(ctx context.Context, it Item) bool {
	if s.moderator == nil {
		return true
	}
	text := strings.TrimSpace(it.Title + " " + it.Description)
	if text == "" {
		return true
	}
	r, err := s.moderator.CheckText(ctx, text, map[string]any{"content_type": string(it.Type), "source": it.Source})
	if err != nil {
		return false
	}
	if !r.IsSafe {
		s.log.Info("Dropping unsafe search result", "content_type", it.Type, "id", it.ID, "reason", r.Reason)
	}
	return r.IsSafe
}

func filterKey(f Filters) string {
	var b strings.Builder
	if f.MinDate != nil {
		b.WriteString(f.MinDate.UTC().Format(time.RFC3339))
	}
	b.WriteByte('|')
	if f.MaxDate != nil {
		b.WriteString(f.MaxDate.UTC().Format(time.RFC3339))
	}
	b.WriteByte('|')
	b.WriteString(f.Language)
	return b.String()
}
