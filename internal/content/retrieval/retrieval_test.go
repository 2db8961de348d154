package retrieval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/ai/llm/llmtest"
	"github.com/yungbote/learnmate-backend/internal/ai/moderation"
	"github.com/yungbote/learnmate-backend/internal/ai/resources"
	"github.com/yungbote/learnmate-backend/internal/platform/breaker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	typ   ContentType
	items []Item
	err   error
	calls int32
}

func (f *fakeSource) Type() ContentType { return f.typ }

func (f *fakeSource) Search(ctx context.Context, query string, _ Filters, _ int, _ bool) ([]Item, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return append([]Item(nil), f.items...), nil
}

func item(typ ContentType, id, title string) Item {
	return Item{ID: id, Title: title, Type: typ, Source: "fake"}
}

func allSources() (map[ContentType]*fakeSource, []Source) {
	m := map[ContentType]*fakeSource{}
	var list []Source
	for _, typ := range AllTypes {
		f := &fakeSource{typ: typ, items: []Item{
			item(typ, string(typ)+"-1", "Cooking pasta at home"),
			item(typ, string(typ)+"-2", "Photosynthesis explained"),
			item(typ, string(typ)+"-3", "How plants make energy from light"),
		}}
		m[typ] = f
		list = append(list, f)
	}
	return m, list
}

func TestScoreRelevance(t *testing.T) {
	cases := []struct {
		query, text string
		want        RelevanceLevel
	}{
		{"photosynthesis", "Photosynthesis explained", High},
		{"alpha beta gamma delta epsilon", "alpha beta gamma delta", High},
		{"cell biology energy", "cell energy basics", Medium},
		{"quantum chromodynamics lattice", "lattice gauge theory", Low},
		{"photosynthesis", "cooking pasta", Unrelated},
		{"what is dna", "dna replication", Low},
		{"how do cells divide", "how cells divide", Medium},
		{"   ", "anything", Unrelated},
	}
	for _, tc := range cases {
		if got := ScoreRelevance(tc.query, tc.text); got != tc.want {
			t.Errorf("ScoreRelevance(%q, %q) = %s, want %s", tc.query, tc.text, got, tc.want)
		}
	}
}

func TestOneFailingSourceLeavesOthersPopulated(t *testing.T) {
	fakes, list := allSources()
	fakes[Book].err = errors.New("books api down")
	svc := NewService(nil, list)

	out := svc.SearchAllSources(context.Background(), "photosynthesis", nil, 0, false)
	if len(out) != len(AllTypes) {
		t.Fatalf("expected every type key, got %v", out)
	}
	if got, ok := out[Book]; !ok || got == nil || len(got) != 0 {
		t.Fatalf("failing source must yield an empty list, got %#v", got)
	}
	for _, typ := range []ContentType{Video, Course, Podcast} {
		if len(out[typ]) == 0 {
			t.Fatalf("%s should have results", typ)
		}
	}
}

func TestResultsSortedAndTruncated(t *testing.T) {
	_, list := allSources()
	svc := NewService(nil, list)

	out := svc.SearchAllSources(context.Background(), "photosynthesis", nil, 2, false)
	for _, typ := range AllTypes {
		got := out[typ]
		if len(got) != 2 {
			t.Fatalf("%s: expected 2 results, got %d", typ, len(got))
		}
		if got[0].Relevance != High || got[0].ID != string(typ)+"-2" {
			t.Fatalf("%s: most relevant first, got %+v", typ, got[0])
		}
	}
}

func TestMissingSourceStillHasKey(t *testing.T) {
	svc := NewService(nil, []Source{&fakeSource{typ: Video, items: []Item{item(Video, "v", "x")}}})
	out := svc.SearchAllSources(context.Background(), "x", nil, 5, false)
	if _, ok := out[Podcast]; !ok || len(out[Video]) != 1 {
		t.Fatalf("unexpected result %v", out)
	}
}

func TestFiltersDropOutOfWindowAndLanguage(t *testing.T) {
	old := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	min := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{typ: Book, items: []Item{
		{ID: "old", Title: "a", Type: Book, PublishedAt: &old, Language: "en"},
		{ID: "fr", Title: "b", Type: Book, PublishedAt: &recent, Language: "fr"},
		{ID: "ok", Title: "c", Type: Book, PublishedAt: &recent, Language: "en"},
		{ID: "undated", Title: "d", Type: Book},
	}}
	svc := NewService(nil, []Source{src})
	out := svc.SearchAllSources(context.Background(), "q", &Filters{MinDate: &min, Language: "en"}, 10, false)

	var ids []string
	for _, it := range out[Book] {
		ids = append(ids, it.ID)
	}
	if len(ids) != 2 || ids[0] != "ok" || ids[1] != "undated" {
		t.Fatalf("unexpected filtered ids %v", ids)
	}
}

func TestFiltersDefaultUndatedAndUnlabelledItems(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	maxDate := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{typ: Book, items: []Item{
		{ID: "undated", Title: "a", Type: Book, Language: "en"},
		{ID: "unlabelled", Title: "b", Type: Book},
	}}
	svc := NewService(nil, []Source{src}, WithClock(func() time.Time { return now }))

	if out := svc.SearchAllSources(context.Background(), "q", &Filters{MaxDate: &maxDate}, 10, false); len(out[Book]) != 0 {
		t.Fatalf("undated items count as published now and must fail max_date, got %+v", out[Book])
	}
	if out := svc.SearchAllSources(context.Background(), "q", &Filters{Language: "fr"}, 10, false); len(out[Book]) != 0 {
		t.Fatalf("items without a language count as en, got %+v", out[Book])
	}
	if out := svc.SearchAllSources(context.Background(), "q", &Filters{Language: "en"}, 10, false); len(out[Book]) != 2 {
		t.Fatalf("en filter should keep both, got %+v", out[Book])
	}
}

func TestSafeSearchDropsUnsafeItems(t *testing.T) {
	src := &fakeSource{typ: Video, items: []Item{
		item(Video, "bad", "A violent history"),
		item(Video, "good", "Gardening basics"),
	}}
	mod := moderation.New(config.Default(), nil, nil, nil, nil)
	svc := NewService(nil, []Source{src}, WithModerator(mod))

	out := svc.SearchAllSources(context.Background(), "history", nil, 5, true)
	if len(out[Video]) != 1 || out[Video][0].ID != "good" {
		t.Fatalf("unsafe item should be dropped, got %+v", out[Video])
	}

	out = svc.SearchAllSources(context.Background(), "history", nil, 5, false)
	if len(out[Video]) != 2 {
		t.Fatalf("safe search off keeps everything, got %+v", out[Video])
	}
}

func TestBreakerStopsCallingFailingSource(t *testing.T) {
	src := &fakeSource{typ: Podcast, err: errors.New("boom")}
	svc := NewService(nil, []Source{src}, WithBreakers(func(name string) *breaker.Breaker {
		return breaker.New(name, breaker.Options{Timeout: time.Minute}, nil, nil)
	}))
	for i := 0; i < 8; i++ {
		out := svc.SearchAllSources(context.Background(), "q", nil, 3, false)
		if len(out[Podcast]) != 0 {
			t.Fatalf("expected empty podcasts")
		}
	}
	if got := atomic.LoadInt32(&src.calls); got != 5 {
		t.Fatalf("breaker should open after 5 failures, source called %d times", got)
	}
}

type countingRecorder struct {
	errs, oks int32
}

func (r *countingRecorder) IncContentSource(_, status string) {
	if status == "error" {
		atomic.AddInt32(&r.errs, 1)
		return
	}
	atomic.AddInt32(&r.oks, 1)
}

func TestRecorderSeesOutcomes(t *testing.T) {
	fakes, list := allSources()
	fakes[Course].err = errors.New("down")
	rec := &countingRecorder{}
	NewService(nil, list, WithRecorder(rec)).SearchAllSources(context.Background(), "q", nil, 1, false)
	if rec.errs != 1 || rec.oks != 3 {
		t.Fatalf("errs=%d oks=%d", rec.errs, rec.oks)
	}
}

func TestGeneratedSource(t *testing.T) {
	fake := &llmtest.Fake{JSON: map[string]any{"items": []any{
		map[string]any{"title": "Plant Biology 101", "description": "Intro course", "author": "Open U", "url": "https://example.org/c", "minutes": float64(90), "language": "en", "topics": []any{"photosynthesis"}},
		map[string]any{"title": "", "description": "", "author": "", "url": "", "minutes": float64(0), "language": "", "topics": []any{}},
		"garbage",
	}}}
	rm := resources.NewManager(nil, resources.DefaultFactories(fake, nil), nil)
	src := NewGeneratedSource(Course, rm, "gpt-4o-mini")

	items, err := src.Search(context.Background(), "photosynthesis", Filters{}, 5, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", items)
	}
	if items[0].Duration != "90m" || items[0].Type != Course || items[0].Source != "generated" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].Title != "photosynthesis course 2" || items[1].Language != "en" {
		t.Fatalf("defaults not applied: %+v", items[1])
	}
	if ScoreRelevance("photosynthesis", itemText(items[0])) != High {
		t.Fatalf("topics should count toward relevance")
	}
	if fake.SchemaCalls("course_suggestions") != 1 {
		t.Fatalf("expected one schema call")
	}
	if rm.Refs(resources.Model, "content_generator") != 0 {
		t.Fatalf("model resource should be released")
	}
}

func TestGeneratedSourceUnconfigured(t *testing.T) {
	var src *GeneratedSource
	if _, err := src.Search(context.Background(), "q", Filters{}, 1, false); err == nil {
		t.Fatal("expected error")
	}
}
