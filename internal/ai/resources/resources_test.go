package resources

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/yungbote/learnmate-backend/internal/ai/llm"
	"github.com/yungbote/learnmate-backend/internal/ai/llm/llmtest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingResource struct {
	closed *int32
}

func (r *countingResource) Close(context.Context) error {
	atomic.AddInt32(r.closed, 1)
	return nil
}

func countingFactory(created, closed *int32, delay time.Duration) Factory {
	return func(ctx context.Context, name string, _ map[string]any) (Resource, error) {
		atomic.AddInt32(created, 1)
		time.Sleep(delay)
		return &countingResource{closed: closed}, nil
	}
}

func TestUnknownType(t *testing.T) {
	m := NewManager(nil, nil, nil)
	if _, _, err := m.Acquire(context.Background(), "gpu", "x", nil); !errors.Is(err, ErrUnknownResourceType) {
		t.Fatalf("expected ErrUnknownResourceType, got %v", err)
	}
}

func TestConcurrentAcquireSharesOneInstance(t *testing.T) {
	var created, closed int32
	m := NewManager(nil, map[ResourceType]Factory{Embedding: countingFactory(&created, &closed, 10*time.Millisecond)}, nil)

	const n = 32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := m.With(context.Background(), Embedding, "minilm", nil, func(Resource) error {
				time.Sleep(time.Millisecond)
				return nil
			})
			if err != nil {
				t.Errorf("With: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if refs := m.Refs(Embedding, "minilm"); refs != 0 {
		t.Fatalf("expected 0 refs after all releases, got %d", refs)
	}
	if c, d := atomic.LoadInt32(&created), atomic.LoadInt32(&closed); c != d || c < 1 {
		t.Fatalf("every created resource must be closed exactly once: created=%d closed=%d", c, d)
	}
}

func TestRefCountingAndCleanup(t *testing.T) {
	var created, closed int32
	m := NewManager(nil, map[ResourceType]Factory{Model: countingFactory(&created, &closed, 0)}, nil)
	ctx := context.Background()

	r1, rel1, err := m.Acquire(ctx, Model, "m", nil)
	if err != nil {
		t.Fatal(err)
	}
	r2, rel2, err := m.Acquire(ctx, Model, "m", nil)
	if err != nil {
		t.Fatal(err)
	}
	if r1 != r2 || m.Refs(Model, "m") != 2 || created != 1 {
		t.Fatalf("expected one shared instance with 2 refs")
	}
	rel1()
	rel1()
	if m.Refs(Model, "m") != 1 || atomic.LoadInt32(&closed) != 0 {
		t.Fatalf("double release must be ignored and resource kept alive")
	}
	rel2()
	if m.Refs(Model, "m") != 0 || atomic.LoadInt32(&closed) != 1 {
		t.Fatalf("last release must close the resource")
	}

	_, rel3, _ := m.Acquire(ctx, Model, "m", nil)
	defer rel3()
	if created != 2 {
		t.Fatalf("acquire after cleanup should construct a fresh instance")
	}
}

func TestConstructionFailureReachesEveryWaiter(t *testing.T) {
	boom := errors.New("load failed")
	gate := make(chan struct{})
	var calls int32
	m := NewManager(nil, map[ResourceType]Factory{
		Embedding: func(ctx context.Context, name string, _ map[string]any) (Resource, error) {
			atomic.AddInt32(&calls, 1)
			<-gate
			return nil, boom
		},
	}, nil)

	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, _, err := m.Acquire(context.Background(), Embedding, "x", nil)
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	for i := 0; i < 4; i++ {
		if err := <-errs; !errors.Is(err, boom) {
			t.Fatalf("expected construction error, got %v", err)
		}
	}
	if m.Refs(Embedding, "x") != 0 {
		t.Fatalf("failed entry must be removed")
	}
}

func TestShutdownClosesHeld(t *testing.T) {
	var created, closed int32
	m := NewManager(nil, map[ResourceType]Factory{Model: countingFactory(&created, &closed, 0)}, nil)
	_, _, _ = m.Acquire(context.Background(), Model, "a", nil)
	_, _, _ = m.Acquire(context.Background(), Model, "b", nil)

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&closed) != 2 {
		t.Fatalf("expected both resources closed, got %d", closed)
	}
	if _, _, err := m.Acquire(context.Background(), Model, "a", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDefaultFactories(t *testing.T) {
	fake := &llmtest.Fake{Text: "hi"}
	m := NewManager(nil, DefaultFactories(fake, nil), nil)
	err := m.With(context.Background(), Model, "content_generator", map[string]any{"model": "gpt-4o-mini"}, func(r Resource) error {
		h := r.(*ModelHandle)
		if h.Params(llm.Params{}).Model != "gpt-4o-mini" {
			t.Errorf("handle should pin its model")
		}
		if h.Params(llm.Params{Model: "other"}).Model != "other" {
			t.Errorf("explicit model must win")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Acquire(context.Background(), Embedding, "e", nil); !errors.Is(err, ErrUnknownResourceType) {
		t.Fatalf("embedding factory absent without an embedder, got %v", err)
	}
}
