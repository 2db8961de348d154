package experiments

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/observability"
)

type outcome struct {
	exp, variant string
	value        float64
}

type fakeSink struct {
	mu       sync.Mutex
	got      []outcome
	exposure map[string]int
}

func (f *fakeSink) IncExperimentExposure(exp, variant string) {
	f.mu.Lock()
	if f.exposure == nil {
		f.exposure = map[string]int{}
	}
	f.exposure[exp+"/"+variant]++
	f.mu.Unlock()
}

func (f *fakeSink) ObserveExperimentOutcome(exp, variant string, v float64) {
	f.mu.Lock()
	f.got = append(f.got, outcome{exp, variant, v})
	f.mu.Unlock()
}

func onboarding() Experiment {
	return Experiment{
		Name:     "onboarding",
		Variants: []Variant{{Name: "control"}, {Name: "short"}, {Name: "guided"}},
	}
}

func TestGetVariantIsDeterministic(t *testing.T) {
	m := NewManager(config.Default(), nil, nil)
	m.Register(onboarding())

	want := map[string]string{
		"user-1": "guided",
		"user-2": "short",
		"alice":  "control",
		"bob":    "control",
	}
	for user, variant := range want {
		for i := 0; i < 3; i++ {
			if got := m.GetVariant("onboarding", user); got != variant {
				t.Fatalf("user %s: got %s want %s", user, got, variant)
			}
		}
	}

	other := NewManager(config.Default(), nil, nil)
	other.Register(onboarding())
	if other.GetVariant("onboarding", "user-1") != m.GetVariant("onboarding", "user-1") {
		t.Fatalf("assignment must be stable across managers")
	}
}

func TestGetVariantDefaults(t *testing.T) {
	disabled := config.Default()
	disabled.EnableExperiments = false
	m := NewManager(disabled, nil, nil)
	m.Register(onboarding())
	if got := m.GetVariant("onboarding", "user-1"); got != DefaultVariant {
		t.Fatalf("disabled manager should return default, got %s", got)
	}

	m = NewManager(config.Default(), nil, nil)
	m.Register(Experiment{Name: "empty"})
	if got := m.GetVariant("empty", "u"); got != DefaultVariant {
		t.Fatalf("no variants should return default, got %s", got)
	}
	if got := m.GetVariant("missing", "u"); got != DefaultVariant {
		t.Fatalf("unknown experiment should return default, got %s", got)
	}
}

func TestRunTracksOutcomes(t *testing.T) {
	sink := &fakeSink{}
	m := NewManager(config.Default(), nil, sink)
	m.Register(onboarding())

	boom := errors.New("boom")
	variants := map[string]func(context.Context) (string, error){
		"guided": func(context.Context) (string, error) { return "g", nil },
		"short":  func(context.Context) (string, error) { return "", boom },
	}
	fallback := func(context.Context) (string, error) { return "fb", nil }

	if got, err := Run(context.Background(), m, "onboarding", "user-1", variants, fallback); got != "g" || err != nil {
		t.Fatalf("got %q %v", got, err)
	}
	if _, err := Run(context.Background(), m, "onboarding", "user-2", variants, fallback); !errors.Is(err, boom) {
		t.Fatalf("variant error must be returned, got %v", err)
	}
	if got, _ := Run(context.Background(), m, "onboarding", "alice", variants, fallback); got != "fb" {
		t.Fatalf("missing implementation should use fallback, got %q", got)
	}
	if got, _ := Run(context.Background(), m, "onboarding", "", variants, fallback); got != "fb" {
		t.Fatalf("empty user should use fallback, got %q", got)
	}

	if len(sink.got) != 2 {
		t.Fatalf("expected 2 tracked outcomes, got %+v", sink.got)
	}
	if sink.got[0] != (outcome{"onboarding", "guided", 1}) || sink.got[1] != (outcome{"onboarding", "short", 0}) {
		t.Fatalf("unexpected outcomes %+v", sink.got)
	}
}

func TestGetVariantCountsExposures(t *testing.T) {
	sink := &fakeSink{}
	m := NewManager(config.Default(), nil, sink)
	m.Register(onboarding())

	v := m.GetVariant("onboarding", "user-1")
	m.GetVariant("onboarding", "user-1")
	if got := sink.exposure["onboarding/"+v]; got != 2 {
		t.Fatalf("expected 2 exposures for %s, got %v", v, sink.exposure)
	}
	if m.GetVariant("missing", "user-1") != DefaultVariant || len(sink.exposure) != 1 {
		t.Fatalf("unknown experiments must not count exposures: %v", sink.exposure)
	}

	cfg := config.Default()
	cfg.EnableExperiments = false
	off := &fakeSink{}
	NewManager(cfg, nil, off).GetVariant("onboarding", "user-1")
	if len(off.exposure) != 0 {
		t.Fatalf("disabled manager must not count exposures")
	}
}

func TestExposuresReachMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	m := NewManager(config.Default(), nil, metrics)
	m.Register(onboarding())
	v := m.GetVariant("onboarding", "user-1")

	want := strings.NewReader(`# HELP learnmate_experiment_exposures_total Variant assignments handed out.
# TYPE learnmate_experiment_exposures_total counter
learnmate_experiment_exposures_total{experiment="onboarding",variant="` + v + `"} 1
`)
	if err := testutil.GatherAndCompare(metrics.Registry(), want, "learnmate_experiment_exposures_total"); err != nil {
		t.Fatal(err)
	}
}

func TestTrackOutcomeDisabledIsNoop(t *testing.T) {
	cfg := config.Default()
	cfg.EnableExperiments = false
	sink := &fakeSink{}
	m := NewManager(cfg, nil, sink)
	m.TrackOutcome("x", "y", 1, nil)
	if len(sink.got) != 0 {
		t.Fatalf("disabled manager must not record")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiments.yaml")
	doc := `experiments:
  - name: onboarding
    description: onboarding flow
    variants:
      - name: control
      - name: short
        config:
          steps: 2
      - name: guided
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewManager(config.Default(), nil, nil)
	n, err := m.LoadFile(path)
	if err != nil || n != 1 {
		t.Fatalf("LoadFile: n=%d err=%v", n, err)
	}
	e, ok := m.Get("onboarding")
	if !ok || len(e.Variants) != 3 || e.StartTime.IsZero() {
		t.Fatalf("unexpected experiment %+v", e)
	}
	if e.Variants[1].Config["steps"] != 2 {
		t.Fatalf("variant config not parsed: %+v", e.Variants[1].Config)
	}
	if m.GetVariant("onboarding", "user-1") != "guided" {
		t.Fatalf("file order must drive assignment")
	}
	if len(m.List()) != 1 {
		t.Fatalf("List should return the registered experiment")
	}
}
