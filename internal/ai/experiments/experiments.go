// Package experiments assigns users to A/B variants and records outcomes.
package experiments

import (
	"context"
	"crypto/md5"
	"fmt"
	"math/big"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const DefaultVariant = "default"

type Variant struct {
	Name   string         `yaml:"name" json:"name"`
	Config map[string]any `yaml:"config" json:"config,omitempty"`
}

type Experiment struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	StartTime   time.Time `yaml:"start_time" json:"start_time"`
	Variants    []Variant `yaml:"variants" json:"variants"`
}

// Recorder receives variant exposures and tracked outcomes.
// *observability.Metrics satisfies it.
type Recorder interface {
	IncExperimentExposure(experiment, variant string)
	ObserveExperimentOutcome(experiment, variant string, outcome float64)
}

type Manager struct {
	enabled bool
	log     *logger.Logger
	rec     Recorder
	now     func() time.Time

	mu          sync.RWMutex
	experiments map[string]Experiment
}

func NewManager(cfg config.Config, log *logger.Logger, rec Recorder) *Manager {
	return &Manager{
		enabled:     cfg.EnableExperiments,
		log:         logger.OrNop(log).With("service", "ExperimentManager"),
		rec:         rec,
		now:         time.Now,
		experiments: make(map[string]Experiment),
	}
}

func (m *Manager) Enabled() bool { return m != nil && m.enabled }

// Register adds or replaces an experiment. A zero StartTime is set to now.
func (m *Manager) Register(e Experiment) {
	if e.StartTime.IsZero() {
		e.StartTime = m.now()
	}
	m.mu.Lock()
	m.experiments[e.Name] = e
	m.mu.Unlock()
}

func (m *Manager) Get(name string) (Experiment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.experiments[name]
	return e, ok
}

func (m *Manager) List() []Experiment {
	m.mu.RLock()
	out := make([]Experiment, 0, len(m.experiments))
	for _, e := range m.experiments {
		out = append(out, e)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type fileFormat struct {
	Experiments []Experiment `yaml:"experiments"`
}

// LoadFile registers every experiment in a YAML document of the form
// experiments: [{name, description, variants: [{name, config}]}].
func (m *Manager) LoadFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read experiments file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("parse experiments file %s: %w", path, err)
	}
	for i, e := range f.Experiments {
		if e.Name == "" {
			return i, fmt.Errorf("experiments file %s: entry %d has no name", path, i)
		}
		m.Register(e)
	}
	m.log.Info("Experiments loaded", "path", path, "count", len(f.Experiments))
	return len(f.Experiments), nil
}

// GetVariant returns a stable variant for the user: md5("userID:experimentID")
// read as a big-endian integer, modulo the number of variants. Every
// assignment to a registered experiment counts as one exposure.
func (m *Manager) GetVariant(experimentID, userID string) string {
	if !m.Enabled() {
		return DefaultVariant
	}
	e, ok := m.Get(experimentID)
	if !ok || len(e.Variants) == 0 {
		return DefaultVariant
	}
	name := e.Variants[bucket(userID+":"+experimentID, len(e.Variants))].Name
	if m.rec != nil {
		m.rec.IncExperimentExposure(experimentID, name)
	}
	return name
}

func bucket(seed string, n int) int {
	sum := md5.Sum([]byte(seed))
	h := new(big.Int).SetBytes(sum[:])
	return int(new(big.Int).Mod(h, big.NewInt(int64(n))).Int64())
}

// TrackOutcome records an outcome for a variant. It never fails.
func (m *Manager) TrackOutcome(experimentID, variant string, outcome float64, meta map[string]any) {
	if !m.Enabled() {
		return
	}
	if m.rec != nil {
		m.rec.ObserveExperimentOutcome(experimentID, variant, outcome)
	}
	kv := []any{"experiment", experimentID, "variant", variant, "outcome", outcome}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv = append(kv, k, meta[k])
	}
	m.log.Info("Experiment outcome", kv...)
}

// Run executes the user's variant implementation and tracks the result.
// Disabled experiments, an empty userID or a variant without an
// implementation all run fallback untracked.
func Run[T any](ctx context.Context, m *Manager, experimentID, userID string, variants map[string]func(ctx context.Context) (T, error), fallback func(ctx context.Context) (T, error)) (T, error) {
	if !m.Enabled() || userID == "" {
		return fallback(ctx)
	}
	name := m.GetVariant(experimentID, userID)
	fn, ok := variants[name]
	if !ok {
		return fallback(ctx)
	}
	start := time.Now()
	out, err := fn(ctx)
	if err != nil {
		m.TrackOutcome(experimentID, name, 0, map[string]any{"error": err.Error()})
		return out, err
	}
	m.TrackOutcome(experimentID, name, 1, map[string]any{"execution_time": time.Since(start).Seconds()})
	return out, nil
}
