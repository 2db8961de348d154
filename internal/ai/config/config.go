// Package config holds the AI layer's configuration tree. A Config is loaded
// once at startup and passed by value to every component that needs it.
package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	TierSimple  = 1
	TierComplex = 2
)

const defaultTTLSeconds = 60

type ComputationConfig struct {
	Enabled            bool           `koanf:"enabled"`
	DefaultTier        int            `koanf:"default_tier"`
	TimeBetweenComplex int            `koanf:"time_between_complex"`
	MaxWorkers         int            `koanf:"max_workers"`
	CacheTTL           map[string]int `koanf:"cache_ttl"`
}

// CacheConfig controls the remote cache store.
type CacheConfig struct {
	TTL        int     `koanf:"ttl"`
	Prefix     string  `koanf:"prefix"`
	Enabled    bool    `koanf:"enabled"`
	MaxRetries int     `koanf:"max_retries"`
	RetryDelay float64 `koanf:"retry_delay"`
	UseTags    bool    `koanf:"use_tags"`
	TagsPrefix string  `koanf:"tags_prefix"`
	Partitions int     `koanf:"partitions"`
}

type QuotaConfig struct {
	PerMinute int `koanf:"per_minute"`
	Burst     int `koanf:"burst"`
}

type AvatarConfig struct {
	MaxHistory         int `koanf:"max_history"`
	LockCapacity       int `koanf:"lock_capacity"`
	SessionIdleMinutes int `koanf:"session_idle_minutes"`
}

type Config struct {
	Computation                ComputationConfig            `koanf:"computation"`
	Models                     map[string]map[string]string `koanf:"models"`
	EnableExperiments          bool                         `koanf:"enable_experiments"`
	ContentModerationEnabled   bool                         `koanf:"content_moderation_enabled"`
	ContentModerationThreshold float64                      `koanf:"content_moderation_threshold"`
	ModerationFailOpen         bool                         `koanf:"moderation_fail_open"`
	CacheEnabled               bool                         `koanf:"cache_enabled"`
	CircuitBreakerTimeout      int                          `koanf:"circuit_breaker_timeout"`
	ModelTimeout               int                          `koanf:"model_timeout"`
	Cache                      CacheConfig                  `koanf:"cache"`
	Quota                      QuotaConfig                  `koanf:"quota"`
	Avatar                     AvatarConfig                 `koanf:"avatar"`
}

func Default() Config {
	return Config{
		Computation: ComputationConfig{
			Enabled:            true,
			DefaultTier:        TierSimple,
			TimeBetweenComplex: 300,
			MaxWorkers:         4,
			CacheTTL: map[string]int{
				"feed_ranking":     60,
				"recommendations":  300,
				"embeddings":       86400,
				"content_analysis": 1800,
			},
		},
		Models: map[string]map[string]string{
			"content_moderation": {
				"text":  "text_moderation_v1",
				"image": "image_moderation_v1",
			},
		},
		EnableExperiments:          true,
		ContentModerationEnabled:   true,
		ContentModerationThreshold: 0.8,
		ModerationFailOpen:         true,
		CacheEnabled:               true,
		CircuitBreakerTimeout:      60,
		ModelTimeout:               10,
		Cache: CacheConfig{
			TTL:        3600,
			Prefix:     "avatar:",
			Enabled:    true,
			MaxRetries: 3,
			RetryDelay: 0.5,
			UseTags:    false,
			TagsPrefix: "tags:",
			Partitions: 1,
		},
		Quota: QuotaConfig{PerMinute: 30, Burst: 10},
		Avatar: AvatarConfig{
			MaxHistory:         100,
			LockCapacity:       10000,
			SessionIdleMinutes: 30,
		},
	}
}

// TTLFor returns the cache TTL configured for key, 60s when unknown.
func (c Config) TTLFor(key string) time.Duration {
	secs, ok := c.Computation.CacheTTL[key]
	if !ok {
		secs = defaultTTLSeconds
	}
	return time.Duration(secs) * time.Second
}

func (c Config) TimeBetweenComplex() time.Duration {
	return time.Duration(c.Computation.TimeBetweenComplex) * time.Second
}

func (c Config) ModelTimeoutDuration() time.Duration {
	if c.ModelTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ModelTimeout) * time.Second
}

func (c Config) CircuitBreakerTimeoutDuration() time.Duration {
	if c.CircuitBreakerTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.CircuitBreakerTimeout) * time.Second
}

// Model returns the configured model name for a task/modality pair.
func (c Config) Model(task, modality string) string {
	if m, ok := c.Models[task]; ok {
		return m[modality]
	}
	return ""
}

func (c CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

func (c CacheConfig) RetryDelayDuration() time.Duration {
	return time.Duration(c.RetryDelay * float64(time.Second))
}

func (c Config) Validate() error {
	var errs []error
	if t := c.Computation.DefaultTier; t != TierSimple && t != TierComplex {
		errs = append(errs, fmt.Errorf("computation.default_tier must be %d or %d, got %d", TierSimple, TierComplex, t))
	}
	if c.Computation.TimeBetweenComplex < 0 {
		errs = append(errs, errors.New("computation.time_between_complex must be >= 0"))
	}
	for k, v := range c.Computation.CacheTTL {
		if v < 0 {
			errs = append(errs, fmt.Errorf("computation.cache_ttl.%s must be >= 0", k))
		}
	}
	if th := c.ContentModerationThreshold; th < 0 || th > 1 {
		errs = append(errs, fmt.Errorf("content_moderation_threshold must be within [0,1], got %v", th))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must be >= 0"))
	}
	if c.Cache.Partitions < 1 {
		errs = append(errs, errors.New("cache.partitions must be >= 1"))
	}
	return errors.Join(errs...)
}
