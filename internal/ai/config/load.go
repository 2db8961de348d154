package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix    = "AI_"
	envNestDelim = "__"

	// ConfigFileEnv names an optional YAML file layered between defaults and env.
	ConfigFileEnv = "AI_CONFIG_FILE"
)

// Load layers defaults, an optional YAML file and AI_* environment variables
// (highest precedence). Nested keys use a double underscore:
// AI_COMPUTATION__DEFAULT_TIER=2 sets computation.default_tier.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = strings.TrimSpace(os.Getenv(ConfigFileEnv))
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid ai config: %w", err)
	}
	return cfg, nil
}

func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	if key == "" || key == strings.TrimPrefix(ConfigFileEnv, EnvPrefix) {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), envNestDelim, ".")
}
