package app

import (
	"strings"
	"time"

	"github.com/yungbote/learnmate-backend/internal/platform/envutil"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

// Config holds process-level settings. The AI tree lives in ai/config.
type Config struct {
	Port        string
	Environment string
	Version     string

	AIConfigFile    string
	ExperimentsFile string

	LLMProvider string

	DocstoreProvider string
	PostgresDSN      string
	SQLitePath       string
	BadgerDir        string
	FirestoreProject string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	YouTubeAPIKey   string
	YouTubeEndpoint string
	BooksAPIKey     string
	BooksEndpoint   string
	VisionEnabled   bool

	MetricsAddr  string
	JanitorEvery time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),

		AIConfigFile:    envutil.String("AI_CONFIG_FILE", ""),
		ExperimentsFile: envutil.String("EXPERIMENTS_FILE", ""),

		LLMProvider: strings.ToLower(envutil.String("LLM_PROVIDER", "openai")),

		DocstoreProvider: strings.ToLower(envutil.String("DOCSTORE_PROVIDER", "sqlite")),
		PostgresDSN:      envutil.String("POSTGRES_DSN", ""),
		SQLitePath:       envutil.String("SQLITE_PATH", "learnmate.db"),
		BadgerDir:        envutil.String("BADGER_DIR", "data/badger"),
		FirestoreProject: envutil.String("FIRESTORE_PROJECT_ID", envutil.String("GOOGLE_CLOUD_PROJECT", "")),

		RedisAddr:     envutil.String("REDIS_ADDR", ""),
		RedisPassword: envutil.String("REDIS_PASSWORD", ""),
		RedisDB:       envutil.Int("REDIS_DB", 0),

		YouTubeAPIKey:   envutil.String("YOUTUBE_API_KEY", ""),
		YouTubeEndpoint: envutil.String("YOUTUBE_ENDPOINT", ""),
		BooksAPIKey:     envutil.String("GOOGLE_BOOKS_API_KEY", ""),
		BooksEndpoint:   envutil.String("GOOGLE_BOOKS_ENDPOINT", ""),
		VisionEnabled:   envutil.Bool("VISION_SAFESEARCH_ENABLED", false),

		MetricsAddr:  envutil.String("METRICS_ADDR", ":9090"),
		JanitorEvery: envutil.Duration("AVATAR_JANITOR_INTERVAL", 5*time.Minute),
	}
	log.Info("Process config loaded",
		"env", cfg.Environment,
		"llm_provider", cfg.LLMProvider,
		"docstore_provider", cfg.DocstoreProvider,
		"redis", cfg.RedisAddr != "",
	)
	return cfg
}
