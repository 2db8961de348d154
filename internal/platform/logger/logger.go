package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin key/value facade over zap's sugared logger. Values are
// passed through the redaction filter before they reach an encoder.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger for the given mode ("prod"/"production" or anything
// else for development output). LOG_LEVEL overrides the default debug level.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(levelFromEnv())

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zl.Sugar()}, nil
}

// Nop returns a logger that discards everything. Used by tests and by
// components constructed without a logger.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func levelFromEnv() zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "info":
		return zap.InfoLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.DebugLevel
	}
}

func (l *Logger) Sync() {
	if l == nil || l.SugaredLogger == nil {
		return
	}
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, kv ...interface{}) {
	l.SugaredLogger.Debugw(msg, sanitizeKVs(kv)...)
}

func (l *Logger) Info(msg string, kv ...interface{}) {
	l.SugaredLogger.Infow(msg, sanitizeKVs(kv)...)
}

func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.SugaredLogger.Warnw(msg, sanitizeKVs(kv)...)
}

func (l *Logger) Error(msg string, kv ...interface{}) {
	l.SugaredLogger.Errorw(msg, sanitizeKVs(kv)...)
}

func (l *Logger) Fatal(msg string, kv ...interface{}) {
	l.SugaredLogger.Fatalw(msg, sanitizeKVs(kv)...)
}

// With returns a child logger carrying the given fields on every entry.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitizeKVs(kv)...)}
}

// OrNop lets constructors accept a nil logger.
func OrNop(l *Logger) *Logger {
	if l == nil || l.SugaredLogger == nil {
		return Nop()
	}
	return l
}
