// Package logging wraps zap with per-service loggers so every
// component in this node (coordinator, store, rpc client, gateway)
// logs through the same JSON encoder with a "service" field attached
// automatically.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Logger)
)

// Config controls how a service's logger is built.
type Config struct {
	Service     string
	Level       string // debug, info, warn, error
	OutputPaths []string
	Development bool
}

// Logger is a zap.Logger scoped to one service name.
type Logger struct {
	*zap.Logger
	service     string
	outputPaths []string
}

// Get returns the logger for cfg.Service, creating and caching it on
// first use. Callers that ask for the same service name again get the
// same instance back, so a component that lazily re-resolves its
// logger never opens its output files twice.
func Get(cfg Config) (*Logger, error) {
	registryMu.RLock()
	if l, ok := registry[cfg.Service]; ok {
		registryMu.RUnlock()
		return l, nil
	}
	registryMu.RUnlock()

	registryMu.Lock()
	defer registryMu.Unlock()
	if l, ok := registry[cfg.Service]; ok {
		return l, nil
	}

	for _, p := range cfg.OutputPaths {
		if filepath.Ext(p) != ".log" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir for %s: %w", p, err)
		}
	}

	zc := zap.Config{
		Level:       zap.NewAtomicLevelAt(parseLevel(cfg.Level)),
		Development: cfg.Development,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	zl, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger for %s: %w", cfg.Service, err)
	}

	l := &Logger{Logger: zl, service: cfg.Service, outputPaths: cfg.OutputPaths}
	registry[cfg.Service] = l
	return l, nil
}

// MustGet is Get, falling back to a stdout-only logger for cfg.Service
// if construction fails (e.g. the log directory isn't writable).
func MustGet(cfg Config) *Logger {
	l, err := Get(cfg)
	if err == nil {
		return l
	}
	fallback := cfg
	fallback.OutputPaths = []string{"stdout"}
	l, ferr := Get(fallback)
	if ferr != nil {
		// zap.Config.Build() only fails on a malformed config, which
		// stdout-only isn't; if we somehow get here there is no
		// logger available, so MustGet panics.
		panic(fmt.Sprintf("logging: could not build a logger for %s: %v (fallback: %v)", cfg.Service, err, ferr))
	}
	return l
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *Logger) with(fields []zapcore.Field) []zapcore.Field {
	return append([]zapcore.Field{zap.String("service", l.service)}, fields...)
}

func (l *Logger) Info(msg string, fields ...zapcore.Field)  { l.Logger.Info(msg, l.with(fields)...) }
func (l *Logger) Warn(msg string, fields ...zapcore.Field)  { l.Logger.Warn(msg, l.with(fields)...) }
func (l *Logger) Error(msg string, fields ...zapcore.Field) { l.Logger.Error(msg, l.with(fields)...) }
func (l *Logger) Debug(msg string, fields ...zapcore.Field) { l.Logger.Debug(msg, l.with(fields)...) }

// OutputPaths returns the configured output paths, so a caller building
// a related logger (e.g. a per-node child of a parent service) can
// derive a sibling log file path.
func (l *Logger) OutputPaths() []string { return l.outputPaths }

// Close flushes buffered entries.
func (l *Logger) Close() error { return l.Logger.Sync() }

// Shutdown flushes and forgets every registered logger.
func Shutdown() {
	registryMu.Lock()
	defer registryMu.Unlock()
	for name, l := range registry {
		_ = l.Close()
		delete(registry, name)
	}
}
