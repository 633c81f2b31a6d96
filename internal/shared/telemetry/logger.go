package telemetry

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// Init builds the process logger for the given environment and installs it.
// The returned func flushes buffered entries and should be deferred by main.
func Init(env string) (func(), error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return func() {}, err
	}
	SetLogger(l)
	return func() { _ = l.Sync() }, nil
}

// SetLogger replaces the process logger and returns a func restoring the previous one.
func SetLogger(l *zap.Logger) func() {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	prev := logger
	logger = l
	mu.Unlock()
	return func() { SetLogger(prev) }
}

// Logger exposes the underlying zap logger for libraries that want one.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Info writes an info-level event with the given fields.
func Info(msg string, fields map[string]any) {
	write(zap.InfoLevel, msg, fields)
}

// Warn writes a warn-level event with the given fields.
func Warn(msg string, fields map[string]any) {
	write(zap.WarnLevel, msg, fields)
}

// Error writes an error-level event with the given fields.
func Error(msg string, fields map[string]any) {
	write(zap.ErrorLevel, msg, fields)
}

func write(level zapcore.Level, msg string, fields map[string]any) {
	l := Logger()
	if ce := l.Check(level, msg); ce != nil {
		ce.Write(toZapFields(fields)...)
	}
}

func toZapFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if isRedactKey(k) {
			v = "[REDACTED]"
		}
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

func isRedactKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.Contains(k, "token"),
		strings.Contains(k, "authorization"),
		strings.Contains(k, "password"),
		strings.Contains(k, "secret"),
		strings.Contains(k, "signature"):
		return true
	default:
		return false
	}
}
