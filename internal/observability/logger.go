package observability

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	Level   string
	Pretty  bool
	Service string
	Env     string
}

// Logger keeps call sites free of zap types: events are snake_case messages
// with a flat field map.
type Logger struct {
	base *zap.Logger
}

func NewLogger(c LogConfig) (*Logger, error) {
	var cfg zap.Config
	if c.Pretty {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	level := new(zapcore.Level)
	if err := level.Set(c.Level); err != nil {
		*level = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(*level)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build(
		zap.Fields(
			zap.String("service", c.Service),
			zap.String("env", c.Env),
		),
	)
	if err != nil {
		return nil, err
	}

	return &Logger{base: base}, nil
}

func NewNopLogger() *Logger {
	return &Logger{base: zap.NewNop()}
}

// NewLoggerFromZap is used by tests that observe output through zaptest/observer.
func NewLoggerFromZap(base *zap.Logger) *Logger {
	return &Logger{base: base}
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.base.Info(message, toZap(fields)...)
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.base.Warn(message, toZap(fields)...)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.base.Error(message, toZap(fields)...)
}

func (l *Logger) Sync() error {
	return l.base.Sync()
}

func toZap(fields map[string]any) []zap.Field {
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
		switch v := fields[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
