// Package logger wraps zap to provide the node's structured logger: a
// small Level enum and Config shape (mirroring the teacher's own
// logger package) backed by zap's sugared logger instead of a
// hand-rolled writer.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the minimum severity a logger emits.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config configures a Logger.
type Config struct {
	Level   Level
	Name    string
	UseJSON bool
}

// DefaultConfig returns the node's default logging configuration:
// human-readable, info level, named "nanochain".
func DefaultConfig() Config {
	return Config{Level: Info, Name: "nanochain", UseJSON: false}
}

// Logger is a thin, named wrapper over a zap.SugaredLogger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if !cfg.UseJSON {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.Level.zapLevel())
	zapCfg.OutputPaths = []string{"stdout"}

	base, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	named := base.Named(cfg.Name)
	return &Logger{sugar: named.Sugar()}, nil
}

// Nop returns a Logger that discards everything, useful in tests.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a child logger carrying the given structured key/value
// pairs on every subsequent log call.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes any buffered log entries. Errors writing to stdout/stderr
// on some platforms are expected and are not propagated.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}
