// Package logger provides structured logging for the Cortex runtime on top
// of go.uber.org/zap. Components hold a *Logger scoped with their identity
// (agent ID, reference code, queue) so every line they emit carries it.
package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig selects level, encoding, and destination for a Logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// Logger is a thin wrapper around zap.Logger with field-scoping helpers for
// the identifiers Cortex attaches to log lines.
type Logger struct {
	zap *zap.Logger
}

var (
	defaultLogger     *Logger
	defaultLoggerOnce sync.Once
)

// Default returns the process-wide logger. It is built lazily with info
// level, format auto-detected from the environment, writing to stdout.
func Default() *Logger {
	defaultLoggerOnce.Do(func() {
		log, err := NewLogger(LoggingConfig{Level: "info", Format: detectLogFormat()})
		if err != nil {
			log = &Logger{zap: zap.Must(zap.NewProduction())}
		}
		defaultLogger = log
	})
	return defaultLogger
}

// SetDefault replaces the process-wide logger. Called once at startup after
// configuration is loaded.
func SetDefault(log *Logger) {
	defaultLogger = log
}

// NewLogger builds a Logger from the given configuration. An unparseable
// level falls back to info rather than failing startup.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	sink, err := openSink(cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %q: %w", cfg.OutputPath, err)
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), sink, level)
	return &Logger{
		zap: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
	}, nil
}

// newEncoder maps the configured format to a zap encoder. "console" and
// "text" both select the human-readable colored encoder; anything else gets
// JSON for log shippers.
func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder

	switch format {
	case "console", "text":
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	default:
		ec.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}
}

// openSink resolves the output path to a write syncer. Empty means stdout.
func openSink(path string) (zapcore.WriteSyncer, error) {
	switch path {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		return zapcore.AddSync(file), nil
	}
}

// detectLogFormat picks JSON when the process looks like a production
// deployment (Kubernetes, CORTEX_ENV=production) and console otherwise.
func detectLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	switch os.Getenv("CORTEX_ENV") {
	case "production", "prod":
		return "json"
	}
	return "console"
}

// Sync flushes buffered entries. Deferred at program exit.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// WithFields returns a Logger that attaches the fields to every entry.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

// WithError scopes the logger to a failure being reported.
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields(zap.Error(err))
}

// WithAgentID scopes the logger to one agent's activity.
func (l *Logger) WithAgentID(agentID string) *Logger {
	return l.WithFields(zap.String("agent_id", agentID))
}

// WithReferenceCode scopes the logger to one workflow or delegated task.
func (l *Logger) WithReferenceCode(code string) *Logger {
	return l.WithFields(zap.String("reference_code", code))
}

// WithQueue scopes the logger to one bus queue.
func (l *Logger) WithQueue(queue string) *Logger {
	return l.WithFields(zap.String("queue", queue))
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, fields...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, fields...)
}

// Fatal logs at fatal level and exits the process.
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.zap.Fatal(msg, fields...)
}

// Zap exposes the underlying zap.Logger for integrations that need it.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}
