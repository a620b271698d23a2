package telemetry

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with inferline-specific functionality.
//
// In verbose mode log events reach both the console and, once attached,
// the workspace log file. In quiet mode the console writer is dropped:
// full detail still lands in the workspace log, and the failure
// supervisor extracts an error excerpt from it when a build fails.
type Logger struct {
	zlog   zerolog.Logger
	config LoggingConfig
	sink   *logSink
}

// logSink is the mutable write target shared by a logger and all its
// derived child loggers, so attaching the workspace log file routes
// every component's events to it.
type logSink struct {
	mu      sync.RWMutex
	console io.Writer
	writer  io.Writer
	file    *os.File
}

// Write implements io.Writer for zerolog.
func (s *logSink) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writer.Write(p)
}

// swap installs a new writer set and returns the previously attached
// log file.
func (s *logSink) swap(w io.Writer, f *os.File) *os.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.file
	s.writer = w
	s.file = f
	return old
}

// loggerContextKey is the context key for logger instances.
type loggerContextKey struct{}

// NewLogger creates a new logger with the given configuration. Console
// output goes to stderr so generated artifacts can be piped cleanly.
func NewLogger(cfg LoggingConfig) *Logger {
	var console io.Writer = os.Stderr
	if cfg.Format == "console" {
		console = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	switch cfg.TimeFormat {
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	case "unixms":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	default: // rfc3339
		zerolog.TimeFieldFormat = time.RFC3339
	}

	sink := &logSink{console: console}
	sink.writer = buildWriter(cfg.Mode, console, nil)

	zlog := zerolog.New(sink).With().Timestamp().Logger().Level(parseLogLevel(cfg.Level))
	if cfg.EnableCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{
		zlog:   zlog,
		config: cfg,
		sink:   sink,
	}
}

// buildWriter assembles the writer set for the current mode and file.
// In quiet mode the console is excluded entirely.
func buildWriter(mode LogMode, console io.Writer, file *os.File) io.Writer {
	var writers []io.Writer
	if mode != LogModeQuiet {
		writers = append(writers, console)
	}
	if file != nil {
		writers = append(writers, file)
	}

	switch len(writers) {
	case 0:
		return io.Discard
	case 1:
		return writers[0]
	default:
		return zerolog.MultiLevelWriter(writers...)
	}
}

// AttachLogFile opens the workspace log file and routes all subsequent
// events, from this logger and every child derived from it, to the
// file, in addition to the console when verbose. The file receives
// JSON lines regardless of the console format so the excerpt filter
// can parse it back.
func (l *Logger) AttachLogFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	old := l.sink.swap(buildWriter(l.config.Mode, l.sink.console, f), f)
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Close releases the attached workspace log file, if any.
func (l *Logger) Close() error {
	old := l.sink.swap(buildWriter(l.config.Mode, l.sink.console, nil), nil)
	if old == nil {
		return nil
	}
	return old.Close()
}

// Mode reports the configured logging mode.
func (l *Logger) Mode() LogMode {
	return l.config.Mode
}

// NewComponentLogger creates a child logger for a specific component.
func (l *Logger) NewComponentLogger(component string) *Logger {
	child := *l
	child.zlog = l.zlog.With().Str("component", component).Logger()
	return &child
}

// WithContext adds the logger to the context.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext retrieves the logger from the context.
// If no logger is found, it returns a default logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	sink := &logSink{console: os.Stderr, writer: os.Stderr}
	return &Logger{
		zlog: zerolog.New(sink).With().Timestamp().Logger(),
		sink: sink,
	}
}

// WithField returns a logger with a single additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	child := *l
	child.zlog = l.zlog.With().Interface(key, value).Logger()
	return &child
}

// WithWorkspace adds a workspace field to the logger.
func (l *Logger) WithWorkspace(key string) *Logger {
	return l.WithField("workspace", key)
}

// WithStage adds a stage field to the logger.
func (l *Logger) WithStage(stage string) *Logger {
	return l.WithField("stage", stage)
}

// WithGenerator adds a generator field to the logger.
func (l *Logger) WithGenerator(name string) *Logger {
	return l.WithField("generator", name)
}

// WithError adds error information to the logger.
func (l *Logger) WithError(err error) *Logger {
	child := *l
	child.zlog = l.zlog.With().Err(err).Logger()
	return &child
}

// Trace logs a trace-level message.
func (l *Logger) Trace(msg string) {
	l.zlog.Trace().Msg(msg)
}

// Debug logs a debug-level message.
func (l *Logger) Debug(msg string) {
	l.zlog.Debug().Msg(msg)
}

// Debugf logs a formatted debug-level message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Info logs an info-level message.
func (l *Logger) Info(msg string) {
	l.zlog.Info().Msg(msg)
}

// Infof logs a formatted info-level message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Warn logs a warning-level message.
func (l *Logger) Warn(msg string) {
	l.zlog.Warn().Msg(msg)
}

// Warnf logs a formatted warning-level message.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// Error logs an error-level message.
func (l *Logger) Error(msg string) {
	l.zlog.Error().Msg(msg)
}

// Errorf logs a formatted error-level message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// parseLogLevel converts a string log level to zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
