package log

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug", "DEBUG":
		return DebugLevel, nil
	case "info", "INFO", "":
		return InfoLevel, nil
	case "warn", "WARN", "warning":
		return WarnLevel, nil
	case "error", "ERROR":
		return ErrorLevel, nil
	case "fatal", "FATAL":
		return FatalLevel, nil
	}
	return InfoLevel, fmt.Errorf("log: unknown level %q", s)
}

// Fields is a map of field names to values.
type Fields map[string]interface{}

// Entry represents a single log entry.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    string
}

// Logger defines the core logging interface for vary components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// Printf-style variants for quick interop.
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// With returns a logger that includes the given fields on every entry.
	With(fields ...Field) Logger
	// WithError is shorthand for With(Err(err)).
	WithError(err error) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Formatter defines the interface for formatting log entries.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output defines the interface for log outputs.
type Output interface {
	Write(entry *Entry, formattedEntry []byte) error
	Close() error
}

// LoggerOption is a function that configures a logger.
type LoggerOption func(*BaseLogger)

// BaseLogger implements the Logger interface.
type BaseLogger struct {
	level     atomic.Int32
	fields    []Field
	formatter Formatter
	outputs   []Output
	exit      func(int)
}

// NewLogger creates a new logger with the given options.
func NewLogger(options ...LoggerOption) Logger {
	logger := &BaseLogger{
		formatter: &TextFormatter{},
		exit:      os.Exit,
	}
	logger.level.Store(int32(InfoLevel))
	for _, option := range options {
		option(logger)
	}
	if len(logger.outputs) == 0 {
		logger.outputs = append(logger.outputs, NewConsoleOutput())
	}
	return logger
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) { l.level.Store(int32(level)) }
}

// WithFormatter sets the log formatter.
func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) { l.formatter = formatter }
}

// WithOutput adds an output to the logger.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) { l.outputs = append(l.outputs, output) }
}

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	l.exit(1)
}

func (l *BaseLogger) Debugf(format string, args ...interface{}) {
	l.log(DebugLevel, fmt.Sprintf(format, args...), nil)
}
func (l *BaseLogger) Infof(format string, args ...interface{}) {
	l.log(InfoLevel, fmt.Sprintf(format, args...), nil)
}
func (l *BaseLogger) Warnf(format string, args ...interface{}) {
	l.log(WarnLevel, fmt.Sprintf(format, args...), nil)
}
func (l *BaseLogger) Errorf(format string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(format, args...), nil)
}

// With returns a copy of the logger with additional base fields.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	nl := &BaseLogger{
		fields:    append(append([]Field{}, l.fields...), fields...),
		formatter: l.formatter,
		outputs:   l.outputs,
		exit:      l.exit,
	}
	nl.level.Store(l.level.Load())
	return nl
}

// WithError returns a copy of the logger with an error field attached.
func (l *BaseLogger) WithError(err error) Logger { return l.With(Err(err)) }

// SetLevel sets the minimum log level.
func (l *BaseLogger) SetLevel(level Level) { l.level.Store(int32(level)) }

// GetLevel returns the current minimum log level.
func (l *BaseLogger) GetLevel() Level { return Level(l.level.Load()) }

func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if level < Level(l.level.Load()) {
		return
	}
	merged := make(Fields, len(l.fields)+len(fields))
	for _, f := range l.fields {
		merged[f.Key] = f.Value
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	entry := &Entry{
		Level:     level,
		Message:   msg,
		Fields:    merged,
		Timestamp: time.Now(),
		Caller:    caller(3),
	}
	formatted, err := l.formatter.Format(entry)
	if err != nil {
		return
	}
	for _, out := range l.outputs {
		_ = out.Write(entry, formatted)
	}
}

func caller(skip int) string {
	if _, file, line, ok := runtime.Caller(skip); ok {
		return file + ":" + strconv.Itoa(line)
	}
	return ""
}
