package log

import (
	"bytes"
	stdlog "log"
)

// Config is a declarative logger configuration, typically populated from
// flags or environment variables.
type Config struct {
	// Level is the minimum level name: debug|info|warn|error|fatal.
	Level string
	// Format selects the formatter: text|json.
	Format string
	// File, when set, adds a file output in addition to the console.
	File string
}

// ApplyConfig builds a Logger from a Config.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var formatter Formatter
	switch cfg.Format {
	case "json", "JSON":
		formatter = &JSONFormatter{}
	default:
		formatter = &TextFormatter{}
	}
	opts := []LoggerOption{WithLevel(level), WithFormatter(formatter)}
	if cfg.File != "" {
		fo, err := NewFileOutput(cfg.File)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithOutput(NewConsoleOutput()), WithOutput(fo))
	}
	return NewLogger(opts...), nil
}

// RedirectStdLog routes standard library log output (used by Pebble among
// others) through the provided logger at info level.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{logger: logger.With(Component("stdlog"))})
}

type stdLogWriter struct {
	logger Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	w.logger.Info(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}
