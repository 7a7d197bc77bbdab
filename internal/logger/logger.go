package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger handles application logging across independently configured sinks.
type Logger struct {
	fileLogger     *logrus.Logger
	consoleLogger  *logrus.Logger
	fileEnabled    bool
	consoleEnabled bool
}

// SinkConfig configures a single logging sink.
type SinkConfig struct {
	Enabled bool
	Level   string
	Format  string
	Path    string // only used by the file sink
}

// Config contains logger configuration.
type Config struct {
	File    SinkConfig
	Console SinkConfig
}

func newSink(cfg SinkConfig, defaultOutput *os.File) (*logrus.Logger, error) {
	sink := logrus.New()

	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	sink.SetLevel(lvl)

	if cfg.Format == "json" {
		sink.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		sink.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     defaultOutput == os.Stdout,
		})
	}

	if cfg.Path != "" {
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		sink.SetOutput(f)
	} else {
		sink.SetOutput(defaultOutput)
	}

	return sink, nil
}

// NewLogger creates a new application logger with independent console/file sinks.
func NewLogger(cfg *Config) (*Logger, error) {
	l := &Logger{}

	if cfg.Console.Enabled {
		console, err := newSink(cfg.Console, os.Stdout)
		if err != nil {
			return nil, err
		}
		l.consoleLogger = console
		l.consoleEnabled = true
	}

	if cfg.File.Enabled && cfg.File.Path != "" {
		file, err := newSink(cfg.File, os.Stderr)
		if err != nil {
			return nil, err
		}
		l.fileLogger = file
		l.fileEnabled = true
	}

	if !l.fileEnabled && !l.consoleEnabled {
		console, _ := newSink(SinkConfig{Level: "info", Format: "text"}, os.Stdout)
		l.consoleLogger = console
		l.consoleEnabled = true
	}

	return l, nil
}

// Info logs an info message to every enabled sink.
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.log(logrus.InfoLevel, msg, fields...)
}

// Warn logs a warning message to every enabled sink.
func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.log(logrus.WarnLevel, msg, fields...)
}

// Error logs an error message to every enabled sink.
func (l *Logger) Error(msg string, fields ...interface{}) {
	l.log(logrus.ErrorLevel, msg, fields...)
}

// Debug logs a debug message to every enabled sink.
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.log(logrus.DebugLevel, msg, fields...)
}

func (l *Logger) log(level logrus.Level, msg string, fields ...interface{}) {
	logFields := l.parseFields(fields...)

	for _, sink := range []*logrus.Logger{l.fileLogger, l.consoleLogger} {
		if sink == nil {
			continue
		}
		entry := sink.WithFields(logFields)
		switch level {
		case logrus.InfoLevel:
			entry.Info(msg)
		case logrus.WarnLevel:
			entry.Warn(msg)
		case logrus.ErrorLevel:
			entry.Error(msg)
		case logrus.DebugLevel:
			entry.Debug(msg)
		}
	}
}

// parseFields converts variadic key/value pairs to logrus.Fields.
func (l *Logger) parseFields(fields ...interface{}) logrus.Fields {
	result := make(logrus.Fields, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			result[key] = fields[i+1]
		}
	}
	return result
}
