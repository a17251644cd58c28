package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Format string

const (
	TextFormat Format = "text"
	JSONFormat Format = "json"
)

type Config struct {
	Level  string
	Format Format
	Output io.Writer
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: TextFormat, Output: os.Stderr}
}

// New builds the process logger from cfg.
func New(cfg Config) (*logrus.Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	l := logrus.New()
	l.SetLevel(level)
	if cfg.Output != nil {
		l.SetOutput(cfg.Output)
	}

	switch cfg.Format {
	case JSONFormat:
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case TextFormat, "":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}
	return l, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Component tags every entry with the emitting component.
func Component(l logrus.FieldLogger, name string) logrus.FieldLogger {
	if l == nil {
		l = Discard()
	}
	return l.WithField("component", name)
}
