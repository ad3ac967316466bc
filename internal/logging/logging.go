// Package logging provides structured logging for solbeam built on zerolog.
//
// The CLI writes human-readable console output to stderr by default and can
// additionally log to a file configured in the config file. Components obtain
// scoped loggers via ComponentLogger so every event carries a component field.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level to emit ("debug", "info", "warn", "error").
	Level string

	// Format selects "console" (human readable) or "json".
	Format string

	// File, when non-empty, is a path to append logs to in addition to stderr.
	File string
}

// Result holds the constructed logger and the file handle backing it, if any.
type Result struct {
	Logger zerolog.Logger

	// UsingFile is true when log output is going to File.
	UsingFile bool

	// FilePath is the resolved log file path when UsingFile is true.
	FilePath string

	file *os.File
}

// Close releases the log file handle, if one was opened.
func (r *Result) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// New builds a logger from cfg. Unknown levels fall back to info. Failure to
// open the log file degrades to console-only logging rather than failing the
// command.
func New(cfg Config) Result {
	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var writers []io.Writer
	if cfg.Format == "json" {
		writers = append(writers, os.Stderr)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	result := Result{}
	if cfg.File != "" {
		file, openErr := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if openErr == nil {
			writers = append(writers, file)
			result.UsingFile = true
			result.FilePath = cfg.File
			result.file = file
		}
	}

	result.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().Timestamp().Logger()
	return result
}

// ComponentLogger returns a child logger tagged with the given component name.
func ComponentLogger(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// FromContext returns the logger attached to ctx, or a disabled logger when
// none is present.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
