// Package logging builds the zerolog loggers used across prismd.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // "json" or "console"

	// File, when set, also writes JSON lines to a rotated log file.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New logs to stderr and, if cfg.File is set, to a rotated file. The returned
// closer releases the file.
func New(cfg Config) (zerolog.Logger, io.Closer) {
	if cfg.File == "" {
		return NewWithWriter(cfg, os.Stderr), nopCloser{}
	}

	rot := RotatingFile(cfg)
	logger := zerolog.New(zerolog.MultiLevelWriter(levelWriter(cfg, os.Stderr), rot))
	return decorate(logger, cfg), rot
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// RotatingFile returns the lumberjack writer backing cfg.File.
func RotatingFile(cfg Config) *lumberjack.Logger {
	size := cfg.MaxSizeMB
	if size <= 0 {
		size = 10
	}
	backups := cfg.MaxBackups
	if backups <= 0 {
		backups = 2
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    size,
		MaxBackups: backups,
		MaxAge:     28,
		Compress:   true,
	}
}

func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	return decorate(zerolog.New(levelWriter(cfg, w)), cfg)
}

func levelWriter(cfg Config, w io.Writer) io.Writer {
	if strings.EqualFold(cfg.Format, "console") {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return w
}

func decorate(logger zerolog.Logger, cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return logger.
		Level(level).
		With().
		Timestamp().
		Str("app", "prismd").
		Logger()
}

// Nop discards everything; tests use it in place of a real logger.
func Nop() zerolog.Logger { return zerolog.Nop() }

// FromContext returns the logger attached to ctx, or a disabled logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// WithComponent returns a child logger tagged with a component field.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
