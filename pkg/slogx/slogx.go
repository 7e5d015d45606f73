package slogx

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

type Config struct {
	Service string
	Version string
	Env     string // e.g. "dev", "prod"
	Level   string // e.g. "debug", "info", "warn", "error"
	Format  string // e.g. "json", "text"

	// File, when set, tees output into a daily rotated file. The value is
	// the path of a symlink to the current file, e.g. "logs/userservice.log".
	File   string
	MaxAge time.Duration // retention for rotated files (default: 7 days)
}

// New returns a configured slog.Logger and installs it as the default.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: cfg.Env == "dev",
		Level:     parseLevel(cfg.Level),
	}

	var out io.Writer = os.Stdout
	var fileErr error
	if cfg.File != "" {
		rl, err := newRotator(cfg.File, cfg.MaxAge)
		if err != nil {
			fileErr = err
		} else {
			out = io.MultiWriter(os.Stdout, rl)
		}
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler).With(
		"service", cfg.Service,
		"version", cfg.Version,
		"env", cfg.Env,
	)
	if fileErr != nil {
		logger.Warn("log file disabled", "file", cfg.File, "err", fileErr)
	}

	slog.SetDefault(logger)
	return logger
}

func newRotator(link string, maxAge time.Duration) (*rotatelogs.RotateLogs, error) {
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	if err := os.MkdirAll(filepath.Dir(link), 0o750); err != nil {
		return nil, err
	}

	ext := filepath.Ext(link)
	pattern := strings.TrimSuffix(link, ext) + ".%Y%m%d" + ext

	return rotatelogs.New(pattern,
		rotatelogs.WithLinkName(link),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(maxAge),
	)
}

// parseLevel maps a string to slog.Level.
func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
