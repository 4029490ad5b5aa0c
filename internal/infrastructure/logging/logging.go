package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Level string
	// Format is "text" (default) or "json".
	Format     string
	Service    string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Init installs the default slog logger and routes the std log package through
// it. The returned writer is nil when no log file is configured.
func Init(cfg Config) (*RotatingWriter, error) {
	var (
		out      io.Writer = os.Stdout
		rotating *RotatingWriter
	)
	if strings.TrimSpace(cfg.File) != "" {
		writer, err := NewRotatingWriter(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups)
		if err != nil {
			return nil, err
		}
		rotating = writer
		out = io.MultiWriter(os.Stdout, writer)
	}

	level := parseLevel(cfg.Level)
	handler := newHandler(out, cfg.Format, level)
	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	slog.SetDefault(logger)

	log.SetFlags(0)
	log.SetOutput(slog.NewLogLogger(logger.Handler(), level).Writer())
	return rotating, nil
}

func newHandler(out io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
