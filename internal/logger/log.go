package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"faceattend/internal/config"

	"gopkg.in/lumberjack.v2"
)

// Init installs a JSON slog logger writing to stdout and, when configured,
// a rotating log file.
func Init(cfg config.LogConfig, service string) *slog.Logger {
	l := New(os.Stdout, cfg, service)
	slog.SetDefault(l)
	l.Info("logger initialized", "level", cfg.Level, "file", cfg.File)
	return l
}

// New builds a logger writing to w plus the configured file.
func New(w io.Writer, cfg config.LogConfig, service string) *slog.Logger {
	writers := []io.Writer{w}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			LocalTime:  true,
		})
	}

	h := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	l := slog.New(h)
	if service != "" {
		l = l.With("service", service)
	}
	return l
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
