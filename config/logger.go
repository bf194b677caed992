package config

import (
	"io"
	"log/slog"
)

// InitLogger installs the default slog logger writing to w.
func InitLogger(cfg LogConfig, w io.Writer) {
	slog.SetDefault(slog.New(NewLogHandler(cfg, w)))
}

// NewLogHandler builds a JSON handler, or a text handler when Format is
// "text". Unknown levels log at info.
func NewLogHandler(cfg LogConfig, w io.Writer) slog.Handler {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.Format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
