// Package logging builds the prefixed loggers used across retention.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/retentionapp/retention/internal/config"
)

// New returns a logger with the given bracketed prefix. With a log file
// configured the logger writes to a size-rotated file as well as stderr;
// otherwise stderr only.
func New(prefix string, cfg config.LogConfig) *log.Logger {
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		w = io.MultiWriter(os.Stderr, rotated)
	}
	return log.New(w, prefix, log.LstdFlags)
}
