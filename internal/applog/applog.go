// Package applog wires up the aggregator's structured logging: a
// colorized, human-readable handler in development, plain JSON otherwise.
package applog

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New builds a *slog.Logger. When dev is true it uses tint's handler for
// readable, colorized terminal output; otherwise it emits structured JSON
// suitable for log aggregation.
func New(dev bool, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	if dev {
		h := tint.NewHandler(w, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h)
}
