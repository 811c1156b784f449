package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. JSON output feeds the log shipper in
// deployed environments; text is for local runs. AddSource pins every entry
// to its call site.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With("service", "ledgerline")
}
