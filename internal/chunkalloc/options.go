package chunkalloc

import (
	"io"
	"log/slog"
)

type options struct {
	logger *slog.Logger
}

type Option = func(*options)

// WithLogger sets the logger used for chunk lifecycle events. Defaults to discarding output.
func WithLogger(logger *slog.Logger) func(*options) {
	return func(o *options) {
		o.logger = logger
	}
}

func defaultOptions() options {
	return options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
