package buflib

import (
	"io"
	"log/slog"
)

type options struct {
	logger         *slog.Logger
	compactOnAlloc bool
}

type Option = func(*options)

// WithLogger sets the logger used for diagnostic events. Defaults to discarding output.
func WithLogger(logger *slog.Logger) func(*options) {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCompactOnAlloc compacts the arena before every allocation, moving every unpinned block
// it can. Useful to shake out callers that hold on to data past an unpin.
func WithCompactOnAlloc(enabled bool) func(*options) {
	return func(o *options) {
		o.compactOnAlloc = enabled
	}
}

func defaultOptions() options {
	return options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
