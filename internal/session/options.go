package session

import (
	"log/slog"

	"github.com/relabs-tech/rush_recorder/internal/wallclock"
)

type (
	// Option represents a single option for the controller.
	Option interface{ controller(*Options) }

	// Options are the resolved options for the controller.
	Options struct {
		Clock  wallclock.WallClock
		Logger *slog.Logger
	}

	// This option is not used directly; see WithClock below.
	withClock struct{ wallclock.WallClock }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

// WithClock sets the clock used for window start times and UpdatedAt.
// Defaults to wallclock.Instance.
func WithClock(c wallclock.WallClock) Option {
	return withClock{c}
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt.controller(o)
		}
	}
}

func (o withClock) controller(opt *Options) {
	opt.Clock = o.WallClock
}

func (o withLogger) controller(opt *Options) {
	opt.Logger = o.Logger
}
