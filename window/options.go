package window

import (
	"log/slog"
	"time"

	"github.com/hupe1980/arraywin/resource"
)

const (
	// DefaultBudget is the wall-clock budget per assembly call.
	DefaultBudget = 2 * time.Second
	// DefaultMaxColumns is the column cap C_max.
	DefaultMaxColumns = 5
)

type options struct {
	budget     time.Duration
	maxColumns int
	now        func() time.Time
	logger     *slog.Logger
	metrics    MetricsObserver
	rc         *resource.Controller
}

func defaultOptions() options {
	return options{
		budget:     DefaultBudget,
		maxColumns: DefaultMaxColumns,
		now:        time.Now,
		logger:     slog.New(slog.DiscardHandler),
		metrics:    NoopMetricsObserver{},
	}
}

// Option configures a Loader or Assembler.
type Option func(*options)

// WithBudget sets the wall-clock budget per assembly call.
func WithBudget(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.budget = d
		}
	}
}

// WithMaxColumns caps the number of columns fetched per chunk.
func WithMaxColumns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxColumns = n
		}
	}
}

// WithClock replaces time.Now for budget accounting.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsObserver sets the metrics observer.
func WithMetricsObserver(m MetricsObserver) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithResourceController paces range reads through rc's IO limiter.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}
