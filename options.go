package vecdb

import (
	"log/slog"

	"github.com/hupe1980/vecdb/blobstore"
	"github.com/hupe1980/vecdb/config"
)

type options struct {
	cfg       *config.Config
	logger    *Logger
	metrics   MetricsCollector
	registry  *Registry
	snapshots blobstore.Store
}

// Option configures Connect behavior.
type Option func(*options)

// WithConfig supplies engine-level settings. Defaults to config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.cfg = cfg
		}
	}
}

// WithLogger configures structured logging for operations.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metrics = mc
		}
	}
}

// WithRegistry shares an existing collection registry between clients.
// By default every Connect gets its own registry.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithSnapshotStore overrides the snapshot blob store derived from the
// endpoint, e.g. to point snapshots at a MinIO bucket.
func WithSnapshotStore(st blobstore.Store) Option {
	return func(o *options) {
		if st != nil {
			o.snapshots = st
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metrics: NoopMetricsCollector{},
		logger:  NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.cfg == nil {
		o.cfg = config.Default()
	}
	return o
}
