package runner

import (
	"log/slog"
	"time"

	"github.com/aretw0/wayz/pkg/domain"
)

// Default execution settings.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
	DefaultWorkers    = 4
)

// Config controls per-node timeout and retry behaviour.
type Config struct {
	// Timeout bounds each attempt, including time spent waiting for a worker.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// MaxRetries is the total number of attempts. Values below 1 mean 1.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	// Workers is the size of the pool that runs blocking nodes.
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
		Workers:    DefaultWorkers,
	}
}

func (c Config) normalized() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.Workers < 1 {
		c.Workers = DefaultWorkers
	}
	return c
}

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithConfig replaces the whole execution config.
func WithConfig(cfg Config) Option {
	return func(r *Runner) {
		r.config = cfg
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.config.Timeout = d
	}
}

// WithMaxRetries sets the total number of attempts per node.
func WithMaxRetries(n int) Option {
	return func(r *Runner) {
		r.config.MaxRetries = n
	}
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.config.RetryDelay = d
	}
}

// WithWorkers sets the blocking worker pool size.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		r.config.Workers = n
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithHooks registers lifecycle callbacks. Repeated calls merge.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runner) {
		r.hooks = r.hooks.Merge(hooks)
	}
}
