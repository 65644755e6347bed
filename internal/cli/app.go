// Package cli wires configuration into a Supervisor and implements the wayz commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/wayz"
	"github.com/aretw0/wayz/internal/config"
	"github.com/aretw0/wayz/internal/logging"
	"github.com/aretw0/wayz/pkg/adapters/file"
	"github.com/aretw0/wayz/pkg/adapters/memory"
	"github.com/aretw0/wayz/pkg/adapters/redis"
	"github.com/aretw0/wayz/pkg/domain"
	"github.com/aretw0/wayz/pkg/observability"
	"github.com/aretw0/wayz/pkg/persistence/middleware"
	"github.com/aretw0/wayz/pkg/policy"
	"github.com/aretw0/wayz/pkg/ports"
	"github.com/aretw0/wayz/pkg/runner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
)

// App is a configured Supervisor plus the resources it owns.
type App struct {
	Supervisor *wayz.Supervisor
	Registry   *prometheus.Registry
	Logger     *slog.Logger

	closers []io.Closer
}

// NewLogger builds the application logger from cfg.
func NewLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(level, cfg.LogFormat), nil
}

// NewApp validates cfg and builds the store, enforcer, metrics and Supervisor it
// describes. extra options are applied after the configured ones.
func NewApp(cfg config.Config, logger *slog.Logger, extra ...wayz.Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	app := &App{Registry: prometheus.NewRegistry(), Logger: logger}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics, err := observability.NewMetrics(app.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	store, locker, err := app.newStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	enforcer := NewEnforcer(cfg.Policy, logger)

	opts := []wayz.Option{
		wayz.WithLogger(logger),
		wayz.WithRunnerOptions(runner.WithConfig(cfg.Runner)),
		wayz.WithHooks(metrics.Hooks()),
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		opts = append(opts, wayz.WithHooks(debugHooks(logger)))
	}
	if locker != nil {
		opts = append(opts, wayz.WithLocker(locker))
	}
	opts = append(opts, extra...)

	sup, err := wayz.New(enforcer, store, opts...)
	if err != nil {
		return nil, errors.Join(err, app.closeExtra())
	}
	app.Supervisor = sup
	return app, nil
}

// newStore builds the backend and wraps it in the configured middleware.
// The raw backend is remembered for Close when a middleware hides it.
func (a *App) newStore(cfg config.StoreConfig) (ports.CheckpointStore, ports.DistributedLocker, error) {
	var (
		store  ports.CheckpointStore
		locker ports.DistributedLocker
	)

	switch cfg.Backend {
	case config.BackendMemory:
		store = memory.NewStore()
	case config.BackendRedis:
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = redis.NewFromClient(client,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
			redis.WithLogger(a.Logger),
		)
		if cfg.Redis.Lock {
			locker = redis.NewLocker(client, cfg.Redis.Prefix)
		}
	default:
		store = file.New(cfg.Dir, file.WithLogger(a.Logger))
	}

	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.PIIPatterns)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid pii pattern: %w", err)
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		keys, err := cfg.Keys()
		if err != nil {
			return nil, nil, err
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    keys[0],
			FallbackKeys: keys[1:],
		})
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, enc)
	}
	if len(mws) == 0 {
		return store, locker, nil
	}

	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	// PII masking runs before encryption so masked values are what gets sealed.
	return middleware.Chain(store, mws...), locker, nil
}

// NewEnforcer builds the policy enforcer for cfg.Mode.
func NewEnforcer(cfg config.PolicyConfig, logger *slog.Logger) ports.PolicyEnforcer {
	remote := func() *policy.Remote {
		return policy.NewRemote(
			policy.WithURL(cfg.URL),
			policy.WithPath(cfg.Path),
			policy.WithTimeout(cfg.Timeout),
			policy.WithLogger(logger),
		)
	}

	switch cfg.Mode {
	case config.PolicyAllow:
		logger.Warn("policy enforcement disabled: every conversation is allowed")
		return policy.AllowAll{}
	case config.PolicyRemote:
		return remote()
	case config.PolicyComposite:
		return policy.NewComposite(remote(), policy.DenyAll{})
	default:
		return policy.DenyAll{}
	}
}

func debugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("Enter Node", "node", e.Node, "attempt", e.Attempt)
		},
		OnNodeRetry: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("Retry Node", "node", e.Node, "attempt", e.Attempt, "err", e.Err)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("Leave Node", "node", e.Node, "outcome", e.Outcome, "duration", e.Duration)
		},
	}
}

// Close releases the Supervisor and any backend hidden behind middleware.
func (a *App) Close() error {
	var errs []error
	if a.Supervisor != nil {
		errs = append(errs, a.Supervisor.Close())
	}
	errs = append(errs, a.closeExtra())
	return errors.Join(errs...)
}

func (a *App) closeExtra() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
