// Package config loads wayz settings from YAML and WAYZ_* environment variables.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/aretw0/wayz/internal/logging"
	"github.com/aretw0/wayz/pkg/adapters/file"
	"github.com/aretw0/wayz/pkg/adapters/redis"
	"github.com/aretw0/wayz/pkg/policy"
	"github.com/aretw0/wayz/pkg/runner"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WAYZ_"

// Store backends.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Policy modes.
const (
	PolicyDeny   = "deny"
	PolicyAllow  = "allow"
	PolicyRemote = "remote"
	// PolicyComposite asks the remote service and falls back to deny when it is unreachable.
	PolicyComposite = "composite"
)

// DefaultAddr is where `wayz serve` listens.
const DefaultAddr = ":8080"

// Config is the full application configuration.
type Config struct {
	LogLevel  string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string        `mapstructure:"log_format" yaml:"log_format"`
	Runner    runner.Config `mapstructure:"runner" yaml:"runner"`
	Policy    PolicyConfig  `mapstructure:"policy" yaml:"policy"`
	Store     StoreConfig   `mapstructure:"store" yaml:"store"`
	Server    ServerConfig  `mapstructure:"server" yaml:"server"`
}

// PolicyConfig selects the policy enforcer.
type PolicyConfig struct {
	Mode    string        `mapstructure:"mode" yaml:"mode"`
	URL     string        `mapstructure:"url" yaml:"url"`
	Path    string        `mapstructure:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// StoreConfig selects the checkpoint backend and its middleware.
type StoreConfig struct {
	Backend string      `mapstructure:"backend" yaml:"backend"`
	Dir     string      `mapstructure:"dir" yaml:"dir"`
	Redis   RedisConfig `mapstructure:"redis" yaml:"redis"`

	// EncryptionKey is a base64 AES-256 key. Empty disables encryption.
	EncryptionKey string `mapstructure:"encryption_key" yaml:"encryption_key"`
	// FallbackKeys are older base64 keys still accepted for decryption.
	FallbackKeys []string `mapstructure:"fallback_keys" yaml:"fallback_keys"`
	// PIIPatterns are regular expressions for metadata keys to mask.
	PIIPatterns []string `mapstructure:"pii_patterns" yaml:"pii_patterns"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
	// Lock serializes checkpoint writes across processes.
	Lock bool `mapstructure:"lock" yaml:"lock"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: logging.FormatText,
		Runner:    runner.DefaultConfig(),
		Policy: PolicyConfig{
			Mode:    PolicyDeny,
			URL:     policy.DefaultURL,
			Path:    policy.DefaultPath,
			Timeout: policy.DefaultTimeout,
		},
		Store: StoreConfig{
			Backend: BackendFile,
			Dir:     file.DefaultDir,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: redis.DefaultPrefix,
			},
		},
		Server: ServerConfig{Addr: DefaultAddr},
	}
}

// envKeys maps environment variables (without prefix) to config paths.
var envKeys = map[string]string{
	"LOG_LEVEL":      "log_level",
	"LOG_FORMAT":     "log_format",
	"TIMEOUT":        "runner.timeout",
	"MAX_RETRIES":    "runner.max_retries",
	"RETRY_DELAY":    "runner.retry_delay",
	"WORKERS":        "runner.workers",
	"POLICY_MODE":    "policy.mode",
	"POLICY_URL":     "policy.url",
	"POLICY_PATH":    "policy.path",
	"POLICY_TIMEOUT": "policy.timeout",
	"STORE_BACKEND":  "store.backend",
	"STORE_DIR":      "store.dir",
	"ENCRYPTION_KEY": "store.encryption_key",
	"FALLBACK_KEYS":  "store.fallback_keys",
	"PII_PATTERNS":   "store.pii_patterns",
	"REDIS_ADDR":     "store.redis.addr",
	"REDIS_PASSWORD": "store.redis.password",
	"REDIS_DB":       "store.redis.db",
	"REDIS_PREFIX":   "store.redis.prefix",
	"REDIS_TTL":      "store.redis.ttl",
	"REDIS_LOCK":     "store.redis.lock",
	"ADDR":           "server.addr",
}

// Load reads path (optional; a missing file is not an error) and applies
// WAYZ_* environment overrides on top of Default.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := readYAML(path)
		if err != nil {
			return cfg, err
		}
		if err := decode(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("invalid config %s: %w", path, err)
		}
	}

	if err := decode(envOverrides(lookup), &cfg); err != nil {
		return cfg, fmt.Errorf("invalid environment override: %w", err)
	}
	return cfg, nil
}

func readYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return raw, nil
}

func envOverrides(lookup func(string) (string, bool)) map[string]any {
	out := make(map[string]any)
	for env, path := range envKeys {
		v, ok := lookup(EnvPrefix + env)
		if !ok {
			continue
		}
		setPath(out, strings.Split(path, "."), v)
	}
	return out
}

func setPath(m map[string]any, keys []string, v any) {
	for _, k := range keys[:len(keys)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[k] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = v
}

// decode overlays raw onto cfg; fields absent from raw keep their value.
func decode(raw map[string]any, cfg *Config) error {
	if len(raw) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			commaListHook,
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// commaListHook splits "a, b" into a trimmed string slice, dropping empty items.
func commaListHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" {
		return []string{}, nil
	}
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts, nil
}

// Validate reports every setting that cannot be used.
func (c Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != logging.FormatText && c.LogFormat != logging.FormatJSON {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	if c.Runner.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("runner.max_retries must be positive, got %d", c.Runner.MaxRetries))
	}
	if c.Runner.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("runner.timeout must be positive, got %s", c.Runner.Timeout))
	}
	if c.Runner.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("runner.retry_delay must not be negative, got %s", c.Runner.RetryDelay))
	}
	if c.Runner.Workers < 1 {
		errs = append(errs, fmt.Errorf("runner.workers must be positive, got %d", c.Runner.Workers))
	}

	switch c.Policy.Mode {
	case PolicyDeny, PolicyAllow:
	case PolicyRemote, PolicyComposite:
		if c.Policy.URL == "" {
			errs = append(errs, errors.New("policy.url is required for remote policy"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown policy mode %q", c.Policy.Mode))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir is required for the file backend"))
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	if c.Store.EncryptionKey != "" {
		if _, err := c.Store.Keys(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Keys decodes the active key followed by the fallback keys.
func (s StoreConfig) Keys() ([][]byte, error) {
	encoded := append([]string{s.EncryptionKey}, s.FallbackKeys...)
	keys := make([][]byte, 0, len(encoded))
	for i, k := range encoded {
		key, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("store encryption key %d is not valid base64: %w", i, err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("store encryption key %d must decode to 32 bytes, got %d", i, len(key))
		}
		keys = append(keys, key)
	}
	return keys, nil
}
