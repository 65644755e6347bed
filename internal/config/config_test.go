package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wayz.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "absent.yaml"), noEnv)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, `
log_level: debug
runner:
  timeout: 5s
  max_retries: 2
policy:
  mode: remote
  url: http://opa:8181
store:
  backend: redis
  pii_patterns: [email, "^ssn$"]
  redis:
    addr: redis:6379
    ttl: 1h
    lock: true
`)
	cfg, err := load(path, noEnv)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Runner.Timeout)
	assert.Equal(t, 2, cfg.Runner.MaxRetries)
	assert.Equal(t, time.Second, cfg.Runner.RetryDelay, "unset fields keep defaults")
	assert.Equal(t, PolicyRemote, cfg.Policy.Mode)
	assert.Equal(t, "http://opa:8181", cfg.Policy.URL)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, []string{"email", "^ssn$"}, cfg.Store.PIIPatterns)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "wayz:", cfg.Store.Redis.Prefix)
	assert.Equal(t, time.Hour, cfg.Store.Redis.TTL)
	assert.True(t, cfg.Store.Redis.Lock)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "runner:\n  timeout: 5s\nstore:\n  backend: memory\n")
	cfg, err := load(path, envOf(map[string]string{
		"WAYZ_TIMEOUT":       "250ms",
		"WAYZ_MAX_RETRIES":   "7",
		"WAYZ_PII_PATTERNS":  "email, phone ,",
		"WAYZ_REDIS_LOCK":    "true",
		"WAYZ_POLICY_MODE":   "allow",
		"WAYZ_STORE_BACKEND": "file",
	}))
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Runner.Timeout)
	assert.Equal(t, 7, cfg.Runner.MaxRetries)
	assert.Equal(t, []string{"email", "phone"}, cfg.Store.PIIPatterns)
	assert.True(t, cfg.Store.Redis.Lock)
	assert.Equal(t, PolicyAllow, cfg.Policy.Mode)
	assert.Equal(t, BackendFile, cfg.Store.Backend)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "runner:\n  timeuot: 5s\n")
	_, err := load(path, noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeuot")
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, "runner: [unclosed\n")
	_, err := load(path, noEnv)
	assert.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := load("", envOf(map[string]string{"WAYZ_TIMEOUT": "soon"}))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero retries", func(c *Config) { c.Runner.MaxRetries = 0 }, "max_retries"},
		{"negative retries", func(c *Config) { c.Runner.MaxRetries = -1 }, "max_retries"},
		{"zero timeout", func(c *Config) { c.Runner.Timeout = 0 }, "runner.timeout"},
		{"negative delay", func(c *Config) { c.Runner.RetryDelay = -time.Second }, "retry_delay"},
		{"no workers", func(c *Config) { c.Runner.Workers = 0 }, "workers"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "s3" }, `unknown store backend "s3"`},
		{"unknown mode", func(c *Config) { c.Policy.Mode = "maybe" }, `unknown policy mode "maybe"`},
		{"remote without url", func(c *Config) { c.Policy.Mode = PolicyRemote; c.Policy.URL = "" }, "policy.url"},
		{"file without dir", func(c *Config) { c.Store.Dir = "" }, "store.dir"},
		{"redis without addr", func(c *Config) { c.Store.Backend = BackendRedis; c.Store.Redis.Addr = "" }, "redis.addr"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
		{"short key", func(c *Config) { c.Store.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("short")) }, "32 bytes"},
		{"bad fallback", func(c *Config) { c.Store.EncryptionKey = key; c.Store.FallbackKeys = []string{"%%"} }, "base64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStoreConfig_Keys(t *testing.T) {
	active := []byte(strings.Repeat("a", 32))
	old := []byte(strings.Repeat("b", 32))
	sc := StoreConfig{
		EncryptionKey: base64.StdEncoding.EncodeToString(active),
		FallbackKeys:  []string{base64.StdEncoding.EncodeToString(old)},
	}

	keys, err := sc.Keys()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{active, old}, keys)
}
