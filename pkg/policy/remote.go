package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/wayz/internal/logging"
	"github.com/aretw0/wayz/pkg/domain"
)

// Remote defaults, matching a stock Open Policy Agent deployment.
const (
	DefaultURL     = "http://localhost:8181"
	DefaultPath    = "v1/data/authz/allow"
	DefaultTimeout = 5 * time.Second
)

// Remote asks an HTTP policy decision point (e.g. OPA) for each decision.
//
// The request body is {"input": {"action", "resource", "context"}}. A 200 reply
// with a boolean "result" is the decision; any other reply denies. Transport
// failures are returned wrapped in domain.ErrPolicyUnavailable.
type Remote struct {
	url     string
	path    string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	client *http.Client
	newFn  func() *http.Client
}

// RemoteOption configures a Remote enforcer.
type RemoteOption func(*Remote)

// WithURL sets the base URL of the decision service.
func WithURL(url string) RemoteOption {
	return func(r *Remote) {
		r.url = url
	}
}

// WithPath sets the policy path appended to the base URL.
func WithPath(path string) RemoteOption {
	return func(r *Remote) {
		r.path = path
	}
}

// WithTimeout bounds each decision request.
func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) {
		r.timeout = d
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) RemoteOption {
	return func(r *Remote) {
		r.logger = logger
	}
}

// WithHTTPClient supplies the factory used whenever a client is (re)created.
func WithHTTPClient(newClient func() *http.Client) RemoteOption {
	return func(r *Remote) {
		r.newFn = newClient
	}
}

// NewRemote creates a Remote enforcer. No connection is made until the first call.
func NewRemote(opts ...RemoteOption) *Remote {
	r := &Remote{
		url:     DefaultURL,
		path:    DefaultPath,
		timeout: DefaultTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.newFn == nil {
		r.newFn = func() *http.Client { return &http.Client{} }
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	return r
}

// Endpoint returns the full decision URL.
func (r *Remote) Endpoint() string {
	return strings.TrimRight(r.url, "/") + "/" + strings.TrimLeft(r.path, "/")
}

type decisionRequest struct {
	Input decisionInput `json:"input"`
}

type decisionInput struct {
	Action   string         `json:"action"`
	Resource string         `json:"resource"`
	Context  map[string]any `json:"context"`
}

type decisionResponse struct {
	Result any `json:"result"`
}

// Enforce posts the decision request and interprets the reply.
func (r *Remote) Enforce(ctx context.Context, action, resource string, input map[string]any) (bool, error) {
	if input == nil {
		input = map[string]any{}
	}
	body, err := json.Marshal(decisionRequest{Input: decisionInput{Action: action, Resource: resource, Context: input}})
	if err != nil {
		return false, fmt.Errorf("failed to encode policy input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrPolicyUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient().Do(req)
	if err != nil {
		r.logger.Warn("policy service unreachable", "url", r.Endpoint(), "error", err)
		return false, fmt.Errorf("%w: %w", domain.ErrPolicyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Debug("policy service denied by status", "status", resp.StatusCode)
		return false, nil
	}

	var decision decisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		r.logger.Debug("policy response not decodable, denying", "error", err)
		return false, nil
	}
	allowed, ok := decision.Result.(bool)
	if !ok {
		return false, nil
	}
	return allowed, nil
}

func (r *Remote) httpClient() *http.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		r.client = r.newFn()
	}
	return r.client
}

// Close releases idle connections. The next Enforce creates a fresh client.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		r.client.CloseIdleConnections()
		r.client = nil
	}
	return nil
}
