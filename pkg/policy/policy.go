package policy

import (
	"context"
	"errors"
	"io"

	"github.com/aretw0/wayz/pkg/ports"
)

// EnforcerFunc adapts a function to the ports.PolicyEnforcer interface.
type EnforcerFunc func(ctx context.Context, action, resource string, input map[string]any) (bool, error)

// Enforce calls f.
func (f EnforcerFunc) Enforce(ctx context.Context, action, resource string, input map[string]any) (bool, error) {
	return f(ctx, action, resource, input)
}

// DenyAll refuses every request without doing any I/O.
type DenyAll struct{}

// Enforce always returns false.
func (DenyAll) Enforce(context.Context, string, string, map[string]any) (bool, error) {
	return false, nil
}

// AllowAll permits every request. Meant for tests and local development.
type AllowAll struct{}

// Enforce always returns true.
func (AllowAll) Enforce(context.Context, string, string, map[string]any) (bool, error) {
	return true, nil
}

// Composite consults Primary and falls back to Fallback only when Primary
// fails to produce a decision. A deny from Primary is final.
type Composite struct {
	Primary  ports.PolicyEnforcer
	Fallback ports.PolicyEnforcer
}

// NewComposite creates a Composite enforcer. A nil side behaves as DenyAll.
func NewComposite(primary, fallback ports.PolicyEnforcer) *Composite {
	return &Composite{Primary: orDeny(primary), Fallback: orDeny(fallback)}
}

// Enforce returns the primary decision, or the fallback decision if the primary errored.
func (c *Composite) Enforce(ctx context.Context, action, resource string, input map[string]any) (bool, error) {
	allowed, err := orDeny(c.Primary).Enforce(ctx, action, resource, input)
	if err == nil {
		return allowed, nil
	}
	return orDeny(c.Fallback).Enforce(ctx, action, resource, input)
}

func orDeny(e ports.PolicyEnforcer) ports.PolicyEnforcer {
	if e == nil {
		return DenyAll{}
	}
	return e
}

// Close closes whichever sides implement io.Closer.
func (c *Composite) Close() error {
	var errs []error
	for _, e := range []ports.PolicyEnforcer{c.Primary, c.Fallback} {
		if closer, ok := e.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}
