package ports

import "context"

// PolicyEnforcer decides whether an action on a resource is allowed.
// A returned error means no decision could be made; callers choose how to
// react (see policy.Composite).
type PolicyEnforcer interface {
	Enforce(ctx context.Context, action, resource string, input map[string]any) (bool, error)
}
