/*
Package policy provides ports.PolicyEnforcer implementations.

  - DenyAll: local fail-closed gate with no I/O.
  - Remote: HTTP decision point speaking the Open Policy Agent data API.
  - Composite: a primary enforcer with a fallback used only when the primary errors.

The usual production setup is fail-closed:

	enforcer := policy.NewComposite(policy.NewRemote(policy.WithURL(opaURL)), policy.DenyAll{})
	defer enforcer.Close()
*/
package policy
