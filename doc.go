/*
Package wayz is a sequential workflow supervisor for agent conversations.

A conversation is a named sequence of nodes run against one shared State. Every
node runs under a timeout with a fixed number of retries, the whole run is gated
by a policy decision, and the final state is checkpointed to durable storage
from which it can be listed, inspected and rolled back.

# Architecture

The Supervisor is a thin facade over ports and adapters:

  - pkg/runner executes nodes (timeouts, retries, worker pool for blocking nodes).
  - pkg/policy answers the allow/deny question (local deny, remote OPA, composite).
  - pkg/adapters/{file,memory,redis} store checkpoints.
  - pkg/session serializes writes to the same checkpoint id.

# Usage

	store := file.New("checkpoints")
	enforcer := policy.NewComposite(policy.NewRemote(), policy.DenyAll{})

	sup, err := wayz.New(enforcer, store)
	if err != nil {
		log.Fatal(err)
	}
	defer sup.Close()

	state, err := sup.RunConversation(ctx, "conv-42")
	if err != nil {
		log.Fatal(err)
	}
	if state.Failed() {
		log.Printf("run stopped at %s: %s", state.CurrentStep, state.Error)
	}

Custom workflows are plain Go functions tagged with how they wait:

	graph := domain.NewGraph().
		Add("lookup", domain.SuspendingNode(lookupCustomer)).
		Add("score", domain.BlockingNode(scoreRisk))

	state, err := sup.RunConversation(ctx, "conv-43", wayz.WithGraph(graph))
*/
package wayz
