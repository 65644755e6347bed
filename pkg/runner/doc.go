/*
Package runner executes workflow nodes and sequences them into runs.

A Runner owns the execution policy: a per-attempt timeout, a fixed number of
attempts with a fixed delay between them, and a bounded pool of workers for
nodes tagged domain.Blocking. Suspending nodes are called directly and are
expected to honour their context.

Each attempt works on a clone of the state, so an attempt abandoned after a
timeout can never write into the state of a later attempt.

# Usage

	r := runner.New(runner.WithTimeout(5*time.Second), runner.WithMaxRetries(2))

	graph := domain.NewGraph().
		Add("greeting", nodes.Greeting()).
		Add("processing", nodes.Processing(nil))

	out := r.RunGraph(ctx, graph, domain.NewState("conv-1"))
	if err := out.Err(); err != nil {
		log.Printf("run stopped: %v (%s)", err, out.State.Error)
	}
*/
package runner
