package middleware

import "github.com/aretw0/wayz/pkg/ports"

// Middleware allows wrapping a CheckpointStore to add behavior.
type Middleware func(ports.CheckpointStore) ports.CheckpointStore

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(store ports.CheckpointStore, mws ...Middleware) ports.CheckpointStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
