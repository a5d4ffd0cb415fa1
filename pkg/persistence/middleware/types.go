// Package middleware wraps a DocumentStore with cross-cutting behaviour:
// at-rest encryption, write authorisation and metrics.
package middleware

import (
	"context"
	"errors"

	"github.com/aretw0/callflow/pkg/ports"
)

// Middleware allows wrapping a DocumentStore to add behavior.
type Middleware func(ports.DocumentStore) ports.DocumentStore

// ErrListUnsupported is returned by List when the wrapped store cannot enumerate keys.
var ErrListUnsupported = errors.New("store cannot list keys")

// Chain applies mws to store. The first middleware is the outermost.
func Chain(store ports.DocumentStore, mws ...Middleware) ports.DocumentStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

func list(ctx context.Context, next ports.DocumentStore, prefix string) ([]string, error) {
	lister, ok := next.(ports.Lister)
	if !ok {
		return nil, ErrListUnsupported
	}
	return lister.List(ctx, prefix)
}
