package middleware_test

import (
	"context"

	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/ports"
)

// MockStore hides the List method of a memory store, for backends that
// cannot enumerate keys.
type MockStore struct {
	inner *memory.Store
}

func NewMockStore() *MockStore {
	return &MockStore{inner: memory.NewStore()}
}

func (s *MockStore) Get(ctx context.Context, key string) (ports.Object, error) {
	return s.inner.Get(ctx, key)
}

func (s *MockStore) Version(ctx context.Context, key string) (string, error) {
	return s.inner.Version(ctx, key)
}

func (s *MockStore) Put(ctx context.Context, req ports.PutRequest) (string, error) {
	return s.inner.Put(ctx, req)
}

var _ ports.DocumentStore = (*MockStore)(nil)
