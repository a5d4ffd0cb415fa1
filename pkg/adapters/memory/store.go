package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// Store implements ports.DocumentStore in memory.
// Versions are content hashes of the stored body. Safe for concurrent use.
type Store struct {
	data map[string]ports.Object
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]ports.Object),
	}
}

// Seed writes a body unconditionally, bypassing preconditions. Meant for fixtures.
func (s *Store) Seed(key string, body []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := ports.Object{Body: append([]byte(nil), body...), Version: domain.ContentVersion(body)}
	s.data[key] = obj
	return obj.Version
}

// Get retrieves a copy of the stored object.
func (s *Store) Get(ctx context.Context, key string) (ports.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.data[key]
	if !ok {
		return ports.Object{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, key)
	}
	// Copy on read so callers can't mutate the store through the slice.
	return ports.Object{Body: append([]byte(nil), obj.Body...), Version: obj.Version}, nil
}

// Version returns the current version of key.
func (s *Store) Version(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, key)
	}
	return obj.Version, nil
}

// Put writes the body if the precondition holds.
func (s *Store) Put(ctx context.Context, req ports.PutRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.data[req.Key].Version
	if current != req.IfMatch {
		return "", &domain.ConflictError{Key: req.Key, Expected: req.IfMatch, Current: current}
	}

	obj := ports.Object{Body: append([]byte(nil), req.Body...), Version: domain.ContentVersion(req.Body)}
	s.data[req.Key] = obj
	return obj.Version, nil
}

// List returns the keys under prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
