// Package file provides filesystem-backed document and credential stores.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

const ext = ".json"

// Store implements ports.DocumentStore using the local filesystem.
// A document with key "a/b/c" lives at <BasePath>/a/b/c.json and its version
// is the content hash of the file.
type Store struct {
	BasePath string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".callflow/store".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".callflow", "store")
	}
	return &Store{BasePath: basePath, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key cannot be empty")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("invalid key %q", key)
		}
	}
	return filepath.Join(s.BasePath, filepath.FromSlash(key)+ext), nil
}

func (s *Store) lock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Get reads a document.
func (s *Store) Get(ctx context.Context, key string) (ports.Object, error) {
	path, err := s.path(key)
	if err != nil {
		return ports.Object{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ports.Object{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, key)
		}
		return ports.Object{}, fmt.Errorf("failed to read document: %w", err)
	}
	return ports.Object{Body: data, Version: domain.ContentVersion(data)}, nil
}

// Version returns the content hash of the stored document.
func (s *Store) Version(ctx context.Context, key string) (string, error) {
	obj, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return obj.Version, nil
}

// Put writes the document atomically when the precondition holds.
// Writers in this process are serialised per key.
func (s *Store) Put(ctx context.Context, req ports.PutRequest) (string, error) {
	path, err := s.path(req.Key)
	if err != nil {
		return "", err
	}
	l := s.lock(req.Key)
	l.Lock()
	defer l.Unlock()

	current, err := s.Version(ctx, req.Key)
	if err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		return "", err
	}
	if current != req.IfMatch {
		return "", &domain.ConflictError{Key: req.Key, Expected: req.IfMatch, Current: current}
	}

	if err := writeAtomic(path, req.Body, 0644); err != nil {
		return "", err
	}
	return domain.ContentVersion(req.Body), nil
}

// List returns the keys under prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.BasePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.BasePath {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ext) || strings.HasPrefix(d.Name(), "tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.BasePath, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), ext)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
