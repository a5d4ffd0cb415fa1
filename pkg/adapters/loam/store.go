// Package loam provides a DocumentStore on a loam repository. Each document is
// a markdown file whose body is the JSON flow document; with versioning on,
// loam records every save in git.
package loam

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
)

const ext = ".md"

// Kind tags the documents written by this store.
const Kind = "callflow-document"

// Metadata is the frontmatter kept next to each document body.
type Metadata struct {
	Key  string `json:"key" mapstructure:"key"`
	Kind string `json:"kind" mapstructure:"kind"`
}

// Store implements ports.DocumentStore on loam. Versions are content hashes of
// the body as loam returns it. Writers in this process are serialised per key.
type Store struct {
	repo *loam.TypedRepository[Metadata]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures the repository opened by New.
type Option func(*options)

type options struct {
	versioning bool
}

// WithVersioning commits every save to the repository's git history.
func WithVersioning(enabled bool) Option {
	return func(o *options) {
		o.versioning = enabled
	}
}

// New opens (or initialises) a loam repository at path.
func New(path string, opts ...Option) (*Store, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithVersioning(o.versioning),
		loam.WithForceTemp(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return NewFromRepo(repo), nil
}

// NewFromRepo wraps an existing repository.
func NewFromRepo(repo core.Repository) *Store {
	return &Store{
		repo:  loam.NewTypedRepository[Metadata](repo),
		locks: make(map[string]*sync.Mutex),
	}
}

var (
	_ ports.DocumentStore = (*Store)(nil)
	_ ports.Lister        = (*Store)(nil)
)

func docID(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key cannot be empty")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("invalid key %q", key)
		}
	}
	return key + ext, nil
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
	id, err := docID(key)
	if err != nil {
		return ports.Object{}, err
	}
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		if exists, lerr := s.exists(ctx, key); lerr == nil && !exists {
			return ports.Object{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, key)
		}
		return ports.Object{}, fmt.Errorf("loam get failed for %s: %w", key, err)
	}
	body := []byte(doc.Content)
	return ports.Object{Body: body, Version: domain.ContentVersion(body)}, nil
}

// Version returns the content hash of the stored document.
func (s *Store) Version(ctx context.Context, key string) (string, error) {
	obj, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return obj.Version, nil
}

// Put saves the document when the precondition holds. The returned version is
// read back from the repository, so it matches what the next Get reports.
func (s *Store) Put(ctx context.Context, req ports.PutRequest) (string, error) {
	id, err := docID(req.Key)
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

	if err := s.repo.Save(ctx, &loam.DocumentModel[Metadata]{
		ID:      id,
		Content: string(req.Body),
		Data:    Metadata{Key: req.Key, Kind: Kind},
	}); err != nil {
		return "", fmt.Errorf("loam save failed for %s: %w", req.Key, err)
	}
	return s.Version(ctx, req.Key)
}

// List returns the keys under prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) keys(ctx context.Context) ([]string, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}
	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		key := doc.Data.Key
		if key == "" {
			key = strings.TrimSuffix(filepath.ToSlash(doc.ID), ext)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k == key {
			return true, nil
		}
	}
	return false, nil
}
