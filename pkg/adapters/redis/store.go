// Package redis provides Redis-backed document storage and distributed locking.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const (
	fieldBody    = "body"
	fieldVersion = "version"

	// maxTxRetries bounds optimistic retries when a watched key changes mid-transaction.
	maxTxRetries = 8
)

// Store implements ports.DocumentStore using Redis.
// Each document is a hash {body, version}; writes run in a WATCH transaction
// so the version check and the write are atomic.
type Store struct {
	client *backend.Client
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix for documents.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "callflow:doc:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

func (s *Store) indexKey() string {
	return s.prefix + "__keys__"
}

// Get retrieves a document.
func (s *Store) Get(ctx context.Context, key string) (ports.Object, error) {
	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return ports.Object{}, fmt.Errorf("failed to get from redis: %w", err)
	}
	if len(fields) == 0 {
		return ports.Object{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, key)
	}
	return ports.Object{Body: []byte(fields[fieldBody]), Version: fields[fieldVersion]}, nil
}

// Version returns the current version of key.
func (s *Store) Version(ctx context.Context, key string) (string, error) {
	v, err := s.client.HGet(ctx, s.key(key), fieldVersion).Result()
	if errors.Is(err, backend.Nil) {
		return "", fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get version from redis: %w", err)
	}
	return v, nil
}

// Put writes the document if its current version equals req.IfMatch.
func (s *Store) Put(ctx context.Context, req ports.PutRequest) (string, error) {
	key := s.key(req.Key)
	version := domain.ContentVersion(req.Body)

	txf := func(tx *backend.Tx) error {
		current, err := tx.HGet(ctx, key, fieldVersion).Result()
		if err != nil && !errors.Is(err, backend.Nil) {
			return err
		}
		if current != req.IfMatch {
			return &domain.ConflictError{Key: req.Key, Expected: req.IfMatch, Current: current}
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.HSet(ctx, key, fieldBody, req.Body, fieldVersion, version)
			pipe.SAdd(ctx, s.indexKey(), req.Key)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, backend.TxFailedErr) {
			// The key changed between WATCH and EXEC; re-read and re-check.
			continue
		}
		if err != nil {
			var conflict *domain.ConflictError
			if errors.As(err, &conflict) {
				return "", err
			}
			return "", fmt.Errorf("failed to save to redis: %w", err)
		}
		return version, nil
	}
	return "", fmt.Errorf("failed to save to redis: %s kept changing", req.Key)
}

// List returns the stored keys under prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	keys := members[:0]
	for _, k := range members {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
