// Package s3 provides a DocumentStore on an S3-compatible object store.
// Object ETags are the version tokens and writes carry If-Match /
// If-None-Match preconditions, so the bucket itself enforces compare-and-swap.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds connection settings.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Store implements ports.DocumentStore with minio-go.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects to the endpoint and creates the bucket when missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("s3 bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("s3 create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return NewFromClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *minio.Client, bucket, prefix string) *Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) object(key string) string {
	return s.prefix + key + ".json"
}

// Get downloads a document.
func (s *Store) Get(ctx context.Context, key string) (ports.Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object(key), minio.GetObjectOptions{})
	if err != nil {
		return ports.Object{}, s.mapError(key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return ports.Object{}, s.mapError(key, err)
	}
	body, err := io.ReadAll(obj)
	if err != nil {
		return ports.Object{}, s.mapError(key, err)
	}
	return ports.Object{Body: body, Version: info.ETag}, nil
}

// Version returns the ETag of the stored object.
func (s *Store) Version(ctx context.Context, key string) (string, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.object(key), minio.StatObjectOptions{})
	if err != nil {
		return "", s.mapError(key, err)
	}
	return info.ETag, nil
}

// Put uploads the document guarded by If-Match, or If-None-Match: * on create.
func (s *Store) Put(ctx context.Context, req ports.PutRequest) (string, error) {
	opts := minio.PutObjectOptions{ContentType: "application/json"}
	if req.IfMatch == "" {
		opts.SetMatchETagExcept("*")
	} else {
		opts.SetMatchETag(req.IfMatch)
	}

	info, err := s.client.PutObject(ctx, s.bucket, s.object(req.Key),
		bytes.NewReader(req.Body), int64(len(req.Body)), opts)
	if err != nil {
		if isPreconditionFailed(err) {
			current, _ := s.Version(ctx, req.Key)
			return "", &domain.ConflictError{Key: req.Key, Expected: req.IfMatch, Current: current}
		}
		return "", s.mapError(req.Key, err)
	}
	return info.ETag, nil
}

// List returns the keys under prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	// Stops the lister goroutine when we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix + prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3 list: %w", s.mapError(prefix, obj.Err))
		}
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(strings.TrimPrefix(obj.Key, s.prefix), ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) mapError(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, key)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, resp.Message)
	default:
		return fmt.Errorf("s3 %s: %w", key, err)
	}
}

func isPreconditionFailed(err error) bool {
	resp := minio.ToErrorResponse(err)
	// AWS answers a lost concurrent conditional write with 409 ConditionalRequestConflict.
	return resp.StatusCode == http.StatusPreconditionFailed ||
		resp.Code == "PreconditionFailed" ||
		resp.Code == "ConditionalRequestConflict"
}
