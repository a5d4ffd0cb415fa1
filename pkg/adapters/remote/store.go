// Package remote is a DocumentStore client for the HTTP store API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/buger/jsonparser"
)

// DefaultTimeout bounds a single request when no client is supplied.
const DefaultTimeout = 15 * time.Second

// Store talks to a server exposing GET, HEAD and PUT under /store/.
type Store struct {
	baseURL string
	client  *http.Client
}

// Option configures the Store.
type Option func(*Store)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		s.client = c
	}
}

// New creates a Store for the server at baseURL.
func New(baseURL string, opts ...Option) *Store {
	s := &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ ports.DocumentStore = (*Store)(nil)
	_ ports.Lister        = (*Store)(nil)
)

// Get fetches a document and its ETag.
func (s *Store) Get(ctx context.Context, key string) (ports.Object, error) {
	resp, err := s.do(ctx, http.MethodGet, s.keyURL(key), nil, nil)
	if err != nil {
		return ports.Object{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, key, ""); err != nil {
		return ports.Object{}, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.Object{}, fmt.Errorf("read %s: %w", key, err)
	}
	return ports.Object{Body: body, Version: unquote(resp.Header.Get("ETag"))}, nil
}

// Version reads the ETag with a HEAD request.
func (s *Store) Version(ctx context.Context, key string) (string, error) {
	resp, err := s.do(ctx, http.MethodHead, s.keyURL(key), nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, key, ""); err != nil {
		return "", err
	}
	return unquote(resp.Header.Get("ETag")), nil
}

// Put writes the document with If-Match, or If-None-Match: * when
// req.IfMatch is empty. A 412 answer becomes a *domain.ConflictError.
func (s *Store) Put(ctx context.Context, req ports.PutRequest) (string, error) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if req.IfMatch == "" {
		headers.Set("If-None-Match", "*")
	} else {
		headers.Set("If-Match", `"`+req.IfMatch+`"`)
	}
	if req.Credential != "" {
		headers.Set("Authorization", "Bearer "+req.Credential)
	}

	resp, err := s.do(ctx, http.MethodPut, s.keyURL(req.Key), headers, req.Body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, req.Key, req.IfMatch); err != nil {
		return "", err
	}
	return unquote(resp.Header.Get("ETag")), nil
}

// List returns the keys under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	u := s.baseURL + "/store?prefix=" + url.QueryEscape(prefix)
	resp, err := s.do(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, prefix, ""); err != nil {
		return nil, err
	}
	var out struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode key list: %w", err)
	}
	return out.Keys, nil
}

func (s *Store) keyURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/store/" + strings.Join(parts, "/")
}

func (s *Store) do(ctx context.Context, method, u string, headers http.Header, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u, err)
	}
	return resp, nil
}

// checkStatus maps a response status to the store error contract.
func checkStatus(resp *http.Response, key, ifMatch string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, key)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return domain.ErrUnauthorized
	case resp.StatusCode == http.StatusPreconditionFailed:
		return &domain.ConflictError{Key: key, Expected: ifMatch}
	default:
		return fmt.Errorf("store request for %s failed: %s: %s", key, resp.Status, errorMessage(resp))
	}
}

// errorMessage pulls the "error" field out of a JSON error body, falling back
// to the raw text.
func errorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ""
	}
	if msg, err := jsonparser.GetString(data, "error"); err == nil {
		return msg
	}
	return strings.TrimSpace(string(data))
}

func unquote(tag string) string {
	return strings.Trim(strings.TrimPrefix(strings.TrimSpace(tag), "W/"), `"`)
}
