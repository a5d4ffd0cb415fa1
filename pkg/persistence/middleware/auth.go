package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// VerifyFunc reports whether a write credential is accepted.
type VerifyFunc func(credential string) bool

type authMiddleware struct {
	next   ports.DocumentStore
	verify VerifyFunc
}

// NewAuthMiddleware rejects writes whose credential matches none of tokens.
// Reads are not guarded.
func NewAuthMiddleware(tokens ...string) Middleware {
	digests := make([][32]byte, len(tokens))
	for i, t := range tokens {
		digests[i] = sha256.Sum256([]byte(t))
	}
	return NewVerifierMiddleware(func(credential string) bool {
		got := sha256.Sum256([]byte(credential))
		ok := 0
		for _, want := range digests {
			ok |= subtle.ConstantTimeCompare(got[:], want[:])
		}
		return ok == 1
	})
}

// NewVerifierMiddleware rejects writes for which verify returns false.
func NewVerifierMiddleware(verify VerifyFunc) Middleware {
	return func(next ports.DocumentStore) ports.DocumentStore {
		return &authMiddleware{next: next, verify: verify}
	}
}

func (m *authMiddleware) Get(ctx context.Context, key string) (ports.Object, error) {
	return m.next.Get(ctx, key)
}

func (m *authMiddleware) Version(ctx context.Context, key string) (string, error) {
	return m.next.Version(ctx, key)
}

func (m *authMiddleware) Put(ctx context.Context, req ports.PutRequest) (string, error) {
	if req.Credential == "" || !m.verify(req.Credential) {
		return "", domain.ErrUnauthorized
	}
	return m.next.Put(ctx, req)
}

func (m *authMiddleware) List(ctx context.Context, prefix string) ([]string, error) {
	return list(ctx, m.next, prefix)
}
