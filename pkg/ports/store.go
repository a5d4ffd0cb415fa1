package ports

import "context"

// Object is a stored document body and the version token it was read at.
type Object struct {
	Body    []byte
	Version string
}

// PutRequest describes a conditional create-or-replace.
type PutRequest struct {
	Key  string
	Body []byte

	// IfMatch is the version the caller last read. Empty means the object
	// must not exist yet (first-time creation).
	IfMatch string

	// Credential is the bearer credential authorising the write.
	Credential string
}

// DocumentStore is a versioned key-value document API.
type DocumentStore interface {
	// Get returns the body and current version of key.
	// Returns domain.ErrDocumentNotFound if the key does not exist.
	Get(ctx context.Context, key string) (Object, error)

	// Version returns the current version token of key without its body.
	// Returns domain.ErrDocumentNotFound if the key does not exist.
	Version(ctx context.Context, key string) (string, error)

	// Put writes the body when the precondition holds and returns the new version.
	// A failed precondition yields a *domain.ConflictError; a rejected
	// credential yields domain.ErrUnauthorized.
	Put(ctx context.Context, req PutRequest) (string, error)
}

// Lister is implemented by stores that can enumerate keys.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}
