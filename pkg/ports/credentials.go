package ports

import "context"

// CredentialStore is a local, device-scoped slot that outlives a session.
type CredentialStore interface {
	// Credential returns the stored bearer credential, or "" when none is set.
	Credential() (string, error)
	SetCredential(token string) error
	ClearCredential() error

	// Unlocked reports the persisted credential-gate flag.
	Unlocked() (bool, error)
	SetUnlocked(unlocked bool) error
}

// CredentialPrompter requests a credential out-of-band (e.g. a setup prompt).
type CredentialPrompter interface {
	// RequestCredential blocks until the user supplies a credential or cancels.
	// Cancellation is reported as domain.ErrCredentialRequired.
	RequestCredential(ctx context.Context) (string, error)
}

// PrompterFunc adapts a function to CredentialPrompter.
type PrompterFunc func(ctx context.Context) (string, error)

func (f PrompterFunc) RequestCredential(ctx context.Context) (string, error) {
	return f(ctx)
}
