package syncer

// StaticCredential is a request-scoped credential store holding one bearer
// token. Clearing it only affects the value seen by the current save.
type StaticCredential struct {
	token string
}

// NewStaticCredential wraps token.
func NewStaticCredential(token string) *StaticCredential {
	return &StaticCredential{token: token}
}

// Credential returns the held token.
func (c *StaticCredential) Credential() (string, error) { return c.token, nil }

// SetCredential replaces the held token.
func (c *StaticCredential) SetCredential(token string) error {
	c.token = token
	return nil
}

// ClearCredential drops the held token.
func (c *StaticCredential) ClearCredential() error {
	c.token = ""
	return nil
}

// Unlocked always reports true; the gate does not apply to request credentials.
func (c *StaticCredential) Unlocked() (bool, error) { return true, nil }

// SetUnlocked is a no-op.
func (c *StaticCredential) SetUnlocked(bool) error { return nil }
