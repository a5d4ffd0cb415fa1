package memory

import "sync"

// Credentials implements ports.CredentialStore in memory.
type Credentials struct {
	mu       sync.Mutex
	token    string
	unlocked bool
}

// NewCredentials creates a slot pre-filled with token (may be empty).
func NewCredentials(token string) *Credentials {
	return &Credentials{token: token}
}

func (c *Credentials) Credential() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

func (c *Credentials) SetCredential(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	return nil
}

func (c *Credentials) ClearCredential() error {
	return c.SetCredential("")
}

func (c *Credentials) Unlocked() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unlocked, nil
}

func (c *Credentials) SetUnlocked(unlocked bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unlocked = unlocked
	return nil
}
