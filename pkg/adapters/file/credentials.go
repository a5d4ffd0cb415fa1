package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// slot is the on-disk form of the credential slot.
type slot struct {
	Token    string `json:"token,omitempty"`
	Unlocked bool   `json:"unlocked,omitempty"`
}

// Credentials implements ports.CredentialStore as a JSON file readable only
// by its owner. The slot outlives the process, like a device-scoped key store.
type Credentials struct {
	Path string
	mu   sync.Mutex
}

// NewCredentials creates a credential slot at path.
// If path is empty, it defaults to ".callflow/credentials.json".
func NewCredentials(path string) *Credentials {
	if path == "" {
		path = filepath.Join(".callflow", "credentials.json")
	}
	return &Credentials{Path: path}
}

func (c *Credentials) Credential() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.read()
	return s.Token, err
}

func (c *Credentials) SetCredential(token string) error {
	return c.update(func(s *slot) { s.Token = token })
}

func (c *Credentials) ClearCredential() error {
	return c.update(func(s *slot) { s.Token = "" })
}

func (c *Credentials) Unlocked() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.read()
	return s.Unlocked, err
}

func (c *Credentials) SetUnlocked(unlocked bool) error {
	return c.update(func(s *slot) { s.Unlocked = unlocked })
}

func (c *Credentials) update(fn func(*slot)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.read()
	if err != nil {
		return err
	}
	fn(&s)
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return writeAtomic(c.Path, data, 0600)
}

func (c *Credentials) read() (slot, error) {
	var s slot
	data, err := os.ReadFile(c.Path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return s, nil
}
