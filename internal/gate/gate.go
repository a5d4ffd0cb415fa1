// Package gate implements the PIN gate that guards interactive use of the CLI.
// The unlocked flag is persisted in the device credential store, so a device
// passes the gate once.
package gate

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/callflow/pkg/ports"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPINHash is the sha256 hex digest of the PIN "123456789".
const DefaultPINHash = "15e2b0d3c33891ebb0f1ef609ec419420c20e320ce94c65fbc8c3312448eb225"

// ErrWrongPIN is returned by Unlock when the PIN does not match.
var ErrWrongPIN = errors.New("wrong PIN")

// Gate checks PINs against a sha256 hex digest or a bcrypt hash.
type Gate struct {
	hash  string
	creds ports.CredentialStore
}

// New creates a Gate. An empty hash uses DefaultPINHash.
func New(hash string, creds ports.CredentialStore) *Gate {
	if hash == "" {
		hash = DefaultPINHash
	}
	return &Gate{hash: strings.TrimSpace(hash), creds: creds}
}

// Unlocked reports whether this device already passed the gate.
func (g *Gate) Unlocked() (bool, error) {
	return g.creds.Unlocked()
}

// Unlock verifies pin and persists the unlocked flag.
func (g *Gate) Unlock(pin string) error {
	if !Verify(g.hash, pin) {
		return ErrWrongPIN
	}
	if err := g.creds.SetUnlocked(true); err != nil {
		return fmt.Errorf("persist unlock: %w", err)
	}
	return nil
}

// Lock clears the unlocked flag.
func (g *Gate) Lock() error {
	return g.creds.SetUnlocked(false)
}

// Verify checks secret against hash. Hashes starting with "$2" are bcrypt;
// anything else is compared as a sha256 hex digest in constant time.
func Verify(hash, secret string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
	}
	want, err := hex.DecodeString(strings.ToLower(hash))
	if err != nil || len(want) != sha256.Size {
		return false
	}
	got := sha256.Sum256([]byte(secret))
	return subtle.ConstantTimeCompare(got[:], want) == 1
}

// Verifier returns a check accepting any secret matching one of hashes.
func Verifier(hashes ...string) func(string) bool {
	return func(secret string) bool {
		ok := false
		for _, h := range hashes {
			// Evaluate every hash so timing does not reveal which one matched.
			if Verify(h, secret) {
				ok = true
			}
		}
		return ok
	}
}

// HashSHA256 returns the sha256 hex digest of secret.
func HashSHA256(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// HashBcrypt returns a bcrypt hash of secret at the default cost.
func HashBcrypt(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}
