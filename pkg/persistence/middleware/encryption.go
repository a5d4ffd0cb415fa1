package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/callflow/pkg/ports"
)

// envelopeField names the ciphertext inside a stored envelope.
const envelopeField = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.DocumentStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that stores document bodies
// as AES-GCM sealed JSON envelopes. Versions are those of the wrapped store,
// computed over the envelope.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.DocumentStore) ports.DocumentStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Get(ctx context.Context, key string) (ports.Object, error) {
	obj, err := m.next.Get(ctx, key)
	if err != nil {
		return obj, err
	}

	var envelope map[string]string
	if err := json.Unmarshal(obj.Body, &envelope); err != nil {
		return ports.Object{}, fmt.Errorf("document %s is not an encrypted envelope: %w", key, err)
	}
	sealed, ok := envelope[envelopeField]
	if !ok {
		// Fail secure: an unencrypted body is never served as plaintext.
		return ports.Object{}, fmt.Errorf("document %s is missing encrypted data envelope", key)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return ports.Object{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return ports.Object{}, fmt.Errorf("failed to decrypt %s: %w", key, err)
	}
	return ports.Object{Body: plain, Version: obj.Version}, nil
}

func (m *encryptionMiddleware) Version(ctx context.Context, key string) (string, error) {
	return m.next.Version(ctx, key)
}

func (m *encryptionMiddleware) Put(ctx context.Context, req ports.PutRequest) (string, error) {
	ciphertext, err := encrypt(req.Body, m.config.ActiveKey)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt %s: %w", req.Key, err)
	}
	envelope, err := json.Marshal(map[string]string{
		envelopeField: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", err
	}
	req.Body = envelope
	return m.next.Put(ctx, req)
}

func (m *encryptionMiddleware) List(ctx context.Context, prefix string) ([]string, error) {
	return list(ctx, m.next, prefix)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
