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

	"github.com/aretw0/wayz/pkg/domain"
	"github.com/aretw0/wayz/pkg/ports"
)

// EnvelopeKey is the state metadata key that carries the ciphertext.
const EnvelopeKey = "__encrypted__"

// ErrInvalidKey is returned for keys that are not 32 bytes long.
var ErrInvalidKey = errors.New("encryption key must be 32 bytes (AES-256)")

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
	ports.CheckpointStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts the state of each
// checkpoint using AES-GCM. Only conversation_id and current_step stay readable
// so listings keep working; checkpoint metadata is stored as given.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, ErrInvalidKey
	}
	for _, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, ErrInvalidKey
		}
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &encryptionMiddleware{CheckpointStore: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, id string, state *domain.State, metadata map[string]any) error {
	plainText, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	envelope := domain.NewState(state.ConversationID)
	envelope.CurrentStep = state.CurrentStep
	envelope.Metadata[EnvelopeKey] = base64.StdEncoding.EncodeToString(ciphertext)

	return m.CheckpointStore.Save(ctx, id, envelope, metadata)
}

func (m *encryptionMiddleware) Load(ctx context.Context, id string) (*domain.Checkpoint, bool, error) {
	cp, ok, err := m.CheckpointStore.Load(ctx, id)
	if err != nil || !ok {
		return cp, ok, err
	}
	state, err := m.open(cp.State)
	if err != nil {
		return nil, false, fmt.Errorf("checkpoint %s: %w", id, err)
	}
	cp.State = state
	return cp, true, nil
}

func (m *encryptionMiddleware) Rollback(ctx context.Context, id string) (*domain.State, bool, error) {
	cp, ok, err := m.Load(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return cp.State, true, nil
}

func (m *encryptionMiddleware) open(envelope *domain.State) (*domain.State, error) {
	if envelope == nil {
		return nil, errors.New("checkpoint has no state")
	}
	encryptedStr, ok := envelope.Metadata[EnvelopeKey].(string)
	if !ok {
		// Fail secure: a store configured for encryption never returns plaintext.
		return nil, errors.New("state is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}

	var state domain.State
	if err := json.Unmarshal(plainText, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted state: %w", err)
	}
	return &state, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
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
	for _, key := range append([][]byte{activeKey}, fallbackKeys...) {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}
