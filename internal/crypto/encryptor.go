// Package crypto provides AES-256-GCM encryption for sensitive data held
// in the shared cache, such as token bundles and session payloads. Each
// encryption uses a fresh random nonce, so equal plaintexts produce
// different ciphertexts.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/callezenwaka/authenticate/internal/common/errors"
)

// TokenEncryptor handles encryption and decryption of token material before
// it is written to the cache. Safe for concurrent use.
type TokenEncryptor struct {
	key []byte // 32-byte AES-256 key
}

// NewTokenEncryptor creates a TokenEncryptor from a passphrase. The
// passphrase is stretched with PBKDF2 into a 32-byte AES-256 key, so any
// non-empty input length is acceptable.
func NewTokenEncryptor(key string) (*TokenEncryptor, error) {
	if key == "" {
		return nil, errors.ValidationError("encryption key cannot be empty")
	}

	// Static salt keeps derivation deterministic across restarts; the key
	// itself must come from the environment.
	salt := []byte("authenticate-token-salt")
	derivedKey := pbkdf2.Key([]byte(key), salt, 10000, 32, sha256.New)

	return &TokenEncryptor{key: derivedKey}, nil
}

// Encrypt encrypts a plaintext string and returns base64(nonce || ciphertext).
// Empty input passes through unencrypted as an empty string.
func (e *TokenEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", errors.InternalError("failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.InternalError("failed to create GCM", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.InternalError("failed to create nonce", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. GCM authenticates the ciphertext, so tampered
// or wrong-key input fails with an error rather than producing garbage.
func (e *TokenEncryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.InternalError("failed to decode ciphertext", err)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", errors.InternalError("failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.InternalError("failed to create GCM", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.ValidationError("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", errors.InternalError("failed to decrypt", err)
	}

	return string(plaintext), nil
}

// EncryptJSON marshals a value to JSON and encrypts the result
func (e *TokenEncryptor) EncryptJSON(v interface{}) (string, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return "", errors.InternalError("failed to marshal JSON", err)
	}

	return e.Encrypt(string(jsonBytes))
}

// DecryptJSON decrypts a ciphertext produced by EncryptJSON and unmarshals
// it into dest
func (e *TokenEncryptor) DecryptJSON(ciphertext string, dest interface{}) error {
	plaintext, err := e.Decrypt(ciphertext)
	if err != nil {
		return err
	}

	if plaintext == "" {
		return errors.ValidationError("empty ciphertext")
	}

	if err := json.Unmarshal([]byte(plaintext), dest); err != nil {
		return errors.InternalError("failed to unmarshal JSON", err)
	}

	return nil
}
