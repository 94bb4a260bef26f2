package pairing

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/mozhi/agent/internal/util"
)

const (
	// KeySize is the AES-256-GCM key length. The X25519 shared secret is
	// exactly this size, so it is used as the session key without a KDF step.
	KeySize = 32
	// NonceSize is the GCM nonce length carried alongside each audio frame.
	NonceSize = 12
)

// Encrypt seals plaintext under key with a fresh random nonce and no
// associated data. The nonce is returned separately; it travels next to the
// ciphertext on the wire rather than prepended to it.
func Encrypt(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = util.RandomBytes(NonceSize)
	if err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}
	return nonce, gcm.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext under key and nonce. Any tag mismatch is reported
// as ErrAuthentication; no unauthenticated bytes are ever returned.
func Decrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("nonce size %d: %w", len(nonce), ErrAuthentication)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("opening ciphertext: %w", ErrAuthentication)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("got %d bytes, want %d: %w", len(key), KeySize, ErrInvalidKeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
