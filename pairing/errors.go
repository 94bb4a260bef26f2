package pairing

import "errors"

var (
	// ErrAuthentication indicates an AEAD open failure: wrong key, tampered
	// ciphertext, or a nonce that does not belong to this ciphertext.
	ErrAuthentication = errors.New("authentication failed")
	// ErrInvalidPublicKey indicates a client public key that is not a valid
	// 32-byte X25519 point encoding.
	ErrInvalidPublicKey = errors.New("invalid client public key")
	// ErrInvalidKeySize indicates a symmetric key of the wrong length.
	ErrInvalidKeySize = errors.New("invalid key size")
)
