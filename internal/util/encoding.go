package util

import (
	"encoding/base64"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKC normalization so transcript matching is stable
// across composed and compatibility forms.
func Normalize(s string) string {
	return norm.NFKC.String(s)
}

// B64Encode encodes bytes as padded URL-safe base64, the wire encoding for
// keys, nonces, and ciphertext.
func B64Encode(b []byte) string {
	return base64.URLEncoding.EncodeToString(b)
}

// B64Decode decodes padded URL-safe base64. Unpadded input is accepted too,
// since some clients strip padding.
func B64Decode(s string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}
