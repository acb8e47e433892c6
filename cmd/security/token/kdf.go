package token

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Purposes used with DeriveKey. Changing one invalidates every value derived from it.
const (
	PurposeCookie    = "sessiond/cookie/v1"
	PurposeTokenHash = "sessiond/token-hash/v1"
)

// DeriveKey expands secret into an n-byte key bound to purpose (HKDF-SHA256, no salt).
func DeriveKey(secret []byte, purpose string, n int) ([]byte, error) {
	if len(secret) < MinKeyBytes {
		return nil, ErrKeyTooShort
	}
	if n <= 0 {
		n = 32
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), out); err != nil {
		return nil, err
	}
	return out, nil
}
