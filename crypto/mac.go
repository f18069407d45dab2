package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

const (
	// KeySize is the length in bytes of the shared HMAC key.
	KeySize = 32
	// NonceSize is the length in bytes of a message nonce.
	NonceSize = 32
	// MACSize is the length in bytes of an HMAC-SHA256 tag.
	MACSize = sha256.Size
)

// NewNonce returns a cryptographically secure random nonce.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// ComputeMAC returns HMAC-SHA256(key, msg || nonce). Binding the nonce into the
// tag means truncating or swapping either part is detected at verification.
func ComputeMAC(key, msg, nonce []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	mac.Write(nonce)
	return mac.Sum(nil)
}

// VerifyMAC recomputes the tag for (msg, nonce) and compares it against tag in
// constant time.
func VerifyMAC(key, msg, nonce, tag []byte) bool {
	return hmac.Equal(ComputeMAC(key, msg, nonce), tag)
}

// ConstantTimeEqual reports whether a and b are equal without short-circuiting
// on the first mismatching byte.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
