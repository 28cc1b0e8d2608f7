// Package auth consumes credential verification as a capability: the
// engine only cares about the pass/fail result and the identity it
// yields. Token issuance lives elsewhere.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidToken is returned for any credential that does not verify.
var ErrInvalidToken = errors.New("auth: invalid token")

// Verifier checks a presented credential and returns the caller uid.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// HMACVerifier verifies tokens of the form "<uid>.<hex hmac-sha256>"
// signed with a shared secret.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for the given shared secret.
func NewHMACVerifier(secret []byte) *HMACVerifier {
	return &HMACVerifier{secret: secret}
}

// Sign produces a token for uid. Exposed for tests and local tooling.
func (v *HMACVerifier) Sign(uid string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(uid))
	return uid + "." + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature and returns the embedded uid.
func (v *HMACVerifier) Verify(_ context.Context, token string) (string, error) {
	i := strings.LastIndexByte(token, '.')
	if i <= 0 || i == len(token)-1 {
		return "", ErrInvalidToken
	}
	uid, sig := token[:i], token[i+1:]

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(uid))
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return "", ErrInvalidToken
	}
	return uid, nil
}
