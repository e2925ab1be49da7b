// Package internal holds token generation and digest helpers shared by
// the engine and its subpackages.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

const (
	tokenIDSize         = 16
	ephemeralSecretSize = 32
)

// TokenID is the opaque identifier of a refresh-token record. Its
// base64url form is the caller-facing refresh token.
type TokenID [tokenIDSize]byte

func NewTokenID() (TokenID, error) {
	var id TokenID
	_, err := rand.Read(id[:])
	return id, err
}

func (t TokenID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(t[:])
}

func ParseTokenID(token string) (TokenID, error) {
	var id TokenID

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid token id size")
	}

	copy(id[:], raw)
	return id, nil
}

// NewEphemeralToken generates a single-use token: the base64url raw
// value handed to the caller and the SHA-256 digest to persist.
func NewEphemeralToken() (string, [32]byte, error) {
	var secret [ephemeralSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", [32]byte{}, err
	}

	raw := base64.RawURLEncoding.EncodeToString(secret[:])
	return raw, sha256.Sum256([]byte(raw)), nil
}

// DigestEphemeralToken maps a supplied raw value back to its stored
// digest form.
func DigestEphemeralToken(raw string) [32]byte {
	return sha256.Sum256([]byte(raw))
}

// DigestsEqual compares digests in constant time.
func DigestsEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
