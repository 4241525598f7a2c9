package backendtest

import (
	"crypto/rand"
	"encoding/base64"
)

const (
	challengeIDSize      = 24
	enrollmentSecretSize = 20
)

// newChallengeID returns an opaque second-factor challenge token.
func newChallengeID() (string, error) {
	var raw [challengeIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// newEnrollmentSecret returns a base32 TOTP secret as authenticator apps
// expect it.
func newEnrollmentSecret() (string, error) {
	var raw [enrollmentSecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return totpEncoding.EncodeToString(raw[:]), nil
}
