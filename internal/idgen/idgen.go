// Package idgen produces the random public tokens handed out to subscribers
// and project owners.
package idgen

import (
	"crypto/rand"
	"fmt"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

	ReferralCodeLength = 10
	AdminSecretLength  = 32
)

// Generator issues referral codes and admin secrets.
type Generator interface {
	ReferralCode() string
	AdminSecret() string
}

type randomGenerator struct{}

// New returns the crypto/rand backed generator.
func New() Generator {
	return randomGenerator{}
}

func (randomGenerator) ReferralCode() string { return NewReferralCode() }

func (randomGenerator) AdminSecret() string { return NewAdminSecret() }

// NewReferralCode returns a 10 character URL-safe code.
func NewReferralCode() string {
	return token(ReferralCodeLength)
}

// NewAdminSecret returns a 32 character URL-safe secret.
func NewAdminSecret() string {
	return token(AdminSecretLength)
}

// token maps each random byte onto the 64 symbol alphabet. 256 is a multiple
// of 64 so the masked value is uniform.
func token(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("idgen: read random bytes: %v", err))
	}
	for i, b := range buf {
		buf[i] = alphabet[b&63]
	}
	return string(buf)
}

// IsValidCode reports whether code could have been produced by NewReferralCode.
func IsValidCode(code string) bool {
	if len(code) != ReferralCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !inAlphabet(code[i]) {
			return false
		}
	}
	return true
}

func inAlphabet(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-'
}
