// Package twofactor derives time-based one-time codes from account secrets.
package twofactor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var ErrEmptySecret = errors.New("two-factor secret is empty")

// Generate returns the 6 digit TOTP code valid at t.
func Generate(secret string, t time.Time) (string, error) {
	s := NormalizeSecret(secret)
	if s == "" {
		return "", ErrEmptySecret
	}
	code, err := totp.GenerateCodeCustom(s, t, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate two-factor code: %w", err)
	}
	return code, nil
}

// NormalizeSecret strips whitespace and padding and upper-cases the base32 secret.
func NormalizeSecret(secret string) string {
	s := strings.ToUpper(strings.Join(strings.Fields(secret), ""))
	return strings.TrimRight(s, "=")
}
