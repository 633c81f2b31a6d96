package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks the provided hex signature over the raw payload.
func ValidateSignature(payload, secret []byte, provided string) error {
	provided = strings.ToLower(strings.TrimSpace(provided))
	if provided == "" {
		return ErrMissingSignature
	}
	if !hmac.Equal([]byte(provided), []byte(Sign(payload, secret))) {
		return ErrInvalidSignature
	}
	return nil
}
