package proxy

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const sessionIDBytes = 16

// NewSessionID returns 128 random bits, hex encoded.
func NewSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
