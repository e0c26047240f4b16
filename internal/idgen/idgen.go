// Package idgen provides short, URL-safe unique key generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the key namespaces used across the store.
const (
	EventPrefix   = "ev-"
	SessionPrefix = "sn-"
)

// Alphabet defines the character set used for the random portion of a key.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// NewEventKey returns a new globally unique event key.
func NewEventKey() (string, error) {
	return GenerateWithPrefix(EventPrefix)
}

// NewSessionKey returns a new session key.
func NewSessionKey() (string, error) {
	return GenerateWithPrefix(SessionPrefix)
}

// GenerateWithPrefix returns a new unique key with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
