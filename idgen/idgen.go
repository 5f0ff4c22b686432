// Package idgen generates short, URL-safe ids for replies.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// ReplyPrefix is prepended to reply ids.
const ReplyPrefix = "rp_"

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	length   = 14
)

// Reply returns a new reply id.
func Reply() (string, error) {
	return WithPrefix(ReplyPrefix)
}

// WithPrefix returns a new id with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
