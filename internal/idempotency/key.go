package idempotency

import (
	"fmt"

	"github.com/sungwon/newsletter/internal/apperr"
)

// maxKeyLength is the exclusive upper bound on key length.
const maxKeyLength = 50

// Key is a caller-chosen idempotency key that has passed ParseKey.
type Key string

// ParseKey validates a raw key. Keys must be non-empty, shorter than 50
// characters and made of ASCII letters, digits, '-' or '_'.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return "", apperr.Validation("idempotency.parse_key", "The idempotency key cannot be empty")
	}
	if len(s) >= maxKeyLength {
		return "", apperr.Validation("idempotency.parse_key",
			fmt.Sprintf("The idempotency key must be shorter than %d characters", maxKeyLength))
	}
	for i := 0; i < len(s); i++ {
		if !isKeyChar(s[i]) {
			return "", apperr.Validation("idempotency.parse_key",
				"The idempotency key may only contain letters, digits, '-' and '_'")
		}
	}
	return Key(s), nil
}

func isKeyChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}

func (k Key) String() string {
	return string(k)
}
