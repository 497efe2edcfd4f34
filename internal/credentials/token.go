package credentials

import (
	"strings"
)

const (
	redactedPlaceholderConstant = "[REDACTED]"
)

// Token is an opaque platform access token.
type Token struct {
	value string
}

// NewToken wraps a raw token value after trimming surrounding whitespace.
func NewToken(value string) Token {
	return Token{value: strings.TrimSpace(value)}
}

// Reveal returns the raw token. Callers must only use it to authenticate requests or
// to inject the token into a remote URL that is never logged.
func (token Token) Reveal() string {
	return token.value
}

// IsEmpty reports whether the token carries no value.
func (token Token) IsEmpty() bool {
	return len(token.value) == 0
}

// String implements fmt.Stringer without exposing the value.
func (token Token) String() string {
	if token.IsEmpty() {
		return ""
	}
	return redactedPlaceholderConstant
}

// GoString implements fmt.GoStringer so %#v does not leak the value either.
func (token Token) GoString() string {
	return token.String()
}

// MarshalText keeps the token out of structured log encoders.
func (token Token) MarshalText() ([]byte, error) {
	return []byte(token.String()), nil
}
