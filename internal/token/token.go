// Package token implements the opaque resolution tokens carried in preview
// stream URLs. Tokens are self-contained so a server restart never
// invalidates outstanding previews.
package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// version prefixes the encoded payload so the format can change (for
// example, to an encrypted envelope) without breaking outstanding tokens.
const version = byte(0x01)

// maxEncodedLen bounds decoder input. Real tokens are a few hundred bytes;
// anything larger is rejected before allocation.
const maxEncodedLen = 8 * 1024

var (
	ErrTooLarge  = errors.New("token: encoded input exceeds size limit")
	ErrMalformed = errors.New("token: malformed input")
)

// Token binds a provider tag to its resolution payload. The payload fields
// are provider-specific and opaque to everything but that provider's
// resolver.
type Token struct {
	Provider string            `json:"provider"`
	Payload  map[string]string `json:"payload"`
}

// Encode serializes a token to its URL-safe wire form.
func Encode(t Token) (string, error) {
	if strings.TrimSpace(t.Provider) == "" {
		return "", fmt.Errorf("token: empty provider")
	}
	body, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("token: marshal: %w", err)
	}
	raw := make([]byte, 0, len(body)+1)
	raw = append(raw, version)
	raw = append(raw, body...)
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a wire-form token, rejecting oversized, unversioned, or
// malformed inputs.
func Decode(encoded string) (Token, error) {
	if len(encoded) == 0 {
		return Token{}, ErrMalformed
	}
	if len(encoded) > maxEncodedLen {
		return Token{}, ErrTooLarge
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < 2 || raw[0] != version {
		return Token{}, ErrMalformed
	}
	var t Token
	dec := json.NewDecoder(strings.NewReader(string(raw[1:])))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(t.Provider) == "" {
		return Token{}, fmt.Errorf("%w: missing provider", ErrMalformed)
	}
	return t, nil
}
