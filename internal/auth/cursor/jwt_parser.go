package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JWTClaims represents the claims section of a Cursor access token.
type JWTClaims struct {
	Sub  string `json:"sub"`
	Exp  int64  `json:"exp"`
	Iat  int64  `json:"iat"`
	Iss  string `json:"iss"`
	Aud  any    `json:"aud"`
	Type string `json:"type"`
}

// ParseJWTToken parses a JWT token and extracts the claims without
// verification. The tokens are only inspected for their expiry; the
// server remains the authority on validity.
func ParseJWTToken(token string) (*JWTClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid JWT token format: expected 3 parts, got %d", len(parts))
	}

	claimsData, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT claims: %w", err)
	}

	var claims JWTClaims
	if err = json.Unmarshal(claimsData, &claims); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JWT claims: %w", err)
	}
	return &claims, nil
}

// ExpiryMs returns the token expiry in Unix milliseconds, or 0 when the
// claim is absent.
func (c *JWTClaims) ExpiryMs() int64 {
	if c.Exp == 0 {
		return 0
	}
	return time.Unix(c.Exp, 0).UnixMilli()
}

// base64URLDecode decodes a base64 URL-encoded string with proper padding.
func base64URLDecode(data string) ([]byte, error) {
	switch len(data) % 4 {
	case 2:
		data += "=="
	case 3:
		data += "="
	}
	return base64.URLEncoding.DecodeString(data)
}
