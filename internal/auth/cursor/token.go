package cursor

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"
)

// CursorTokenStorage holds the Cursor credential record. The on-disk
// layout matches the CLI's auth.json: accessToken, refreshToken, and an
// optional apiKey. The refresh field may pack an API key behind the
// refresh token as "refresh|apikey".
type CursorTokenStorage struct {
	// AccessToken is the short-lived JWT sent on every API call.
	AccessToken string `json:"accessToken"`
	// RefreshToken is exchanged for fresh access tokens.
	RefreshToken string `json:"refreshToken"`
	// APIKey is an optional long-lived key usable via the exchange endpoint.
	APIKey string `json:"apiKey,omitempty"`
	// ExpiresAtMs is the access token expiry in Unix milliseconds.
	ExpiresAtMs int64 `json:"expires_at_ms,omitempty"`
	// LastRefresh is the timestamp of the last token refresh.
	LastRefresh string `json:"last_refresh,omitempty"`
}

// DecodeRefreshField splits a stored refresh value into its refresh token
// and optional packed API key. The split happens at the first pipe only.
func DecodeRefreshField(stored string) (refreshToken, apiKey string) {
	if idx := strings.Index(stored, "|"); idx >= 0 {
		return stored[:idx], stored[idx+1:]
	}
	return stored, ""
}

// EncodeRefreshField packs an API key behind a refresh token for storage.
func EncodeRefreshField(refreshToken, apiKey string) string {
	if apiKey == "" {
		return refreshToken
	}
	return refreshToken + "|" + apiKey
}

// IsExpired reports whether the access token needs a refresh: absent, or
// expiring within the next minute.
func (ts *CursorTokenStorage) IsExpired(now time.Time) bool {
	return ts.AccessToken == "" || ts.ExpiresAtMs <= now.UnixMilli()+60_000
}

// SaveTokenToFile serializes the token storage to a JSON file.
func (ts *CursorTokenStorage) SaveTokenToFile(authFilePath string) error {
	ts.LastRefresh = time.Now().Format(time.RFC3339)
	if err := os.MkdirAll(path.Dir(authFilePath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}

	f, err := os.Create(authFilePath)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err = json.NewEncoder(f).Encode(ts); err != nil {
		return fmt.Errorf("failed to write token to file: %w", err)
	}
	return nil
}

// LoadTokenFromFile reads a credential record from disk. A refresh field
// packed as "refresh|apikey" is unpacked, with an explicit apiKey field
// taking precedence.
func LoadTokenFromFile(authFilePath string) (*CursorTokenStorage, error) {
	data, err := os.ReadFile(authFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var ts CursorTokenStorage
	if err = json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}

	refresh, packedKey := DecodeRefreshField(ts.RefreshToken)
	ts.RefreshToken = refresh
	if ts.APIKey == "" {
		ts.APIKey = packedKey
	}
	return &ts, nil
}
