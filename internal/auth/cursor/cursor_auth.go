// Package cursor implements the Cursor credential flow: browser PKCE
// login, token polling, API-key exchange, and access-token refresh. The
// flow never verifies JWTs locally; expiry is read straight out of the
// token payload.
package cursor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/cursor-proxy/CursorProxyAPI/internal/config"
	"github.com/cursor-proxy/CursorProxyAPI/internal/util"
)

const (
	loginURLBase = "https://cursor.com/loginDeepControl"

	pollBaseDelay              = 1 * time.Second
	pollBackoff                = 1.2
	pollMaxDelay               = 10 * time.Second
	pollMaxAttempts            = 150
	pollMaxConsecutiveFailures = 3
)

// tokenResponse is the JSON result shared by poll, exchange, and refresh.
type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginSession carries the state of one in-flight browser login.
type LoginSession struct {
	URL      string
	UUID     string
	Verifier string
}

// CursorAuth handles the Cursor authentication flow.
type CursorAuth struct {
	apiBase    string
	httpClient *http.Client
}

// NewCursorAuth creates a new Cursor authentication service.
//
// Parameters:
//   - cfg: The application configuration (api base URL, proxy settings).
//
// Returns:
//   - *CursorAuth: The authentication service.
func NewCursorAuth(cfg *config.Config) *CursorAuth {
	return &CursorAuth{
		apiBase:    cfg.Cursor.BaseURL,
		httpClient: util.SetProxy(cfg, &http.Client{Timeout: 30 * time.Second}),
	}
}

// GenerateLoginURL creates the browser login URL with PKCE and returns
// the session state needed to poll for the resulting tokens.
func (a *CursorAuth) GenerateLoginURL() (*LoginSession, error) {
	pkce, err := GeneratePKCECodes()
	if err != nil {
		return nil, err
	}
	id := uuid.New().String()
	params := url.Values{
		"challenge":      {pkce.CodeChallenge},
		"uuid":           {id},
		"mode":           {"login"},
		"redirectTarget": {"cli"},
	}
	return &LoginSession{
		URL:      fmt.Sprintf("%s?%s", loginURLBase, params.Encode()),
		UUID:     id,
		Verifier: pkce.CodeVerifier,
	}, nil
}

// PollForTokens polls the auth endpoint until the browser login completes.
// A 404 means the login is still pending. Polling backs off gently (1s
// base, 1.2x per attempt, 10s cap) for up to 150 attempts; three
// consecutive non-404 failures abandon the login and return nil without
// an error.
//
// Parameters:
//   - ctx: The context bounding the whole poll loop.
//   - session: The login session returned by GenerateLoginURL.
//
// Returns:
//   - *CursorTokenStorage: The credential record, or nil when the login
//     was abandoned.
//   - error: Context cancellation or a request construction failure.
func (a *CursorAuth) PollForTokens(ctx context.Context, session *LoginSession) (*CursorTokenStorage, error) {
	pollURL := fmt.Sprintf("%s/auth/poll?uuid=%s&verifier=%s",
		a.apiBase, url.QueryEscape(session.UUID), url.QueryEscape(session.Verifier))

	delay := pollBaseDelay
	consecutiveFailures := 0
	for attempt := 0; attempt < pollMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * pollBackoff)
			if delay > pollMaxDelay {
				delay = pollMaxDelay
			}
		}

		result, status, err := a.authRequest(ctx, http.MethodGet, pollURL, "")
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			consecutiveFailures++
			log.Debugf("login poll attempt %d failed: %v", attempt+1, err)
		} else if status == http.StatusNotFound {
			consecutiveFailures = 0
			continue
		} else if status != http.StatusOK || result == nil || result.AccessToken == "" {
			consecutiveFailures++
			log.Debugf("login poll attempt %d returned status %d", attempt+1, status)
		} else {
			return a.buildStorage(result, ""), nil
		}

		if consecutiveFailures >= pollMaxConsecutiveFailures {
			log.Warnf("login poll abandoned after %d consecutive failures", consecutiveFailures)
			return nil, nil
		}
	}
	log.Warn("login poll timed out")
	return nil, nil
}

// ExchangeAPIKey trades a long-lived API key for a token pair.
func (a *CursorAuth) ExchangeAPIKey(ctx context.Context, apiKey string) (*CursorTokenStorage, error) {
	result, status, err := a.authRequest(ctx, http.MethodPost, a.apiBase+"/auth/exchange_user_api_key", apiKey)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || result == nil || result.AccessToken == "" {
		return nil, fmt.Errorf("api key exchange failed with status %d", status)
	}
	ts := a.buildStorage(result, apiKey)
	return ts, nil
}

// RefreshTokens trades the refresh token for a fresh access token. A
// non-200 or non-JSON response is an error; the caller decides whether
// to keep using the old token.
func (a *CursorAuth) RefreshTokens(ctx context.Context, refreshToken string) (*CursorTokenStorage, error) {
	result, status, err := a.authRequest(ctx, http.MethodPost, a.apiBase+"/auth/refresh", refreshToken)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || result == nil || result.AccessToken == "" {
		return nil, fmt.Errorf("token refresh failed with status %d", status)
	}
	ts := a.buildStorage(result, "")
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

// buildStorage assembles a credential record, deriving expires_at_ms from
// the access token's exp claim with a one-hour fallback.
func (a *CursorAuth) buildStorage(result *tokenResponse, apiKey string) *CursorTokenStorage {
	ts := &CursorTokenStorage{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		APIKey:       apiKey,
		ExpiresAtMs:  time.Now().Add(time.Hour).UnixMilli(),
	}
	if claims, err := ParseJWTToken(result.AccessToken); err == nil && claims.ExpiryMs() > 0 {
		ts.ExpiresAtMs = claims.ExpiryMs()
	} else if err != nil {
		log.Debugf("could not parse access token expiry: %v", err)
	}

	refresh, packedKey := DecodeRefreshField(ts.RefreshToken)
	ts.RefreshToken = refresh
	if ts.APIKey == "" {
		ts.APIKey = packedKey
	}
	return ts
}

// authRequest issues one auth endpoint call and decodes the token result.
// The result is nil when the body is not the expected JSON shape.
func (a *CursorAuth) authRequest(ctx context.Context, method, requestURL, bearer string) (*tokenResponse, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, requestURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create auth request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("auth request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read auth response: %w", err)
	}
	var result tokenResponse
	if err = json.Unmarshal(body, &result); err != nil {
		return nil, resp.StatusCode, nil
	}
	return &result, resp.StatusCode, nil
}
