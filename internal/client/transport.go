package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cursor-proxy/CursorProxyAPI/internal/auth"
	"github.com/cursor-proxy/CursorProxyAPI/internal/config"
	"github.com/cursor-proxy/CursorProxyAPI/internal/misc"
	"github.com/cursor-proxy/CursorProxyAPI/internal/util"
)

const (
	runSSEPath       = "/agent.v1.AgentService/RunSSE"
	bidiAppendPath   = "/aiserver.v1.BidiService/BidiAppend"
	usableModelsPath = "/aiserver.v1.AiService/GetUsableModels"
	defaultModelPath = "/aiserver.v1.AiService/GetDefaultModelForCli"

	clientVersion = "2024.26"
	userAgent     = "connect-es/1.6.1"
)

// CursorTransport issues the Cursor API calls: the two bidi channels of a
// session plus the JSON sidecar RPCs. A 401 on any call triggers one
// credential refresh and one retry before the error surfaces.
type CursorTransport struct {
	baseURL     string
	timezone    string
	httpClient  *http.Client
	credentials *auth.Manager
}

// NewCursorTransport creates a transport bound to the credential manager.
func NewCursorTransport(cfg *config.Config, credentials *auth.Manager) *CursorTransport {
	return &CursorTransport{
		baseURL:     cfg.Cursor.BaseURL,
		timezone:    time.Local.String(),
		httpClient:  util.SetProxy(cfg, &http.Client{}),
		credentials: credentials,
	}
}

// setHeaders applies the Cursor header set shared by every call.
func (t *CursorTransport) setHeaders(req *http.Request, token, requestID, contentType string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-cursor-checksum", misc.GenerateChecksum(token))
	req.Header.Set("x-cursor-client-version", clientVersion)
	req.Header.Set("x-cursor-client-type", "cli")
	req.Header.Set("x-cursor-timezone", t.timezone)
	req.Header.Set("x-ghost-mode", "false")
	req.Header.Set("x-cursor-streaming", "true")
	if requestID != "" {
		req.Header.Set("x-request-id", requestID)
	}
	if contentType == "application/json" {
		req.Header.Set("connect-protocol-version", "1")
	}
}

// OpenStream starts the RunSSE call and hands back the streaming body.
func (t *CursorTransport) OpenStream(ctx context.Context, requestID string, body []byte) (io.ReadCloser, error) {
	var stream io.ReadCloser
	err := t.withAuthRetry(ctx, func(token string) (int, error) {
		req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+runSSEPath, bytes.NewReader(body))
		if errReq != nil {
			return 0, errReq
		}
		t.setHeaders(req, token, requestID, "application/grpc-web+proto")

		resp, errDo := t.httpClient.Do(req)
		if errDo != nil {
			return 0, errDo
		}
		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			return resp.StatusCode, fmt.Errorf("RunSSE failed with status %d: %s", resp.StatusCode, respBody)
		}
		stream = resp.Body
		return resp.StatusCode, nil
	})
	return stream, err
}

// Append issues one unary BidiAppend call.
func (t *CursorTransport) Append(ctx context.Context, requestID string, body []byte) error {
	return t.withAuthRetry(ctx, func(token string) (int, error) {
		req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+bidiAppendPath, bytes.NewReader(body))
		if errReq != nil {
			return 0, errReq
		}
		t.setHeaders(req, token, requestID, "application/grpc-web+proto")

		resp, errDo := t.httpClient.Do(req)
		if errDo != nil {
			return 0, errDo
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return resp.StatusCode, fmt.Errorf("BidiAppend failed with status %d: %s", resp.StatusCode, respBody)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	})
}

// GetUsableModels fetches the account's model list over the JSON sidecar.
func (t *CursorTransport) GetUsableModels(ctx context.Context) ([]UsableModel, error) {
	var result usableModelsResponse
	if err := t.jsonRPC(ctx, usableModelsPath, &result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

// GetDefaultModel fetches the account's default CLI model.
func (t *CursorTransport) GetDefaultModel(ctx context.Context) (string, error) {
	var result defaultModelResponse
	if err := t.jsonRPC(ctx, defaultModelPath, &result); err != nil {
		return "", err
	}
	return result.DefaultModel, nil
}

func (t *CursorTransport) jsonRPC(ctx context.Context, path string, out any) error {
	return t.withAuthRetry(ctx, func(token string) (int, error) {
		req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader([]byte("{}")))
		if errReq != nil {
			return 0, errReq
		}
		t.setHeaders(req, token, "", "application/json")

		resp, errDo := t.httpClient.Do(req)
		if errDo != nil {
			return 0, errDo
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		body, errRead := io.ReadAll(resp.Body)
		if errRead != nil {
			return resp.StatusCode, errRead
		}
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, fmt.Errorf("%s failed with status %d: %s", path, resp.StatusCode, body)
		}
		return resp.StatusCode, json.Unmarshal(body, out)
	})
}

// withAuthRetry runs the call with a fresh token, refreshing once and
// retrying when the server answers 401.
func (t *CursorTransport) withAuthRetry(ctx context.Context, call func(token string) (int, error)) error {
	token, err := t.credentials.AccessToken(ctx)
	if err != nil {
		return err
	}
	status, err := call(token)
	if err == nil || status != http.StatusUnauthorized {
		return err
	}

	log.Debug("unauthorized response, refreshing credentials and retrying once")
	if errRefresh := t.credentials.Refresh(ctx); errRefresh != nil {
		return fmt.Errorf("unauthorized and refresh failed: %w", errRefresh)
	}
	token, err = t.credentials.AccessToken(ctx)
	if err != nil {
		return err
	}
	_, err = call(token)
	return err
}
