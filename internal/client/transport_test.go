package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cursor-proxy/CursorProxyAPI/internal/auth"
	"github.com/cursor-proxy/CursorProxyAPI/internal/auth/cursor"
	"github.com/cursor-proxy/CursorProxyAPI/internal/config"
)

type memStore struct {
	mu     sync.Mutex
	record *cursor.CursorTokenStorage
}

func (s *memStore) Load() (*cursor.CursorTokenStorage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record, nil
}

func (s *memStore) Save(record *cursor.CursorTokenStorage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = record
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	return nil
}

func freshJWT(t *testing.T) string {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"exp": time.Now().Add(time.Hour).Unix()})
	require.NoError(t, err)
	enc := base64.URLEncoding.WithPadding(base64.NoPadding)
	return enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." + enc.EncodeToString(payload) + ".sig"
}

func newTestTransport(t *testing.T, baseURL, accessToken string) *CursorTransport {
	t.Helper()
	cfg := &config.Config{Cursor: config.CursorConfig{BaseURL: baseURL}}
	store := &memStore{record: &cursor.CursorTokenStorage{
		AccessToken:  accessToken,
		RefreshToken: "rt",
		ExpiresAtMs:  time.Now().Add(time.Hour).UnixMilli(),
	}}
	credentials := auth.NewManager(cursor.NewCursorAuth(cfg), store)
	require.NoError(t, credentials.LoadFromStore())
	return NewCursorTransport(cfg, credentials)
}

func TestTransportHeaders(t *testing.T) {
	token := freshJWT(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, usableModelsPath, r.URL.Path)
		require.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "1", r.Header.Get("connect-protocol-version"))
		require.Equal(t, userAgent, r.Header.Get("User-Agent"))
		require.Equal(t, clientVersion, r.Header.Get("x-cursor-client-version"))
		require.Equal(t, "cli", r.Header.Get("x-cursor-client-type"))
		require.Equal(t, "false", r.Header.Get("x-ghost-mode"))
		require.Equal(t, "true", r.Header.Get("x-cursor-streaming"))

		checksum := r.Header.Get("x-cursor-checksum")
		parts := strings.Split(checksum, "/")
		require.Len(t, parts, 2)
		require.Len(t, parts[0], 64)
		require.Len(t, parts[1], 64)

		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{}`, string(body))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"modelId": "sonnet-4.5", "aliases": []string{"claude-sonnet"}},
			},
		})
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv.URL, token)
	models, err := tr.GetUsableModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Equal(t, "sonnet-4.5", models[0].ModelID)
	require.Equal(t, []string{"claude-sonnet"}, models[0].Aliases)
}

func TestTransportOpenStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, runSSEPath, r.URL.Path)
		require.Equal(t, "application/grpc-web+proto", r.Header.Get("Content-Type"))
		require.Equal(t, "req-1", r.Header.Get("x-request-id"))
		_, _ = w.Write([]byte("stream-bytes"))
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv.URL, freshJWT(t))
	stream, err := tr.OpenStream(context.Background(), "req-1", []byte("body"))
	require.NoError(t, err)
	defer func() {
		_ = stream.Close()
	}()
	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.Equal(t, "stream-bytes", string(data))
}

func TestTransportAppendRetriesAfterUnauthorized(t *testing.T) {
	refreshed := freshJWT(t)
	var appendCalls, refreshCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case bidiAppendPath:
			if appendCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			require.Equal(t, "Bearer "+refreshed, r.Header.Get("Authorization"))
		case "/auth/refresh":
			refreshCalls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": refreshed})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv.URL, "stale-but-unexpired")
	require.NoError(t, tr.Append(context.Background(), "req-1", []byte("frame")))
	require.Equal(t, int32(2), appendCalls.Load())
	require.Equal(t, int32(1), refreshCalls.Load())
}

func TestTransportAppendSurfacesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv.URL, freshJWT(t))
	err := tr.Append(context.Background(), "req-1", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
	require.Contains(t, err.Error(), "overloaded")
}
