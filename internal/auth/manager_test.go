package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cursor-proxy/CursorProxyAPI/internal/auth/cursor"
	"github.com/cursor-proxy/CursorProxyAPI/internal/config"
)

type memStore struct {
	mu     sync.Mutex
	record *cursor.CursorTokenStorage
	saves  int
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
	s.saves++
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	return nil
}

func testToken(t *testing.T, exp time.Time) string {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"exp": exp.Unix()})
	require.NoError(t, err)
	enc := base64.URLEncoding.WithPadding(base64.NoPadding)
	return enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." + enc.EncodeToString(payload) + ".sig"
}

func refreshServer(t *testing.T, calls *atomic.Int32, accessToken string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/refresh", r.URL.Path)
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": accessToken})
	}))
}

func newTestManager(baseURL string, store Store) *Manager {
	cfg := &config.Config{Cursor: config.CursorConfig{BaseURL: baseURL}}
	return NewManager(cursor.NewCursorAuth(cfg), store)
}

func TestManagerAccessTokenFreshRecord(t *testing.T) {
	store := &memStore{record: &cursor.CursorTokenStorage{
		AccessToken: "fresh",
		ExpiresAtMs: time.Now().Add(time.Hour).UnixMilli(),
	}}
	m := newTestManager("http://unused.invalid", store)
	require.NoError(t, m.LoadFromStore())

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh", token)
}

func TestManagerAccessTokenNoRecord(t *testing.T) {
	m := newTestManager("http://unused.invalid", &memStore{})
	require.NoError(t, m.LoadFromStore())

	_, err := m.AccessToken(context.Background())
	require.Error(t, err)
}

func TestManagerRefreshOnExpiry(t *testing.T) {
	var calls atomic.Int32
	fresh := testToken(t, time.Now().Add(time.Hour))
	srv := refreshServer(t, &calls, fresh)
	defer srv.Close()

	store := &memStore{record: &cursor.CursorTokenStorage{
		AccessToken:  "stale",
		RefreshToken: "rt",
		APIKey:       "key_1",
		ExpiresAtMs:  time.Now().Add(-time.Minute).UnixMilli(),
	}}
	m := newTestManager(srv.URL, store)
	require.NoError(t, m.LoadFromStore())

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, fresh, token)
	require.Equal(t, int32(1), calls.Load())

	// The refreshed record is persisted and keeps the API key.
	require.Equal(t, 1, store.saves)
	require.Equal(t, "key_1", m.GetAPIKey())
	require.Equal(t, "rt", m.GetRefresh())
}

func TestManagerRefreshSingleFlight(t *testing.T) {
	var calls atomic.Int32
	fresh := testToken(t, time.Now().Add(time.Hour))
	gate := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		<-gate
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": fresh})
	}))
	defer srv.Close()

	store := &memStore{record: &cursor.CursorTokenStorage{
		AccessToken:  "stale",
		RefreshToken: "rt",
		ExpiresAtMs:  time.Now().Add(-time.Minute).UnixMilli(),
	}}
	m := newTestManager(srv.URL, store)
	require.NoError(t, m.LoadFromStore())

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Refresh(context.Background())
		}(i)
	}
	// Let the goroutines pile onto the in-flight refresh, then release it.
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, fresh, m.GetAccess())
}

func TestManagerRefreshSharesFailureWithWaiters(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		<-gate
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := &memStore{record: &cursor.CursorTokenStorage{
		AccessToken:  "stale",
		RefreshToken: "rt",
		ExpiresAtMs:  time.Now().Add(-time.Minute).UnixMilli(),
	}}
	m := newTestManager(srv.URL, store)
	require.NoError(t, m.LoadFromStore())

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Refresh(context.Background())
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	// Every coalesced caller observes the failed outcome, not success.
	for _, err := range errs {
		require.Error(t, err)
	}
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, "stale", m.GetAccess())
}

func TestManagerStaleFallbackOnRefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := &memStore{record: &cursor.CursorTokenStorage{
		AccessToken:  "stale",
		RefreshToken: "rt",
		ExpiresAtMs:  time.Now().Add(-time.Minute).UnixMilli(),
	}}
	m := newTestManager(srv.URL, store)
	require.NoError(t, m.LoadFromStore())

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "stale", token)
}

func TestManagerRefreshWithoutRefreshToken(t *testing.T) {
	store := &memStore{record: &cursor.CursorTokenStorage{AccessToken: "a"}}
	m := newTestManager("http://unused.invalid", store)
	require.NoError(t, m.LoadFromStore())
	require.Error(t, m.Refresh(context.Background()))
}

func TestManagerSetAuthAndClear(t *testing.T) {
	store := &memStore{}
	m := newTestManager("http://unused.invalid", store)

	record := &cursor.CursorTokenStorage{AccessToken: "a", RefreshToken: "r"}
	require.NoError(t, m.SetAuth(record))
	require.Equal(t, "a", m.GetAccess())
	require.Equal(t, 1, store.saves)

	// GetAll hands out a copy; mutating it does not touch the cache.
	copied := m.GetAll()
	copied.AccessToken = "mutated"
	require.Equal(t, "a", m.GetAccess())

	require.NoError(t, m.Clear())
	require.Nil(t, m.GetAll())
	require.Empty(t, m.GetAccess())
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent", "auth.json"))
	record, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, record)
	require.NoError(t, store.Clear())
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "auth.json"))
	require.NoError(t, store.Save(&cursor.CursorTokenStorage{
		AccessToken:  "a",
		RefreshToken: "r|packed",
	}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "a", loaded.AccessToken)
	require.Equal(t, "r", loaded.RefreshToken)
	require.Equal(t, "packed", loaded.APIKey)

	require.NoError(t, store.Clear())
	loaded, err = store.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)
}
