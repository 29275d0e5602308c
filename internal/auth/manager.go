// Package auth manages the process-global Cursor credential record: an
// in-memory cache over a delegated persistence store, a single-flight
// refresh guard, and the expiry policy that decides when a refresh fires.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cursor-proxy/CursorProxyAPI/internal/auth/cursor"
)

// Store is the persistence delegate for the credential record.
type Store interface {
	Load() (*cursor.CursorTokenStorage, error)
	Save(*cursor.CursorTokenStorage) error
	Clear() error
}

// Manager owns the credential record. All readers observe atomic swaps of
// the whole record; only one refresh HTTP call fires per expiry event,
// with concurrent callers awaiting its result.
type Manager struct {
	mu     sync.Mutex
	record *cursor.CursorTokenStorage
	store  Store
	auth   *cursor.CursorAuth

	// refreshing is non-nil while a refresh is in flight; waiters block
	// on its done channel and share its outcome.
	refreshing *refreshFlight
}

// refreshFlight is one in-flight refresh. err is written before done
// closes, so waiters observing the close see the outcome.
type refreshFlight struct {
	done chan struct{}
	err  error
}

// NewManager creates a credential manager backed by the given store.
func NewManager(auth *cursor.CursorAuth, store Store) *Manager {
	return &Manager{auth: auth, store: store}
}

// LoadFromStore primes the in-memory cache from persistence.
func (m *Manager) LoadFromStore() error {
	record, err := m.store.Load()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.record = record
	m.mu.Unlock()
	return nil
}

// GetAccess returns the cached access token, empty when absent.
func (m *Manager) GetAccess() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return ""
	}
	return m.record.AccessToken
}

// GetRefresh returns the cached refresh token, empty when absent.
func (m *Manager) GetRefresh() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return ""
	}
	return m.record.RefreshToken
}

// GetAPIKey returns the cached API key, empty when absent.
func (m *Manager) GetAPIKey() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return ""
	}
	return m.record.APIKey
}

// GetAll returns a copy of the whole credential record, or nil.
func (m *Manager) GetAll() *cursor.CursorTokenStorage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return nil
	}
	copied := *m.record
	return &copied
}

// SetAuth swaps in a new credential record and persists it.
func (m *Manager) SetAuth(record *cursor.CursorTokenStorage) error {
	m.mu.Lock()
	m.record = record
	m.mu.Unlock()
	return m.store.Save(record)
}

// Clear drops the credential record from memory and persistence.
func (m *Manager) Clear() error {
	m.mu.Lock()
	m.record = nil
	m.mu.Unlock()
	return m.store.Clear()
}

// AccessToken returns a usable access token, refreshing first when the
// cached one is expired. Refresh failures fall back to the existing
// token with a warning; only a missing record is fatal.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	record := m.record
	m.mu.Unlock()
	if record == nil {
		return "", fmt.Errorf("no credentials available, run with -login first")
	}
	if !record.IsExpired(time.Now()) {
		return record.AccessToken, nil
	}

	if err := m.Refresh(ctx); err != nil {
		if record.AccessToken == "" {
			return "", err
		}
		log.Warnf("token refresh failed, continuing with existing token: %v", err)
		return record.AccessToken, nil
	}
	return m.GetAccess(), nil
}

// Refresh performs one single-flight token refresh. Concurrent callers
// coalesce onto the in-flight refresh and share its outcome.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if inflight := m.refreshing; inflight != nil {
		m.mu.Unlock()
		select {
		case <-inflight.done:
			return inflight.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.record == nil || m.record.RefreshToken == "" {
		m.mu.Unlock()
		return fmt.Errorf("no refresh token available")
	}
	refreshToken := m.record.RefreshToken
	apiKey := m.record.APIKey
	inflight := &refreshFlight{done: make(chan struct{})}
	m.refreshing = inflight
	m.mu.Unlock()

	err := m.doRefresh(ctx, refreshToken, apiKey)

	m.mu.Lock()
	m.refreshing = nil
	m.mu.Unlock()
	inflight.err = err
	close(inflight.done)
	return err
}

func (m *Manager) doRefresh(ctx context.Context, refreshToken, apiKey string) error {
	refreshed, err := m.auth.RefreshTokens(ctx, refreshToken)
	if err != nil {
		return err
	}
	if refreshed.APIKey == "" {
		refreshed.APIKey = apiKey
	}

	m.mu.Lock()
	m.record = refreshed
	m.mu.Unlock()
	if errSave := m.store.Save(refreshed); errSave != nil {
		log.Warnf("failed to persist refreshed credentials: %v", errSave)
	}
	return nil
}
