// Package handlers provides the shared pieces of the HTTP handler layer:
// the error response shapes and the base handler that carries the Cursor
// client, configuration, and usage store into each endpoint handler.
package handlers

import (
	"sync"

	"github.com/cursor-proxy/CursorProxyAPI/internal/client"
	"github.com/cursor-proxy/CursorProxyAPI/internal/config"
	"github.com/cursor-proxy/CursorProxyAPI/internal/usage"
)

// ErrorResponse represents a standard error response format for the API.
type ErrorResponse struct {
	// Error contains detailed information about the error that occurred.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail provides specific information about an error that occurred.
type ErrorDetail struct {
	// Message is a human-readable message providing more details about the error.
	Message string `json:"message"`

	// Type is the category of error that occurred (e.g., "invalid_request_error").
	Type string `json:"type"`

	// Code is a short code identifying the error, if applicable.
	Code string `json:"code,omitempty"`
}

// BaseAPIHandler carries the dependencies shared by every endpoint
// handler.
type BaseAPIHandler struct {
	mu sync.RWMutex

	// Client is the Cursor client serving all requests.
	Client *client.CursorClient

	// Usage records per-model counters, nil when disabled.
	Usage *usage.Store

	cfg *config.Config
}

// NewBaseAPIHandlers creates the shared handler state.
func NewBaseAPIHandlers(cursorClient *client.CursorClient, cfg *config.Config, usageStore *usage.Store) *BaseAPIHandler {
	return &BaseAPIHandler{Client: cursorClient, Usage: usageStore, cfg: cfg}
}

// Cfg returns the current configuration snapshot.
func (h *BaseAPIHandler) Cfg() *config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// UpdateConfig swaps in a reloaded configuration.
func (h *BaseAPIHandler) UpdateConfig(cfg *config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}
