// Package registry maintains the model list exposed on /v1/models: a
// static seed table of Cursor model names and limits, merged with the
// account's remote model list when available.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ModelInfo represents information about an available model.
type ModelInfo struct {
	// ID is the unique identifier for the model
	ID string `json:"id"`
	// Object type for the model (typically "model")
	Object string `json:"object"`
	// Created timestamp when the model was created
	Created int64 `json:"created"`
	// OwnedBy indicates the organization that owns the model
	OwnedBy string `json:"owned_by"`
	// ContextLength is the context window size
	ContextLength int `json:"context_length,omitempty"`
	// MaxCompletionTokens is the maximum completion tokens
	MaxCompletionTokens int `json:"max_completion_tokens,omitempty"`
}

// RemoteModel is one model reported by the upstream model list RPC.
type RemoteModel struct {
	ModelID string
	Aliases []string
}

// ModelRegistry manages the set of models the proxy advertises. Aliases
// resolve to the upstream model id Cursor expects.
type ModelRegistry struct {
	mutex    sync.RWMutex
	models   map[string]*ModelInfo
	upstream map[string]string
}

var (
	globalRegistry *ModelRegistry
	registryOnce   sync.Once
)

// GetGlobalRegistry returns the process-wide model registry, seeded with
// the static model table.
func GetGlobalRegistry() *ModelRegistry {
	registryOnce.Do(func() {
		globalRegistry = NewModelRegistry()
	})
	return globalRegistry
}

// NewModelRegistry creates a registry seeded with the static model table.
func NewModelRegistry() *ModelRegistry {
	r := &ModelRegistry{
		models:   make(map[string]*ModelInfo),
		upstream: make(map[string]string),
	}
	for _, id := range defaultModelIDs {
		r.add(id, id)
	}
	return r
}

func (r *ModelRegistry) add(id, upstreamID string) {
	limits := LimitsFor(id)
	r.models[id] = &ModelInfo{
		ID:                  id,
		Object:              "model",
		Created:             time.Now().Unix(),
		OwnedBy:             "cursor",
		ContextLength:       limits.ContextWindow,
		MaxCompletionTokens: limits.MaxOutput,
	}
	r.upstream[strings.ToLower(id)] = upstreamID
}

// MergeRemote folds the upstream model list into the registry. Remote ids
// replace the static seed; aliases resolve to their upstream id.
func (r *ModelRegistry) MergeRemote(remote []RemoteModel) {
	if len(remote) == 0 {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, m := range remote {
		if m.ModelID == "" {
			continue
		}
		r.add(m.ModelID, m.ModelID)
		for _, alias := range m.Aliases {
			if alias == "" || alias == m.ModelID {
				continue
			}
			r.upstream[strings.ToLower(alias)] = m.ModelID
		}
	}
	log.Debugf("model registry merged %d remote models", len(remote))
}

// SetDefault records the account's default model. Requests for "auto"
// resolve to it instead of passing through, and it joins the advertised
// list when new.
func (r *ModelRegistry) SetDefault(modelID string) {
	if modelID == "" {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.models[modelID]; !ok {
		r.add(modelID, modelID)
	}
	r.upstream["auto"] = modelID
	log.Debugf("default model set to %s", modelID)
}

// ResolveUpstream maps a requested model name to the upstream Cursor
// model id. Unknown names pass through unchanged so new upstream models
// work without a registry update.
func (r *ModelRegistry) ResolveUpstream(modelID string) string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if upstreamID, ok := r.upstream[strings.ToLower(strings.TrimSpace(modelID))]; ok {
		return upstreamID
	}
	return modelID
}

// GetAvailableModels returns the advertised models sorted by id.
func (r *ModelRegistry) GetAvailableModels() []*ModelInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	models := make([]*ModelInfo, 0, len(r.models))
	for _, info := range r.models {
		models = append(models, info)
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})
	return models
}
