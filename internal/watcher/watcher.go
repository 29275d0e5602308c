// Package watcher hot-reloads the YAML configuration and the Cursor
// credential file, so config edits and re-logins take effect without a
// restart.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/cursor-proxy/CursorProxyAPI/internal/auth"
	"github.com/cursor-proxy/CursorProxyAPI/internal/config"
)

// debounceDelay absorbs editor save bursts before a reload fires.
const debounceDelay = 250 * time.Millisecond

// Watcher monitors the config file and credential file for changes.
type Watcher struct {
	watcher        *fsnotify.Watcher
	configPath     string
	credentialPath string
	credentials    *auth.Manager
	reloadConfig   func(*config.Config)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher over the config and credential files.
//
// Parameters:
//   - configPath: Path to the YAML configuration file.
//   - credentialPath: Path to the Cursor auth.json.
//   - credentials: The credential manager to re-prime on auth changes.
//   - reloadConfig: Called with the freshly parsed config after an edit.
//
// Returns:
//   - *Watcher: The watcher, not yet started.
func NewWatcher(configPath, credentialPath string, credentials *auth.Manager, reloadConfig func(*config.Config)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:        fsWatcher,
		configPath:     configPath,
		credentialPath: credentialPath,
		credentials:    credentials,
		reloadConfig:   reloadConfig,
		pending:        make(map[string]*time.Timer),
	}, nil
}

// Start watches the parent directories of both files until the context
// ends. Watching directories instead of files survives rename-based
// saves.
func (w *Watcher) Start(ctx context.Context) error {
	dirs := map[string]bool{}
	for _, p := range []string{w.configPath, w.credentialPath} {
		if p == "" {
			continue
		}
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			log.Warnf("watcher: cannot watch %s: %v", dir, err)
		}
	}

	go w.processEvents(ctx)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	switch event.Name {
	case w.configPath:
		w.debounce(event.Name, w.applyConfigChange)
	case w.credentialPath:
		w.debounce(event.Name, w.applyCredentialChange)
	}
}

// debounce schedules fn after a quiet period, resetting on each new event
// for the same path.
func (w *Watcher) debounce(path string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		fn()
	})
}

func (w *Watcher) applyConfigChange() {
	cfg, err := config.LoadConfig(w.configPath)
	if err != nil {
		log.Warnf("watcher: config reload failed, keeping previous config: %v", err)
		return
	}
	log.Infof("configuration reloaded from %s", w.configPath)
	w.reloadConfig(cfg)
}

func (w *Watcher) applyCredentialChange() {
	if err := w.credentials.LoadFromStore(); err != nil {
		log.Warnf("watcher: credential reload failed: %v", err)
		return
	}
	log.Info("credentials reloaded")
}
