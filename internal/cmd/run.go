// Package cmd wires the proxy together: service startup with graceful
// shutdown, and the interactive browser login flow.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cursor-proxy/CursorProxyAPI/internal/api"
	"github.com/cursor-proxy/CursorProxyAPI/internal/auth"
	"github.com/cursor-proxy/CursorProxyAPI/internal/auth/cursor"
	"github.com/cursor-proxy/CursorProxyAPI/internal/client"
	"github.com/cursor-proxy/CursorProxyAPI/internal/config"
	"github.com/cursor-proxy/CursorProxyAPI/internal/registry"
	"github.com/cursor-proxy/CursorProxyAPI/internal/usage"
	"github.com/cursor-proxy/CursorProxyAPI/internal/watcher"
)

// credentialPath resolves the auth.json location for the configuration.
func credentialPath(cfg *config.Config) string {
	if cfg.AuthDir != "" {
		return filepath.Join(cfg.AuthDir, "auth.json")
	}
	return auth.NewFileStore("").Path
}

// StartService runs the proxy until SIGINT or SIGTERM.
//
// Parameters:
//   - cfg: The loaded configuration.
//   - configPath: Path of the YAML file, watched for edits.
func StartService(cfg *config.Config, configPath string) {
	store := auth.NewFileStore(credentialPath(cfg))
	cursorAuth := cursor.NewCursorAuth(cfg)
	credentials := auth.NewManager(cursorAuth, store)
	if err := credentials.LoadFromStore(); err != nil {
		log.Fatalf("failed to load credentials: %v", err)
	}
	if credentials.GetAll() == nil {
		log.Warnf("no credentials found at %s, run %s -login first", store.Path, os.Args[0])
	}

	usageStore, err := usage.Open(cfg.UsageDB)
	if err != nil {
		log.Warnf("usage tracking disabled: %v", err)
		usageStore = nil
	} else {
		defer func() {
			_ = usageStore.Close()
		}()
	}

	cursorClient := client.NewCursorClient(cfg, credentials)
	go mergeRemoteModels(cursorClient)

	apiServer := api.NewServer(cfg, cursorClient, usageStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fileWatcher, errWatcher := watcher.NewWatcher(configPath, store.Path, credentials, apiServer.UpdateConfig)
	if errWatcher != nil {
		log.Warnf("file watching disabled: %v", errWatcher)
	} else {
		if errStart := fileWatcher.Start(ctx); errStart != nil {
			log.Warnf("file watching disabled: %v", errStart)
		}
		defer func() {
			_ = fileWatcher.Stop()
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()
	log.Infof("Starting API server on port %d", cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-serverErr:
		if err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	case sig := <-sigChan:
		log.Debugf("Received %s. Cleaning up...", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if errStop := apiServer.Stop(shutdownCtx); errStop != nil {
			log.Debugf("Error stopping API server: %v", errStop)
		}
		shutdownCancel()
		log.Debug("Cleanup completed. Exiting...")
	}
}

// mergeRemoteModels folds the account's model list and default model
// into the registry. Failures keep the static seed list.
func mergeRemoteModels(cursorClient *client.CursorClient) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if defaultModel, errDefault := cursorClient.Transport().GetDefaultModel(ctx); errDefault == nil {
		registry.GetGlobalRegistry().SetDefault(defaultModel)
	} else {
		log.Debugf("could not fetch default model: %v", errDefault)
	}

	models, err := cursorClient.Transport().GetUsableModels(ctx)
	if err != nil {
		log.Debugf("could not fetch remote model list: %v", err)
		return
	}
	remote := make([]registry.RemoteModel, 0, len(models))
	for _, m := range models {
		remote = append(remote, registry.RemoteModel{ModelID: m.ModelID, Aliases: m.Aliases})
	}
	registry.GetGlobalRegistry().MergeRemote(remote)
	log.Infof("model list refreshed with %d upstream models", len(remote))
}
