// Package misc carries small helpers shared across the proxy: credential
// file placement, auth logging, and Cursor request header derivation.
package misc

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

var credentialSeparator = strings.Repeat("-", 70)

// CursorAuthFilePath returns the platform location of the Cursor CLI
// credential file: %APPDATA%/Cursor/auth.json on Windows,
// ~/.cursor/auth.json on macOS, and $XDG_CONFIG_HOME/cursor/auth.json
// (falling back to ~/.config) elsewhere.
func CursorAuthFilePath() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Cursor", "auth.json")
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".cursor", "auth.json")
		}
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "cursor", "auth.json")
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".config", "cursor", "auth.json")
		}
	}
	return filepath.Join(".", "auth.json")
}

// LogSavingCredentials emits a consistent log message when persisting auth material.
func LogSavingCredentials(path string) {
	if path == "" {
		return
	}
	// Use filepath.Clean so logs remain stable even if callers pass redundant separators.
	log.Infof("Saving credentials to %s", filepath.Clean(path))
}

// LogCredentialSeparator adds a visual separator to group auth/key processing logs.
func LogCredentialSeparator() {
	log.Info(credentialSeparator)
}
