package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// RequestLogger records complete proxy exchanges for debugging.
type RequestLogger interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
	LogExchange(method, url string, status int, requestBody, responseBody []byte)
}

// FileRequestLogger writes one file per exchange under the log directory.
// When disabled it is a no-op with no overhead on the request path.
type FileRequestLogger struct {
	mu      sync.Mutex
	enabled bool
	logDir  string
}

// NewFileRequestLogger creates a request logger rooted at logDir.
func NewFileRequestLogger(enabled bool, logDir string) *FileRequestLogger {
	return &FileRequestLogger{enabled: enabled, logDir: logDir}
}

// IsEnabled reports whether exchanges are being recorded.
func (l *FileRequestLogger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// SetEnabled toggles recording at runtime (driven by config reload).
func (l *FileRequestLogger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// LogExchange writes one request/response pair to its own timestamped file.
func (l *FileRequestLogger) LogExchange(method, url string, status int, requestBody, responseBody []byte) {
	if !l.IsEnabled() {
		return
	}
	if err := os.MkdirAll(l.logDir, 0o755); err != nil {
		log.Warnf("request logger: failed to create log directory: %v", err)
		return
	}

	name := fmt.Sprintf("request-%s-%s.log",
		time.Now().Format("20060102-150405.000000"),
		sanitizePathSegment(url))
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\nStatus: %d\n\n=== REQUEST ===\n", method, url, status)
	sb.Write(requestBody)
	sb.WriteString("\n\n=== RESPONSE ===\n")
	sb.Write(responseBody)
	sb.WriteString("\n")

	if err := os.WriteFile(filepath.Join(l.logDir, name), []byte(sb.String()), 0o644); err != nil {
		log.Warnf("request logger: failed to write exchange: %v", err)
	}
}

func sanitizePathSegment(url string) string {
	replacer := strings.NewReplacer("/", "_", "?", "_", "&", "_", "=", "_", ":", "_")
	trimmed := strings.Trim(replacer.Replace(url), "_")
	if len(trimmed) > 48 {
		trimmed = trimmed[:48]
	}
	return trimmed
}
