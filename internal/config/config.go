// Package config provides configuration management for the Cursor Proxy API
// server. It handles loading and parsing YAML configuration files, and
// provides structured access to application settings including server port,
// debug settings, proxy configuration, API keys, and the Cursor agent
// session knobs.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port"`

	// AuthDir is the directory where the credential file is stored. When
	// empty the per-OS default location is used.
	AuthDir string `yaml:"auth-dir"`

	// Debug enables or disables debug-level logging.
	Debug bool `yaml:"debug"`

	// LoggingToFile switches log output to rotating files under logs/.
	LoggingToFile bool `yaml:"logging-to-file"`

	// ProxyURL is the URL of an optional proxy server for outbound requests.
	ProxyURL string `yaml:"proxy-url"`

	// APIKeys is a list of keys for authenticating clients to this proxy.
	APIKeys []string `yaml:"api-keys"`

	// RequestLog enables detailed request logging under logs/.
	RequestLog bool `yaml:"request-log"`

	// RequestRetry defines the retry count when a request fails.
	RequestRetry int `yaml:"request-retry"`

	// AllowLocalhostUnauthenticated allows unauthenticated requests from
	// localhost.
	AllowLocalhostUnauthenticated bool `yaml:"allow-localhost-unauthenticated"`

	// UsageDB is the path of the bbolt file holding usage counters.
	UsageDB string `yaml:"usage-db"`

	// Cursor holds the agent session settings.
	Cursor CursorConfig `yaml:"cursor"`
}

// CursorConfig groups the knobs of the Cursor agent backend.
type CursorConfig struct {
	// BaseURL is the Cursor API endpoint.
	BaseURL string `yaml:"base-url"`

	// WorkspacePath is reported to the agent as the workspace directory.
	// Defaults to the process working directory.
	WorkspacePath string `yaml:"workspace-path"`

	// RequestTimeoutMs is the wall-clock deadline of one session.
	RequestTimeoutMs int `yaml:"request-timeout-ms"`

	// IdleTimeoutMs closes a session that saw no progress event yet.
	IdleTimeoutMs int `yaml:"idle-timeout-ms"`

	// IdleTimeoutAfterProgressMs closes a session that stalled after its
	// first progress event.
	IdleTimeoutAfterProgressMs int `yaml:"idle-timeout-after-progress-ms"`

	// MaxHeartbeats caps consecutive heartbeats before first progress.
	MaxHeartbeats int `yaml:"max-heartbeats"`

	// MaxHeartbeatsAfterProgress caps consecutive heartbeats once the
	// session has produced output.
	MaxHeartbeatsAfterProgress int `yaml:"max-heartbeats-after-progress"`

	// AgentMode selects the conversation mode (ask or agent).
	AgentMode string `yaml:"agent-mode"`

	// Timing enables per-session timing logs.
	Timing bool `yaml:"timing"`
}

// Defaults applied when the YAML omits a knob.
const (
	DefaultBaseURL                    = "https://api2.cursor.sh"
	DefaultRequestTimeoutMs           = 120_000
	DefaultIdleTimeoutMs              = 180_000
	DefaultIdleTimeoutAfterProgressMs = 120_000
	DefaultMaxHeartbeats              = 1_000
)

// LoadConfig reads a YAML configuration file from the given path,
// unmarshals it into a Config struct, applies defaults, and returns it.
//
// Parameters:
//   - configFile: The path to the YAML configuration file
//
// Returns:
//   - *Config: The loaded configuration
//   - error: An error if the configuration could not be loaded
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills in the default values for unset knobs.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8317
	}
	if c.UsageDB == "" {
		c.UsageDB = "usage.db"
	}
	if c.Cursor.BaseURL == "" {
		c.Cursor.BaseURL = DefaultBaseURL
	}
	if c.Cursor.WorkspacePath == "" {
		if wd, err := os.Getwd(); err == nil {
			c.Cursor.WorkspacePath = wd
		}
	}
	if c.Cursor.RequestTimeoutMs == 0 {
		c.Cursor.RequestTimeoutMs = DefaultRequestTimeoutMs
	}
	if c.Cursor.IdleTimeoutMs == 0 {
		c.Cursor.IdleTimeoutMs = DefaultIdleTimeoutMs
	}
	if c.Cursor.IdleTimeoutAfterProgressMs == 0 {
		c.Cursor.IdleTimeoutAfterProgressMs = DefaultIdleTimeoutAfterProgressMs
	}
	if c.Cursor.MaxHeartbeats == 0 {
		c.Cursor.MaxHeartbeats = DefaultMaxHeartbeats
	}
	if c.Cursor.MaxHeartbeatsAfterProgress == 0 {
		c.Cursor.MaxHeartbeatsAfterProgress = DefaultMaxHeartbeats
	}
	if c.Cursor.AgentMode == "" {
		c.Cursor.AgentMode = "agent"
	}
}
