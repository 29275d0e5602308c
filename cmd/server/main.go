package main

import (
	"flag"
	"os"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/cursor-proxy/CursorProxyAPI/internal/cmd"
	"github.com/cursor-proxy/CursorProxyAPI/internal/config"
	"github.com/cursor-proxy/CursorProxyAPI/internal/logging"
)

func main() {
	var login bool
	var apiKey string
	var configPath string

	flag.BoolVar(&login, "login", false, "Login to Cursor")
	flag.StringVar(&apiKey, "api-key", "", "Exchange a Cursor API key instead of the browser login")
	flag.StringVar(&configPath, "config", "", "Configure File Path")
	flag.Parse()

	logging.SetupBaseLogger()

	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.Fatalf("failed to get working directory: %v", err)
		}
		configPath = path.Join(wd, "config.yaml")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logging.SetLogLevel(cfg.Debug)
	if err = logging.ConfigureLogOutput(cfg.LoggingToFile); err != nil {
		log.Warnf("failed to configure log output: %v", err)
	}

	if strings.HasPrefix(cfg.AuthDir, "~") {
		home, errUserHomeDir := os.UserHomeDir()
		if errUserHomeDir != nil {
			log.Fatalf("failed to get home directory: %v", errUserHomeDir)
		}
		cfg.AuthDir = path.Join(home, strings.TrimPrefix(cfg.AuthDir, "~"))
	}

	if login {
		cmd.DoLogin(cfg, apiKey)
	} else {
		cmd.StartService(cfg, configPath)
	}
}
