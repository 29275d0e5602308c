package cmd

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cursor-proxy/CursorProxyAPI/internal/auth"
	"github.com/cursor-proxy/CursorProxyAPI/internal/auth/cursor"
	"github.com/cursor-proxy/CursorProxyAPI/internal/browser"
	"github.com/cursor-proxy/CursorProxyAPI/internal/config"
	"github.com/cursor-proxy/CursorProxyAPI/internal/misc"
)

// loginTimeout bounds the whole browser login, matching the poll
// schedule's worst case.
const loginTimeout = 15 * time.Minute

// DoLogin runs the browser PKCE login and persists the resulting
// credentials. With a non-empty apiKey it skips the browser and exchanges
// the key directly.
func DoLogin(cfg *config.Config, apiKey string) {
	cursorAuth := cursor.NewCursorAuth(cfg)
	store := auth.NewFileStore(credentialPath(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()

	var record *cursor.CursorTokenStorage
	var err error
	if apiKey != "" {
		record, err = cursorAuth.ExchangeAPIKey(ctx, apiKey)
		if err != nil {
			log.Fatalf("API key exchange failed: %v", err)
		}
	} else {
		session, errURL := cursorAuth.GenerateLoginURL()
		if errURL != nil {
			log.Fatalf("failed to start login: %v", errURL)
		}

		log.Info("Opening browser for Cursor login...")
		log.Infof("If the browser does not open, visit:\n\n%s\n", session.URL)
		if errOpen := browser.OpenURL(session.URL); errOpen != nil {
			log.Warnf("could not open browser: %v", errOpen)
		}

		record, err = cursorAuth.PollForTokens(ctx, session)
		if err != nil {
			log.Fatalf("login failed: %v", err)
		}
		if record == nil {
			log.Fatal("login did not complete, please try again")
		}
	}

	misc.LogCredentialSeparator()
	if err = store.Save(record); err != nil {
		log.Fatalf("failed to save credentials: %v", err)
	}
	log.Info("Login successful.")
}
