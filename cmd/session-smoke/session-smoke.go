// Command session-smoke walks a full session lifecycle against a running
// gateway: login, introspect, refresh, realtime handshake, logout, and a
// final check that the session is really gone.
//
// Usage:
//
//	go run ./cmd/session-smoke -gateway http://localhost:8080 \
//	    -email dev@example.com -password secret \
//	    -ws ws://localhost:4000/realtime
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"prism/cmd/internal/realtime"
	"prism/cmd/internal/sessionstate"
)

func main() {
	gateway := flag.String("gateway", "http://localhost:8080", "gateway base URL")
	email := flag.String("email", "", "login email")
	password := flag.String("password", "", "login password")
	wsURL := flag.String("ws", "", "realtime websocket URL (optional)")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "session-smoke: -email and -password are required")
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, log, *gateway, *email, *password, *wsURL); err != nil {
		log.Error("smoke.fail", "error", err)
		os.Exit(1)
	}
	log.Info("smoke.ok")
}

func run(ctx context.Context, log *slog.Logger, gateway, email, password, wsURL string) error {
	c, err := sessionstate.NewClient(gateway)
	if err != nil {
		return err
	}

	if err := c.Login(ctx, map[string]string{"email": email, "password": password}); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	log.Info("smoke.login.ok")

	s, err := c.CheckSession(ctx)
	if err != nil {
		return fmt.Errorf("session check: %w", err)
	}
	if !s.Authenticated {
		return errors.New("session check: not authenticated after login")
	}
	log.Info("smoke.session.ok", "user", string(s.User))

	if err := c.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	log.Info("smoke.refresh.ok")

	if wsURL != "" {
		tok, err := c.RealtimeToken(ctx)
		if err != nil {
			return fmt.Errorf("realtime token: %w", err)
		}
		log.Info("smoke.realtime_token.ok", "expires_in", tok.ExpiresIn)

		rc, err := realtime.Dial(ctx, wsURL, tok.WSToken, log)
		if err != nil {
			return fmt.Errorf("realtime dial: %w", err)
		}
		log.Info("smoke.realtime.ok", "session_id", rc.SessionID())
		rc.Close()
	}

	if err := c.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	log.Info("smoke.logout.ok")

	s, err = c.CheckSession(ctx)
	if err != nil {
		return fmt.Errorf("post-logout check: %w", err)
	}
	if s.Authenticated {
		return errors.New("post-logout check: session survived logout")
	}
	log.Info("smoke.post_logout.ok")
	return nil
}
