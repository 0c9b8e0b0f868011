// Package app wires configuration, logging, storage, the backend client
// and the session gateway into one runnable HTTP service.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"prism/cmd/internal/gateway/api"
	"prism/cmd/internal/upstream"
)

// App holds the assembled service.
type App struct {
	Config   Config
	Log      Logger
	DB       *pgxpool.Pool
	Upstream *upstream.Client
	Gateway  *api.Handler
}

// New loads all configuration from the environment and assembles the
// service. It fails fast on anything that would make the gateway unsafe
// or unusable rather than limping along.
func New(ctx context.Context) (*App, error) {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	upCfg := upstream.LoadConfigFromEnv()
	apiCfg := api.LoadConfigFromEnv()

	if cfg.RequireSecureTransport {
		if err := EnforceSecureTransport(&apiCfg, upCfg.BaseURL); err != nil {
			return nil, err
		}
	}

	db, err := NewDBPool(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("audit storage: %w", err)
	}

	up := upstream.New(upCfg, log)
	gateway := api.NewHandler(apiCfg, up, log, api.NewAuditor(db, log))

	log.Info("app.ready",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"upstream", up.BaseURL(),
		"audit", db != nil,
		"secure_cookies", apiCfg.CookieSecure,
	)

	return &App{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Upstream: up,
		Gateway:  gateway,
	}, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
