package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the cookie policy and the backend route map.
type Config struct {
	AccessCookieName  string
	RefreshCookieName string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	CookiePath   string
	CookieDomain string
	CookieSecure bool

	LoginPath         string
	RegisterPath      string
	RefreshPath       string
	LogoutPath        string
	MePath            string
	RealtimeTokenPath string
}

// DefaultConfig returns the cookie and route defaults.
func DefaultConfig() Config {
	return Config{
		AccessCookieName:  "access_token",
		RefreshCookieName: "refresh_token",

		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 168 * time.Hour,

		CookiePath: "/",

		LoginPath:         "/api/auth/login",
		RegisterPath:      "/api/auth/register",
		RefreshPath:       "/api/auth/refresh",
		LogoutPath:        "/api/auth/logout",
		MePath:            "/api/auth/me",
		RealtimeTokenPath: "/api/realtime/token",
	}
}

// LoadConfigFromEnv reads the cookie policy from the environment,
// falling back to DefaultConfig for anything unset.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := envDuration("PRISM_ACCESS_TOKEN_TTL"); v > 0 {
		cfg.AccessTokenTTL = v
	}
	if v := envDuration("PRISM_REFRESH_TOKEN_TTL"); v > 0 {
		cfg.RefreshTokenTTL = v
	}
	if v := strings.TrimSpace(os.Getenv("PRISM_COOKIE_DOMAIN")); v != "" {
		cfg.CookieDomain = v
	}
	if v := strings.TrimSpace(os.Getenv("PRISM_COOKIE_SECURE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CookieSecure = b
		}
	}

	return cfg.normalized()
}

// normalized enforces internal consistency. The refresh cookie must
// outlive the access cookie, otherwise a client could hold a live access
// token with no way to renew it.
func (c Config) normalized() Config {
	if c.AccessCookieName == "" {
		c.AccessCookieName = "access_token"
	}
	if c.RefreshCookieName == "" {
		c.RefreshCookieName = "refresh_token"
	}
	if c.CookiePath == "" {
		c.CookiePath = "/"
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = time.Hour
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		c.RefreshTokenTTL = c.AccessTokenTTL * 24
	}
	return c
}

func envDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}
