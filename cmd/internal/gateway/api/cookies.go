package api

import (
	"net/http"
	"time"
)

// setSessionCookie writes an httpOnly session cookie. SameSite is always
// Lax so top-level navigations keep the session while cross-site POSTs
// do not carry it.
func setSessionCookie(w http.ResponseWriter, cfg Config, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     cfg.CookiePath,
		Domain:   cfg.CookieDomain,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// expireCookie tells the browser to drop a cookie immediately. Both the
// MaxAge and Expires forms are set for older user agents.
func expireCookie(w http.ResponseWriter, cfg Config, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     cfg.CookiePath,
		Domain:   cfg.CookieDomain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// setTokenCookies installs a full token pair.
func setTokenCookies(w http.ResponseWriter, cfg Config, pair tokenPair) {
	setSessionCookie(w, cfg, cfg.AccessCookieName, pair.Access, cfg.AccessTokenTTL)
	setSessionCookie(w, cfg, cfg.RefreshCookieName, pair.Refresh, cfg.RefreshTokenTTL)
}

// clearTokenCookies expires both session cookies.
func clearTokenCookies(w http.ResponseWriter, cfg Config) {
	expireCookie(w, cfg, cfg.AccessCookieName)
	expireCookie(w, cfg, cfg.RefreshCookieName)
}

// cookieValue returns the named cookie's value or "".
func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
