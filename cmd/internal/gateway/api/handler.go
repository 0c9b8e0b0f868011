package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"prism/cmd/internal/upstream"
)

// Backend is the slice of the upstream client the handlers use.
// Tests substitute a recording fake.
type Backend interface {
	Call(ctx context.Context, method, path string, body any, opts ...upstream.CallOption) upstream.Result
}

// Handler serves the browser-facing session endpoints.
type Handler struct {
	cfg   Config
	back  Backend
	log   *slog.Logger
	audit *Auditor
}

// NewHandler builds the session handler. audit may be nil.
func NewHandler(cfg Config, back Backend, log *slog.Logger, audit *Auditor) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		cfg:   cfg.normalized(),
		back:  back,
		log:   log,
		audit: audit,
	}
}

// Register mounts the session routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /auth/session", h.handleSession)
	mux.HandleFunc("GET /realtime/token", h.handleRealtimeToken)
}

// ---- credential exchange ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	h.exchangeCredentials(w, r, h.cfg.LoginPath, "login")
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	h.exchangeCredentials(w, r, h.cfg.RegisterPath, "register")
}

// exchangeCredentials forwards a credential payload to the backend and,
// on success, moves the issued token pair into cookies. The relayed
// success body never contains the tokens.
func (h *Handler) exchangeCredentials(w http.ResponseWriter, r *http.Request, path, op string) {
	body, err := readRequestJSON(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "request body must be JSON", h.log)
		return
	}

	res := h.back.Call(r.Context(), http.MethodPost, path, body)
	switch res.Outcome {
	case upstream.OutcomeTransport:
		h.log.Error("auth."+op+".transport", "error", res.Err)
		writeError(w, http.StatusInternalServerError, errCodeNetwork, "identity backend unreachable", h.log)

	case upstream.OutcomeMalformed:
		h.log.Error("auth."+op+".malformed", "status", res.Status)
		writeError(w, http.StatusInternalServerError, errCodeInvalidResponse, "identity backend returned a non-JSON response", h.log)

	case upstream.OutcomeRejected:
		h.audit.Record(r.Context(), "auth."+op+".fail", requestID(w), map[string]any{"status": res.Status})
		writeRaw(w, res.Status, res.Body, h.log)

	case upstream.OutcomeOK:
		pair, sanitized, ok := extractTokenPair(res.Body)
		if !ok {
			h.log.Error("auth."+op+".no_token_pair", "status", res.Status)
			writeError(w, http.StatusInternalServerError, errCodeInvalidResponse, "identity backend omitted the token pair", h.log)
			return
		}
		setTokenCookies(w, h.cfg, pair)
		h.audit.Record(r.Context(), "auth."+op+".ok", requestID(w), nil)
		h.log.Info("auth."+op+".ok")
		writeRaw(w, http.StatusOK, withSuccessFlag(sanitized), h.log)
	}
}

// ---- refresh ----

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refresh := cookieValue(r, h.cfg.RefreshCookieName)
	if refresh == "" {
		// Local precondition failure: no backend round trip.
		writeError(w, http.StatusUnauthorized, errCodeNoRefreshToken, "no refresh token", h.log)
		return
	}

	res := h.back.Call(r.Context(), http.MethodPost, h.cfg.RefreshPath, refreshRequest{RefreshToken: refresh})

	switch res.Outcome {
	case upstream.OutcomeTransport:
		// The stored pair may still be valid, keep the cookies.
		h.log.Error("auth.refresh.transport", "error", res.Err)
		writeError(w, http.StatusInternalServerError, errCodeNetwork, "identity backend unreachable", h.log)

	case upstream.OutcomeMalformed:
		h.log.Error("auth.refresh.malformed", "status", res.Status)
		writeError(w, http.StatusInternalServerError, errCodeInvalidResponse, "identity backend returned a non-JSON response", h.log)

	case upstream.OutcomeRejected:
		// The backend invalidated the session; a stale pair must not linger.
		clearTokenCookies(w, h.cfg)
		h.audit.Record(r.Context(), "auth.refresh.fail", requestID(w), map[string]any{"status": res.Status})
		h.log.Warn("auth.refresh.fail", "status", res.Status)
		writeRaw(w, res.Status, res.Body, h.log)

	case upstream.OutcomeOK:
		pair, sanitized, ok := extractRefreshGrant(res.Body)
		if !ok {
			h.log.Error("auth.refresh.no_access_token", "status", res.Status)
			writeError(w, http.StatusInternalServerError, errCodeInvalidResponse, "identity backend omitted the access token", h.log)
			return
		}
		setSessionCookie(w, h.cfg, h.cfg.AccessCookieName, pair.Access, h.cfg.AccessTokenTTL)
		// Rotate the refresh cookie only when the backend actually issued
		// a new one; rewriting an identical token is pointless churn.
		if pair.Refresh != "" && pair.Refresh != refresh {
			setSessionCookie(w, h.cfg, h.cfg.RefreshCookieName, pair.Refresh, h.cfg.RefreshTokenTTL)
		}
		h.audit.Record(r.Context(), "auth.refresh.ok", requestID(w), map[string]any{"rotated": pair.Refresh != "" && pair.Refresh != refresh})
		writeRaw(w, http.StatusOK, withSuccessFlag(sanitized), h.log)
	}
}

// ---- logout ----

// handleLogout always succeeds from the browser's point of view. The
// backend call is best effort: the cookies are cleared even when the
// backend is down, so the client never gets stuck logged in.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	access := cookieValue(r, h.cfg.AccessCookieName)
	refresh := cookieValue(r, h.cfg.RefreshCookieName)

	if access != "" || refresh != "" {
		var opts []upstream.CallOption
		if access != "" {
			opts = append(opts, upstream.WithBearer(access))
		}
		var body any
		if refresh != "" {
			body = refreshRequest{RefreshToken: refresh}
		}
		if res := h.back.Call(r.Context(), http.MethodPost, h.cfg.LogoutPath, body, opts...); !res.OK() {
			h.log.Warn("auth.logout.upstream_fail", "outcome", res.Outcome.String(), "status", res.Status)
		}
		h.audit.Record(r.Context(), "auth.logout", requestID(w), nil)
	}

	clearTokenCookies(w, h.cfg)
	writeJSON(w, http.StatusOK, logoutResponse{Success: true, Message: "logged out"}, h.log)
}

// ---- introspection ----

// handleSession reports whether the browser currently holds a usable
// session. Every failure mode collapses to 401 unauthenticated; this
// endpoint is polled by clients and must never surface a 500.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	access := cookieValue(r, h.cfg.AccessCookieName)
	if access == "" {
		writeJSON(w, http.StatusUnauthorized, unauthenticatedSession(), h.log)
		return
	}

	res := h.back.Call(r.Context(), http.MethodGet, h.cfg.MePath, nil, upstream.WithBearer(access))
	if !res.OK() {
		writeJSON(w, http.StatusUnauthorized, unauthenticatedSession(), h.log)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		User:          extractUser(res.Body),
	}, h.log)
}

// extractUser unwraps a {"user": {...}} envelope when the backend uses
// one, otherwise treats the whole body as the user object.
func extractUser(body []byte) json.RawMessage {
	var envelope struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.User) > 0 && string(envelope.User) != "null" {
		return envelope.User
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return json.RawMessage("null")
}

// ---- realtime ----

// handleRealtimeToken exchanges the session for a short-lived websocket
// token. The backend body is relayed verbatim on success; every failure
// collapses to one generic 500 so callers retry rather than branch.
func (h *Handler) handleRealtimeToken(w http.ResponseWriter, r *http.Request) {
	access := cookieValue(r, h.cfg.AccessCookieName)
	if access == "" {
		writeError(w, http.StatusUnauthorized, errCodeNotAuthenticated, "not authenticated", h.log)
		return
	}

	res := h.back.Call(r.Context(), http.MethodGet, h.cfg.RealtimeTokenPath, nil,
		upstream.WithCookie(h.cfg.AccessCookieName, access))
	if !res.OK() {
		h.log.Warn("realtime.token.fail", "outcome", res.Outcome.String(), "status", res.Status)
		writeError(w, http.StatusInternalServerError, errCodeRealtimeToken, "failed to issue realtime token", h.log)
		return
	}

	writeRaw(w, http.StatusOK, res.Body, h.log)
}

func requestID(w http.ResponseWriter) string {
	return w.Header().Get("X-Request-ID")
}
