package api

import (
	"encoding/json"
	"errors"
)

var errInvalidJSON = errors.New("request body is not valid JSON")

// Error codes the gateway emits itself. Backend rejection bodies pass
// through untouched and carry the backend's own codes.
const (
	errCodeInvalidRequest   = "invalid_request"
	errCodeNetwork          = "network_error"
	errCodeInvalidResponse  = "invalid_response"
	errCodeNoRefreshToken   = "no_refresh_token"
	errCodeNotAuthenticated = "not_authenticated"
	errCodeRealtimeToken    = "realtime_token_failed"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type sessionResponse struct {
	Authenticated bool            `json:"authenticated"`
	User          json.RawMessage `json:"user"`
}

func unauthenticatedSession() sessionResponse {
	return sessionResponse{Authenticated: false, User: json.RawMessage("null")}
}

type logoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// refreshRequest carries the refresh token to the backend in the body,
// which is that endpoint's expected transport.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}
