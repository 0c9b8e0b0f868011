package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

const maxRequestBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && log != nil {
		log.Error("api.write_json.fail", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, log *slog.Logger) {
	writeJSON(w, status, errorResponse{
		Success: false,
		Error:   code,
		Message: message,
	}, log)
}

// writeRaw relays a backend body verbatim with the given status.
func writeRaw(w http.ResponseWriter, status int, body []byte, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil && log != nil {
		log.Error("api.write_raw.fail", "error", err)
	}
}

// readRequestJSON reads the request body and verifies it is a JSON
// document, without binding it to a schema. Credential payloads pass
// through to the backend untouched.
func readRequestJSON(r *http.Request) (json.RawMessage, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if !json.Valid(raw) {
		return nil, errInvalidJSON
	}
	return raw, nil
}
