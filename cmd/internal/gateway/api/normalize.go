package api

import "encoding/json"

// tokenPair is one access/refresh token couple extracted from a backend
// success body.
type tokenPair struct {
	Access  string
	Refresh string
}

// Backend deployments have drifted on field naming: newer ones send
// access_token/refresh_token, older ones access/refresh. The shim accepts
// either spelling; a mixed pair (one spelling each) is also valid.
var (
	accessTokenKeys  = []string{"access_token", "access"}
	refreshTokenKeys = []string{"refresh_token", "refresh"}
)

// extractTokenPair pulls the token pair out of a JSON success body and
// returns the body with the token fields removed, so tokens never leak
// into a relayed response. ok is false when the body is not a JSON
// object or either token is missing or empty.
func extractTokenPair(body []byte) (pair tokenPair, sanitized []byte, ok bool) {
	pair, sanitized, ok = extractTokens(body)
	if !ok || pair.Refresh == "" {
		return tokenPair{}, nil, false
	}
	return pair, sanitized, true
}

// extractRefreshGrant is the refresh-response variant: a new access
// token is required, a rotated refresh token is optional.
func extractRefreshGrant(body []byte) (pair tokenPair, sanitized []byte, ok bool) {
	return extractTokens(body)
}

func extractTokens(body []byte) (pair tokenPair, sanitized []byte, ok bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return tokenPair{}, nil, false
	}

	pair.Access = takeString(obj, accessTokenKeys)
	pair.Refresh = takeString(obj, refreshTokenKeys)
	if pair.Access == "" {
		return tokenPair{}, nil, false
	}

	sanitized, err := json.Marshal(obj)
	if err != nil {
		return tokenPair{}, nil, false
	}
	return pair, sanitized, true
}

// withSuccessFlag guarantees a relayed grant body carries success:true.
// Backends that return only token fields would otherwise leave the
// browser with an empty object after sanitization.
func withSuccessFlag(body []byte) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return []byte(`{"success":true}`)
	}
	obj["success"] = json.RawMessage("true")
	out, err := json.Marshal(obj)
	if err != nil {
		return []byte(`{"success":true}`)
	}
	return out
}

// takeString returns the first non-empty string value among keys and
// deletes every listed key from the object.
func takeString(obj map[string]json.RawMessage, keys []string) string {
	var found string
	for _, k := range keys {
		raw, present := obj[k]
		if !present {
			continue
		}
		delete(obj, k)
		if found != "" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			found = s
		}
	}
	return found
}
