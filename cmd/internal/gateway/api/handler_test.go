package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"prism/cmd/internal/upstream"
)

// fakeBackend records calls and replays a canned result. Options are
// applied to a throwaway request so tests can assert on headers.
type fakeBackend struct {
	calls    int
	lastPath string
	lastReq  *http.Request
	lastBody any
	result   upstream.Result
}

func (f *fakeBackend) Call(_ context.Context, method, path string, body any, opts ...upstream.CallOption) upstream.Result {
	f.calls++
	f.lastPath = path
	f.lastBody = body
	req, _ := http.NewRequest(method, "http://backend.invalid"+path, nil)
	for _, opt := range opts {
		opt(req)
	}
	f.lastReq = req
	return f.result
}

func jsonResult(status int, body string) upstream.Result {
	outcome := upstream.OutcomeOK
	if status < 200 || status > 299 {
		outcome = upstream.OutcomeRejected
	}
	return upstream.Result{Outcome: outcome, Status: status, Body: []byte(body)}
}

func newTestMux(t *testing.T, back Backend) *http.ServeMux {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(DefaultConfig(), back, log, nil)
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var payload io.Reader
	if body != "" {
		payload = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, payload)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func findCookie(t *testing.T, rr *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ---- login ----

func TestLoginSuccessSetsCookiesAndStripsTokens(t *testing.T) {
	back := &fakeBackend{result: jsonResult(200,
		`{"success":true,"access_token":"at1","refresh_token":"rt1","user":{"id":"u1"}}`)}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/login", `{"email":"a@b.c","password":"pw"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if back.lastPath != "/api/auth/login" {
		t.Fatalf("backend path = %q", back.lastPath)
	}

	access := findCookie(t, rr, "access_token")
	refresh := findCookie(t, rr, "refresh_token")
	if access == nil || refresh == nil {
		t.Fatal("expected both session cookies to be set")
	}
	if access.Value != "at1" || refresh.Value != "rt1" {
		t.Fatalf("cookie values = %q / %q", access.Value, refresh.Value)
	}
	if !access.HttpOnly || !refresh.HttpOnly {
		t.Fatal("session cookies must be httpOnly")
	}
	if access.SameSite != http.SameSiteLaxMode {
		t.Fatalf("access SameSite = %v, want Lax", access.SameSite)
	}
	if access.MaxAge != 3600 {
		t.Fatalf("access MaxAge = %d, want 3600", access.MaxAge)
	}
	if refresh.MaxAge != 604800 {
		t.Fatalf("refresh MaxAge = %d, want 604800", refresh.MaxAge)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	for _, k := range []string{"access_token", "refresh_token", "access", "refresh"} {
		if _, ok := body[k]; ok {
			t.Fatalf("token field %q leaked into response body", k)
		}
	}
	if body["success"] != true {
		t.Fatal("success flag dropped from relayed body")
	}
	if _, ok := body["user"]; !ok {
		t.Fatal("user object dropped from relayed body")
	}
}

func TestLoginAcceptsLegacyTokenFieldNames(t *testing.T) {
	back := &fakeBackend{result: jsonResult(200, `{"access":"a2","refresh":"r2"}`)}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/login", `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if c := findCookie(t, rr, "access_token"); c == nil || c.Value != "a2" {
		t.Fatalf("access cookie = %v", c)
	}
	if c := findCookie(t, rr, "refresh_token"); c == nil || c.Value != "r2" {
		t.Fatalf("refresh cookie = %v", c)
	}

	// The upstream body held nothing but tokens; the relayed body must
	// still declare success rather than collapse to an empty object.
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["success"] != true {
		t.Fatalf("login success body = %s, want success:true", rr.Body.String())
	}
}

func TestLoginRejectionRelayedWithoutCookies(t *testing.T) {
	back := &fakeBackend{result: jsonResult(401, `{"success":false,"error":"invalid_credentials","message":"nope"}`)}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/login", `{}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if got := rr.Body.String(); got != `{"success":false,"error":"invalid_credentials","message":"nope"}` {
		t.Fatalf("body not relayed verbatim: %s", got)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatal("rejection must not touch cookies")
	}
}

func TestLoginMalformedUpstreamIsInvalidResponse(t *testing.T) {
	back := &fakeBackend{result: upstream.Result{
		Outcome: upstream.OutcomeMalformed,
		Status:  http.StatusBadGateway,
		Body:    []byte("<html>502</html>"),
	}}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/login", `{}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "invalid_response" || body.Success {
		t.Fatalf("body = %+v", body)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatal("malformed upstream must not touch cookies")
	}
}

func TestLoginTransportFailure(t *testing.T) {
	back := &fakeBackend{result: upstream.Result{Outcome: upstream.OutcomeTransport, Err: io.EOF}}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/login", `{}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "network_error" {
		t.Fatalf("error = %q, want network_error", body.Error)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatal("transport failure must not touch cookies")
	}
}

func TestLoginSuccessWithoutTokenPair(t *testing.T) {
	back := &fakeBackend{result: jsonResult(200, `{"success":true,"access_token":"only-one"}`)}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/login", `{}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "invalid_response" {
		t.Fatalf("error = %q, want invalid_response", body.Error)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatal("incomplete pair must not set any cookie")
	}
}

func TestLoginRejectsNonJSONRequest(t *testing.T) {
	back := &fakeBackend{}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/login", "not json at all")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if back.calls != 0 {
		t.Fatalf("backend called %d times for a local validation failure", back.calls)
	}
}

// ---- refresh ----

func TestRefreshWithoutCookieSkipsBackend(t *testing.T) {
	back := &fakeBackend{}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/refresh", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if back.calls != 0 {
		t.Fatalf("backend called %d times, want 0", back.calls)
	}
	var body errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "no_refresh_token" {
		t.Fatalf("error = %q, want no_refresh_token", body.Error)
	}
}

func TestRefreshSendsTokenInBodyAndRotates(t *testing.T) {
	back := &fakeBackend{result: jsonResult(200, `{"access_token":"a2","refresh_token":"r2"}`)}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/refresh", "",
		&http.Cookie{Name: "refresh_token", Value: "r1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	req, ok := back.lastBody.(refreshRequest)
	if !ok || req.RefreshToken != "r1" {
		t.Fatalf("refresh token not sent in body: %#v", back.lastBody)
	}

	if c := findCookie(t, rr, "access_token"); c == nil || c.Value != "a2" {
		t.Fatalf("rotated access cookie = %v", c)
	}
	if c := findCookie(t, rr, "refresh_token"); c == nil || c.Value != "r2" {
		t.Fatalf("rotated refresh cookie = %v", c)
	}
}

func TestRefreshWithoutRotationKeepsRefreshCookie(t *testing.T) {
	back := &fakeBackend{result: jsonResult(200, `{"access_token":"a2","success":true}`)}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/refresh", "",
		&http.Cookie{Name: "refresh_token", Value: "r1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if c := findCookie(t, rr, "access_token"); c == nil || c.Value != "a2" {
		t.Fatalf("access cookie = %v", c)
	}
	// No new refresh token issued: the stored cookie must not be rewritten.
	if c := findCookie(t, rr, "refresh_token"); c != nil {
		t.Fatalf("refresh cookie rewritten without rotation: %v", c)
	}
}

func TestRefreshSuccessBodyDeclaresSuccess(t *testing.T) {
	// Grant carrying only the new access token: after sanitization
	// nothing of the upstream body remains.
	back := &fakeBackend{result: jsonResult(200, `{"access_token":"a2"}`)}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/refresh", "",
		&http.Cookie{Name: "refresh_token", Value: "r1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["success"] != true {
		t.Fatalf("refresh success body = %s, want success:true", rr.Body.String())
	}
	for _, k := range []string{"access_token", "access", "refresh_token", "refresh"} {
		if _, ok := body[k]; ok {
			t.Fatalf("token field %q leaked into response body", k)
		}
	}
}

func TestRefreshUnchangedTokenNotRewritten(t *testing.T) {
	back := &fakeBackend{result: jsonResult(200, `{"access_token":"a2","refresh_token":"r1"}`)}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/refresh", "",
		&http.Cookie{Name: "refresh_token", Value: "r1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if c := findCookie(t, rr, "refresh_token"); c != nil {
		t.Fatalf("identical refresh token rewritten: %v", c)
	}
}

func TestRefreshRejectionClearsBothCookiesAndRelays(t *testing.T) {
	back := &fakeBackend{result: jsonResult(401, `{"success":false,"error":"refresh_failed","message":"revoked"}`)}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/refresh", "",
		&http.Cookie{Name: "refresh_token", Value: "stale"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if got := rr.Body.String(); got != `{"success":false,"error":"refresh_failed","message":"revoked"}` {
		t.Fatalf("body not relayed verbatim: %s", got)
	}

	for _, name := range []string{"access_token", "refresh_token"} {
		c := findCookie(t, rr, name)
		if c == nil {
			t.Fatalf("expected expiring Set-Cookie for %s", name)
		}
		if c.MaxAge >= 0 || c.Value != "" {
			t.Fatalf("%s not expired: MaxAge=%d Value=%q", name, c.MaxAge, c.Value)
		}
	}
}

func TestRefreshTransportFailureKeepsCookies(t *testing.T) {
	back := &fakeBackend{result: upstream.Result{Outcome: upstream.OutcomeTransport, Err: io.EOF}}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/refresh", "",
		&http.Cookie{Name: "refresh_token", Value: "r1"})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatal("transport failure must leave the stored pair untouched")
	}
}

// ---- logout ----

func TestLogoutWithoutCookiesSkipsBackend(t *testing.T) {
	back := &fakeBackend{}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/logout", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if back.calls != 0 {
		t.Fatalf("backend called %d times, want 0", back.calls)
	}
	var body logoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success {
		t.Fatal("success = false, want true")
	}
}

func TestLogoutSucceedsDespiteBackendFailure(t *testing.T) {
	back := &fakeBackend{result: upstream.Result{Outcome: upstream.OutcomeTransport, Err: io.EOF}}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodPost, "/auth/logout", "",
		&http.Cookie{Name: "access_token", Value: "a1"},
		&http.Cookie{Name: "refresh_token", Value: "r1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if back.calls != 1 {
		t.Fatalf("backend called %d times, want 1", back.calls)
	}

	for _, name := range []string{"access_token", "refresh_token"} {
		c := findCookie(t, rr, name)
		if c == nil || c.MaxAge >= 0 {
			t.Fatalf("%s not cleared on logout", name)
		}
	}
}

func TestLogoutForwardsCredentials(t *testing.T) {
	back := &fakeBackend{result: jsonResult(200, `{"success":true}`)}
	mux := newTestMux(t, back)

	doRequest(t, mux, http.MethodPost, "/auth/logout", "",
		&http.Cookie{Name: "access_token", Value: "a1"},
		&http.Cookie{Name: "refresh_token", Value: "r1"})

	if got := back.lastReq.Header.Get("Authorization"); got != "Bearer a1" {
		t.Fatalf("Authorization = %q", got)
	}
	req, ok := back.lastBody.(refreshRequest)
	if !ok || req.RefreshToken != "r1" {
		t.Fatalf("refresh token not sent in body: %#v", back.lastBody)
	}
}

// ---- session introspection ----

func TestSessionWithoutCookie(t *testing.T) {
	back := &fakeBackend{}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodGet, "/auth/session", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if back.calls != 0 {
		t.Fatalf("backend called %d times, want 0", back.calls)
	}
	var body sessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Authenticated || string(body.User) != "null" {
		t.Fatalf("body = %+v", body)
	}
}

func TestSessionExpiredTokenNeverFiveHundred(t *testing.T) {
	outcomes := []upstream.Result{
		jsonResult(401, `{"error":"token_expired"}`),
		{Outcome: upstream.OutcomeTransport, Err: io.EOF},
		{Outcome: upstream.OutcomeMalformed, Status: 502, Body: []byte("<html/>")},
	}
	for _, res := range outcomes {
		back := &fakeBackend{result: res}
		mux := newTestMux(t, back)

		rr := doRequest(t, mux, http.MethodGet, "/auth/session", "",
			&http.Cookie{Name: "access_token", Value: "expired"})
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("outcome %v: status = %d, want 401", res.Outcome, rr.Code)
		}
	}
}

func TestSessionIsIdempotent(t *testing.T) {
	back := &fakeBackend{result: jsonResult(200, `{"user":{"id":"u1","email":"a@b.c"}}`)}
	mux := newTestMux(t, back)

	var first, second sessionResponse
	for i, dst := range []*sessionResponse{&first, &second} {
		rr := doRequest(t, mux, http.MethodGet, "/auth/session", "",
			&http.Cookie{Name: "access_token", Value: "a1"})
		if rr.Code != http.StatusOK {
			t.Fatalf("call %d: status = %d, want 200", i, rr.Code)
		}
		if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
			t.Fatalf("call %d: decode: %v", i, err)
		}
	}
	if !first.Authenticated || !second.Authenticated {
		t.Fatal("expected authenticated on both calls")
	}
	if string(first.User) != string(second.User) {
		t.Fatalf("introspection not stable: %s vs %s", first.User, second.User)
	}
	if back.calls != 2 {
		t.Fatalf("backend calls = %d, want 2", back.calls)
	}
}

func TestSessionUsesBearerTransport(t *testing.T) {
	back := &fakeBackend{result: jsonResult(200, `{"id":"u1"}`)}
	mux := newTestMux(t, back)

	doRequest(t, mux, http.MethodGet, "/auth/session", "",
		&http.Cookie{Name: "access_token", Value: "a1"})
	if got := back.lastReq.Header.Get("Authorization"); got != "Bearer a1" {
		t.Fatalf("Authorization = %q, want Bearer a1", got)
	}
}

// ---- realtime token ----

func TestRealtimeTokenSuccessRelaysBody(t *testing.T) {
	back := &fakeBackend{result: jsonResult(200, `{"wsToken":"wt1","expiresIn":60,"success":true}`)}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodGet, "/realtime/token", "",
		&http.Cookie{Name: "access_token", Value: "a1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Body.String(); got != `{"wsToken":"wt1","expiresIn":60,"success":true}` {
		t.Fatalf("body not relayed verbatim: %s", got)
	}
	if ck, err := back.lastReq.Cookie("access_token"); err != nil || ck.Value != "a1" {
		t.Fatalf("access cookie not forwarded: %v %v", ck, err)
	}
}

func TestRealtimeTokenWithoutSession(t *testing.T) {
	back := &fakeBackend{}
	mux := newTestMux(t, back)

	rr := doRequest(t, mux, http.MethodGet, "/realtime/token", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if back.calls != 0 {
		t.Fatalf("backend called %d times, want 0", back.calls)
	}
	var body errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "not_authenticated" {
		t.Fatalf("error = %q, want not_authenticated", body.Error)
	}
}

func TestRealtimeTokenUpstreamFailuresCollapseToGenericError(t *testing.T) {
	cases := []struct {
		name string
		back *fakeBackend
	}{
		{"rejected", &fakeBackend{result: jsonResult(401, `{"error":"nope"}`)}},
		{"transport", &fakeBackend{result: upstream.Result{Outcome: upstream.OutcomeTransport, Err: io.EOF}}},
		{"malformed", &fakeBackend{result: upstream.Result{Outcome: upstream.OutcomeMalformed, Status: 502, Body: []byte("<html/>")}}},
	}
	for _, tc := range cases {
		mux := newTestMux(t, tc.back)
		rr := doRequest(t, mux, http.MethodGet, "/realtime/token", "",
			&http.Cookie{Name: "access_token", Value: "a1"})
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("%s: status = %d, want 500", tc.name, rr.Code)
		}
		var body errorResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if body.Error != "realtime_token_failed" {
			t.Fatalf("%s: error = %q", tc.name, body.Error)
		}
	}
}
