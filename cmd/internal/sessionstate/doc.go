// Package sessionstate is the client companion to the session gateway.
//
// Client wraps an http.Client with a cookie jar, standing in for the
// browser: it never sees the tokens, only carries the httpOnly cookies
// the gateway sets. Manager tracks the loading/authenticated state a UI
// binds to, Broadcaster fans state changes out across managers the way
// storage events sync browser tabs, and Guard turns a state into a
// route decision.
package sessionstate
