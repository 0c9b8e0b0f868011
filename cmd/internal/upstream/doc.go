// Package upstream is the HTTP client for the identity backend.
//
// Every call produces a Result that classifies the exchange into one of
// four outcomes: the backend accepted, the backend rejected with a JSON
// body, the response was not JSON at all, or the request never completed.
// Handlers branch on the outcome instead of inspecting raw errors.
package upstream
