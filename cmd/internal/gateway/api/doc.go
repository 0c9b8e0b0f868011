// Package api implements the browser-facing session endpoints.
//
// The gateway owns the session cookies: tokens issued by the identity
// backend are moved into httpOnly cookies and never appear in a response
// body. Handlers relay backend rejections verbatim and translate
// transport or format failures into the gateway's own error vocabulary.
package api
