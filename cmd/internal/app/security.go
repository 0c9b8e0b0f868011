package app

import (
	"fmt"
	"net/url"

	"prism/cmd/internal/gateway/api"
)

// EnforceSecureTransport applies the production transport policy: session
// cookies become Secure and the backend URL must be https. Failing fast
// here beats silently shipping tokens over plaintext.
func EnforceSecureTransport(apiCfg *api.Config, upstreamBase string) error {
	apiCfg.CookieSecure = true

	u, err := url.Parse(upstreamBase)
	if err != nil {
		return fmt.Errorf("parse upstream base url: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("secure transport required but upstream base url is %q", upstreamBase)
	}
	return nil
}
