package sessionstate

import "net/url"

// Decision is a route guard verdict.
type Decision int

const (
	// DecisionWait means the session is still loading; render nothing yet.
	DecisionWait Decision = iota
	// DecisionAllow admits the navigation.
	DecisionAllow
	// DecisionRedirect sends the user to the login page.
	DecisionRedirect
)

func (d Decision) String() string {
	switch d {
	case DecisionWait:
		return "wait"
	case DecisionAllow:
		return "allow"
	case DecisionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// GuardResult carries the verdict and, for redirects, the target.
type GuardResult struct {
	Decision Decision
	Location string
}

// Guard decides what to do with a navigation to a protected route.
// While loading it waits; deciding before the first session check lands
// would flash the wrong screen. Anonymous users are redirected to
// loginPath with the requested path preserved in the next parameter so
// login can return them where they were headed.
func Guard(st State, loginPath, requestedPath string) GuardResult {
	if st.Loading {
		return GuardResult{Decision: DecisionWait}
	}
	if st.Authenticated {
		return GuardResult{Decision: DecisionAllow}
	}

	loc := loginPath
	if requestedPath != "" {
		loc += "?next=" + url.QueryEscape(requestedPath)
	}
	return GuardResult{Decision: DecisionRedirect, Location: loc}
}
