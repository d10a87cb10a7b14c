package portal

import "fmt"

// AuthError indicates the portal rejected our session cookie. It is never
// retried: the cookie has expired or been revoked, and the operator needs to
// mint a new one.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("portal rejected credential (HTTP %d)", e.StatusCode)
}

// FormatError indicates a successful response whose markup no longer matches
// what we know how to parse. The portal's page structure is not a stable
// contract, so this usually means it changed underneath us.
type FormatError struct {
	Reason  string
	Excerpt string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unexpected portal page format: %s", e.Reason)
}
