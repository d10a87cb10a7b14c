// Package credential derives the session cookie's lifecycle state. Evaluation
// is stateless: no history of past warnings is kept, so a warning repeats
// every run inside the lead window.
package credential

import "time"

// WarningLeadTime is how long before expiry warnings begin.
const WarningLeadTime = 14 * 24 * time.Hour

// State describes how close the credential is to expiring.
type State int

const (
	// StateOK means the credential is valid well beyond the lead time.
	StateOK State = iota
	// StateWarning means expiry falls within the lead time.
	StateWarning
	// StateExpired means the credential is no longer valid.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "ok"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Evaluate derives the credential state at now. An expired credential is
// reported even with warnings disabled: subsequent scrapes will fail outright,
// so silence would be worse than noise.
func Evaluate(expiresAt, now time.Time, warningsEnabled bool) State {
	if !now.Before(expiresAt) {
		return StateExpired
	}
	if warningsEnabled && expiresAt.Sub(now) < WarningLeadTime {
		return StateWarning
	}
	return StateOK
}
