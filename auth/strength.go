// Package auth audits the passwords in a notebook configuration. The
// reader never enforces a policy on passwords it is given, the audit only
// reports: a weak or breached password still decrypts the notebook.
package auth

import (
	"context"
	"fmt"

	"github.com/nbutton23/zxcvbn-go"
)

// Assessment is the audit result for a single password.
type Assessment struct {
	// Score is the zxcvbn guessability score, 0 (trivial) to 4 (strong).
	Score int

	// CrackTime is zxcvbn's human-readable offline crack time estimate.
	CrackTime string

	// Breached reports whether the password appeared in the HIBP corpus.
	// Only meaningful when the audit ran with HIBP enabled.
	Breached bool

	// BreachCount is how many times the password appeared in known breaches.
	BreachCount int
}

// Options controls which checks an audit runs.
type Options struct {
	// EnableHIBP adds the network-backed breach lookup. Off by default;
	// the audit stays fully offline unless asked.
	EnableHIBP bool
}

// AssessPassword scores one password. The HIBP lookup uses k-anonymity and
// never transmits the password itself; a lookup failure fails the audit
// rather than silently reporting "not breached".
func AssessPassword(ctx context.Context, password string, opts Options) (Assessment, error) {
	strength := zxcvbn.PasswordStrength(password, nil)
	a := Assessment{
		Score:     strength.Score,
		CrackTime: strength.CrackTimeDisplay,
	}

	if opts.EnableHIBP {
		res, err := CheckHIBP(ctx, password)
		if err != nil {
			return a, fmt.Errorf("breach lookup: %w", err)
		}
		a.Breached = res.Found
		a.BreachCount = res.Count
	}

	return a, nil
}
