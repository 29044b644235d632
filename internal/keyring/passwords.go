// Package keyring turns the caller-supplied password configuration and the
// notebook's master-key records into a lookup of usable symmetric keys.
package keyring

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedConfig indicates the password configuration string does not
// follow the `fragment,password[;fragment,password...]` grammar.
var ErrMalformedConfig = errors.New("malformed password configuration")

// PasswordEntry pairs a master key id fragment with the password to try for
// matching records. Entries are attempted in the order supplied.
type PasswordEntry struct {
	KeyIDFragment string
	Password      string
}

// ParsePasswordConfig splits the configuration string into ordered password
// entries. Entries are separated by semicolons; inside an entry the key id
// fragment and the password are separated by the first comma. Whitespace
// around fields is trimmed. An empty configuration yields an empty slice.
func ParsePasswordConfig(config string) ([]PasswordEntry, error) {
	if strings.TrimSpace(config) == "" {
		return nil, nil
	}

	var entries []PasswordEntry
	for _, raw := range strings.Split(config, ";") {
		if strings.TrimSpace(raw) == "" {
			// Tolerate a trailing separator.
			continue
		}

		sep := strings.Index(raw, ",")
		if sep < 0 {
			return nil, fmt.Errorf("%w: entry %q has no fragment/password separator", ErrMalformedConfig, raw)
		}

		fragment := strings.TrimSpace(raw[:sep])
		password := strings.TrimSpace(raw[sep+1:])
		if fragment == "" {
			return nil, fmt.Errorf("%w: entry %q has an empty key id fragment", ErrMalformedConfig, raw)
		}
		if password == "" {
			return nil, fmt.Errorf("%w: entry %q has an empty password", ErrMalformedConfig, raw)
		}

		entries = append(entries, PasswordEntry{KeyIDFragment: fragment, Password: password})
	}
	return entries, nil
}
