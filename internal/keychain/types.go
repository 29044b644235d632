// Package keychain persists a notebook's password configuration in the
// macOS Keychain, keyed by the notebook directory, so the CLI and GUI can
// reopen a notebook without prompting. On other platforms every operation
// reports ErrUnsupported and callers fall back to prompting.
package keychain

import "errors"

var (
	// ErrUnsupported signals that keychain storage is not available on this
	// platform.
	ErrUnsupported = errors.New("keychain storage not supported on this platform")

	// ErrNotFound signals that no password configuration is stored for the
	// notebook directory.
	ErrNotFound = errors.New("no stored password configuration for notebook")
)
