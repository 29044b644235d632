//go:build !darwin

package keychain

// Store is unavailable on non-macOS platforms.
func Store(dir, passwordConfig string) error {
	return ErrUnsupported
}

// Load is unavailable on non-macOS platforms.
func Load(dir string) (string, error) {
	return "", ErrUnsupported
}

// Delete is unavailable on non-macOS platforms.
func Delete(dir string) error {
	return ErrUnsupported
}
