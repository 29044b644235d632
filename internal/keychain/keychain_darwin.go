//go:build darwin

package keychain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	keychain "github.com/keybase/go-keychain"
)

const (
	keychainService = "com.notereader.passwords"
	keychainLabel   = "notereader notebook passwords"
)

// accountForDirectory canonicalizes a notebook directory into a stable
// Keychain account string: absolute, symlink-resolved, and verified to be a
// directory.
func accountForDirectory(directory string) (string, error) {
	directory = strings.TrimSpace(directory)
	if directory == "" {
		return "", errors.New("notebook directory is required")
	}

	absolutePath, err := filepath.Abs(directory)
	if err != nil {
		return "", fmt.Errorf("resolve directory: %w", err)
	}

	info, err := os.Stat(absolutePath)
	if err != nil {
		return "", fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", absolutePath)
	}

	if resolved, err := filepath.EvalSymlinks(absolutePath); err == nil && resolved != "" {
		absolutePath = resolved
	}

	return absolutePath, nil
}

// Store saves the password configuration for a notebook directory. The item
// is device-local, never synced, and readable only while the device is
// unlocked.
func Store(dir, passwordConfig string) error {
	account, err := accountForDirectory(dir)
	if err != nil {
		return err
	}

	item := keychain.NewGenericPassword(keychainService, account, keychainLabel, []byte(passwordConfig), "")
	item.SetSynchronizable(keychain.SynchronizableNo)
	item.SetAccessible(keychain.AccessibleWhenUnlockedThisDeviceOnly)

	if err := keychain.AddItem(item); err != nil {
		if err == keychain.ErrorDuplicateItem {
			query := keychain.NewGenericPassword(keychainService, account, "", nil, "")
			update := keychain.NewItem()
			update.SetData([]byte(passwordConfig))
			if err := keychain.UpdateItem(query, update); err != nil {
				return fmt.Errorf("update stored passwords: %w", err)
			}
			return nil
		}
		return fmt.Errorf("store passwords in keychain: %w", err)
	}
	return nil
}

// Load returns the stored password configuration for a notebook directory.
func Load(dir string) (string, error) {
	account, err := accountForDirectory(dir)
	if err != nil {
		return "", err
	}

	data, err := keychain.GetGenericPassword(keychainService, account, "", "")
	if err != nil {
		return "", fmt.Errorf("read stored passwords: %w", err)
	}
	if len(data) == 0 {
		return "", ErrNotFound
	}
	return string(data), nil
}

// Delete removes the stored password configuration. Deleting an absent item
// succeeds, so Delete is idempotent.
func Delete(dir string) error {
	account, err := accountForDirectory(dir)
	if err != nil {
		return err
	}

	query := keychain.NewGenericPassword(keychainService, account, "", nil, "")
	if err := keychain.DeleteItem(query); err != nil && err != keychain.ErrorItemNotFound {
		return fmt.Errorf("remove stored passwords: %w", err)
	}
	return nil
}
