package keyring

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/skhoury/notereader/internal/envelope"
	"github.com/skhoury/notereader/krypto"
)

const (
	masterKeyLen = 32
	keyIDLen     = 32
)

var (
	// ErrInvalidRecord indicates a master-key file is missing required fields
	// or carries values outside their allowed ranges.
	ErrInvalidRecord = errors.New("invalid master key record")

	// errNoMatch is internal: a candidate password did not unlock a record.
	// Whether the derivation produced a wrong key or never applied is
	// deliberately not distinguished; the caller only learns that the record
	// stayed locked.
	errNoMatch = errors.New("password does not unlock record")
)

// MasterKeyRecord is the parsed, immutable form of a master-key file.
type MasterKeyRecord struct {
	ID         string
	Method     krypto.Method
	Iterations int
	Salt       []byte
	Checksum   []byte
	Content    string
}

// ResolvedKey is a successfully unwrapped master key. It lives only in the
// resolver's lookup for the lifetime of a notebook session and is never
// persisted.
type ResolvedKey struct {
	MasterKeyID string
	Raw         []byte
}

// RecordFromProps builds a MasterKeyRecord from the key/value props of a
// master-key item file.
func RecordFromProps(props map[string]string) (MasterKeyRecord, error) {
	var rec MasterKeyRecord

	rec.ID = props["id"]
	if len(rec.ID) != keyIDLen || !isLowerHex(rec.ID) {
		return rec, fmt.Errorf("%w: id %q is not a %d-char hex identifier", ErrInvalidRecord, rec.ID, keyIDLen)
	}

	methodStr, ok := props["encryption_method"]
	if !ok {
		return rec, fmt.Errorf("%w: missing encryption_method", ErrInvalidRecord)
	}
	methodID, err := strconv.ParseUint(methodStr, 10, 8)
	if err != nil || !krypto.Method(methodID).Valid() {
		return rec, fmt.Errorf("%w: encryption_method %q", ErrInvalidRecord, methodStr)
	}
	rec.Method = krypto.Method(methodID)

	iterStr, ok := props["iterations"]
	if !ok {
		return rec, fmt.Errorf("%w: missing iterations", ErrInvalidRecord)
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return rec, fmt.Errorf("%w: iterations %q", ErrInvalidRecord, iterStr)
	}
	// The file's iteration count is untrusted; the cap keeps a hostile
	// notebook from pinning the CPU during resolution.
	if iterations > krypto.MaxPBKDF2Iterations {
		return rec, fmt.Errorf("%w: iterations %d exceed maximum %d", ErrInvalidRecord, iterations, krypto.MaxPBKDF2Iterations)
	}
	rec.Iterations = iterations

	salt, err := base64.StdEncoding.DecodeString(props["salt"])
	if err != nil || len(salt) != krypto.SaltLengthBytes {
		return rec, fmt.Errorf("%w: salt must be base64 of %d bytes", ErrInvalidRecord, krypto.SaltLengthBytes)
	}
	rec.Salt = salt

	checksum, err := hex.DecodeString(props["checksum"])
	if err != nil || len(checksum) != sha256.Size {
		return rec, fmt.Errorf("%w: checksum must be hex of %d bytes", ErrInvalidRecord, sha256.Size)
	}
	rec.Checksum = checksum

	rec.Content = strings.TrimSpace(props["content"])
	if rec.Content == "" {
		return rec, fmt.Errorf("%w: missing content", ErrInvalidRecord)
	}

	return rec, nil
}

// Resolve tries every password entry against every matching record and
// returns the lookup of unlocked keys. Records no password unlocks are
// simply absent from the result; the failure surfaces later, when a note
// referencing them is read. Resolve is pure: the same inputs always produce
// the same lookup, regardless of iteration order.
func Resolve(records []MasterKeyRecord, entries []PasswordEntry) map[string]ResolvedKey {
	keys := make(map[string]ResolvedKey, len(records))
	for _, rec := range records {
		for _, entry := range entries {
			if !fragmentMatches(rec.ID, entry.KeyIDFragment) {
				continue
			}
			resolved, err := UnlockRecord(rec, entry.Password)
			if err != nil {
				continue
			}
			keys[rec.ID] = resolved
			break
		}
	}
	return keys
}

// UnlockRecord derives a key-encryption key from the password and the
// record's stored derivation parameters, unwraps the master key, and accepts
// it only if the stored checksum verifies. Acceptance is binary; every
// failure mode reports the same way.
func UnlockRecord(rec MasterKeyRecord, password string) (ResolvedKey, error) {
	kek, err := krypto.DeriveKeyPBKDF2([]byte(password), rec.Salt, krypto.PBKDF2Params{
		Iterations: rec.Iterations,
		SaltLen:    len(rec.Salt),
		KeyLen:     masterKeyLen,
	})
	if err != nil {
		return ResolvedKey{}, errNoMatch
	}
	defer krypto.Wipe(kek)

	env, err := envelope.Parse(rec.Content)
	if err != nil {
		return ResolvedKey{}, errNoMatch
	}
	if env.Method != krypto.MethodKeyWrapGCM || env.MasterKeyID != rec.ID {
		return ResolvedKey{}, errNoMatch
	}

	var raw []byte
	for _, chunk := range env.Chunks {
		plain, err := krypto.DecryptChunk(env.Method, kek, chunk)
		if err != nil {
			krypto.Wipe(raw)
			return ResolvedKey{}, errNoMatch
		}
		raw = append(raw, plain...)
	}
	if len(raw) != masterKeyLen {
		krypto.Wipe(raw)
		return ResolvedKey{}, errNoMatch
	}

	sum := sha256.Sum256(raw)
	if subtle.ConstantTimeCompare(sum[:], rec.Checksum) != 1 {
		krypto.Wipe(raw)
		return ResolvedKey{}, errNoMatch
	}

	return ResolvedKey{MasterKeyID: rec.ID, Raw: raw}, nil
}

// fragmentMatches reports whether a password entry applies to a record id.
// Fragments match exactly or as a prefix, so abbreviated ids work.
func fragmentMatches(id, fragment string) bool {
	return fragment != "" && strings.HasPrefix(id, fragment)
}

func isLowerHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
