package keyring_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strconv"
	"testing"

	"github.com/skhoury/notereader/internal/fixture"
	"github.com/skhoury/notereader/internal/keyring"
	"github.com/skhoury/notereader/internal/notes"
	"github.com/skhoury/notereader/krypto"
)

const (
	testKeyID    = "3336eb7a2472d9ae4a690a978fa8a46f"
	testPassword = "plaintext_password"

	// Low on purpose so tests stay fast; production defaults are far higher.
	testIterations = 1000
)

func newRecord(t *testing.T, id, password string) (keyring.MasterKeyRecord, []byte) {
	t.Helper()

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("rand: %v", err)
	}
	content, err := fixture.WrapMasterKey(id, password, raw, testIterations)
	if err != nil {
		t.Fatalf("wrap master key: %v", err)
	}
	rec, err := keyring.RecordFromProps(notes.ParseProps([]byte(content)))
	if err != nil {
		t.Fatalf("record from props: %v", err)
	}
	return rec, raw
}

func TestUnlockRecord(t *testing.T) {
	rec, raw := newRecord(t, testKeyID, testPassword)

	resolved, err := keyring.UnlockRecord(rec, testPassword)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if resolved.MasterKeyID != testKeyID {
		t.Fatalf("master key id = %q", resolved.MasterKeyID)
	}
	if !bytes.Equal(resolved.Raw, raw) {
		t.Fatal("unwrapped key differs from original")
	}
}

func TestUnlockRecordWrongPassword(t *testing.T) {
	rec, _ := newRecord(t, testKeyID, testPassword)

	// A single-character difference must leave the record locked.
	if _, err := keyring.UnlockRecord(rec, "plaintext_passworD"); err == nil {
		t.Fatal("wrong password unlocked the record")
	}
}

func TestUnlockRecordTamperedChecksum(t *testing.T) {
	rec, _ := newRecord(t, testKeyID, testPassword)
	rec.Checksum[0] ^= 0x01

	if _, err := keyring.UnlockRecord(rec, testPassword); err == nil {
		t.Fatal("tampered checksum accepted")
	}
}

func TestUnlockRecordMismatchedEnvelopeID(t *testing.T) {
	rec, _ := newRecord(t, testKeyID, testPassword)
	// The record claims one id, the envelope inside names another.
	rec.ID = "ffffffffffffffffffffffffffffffff"

	if _, err := keyring.UnlockRecord(rec, testPassword); err == nil {
		t.Fatal("envelope id mismatch accepted")
	}
}

func TestResolve(t *testing.T) {
	recA, rawA := newRecord(t, testKeyID, testPassword)
	recB, _ := newRecord(t, "9a20a9e4d336de70cb6d22a58a3e673c", "other_password")

	entries, err := keyring.ParsePasswordConfig(testKeyID + "," + testPassword)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	keys := keyring.Resolve([]keyring.MasterKeyRecord{recA, recB}, entries)
	if len(keys) != 1 {
		t.Fatalf("resolved %d keys, want 1", len(keys))
	}
	resolved, ok := keys[testKeyID]
	if !ok {
		t.Fatalf("key %s not resolved", testKeyID)
	}
	if !bytes.Equal(resolved.Raw, rawA) {
		t.Fatal("resolved key differs from original")
	}
	if _, ok := keys[recB.ID]; ok {
		t.Fatal("record without a matching password must stay locked")
	}
}

func TestResolveFragmentPrefix(t *testing.T) {
	rec, _ := newRecord(t, testKeyID, testPassword)

	entries, err := keyring.ParsePasswordConfig("3336eb7a," + testPassword)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	keys := keyring.Resolve([]keyring.MasterKeyRecord{rec}, entries)
	if _, ok := keys[testKeyID]; !ok {
		t.Fatal("prefix fragment did not match record")
	}
}

func TestResolveFirstVerifyingPasswordWins(t *testing.T) {
	rec, raw := newRecord(t, testKeyID, testPassword)

	entries, err := keyring.ParsePasswordConfig("3336,wrong_guess;3336eb7a," + testPassword)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	keys := keyring.Resolve([]keyring.MasterKeyRecord{rec}, entries)
	resolved, ok := keys[testKeyID]
	if !ok {
		t.Fatal("later verifying entry did not unlock record")
	}
	if !bytes.Equal(resolved.Raw, raw) {
		t.Fatal("resolved key differs from original")
	}
}

func TestRecordFromPropsValidation(t *testing.T) {
	rec, _ := newRecord(t, testKeyID, testPassword)
	good := map[string]string{
		"id":                rec.ID,
		"encryption_method": strconv.Itoa(int(rec.Method)),
		"iterations":        strconv.Itoa(rec.Iterations),
		"salt":              "",
		"checksum":          "",
		"content":           rec.Content,
	}
	// Re-derive the encoded salt and checksum from a valid serialization.
	content, err := fixture.WrapMasterKey(testKeyID, testPassword, make([]byte, 32), testIterations)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	props := notes.ParseProps([]byte(content))
	good["salt"] = props["salt"]
	good["checksum"] = props["checksum"]

	mutate := func(key, value string) map[string]string {
		m := make(map[string]string, len(good))
		for k, v := range good {
			m[k] = v
		}
		if value == "" {
			delete(m, key)
		} else {
			m[key] = value
		}
		return m
	}

	tests := []struct {
		name  string
		props map[string]string
	}{
		{"short id", mutate("id", "3336eb7a")},
		{"uppercase id", mutate("id", "3336EB7A2472D9AE4A690A978FA8A46F")},
		{"missing method", mutate("encryption_method", "")},
		{"unknown method", mutate("encryption_method", "99")},
		{"missing iterations", mutate("iterations", "")},
		{"zero iterations", mutate("iterations", "0")},
		{"excessive iterations", mutate("iterations", strconv.Itoa(krypto.MaxPBKDF2Iterations + 1))},
		{"bad salt", mutate("salt", "not base64!")},
		{"short salt", mutate("salt", "c2hvcnQ=")},
		{"bad checksum", mutate("checksum", "zz")},
		{"missing content", mutate("content", "")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := keyring.RecordFromProps(tc.props); !errors.Is(err, keyring.ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}

	if _, err := keyring.RecordFromProps(good); err != nil {
		t.Fatalf("valid props rejected: %v", err)
	}
}
