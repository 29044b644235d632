package notebook_test

import (
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/skhoury/notereader/internal/fixture"
	"github.com/skhoury/notereader/internal/index"
	"github.com/skhoury/notereader/internal/keyring"
	"github.com/skhoury/notereader/krypto"
	"github.com/skhoury/notereader/notebook"
)

const (
	testKeyID      = "3336eb7a2472d9ae4a690a978fa8a46f"
	testPassword   = "plaintext_password"
	testConfig     = testKeyID + "," + testPassword
	testIterations = 1000
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// writeNotebook builds the reference notebook: plaintext note "1" with body
// "hello", encrypted note "2", and the master-key record both of them hang
// off.
func writeNotebook(t *testing.T, method krypto.Method) string {
	t.Helper()
	dir := t.TempDir()

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("rand: %v", err)
	}

	keyFile, err := fixture.WrapMasterKey(testKeyID, testPassword, raw, testIterations)
	if err != nil {
		t.Fatalf("wrap master key: %v", err)
	}
	writeFile(t, dir, testKeyID+".md", keyFile)
	writeFile(t, dir, "1.md", fixture.PlaintextNote("1", "First note", "hello"))

	encFile, err := fixture.EncryptedNote("2", "Second note", "the secret body", testKeyID, raw, method)
	if err != nil {
		t.Fatalf("encrypted note: %v", err)
	}
	writeFile(t, dir, "2.md", encFile)

	return dir
}

func TestReadPlaintextNote(t *testing.T) {
	dir := writeNotebook(t, krypto.MethodGCM)

	nb, err := notebook.Open(dir, testConfig)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	note, err := nb.ReadNote("1")
	if err != nil {
		t.Fatalf("read note 1: %v", err)
	}
	if note.Title != "First note" || note.Body != "hello" || note.IsEncrypted {
		t.Fatalf("note 1 = %+v", note)
	}
}

func TestReadEncryptedNote(t *testing.T) {
	for _, method := range []krypto.Method{
		krypto.MethodLegacyCBC,
		krypto.MethodModernCBC,
		krypto.MethodGCM,
	} {
		t.Run(method.String(), func(t *testing.T) {
			dir := writeNotebook(t, method)

			nb, err := notebook.Open(dir, testConfig)
			if err != nil {
				t.Fatalf("open: %v", err)
			}

			note, err := nb.ReadNote("2")
			if err != nil {
				t.Fatalf("read note 2: %v", err)
			}
			if note.Title != "Second note" || note.Body != "the secret body" {
				t.Fatalf("note 2 = %+v", note)
			}
			if !note.IsEncrypted {
				t.Fatal("note 2 must report as encrypted")
			}
		})
	}
}

func TestReadNoteIdempotent(t *testing.T) {
	dir := writeNotebook(t, krypto.MethodGCM)

	nb, err := notebook.Open(dir, testConfig)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	first, err := nb.ReadNote("2")
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	second, err := nb.ReadNote("2")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if first.Title != second.Title || first.Body != second.Body {
		t.Fatal("repeated reads of an unchanged note differ")
	}
}

func TestReadNoteNotFound(t *testing.T) {
	dir := writeNotebook(t, krypto.MethodGCM)

	nb, err := notebook.Open(dir, testConfig)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := nb.ReadNote("does-not-exist"); !errors.Is(err, notebook.ErrNoteNotFound) {
		t.Fatalf("expected ErrNoteNotFound, got %v", err)
	}
}

func TestEncryptedNoteWithoutAnyPasswords(t *testing.T) {
	dir := writeNotebook(t, krypto.MethodGCM)

	nb, err := notebook.Open(dir, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Plaintext notes stay readable.
	if _, err := nb.ReadNote("1"); err != nil {
		t.Fatalf("plaintext read: %v", err)
	}
	if _, err := nb.ReadNote("2"); !errors.Is(err, notebook.ErrNoKeyAvailable) {
		t.Fatalf("expected ErrNoKeyAvailable, got %v", err)
	}
}

func TestEncryptedNoteWithWrongPassword(t *testing.T) {
	dir := writeNotebook(t, krypto.MethodGCM)

	nb, err := notebook.Open(dir, testKeyID+",plaintext_passworD")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := nb.ReadNote("2"); !errors.Is(err, notebook.ErrKeyNotUnlocked) {
		t.Fatalf("expected ErrKeyNotUnlocked, got %v", err)
	}
}

func TestMalformedConfigFailsBeforeFilesystem(t *testing.T) {
	// The directory does not exist; a malformed config must fail first.
	_, err := notebook.Open(filepath.Join(t.TempDir(), "missing"), "no-separator")
	if !errors.Is(err, keyring.ErrMalformedConfig) {
		t.Fatalf("expected ErrMalformedConfig, got %v", err)
	}
}

func TestNoteIDsAndKeys(t *testing.T) {
	dir := writeNotebook(t, krypto.MethodGCM)

	nb, err := notebook.Open(dir, testConfig)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ids := nb.NoteIDs()
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
		t.Fatalf("note ids = %v", ids)
	}

	keys := nb.Keys()
	if unlocked, ok := keys[testKeyID]; !ok || !unlocked {
		t.Fatalf("keys = %v, want %s unlocked", keys, testKeyID)
	}
}

func TestMeta(t *testing.T) {
	dir := writeNotebook(t, krypto.MethodGCM)

	nb, err := notebook.Open(dir, testConfig)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	meta, err := nb.Meta("2")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta["encryption_applied"] != "1" {
		t.Fatalf("meta = %v", meta)
	}
	if _, ok := meta["encryption_cipher_text"]; ok {
		t.Fatal("ciphertext leaked into metadata")
	}
}

func TestOpenWithHeaderCache(t *testing.T) {
	dir := writeNotebook(t, krypto.MethodGCM)

	cache, err := index.Open(filepath.Join(t.TempDir(), "headers.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer index.Close(cache)
	if err := index.Migrate(cache); err != nil {
		t.Fatalf("migrate cache: %v", err)
	}

	for i := 0; i < 2; i++ {
		nb, err := notebook.Open(dir, testConfig, notebook.WithHeaderCache(cache))
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		note, err := nb.ReadNote("2")
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if note.Body != "the secret body" {
			t.Fatalf("read %d body = %q", i, note.Body)
		}
	}
}
