package notes_test

import (
	"errors"
	"testing"

	"github.com/skhoury/notereader/internal/notes"
)

const plaintextNote = "Shopping\n\n- milk\n- coffee: dark roast\n\nid: 9a20a9e4d336de70cb6d22a58a3e673c\ntype_: 1\nencryption_applied: 0\nparent_id: f1d2\nupdated_time: 2021-03-01T10:00:00.000Z\n"

func TestDeserializePlaintextNote(t *testing.T) {
	props, err := notes.Deserialize(plaintextNote)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	if props["title"] != "Shopping" {
		t.Fatalf("title = %q", props["title"])
	}
	// Body lines containing colons must survive as body, not props.
	if props["body"] != "- milk\n- coffee: dark roast" {
		t.Fatalf("body = %q", props["body"])
	}
	if props["id"] != "9a20a9e4d336de70cb6d22a58a3e673c" {
		t.Fatalf("id = %q", props["id"])
	}
	if props["parent_id"] != "f1d2" {
		t.Fatalf("parent_id = %q", props["parent_id"])
	}
}

func TestDeserializeTitleOnlyNote(t *testing.T) {
	props, err := notes.Deserialize("Just a title\n\nid: ab\ntype_: 1\n")
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if props["title"] != "Just a title" {
		t.Fatalf("title = %q", props["title"])
	}
	if props["body"] != "" {
		t.Fatalf("body = %q, want empty", props["body"])
	}
}

func TestDeserializeRequiresType(t *testing.T) {
	_, err := notes.Deserialize("Title\n\nbody\n\nid: ab\n")
	if !errors.Is(err, notes.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestDeserializeNonNoteSkipsBody(t *testing.T) {
	props, err := notes.Deserialize("My folder\n\nid: cd\ntype_: 2\n")
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if _, ok := props["body"]; ok {
		t.Fatal("folders must not synthesize a body prop")
	}
	if props["title"] != "My folder" {
		t.Fatalf("title = %q", props["title"])
	}
}

func TestScanHeaderPlaintext(t *testing.T) {
	h, err := notes.ScanHeader([]byte(plaintextNote))
	if err != nil {
		t.Fatalf("scan header: %v", err)
	}
	if h.ID != "9a20a9e4d336de70cb6d22a58a3e673c" {
		t.Fatalf("id = %q", h.ID)
	}
	if h.Type != notes.ItemNote {
		t.Fatalf("type = %v", h.Type)
	}
	if h.EncryptionApplied {
		t.Fatal("plaintext note flagged as encrypted")
	}
}

func TestScanHeaderEncryptedShell(t *testing.T) {
	shell := "id: ab12\ntype_: 1\nencryption_applied: 1\nencryption_cipher_text: JED01deadbeef\n"
	h, err := notes.ScanHeader([]byte(shell))
	if err != nil {
		t.Fatalf("scan header: %v", err)
	}
	if !h.EncryptionApplied {
		t.Fatal("expected encrypted")
	}
	if h.CipherText != "JED01deadbeef" {
		t.Fatalf("cipher text = %q", h.CipherText)
	}
}

func TestScanHeaderMissingFields(t *testing.T) {
	if _, err := notes.ScanHeader([]byte("type_: 1\n")); !errors.Is(err, notes.ErrInvalidFormat) {
		t.Fatalf("missing id: got %v", err)
	}
	if _, err := notes.ScanHeader([]byte("id: ab\n")); !errors.Is(err, notes.ErrInvalidFormat) {
		t.Fatalf("missing type_: got %v", err)
	}
	if _, err := notes.ScanHeader([]byte("id: ab\ntype_: 1\nencryption_applied: 1\n")); !errors.Is(err, notes.ErrInvalidFormat) {
		t.Fatalf("encrypted without cipher text: got %v", err)
	}
}

func TestNoteFromProps(t *testing.T) {
	props := map[string]string{
		"title":        "Shopping",
		"body":         "- milk",
		"id":           "ab",
		"updated_time": "2021-03-01T10:00:00.000Z",
	}
	note := notes.NoteFromProps("ab", true, props)

	if note.Title != "Shopping" || note.Body != "- milk" || !note.IsEncrypted {
		t.Fatalf("unexpected note: %+v", note)
	}
	if _, ok := note.Metadata["title"]; ok {
		t.Fatal("title must not leak into metadata")
	}
	if note.Metadata["updated_time"] != "2021-03-01T10:00:00.000Z" {
		t.Fatalf("metadata = %v", note.Metadata)
	}
}
