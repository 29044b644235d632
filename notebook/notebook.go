// Package notebook is the public face of the reader: open a notebook folder
// with a password configuration, then read notes by id. Decryption happens
// per read; the only state held between calls is the scan index and the
// resolved master keys.
package notebook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skhoury/notereader/internal/envelope"
	"github.com/skhoury/notereader/internal/index"
	"github.com/skhoury/notereader/internal/keyring"
	"github.com/skhoury/notereader/internal/notes"
	"github.com/skhoury/notereader/krypto"
	"github.com/skhoury/notereader/store"
)

var (
	// ErrNoteNotFound indicates the notebook has no note with the given id.
	ErrNoteNotFound = errors.New("note not found")

	// ErrKeyNotUnlocked indicates the note references a master key no
	// supplied password could unlock. Whether the password was wrong or
	// simply absent is not distinguished.
	ErrKeyNotUnlocked = errors.New("master key not unlocked")

	// ErrNoKeyAvailable indicates an encrypted note was read while the
	// password configuration was empty.
	ErrNoKeyAvailable = errors.New("no key material available")

	// ErrDecryptionFailed indicates the ciphertext did not decrypt cleanly
	// under the resolved key. Padding and integrity failures are deliberately
	// indistinguishable here.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Note is a fully materialized note: decrypted if necessary, metadata
// carried through as strings.
type Note struct {
	ID          string
	Title       string
	Body        string
	IsEncrypted bool
	Metadata    map[string]string
}

// Notebook is an opened notebook folder. It is safe for concurrent readers;
// nothing mutates after Open returns.
type Notebook struct {
	store      *store.Store
	keys       map[string]keyring.ResolvedKey
	hasEntries bool
}

// Option adjusts how a notebook is opened.
type Option func(*openConfig)

type openConfig struct {
	cache *index.DB
}

// WithHeaderCache routes the folder scan through a header cache database.
// The cache must live outside the notebook folder.
func WithHeaderCache(cache *index.DB) Option {
	return func(c *openConfig) { c.cache = cache }
}

// Open scans the notebook folder and resolves master keys against the
// password configuration. The configuration is parsed first; a malformed
// one fails before any filesystem access.
func Open(dir, passwordConfig string, opts ...Option) (*Notebook, error) {
	entries, err := keyring.ParsePasswordConfig(passwordConfig)
	if err != nil {
		return nil, err
	}

	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s, err := store.ScanNotebook(store.Paths{Dir: dir}, cfg.cache)
	if err != nil {
		return nil, err
	}

	return &Notebook{
		store:      s,
		keys:       keyring.Resolve(s.MasterKeys(), entries),
		hasEntries: len(entries) > 0,
	}, nil
}

// NoteIDs lists the ids of every note in the notebook, encrypted or not,
// in sorted order.
func (n *Notebook) NoteIDs() []string {
	return n.store.NoteIDs()
}

// IsEncrypted reports whether reading the note will require a resolved key.
func (n *Notebook) IsEncrypted(id string) (bool, error) {
	enc, err := n.store.IsEncrypted(id)
	if errors.Is(err, store.ErrUnknownNote) {
		return false, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	return enc, err
}

// Meta returns the note's metadata props without touching the body.
func (n *Notebook) Meta(id string) (map[string]string, error) {
	meta, err := n.store.Meta(id)
	if errors.Is(err, store.ErrUnknownNote) {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	return meta, err
}

// Keys reports, per master key id found in the notebook, whether a supplied
// password unlocked it.
func (n *Notebook) Keys() map[string]bool {
	status := make(map[string]bool, len(n.store.MasterKeys()))
	for _, rec := range n.store.MasterKeys() {
		_, ok := n.keys[rec.ID]
		status[rec.ID] = ok
	}
	return status
}

// ReadNote materializes a note: plaintext notes are parsed directly,
// encrypted ones are decrypted under the master key their envelope names.
// Reads are idempotent; the same unchanged file yields the same Note.
func (n *Notebook) ReadNote(id string) (Note, error) {
	entry, ok := n.store.Lookup(id)
	if !ok {
		return Note{}, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}

	data, err := n.store.RawBytes(id)
	if err != nil {
		return Note{}, err
	}

	text := string(data)
	if entry.Encrypted {
		text, err = n.decryptShell(id, data)
		if err != nil {
			return Note{}, err
		}
	}

	props, err := notes.Deserialize(text)
	if err != nil {
		return Note{}, fmt.Errorf("note %s: %w", id, err)
	}
	parsed := notes.NoteFromProps(id, entry.Encrypted, props)
	return Note{
		ID:          parsed.ID,
		Title:       parsed.Title,
		Body:        parsed.Body,
		IsEncrypted: parsed.IsEncrypted,
		Metadata:    parsed.Metadata,
	}, nil
}

// decryptShell extracts the envelope from an encrypted note shell and
// decrypts its chunks under the referenced master key.
func (n *Notebook) decryptShell(id string, data []byte) (string, error) {
	h, err := notes.ScanHeader(data)
	if err != nil {
		return "", fmt.Errorf("note %s: %w", id, err)
	}

	env, err := envelope.Parse(h.CipherText)
	if err != nil {
		return "", fmt.Errorf("note %s: %w", id, err)
	}

	key, ok := n.keys[env.MasterKeyID]
	if !ok {
		if !n.hasEntries {
			return "", fmt.Errorf("%w: note %s needs key %s", ErrNoKeyAvailable, id, env.MasterKeyID)
		}
		return "", fmt.Errorf("%w: note %s needs key %s", ErrKeyNotUnlocked, id, env.MasterKeyID)
	}

	var plain strings.Builder
	for _, chunk := range env.Chunks {
		part, err := krypto.DecryptChunk(env.Method, key.Raw, chunk)
		if err != nil {
			if errors.Is(err, krypto.ErrInvalidPadding) || errors.Is(err, krypto.ErrIntegrityFailed) {
				// Collapsed on purpose: callers must not learn which check
				// rejected the ciphertext.
				return "", fmt.Errorf("%w: note %s", ErrDecryptionFailed, id)
			}
			return "", fmt.Errorf("note %s: %w", id, err)
		}
		plain.Write(part)
	}
	return plain.String(), nil
}

// Skipped lists notebook files the scan could not classify. Informational
// only.
func (n *Notebook) Skipped() []string {
	return n.store.Skipped
}
