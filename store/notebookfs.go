// Package store reads a notebook directory from disk: it scans the folder's
// item files, classifies each one from its props, and hands out raw note
// bytes on demand. It never writes into the notebook.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/skhoury/notereader/internal/index"
	"github.com/skhoury/notereader/internal/keyring"
	"github.com/skhoury/notereader/internal/notes"
)

// ErrUnknownNote indicates the requested id is not present in the notebook.
var ErrUnknownNote = errors.New("unknown note id")

// Paths locates notebook artifacts on disk.
type Paths struct {
	Dir string
}

// Entry is one classified note file. The body stays on disk until a caller
// asks for it.
type Entry struct {
	ID          string
	Path        string
	Type        notes.ItemType
	Encrypted   bool
	UpdatedTime string
}

// Store is the scanned view of a notebook directory: notes indexed by id,
// master-key records collected for the resolver, and the files the scan
// could not classify.
type Store struct {
	paths   Paths
	entries map[string]Entry
	keys    []keyring.MasterKeyRecord

	// Skipped lists files that exist in the folder but were not usable:
	// unreadable, malformed, or of an item type the reader ignores.
	Skipped []string
}

// ScanNotebook reads the notebook directory once and classifies every item
// file in it. The scan is non-recursive; notebook exports keep attachments
// in subdirectories, which are not items. A nil cache disables caching.
func ScanNotebook(p Paths, cache *index.DB) (*Store, error) {
	if p.Dir == "" {
		return nil, errors.New("notebook directory not specified")
	}

	dirEntries, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, fmt.Errorf("read notebook directory: %w", err)
	}

	s := &Store{
		paths:   p,
		entries: make(map[string]Entry),
	}
	seen := make(map[string]bool, len(dirEntries))

	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".md") {
			continue
		}
		path := filepath.Join(p.Dir, de.Name())
		seen[path] = true

		info, err := de.Info()
		if err != nil {
			s.Skipped = append(s.Skipped, path)
			continue
		}

		if cache != nil {
			row, ok, err := index.Get(cache, path, info.ModTime().UnixNano(), info.Size())
			if err == nil && ok {
				s.place(Entry{
					ID:          row.ItemID,
					Path:        path,
					Type:        notes.ItemTypeFrom(row.ItemType),
					Encrypted:   row.Encrypted,
					UpdatedTime: row.UpdatedTime,
				}, path)
				continue
			}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			s.Skipped = append(s.Skipped, path)
			continue
		}
		h, err := notes.ScanHeader(data)
		if err != nil {
			s.Skipped = append(s.Skipped, path)
			continue
		}

		s.place(Entry{
			ID:          h.ID,
			Path:        path,
			Type:        h.Type,
			Encrypted:   h.EncryptionApplied,
			UpdatedTime: h.UpdatedTime,
		}, path)

		if cache != nil {
			// Cache failures are advisory, the scan already succeeded.
			_ = index.Put(cache, index.Row{
				Path:        path,
				MTimeNS:     info.ModTime().UnixNano(),
				Size:        info.Size(),
				ItemID:      h.ID,
				ItemType:    int(h.Type),
				Encrypted:   h.EncryptionApplied,
				UpdatedTime: h.UpdatedTime,
			})
		}
	}

	if cache != nil {
		_ = index.Prune(cache, seen)
	}

	return s, nil
}

// place routes a classified entry into the store. Master-key records need
// their full content, so they are always re-read from disk here.
func (s *Store) place(e Entry, path string) {
	switch e.Type {
	case notes.ItemNote:
		s.entries[e.ID] = e
	case notes.ItemMasterKey:
		data, err := os.ReadFile(path)
		if err != nil {
			s.Skipped = append(s.Skipped, path)
			return
		}
		rec, err := keyring.RecordFromProps(notes.ParseProps(data))
		if err != nil {
			s.Skipped = append(s.Skipped, path)
			return
		}
		s.keys = append(s.keys, rec)
	default:
		// Folders, tags, revisions and the rest are not readable notes.
	}
}

// NoteIDs returns the ids of all notes in the notebook, sorted for stable
// iteration.
func (s *Store) NoteIDs() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns the classification entry for a note id.
func (s *Store) Lookup(id string) (Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// IsEncrypted reports whether the note with the given id carries an
// encrypted body.
func (s *Store) IsEncrypted(id string) (bool, error) {
	e, ok := s.entries[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownNote, id)
	}
	return e.Encrypted, nil
}

// RawBytes reads the note's current file content from disk. Every call
// re-reads, so external edits are picked up without rescanning.
func (s *Store) RawBytes(id string) ([]byte, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNote, id)
	}
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, fmt.Errorf("read note %s: %w", id, err)
	}
	return data, nil
}

// Meta returns the note file's props as string metadata, without decrypting
// anything. For a plaintext note that is everything but title and body; for
// an encrypted note it is the shell props, with the ciphertext itself left
// out.
func (s *Store) Meta(id string) (map[string]string, error) {
	data, err := s.RawBytes(id)
	if err != nil {
		return nil, err
	}
	e := s.entries[id]

	var props map[string]string
	if e.Encrypted {
		props = notes.ParseProps(data)
	} else {
		props, err = notes.Deserialize(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse note %s: %w", id, err)
		}
	}
	meta := make(map[string]string, len(props))
	for k, v := range props {
		if k == "title" || k == "body" || k == "encryption_cipher_text" {
			continue
		}
		meta[k] = v
	}
	return meta, nil
}

// MasterKeys returns the master-key records collected during the scan.
func (s *Store) MasterKeys() []keyring.MasterKeyRecord {
	return s.keys
}
