// Package notes parses the on-disk item format of a notebook folder: one
// file per item, `key: value` props, and for notes a serialized
// title/body/props layout. Encrypted and plaintext items share the same
// serialized shape once decrypted.
package notes

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ItemType enumerates the kinds of items a notebook file can hold. Only
// notes and master keys get special treatment; everything else is indexed
// and otherwise ignored.
type ItemType int

const (
	ItemUndefined ItemType = 0
	ItemNote      ItemType = 1
	ItemFolder    ItemType = 2
	ItemSetting   ItemType = 3
	ItemResource  ItemType = 4
	ItemTag       ItemType = 5
	ItemNoteTag   ItemType = 6
	ItemSearch    ItemType = 7
	ItemAlarm     ItemType = 8
	ItemMasterKey ItemType = 9
	ItemRevision  ItemType = 13
)

// ItemTypeFrom maps the numeric type_ prop onto an ItemType. Unknown values
// collapse to ItemUndefined rather than failing: forward compatibility with
// item kinds this reader has no use for.
func ItemTypeFrom(v int) ItemType {
	switch v {
	case 1, 2, 3, 4, 5, 6, 7, 8, 9, 13:
		return ItemType(v)
	}
	return ItemUndefined
}

// ErrInvalidFormat indicates a file does not follow the serialized item shape.
var ErrInvalidFormat = errors.New("invalid item format")

// Note is the fully resolved record handed back to callers.
type Note struct {
	ID          string
	Title       string
	Body        string
	IsEncrypted bool
	Metadata    map[string]string
}

// Header carries the cheap, always-plaintext props the store needs to
// classify a file without fully deserializing it.
type Header struct {
	ID                string
	Type              ItemType
	ParentID          string
	EncryptionApplied bool
	CipherText        string
	UpdatedTime       string
}

// ScanHeader walks every `key: value` line and picks out the props relevant
// for classification. Later occurrences win, so prop lines at the bottom of
// a plaintext note override look-alike lines inside the body.
func ScanHeader(data []byte) (Header, error) {
	var h Header
	sawType := false

	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := splitProp(line)
		if !ok {
			continue
		}
		switch key {
		case "id":
			h.ID = value
		case "parent_id":
			h.ParentID = value
		case "type_":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Header{}, fmt.Errorf("%w: type_ %q", ErrInvalidFormat, value)
			}
			h.Type = ItemTypeFrom(n)
			sawType = true
		case "encryption_applied":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Header{}, fmt.Errorf("%w: encryption_applied %q", ErrInvalidFormat, value)
			}
			h.EncryptionApplied = n == 1
		case "encryption_cipher_text":
			h.CipherText = value
		case "updated_time":
			h.UpdatedTime = value
		}
	}

	if h.ID == "" {
		return Header{}, fmt.Errorf("%w: missing id", ErrInvalidFormat)
	}
	if !sawType {
		return Header{}, fmt.Errorf("%w: missing type_", ErrInvalidFormat)
	}
	if h.EncryptionApplied && h.CipherText == "" {
		return Header{}, fmt.Errorf("%w: encryption_applied without cipher text", ErrInvalidFormat)
	}

	return h, nil
}

// ParseProps reads a props-only item (master-key records, encrypted shells)
// into a key/value map. Duplicate keys keep the last value.
func ParseProps(data []byte) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		if key, value, ok := splitProp(line); ok {
			props[key] = value
		}
	}
	return props
}

// Deserialize parses the full serialized item layout:
//
//	Title\n\nBody...\n\nkey: value\n...
//
// Because the body may itself contain `key: value` lines, the text is read
// bottom-up: props until the first blank line, then body, with the first
// body line being the title. The type_ prop is mandatory. The returned map
// contains the props plus synthesized "title" and (for notes) "body" keys.
func Deserialize(text string) (map[string]string, error) {
	// A file-terminating newline is not a blank separator line.
	text = strings.TrimSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\r")
	lines := strings.Split(text, "\n")

	props := make(map[string]string)
	var body []string
	inBody := false

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], "\r")
		if !inBody {
			if strings.TrimSpace(line) == "" {
				inBody = true
				continue
			}
			key, value, ok := splitProp(line)
			if !ok {
				return nil, fmt.Errorf("%w: prop line %q", ErrInvalidFormat, line)
			}
			props[key] = value
			continue
		}
		body = append([]string{line}, body...)
	}

	typeStr, ok := props["type_"]
	if !ok {
		return nil, fmt.Errorf("%w: missing required prop type_", ErrInvalidFormat)
	}
	typeNum, err := strconv.Atoi(typeStr)
	if err != nil {
		return nil, fmt.Errorf("%w: type_ %q", ErrInvalidFormat, typeStr)
	}

	if len(body) > 0 {
		props["title"] = strings.TrimSpace(body[0])
		body = body[1:]
		if len(body) > 0 {
			// Drop the blank separator between title and body.
			body = body[1:]
		}
	}
	if ItemTypeFrom(typeNum) == ItemNote {
		props["body"] = strings.Join(body, "\n")
	}

	return props, nil
}

// NoteFromProps assembles the caller-facing Note from deserialized props.
func NoteFromProps(id string, encrypted bool, props map[string]string) Note {
	note := Note{
		ID:          id,
		Title:       props["title"],
		Body:        props["body"],
		IsEncrypted: encrypted,
		Metadata:    make(map[string]string, len(props)),
	}
	for k, v := range props {
		if k == "title" || k == "body" {
			continue
		}
		note.Metadata[k] = v
	}
	return note
}

// splitProp splits a `key: value` line at the first colon. Lines without a
// colon are not props.
func splitProp(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}
