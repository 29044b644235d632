// Package envelope parses the self-describing wrapper around encrypted
// notebook content. An envelope is pure ASCII:
//
//	"JED" | version (2 hex) | header length (6 hex) | method (2 hex) |
//	master key id (32 chars) | chunks...
//
// where each chunk is a 6-hex character count followed by that many base64
// characters. The package only slices and validates encodings; it performs no
// cryptography.
package envelope

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/skhoury/notereader/krypto"
)

const (
	magic = "JED"

	// Version is the only envelope version this reader understands.
	Version = 1

	// headerBodyLen covers method (2) + master key id (32).
	headerBodyLen = 34

	// HeaderSize is the full header length in characters.
	HeaderSize = len(magic) + 2 + 6 + headerBodyLen

	keyIDLen     = 32
	chunkLenSize = 6
)

var (
	// ErrCorruptEnvelope indicates a truncated buffer or invalid encoding.
	ErrCorruptEnvelope = errors.New("corrupt envelope")

	// ErrUnsupportedVersion indicates an envelope version this reader does not understand.
	ErrUnsupportedVersion = errors.New("unsupported envelope version")

	// ErrUnsupportedMethod indicates an unknown encryption method identifier.
	ErrUnsupportedMethod = errors.New("unsupported encryption method")
)

// Envelope is the parsed form of an encryption_cipher_text value. Chunks hold
// the base64-decoded binary payloads in file order.
type Envelope struct {
	Version     int
	Method      krypto.Method
	MasterKeyID string
	Chunks      [][]byte
}

// ParseHeader decodes only the fixed-size header. It is the cheap path used
// while indexing, when just the method and referenced master key id are
// needed.
func ParseHeader(s string) (*Envelope, error) {
	if len(s) < HeaderSize {
		return nil, fmt.Errorf("%w: header truncated at %d of %d chars", ErrCorruptEnvelope, len(s), HeaderSize)
	}
	if s[:len(magic)] != magic {
		return nil, fmt.Errorf("%w: missing %q identifier", ErrCorruptEnvelope, magic)
	}
	pos := len(magic)

	version, err := hexField(s[pos:pos+2], "version")
	if err != nil {
		return nil, err
	}
	pos += 2
	if version != Version {
		return nil, fmt.Errorf("%w: %02x", ErrUnsupportedVersion, version)
	}

	hdrLen, err := hexField(s[pos:pos+chunkLenSize], "header length")
	if err != nil {
		return nil, err
	}
	pos += chunkLenSize
	if hdrLen != headerBodyLen {
		return nil, fmt.Errorf("%w: header length %d, want %d", ErrCorruptEnvelope, hdrLen, headerBodyLen)
	}

	methodID, err := hexField(s[pos:pos+2], "method")
	if err != nil {
		return nil, err
	}
	pos += 2
	method := krypto.Method(methodID)
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %02x", ErrUnsupportedMethod, methodID)
	}

	keyID := s[pos : pos+keyIDLen]
	if !isLowerHex(keyID) {
		return nil, fmt.Errorf("%w: master key id is not hex", ErrCorruptEnvelope)
	}

	return &Envelope{
		Version:     version,
		Method:      method,
		MasterKeyID: keyID,
	}, nil
}

// Parse decodes the header and every ciphertext chunk.
func Parse(s string) (*Envelope, error) {
	env, err := ParseHeader(s)
	if err != nil {
		return nil, err
	}

	rest := s[HeaderSize:]
	for len(rest) > 0 {
		if len(rest) < chunkLenSize {
			return nil, fmt.Errorf("%w: trailing %d chars after last chunk", ErrCorruptEnvelope, len(rest))
		}
		n, err := hexField(rest[:chunkLenSize], "chunk length")
		if err != nil {
			return nil, err
		}
		rest = rest[chunkLenSize:]

		if n == 0 || n > len(rest) {
			return nil, fmt.Errorf("%w: chunk declares %d chars, %d remain", ErrCorruptEnvelope, n, len(rest))
		}
		payload, err := base64.StdEncoding.DecodeString(rest[:n])
		if err != nil {
			return nil, fmt.Errorf("%w: chunk base64: %v", ErrCorruptEnvelope, err)
		}
		env.Chunks = append(env.Chunks, payload)
		rest = rest[n:]
	}

	if len(env.Chunks) == 0 {
		return nil, fmt.Errorf("%w: no ciphertext chunks", ErrCorruptEnvelope)
	}
	return env, nil
}

// Encode builds an envelope string from binary chunk payloads. The reader
// never writes notebooks; Encode serves round-trip tests and the fixture
// generator.
func Encode(method krypto.Method, masterKeyID string, chunks [][]byte) (string, error) {
	if !method.Valid() {
		return "", fmt.Errorf("%w: %02x", ErrUnsupportedMethod, uint8(method))
	}
	if len(masterKeyID) != keyIDLen || !isLowerHex(masterKeyID) {
		return "", fmt.Errorf("%w: master key id must be %d hex chars", ErrCorruptEnvelope, keyIDLen)
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: no ciphertext chunks", ErrCorruptEnvelope)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s%02x%06x%02x%s", magic, Version, headerBodyLen, uint8(method), masterKeyID)
	for _, payload := range chunks {
		enc := base64.StdEncoding.EncodeToString(payload)
		if len(enc) > 0xffffff {
			return "", fmt.Errorf("%w: chunk too large", ErrCorruptEnvelope)
		}
		fmt.Fprintf(&b, "%06x%s", len(enc), enc)
	}
	return b.String(), nil
}

func hexField(s, name string) (int, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not hex: %q", ErrCorruptEnvelope, name, s)
	}
	return int(v), nil
}

func isLowerHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
