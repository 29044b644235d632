// Package fixture builds synthetic notebook files: master-key records,
// plaintext notes and encrypted note shells. It is the write side the
// reader deliberately does not have, used by tests and the sample
// notebook generator.
package fixture

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/skhoury/notereader/internal/envelope"
	"github.com/skhoury/notereader/krypto"
)

// chunkSize is the plaintext character count per envelope chunk. Small
// enough that modest notes span several chunks, so readers exercise the
// multi-chunk path.
const chunkSize = 1024

// WrapMasterKey produces the file content of a master-key record: the raw
// 32-byte key encrypted under a password-derived key, together with the
// derivation parameters and a checksum of the raw key.
func WrapMasterKey(id, password string, raw []byte, iterations int) (string, error) {
	if len(raw) != 32 {
		return "", fmt.Errorf("master key must be 32 bytes, got %d", len(raw))
	}

	salt, err := krypto.NewRandomSalt(krypto.SaltLengthBytes)
	if err != nil {
		return "", err
	}
	kek, err := krypto.DeriveKeyPBKDF2([]byte(password), salt, krypto.PBKDF2Params{
		Iterations: iterations,
		SaltLen:    len(salt),
		KeyLen:     32,
	})
	if err != nil {
		return "", err
	}
	defer krypto.Wipe(kek)

	ct, err := krypto.EncryptChunk(krypto.MethodKeyWrapGCM, kek, raw)
	if err != nil {
		return "", err
	}
	content, err := envelope.Encode(krypto.MethodKeyWrapGCM, id, [][]byte{ct})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)

	var b strings.Builder
	writeProp(&b, "id", id)
	writeProp(&b, "type_", "9")
	writeProp(&b, "encryption_method", fmt.Sprintf("%d", uint8(krypto.MethodKeyWrapGCM)))
	writeProp(&b, "iterations", fmt.Sprintf("%d", iterations))
	writeProp(&b, "salt", base64.StdEncoding.EncodeToString(salt))
	writeProp(&b, "checksum", hex.EncodeToString(sum[:]))
	writeProp(&b, "content", content)
	return b.String(), nil
}

// SerializeNote renders a note in the on-disk item layout: title, blank
// line, body, blank line, then one prop per line. Extra props beyond the
// required id and type_ may be passed in pairs.
func SerializeNote(id, title, body string, extra ...string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	b.WriteString(body)
	b.WriteString("\n\n")
	writeProp(&b, "id", id)
	writeProp(&b, "type_", "1")
	for i := 0; i+1 < len(extra); i += 2 {
		writeProp(&b, extra[i], extra[i+1])
	}
	return b.String()
}

// PlaintextNote is SerializeNote with the encryption flag explicitly off.
func PlaintextNote(id, title, body string) string {
	return SerializeNote(id, title, body, "encryption_applied", "0")
}

// EncryptedNote serializes a note, encrypts it under the given master key
// and wraps the ciphertext in an envelope, returning the shell file content
// that stands in for the note on disk.
func EncryptedNote(id, title, body, keyID string, key []byte, method krypto.Method) (string, error) {
	plain := SerializeNote(id, title, body)

	var chunks [][]byte
	for off := 0; off < len(plain); off += chunkSize {
		end := off + chunkSize
		if end > len(plain) {
			end = len(plain)
		}
		ct, err := krypto.EncryptChunk(method, key, []byte(plain[off:end]))
		if err != nil {
			return "", err
		}
		chunks = append(chunks, ct)
	}
	content, err := envelope.Encode(method, keyID, chunks)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	writeProp(&b, "id", id)
	writeProp(&b, "type_", "1")
	writeProp(&b, "encryption_applied", "1")
	writeProp(&b, "encryption_cipher_text", content)
	return b.String(), nil
}

func writeProp(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}
