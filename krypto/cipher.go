package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Method identifies the symmetric scheme used for a ciphertext chunk. The set
// is closed: adding a scheme means adding a constant here and a branch in
// DecryptChunk, nothing else.
type Method uint8

const (
	MethodUndefined Method = 0x00
	// MethodLegacyCBC is AES-256-CBC with PKCS#7 padding and no
	// authentication. Kept only to read old notebooks; never used for new
	// material.
	MethodLegacyCBC Method = 0x01
	// MethodModernCBC is AES-256-CBC with an encrypt-then-MAC HMAC-SHA256 tag.
	MethodModernCBC Method = 0x02
	// MethodGCM is AES-256-GCM.
	MethodGCM Method = 0x03
	// MethodKeyWrapGCM is AES-256-GCM, reserved for master-key records.
	MethodKeyWrapGCM Method = 0x04
)

// Valid reports whether m is a known method identifier.
func (m Method) Valid() bool {
	switch m {
	case MethodLegacyCBC, MethodModernCBC, MethodGCM, MethodKeyWrapGCM:
		return true
	}
	return false
}

func (m Method) String() string {
	switch m {
	case MethodLegacyCBC:
		return "legacy-cbc"
	case MethodModernCBC:
		return "cbc-hmac"
	case MethodGCM:
		return "gcm"
	case MethodKeyWrapGCM:
		return "keywrap-gcm"
	}
	return fmt.Sprintf("method-%02x", uint8(m))
}

var (
	// ErrInvalidPadding indicates PKCS#7 padding did not verify on the legacy path.
	ErrInvalidPadding = errors.New("invalid ciphertext padding")

	// ErrIntegrityFailed indicates an authentication tag did not verify.
	ErrIntegrityFailed = errors.New("ciphertext integrity check failed")
)

const (
	cbcMACSize = sha256.Size

	cbcEncInfo = "notereader/cbc-enc"
	cbcMACInfo = "notereader/cbc-mac"
)

// DecryptChunk decrypts one chunk payload with the scheme identified by m.
// This is the single dispatch point over encryption methods.
func DecryptChunk(m Method, key, payload []byte) ([]byte, error) {
	switch m {
	case MethodLegacyCBC:
		return DecryptLegacyCBC(key, payload)
	case MethodModernCBC:
		return DecryptModernCBC(key, payload)
	case MethodGCM, MethodKeyWrapGCM:
		return decryptChunkGCM(key, payload)
	}
	return nil, fmt.Errorf("no decryption routine for %s", m)
}

// EncryptChunk is the inverse of DecryptChunk. It exists for round-trip tests
// and the fixture generator; the reader itself never encrypts.
func EncryptChunk(m Method, key, plaintext []byte) ([]byte, error) {
	switch m {
	case MethodLegacyCBC:
		return EncryptLegacyCBC(key, plaintext)
	case MethodModernCBC:
		return EncryptModernCBC(key, plaintext)
	case MethodGCM, MethodKeyWrapGCM:
		nonce, ct, err := EncryptAESGCM(key, plaintext, nil)
		if err != nil {
			return nil, err
		}
		return append(nonce, ct...), nil
	}
	return nil, fmt.Errorf("no encryption routine for %s", m)
}

func decryptChunkGCM(key, payload []byte) ([]byte, error) {
	if len(payload) < gcmNonceSize+1 {
		return nil, errors.New("gcm payload too short")
	}
	return DecryptAESGCM(key, payload[:gcmNonceSize], payload[gcmNonceSize:], nil)
}

// DecryptLegacyCBC decrypts an IV-prefixed AES-256-CBC payload and strips
// PKCS#7 padding. Compatibility path only: there is no authentication, and a
// padding failure is observable. Callers must not extend this scheme.
func DecryptLegacyCBC(key, payload []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, errors.New("aes-cbc requires a 32-byte key")
	}
	if len(payload) < 2*aes.BlockSize {
		return nil, errors.New("cbc payload too short")
	}
	iv, ciphertext := payload[:aes.BlockSize], payload[aes.BlockSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("cbc ciphertext not block-aligned")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

// EncryptLegacyCBC produces an IV-prefixed AES-256-CBC payload with PKCS#7 padding.
func EncryptLegacyCBC(key, plaintext []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, errors.New("aes-cbc requires a 32-byte key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext)
	payload := make([]byte, aes.BlockSize+len(padded))
	iv := payload[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(payload[aes.BlockSize:], padded)

	return payload, nil
}

// DecryptModernCBC verifies the trailing HMAC-SHA256 tag over IV||ciphertext
// before touching the cipher. Encryption and MAC keys are derived from the
// note key with HKDF-SHA256; the tag comparison is constant time.
func DecryptModernCBC(key, payload []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, errors.New("cbc-hmac requires a 32-byte key")
	}
	if len(payload) < 2*aes.BlockSize+cbcMACSize {
		return nil, errors.New("cbc-hmac payload too short")
	}

	authed := payload[:len(payload)-cbcMACSize]
	tag := payload[len(payload)-cbcMACSize:]

	encKey, macKey, err := cbcSubkeys(key)
	if err != nil {
		return nil, err
	}
	defer Wipe(encKey)
	defer Wipe(macKey)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(authed)
	if !hmac.Equal(mac.Sum(nil), tag) {
		return nil, ErrIntegrityFailed
	}

	return DecryptLegacyCBC(encKey, authed)
}

// EncryptModernCBC produces IV||ciphertext||tag with the derivation scheme of
// DecryptModernCBC.
func EncryptModernCBC(key, plaintext []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, errors.New("cbc-hmac requires a 32-byte key")
	}

	encKey, macKey, err := cbcSubkeys(key)
	if err != nil {
		return nil, err
	}
	defer Wipe(encKey)
	defer Wipe(macKey)

	payload, err := EncryptLegacyCBC(encKey, plaintext)
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha256.New, macKey)
	mac.Write(payload)
	return mac.Sum(payload), nil
}

func cbcSubkeys(key []byte) (encKey, macKey []byte, err error) {
	encKey = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(cbcEncInfo)), encKey); err != nil {
		return nil, nil, fmt.Errorf("derive cbc encryption key: %w", err)
	}
	macKey = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(cbcMACInfo)), macKey); err != nil {
		return nil, nil, fmt.Errorf("derive cbc mac key: %w", err)
	}
	return encKey, macKey, nil
}

func pkcs7Pad(plaintext []byte) []byte {
	n := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := make([]byte, len(plaintext)+n)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

// pkcs7Unpad validates and strips padding without short-circuiting on the
// first bad byte.
func pkcs7Unpad(padded []byte) ([]byte, error) {
	if len(padded) == 0 || len(padded)%aes.BlockSize != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(padded[len(padded)-1])
	if n == 0 || n > aes.BlockSize || n > len(padded) {
		return nil, ErrInvalidPadding
	}
	good := 1
	for _, b := range padded[len(padded)-n:] {
		good &= subtle.ConstantTimeByteEq(b, byte(n))
	}
	if good != 1 {
		return nil, ErrInvalidPadding
	}
	return padded[:len(padded)-n], nil
}
