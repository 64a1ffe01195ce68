package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Codec parameters: AES-256-GCM with a 16-byte nonce and 16-byte tag.
const (
	// KeyLength is the required symmetric key size in bytes.
	KeyLength = 32

	nonceLength = 16
	tagLength   = 16
)

// codeAAD binds ciphertexts to the gift code payload type so a blob cannot
// be replayed as a different kind of payload.
var codeAAD = []byte("giftvault.code.v1")

// Codec errors.
var (
	// ErrInvalidKeyLength indicates the key is not exactly KeyLength bytes.
	ErrInvalidKeyLength = errors.New("security: key must be 32 bytes")
	// ErrAuthenticationFailed indicates a tag mismatch: the blob was
	// tampered with or a wrong key was supplied.
	ErrAuthenticationFailed = errors.New("security: ciphertext authentication failed")
	// ErrMalformedCiphertext indicates a blob too short or not decodable.
	ErrMalformedCiphertext = errors.New("security: malformed ciphertext blob")
)

// GenerateKey returns a fresh random 32-byte key encoded as base64.
func GenerateKey() (string, error) {
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("security: generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// DecodeKey decodes a base64 key and enforces the required length.
func DecodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("security: decode key: %w", err)
	}
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	return key, nil
}

// Encrypt seals plaintext under key with a freshly generated nonce and
// returns base64(nonce || tag || ciphertext). Nonces are never reused:
// every call draws a new one from the system entropy source.
func Encrypt(plaintext string, key []byte) (string, error) {
	if len(key) != KeyLength {
		return "", ErrInvalidKeyLength
	}
	aead, err := newAEAD(key)
	if err != nil {
		return "", fmt.Errorf("security: encrypt: %w", err)
	}

	nonce := make([]byte, nonceLength)
	if _, errRead := io.ReadFull(rand.Reader, nonce); errRead != nil {
		return "", fmt.Errorf("security: encrypt: %w", errRead)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), codeAAD)
	split := len(sealed) - tagLength
	ciphertext, tag := sealed[:split], sealed[split:]

	blob := make([]byte, 0, nonceLength+tagLength+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt, verifying the authentication tag. It returns
// ErrAuthenticationFailed when the tag does not verify and
// ErrMalformedCiphertext when the blob cannot be decoded or is too short.
func Decrypt(blob string, key []byte) (string, error) {
	if len(key) != KeyLength {
		return "", ErrInvalidKeyLength
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformedCiphertext, err.Error())
	}
	if len(raw) < nonceLength+tagLength {
		return "", ErrMalformedCiphertext
	}

	nonce := raw[:nonceLength]
	tag := raw[nonceLength : nonceLength+tagLength]
	ciphertext := raw[nonceLength+tagLength:]

	aead, errAEAD := newAEAD(key)
	if errAEAD != nil {
		return "", fmt.Errorf("security: decrypt: %w", errAEAD)
	}

	sealed := make([]byte, 0, len(ciphertext)+tagLength)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, errOpen := aead.Open(nil, nonce, sealed, codeAAD)
	if errOpen != nil {
		return "", ErrAuthenticationFailed
	}
	return string(plaintext), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceLength)
}
