// Package cryptox turns plaintext secrets into their stored form and back.
//
// Three formats are supported:
//   - Clear: stored as given.
//   - Encrypted: AES-256-GCM, reversible, keyed from the process secret.
//   - Hashed: HMAC-SHA256, one way, keyed from the process secret.
//
// Keys for the two keyed formats are derived independently from the same
// secret with HKDF-SHA256, so a leaked MAC key never decrypts anything.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/membership/internal/common"
	"golang.org/x/crypto/hkdf"
)

// PasswordFormat selects how passwords are stored.
type PasswordFormat int

const (
	FormatClear PasswordFormat = iota
	FormatHashed
	FormatEncrypted
)

func (f PasswordFormat) String() string {
	switch f {
	case FormatClear:
		return "Clear"
	case FormatHashed:
		return "Hashed"
	case FormatEncrypted:
		return "Encrypted"
	default:
		return fmt.Sprintf("PasswordFormat(%d)", int(f))
	}
}

// ErrUnknownFormat is returned by ParsePasswordFormat.
var ErrUnknownFormat = errors.New("password format not supported")

// ParsePasswordFormat parses "Clear", "Hashed" or "Encrypted" (case-insensitive).
func ParsePasswordFormat(s string) (PasswordFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clear":
		return FormatClear, nil
	case "hashed":
		return FormatHashed, nil
	case "encrypted":
		return FormatEncrypted, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

const (
	encKeyInfo = "membership/password/encrypt"
	macKeyInfo = "membership/password/hmac"
	keyLen     = 32
)

// Encoder converts secrets between plaintext and stored form.
type Encoder struct {
	format PasswordFormat
	encKey []byte
	macKey []byte
}

// NewEncoder builds an Encoder. The secret is required for Hashed and
// Encrypted formats and ignored for Clear.
func NewEncoder(format PasswordFormat, secret []byte) (*Encoder, error) {
	e := &Encoder{format: format}
	switch format {
	case FormatClear:
		return e, nil
	case FormatHashed, FormatEncrypted:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	if len(secret) == 0 {
		return nil, fmt.Errorf("%s passwords require a secret key", format)
	}

	var err error
	if e.encKey, err = deriveKey(secret, encKeyInfo); err != nil {
		return nil, err
	}
	if e.macKey, err = deriveKey(secret, macKeyInfo); err != nil {
		return nil, err
	}
	return e, nil
}

func deriveKey(secret []byte, info string) ([]byte, error) {
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Format returns the configured storage format.
func (e *Encoder) Format() PasswordFormat { return e.format }

// Encode returns the stored form of plain.
func (e *Encoder) Encode(plain string) (string, error) {
	switch e.format {
	case FormatClear:
		return plain, nil
	case FormatHashed:
		return e.hash(plain), nil
	case FormatEncrypted:
		return e.encrypt(plain)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, e.format)
	}
}

// Decode recovers the plaintext from stored. Hashed values cannot be decoded
// and yield common.ErrUnsupportedOperation.
func (e *Encoder) Decode(stored string) (string, error) {
	switch e.format {
	case FormatClear:
		return stored, nil
	case FormatHashed:
		return "", common.NewFault("cryptox.Decode", common.ErrUnsupportedOperation, "cannot decode a hashed password")
	case FormatEncrypted:
		return e.decrypt(stored)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, e.format)
	}
}

// Verify reports whether candidate matches stored under the configured
// format. The comparison is constant time.
func (e *Encoder) Verify(candidate, stored string) (bool, error) {
	var a, b string
	switch e.format {
	case FormatClear:
		a, b = candidate, stored
	case FormatHashed:
		a, b = e.hash(candidate), stored
	case FormatEncrypted:
		plain, err := e.decrypt(stored)
		if err != nil {
			return false, err
		}
		a, b = candidate, plain
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownFormat, e.format)
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1, nil
}

func (e *Encoder) hash(plain string) string {
	mac := hmac.New(sha256.New, e.macKey)
	mac.Write([]byte(plain))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (e *Encoder) encrypt(plain string) (string, error) {
	aead, err := e.aead()
	if err != nil {
		return "", err
	}
	nonce := common.GenerateRandByteArray(aead.NonceSize())
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *Encoder) decrypt(stored string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("decode stored password: %w", err)
	}
	aead, err := e.aead()
	if err != nil {
		return "", err
	}
	if len(payload) < aead.NonceSize() {
		return "", io.ErrUnexpectedEOF
	}
	nonce, ciphertext := payload[:aead.NonceSize()], payload[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt stored password: %w", err)
	}
	return string(plain), nil
}

func (e *Encoder) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.encKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
