package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32

	// envelopeVersion is the first byte of every ciphertext and is bound as AAD.
	envelopeVersion byte = 1

	// padBlock is the bucket size plaintexts are padded to before sealing.
	// A ciphertext reveals the plaintext length rounded up to this many bytes.
	padBlock = 32

	lengthPrefix = 4
	nonceSize    = 12

	keyContext = "passvault-cipher-v1"
	saltPrefix = "passvault-salt:"
)

var (
	// ErrNoKey is returned when no key material has been configured.
	ErrNoKey = errors.New("no encryption key configured")

	// ErrDecryption is returned when a ciphertext cannot be recovered under the
	// configured key: malformed, truncated, tampered or sealed under another key.
	ErrDecryption = errors.New("decryption failed")
)

// Cipher seals and opens credential secrets with AES-256-GCM.
// It is immutable after construction and safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
// Output layout: version(1) || nonce(12) || GCM(len(4) || plaintext || zero padding).
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	padded := pad(plaintext)
	defer zeroBytes(padded)

	out := make([]byte, 0, 1+nonceSize+len(padded)+c.aead.Overhead())
	out = append(out, envelopeVersion)
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, padded, []byte{envelopeVersion}), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Every failure wraps ErrDecryption.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 1+nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	if ciphertext[0] != envelopeVersion {
		return nil, fmt.Errorf("%w: unknown envelope version %d", ErrDecryption, ciphertext[0])
	}
	nonce := ciphertext[1 : 1+nonceSize]
	sealed := ciphertext[1+nonceSize:]

	padded, err := c.aead.Open(nil, nonce, sealed, []byte{envelopeVersion})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	defer zeroBytes(padded)

	plaintext, err := unpad(padded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plaintext, nil
}

// GenerateKey returns 32 cryptographically secure random bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return key, nil
}

// KeyFromSecret turns the configured secret into an AES-256 key.
//
// A secret that is standard base64 for exactly 32 bytes is raw key material
// and is expanded with HKDF-SHA256. Anything else is a passphrase, stretched
// with Argon2id under a salt derived from the passphrase itself so the same
// passphrase yields the same key on every start.
func KeyFromSecret(secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrNoKey
	}
	if raw, err := base64.StdEncoding.DecodeString(secret); err == nil && len(raw) == KeySize {
		defer zeroBytes(raw)
		return deriveKey(raw, keyContext)
	}
	salt := sha256.Sum256([]byte(saltPrefix + secret))
	return argon2.IDKey([]byte(secret), salt[:16], 1, 64*1024, 4, KeySize), nil
}

// EncodeKey renders key material in the form KeyFromSecret accepts as raw.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// deriveKey derives a subkey from raw key material using HKDF-SHA256.
func deriveKey(root []byte, context string) ([]byte, error) {
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, root, nil, []byte(context))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// pad prefixes the plaintext with its length and zero-fills up to a multiple of padBlock.
func pad(plaintext []byte) []byte {
	n := lengthPrefix + len(plaintext)
	size := (n + padBlock - 1) / padBlock * padBlock
	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf[:lengthPrefix], uint32(len(plaintext)))
	copy(buf[lengthPrefix:], plaintext)
	return buf
}

func unpad(buf []byte) ([]byte, error) {
	if len(buf) < lengthPrefix || len(buf)%padBlock != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(binary.BigEndian.Uint32(buf[:lengthPrefix]))
	if n > len(buf)-lengthPrefix {
		return nil, errors.New("length prefix out of range")
	}
	for _, b := range buf[lengthPrefix+n:] {
		if b != 0 {
			return nil, errors.New("non-zero padding")
		}
	}
	out := make([]byte, n)
	copy(out, buf[lengthPrefix:lengthPrefix+n])
	return out, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
