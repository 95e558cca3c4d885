package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	return c
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("expected %d bytes, got %d", KeySize, len(key))
	}
	key2, _ := GenerateKey()
	if bytes.Equal(key, key2) {
		t.Error("two keys should not be equal")
	}
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	if _, err := NewCipher(nil); !errors.Is(err, ErrNoKey) {
		t.Errorf("expected ErrNoKey for nil key, got %v", err)
	}
	if _, err := NewCipher([]byte("short")); err == nil {
		t.Error("expected error for 5-byte key")
	}
}

func TestRoundTrip(t *testing.T) {
	c := newTestCipher(t)
	cases := map[string][]byte{
		"empty":       {},
		"simple":      []byte("Secr3t!"),
		"block-edge":  bytes.Repeat([]byte("a"), padBlock-lengthPrefix),
		"multi-block": bytes.Repeat([]byte("xyz"), 100),
		"binary":      {0x00, 0xff, 0x00, 0x10},
		"unicode":     []byte("contraseña-🔐"),
	}
	for name, plaintext := range cases {
		t.Run(name, func(t *testing.T) {
			ct, err := c.Encrypt(plaintext)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}
			got, err := c.Decrypt(ct)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Errorf("round trip mismatch: got %q want %q", got, plaintext)
			}
		})
	}
}

func TestCiphertextHidesPlaintext(t *testing.T) {
	c := newTestCipher(t)
	plaintext := []byte("hunter2")

	ct1, _ := c.Encrypt(plaintext)
	ct2, _ := c.Encrypt(plaintext)
	if bytes.Contains(ct1, plaintext) {
		t.Error("ciphertext should not contain the plaintext")
	}
	// Fresh nonce per call
	if bytes.Equal(ct1, ct2) {
		t.Error("two encryptions of the same plaintext should differ")
	}
}

func TestCiphertextLengthBucketed(t *testing.T) {
	c := newTestCipher(t)
	short, _ := c.Encrypt([]byte("a"))
	longer, _ := c.Encrypt([]byte(strings.Repeat("a", 20)))
	if len(short) != len(longer) {
		t.Errorf("plaintexts in the same bucket should yield equal lengths: %d vs %d", len(short), len(longer))
	}
	next, _ := c.Encrypt([]byte(strings.Repeat("a", padBlock)))
	if len(next) != len(short)+padBlock {
		t.Errorf("expected next bucket to add %d bytes, got %d", padBlock, len(next)-len(short))
	}
}

func TestDecryptWrongKey(t *testing.T) {
	c1 := newTestCipher(t)
	c2 := newTestCipher(t)

	ct, _ := c1.Encrypt([]byte("secret data"))
	_, err := c2.Decrypt(ct)
	if !errors.Is(err, ErrDecryption) {
		t.Errorf("expected ErrDecryption, got %v", err)
	}
}

func TestDecryptMalformed(t *testing.T) {
	c := newTestCipher(t)
	ct, _ := c.Encrypt([]byte("secret data"))

	tampered := append([]byte(nil), ct...)
	tampered[len(tampered)-1] ^= 0x01

	badVersion := append([]byte(nil), ct...)
	badVersion[0] = 9

	cases := map[string][]byte{
		"nil":         nil,
		"truncated":   ct[:len(ct)-5],
		"header-only": ct[:1+nonceSize],
		"tampered":    tampered,
		"bad-version": badVersion,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := c.Decrypt(input)
			if !errors.Is(err, ErrDecryption) {
				t.Fatalf("expected ErrDecryption, got %v", err)
			}
			if got != nil {
				t.Errorf("expected no plaintext on failure, got %q", got)
			}
		})
	}
}

func TestKeyFromSecret(t *testing.T) {
	if _, err := KeyFromSecret(""); !errors.Is(err, ErrNoKey) {
		t.Errorf("expected ErrNoKey, got %v", err)
	}

	raw, _ := GenerateKey()
	encoded := EncodeKey(raw)
	k1, err := KeyFromSecret(encoded)
	if err != nil {
		t.Fatalf("KeyFromSecret failed: %v", err)
	}
	if len(k1) != KeySize {
		t.Errorf("expected %d bytes, got %d", KeySize, len(k1))
	}
	if bytes.Equal(k1, raw) {
		t.Error("raw key material should be expanded, not used verbatim")
	}
	k2, _ := KeyFromSecret(encoded)
	if !bytes.Equal(k1, k2) {
		t.Error("key derivation should be deterministic")
	}

	p1, err := KeyFromSecret("correct horse battery staple")
	if err != nil {
		t.Fatalf("KeyFromSecret passphrase failed: %v", err)
	}
	p2, _ := KeyFromSecret("correct horse battery staple")
	if !bytes.Equal(p1, p2) {
		t.Error("passphrase derivation should be deterministic")
	}
	p3, _ := KeyFromSecret("correct horse battery stapler")
	if bytes.Equal(p1, p3) {
		t.Error("different passphrases should yield different keys")
	}
}

func TestPassphraseCiphersAreIncompatible(t *testing.T) {
	k1, _ := KeyFromSecret("first passphrase")
	k2, _ := KeyFromSecret("second passphrase")
	c1, _ := NewCipher(k1)
	c2, _ := NewCipher(k2)

	ct, _ := c1.Encrypt([]byte("Secr3t!"))
	if _, err := c2.Decrypt(ct); !errors.Is(err, ErrDecryption) {
		t.Errorf("expected ErrDecryption, got %v", err)
	}
}
