package shield

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/Davincible/polypasshash/pkg/secure"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// XChaChaName is the persisted name of XChaCha.
const XChaChaName = "xchacha20-poly1305"

// hkdfInfo binds the derived key to this use of the master key.
var hkdfInfo = []byte("polypasshash shielded account v1")

// XChaCha seals with XChaCha20-Poly1305 under a key derived from the master
// key with HKDF-SHA256. Every Seal draws a fresh random nonce, so Match opens
// the sealed value instead of re-encrypting.
type XChaCha struct {
	// Rand overrides the nonce source; crypto/rand is used when nil.
	Rand io.Reader
}

func (XChaCha) Name() string { return XChaChaName }

func (x XChaCha) Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := x.aead(key)
	if err != nil {
		return nil, err
	}

	r := x.Rand
	if r == nil {
		r = rand.Reader
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(r, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (x XChaCha) Match(key, plaintext, sealed []byte) (bool, error) {
	opened, err := x.Open(key, sealed)
	if err != nil {
		// A forged or foreign value is a mismatch, not a fault.
		return false, nil
	}
	defer secure.Zero(opened)
	return secure.ConstantTimeCompare(opened, plaintext), nil
}

// Open decrypts and authenticates a value produced by Seal.
func (x XChaCha) Open(key, sealed []byte) ([]byte, error) {
	aead, err := x.aead(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("sealed data too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func (XChaCha) aead(key []byte) (cipher.AEAD, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	derived := make([]byte, chacha20poly1305.KeySize)
	defer secure.Zero(derived)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, hkdfInfo), derived); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return aead, nil
}
