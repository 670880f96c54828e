package shield

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"fmt"

	"github.com/Davincible/polypasshash/pkg/secure"
)

const (
	// LegacyCBCName is the persisted name of LegacyCBC.
	LegacyCBCName = "aes-256-cbc"

	// evpIterations matches OpenSSL's PKCS5_keyivgen default count.
	evpIterations = 2048
)

// LegacyCBC is AES-256-CBC with key and IV derived from the master key by
// OpenSSL's EVP_BytesToKey (MD5, no salt). Encryption is deterministic, so
// Match re-seals and compares. Kept for compatibility with existing password
// files; new stores should prefer XChaCha.
type LegacyCBC struct{}

func (LegacyCBC) Name() string { return LegacyCBCName }

func (LegacyCBC) Seal(key, plaintext []byte) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	derived := bytesToKey(key, KeySize+aes.BlockSize)
	defer secure.Zero(derived)

	block, err := aes.NewCipher(derived[:KeySize])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	defer secure.Zero(padded)

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, derived[KeySize:]).CryptBlocks(out, padded)
	return out, nil
}

func (c LegacyCBC) Match(key, plaintext, sealed []byte) (bool, error) {
	expected, err := c.Seal(key, plaintext)
	if err != nil {
		return false, err
	}
	return secure.ConstantTimeCompare(expected, sealed), nil
}

// bytesToKey is EVP_BytesToKey with MD5, no salt and evpIterations rounds:
// D_i = MD5^n(D_{i-1} || password), concatenated until n bytes are produced.
func bytesToKey(password []byte, n int) []byte {
	var out, prev []byte
	for len(out) < n {
		h := md5.New()
		h.Write(prev)
		h.Write(password)
		digest := h.Sum(nil)
		for i := 1; i < evpIterations; i++ {
			sum := md5.Sum(digest)
			digest = sum[:]
		}
		out = append(out, digest...)
		prev = digest
	}
	return out[:n]
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	out := make([]byte, len(data), len(data)+padding)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(padding)}, padding)...)
}
