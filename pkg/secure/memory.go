// Package secure collects helpers for handling sensitive byte buffers.
package secure

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"runtime"
)

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// ClearBytes zeroes *b and drops the reference.
func ClearBytes(b *[]byte) {
	if b == nil || *b == nil {
		return
	}
	Zero(*b)
	*b = nil
}

// ConstantTimeCompare reports whether x and y are equal in time that
// depends only on their lengths.
func ConstantTimeCompare(x, y []byte) bool {
	if len(x) != len(y) {
		return false
	}
	return subtle.ConstantTimeCompare(x, y) == 1
}

// XOR returns a ^ b. Both slices must have the same length.
func XOR(a, b []byte) []byte {
	if len(a) != len(b) {
		panic("secure: XOR operands must have same length")
	}
	out := make([]byte, len(a))
	subtle.XORBytes(out, a, b)
	return out
}

// Random reads n bytes from r, or from crypto/rand when r is nil.
func Random(r io.Reader, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid length: %d", n)
	}
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		Zero(b)
		return nil, fmt.Errorf("failed to generate secure random bytes: %w", err)
	}
	return b, nil
}
