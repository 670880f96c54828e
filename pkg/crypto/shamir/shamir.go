// Package shamir implements incremental Shamir secret sharing over GF(256).
//
// Every byte of the secret is shared with its own random polynomial of
// degree threshold-1. Unlike one-shot split/combine APIs, a Sharer keeps its
// polynomials around: it can emit shares one at a time while generating, and
// after recovery it can check any further share against the interpolated
// polynomials.
package shamir

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"github.com/Davincible/polypasshash/pkg/crypto/gf256"
	"github.com/Davincible/polypasshash/pkg/secure"
)

// MaxShares is the number of non-zero points available in GF(256).
const MaxShares = 255

var (
	ErrInvalidThreshold   = errors.New("shamir: threshold must be between 1 and 255")
	ErrInvalidMode        = errors.New("shamir: operation not valid in current mode")
	ErrInvalidIndex       = errors.New("shamir: share index must be between 1 and 255")
	ErrInsufficientShares = errors.New("shamir: insufficient shares")
	ErrDuplicateShare     = errors.New("shamir: duplicate share index")
	ErrShareLength        = errors.New("shamir: share length mismatch")
	ErrInconsistentShares = errors.New("shamir: shares do not lie on one polynomial")
	ErrEmptySecret        = errors.New("shamir: secret cannot be empty")
)

// Share is one point of every byte polynomial, evaluated at x = Index.
type Share struct {
	Index byte
	Data  []byte
}

// Mode is the lifecycle state of a Sharer.
type Mode int

const (
	// Generating means the secret is known and shares can be produced.
	Generating Mode = iota
	// Awaiting means the secret is unknown until enough shares arrive.
	Awaiting
	// Recovered means the secret was interpolated from shares.
	Recovered
)

func (m Mode) String() string {
	switch m {
	case Generating:
		return "generating"
	case Awaiting:
		return "awaiting"
	case Recovered:
		return "recovered"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Sharer holds the per-byte polynomials of one secret.
type Sharer struct {
	threshold int
	mode      Mode
	// coefficients[i] is the polynomial of secret byte i, constant term first
	coefficients [][]byte
	secret       []byte
}

// NewGenerator creates a Sharer for a known secret. The threshold-1 higher
// coefficients of every byte polynomial are read from rnd.
func NewGenerator(threshold int, secret []byte, rnd io.Reader) (*Sharer, error) {
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	random := make([]byte, len(secret)*(threshold-1))
	if _, err := io.ReadFull(rnd, random); err != nil {
		return nil, fmt.Errorf("failed to generate coefficients: %w", err)
	}
	defer secure.Zero(random)

	coefficients := make([][]byte, len(secret))
	for i, b := range secret {
		poly := make([]byte, threshold)
		poly[0] = b
		copy(poly[1:], random[i*(threshold-1):(i+1)*(threshold-1)])
		coefficients[i] = poly
	}

	s := &Sharer{
		threshold:    threshold,
		mode:         Generating,
		coefficients: coefficients,
		secret:       make([]byte, len(secret)),
	}
	copy(s.secret, secret)
	return s, nil
}

// NewRecoverer creates a Sharer that waits for threshold shares.
func NewRecoverer(threshold int) (*Sharer, error) {
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}
	return &Sharer{threshold: threshold, mode: Awaiting}, nil
}

func validateThreshold(threshold int) error {
	if threshold < 1 || threshold > MaxShares {
		return fmt.Errorf("%w, got %d", ErrInvalidThreshold, threshold)
	}
	return nil
}

// Threshold returns the number of shares needed for recovery.
func (s *Sharer) Threshold() int {
	return s.threshold
}

// Mode returns the current lifecycle state.
func (s *Sharer) Mode() Mode {
	return s.mode
}

// Secret returns a copy of the secret, or nil while awaiting shares.
func (s *Sharer) Secret() []byte {
	if s.secret == nil {
		return nil
	}
	out := make([]byte, len(s.secret))
	copy(out, s.secret)
	return out
}

// ComputeShare evaluates every byte polynomial at x = index. It is available
// once the polynomials are known, i.e. not while awaiting shares.
func (s *Sharer) ComputeShare(index byte) (Share, error) {
	if index == 0 {
		return Share{}, ErrInvalidIndex
	}
	if s.coefficients == nil {
		return Share{}, fmt.Errorf("%w: cannot compute share while %s", ErrInvalidMode, s.mode)
	}

	data := make([]byte, len(s.coefficients))
	for i, poly := range s.coefficients {
		data[i] = gf256.Eval(poly, index)
	}
	return Share{Index: index, Data: data}, nil
}

// RecoverSecret interpolates the secret from at least threshold shares with
// distinct indices. The polynomials are fixed by the first threshold shares;
// any further shares must lie on them. On failure the Sharer is unchanged.
func (s *Sharer) RecoverSecret(shares []Share) ([]byte, error) {
	if s.mode != Awaiting {
		return nil, fmt.Errorf("%w: cannot recover while %s", ErrInvalidMode, s.mode)
	}
	if err := checkShares(shares); err != nil {
		return nil, err
	}
	if len(shares) < s.threshold {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientShares, len(shares), s.threshold)
	}

	basis := shares[:s.threshold]
	xs := make([]byte, len(basis))
	for i, share := range basis {
		xs[i] = share.Index
	}

	length := len(shares[0].Data)
	coefficients := make([][]byte, length)
	ys := make([]byte, len(basis))
	for pos := 0; pos < length; pos++ {
		for i, share := range basis {
			ys[i] = share.Data[pos]
		}
		coefficients[pos] = gf256.Interpolate(xs, ys)
	}
	secure.Zero(ys)

	candidate := &Sharer{threshold: s.threshold, mode: Recovered, coefficients: coefficients}
	for _, extra := range shares[s.threshold:] {
		if ok, _ := candidate.IsValidShare(extra); !ok {
			candidate.Destroy()
			return nil, fmt.Errorf("%w: share %d", ErrInconsistentShares, extra.Index)
		}
	}

	secret := make([]byte, length)
	for i, poly := range coefficients {
		secret[i] = poly[0]
	}

	s.coefficients = coefficients
	s.secret = secret
	s.mode = Recovered
	return s.Secret(), nil
}

// checkShares rejects empty input, zero or repeated indices and payloads of
// differing lengths.
func checkShares(shares []Share) error {
	if len(shares) == 0 {
		return fmt.Errorf("%w: no shares provided", ErrInsufficientShares)
	}

	var seen [256]bool
	length := len(shares[0].Data)
	if length == 0 {
		return fmt.Errorf("%w: share %d has empty data", ErrShareLength, shares[0].Index)
	}
	for _, share := range shares {
		if share.Index == 0 {
			return ErrInvalidIndex
		}
		if seen[share.Index] {
			return fmt.Errorf("%w: %d", ErrDuplicateShare, share.Index)
		}
		seen[share.Index] = true
		if len(share.Data) != length {
			return fmt.Errorf("%w: share %d has %d bytes, expected %d",
				ErrShareLength, share.Index, len(share.Data), length)
		}
	}
	return nil
}

// IsValidShare reports whether share lies on the known polynomials. It fails
// while the secret is still awaiting recovery.
func (s *Sharer) IsValidShare(share Share) (bool, error) {
	if s.coefficients == nil {
		return false, fmt.Errorf("%w: secret not yet recoverable", ErrInvalidMode)
	}
	if len(share.Data) != len(s.coefficients) {
		return false, fmt.Errorf("%w: got %d bytes, expected %d",
			ErrShareLength, len(share.Data), len(s.coefficients))
	}

	expected, err := s.ComputeShare(share.Index)
	if err != nil {
		return false, err
	}
	defer secure.Zero(expected.Data)

	return subtle.ConstantTimeCompare(expected.Data, share.Data) == 1, nil
}

// Destroy zeroes the polynomials and the secret. The Sharer returns to the
// awaiting state.
func (s *Sharer) Destroy() {
	for _, poly := range s.coefficients {
		secure.Zero(poly)
	}
	secure.Zero(s.secret)
	s.coefficients = nil
	s.secret = nil
	s.mode = Awaiting
}
