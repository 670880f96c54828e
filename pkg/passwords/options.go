package passwords

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"log/slog"

	"github.com/Davincible/polypasshash/pkg/crypto/shield"
)

const (
	// MaxPartialBytes is the largest number of trailing hash bytes that may
	// be kept in the clear. It equals the hash size.
	MaxPartialBytes = shield.KeySize

	// DefaultVerifierIterations is the PBKDF2 round count of the secret
	// integrity verifier.
	DefaultVerifierIterations = 100000
)

type options struct {
	partialBytes       int
	partialBytesSet    bool
	cipher             shield.Cipher
	cipherSet          bool
	random             io.Reader
	newHash            func() hash.Hash
	logger             *slog.Logger
	verifierIterations int
	observer           Observer
}

// Observer is notified of store operations, e.g. to export metrics. Calls
// are made while the store lock is held and must not call back into the
// store.
type Observer interface {
	LoginChecked(unlocked, valid bool)
	UnlockAttempted(err error)
	AccountCreated(shares int)
}

type nopObserver struct{}

func (nopObserver) LoginChecked(bool, bool) {}
func (nopObserver) UnlockAttempted(error)   {}
func (nopObserver) AccountCreated(int)      {}

// Option configures a Store.
type Option func(*options)

// WithPartialBytes keeps the last n bytes of every salted hash unprotected
// so that logins can be partially verified while the store is locked. Each
// exposed byte makes offline guessing of that account's password easier.
func WithPartialBytes(n int) Option {
	return func(o *options) {
		o.partialBytes = n
		o.partialBytesSet = true
	}
}

// WithCipher selects the cipher for shielded accounts.
func WithCipher(c shield.Cipher) Option {
	return func(o *options) {
		o.cipher = c
		o.cipherSet = true
	}
}

// WithRandom replaces crypto/rand as the source of salts, keys and
// polynomial coefficients.
func WithRandom(r io.Reader) Option {
	return func(o *options) {
		o.random = r
	}
}

// WithHash replaces SHA-256 as the salted password hash. The digest must be
// 32 bytes long.
func WithHash(h func() hash.Hash) Option {
	return func(o *options) {
		o.newHash = h
	}
}

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithVerifierIterations sets the PBKDF2 rounds of the secret verifier
// written with new password data. Zero disables the verifier.
func WithVerifierIterations(n int) Option {
	return func(o *options) {
		o.verifierIterations = n
	}
}

// WithObserver registers an observer for logins, unlocks and new accounts.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

func buildOptions(opts []Option) (*options, error) {
	o := &options{
		cipher:             shield.Default(),
		random:             rand.Reader,
		newHash:            sha256.New,
		verifierIterations: DefaultVerifierIterations,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.random == nil {
		o.random = rand.Reader
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.partialBytes < 0 || o.partialBytes > MaxPartialBytes {
		return nil, fmt.Errorf("%w: partial bytes must be between 0 and %d, got %d",
			ErrInvalidConfig, MaxPartialBytes, o.partialBytes)
	}
	if o.cipher == nil {
		return nil, fmt.Errorf("%w: cipher cannot be nil", ErrInvalidConfig)
	}
	if o.newHash == nil {
		return nil, fmt.Errorf("%w: hash cannot be nil", ErrInvalidConfig)
	}
	if size := o.newHash().Size(); size != shield.KeySize {
		return nil, fmt.Errorf("%w: hash must produce %d bytes, got %d",
			ErrInvalidConfig, shield.KeySize, size)
	}
	if o.verifierIterations < 0 {
		return nil, fmt.Errorf("%w: verifier iterations cannot be negative", ErrInvalidConfig)
	}
	return o, nil
}
