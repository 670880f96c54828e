// Package passwords stores password hashes protected by a threshold of
// other passwords (PolyPasswordHasher).
//
// Every account entry holds either a salted password hash XORed with one
// Shamir share of a 32-byte master key, or a salted hash sealed under that
// key. Persisted data alone does not allow validating a single password:
// the store starts locked and only unlocks once the passwords behind at
// least threshold shares are supplied, after which all accounts can be
// verified and new accounts created.
package passwords

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/Davincible/polypasshash/pkg/crypto/shamir"
	"github.com/Davincible/polypasshash/pkg/crypto/shield"
	"github.com/Davincible/polypasshash/pkg/secure"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("passwords: store is closed")

// Credential is a username and password pair used to unlock a store.
type Credential struct {
	Username string
	Password string
}

// AccountInfo describes an account without any protected material.
type AccountInfo struct {
	Username string `json:"username"`
	Shares   []int  `json:"shares"`
	Shielded bool   `json:"shielded"`
}

// Store is a PolyPasswordHasher password store. It is safe for concurrent
// use.
type Store struct {
	mu sync.RWMutex

	id                 string
	threshold          int
	partialBytes       int
	cipher             shield.Cipher
	newHash            func() hash.Hash
	random             io.Reader
	logger             *slog.Logger
	observer           Observer
	verifierIterations int
	verifier           []byte

	accounts  map[string][]Entry
	nextShare int
	unlocked  bool
	closed    bool
	masterKey []byte
	sharer    *shamir.Sharer
}

// New creates an empty, unlocked store with a fresh random master key.
func New(threshold int, opts ...Option) (*Store, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	key, err := secure.Random(o.random, shield.KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}

	sharer, err := shamir.NewGenerator(threshold, key, o.random)
	if err != nil {
		secure.Zero(key)
		return nil, fmt.Errorf("failed to create sharer: %w", err)
	}

	s := &Store{
		id:                 uuid.NewString(),
		threshold:          threshold,
		partialBytes:       o.partialBytes,
		cipher:             o.cipher,
		newHash:            o.newHash,
		random:             o.random,
		logger:             o.logger,
		observer:           o.observer,
		verifierIterations: o.verifierIterations,
		accounts:           make(map[string][]Entry),
		nextShare:          1,
		unlocked:           true,
		masterKey:          key,
		sharer:             sharer,
	}
	if s.verifierIterations > 0 {
		s.verifier = s.computeVerifier(key)
	}

	s.logger.Debug("created password store",
		"id", s.id, "threshold", threshold, "partial_bytes", s.partialBytes, "cipher", s.cipher.Name())
	return s, nil
}

// Load reads persisted password data. The returned store is locked until
// UnlockPasswordData succeeds. Partial bytes and cipher are taken from the
// data; options that contradict it are rejected.
func Load(threshold int, r io.Reader, opts ...Option) (*Store, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	data, err := decode(r)
	if err != nil {
		return nil, err
	}
	if data.Threshold != threshold {
		return nil, fmt.Errorf("%w: expected %d, data has %d", ErrThresholdMismatch, threshold, data.Threshold)
	}
	if o.partialBytesSet && o.partialBytes != data.PartialBytes {
		return nil, fmt.Errorf("%w: partial bytes %d requested, data has %d",
			ErrInvalidConfig, o.partialBytes, data.PartialBytes)
	}

	cipher, err := shield.ByName(data.Cipher)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if o.cipherSet && o.cipher.Name() != cipher.Name() {
		return nil, fmt.Errorf("%w: cipher %s requested, data uses %s",
			ErrInvalidConfig, o.cipher.Name(), cipher.Name())
	}
	if o.cipherSet {
		// keep caller-supplied settings such as a custom nonce source
		cipher = o.cipher
	}

	accounts, maxShare, err := data.entries()
	if err != nil {
		return nil, err
	}

	sharer, err := shamir.NewRecoverer(threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to create sharer: %w", err)
	}

	s := &Store{
		id:                 data.ID,
		threshold:          threshold,
		partialBytes:       data.PartialBytes,
		cipher:             cipher,
		newHash:            o.newHash,
		random:             o.random,
		logger:             o.logger,
		observer:           o.observer,
		verifierIterations: data.VerifierIterations,
		verifier:           data.Verifier,
		accounts:           accounts,
		nextShare:          maxShare + 1,
		sharer:             sharer,
	}

	s.logger.Debug("loaded password store",
		"id", s.id, "accounts", len(accounts), "next_share", s.nextShare)
	return s, nil
}

// CreateAccount adds an account protected by shares consecutive shares, or
// a shielded account when shares is 0. The store must be unlocked. Either
// all entries of the account are stored or none.
func (s *Store) CreateAccount(username, password string, shares int) error {
	if username == "" {
		return ErrInvalidUsername
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.unlocked {
		return ErrLocked
	}
	if _, exists := s.accounts[username]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateUser, username)
	}
	if shares < 0 || s.nextShare-1+shares > shamir.MaxShares {
		return fmt.Errorf("%w: %d requested, %d available",
			ErrCapacityExceeded, shares, shamir.MaxShares-(s.nextShare-1))
	}

	var entries []Entry
	if shares == 0 {
		entry, err := s.shieldedEntry(password)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	for i := 0; i < shares; i++ {
		entry, err := s.sharedEntry(byte(s.nextShare+i), password)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	s.accounts[username] = entries
	s.nextShare += shares
	s.observer.AccountCreated(shares)

	s.logger.Debug("created account", "username", username, "shares", shares)
	return nil
}

func (s *Store) shieldedEntry(password string) (*ShieldedEntry, error) {
	salt, err := secure.Random(s.random, SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	salted := s.saltedHash(salt, password)
	defer secure.Zero(salted)

	sealed, err := s.cipher.Seal(s.masterKey, salted)
	if err != nil {
		return nil, fmt.Errorf("failed to seal password hash: %w", err)
	}

	return &ShieldedEntry{Salt: salt, Sealed: append(sealed, s.partialTail(salted)...)}, nil
}

func (s *Store) sharedEntry(index byte, password string) (*SharedEntry, error) {
	share, err := s.sharer.ComputeShare(index)
	if err != nil {
		return nil, fmt.Errorf("failed to compute share %d: %w", index, err)
	}
	defer secure.Zero(share.Data)

	salt, err := secure.Random(s.random, SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	salted := s.saltedHash(salt, password)
	defer secure.Zero(salted)

	masked := secure.XOR(salted, share.Data)
	return &SharedEntry{Index: index, Salt: salt, Masked: append(masked, s.partialTail(salted)...)}, nil
}

// IsValidLogin reports whether password is correct for username. Every
// entry of the account must verify. While locked only the partial bytes can
// be compared, and without partial bytes ErrLocked is returned.
func (s *Store) IsValidLogin(username, password string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrClosed
	}
	if !s.unlocked && s.partialBytes == 0 {
		return false, fmt.Errorf("%w and partial verification is disabled", ErrLocked)
	}

	entries, ok := s.accounts[username]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownUser, username)
	}

	valid := true
	for _, entry := range entries {
		ok, err := s.checkEntry(username, entry, password)
		if err != nil {
			return false, err
		}
		if !ok {
			valid = false
			break
		}
	}
	s.observer.LoginChecked(s.unlocked, valid)
	return valid, nil
}

func (s *Store) checkEntry(username string, entry Entry, password string) (bool, error) {
	salted := s.saltedHash(entry.EntrySalt(), password)
	defer secure.Zero(salted)

	body, tail := splitProtected(entry.Protected(), s.partialBytes)
	partialMatch := s.partialBytes > 0 && secure.ConstantTimeCompare(s.partialTail(salted), tail)

	if !s.unlocked {
		return partialMatch, nil
	}

	var (
		valid bool
		err   error
	)
	switch e := entry.(type) {
	case *ShieldedEntry:
		valid, err = s.cipher.Match(s.masterKey, salted, body)
	case *SharedEntry:
		candidate := shamir.Share{Index: e.Index, Data: secure.XOR(body, salted)}
		valid, err = s.sharer.IsValidShare(candidate)
		secure.Zero(candidate.Data)
	default:
		return false, fmt.Errorf("%w: unexpected entry type %T", ErrInvalidData, entry)
	}
	if err != nil {
		return false, fmt.Errorf("failed to verify entry %d: %w", entry.ShareIndex(), err)
	}

	if !valid && partialMatch {
		s.logger.Warn("partial verification matches but full hash does not, this might be a break-in",
			"username", username, "share", entry.ShareIndex())
	}
	return valid, nil
}

// UnlockPasswordData reconstructs the master key from the shares behind the
// given credentials. Shielded entries contribute nothing. On any failure the
// store stays locked and unchanged.
func (s *Store) UnlockPasswordData(credentials []Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.unlocked {
		return ErrAlreadyUnlocked
	}

	err := s.unlock(credentials)
	s.observer.UnlockAttempted(err)
	return err
}

func (s *Store) unlock(credentials []Credential) error {
	var shares []shamir.Share
	defer func() {
		for _, share := range shares {
			secure.Zero(share.Data)
		}
	}()

	for _, cred := range credentials {
		entries, ok := s.accounts[cred.Username]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownUser, cred.Username)
		}
		for _, entry := range entries {
			shared, ok := entry.(*SharedEntry)
			if !ok {
				continue
			}
			salted := s.saltedHash(shared.Salt, cred.Password)
			body, _ := splitProtected(shared.Masked, s.partialBytes)
			shares = append(shares, shamir.Share{Index: shared.Index, Data: secure.XOR(body, salted)})
			secure.Zero(salted)
		}
	}

	sharer, err := shamir.NewRecoverer(s.threshold)
	if err != nil {
		return fmt.Errorf("failed to create sharer: %w", err)
	}
	secret, err := sharer.RecoverSecret(shares)
	if err != nil {
		return fmt.Errorf("failed to recover secret: %w", err)
	}

	if s.verifier != nil && !secure.ConstantTimeCompare(s.computeVerifier(secret), s.verifier) {
		sharer.Destroy()
		secure.Zero(secret)
		return ErrWrongSecret
	}

	s.sharer = sharer
	s.masterKey = secret
	s.unlocked = true

	s.logger.Info("unlocked password data", "id", s.id, "shares", len(shares))
	return nil
}

// WritePasswordData persists the accounts to w. It refuses while fewer than
// threshold shares have been issued, since the data could never be unlocked.
func (s *Store) WritePasswordData(w io.Writer) error {
	data, err := s.PasswordData()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write password data: %w", err)
	}
	return nil
}

// PasswordData returns the serialized accounts, see WritePasswordData.
func (s *Store) PasswordData() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.threshold >= s.nextShare {
		return nil, fmt.Errorf("%w: %d issued, threshold %d", ErrUnrecoverable, s.nextShare-1, s.threshold)
	}
	return encode(s.snapshot())
}

// IsUnlocked reports whether the master key is known.
func (s *Store) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unlocked
}

// ID returns the identifier of the password data.
func (s *Store) ID() string {
	return s.id
}

// Threshold returns the number of shares needed to unlock.
func (s *Store) Threshold() int {
	return s.threshold
}

// PartialBytes returns the number of unprotected trailing hash bytes.
func (s *Store) PartialBytes() int {
	return s.partialBytes
}

// Cipher returns the name of the shielded account cipher.
func (s *Store) Cipher() string {
	return s.cipher.Name()
}

// NextShare returns the share number the next shared entry will receive.
func (s *Store) NextShare() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextShare
}

// Accounts lists all accounts sorted by username.
func (s *Store) Accounts() []AccountInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]AccountInfo, 0, len(s.accounts))
	for username, entries := range s.accounts {
		info := AccountInfo{Username: username}
		for _, entry := range entries {
			switch e := entry.(type) {
			case *ShieldedEntry:
				info.Shielded = true
			case *SharedEntry:
				info.Shares = append(info.Shares, int(e.Index))
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Username < infos[j].Username
	})
	return infos
}

// Close wipes the master key and polynomials. The store cannot be used
// afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	secure.ClearBytes(&s.masterKey)
	s.sharer.Destroy()
	s.unlocked = false
	s.closed = true
	return nil
}

func (s *Store) saltedHash(salt []byte, password string) []byte {
	h := s.newHash()
	h.Write(salt)
	h.Write([]byte(password))
	return h.Sum(nil)
}

func (s *Store) partialTail(salted []byte) []byte {
	return salted[len(salted)-s.partialBytes:]
}

func (s *Store) computeVerifier(secret []byte) []byte {
	return pbkdf2.Key(secret, []byte(s.id), s.verifierIterations, sha256.Size, sha256.New)
}
