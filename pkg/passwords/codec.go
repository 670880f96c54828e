package passwords

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Davincible/polypasshash/pkg/crypto/shamir"
	"github.com/Davincible/polypasshash/pkg/crypto/shield"
	"github.com/google/uuid"
)

// FormatVersion is the version of the persisted password data layout.
const FormatVersion = 1

// maxDataSize bounds the persisted data read by Load.
const maxDataSize = 64 << 20

type passwordData struct {
	Version            int                 `json:"version"`
	ID                 string              `json:"id"`
	Threshold          int                 `json:"threshold"`
	PartialBytes       int                 `json:"partial_bytes"`
	Cipher             string              `json:"cipher"`
	VerifierIterations int                 `json:"verifier_iterations,omitempty"`
	Verifier           []byte              `json:"verifier,omitempty"`
	Accounts           map[string][]record `json:"accounts"`
}

type record struct {
	Share    int    `json:"share"`
	Salt     []byte `json:"salt"`
	PassHash []byte `json:"passhash"`
}

// snapshot copies the store into its persisted form. The caller holds s.mu.
func (s *Store) snapshot() *passwordData {
	data := &passwordData{
		Version:      FormatVersion,
		ID:           s.id,
		Threshold:    s.threshold,
		PartialBytes: s.partialBytes,
		Cipher:       s.cipher.Name(),
		Accounts:     make(map[string][]record, len(s.accounts)),
	}
	if s.verifier != nil {
		data.VerifierIterations = s.verifierIterations
		data.Verifier = s.verifier
	}

	for username, entries := range s.accounts {
		records := make([]record, 0, len(entries))
		for _, entry := range entries {
			records = append(records, record{
				Share:    int(entry.ShareIndex()),
				Salt:     entry.EntrySalt(),
				PassHash: entry.Protected(),
			})
		}
		data.Accounts[username] = records
	}
	return data
}

// encode marshals password data. Account names are emitted in sorted order
// so the output is deterministic.
func encode(data *passwordData) ([]byte, error) {
	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode password data: %w", err)
	}
	return out, nil
}

func decode(r io.Reader) (*passwordData, error) {
	var data passwordData
	dec := json.NewDecoder(io.LimitReader(r, maxDataSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if err := data.validate(); err != nil {
		return nil, err
	}
	return &data, nil
}

func (d *passwordData) validate() error {
	if d.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidData, d.Version)
	}
	if _, err := uuid.Parse(d.ID); err != nil {
		return fmt.Errorf("%w: invalid id: %v", ErrInvalidData, err)
	}
	if d.Threshold < 1 || d.Threshold > shamir.MaxShares {
		return fmt.Errorf("%w: threshold %d out of range", ErrInvalidData, d.Threshold)
	}
	if d.PartialBytes < 0 || d.PartialBytes > MaxPartialBytes {
		return fmt.Errorf("%w: partial bytes %d out of range", ErrInvalidData, d.PartialBytes)
	}
	if d.Verifier != nil {
		if len(d.Verifier) != shield.KeySize {
			return fmt.Errorf("%w: verifier has %d bytes", ErrInvalidData, len(d.Verifier))
		}
		if d.VerifierIterations < 1 {
			return fmt.Errorf("%w: verifier without iterations", ErrInvalidData)
		}
	}
	if d.Accounts == nil {
		return fmt.Errorf("%w: missing accounts", ErrInvalidData)
	}
	return nil
}

// entries converts persisted records into store entries and returns the
// highest share number in use.
func (d *passwordData) entries() (map[string][]Entry, int, error) {
	var (
		accounts = make(map[string][]Entry, len(d.Accounts))
		seen     [shamir.MaxShares + 1]bool
		maxShare int
	)

	for username, records := range d.Accounts {
		if username == "" {
			return nil, 0, fmt.Errorf("%w: empty username", ErrInvalidData)
		}
		if len(records) == 0 {
			return nil, 0, fmt.Errorf("%w: account %q has no entries", ErrInvalidData, username)
		}

		entries := make([]Entry, 0, len(records))
		for _, rec := range records {
			if len(rec.Salt) != SaltSize {
				return nil, 0, fmt.Errorf("%w: account %q has a %d byte salt", ErrInvalidData, username, len(rec.Salt))
			}

			switch {
			case rec.Share == 0:
				if len(records) != 1 {
					return nil, 0, fmt.Errorf("%w: account %q mixes shielded and shared entries", ErrInvalidData, username)
				}
				if len(rec.PassHash) <= d.PartialBytes {
					return nil, 0, fmt.Errorf("%w: account %q has a truncated hash", ErrInvalidData, username)
				}
				entries = append(entries, &ShieldedEntry{Salt: rec.Salt, Sealed: rec.PassHash})

			case rec.Share > 0 && rec.Share <= shamir.MaxShares:
				if seen[rec.Share] {
					return nil, 0, fmt.Errorf("%w: share %d used twice", ErrInvalidData, rec.Share)
				}
				seen[rec.Share] = true
				if len(rec.PassHash) != shield.KeySize+d.PartialBytes {
					return nil, 0, fmt.Errorf("%w: share %d has a %d byte hash", ErrInvalidData, rec.Share, len(rec.PassHash))
				}
				maxShare = max(maxShare, rec.Share)
				entries = append(entries, &SharedEntry{Index: byte(rec.Share), Salt: rec.Salt, Masked: rec.PassHash})

			default:
				return nil, 0, fmt.Errorf("%w: share number %d out of range", ErrInvalidData, rec.Share)
			}
		}
		accounts[username] = entries
	}
	return accounts, maxShare, nil
}

// Header is the unprotected metadata of persisted password data.
type Header struct {
	ID           string `json:"id"`
	Threshold    int    `json:"threshold"`
	PartialBytes int    `json:"partial_bytes"`
	Cipher       string `json:"cipher"`
	Accounts     int    `json:"accounts"`
}

// ReadHeader decodes and validates persisted data without building a store,
// e.g. to learn the threshold before calling Load.
func ReadHeader(r io.Reader) (*Header, error) {
	data, err := decode(r)
	if err != nil {
		return nil, err
	}
	return &Header{
		ID:           data.ID,
		Threshold:    data.Threshold,
		PartialBytes: data.PartialBytes,
		Cipher:       data.Cipher,
		Accounts:     len(data.Accounts),
	}, nil
}
