// Package mnemonic generates account passphrases from the BIP-39 English
// word list.
package mnemonic

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Davincible/polypasshash/pkg/secure"
	"github.com/tyler-smith/go-bip39"
)

// ErrInvalidPhrase is returned for text that is not a BIP-39 phrase.
var ErrInvalidPhrase = errors.New("invalid mnemonic phrase")

// entropyBits maps supported phrase lengths to their entropy.
var entropyBits = map[int]int{12: 128, 15: 160, 18: 192, 21: 224, 24: 256}

// Passphrase is a generated account password made of BIP-39 words.
type Passphrase struct {
	words []string
}

// Generate draws the entropy for a wordCount word phrase from rnd, or from
// crypto/rand when rnd is nil.
func Generate(wordCount int, rnd io.Reader) (*Passphrase, error) {
	bits, ok := entropyBits[wordCount]
	if !ok {
		return nil, fmt.Errorf("invalid word count: %d", wordCount)
	}

	entropy, err := secure.Random(rnd, bits/8)
	if err != nil {
		return nil, fmt.Errorf("failed to generate entropy: %w", err)
	}
	defer secure.Zero(entropy)

	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entropy: %w", err)
	}
	return &Passphrase{words: strings.Fields(phrase)}, nil
}

// Parse accepts a retyped phrase, tolerating extra whitespace, and checks
// its BIP-39 checksum.
func Parse(phrase string) (*Passphrase, error) {
	phrase = Normalize(phrase)
	if !bip39.IsMnemonicValid(phrase) {
		return nil, ErrInvalidPhrase
	}
	return &Passphrase{words: strings.Fields(phrase)}, nil
}

// String returns the phrase used as the account password.
func (p *Passphrase) String() string {
	return strings.Join(p.words, " ")
}

// Words returns a copy of the individual words.
func (p *Passphrase) Words() []string {
	return append([]string(nil), p.words...)
}

func (p *Passphrase) Len() int {
	return len(p.words)
}

// EntropyBits is the strength of the phrase against guessing.
func (p *Passphrase) EntropyBits() int {
	return entropyBits[len(p.words)]
}

// Normalize collapses runs of whitespace so a retyped phrase matches the
// generated one.
func Normalize(phrase string) string {
	return strings.Join(strings.Fields(phrase), " ")
}

// IsValid reports whether phrase is a valid BIP-39 phrase once normalized.
func IsValid(phrase string) bool {
	return bip39.IsMnemonicValid(Normalize(phrase))
}

// ValidWordCount reports whether Generate supports n words.
func ValidWordCount(n int) bool {
	_, ok := entropyBits[n]
	return ok
}
