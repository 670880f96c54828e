// Package shield encrypts the salted hashes of shielded accounts, i.e.
// accounts that hold no share and are protected by the master key alone.
package shield

import (
	"fmt"
	"sort"
)

// KeySize is the master key length every Cipher expects.
const KeySize = 32

// Cipher seals a salted password hash under the master key and checks a
// candidate hash against a sealed value.
type Cipher interface {
	// Name identifies the cipher in persisted password data.
	Name() string
	// Seal encrypts plaintext under key.
	Seal(key, plaintext []byte) ([]byte, error)
	// Match reports whether sealed is an encryption of plaintext under key.
	Match(key, plaintext, sealed []byte) (bool, error)
}

// cipherRegistry maps persisted names to ciphers.
var cipherRegistry = map[string]Cipher{
	LegacyCBCName: LegacyCBC{},
	XChaChaName:   XChaCha{},
}

// Default returns the cipher used when none is configured.
func Default() Cipher {
	return LegacyCBC{}
}

// ByName looks up a cipher by its persisted name.
func ByName(name string) (Cipher, error) {
	c, ok := cipherRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown shield cipher %q (available: %v)", name, Names())
	}
	return c, nil
}

// Names lists the registered cipher names in sorted order.
func Names() []string {
	names := make([]string, 0, len(cipherRegistry))
	for name := range cipherRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func checkKey(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("invalid key size: expected %d, got %d", KeySize, len(key))
	}
	return nil
}
