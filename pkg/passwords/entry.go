package passwords

// SaltSize is the length of every per-entry salt.
const SaltSize = 16

// Entry is one protected record of an account. It is either a
// ShieldedEntry or a SharedEntry.
type Entry interface {
	// ShareIndex is the share number of the entry, 0 for shielded entries.
	ShareIndex() byte
	// EntrySalt is the random salt hashed in front of the password.
	EntrySalt() []byte
	// Protected is the stored protected hash including trailing partial bytes.
	Protected() []byte
}

// ShieldedEntry holds a salted hash sealed under the master key.
type ShieldedEntry struct {
	Salt   []byte
	Sealed []byte
}

func (e *ShieldedEntry) ShareIndex() byte  { return 0 }
func (e *ShieldedEntry) EntrySalt() []byte { return e.Salt }
func (e *ShieldedEntry) Protected() []byte { return e.Sealed }

// SharedEntry holds a salted hash XORed with the share at Index.
type SharedEntry struct {
	Index  byte
	Salt   []byte
	Masked []byte
}

func (e *SharedEntry) ShareIndex() byte  { return e.Index }
func (e *SharedEntry) EntrySalt() []byte { return e.Salt }
func (e *SharedEntry) Protected() []byte { return e.Masked }

// splitProtected separates the protected body from the trailing partial
// verification bytes.
func splitProtected(protected []byte, partial int) (body, tail []byte) {
	cut := len(protected) - partial
	return protected[:cut], protected[cut:]
}
