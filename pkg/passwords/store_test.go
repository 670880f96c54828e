package passwords

import (
	"bytes"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Davincible/polypasshash/pkg/crypto/shamir"
	"github.com/Davincible/polypasshash/pkg/crypto/shield"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, threshold int, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithVerifierIterations(10)}, opts...)
	s, err := New(threshold, opts...)
	require.NoError(t, err)
	return s
}

func reload(t *testing.T, s *Store, opts ...Option) *Store {
	t.Helper()
	data, err := s.PasswordData()
	require.NoError(t, err)

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	loaded, err := Load(s.Threshold(), bytes.NewReader(data), opts...)
	require.NoError(t, err)
	return loaded
}

func mustCreate(t *testing.T, s *Store, username, password string, shares int) {
	t.Helper()
	require.NoError(t, s.CreateAccount(username, password, shares))
}

func assertLogin(t *testing.T, s *Store, username, password string, want bool) {
	t.Helper()
	ok, err := s.IsValidLogin(username, password)
	require.NoError(t, err)
	assert.Equal(t, want, ok, "login %s/%s", username, password)
}

var testCiphers = []shield.Cipher{shield.LegacyCBC{}, shield.XChaCha{}}

func TestNew(t *testing.T) {
	s := newTestStore(t, 10)

	assert.True(t, s.IsUnlocked())
	assert.Equal(t, 10, s.Threshold())
	assert.Equal(t, 0, s.PartialBytes())
	assert.Equal(t, 1, s.NextShare())
	assert.Equal(t, shield.LegacyCBCName, s.Cipher())
	assert.Empty(t, s.Accounts())

	_, err := uuid.Parse(s.ID())
	assert.NoError(t, err)
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		opts      []Option
		wantErr   error
	}{
		{"zero threshold", 0, nil, shamir.ErrInvalidThreshold},
		{"threshold too large", 256, nil, shamir.ErrInvalidThreshold},
		{"negative partial bytes", 2, []Option{WithPartialBytes(-1)}, ErrInvalidConfig},
		{"too many partial bytes", 2, []Option{WithPartialBytes(33)}, ErrInvalidConfig},
		{"wrong hash size", 2, []Option{WithHash(sha512.New)}, ErrInvalidConfig},
		{"nil cipher", 2, []Option{WithCipher(nil)}, ErrInvalidConfig},
		{"negative iterations", 2, []Option{WithVerifierIterations(-1)}, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.threshold, tt.opts...)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFreshStoreLogins(t *testing.T) {
	for _, c := range testCiphers {
		t.Run(c.Name(), func(t *testing.T) {
			s := newTestStore(t, 10, WithCipher(c), WithPartialBytes(2))

			mustCreate(t, s, "admin", "correct horse", 5)
			mustCreate(t, s, "root", "battery staple", 5)
			mustCreate(t, s, "superuser", "password", 0)
			mustCreate(t, s, "alice", "kitten", 1)

			assertLogin(t, s, "admin", "correct horse", true)
			assertLogin(t, s, "admin", "correct horsf", false)
			assertLogin(t, s, "root", "battery staple", true)
			assertLogin(t, s, "superuser", "password", true)
			assertLogin(t, s, "superuser", "Password", false)
			assertLogin(t, s, "alice", "kitten", true)
			assertLogin(t, s, "alice", "puppy", false)

			assert.Equal(t, 12, s.NextShare())
		})
	}
}

func TestPersistAndUnlock(t *testing.T) {
	for _, c := range testCiphers {
		t.Run(c.Name(), func(t *testing.T) {
			s := newTestStore(t, 10, WithCipher(c), WithPartialBytes(2))
			mustCreate(t, s, "admin", "correct horse", 5)
			mustCreate(t, s, "root", "battery staple", 5)
			mustCreate(t, s, "superuser", "password", 0)
			mustCreate(t, s, "alice", "kitten", 1)

			loaded := reload(t, s)
			assert.False(t, loaded.IsUnlocked())
			assert.Equal(t, s.ID(), loaded.ID())
			assert.Equal(t, 12, loaded.NextShare())
			assert.Equal(t, 2, loaded.PartialBytes())
			assert.Equal(t, c.Name(), loaded.Cipher())

			// partial verification while locked
			assertLogin(t, loaded, "admin", "correct horse", true)
			assertLogin(t, loaded, "admin", "wrong", false)
			assertLogin(t, loaded, "superuser", "password", true)

			err := loaded.CreateAccount("bob", "secret", 1)
			assert.ErrorIs(t, err, ErrLocked)

			require.NoError(t, loaded.UnlockPasswordData([]Credential{
				{Username: "admin", Password: "correct horse"},
				{Username: "root", Password: "battery staple"},
			}))
			assert.True(t, loaded.IsUnlocked())

			assertLogin(t, loaded, "admin", "correct horse", true)
			assertLogin(t, loaded, "root", "battery staple", true)
			assertLogin(t, loaded, "superuser", "password", true)
			assertLogin(t, loaded, "superuser", "passw0rd", false)
			assertLogin(t, loaded, "alice", "kitten", true)
			assertLogin(t, loaded, "alice", "puppy", false)

			mustCreate(t, loaded, "bob", "secret", 1)
			assertLogin(t, loaded, "bob", "secret", true)
			assert.Equal(t, 13, loaded.NextShare())
		})
	}
}

func TestUnlockWithExtraShares(t *testing.T) {
	s := newTestStore(t, 3)
	mustCreate(t, s, "admin", "a", 2)
	mustCreate(t, s, "root", "b", 2)
	mustCreate(t, s, "alice", "c", 1)

	loaded := reload(t, s)
	require.NoError(t, loaded.UnlockPasswordData([]Credential{
		{Username: "admin", Password: "a"},
		{Username: "root", Password: "b"},
		{Username: "alice", Password: "c"},
	}))
	assertLogin(t, loaded, "alice", "c", true)
}

func TestUnlockFailures(t *testing.T) {
	s := newTestStore(t, 2)
	mustCreate(t, s, "admin", "a", 2)
	mustCreate(t, s, "bob", "b", 1)
	mustCreate(t, s, "carol", "c", 1)
	mustCreate(t, s, "dave", "d", 0)

	tests := []struct {
		name    string
		creds   []Credential
		wantErr error
	}{
		{"no credentials", nil, ErrInsufficientShares},
		{"too few shares", []Credential{{"bob", "b"}}, ErrInsufficientShares},
		{"shielded accounts hold no shares", []Credential{{"bob", "b"}, {"dave", "d"}}, ErrInsufficientShares},
		{"unknown user", []Credential{{"eve", "e"}, {"admin", "a"}}, ErrUnknownUser},
		{"wrong password", []Credential{{"bob", "b"}, {"carol", "x"}}, ErrWrongSecret},
		{"inconsistent extra share", []Credential{{"admin", "a"}, {"bob", "wrong"}}, shamir.ErrInconsistentShares},
		{"same account twice", []Credential{{"bob", "b"}, {"bob", "b"}}, shamir.ErrDuplicateShare},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loaded := reload(t, s)
			err := loaded.UnlockPasswordData(tt.creds)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, loaded.IsUnlocked())

			// a failed attempt leaves the store usable
			require.NoError(t, loaded.UnlockPasswordData([]Credential{{"bob", "b"}, {"carol", "c"}}))
			assertLogin(t, loaded, "dave", "d", true)
		})
	}
}

func TestUnlockAlreadyUnlocked(t *testing.T) {
	s := newTestStore(t, 1)
	mustCreate(t, s, "admin", "a", 1)

	err := s.UnlockPasswordData([]Credential{{"admin", "a"}})
	assert.ErrorIs(t, err, ErrAlreadyUnlocked)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUnlockWithoutVerifier(t *testing.T) {
	s := newTestStore(t, 2, WithVerifierIterations(0))
	mustCreate(t, s, "admin", "a", 2)
	mustCreate(t, s, "dave", "d", 0)

	data, err := s.PasswordData()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "verifier")

	loaded := reload(t, s)
	require.NoError(t, loaded.UnlockPasswordData([]Credential{{"admin", "a"}}))
	assertLogin(t, loaded, "dave", "d", true)
}

func TestLockedWithoutPartialBytes(t *testing.T) {
	s := newTestStore(t, 1)
	mustCreate(t, s, "admin", "a", 1)

	loaded := reload(t, s)
	_, err := loaded.IsValidLogin("admin", "a")
	assert.ErrorIs(t, err, ErrLocked)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCreateAccountErrors(t *testing.T) {
	s := newTestStore(t, 2)
	mustCreate(t, s, "admin", "a", 2)

	err := s.CreateAccount("admin", "b", 1)
	assert.ErrorIs(t, err, ErrDuplicateUser)

	err = s.CreateAccount("", "b", 1)
	assert.ErrorIs(t, err, ErrInvalidUsername)

	err = s.CreateAccount("bob", "b", -1)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	assert.Equal(t, 3, s.NextShare(), "failed creations issue no shares")
	assert.Len(t, s.Accounts(), 1)
}

func TestShareCapacity(t *testing.T) {
	s := newTestStore(t, 1)
	mustCreate(t, s, "bulk", "a", 254)
	mustCreate(t, s, "last", "b", 1)
	assert.Equal(t, 256, s.NextShare())

	err := s.CreateAccount("overflow", "c", 1)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// shielded accounts need no share
	mustCreate(t, s, "shielded", "d", 0)
	assertLogin(t, s, "last", "b", true)
	assertLogin(t, s, "shielded", "d", true)

	fresh := newTestStore(t, 1)
	assert.ErrorIs(t, fresh.CreateAccount("too-many", "e", 256), ErrCapacityExceeded)
}

func TestUnrecoverable(t *testing.T) {
	s := newTestStore(t, 3)

	_, err := s.PasswordData()
	assert.ErrorIs(t, err, ErrUnrecoverable)

	mustCreate(t, s, "admin", "a", 2)
	mustCreate(t, s, "dave", "d", 0)
	err = s.WritePasswordData(io.Discard)
	assert.ErrorIs(t, err, ErrUnrecoverable)

	mustCreate(t, s, "bob", "b", 1)
	var buf bytes.Buffer
	require.NoError(t, s.WritePasswordData(&buf))
	assert.NotEmpty(t, buf.Bytes())
}

func TestUnknownUser(t *testing.T) {
	s := newTestStore(t, 1)
	_, err := s.IsValidLogin("nobody", "x")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestLoadSettings(t *testing.T) {
	s := newTestStore(t, 2, WithPartialBytes(2), WithCipher(shield.XChaCha{}))
	mustCreate(t, s, "admin", "a", 2)
	data, err := s.PasswordData()
	require.NoError(t, err)

	_, err = Load(3, bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrThresholdMismatch)

	_, err = Load(2, bytes.NewReader(data), WithPartialBytes(1))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(2, bytes.NewReader(data), WithCipher(shield.LegacyCBC{}))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	loaded, err := Load(2, bytes.NewReader(data), WithPartialBytes(2), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, shield.XChaChaName, loaded.Cipher())
}

func TestStoredHashesAreProtected(t *testing.T) {
	s := newTestStore(t, 2, WithPartialBytes(4))
	mustCreate(t, s, "admin", "a", 2)
	mustCreate(t, s, "dave", "d", 0)

	raw, err := s.PasswordData()
	require.NoError(t, err)
	var data passwordData
	require.NoError(t, json.Unmarshal(raw, &data))

	passwords := map[string]string{"admin": "a", "dave": "d"}
	for username, records := range data.Accounts {
		for _, rec := range records {
			salted := s.saltedHash(rec.Salt, passwords[username])
			body, tail := splitProtected(rec.PassHash, 4)
			assert.NotContains(t, string(body), string(salted[:len(salted)-4]))
			assert.Equal(t, salted[len(salted)-4:], tail, "partial bytes are the hash tail")
		}
	}
}

func TestBreakInWarning(t *testing.T) {
	s := newTestStore(t, 2, WithPartialBytes(2))
	mustCreate(t, s, "admin", "a", 2)
	mustCreate(t, s, "victim", "v", 1)

	raw, err := s.PasswordData()
	require.NoError(t, err)
	var data passwordData
	require.NoError(t, json.Unmarshal(raw, &data))
	// the attacker replaced the protected hash but got the partial bytes right
	data.Accounts["victim"][0].PassHash[0] ^= 0x01
	raw, err = json.Marshal(&data)
	require.NoError(t, err)

	var logs bytes.Buffer
	loaded, err := Load(2, bytes.NewReader(raw), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	require.NoError(t, loaded.UnlockPasswordData([]Credential{{"admin", "a"}}))

	assertLogin(t, loaded, "victim", "v", false)
	assert.Contains(t, logs.String(), "break-in")
	assert.Contains(t, logs.String(), "username=victim")
}

func TestLoginChecksEveryEntry(t *testing.T) {
	s := newTestStore(t, 2, WithPartialBytes(2))
	mustCreate(t, s, "admin", "a", 2)
	mustCreate(t, s, "carol", "c", 3)

	tamper := func(t *testing.T, flip func(passhash []byte)) *Store {
		t.Helper()
		raw, err := s.PasswordData()
		require.NoError(t, err)
		var data passwordData
		require.NoError(t, json.Unmarshal(raw, &data))
		require.Len(t, data.Accounts["carol"], 3)
		flip(data.Accounts["carol"][2].PassHash)
		raw, err = json.Marshal(&data)
		require.NoError(t, err)

		loaded, err := Load(2, bytes.NewReader(raw), WithLogger(quietLogger()))
		require.NoError(t, err)
		return loaded
	}

	t.Run("unlocked", func(t *testing.T) {
		loaded := tamper(t, func(passhash []byte) { passhash[0] ^= 0x01 })
		require.NoError(t, loaded.UnlockPasswordData([]Credential{{"admin", "a"}}))
		assertLogin(t, loaded, "carol", "c", false)
		assertLogin(t, loaded, "admin", "a", true)
	})

	t.Run("locked", func(t *testing.T) {
		loaded := tamper(t, func(passhash []byte) { passhash[len(passhash)-1] ^= 0x01 })
		require.False(t, loaded.IsUnlocked())
		assertLogin(t, loaded, "carol", "c", false)
		assertLogin(t, loaded, "admin", "a", true)
	})
}

func TestAccounts(t *testing.T) {
	s := newTestStore(t, 2)
	mustCreate(t, s, "zed", "z", 1)
	mustCreate(t, s, "amy", "a", 2)
	mustCreate(t, s, "max", "m", 0)

	assert.Equal(t, []AccountInfo{
		{Username: "amy", Shares: []int{2, 3}},
		{Username: "max", Shielded: true},
		{Username: "zed", Shares: []int{1}},
	}, s.Accounts())
}

func TestClose(t *testing.T) {
	s := newTestStore(t, 1)
	mustCreate(t, s, "admin", "a", 1)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.IsUnlocked())

	_, err := s.IsValidLogin("admin", "a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.CreateAccount("bob", "b", 1), ErrClosed)
	assert.ErrorIs(t, s.UnlockPasswordData(nil), ErrClosed)
	_, err = s.PasswordData()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentAccess(t *testing.T) {
	s := newTestStore(t, 2)
	mustCreate(t, s, "admin", "a", 2)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- s.CreateAccount(fmt.Sprintf("user%d", i), "pw", 1)
		}(i)
		go func() {
			defer wg.Done()
			ok, err := s.IsValidLogin("admin", "a")
			if err == nil && !ok {
				err = errors.New("valid login rejected")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 23, s.NextShare())
	assert.Len(t, s.Accounts(), 21)
}

type recordingObserver struct {
	logins  []string
	unlocks []error
	created []int
}

func (r *recordingObserver) LoginChecked(unlocked, valid bool) {
	r.logins = append(r.logins, fmt.Sprintf("unlocked=%t valid=%t", unlocked, valid))
}

func (r *recordingObserver) UnlockAttempted(err error) {
	r.unlocks = append(r.unlocks, err)
}

func (r *recordingObserver) AccountCreated(shares int) {
	r.created = append(r.created, shares)
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestStore(t, 2, WithPartialBytes(1), WithObserver(obs))
	mustCreate(t, s, "admin", "adminpw", 2)
	mustCreate(t, s, "guest", "guestpw", 0)
	assert.Error(t, s.CreateAccount("admin", "again", 1))
	assert.Equal(t, []int{2, 0}, obs.created)

	assertLogin(t, s, "admin", "adminpw", true)

	locked := reload(t, s, WithObserver(obs))
	assertLogin(t, locked, "guest", "guestpw", true)
	_, err := locked.IsValidLogin("nobody", "pw")
	require.ErrorIs(t, err, ErrUnknownUser)

	require.Error(t, locked.UnlockPasswordData([]Credential{{Username: "admin", Password: "wrong"}}))
	require.NoError(t, locked.UnlockPasswordData([]Credential{{Username: "admin", Password: "adminpw"}}))
	assertLogin(t, locked, "guest", "nope", false)

	assert.Equal(t, []string{
		"unlocked=true valid=true",
		"unlocked=false valid=true",
		"unlocked=true valid=false",
	}, obs.logins)
	require.Len(t, obs.unlocks, 2)
	assert.Error(t, obs.unlocks[0])
	assert.NoError(t, obs.unlocks[1])
}
