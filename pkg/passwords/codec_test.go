package passwords

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validData(t *testing.T) *passwordData {
	t.Helper()
	s := newTestStore(t, 2, WithPartialBytes(2))
	mustCreate(t, s, "admin", "a", 2)
	mustCreate(t, s, "dave", "d", 0)

	raw, err := s.PasswordData()
	require.NoError(t, err)
	var data passwordData
	require.NoError(t, json.Unmarshal(raw, &data))
	return &data
}

func TestEncodeDeterministic(t *testing.T) {
	s := newTestStore(t, 1)
	for _, name := range []string{"zed", "amy", "max", "bob"} {
		mustCreate(t, s, name, "pw", 1)
	}

	first, err := s.PasswordData()
	require.NoError(t, err)
	second, err := s.PasswordData()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	out := string(first)
	assert.Less(t, strings.Index(out, `"amy"`), strings.Index(out, `"bob"`))
	assert.Less(t, strings.Index(out, `"max"`), strings.Index(out, `"zed"`))
	assert.Contains(t, out, `"version":1`)
	assert.Contains(t, out, `"cipher":"aes-256-cbc"`)
}

func TestDecodeRoundTrip(t *testing.T) {
	data := validData(t)
	raw, err := encode(data)
	require.NoError(t, err)

	decoded, err := decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)

	accounts, maxShare, err := decoded.entries()
	require.NoError(t, err)
	assert.Equal(t, 2, maxShare)
	assert.Len(t, accounts["admin"], 2)
	assert.IsType(t, &ShieldedEntry{}, accounts["dave"][0])
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *passwordData)
		errMsg string
	}{
		{"version", func(d *passwordData) { d.Version = 2 }, "unsupported version"},
		{"id", func(d *passwordData) { d.ID = "not-a-uuid" }, "invalid id"},
		{"threshold", func(d *passwordData) { d.Threshold = 0 }, "threshold 0 out of range"},
		{"partial bytes", func(d *passwordData) { d.PartialBytes = 40 }, "partial bytes 40 out of range"},
		{"verifier length", func(d *passwordData) { d.Verifier = []byte{1, 2, 3} }, "verifier has 3 bytes"},
		{"verifier iterations", func(d *passwordData) { d.VerifierIterations = 0 }, "verifier without iterations"},
		{"accounts", func(d *passwordData) { d.Accounts = nil }, "missing accounts"},
		{"empty account", func(d *passwordData) { d.Accounts["empty"] = []record{} }, `account "empty" has no entries`},
		{"salt", func(d *passwordData) { d.Accounts["admin"][0].Salt = []byte{1} }, "1 byte salt"},
		{"share range", func(d *passwordData) { d.Accounts["admin"][0].Share = 256 }, "share number 256 out of range"},
		{"share reuse", func(d *passwordData) { d.Accounts["admin"][1].Share = 1 }, "share 1 used twice"},
		{"shared hash length", func(d *passwordData) {
			d.Accounts["admin"][0].PassHash = d.Accounts["admin"][0].PassHash[:10]
		}, "10 byte hash"},
		{"shielded hash length", func(d *passwordData) {
			d.Accounts["dave"][0].PassHash = []byte{1, 2}
		}, "truncated hash"},
		{"mixed entries", func(d *passwordData) {
			d.Accounts["admin"][1].Share = 0
		}, "mixes shielded and shared"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validData(t)
			tt.mutate(data)
			raw, err := json.Marshal(data)
			require.NoError(t, err)

			_, err = Load(2, bytes.NewReader(raw), WithLogger(quietLogger()))
			assert.ErrorIs(t, err, ErrInvalidData)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, input := range []string{"", "{", "[]", `{"version":1,"surprise":true}`} {
		_, err := decode(strings.NewReader(input))
		assert.ErrorIs(t, err, ErrInvalidData, "input %q", input)
	}
}

func TestLoadUnknownCipher(t *testing.T) {
	data := validData(t)
	data.Cipher = "rot13"
	raw, err := json.Marshal(data)
	require.NoError(t, err)

	_, err = Load(2, bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestReadHeader(t *testing.T) {
	data := validData(t)
	raw, err := encode(data)
	require.NoError(t, err)

	header, err := ReadHeader(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, &Header{
		ID:           data.ID,
		Threshold:    2,
		PartialBytes: 2,
		Cipher:       "aes-256-cbc",
		Accounts:     2,
	}, header)

	_, err = ReadHeader(strings.NewReader("{}"))
	assert.ErrorIs(t, err, ErrInvalidData)
}
