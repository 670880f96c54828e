package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Davincible/polypasshash/pkg/crypto/shield"
	"github.com/Davincible/polypasshash/pkg/passwords"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	config := DefaultConfig()

	assert.Equal(t, 2, config.Defaults.Threshold)
	assert.Equal(t, 2, config.Defaults.PartialBytes)
	assert.Equal(t, shield.LegacyCBCName, config.Defaults.Cipher)
	assert.Equal(t, passwords.DefaultVerifierIterations, config.Security.VerifierIterations)
	assert.Equal(t, filepath.Join("/xdg", "pph", "passwords.json"), config.Storage.PasswordFile)
	assert.Equal(t, "127.0.0.1:8420", config.Server.Listen)
	assert.True(t, config.Server.Metrics)
	assert.NoError(t, Validate(config))
}

func TestConfigPath(t *testing.T) {
	t.Setenv("PPH_CONFIG", "/custom/config.json")
	path, err := getConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/custom/config.json", path)

	t.Setenv("PPH_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	path, err = getConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/xdg", "pph", "config.json"), path)

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/tester")
	path, err = getConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/tester", ".config", "pph", "config.json"), path)
}

func TestConfigManagerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pph", "config.json")

	cm, err := NewConfigManager(path)
	require.NoError(t, err)
	assert.Equal(t, path, cm.Path())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "defaults are not written implicitly")

	cm.GetConfig().Defaults.Threshold = 5
	cm.GetConfig().Defaults.Cipher = shield.XChaChaName
	require.NoError(t, cm.SaveConfig())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := NewConfigManager(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.GetConfig().Defaults.Threshold)
	assert.Equal(t, shield.XChaChaName, loaded.GetConfig().Defaults.Cipher)

	opts, err := loaded.StoreOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 3)
}

func TestLoadPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"defaults":{"threshold":3}}`), 0600))

	cm, err := NewConfigManager(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cm.GetConfig().Defaults.Threshold)
	assert.Equal(t, shield.LegacyCBCName, cm.GetConfig().Defaults.Cipher, "missing fields keep defaults")
}

func TestLoadInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"malformed", `{`, "failed to parse config"},
		{"threshold", `{"defaults":{"threshold":0}}`, "threshold"},
		{"partial bytes", `{"defaults":{"partial_bytes":33}}`, "partial bytes"},
		{"cipher", `{"defaults":{"cipher":"rot13"}}`, "unknown shield cipher"},
		{"words", `{"security":{"generated_words":7}}`, "generated words"},
		{"password file", `{"storage":{"password_file":" "}}`, "password file"},
		{"listen", `{"server":{"listen":""}}`, "listen address"},
		{"timeouts", `{"server":{"shutdown_sec":-1}}`, "timeouts cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			_, err := NewConfigManager(path)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestPasswordFileExpansion(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	cm := &ConfigManager{config: DefaultConfig()}

	cm.config.Storage.PasswordFile = "~/secrets/pph.json"
	assert.Equal(t, filepath.Join("/home/tester", "secrets", "pph.json"), cm.PasswordFile())

	cm.config.Storage.PasswordFile = "/var/lib/pph.json"
	assert.Equal(t, "/var/lib/pph.json", cm.PasswordFile())
}
