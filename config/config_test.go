package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) (string, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(priv), base64.StdEncoding.EncodeToString(pub)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	priv, pub := testKeys(t)
	cfg := DefaultConfig()
	cfg.Federation.Domain = "social.example.org"
	cfg.Federation.PrivateKey = priv
	cfg.Federation.PublicKey = pub
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_MissingDomain(t *testing.T) {
	cfg := validConfig(t)
	cfg.Federation.Domain = ""
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_BadKeys(t *testing.T) {
	cfg := validConfig(t)
	cfg.Federation.PrivateKey = "not-base64!!!"
	assert.Error(t, cfg.Validate())

	cfg = validConfig(t)
	cfg.Federation.PublicKey = base64.StdEncoding.EncodeToString([]byte("short"))
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_Bridge(t *testing.T) {
	cfg := validConfig(t)
	cfg.Bridge.Enabled = true
	assert.Error(t, cfg.Validate(), "enabled bridge requires a token")

	cfg.Bridge.Token = "secret"
	cfg.Bridge.AllowedIPs = []string{"127.0.0.1", "10.0.0.0/8", "192.168.*"}
	assert.NoError(t, cfg.Validate())

	cfg.Bridge.AllowedIPs = []string{"not an ip"}
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_DeadLetterTTL(t *testing.T) {
	cfg := validConfig(t)
	cfg.Queue.DeadLetterTTL = "720h"
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 720*time.Hour, cfg.DeadLetterAge())

	cfg.Queue.DeadLetterTTL = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestConfig_SigningKeyRoundTrip(t *testing.T) {
	cfg := validConfig(t)

	priv, err := cfg.SigningKey()
	require.NoError(t, err)
	pub, err := cfg.VerifyingKey()
	require.NoError(t, err)

	msg := []byte("sign me")
	sig := ed25519.Sign(priv, msg)
	assert.True(t, ed25519.Verify(pub, msg, sig))
}

func TestLoad_JSON(t *testing.T) {
	priv, pub := testKeys(t)
	body := `{
		"federation": {
			"domain": "social.example.org",
			"blocked": ["spam.example", "*.badnet.example"],
			"private_key": "` + priv + `",
			"public_key": "` + pub + `"
		}
	}`

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "social.example.org", cfg.Federation.Domain)
	assert.Equal(t, []string{"spam.example", "*.badnet.example"}, cfg.Federation.Blocked)
	// Defaults merged in
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, ":8470", cfg.HTTP.Bind)
}

func TestLoad_YAML(t *testing.T) {
	priv, pub := testKeys(t)
	body := "federation:\n" +
		"  domain: social.example.org\n" +
		"  private_key: " + priv + "\n" +
		"  public_key: " + pub + "\n" +
		"bridge:\n" +
		"  enabled: true\n" +
		"  token: shh\n" +
		"  allowed_ips: [\"127.0.0.1\"]\n"

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Bridge.Enabled)
	assert.Equal(t, "shh", cfg.Bridge.Token)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	assert.Error(t, err)
}
