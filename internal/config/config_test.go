package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, EnvSandbox, cfg.Daraja.Env)
	assert.Equal(t, "https://sandbox.safaricom.co.ke", cfg.Daraja.URL())
	assert.Equal(t, 3000, cfg.Callback.Port)
	assert.Equal(t, "localhost:3000", cfg.Callback.Addr())
	assert.Equal(t, "http://localhost:3000", cfg.PublicURL)
	assert.Equal(t, "http://localhost:3000/mpesa/callback", cfg.CallbackURL())
	assert.Equal(t, 100, cfg.Store.Capacity)
	assert.Equal(t, TransportStdio, cfg.MCP.Transport)
	assert.False(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.Database.Enabled())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("DARAJA_CONSUMER_KEY", "key")
	t.Setenv("DARAJA_SHORTCODE", "174379")
	t.Setenv("DARAJA_ENV", "production")
	t.Setenv("CALLBACK_PORT", "8081")
	t.Setenv("PUBLIC_URL", "https://abc.ngrok.io/")
	t.Setenv("STORE_CAPACITY", "5")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.Daraja.ConsumerKey)
	assert.Equal(t, "174379", cfg.Daraja.ShortCode)
	assert.Equal(t, "https://api.safaricom.co.ke", cfg.Daraja.URL())
	assert.Equal(t, 8081, cfg.Callback.Port)
	assert.Equal(t, "https://abc.ngrok.io/mpesa/callback", cfg.CallbackURL())
	assert.Equal(t, 5, cfg.Store.Capacity)
}

func TestLoadConfig_File(t *testing.T) {
	os.Clearenv()
	dir := t.TempDir()
	yaml := []byte(`
daraja:
  base-url: http://localhost:9000/
mcp:
  transport: http
kafka:
  broker:
    url: localhost:9092
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.Daraja.URL())
	assert.Equal(t, TransportHTTP, cfg.MCP.Transport)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, "mpesa.payments", cfg.Kafka.Topic.Payments)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "transport", env: map[string]string{"MCP_TRANSPORT": "grpc"}},
		{name: "environment", env: map[string]string{"DARAJA_ENV": "staging"}},
		{name: "port", env: map[string]string{"CALLBACK_PORT": "70000"}},
		{name: "capacity", env: map[string]string{"STORE_CAPACITY": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig(t.TempDir())
			assert.Error(t, err)
		})
	}
}
