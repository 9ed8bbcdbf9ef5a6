package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"STORE_BACKEND", "VERIFY_DELAY", "ALLOWED_ORIGINS", "VERIFY_RATE_PER_MIN", "REGISTRY_PATH"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, 800*time.Millisecond, cfg.VerifyDelay)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 10, cfg.VerifyRatePerMin)
	assert.Equal(t, "./event.yaml", cfg.RegistryPath)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Mongo")
	t.Setenv("VERIFY_DELAY", "0s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("VERIFY_RATE_BURST", "nope")

	cfg := Load()
	assert.Equal(t, BackendMongo, cfg.Backend)
	assert.Equal(t, time.Duration(0), cfg.VerifyDelay)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 5, cfg.VerifyRateBurst)
}

func TestBindFlags(t *testing.T) {
	t.Setenv("STORE_BACKEND", "firestore")
	cfg := Load()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-b", "memory", "--verify-delay", "1s"}))

	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, time.Second, cfg.VerifyDelay)
}
