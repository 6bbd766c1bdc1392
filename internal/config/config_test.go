package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "segredo")
	t.Setenv("DATABASE_URL", "postgres://localhost/bazaar")

	var cfg Config
	require.NoError(t, Load(&cfg))
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 15*time.Second, cfg.ConfirmerInterval)
	assert.Equal(t, 24*time.Hour, cfg.SettlementReceiptTimeout)
	assert.Equal(t, 5*time.Minute, cfg.UserCacheTTL)
	assert.False(t, cfg.UploadsEnabled())
	assert.False(t, cfg.HumanityEnabled())
	assert.False(t, cfg.UsePGBridge)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "segredo")
	t.Setenv("DATABASE_URL", "postgres://localhost/bazaar")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("AWS_BUCKET_NAME", "bazaar-images")
	t.Setenv("CONFIRMER_INTERVAL", "1m")
	t.Setenv("USE_PG_BRIDGE", "true")

	var cfg Config
	require.NoError(t, Load(&cfg))
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.True(t, cfg.UploadsEnabled())
	assert.Equal(t, time.Minute, cfg.ConfirmerInterval)
	assert.True(t, cfg.UsePGBridge)
}

func TestLoadRequiresSecrets(t *testing.T) {
	// t.Setenv restaura o valor original ao fim do teste
	for _, key := range []string{"JWT_SECRET", "DATABASE_URL"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	var cfg Config
	assert.Error(t, Load(&cfg))
}
