package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, time.Hour, cfg.JWTTTL)
	assert.Equal(t, 5, cfg.NotifyMaxAttempts)
	assert.False(t, cfg.SMTP.Enabled())
	assert.False(t, cfg.Bootstrap.Enabled())
	assert.Equal(t, "host=localhost port=5432 user=gearpool password=dev dbname=gearpool sslmode=disable", cfg.DSN())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/gear")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("OVERDUE_SCAN_INTERVAL_SECONDS", "30")
	t.Setenv("BOOTSTRAP_TENANT_ID", "dept-film")
	t.Setenv("BOOTSTRAP_ADMIN_EMAIL", "root@example.edu")
	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "changeme1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, "postgres://u:p@db/gear", cfg.DSN())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.OverdueScanInterval)
	assert.True(t, cfg.Bootstrap.Enabled())
	assert.Equal(t, "dept-film", cfg.Bootstrap.TenantName)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	t.Setenv("SERVER_PORT", "eighty")
	_, err := Load()
	assert.ErrorContains(t, err, "invalid SERVER_PORT")

	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	_, err = Load()
	assert.ErrorContains(t, err, "invalid STORAGE_DRIVER")

	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "")
	_, err = Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}
