package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "student-ledger", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "ledger", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, "memory", cfg.Locking.Backend)
		assert.Equal(t, 5*time.Second, cfg.Locking.AcquireTimeout)
		assert.False(t, cfg.Redis.Enabled())
		assert.False(t, cfg.Scheduler.OverdueSweepEnabled)
		assert.Equal(t, time.Hour, cfg.Scheduler.OverdueSweepInterval)
		assert.Equal(t, 24*time.Hour, cfg.HTTP.IdempotencyTTL)
	})

	t.Run("loads values from environment variables with LEDGER prefix", func(t *testing.T) {
		t.Setenv("LEDGER_APP_NAME", "test-app")
		t.Setenv("LEDGER_APP_PORT", "9000")
		t.Setenv("LEDGER_DATABASE_HOST", "testdb.local")
		t.Setenv("LEDGER_DATABASE_PORT", "5433")
		t.Setenv("LEDGER_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("LEDGER_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("LEDGER_REDIS_HOST", "cache.local")
		t.Setenv("LEDGER_LOCKING_BACKEND", "redis")
		t.Setenv("LEDGER_LOCKING_ACQUIRE_TIMEOUT", "2s")
		t.Setenv("LEDGER_SCHEDULER_OVERDUE_SWEEP_ENABLED", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, "cache.local:6379", cfg.Redis.Addr())
		assert.Equal(t, "redis", cfg.Locking.Backend)
		assert.Equal(t, 2*time.Second, cfg.Locking.AcquireTimeout)
		assert.True(t, cfg.Scheduler.OverdueSweepEnabled)
	})

	t.Run("reads a .env file without overriding the environment", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
			[]byte("LEDGER_APP_PORT=7000\nLEDGER_DATABASE_DBNAME=fromfile\n"), 0o600))
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		t.Cleanup(func() {
			_ = os.Chdir(wd)
			_ = os.Unsetenv("LEDGER_APP_PORT")
			_ = os.Unsetenv("LEDGER_DATABASE_DBNAME")
		})
		t.Setenv("LEDGER_DATABASE_DBNAME", "fromenv")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "7000", cfg.App.Port)
		assert.Equal(t, "fromenv", cfg.Database.DBName)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("LEDGER_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("LEDGER_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("redis locking requires a redis host", func(t *testing.T) {
		t.Setenv("LEDGER_LOCKING_BACKEND", "redis")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis.host")
	})

	t.Run("rejects unknown lock backend", func(t *testing.T) {
		t.Setenv("LEDGER_LOCKING_BACKEND", "zookeeper")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "locking.backend")
	})

	t.Run("lease must outlive the acquire timeout", func(t *testing.T) {
		t.Setenv("LEDGER_LOCKING_ACQUIRE_TIMEOUT", "10s")
		t.Setenv("LEDGER_LOCKING_LEASE_TTL", "5s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lease_ttl")
	})
}

func TestValidate_Production(t *testing.T) {
	base := func() *Config {
		cfg := defaultConfig()
		cfg.App.Env = "production"
		cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
		cfg.Database.Password = "secret"
		cfg.Database.SSLMode = "require"
		return cfg
	}

	require.NoError(t, base().validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }, "jwt.secret is required"},
		{"short jwt secret", func(c *Config) { c.JWT.Secret = "short" }, "at least 32"},
		{"missing db password", func(c *Config) { c.Database.Password = "" }, "database.password"},
		{"ssl disabled", func(c *Config) { c.Database.SSLMode = "disable" }, "sslmode"},
		{"full sql in traces", func(c *Config) { c.Telemetry.DBLogFullSQL = true }, "db_log_full_sql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func defaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	return decode(v)
}

func TestValidate_Telemetry(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.validate())

	cfg.Telemetry.SamplingRatio = 1.5
	assert.ErrorContains(t, cfg.validate(), "sampling_ratio")

	cfg = defaultConfig()
	cfg.Telemetry.ProfilingEnabled = true
	assert.ErrorContains(t, cfg.validate(), "profiling_server_address")

	cfg.Telemetry.ProfilingServerAddress = "http://pyroscope:4040"
	assert.NoError(t, cfg.validate())
}

func TestLoad_ExplicitZeroSamplingRatio(t *testing.T) {
	t.Setenv("LEDGER_TELEMETRY_SAMPLING_RATIO", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Telemetry.SamplingRatio)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := &DatabaseConfig{Host: "db", Port: 5432, User: "ledger", Password: "p@ss/word", DBName: "ledger", SSLMode: "disable"}
	assert.Equal(t, "postgres://ledger:p%40ss%2Fword@db:5432/ledger?sslmode=disable", d.DSN())
}
