package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-secret"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Allocation.MaxAttempts)
	assert.Equal(t, 2, cfg.Allocation.StoreRetries)
	assert.Equal(t, 20*time.Millisecond, cfg.Allocation.Backoff)
	assert.Equal(t, 4, cfg.Allocation.PadWidth)
	assert.Equal(t, 50, cfg.Views.PageSize)
	assert.Equal(t, "admin", cfg.Auth.AdminRole)
	assert.Contains(t, cfg.Auth.Roles["approver"], "approve")
	assert.False(t, cfg.Lark.Enabled)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DATABASE_URL", "postgres://ledger@localhost/ledger")
	t.Setenv("LEDGER_ALLOCATION_MAX_ATTEMPTS", "9")

	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
database:
  driver: postgres
allocation:
  pad_width: 6
  backoff: 50ms
auth:
  roles:
    clerk: [create, view]
export:
  sheet_name: Ledger
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://ledger@localhost/ledger", cfg.Database.DSN)
	assert.Equal(t, 9, cfg.Allocation.MaxAttempts)
	assert.Equal(t, 6, cfg.Allocation.PadWidth)
	assert.Equal(t, 50*time.Millisecond, cfg.Allocation.Backoff)
	assert.Equal(t, []string{"create", "view"}, cfg.Auth.Roles["clerk"])
	assert.Equal(t, "Ledger", cfg.Export.SheetName)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("JWT_SECRET", testSecret)
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := Load("")
		assert.ErrorContains(t, err, "jwt_secret")
	})
}

func validConfig() Config {
	return Config{
		Server:     ServerConfig{Port: 8080},
		Database:   DatabaseConfig{Driver: DriverSQLite, Path: "data/invoices.db"},
		Allocation: AllocationConfig{MaxAttempts: 5, PadWidth: 4},
		Views:      ViewsConfig{PageSize: 50},
		Auth:       AuthConfig{JWTSecret: testSecret},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "memory driver", mutate: func(c *Config) { c.Database = DatabaseConfig{Driver: DriverMemory} }},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "database.driver"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Database.Driver = DriverPostgres }, wantErr: "database.dsn"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "zero attempts", mutate: func(c *Config) { c.Allocation.MaxAttempts = 0 }, wantErr: "max_attempts"},
		{name: "negative retries", mutate: func(c *Config) { c.Allocation.StoreRetries = -1 }, wantErr: "store_retries"},
		{name: "pad width", mutate: func(c *Config) { c.Allocation.PadWidth = 13 }, wantErr: "pad_width"},
		{name: "page size", mutate: func(c *Config) { c.Views.PageSize = 0 }, wantErr: "page_size"},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "short secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, wantErr: "jwt_secret"},
		{name: "lark without chat", mutate: func(c *Config) {
			c.Lark = LarkConfig{Enabled: true, AppID: "cli_1", AppSecret: "s"}
		}, wantErr: "approver_chat_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "LEDGER_DOTENV_CHECK"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o600))

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv(key))

	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
