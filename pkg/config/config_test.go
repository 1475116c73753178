package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "wheel_of_life.db", cfg.Database.Path)
	assert.Equal(t, "ollama", cfg.LLM.DefaultProvider)
	assert.Equal(t, 120*time.Second, cfg.LLM.CallTimeout)
	assert.Equal(t, "./wheels", cfg.Charts.Dir)
	assert.Equal(t, "memory", cfg.Sessions.Backend)
	assert.Equal(t, 3150, cfg.Dashboard.Port)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
telegram:
  token: from-file
llm:
  default_provider: openai
  call_timeout: 30s
  openai:
    model: gpt-4o-mini
charts:
  dir: /var/wheels
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("TELEGRAM_TOKEN", "from-env")
	t.Setenv("ADMIN_IDS", "12, 34,abc,")
	t.Setenv("DATABASE_URL", "postgres://wheel:secret@db:6543/wheels?sslmode=require")
	t.Setenv("OLLAMA_MODEL", "llama3")
	t.Setenv("ADMIN_PORT", "8080")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, []int64{12, 34}, cfg.Telegram.AdminIDs)
	assert.True(t, cfg.Telegram.IsAdmin(34))
	assert.False(t, cfg.Telegram.IsAdmin(56))

	assert.Equal(t, DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 6543,
		User: "wheel", Password: "secret", DBName: "wheels", SSLMode: "require",
	}, cfg.Database)

	assert.Equal(t, "openai", cfg.LLM.DefaultProvider)
	assert.Equal(t, 30*time.Second, cfg.LLM.CallTimeout)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.OpenAI.Model)
	assert.Equal(t, "llama3", cfg.LLM.Ollama.Model)
	assert.Equal(t, "/var/wheels", cfg.Charts.Dir)
	assert.Equal(t, 8080, cfg.Dashboard.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigRedisFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Sessions.Backend)
	assert.Equal(t, "localhost:6379", cfg.Sessions.RedisAddr)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("LLM_DEFAULT_PROVIDER", "anthropic")
	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "invalid config")
}

func TestLoadConfigBadAdminPort(t *testing.T) {
	t.Setenv("ADMIN_PORT", "eighty")
	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestParseDatabaseURL(t *testing.T) {
	cases := []struct {
		in      string
		want    DatabaseConfig
		wantErr bool
	}{
		{in: "sqlite:///wheel_of_life.db", want: DatabaseConfig{Driver: "sqlite", Path: "wheel_of_life.db"}},
		{in: "sqlite:////data/wheels.db", want: DatabaseConfig{Driver: "sqlite", Path: "/data/wheels.db"}},
		{in: "memory://", want: DatabaseConfig{Driver: "memory"}},
		{in: "postgresql://u@localhost/w", want: DatabaseConfig{
			Driver: "postgres", Host: "localhost", Port: 5432, User: "u", DBName: "w", SSLMode: "disable",
		}},
		{in: "mysql://u@localhost/w", wantErr: true},
		{in: "sqlite:///", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseDatabaseURL(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
