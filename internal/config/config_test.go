package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvPrefix+"_CONFIG", "")

	opts, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", opts.LogLevel)
	assert.Equal(t, "sqlite", opts.Store.Driver)
	assert.NotEmpty(t, opts.Store.DSN)
	assert.Equal(t, 30*time.Second, opts.Remote.PushTimeout)
	assert.Equal(t, uint32(3), opts.Remote.BreakerFailures)
	assert.Equal(t, 15*time.Second, opts.Monitor.ProbeInterval)
	assert.Len(t, opts.Server.Projects, 3)
	assert.Equal(t, "Project A", opts.Server.Projects[0].Name)
	require.Len(t, opts.Server.Users, 1)
	assert.Equal(t, "demo", opts.Server.Users[0].Username)
	assert.Empty(t, opts.Config)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timekeeper.yaml")
	content := `
log_level: debug
store:
  dsn: ` + filepath.Join(dir, "data.db") + `
remote:
  push_timeout: 5s
server:
  token_credentials:
    - consumer_key: ck
      consumer_secret: cs
      token_id: ti
      token_secret: ts
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv(EnvPrefix+"_LOG_LEVEL", "warn")

	opts, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", opts.LogLevel, "env must override the file")
	assert.Equal(t, filepath.Join(dir, "data.db"), opts.Store.DSN)
	assert.Equal(t, 5*time.Second, opts.Remote.PushTimeout)
	require.Len(t, opts.Server.TokenCredentials, 1)
	assert.Equal(t, "ts", opts.Server.TokenCredentials[0].TokenSecret)
	assert.Equal(t, path, opts.Config)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"store":{"driver":"postgres","dsn":"postgres://x"}}`), 0o600))
	t.Setenv(EnvPrefix+"_CONFIG", path)

	opts, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", opts.Store.Driver)
	assert.Equal(t, "postgres://x", opts.Store.DSN)
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	opts, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, opts.Config)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad driver", `{"store":{"driver":"mysql"}}`},
		{"bad json", `{"store":`},
		{"zero push timeout", `{"remote":{"push_timeout":"0s"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cfg.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TIMEKEEPER_LOG_LEVEL=debug\n"), 0o600))
	t.Chdir(dir)
	t.Setenv(EnvPrefix+"_CONFIG", "")
	t.Setenv(EnvPrefix+"_LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv(EnvPrefix+"_LOG_LEVEL"))

	opts, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", opts.LogLevel)
}
