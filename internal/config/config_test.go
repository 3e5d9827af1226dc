package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/fleetguard/audit"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DriverBolt, cfg.Storage.Driver)

	assert.Equal(t, time.Minute, cfg.Guard.APILimit.Window)
	assert.Equal(t, 100, cfg.Guard.APILimit.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Guard.AuthLimit.Window)
	assert.Equal(t, 5, cfg.Guard.AuthLimit.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Guard.Session.CheckInterval)
	assert.Equal(t, 24*time.Hour, cfg.Guard.Session.StaleAfter)
	assert.Equal(t, 8, cfg.Guard.Password.MinLength)
	assert.Equal(t, 6, cfg.Guard.Password.LoginMinLength)
	assert.True(t, cfg.Guard.Password.RequireSymbol)
	assert.Equal(t, audit.DefaultAlertRules(), cfg.Guard.Alerts)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9443"
storage:
  driver: memory
guard:
  auth_limit:
    window: 10m
    max_attempts: 3
  password:
    min_length: 12
log:
  format: json
`), 0o600))
	t.Setenv("FLEETGUARD_GUARD_AUTH_LIMIT_MAX_ATTEMPTS", "7")
	t.Setenv("FLEETGUARD_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9443", cfg.Server.Addr)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Guard.AuthLimit.Window)
	assert.Equal(t, 7, cfg.Guard.AuthLimit.MaxAttempts, "env beats file")
	assert.Equal(t, 12, cfg.Guard.Password.MinLength)
	assert.Equal(t, 128, cfg.Guard.Password.MaxLength, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	dir := chdirTemp(t)
	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	chdirTemp(t)
	t.Setenv("FLEETGUARD_GUARD_API_LIMIT_WINDOW", "0s")
	_, err := Load("")
	assert.ErrorContains(t, err, "api limit")
}

func TestLoadWith_FlagOverride(t *testing.T) {
	chdirTemp(t)
	v := viper.New()
	v.Set("server.addr", "127.0.0.1:7000")
	cfg, err := LoadWith(v, "")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	base, err := Load("")
	require.NoError(t, err)

	cfg := *base
	cfg.Storage = StorageConfig{Driver: "sqlite"}
	assert.Error(t, cfg.Validate())

	cfg = *base
	cfg.Storage = StorageConfig{Driver: DriverPostgres}
	assert.ErrorContains(t, cfg.Validate(), "dsn")

	cfg = *base
	cfg.Log.Level = "chatty"
	assert.Error(t, cfg.Validate())

	cfg = *base
	cfg.Server.TLSCert = "cert.pem"
	assert.Error(t, cfg.Validate())
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
