package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("AUTHGATE_PARSE_APPID", "app")
	t.Setenv("AUTHGATE_PARSE_RESTKEY", "rest")
	t.Setenv("AUTHGATE_PARSE_MASTERKEY", "master")
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, "https://parseapi.back4app.com", cfg.Parse.ServerURL)
	assert.Equal(t, 15*time.Second, cfg.ParseTimeout())
	assert.Equal(t, int64(5*1024*1024), cfg.Upload.MaxBytes)
	assert.Equal(t, StorageParse, cfg.Storage.Backend)
	assert.Equal(t, "profile-pictures", cfg.Storage.KeyPrefix)
	assert.Equal(t, 7*24*time.Hour, cfg.URLExpiry())
	assert.Equal(t, SinkParse, cfg.Activity.Sink)
	assert.Equal(t, 256, cfg.Activity.Buffer)
	assert.Equal(t, "authgate.activity", cfg.AMQP.Exchange)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequired(t)
	t.Setenv("AUTHGATE_SERVER_ADDR", ":9000")
	t.Setenv("AUTHGATE_STORAGE_BACKEND", "s3")
	t.Setenv("AUTHGATE_STORAGE_BUCKET", "avatars")
	t.Setenv("AUTHGATE_ACTIVITY_SINK", "sqlite")
	t.Setenv("AUTHGATE_METRICS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, StorageS3, cfg.Storage.Backend)
	assert.Equal(t, "avatars", cfg.Storage.Bucket)
	assert.Equal(t, SinkSQLite, cfg.Activity.Sink)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"AUTHGATE_PARSE_APPID=from-file\nAUTHGATE_PARSE_RESTKEY=rest\nAUTHGATE_PARSE_MASTERKEY=master\n",
	), 0o600))
	t.Setenv("AUTHGATE_PARSE_APPID", "from-env")
	// godotenv sets these process-wide; register them for cleanup.
	t.Setenv("AUTHGATE_PARSE_RESTKEY", "")
	t.Setenv("AUTHGATE_PARSE_MASTERKEY", "")
	os.Unsetenv("AUTHGATE_PARSE_RESTKEY")
	os.Unsetenv("AUTHGATE_PARSE_MASTERKEY")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Parse.AppID)
	assert.Equal(t, "rest", cfg.Parse.RESTKey)
}

func TestLoad_MissingKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTHGATE_PARSE_APPID", "app")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse.restkey")
	assert.Contains(t, err.Error(), "parse.masterkey")
}

func TestValidate(t *testing.T) {
	var cfg Config
	cfg.Parse.AppID, cfg.Parse.RESTKey, cfg.Parse.MasterKey = "a", "r", "m"
	cfg.Storage.Backend = StorageParse
	cfg.Activity.Sink = SinkNone
	require.NoError(t, cfg.Validate())

	s3 := cfg
	s3.Storage.Backend = StorageS3
	assert.ErrorContains(t, s3.Validate(), "storage.bucket")

	amqp := cfg
	amqp.Activity.Sink = SinkAMQP
	assert.ErrorContains(t, amqp.Validate(), "amqp.url")

	unknown := cfg
	unknown.Activity.Sink = "kafka"
	assert.ErrorContains(t, unknown.Validate(), "kafka")
}
