package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DOCCHAT_STORE", "")
	t.Setenv("DOCCHAT_SCHEDULER", "")
	t.Setenv("DOCCHAT_BLOB", "")
	t.Setenv("DOCCHAT_WORKERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultAddress, cfg.Address)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, BlobDir, cfg.BlobBackend)
	assert.Equal(t, SchedulerPool, cfg.Scheduler)
	assert.Equal(t, defaultWorkerCount, cfg.ProcessingPool)
	assert.Len(t, cfg.SigningSecret, 32)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DOCCHAT_WORKERS", "9")
	t.Setenv("DOCCHAT_PROCESS_TIMEOUT", "45s")
	t.Setenv("DOCCHAT_SIGNING_SECRET", "s3cret")
	t.Setenv("DOCCHAT_MAX_FILE_BYTES", "not-a-number")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.ProcessingPool)
	assert.Equal(t, 45*time.Second, cfg.ProcessTimeout)
	assert.Equal(t, []byte("s3cret"), cfg.SigningSecret)
	assert.Equal(t, int64(defaultMaxFileSize), cfg.MaxFileSize)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{StoreBackend: StoreMemory, BlobBackend: BlobDir, BlobDir: "x", Scheduler: SchedulerPool}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.StoreBackend = StorePostgres
	require.Error(t, cfg.Validate())
	cfg.DatabaseURL = "postgres://localhost/docchat"
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Scheduler = SchedulerAsynq
	require.Error(t, cfg.Validate(), "asynq must not run against the in-memory store")

	cfg = base()
	cfg.BlobBackend = "ftp"
	require.Error(t, cfg.Validate())
}
