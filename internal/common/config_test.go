package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, 3, cfg.Batch.Workers)
	assert.Equal(t, 600*time.Second, cfg.Batch.AttemptTimeout)
	assert.Equal(t, uint64(1<<30), cfg.Batch.MinFreeMemory)
	assert.Equal(t, float64(90), cfg.Batch.MaxCPUPercent)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, 1, cfg.OCR.PSM)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("BATCH_WORKERS", "7")
	t.Setenv("BATCH_ATTEMPT_TIMEOUT", "90s")
	t.Setenv("OCR_DPI", "150")
	t.Setenv("DB_URL", "postgres://localhost/docketwatch")

	cfg := LoadConfig()
	assert.Equal(t, 7, cfg.Batch.Workers)
	assert.Equal(t, 90*time.Second, cfg.Batch.AttemptTimeout)
	assert.Equal(t, 150, cfg.OCR.DPI)
	assert.Equal(t, "postgres://localhost/docketwatch", cfg.Database.DSN)
}

func TestLoadConfigIgnoresGarbageEnv(t *testing.T) {
	t.Setenv("BATCH_WORKERS", "many")
	t.Setenv("OCR_DPI", "")

	cfg := LoadConfig()
	assert.Equal(t, 3, cfg.Batch.Workers)
	assert.Equal(t, 300, cfg.OCR.DPI)
}

func TestApplyFileOverlaysNonZeroValues(t *testing.T) {
	t.Setenv("DB_URL", "postgres://env-wins-unless-overridden")
	cfg := LoadConfig()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  dsn: postgres://file/dw
batch:
  workers: 5
llm:
  model: gpt-4o
`), 0o644))

	require.NoError(t, cfg.ApplyFile(path))
	assert.Equal(t, "postgres://file/dw", cfg.Database.DSN)
	assert.Equal(t, 5, cfg.Batch.Workers)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	// Values absent from the file keep their env/default values.
	assert.Equal(t, 600*time.Second, cfg.Batch.AttemptTimeout)
}

func TestApplyFileMissingOrMalformed(t *testing.T) {
	cfg := LoadConfig()
	assert.Error(t, cfg.ApplyFile(filepath.Join(t.TempDir(), "nope.yaml")))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("batch: ["), 0o644))
	assert.Error(t, cfg.ApplyFile(bad))
}

func TestValidate(t *testing.T) {
	cfg := LoadConfig()
	cfg.Database.DSN = ""
	assert.Error(t, cfg.Validate())

	cfg.Database.DSN = "postgres://x"
	cfg.LLM.APIKey = ""
	assert.Error(t, cfg.Validate())

	cfg.LLM.APIKey = "sk-test"
	cfg.Docs.Root = ""
	assert.Error(t, cfg.Validate())

	cfg.Docs.Root = "/var/docs"
	assert.NoError(t, cfg.Validate())
}
