package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// ==========================
// Defaults and env expansion
// ==========================

func TestLoadFromFile_Defaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, "app:\n  name: decoder-test\n"))
	require.NoError(t, err)

	assert.Equal(t, "decoder-test", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "decoder:visitor:", cfg.Store.KeyPrefix)
	assert.Equal(t, "portal", cfg.Decoder.Variant)
	assert.Equal(t, "gemini", cfg.GenAI.Provider)
	assert.Equal(t, "decoder-leads", cfg.Database.Elasticsearch.LeadIndex)
	assert.Equal(t, "decoder-test", cfg.Tracing.ServiceName)
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DECODER_VARIANT", "breakthrough")
	t.Setenv("TEST_UNSET_REDIS", "")

	cfg, err := LoadFromFile(writeConfig(t, `
decoder:
  variant: ${TEST_DECODER_VARIANT}
database:
  redis:
    address: ${TEST_UNSET_REDIS}
`))
	require.NoError(t, err)
	assert.Equal(t, "breakthrough", cfg.Decoder.Variant)
	assert.Empty(t, cfg.Database.Redis.Address)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown store", "store:\n  driver: sqlite\n"},
		{"redis store without address", "store:\n  driver: redis\n"},
		{"postgres store without host", "store:\n  driver: postgres\n"},
		{"upstream without base url", "genai:\n  provider: upstream\n"},
		{"camunda without broker", "camunda:\n  enabled: true\n"},
		{"sns without topic", "integrations:\n  aws:\n    sns:\n      enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

// ==========================
// Worker lookups
// ==========================

func TestWorkerConfig(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, `
workers:
  decoder-check-access:
    enabled: false
    timeout: 5000
`))
	require.NoError(t, err)

	assert.False(t, IsWorkerEnabled(cfg, "decoder.check-access"))
	assert.True(t, IsWorkerEnabled(cfg, "crm.capture-lead"))

	wc := GetWorkerConfig(cfg, "decoder.check-access")
	assert.Equal(t, 5000, wc.Timeout)
	assert.Equal(t, 5, wc.MaxJobsActive)
	assert.Equal(t, 3, wc.MaxRetries)

	assert.Equal(t, 30000, GetWorkerConfig(cfg, "unknown").Timeout)
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}

func TestPostgresConfig_URLs(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, Database: "breakfear", User: "u", Password: "p", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=breakfear sslmode=disable", p.GetDSN())
	assert.Equal(t, "postgres://u:p@db:5432/breakfear?sslmode=disable", p.GetURL())
}
