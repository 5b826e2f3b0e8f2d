package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagegen/services/generator"
)

func load(t *testing.T, env map[string]string) (Config, error) {
	t.Helper()
	return LoadWith(context.Background(), envconfig.MapLookuper(env))
}

func TestLoadDefaults(t *testing.T) {
	base := t.TempDir()
	cfg, err := load(t, map[string]string{"STAGEGEN_BASE_DIR": base})
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, base, cfg.BaseDir)
	assert.NotEmpty(t, cfg.AltBaseDir)
	assert.Equal(t, "http://localhost:3000", cfg.DefaultBaseURL())
	assert.Equal(t, 600*time.Second, cfg.RetentionAge)
	assert.Equal(t, time.Hour, cfg.InflightGrace)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, EngineSQLite, cfg.SQLEngine)
	assert.Equal(t, "sqlite3", cfg.SQLiteBinary)
	assert.Equal(t, 30*time.Second, cfg.MaterializeTimeout)
	assert.Equal(t, PublishLocal, cfg.PublishMode)
	assert.False(t, cfg.ResponseDebug)
	assert.False(t, cfg.TrustProxyHeaders)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.True(t, cfg.S3.ForcePathStyle)
	assert.Equal(t, generator.DefaultLayout(), cfg.Layout)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"STAGEGEN_BASE_DIR":   t.TempDir(),
		"PORT":                "8081",
		"PUBLIC_SCHEME":       "https",
		"HOST":                "payload.example.test",
		"RETENTION_AGE":       "90s",
		"SQL_ENGINE":          "shell",
		"RESPONSE_DEBUG":      "true",
		"TRUST_PROXY_HEADERS": "true",
		"GENERATE_RATE_LIMIT": "30",
		"PUBLISH_MODE":        "s3",
		"S3_ENDPOINT":         "seaweed:8333",
		"S3_BUCKET":           "artifacts",
		"S3_FORCE_PATH_STYLE": "false",
		"S3_PRESIGN_TTL":      "15m",
	})
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, "https://payload.example.test", cfg.DefaultBaseURL())
	assert.Equal(t, 90*time.Second, cfg.RetentionAge)
	assert.Equal(t, EngineShell, cfg.SQLEngine)
	assert.True(t, cfg.ResponseDebug)
	assert.True(t, cfg.TrustProxyHeaders)
	assert.Equal(t, 30, cfg.GenerateRateLimit)
	assert.Equal(t, "seaweed:8333", cfg.S3.Endpoint)
	assert.Equal(t, "artifacts", cfg.S3.Bucket)
	assert.False(t, cfg.S3.ForcePathStyle)
	assert.Equal(t, 15*time.Minute, cfg.S3.PresignTTL)
}

func TestPublicBaseURLWins(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"STAGEGEN_BASE_DIR": t.TempDir(),
		"PUBLIC_BASE_URL":   "https://cdn.example.test/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.test", cfg.DefaultBaseURL())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"engine", map[string]string{"SQL_ENGINE": "postgres"}},
		{"publish mode", map[string]string{"PUBLISH_MODE": "ftp"}},
		{"s3 without bucket", map[string]string{"PUBLISH_MODE": "s3", "S3_ENDPOINT": "x"}},
		{"scheme", map[string]string{"PUBLIC_SCHEME": "gopher"}},
		{"port", map[string]string{"PORT": "70000"}},
		{"retention", map[string]string{"RETENTION_AGE": "0s"}},
		{"duration syntax", map[string]string{"SWEEP_INTERVAL": "soon"}},
		{"rate limit", map[string]string{"GENERATE_RATE_LIMIT": "-1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.env["STAGEGEN_BASE_DIR"] = t.TempDir()
			_, err := load(t, tc.env)
			require.Error(t, err)
		})
	}
}

func TestLoadLayoutOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
descriptor:
  docroot_dir: mirror
package:
  output: payload.epub
sql_stages:
  - name: stage2
    template: first.sql
    root: second
    work_file: first.sqlite
    output: first.db
    bindings:
      - token: "@@URL@@"
        source: previous_url
      - token: "@@SERIAL@@"
        source: serial
`), 0o644))

	layout, err := LoadLayout(path)
	require.NoError(t, err)

	assert.Equal(t, "Maker", layout.Descriptor.Dir)
	assert.Equal(t, "mirror", layout.Descriptor.DocRootDir)
	assert.Equal(t, "payload.epub", layout.Package.Output)
	assert.Equal(t, "firststp", layout.Package.Root)
	require.Len(t, layout.SQLStages, 1)
	assert.Equal(t, generator.SourceSerial, layout.SQLStages[0].Bindings[1].Source)
	assert.Equal(t, []string{"firststp", "second"}, layout.Roots())
}

func TestLoadLayoutErrors(t *testing.T) {
	_, err := LoadLayout(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("sql_stages:\n  - name: stage1\n    template: t\n    root: r\n    work_file: w\n    output: o\n"), 0o644))
	_, err = LoadLayout(bad)
	require.Error(t, err)
}
