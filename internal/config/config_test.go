package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig materializes a config file in a temp dir. The log dir is
// pointed at that same temp dir so the dir validation has something to
// find.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if !strings.Contains(content, "log:") {
		content += "log:\n  log_dir: " + dir + "\n"
	}
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "https://ops.epo.org/3.2/rest-services", cfg.OPS.BaseURL)
	assert.Equal(t, "https://ops.epo.org/3.2/auth/accesstoken", cfg.OPS.AuthURL)
	assert.Equal(t, 30*time.Second, cfg.OPS.Timeout)
	assert.Equal(t, 600*time.Millisecond, cfg.OPS.CallInterval)
	assert.Equal(t, 25, cfg.Search.PageSize)
	assert.Equal(t, 100, cfg.Search.MaxRecords)
	assert.True(t, cfg.Search.WithBiblio)
	assert.False(t, cfg.Search.IncludeRegister)
	assert.Equal(t, "info", cfg.Log.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
search:
  year: 2023
  page_size: 10
  max_records: 40
  include_register: true
ops:
  call_interval: 1s
export:
  csv_path: out.csv
`))
	require.NoError(t, err)

	assert.Equal(t, 2023, cfg.Search.Year)
	assert.Equal(t, 10, cfg.Search.PageSize)
	assert.Equal(t, 40, cfg.Search.MaxRecords)
	assert.True(t, cfg.Search.IncludeRegister)
	assert.Equal(t, time.Second, cfg.OPS.CallInterval)
	assert.Equal(t, "out.csv", cfg.Export.CSVPath)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"page size zero", "search:\n  page_size: 0\n"},
		{"bad log level", "log:\n  log_level: loud\n"},
		{"bad base url", "ops:\n  base_url: not-a-url\n"},
		{"half a date range", "search:\n  date_from: \"2024-01-01\"\n"},
		{"unknown key", "serch:\n  year: 2024\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}
