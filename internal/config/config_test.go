package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"**/*"}, cfg.Include)
	assert.Contains(t, cfg.Exclude, "**/.git/**")
	assert.Greater(t, cfg.Performance.ParallelFileWorkers, 0)
}

func TestLoadKDLFile(t *testing.T) {
	dir := t.TempDir()
	content := `
variant "ci"
include "src/**/*.py" "tests/**/*.py"
exclude "**/fixtures/**"
performance {
    parallel_file_workers 4
    watch_debounce_ms 500
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "ci", cfg.VariantExpr)
	assert.ElementsMatch(t, []string{"src/**/*.py", "tests/**/*.py"}, cfg.Include)
	assert.Contains(t, cfg.Exclude, "**/fixtures/**")
	assert.Equal(t, 4, cfg.Performance.ParallelFileWorkers)
	assert.Equal(t, 500, cfg.Performance.WatchDebounceMs)
}

func TestDeduplicatePatterns(t *testing.T) {
	got := DeduplicatePatterns([]string{"a", "b", "a", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
