package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestDetectorGo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/x\n\ngo 1.24\n"), 0o644))

	got := NewManifestDetector(dir).DefaultIncludeRoots()
	assert.Contains(t, got, "**/*.go")
}

func TestManifestDetectorRust(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package]\nname = \"x\"\n"), 0o644))

	got := NewManifestDetector(dir).DefaultIncludeRoots()
	assert.Contains(t, got, "src/**/*.rs")
}

func TestManifestDetectorNoneRecognized(t *testing.T) {
	dir := t.TempDir()
	got := NewManifestDetector(dir).DefaultIncludeRoots()
	assert.Empty(t, got)
}
