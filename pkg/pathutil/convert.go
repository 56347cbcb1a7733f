// Package pathutil converts between absolute and relative paths.
//
// The dependency index stores file paths the way the parser/tracer saw
// them (usually absolute, per spec.md §3's FilePath); CLI output is more
// readable relative to the project root, so this is the conversion layer
// between the two.
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/standardbeagle/testimpact/internal/types"
)

// ToRelative converts an absolute path to relative based on a root directory.
// Falls back to the original path if conversion fails or path is already relative.
//
// Examples:
//   - ToRelative("/home/user/project/src/main.go", "/home/user/project") → "src/main.go"
//   - ToRelative("/other/location/file.go", "/home/user/project") → "/other/location/file.go" (outside root)
//   - ToRelative("src/main.go", "/home/user/project") → "src/main.go" (already relative)
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		return absPath
	}

	// A ".." prefix means the file is outside root; the absolute path is
	// the clearer of the two in that case.
	if strings.HasPrefix(relPath, "..") {
		return absPath
	}
	return relPath
}

// ToRelativeFilePath is ToRelative lifted to internal/types.FilePath, for
// callers (the inspect CLI output) that carry paths as that
// type throughout.
func ToRelativeFilePath(path types.FilePath, rootDir string) types.FilePath {
	return types.FilePath(ToRelative(string(path), rootDir))
}
