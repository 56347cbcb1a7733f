// Package config: project manifest sniffing.
//
// Adapted from the teacher's BuildArtifactDetector, which parsed
// language manifests (package.json, Cargo.toml, pyproject.toml) to find
// build *output* directories to exclude. Here the same manifest parsing
// is repurposed to default the *include* glob list when the user hasn't
// specified one explicitly: a Cargo.toml implies "src/**", a
// pyproject.toml implies its declared package directory, and so on.
package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// ManifestDetector infers default include roots from language manifest
// files found at a project's root.
type ManifestDetector struct {
	projectRoot string
}

func NewManifestDetector(projectRoot string) *ManifestDetector {
	return &ManifestDetector{projectRoot: projectRoot}
}

// DefaultIncludeRoots returns include glob patterns inferred from
// manifests present at the project root. Returns nil if none are
// recognized, in which case the caller should fall back to "**/*".
func (d *ManifestDetector) DefaultIncludeRoots() []string {
	var patterns []string
	patterns = append(patterns, d.detectRust()...)
	patterns = append(patterns, d.detectPython()...)
	patterns = append(patterns, d.detectGo()...)
	return patterns
}

func (d *ManifestDetector) detectRust() []string {
	path := filepath.Join(d.projectRoot, "Cargo.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cargo map[string]interface{}
	if toml.Unmarshal(data, &cargo) != nil {
		return nil
	}
	return []string{"src/**/*.rs"}
}

func (d *ManifestDetector) detectPython() []string {
	path := filepath.Join(d.projectRoot, "pyproject.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var project map[string]interface{}
	if toml.Unmarshal(data, &project) != nil {
		return nil
	}

	if tool, ok := project["tool"].(map[string]interface{}); ok {
		if poetry, ok := tool["poetry"].(map[string]interface{}); ok {
			if name, ok := poetry["name"].(string); ok && name != "" {
				return []string{name + "/**/*.py", "tests/**/*.py"}
			}
		}
	}
	return []string{"**/*.py"}
}

func (d *ManifestDetector) detectGo() []string {
	path := filepath.Join(d.projectRoot, "go.mod")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return []string{"**/*.go"}
}
