// Package config loads the engine's configuration surface: the variant
// selector, include/omit glob lists, and the performance knobs that size
// the analyzer's concurrent re-parse pool (spec.md §6).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/standardbeagle/testimpact/internal/errors"
	"github.com/standardbeagle/testimpact/internal/types"
)

// ConfigFileName is the project-local config file, parsed as KDL.
const ConfigFileName = ".testimpact.kdl"

type Config struct {
	Project     Project
	Performance Performance
	Include     []string
	Exclude     []string
	// VariantExpr is the raw, unevaluated run_variant_expression string
	// (spec.md §6, §9). Resolve() implements the sandboxed grammar from
	// SPEC_FULL.md §6 — never an open eval.
	VariantExpr string
}

type Project struct {
	Root string
}

// Performance sizes the analyzer's bounded concurrent re-parse pool
// (internal/analyzer) and the watch subcommand's debounce window.
type Performance struct {
	ParallelFileWorkers int // 0 = auto-detect (NumCPU)
	WatchDebounceMs     int
}

// DeduplicatePatterns removes duplicate glob patterns while preserving order.
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// defaultExclude mirrors the teacher's language-agnostic ignore list,
// trimmed to directories that should never be tracked regardless of
// project language.
func defaultExclude() []string {
	return []string{
		"**/.git/**",
		"**/node_modules/**",
		"**/vendor/**",
		"**/dist/**",
		"**/build/**",
		"**/target/**",
		"**/__pycache__/**",
		"**/*.pyc",
	}
}

// Load reads the project config from root/.testimpact.kdl if present,
// otherwise returns defaults. Include defaults are inferred from any
// recognized project manifest (internal/config/manifest.go) when the
// config file doesn't specify an explicit include list.
func Load(root string) (*Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}

	cfg, err := LoadKDL(abs)
	if err != nil {
		return nil, errors.NewParseFailureError(types.FilePath(filepath.Join(abs, ConfigFileName)), err)
	}
	if cfg == nil {
		cfg = defaultConfig(abs)
	}

	if len(cfg.Include) == 0 {
		if inferred := NewManifestDetector(abs).DefaultIncludeRoots(); len(inferred) > 0 {
			cfg.Include = inferred
		} else {
			cfg.Include = []string{"**/*"}
		}
	}
	cfg.Exclude = DeduplicatePatterns(append(defaultExclude(), cfg.Exclude...))

	if cfg.Performance.ParallelFileWorkers <= 0 {
		cfg.Performance.ParallelFileWorkers = runtime.NumCPU()
	}

	return cfg, nil
}

func defaultConfig(root string) *Config {
	return &Config{
		Project: Project{Root: root},
		Performance: Performance{
			ParallelFileWorkers: runtime.NumCPU(),
			WatchDebounceMs:     300,
		},
		Include: nil,
		Exclude: nil,
	}
}

// ResolveVariant evaluates VariantExpr against the current environment
// using the sandboxed grammar from SPEC_FULL.md §6: a string literal, an
// env:NAME reference, or "+"-concatenations of those. Anything else makes
// ResolveVariant return an error; it is never evaluated.
func (c *Config) ResolveVariant() (types.Variant, error) {
	if c.VariantExpr == "" {
		return types.Variant(""), nil
	}
	v, err := evalVariantExpr(c.VariantExpr, os.LookupEnv)
	if err != nil {
		return "", fmt.Errorf("resolving run_variant_expression %q: %w", c.VariantExpr, err)
	}
	return types.Variant(v), nil
}
