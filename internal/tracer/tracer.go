// Package tracer defines the coverage tracer collaborator (spec.md §6,
// §4.E) — an external concern the core only consumes through this
// interface — plus one concrete adapter, govet, that reads the coverage
// profile format Go's own toolchain produces.
package tracer

import "github.com/standardbeagle/testimpact/internal/types"

// Tracer is the line-coverage collaborator spec.md §6 describes: "must be
// start/stop/erase/combine capable and must honor include/omit path
// lists." The core never drives a tracer directly; internal/session
// orchestrates one through this interface.
type Tracer interface {
	// Start begins a tracked invocation, scoped to paths under include
	// and excluding anything under omit (e.g. interpreter/library paths).
	Start(include, omit []string) error
	// Stop ends the tracked invocation and returns the per-file sets of
	// executed line numbers it observed.
	Stop() (map[types.FilePath]map[int]struct{}, error)
	// Erase discards any buffered measurement without reporting it.
	Erase()
	// Combine merges another tracer's measured data into this one's,
	// used when a tracked test spawns subprocesses each running their
	// own tracer instance (spec.md §5).
	Combine(other map[types.FilePath]map[int]struct{})
}
