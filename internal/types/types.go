// Package types holds the identifiers and small value types shared across
// the test-impact engine's core packages.
package types

import "strings"

// TestId identifies one test, e.g. "path/to/file_test.go::TestFoo".
// Unique within a Variant.
type TestId string

// FilePath is a root-relative or absolute path to a tracked source file.
type FilePath string

// Variant is a namespace key selecting an independent index within one
// store (spec.md §3 "Variant"). The empty string is the default variant.
type Variant string

// Checksum is a fixed-width hex digest identifying a block's canonical
// content (spec.md §3 "BlockChecksum").
type Checksum string

// DataID builds the storage key "<variant>:<attribute>" used by the
// dependency index (spec.md §6).
func DataID(v Variant, attribute string) string {
	var b strings.Builder
	b.WriteString(string(v))
	b.WriteByte(':')
	b.WriteString(attribute)
	return b.String()
}

// Storage attribute names, per spec.md §6.
const (
	AttrMTimes     = "mtimes"
	AttrNodeData   = "node_data"
	AttrReports    = "reports"
	AttrLastFailed = "lastfailed"
)
