// Package coverage implements the coverage folder (spec.md §4.B): the
// pure function that collapses a tracer's executed-line set for one file
// into the set of block checksums those lines touched.
package coverage

import (
	"github.com/standardbeagle/testimpact/internal/block"
	"github.com/standardbeagle/testimpact/internal/types"
)

// Fold returns the set of checksums of the blocks that own at least one
// line of executedLines, a line's owner being the innermost block
// containing it (block.Owner); an enclosing block such as the module
// prelude is included only for executed lines that no nested block
// covers. Order of blocks is irrelevant; an empty executedLines
// input yields the empty set. Lines outside every block — blank lines or
// comment-only lines a conservative tracer still reports — are ignored,
// matching spec.md §4.B's edge cases.
func Fold(blocks []block.Block, executedLines map[int]struct{}) map[types.Checksum]struct{} {
	result := make(map[types.Checksum]struct{})
	if len(executedLines) == 0 {
		return result
	}
	for line := range executedLines {
		i := block.Owner(blocks, line)
		if i == -1 {
			continue
		}
		result[blocks[i].Checksum] = struct{}{}
	}
	return result
}
