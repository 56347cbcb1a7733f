package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/standardbeagle/testimpact/internal/block"
	"github.com/standardbeagle/testimpact/internal/types"
)

func lines(nums ...int) map[int]struct{} {
	out := make(map[int]struct{}, len(nums))
	for _, n := range nums {
		out[n] = struct{}{}
	}
	return out
}

func checksums(vals ...string) map[types.Checksum]struct{} {
	out := make(map[types.Checksum]struct{}, len(vals))
	for _, v := range vals {
		out[types.Checksum(v)] = struct{}{}
	}
	return out
}

func TestFoldEmptyExecutedYieldsEmptySet(t *testing.T) {
	blocks := []block.Block{{Start: 1, End: 10, Checksum: "f1"}}
	got := Fold(blocks, nil)
	assert.Empty(t, got)
}

func TestFoldMapsLinesToOwningBlock(t *testing.T) {
	blocks := []block.Block{
		{Start: 1, End: 20, Type: block.TypePrelude, Checksum: "prelude"},
		{Start: 2, End: 5, Type: block.TypeDeclaration, Checksum: "f"},
		{Start: 8, End: 12, Type: block.TypeDeclaration, Checksum: "g"},
	}
	got := Fold(blocks, lines(3, 9))
	assert.Equal(t, checksums("f", "g"), got)
}

func TestFoldIgnoresLinesOutsideAnyBlock(t *testing.T) {
	blocks := []block.Block{{Start: 5, End: 10, Checksum: "f"}}
	got := Fold(blocks, lines(1, 7, 100))
	assert.Equal(t, checksums("f"), got)
}

func TestFoldImportOnlyCoverageHitsPrelude(t *testing.T) {
	blocks := []block.Block{
		{Start: 1, End: 10, Type: block.TypePrelude, Checksum: "prelude"},
		{Start: 4, End: 6, Type: block.TypeDeclaration, Checksum: "f"},
	}
	got := Fold(blocks, lines(1))
	assert.Equal(t, checksums("prelude"), got)
}
