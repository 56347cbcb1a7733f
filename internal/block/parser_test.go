package block

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const goSample = `package sample

import "fmt"

func Add(a, b int) int {
	return a + b
}

func Sub(a, b int) int {
	return a - b
}
`

// P1 Determinism: parsing the same file twice yields identical checksums.
func TestParseIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "sample.go", goSample)

	p := NewParser()
	first, err := p.Parse(path)
	require.NoError(t, err)
	second, err := p.Parse(path)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Checksum, second[i].Checksum)
		assert.Equal(t, first[i].Start, second[i].Start)
		assert.Equal(t, first[i].End, second[i].End)
	}
}

// P2 Cosmetic invariance: reindenting and adding comments around a
// function without touching its statements leaves its checksum unchanged.
func TestParseCosmeticEditsPreserveChecksum(t *testing.T) {
	dir := t.TempDir()
	original := writeSource(t, dir, "a.go", goSample)

	cosmetic := `package sample

import "fmt"

// Add sums two integers.
func Add(a, b int) int {
	return a + b
}

func Sub(a, b int) int {

	return a - b

}
`
	edited := writeSource(t, dir, "b.go", cosmetic)

	p := NewParser()
	before, err := p.Parse(original)
	require.NoError(t, err)
	after, err := p.Parse(edited)
	require.NoError(t, err)

	addBefore := findBlockByName(t, before, "Add")
	addAfter := findBlockByName(t, after, "Add")
	assert.Equal(t, addBefore.Checksum, addAfter.Checksum)

	subBefore := findBlockByName(t, before, "Sub")
	subAfter := findBlockByName(t, after, "Sub")
	assert.Equal(t, subBefore.Checksum, subAfter.Checksum)
}

// A genuine statement-level edit must change the block's checksum.
func TestParseStatementEditChangesChecksum(t *testing.T) {
	dir := t.TempDir()
	original := writeSource(t, dir, "a.go", goSample)

	edited := writeSource(t, dir, "b.go", `package sample

import "fmt"

func Add(a, b int) int {
	return a + b + 1
}

func Sub(a, b int) int {
	return a - b
}
`)

	p := NewParser()
	before, err := p.Parse(original)
	require.NoError(t, err)
	after, err := p.Parse(edited)
	require.NoError(t, err)

	addBefore := findBlockByName(t, before, "Add")
	addAfter := findBlockByName(t, after, "Add")
	assert.NotEqual(t, addBefore.Checksum, addAfter.Checksum)
}

// Every parsed Go source yields exactly one module-prelude block in
// addition to its declarations, and no two blocks share a checksum.
func TestParseGoYieldsPreludePlusDeclarations(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "sample.go", goSample)

	p := NewParser()
	blocks, err := p.Parse(path)
	require.NoError(t, err)

	var preludes, decls int
	seen := make(map[Type]int)
	checksums := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		seen[b.Type]++
		checksums[string(b.Checksum)] = true
		switch b.Type {
		case TypePrelude:
			preludes++
		case TypeDeclaration:
			decls++
		}
	}
	assert.Equal(t, 1, preludes)
	assert.GreaterOrEqual(t, decls, 2)
	assert.Len(t, checksums, len(blocks))
}

// An unrecognized extension falls back to the degenerate whole-file block
// (spec.md §4.A "Errors"), checksummed over raw bytes.
func TestParseUnsupportedExtensionDegenerates(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "notes.txt", "just some\nplain text\n")

	p := NewParser()
	blocks, err := p.Parse(path)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, TypeDegenerate, blocks[0].Type)
	assert.Equal(t, rawChecksum([]byte("just some\nplain text\n")), blocks[0].Checksum)
}

// A missing file surfaces FileMissing rather than any fallback.
func TestParseMissingFileReturnsError(t *testing.T) {
	p := NewParser()
	_, err := p.Parse(filepath.Join(t.TempDir(), "absent.go"))
	require.Error(t, err)
}

// Smoke test: the Python grammar recovers nested method definitions as
// separate blocks from their enclosing class.
func TestParsePythonRecoversMethods(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "sample.py", `class Greeter:
    def hello(self):
        return "hi"

    def bye(self):
        return "bye"
`)

	p := NewParser()
	blocks, err := p.Parse(path)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, b := range blocks {
		names[b.Name] = true
	}
	assert.True(t, names["hello"])
	assert.True(t, names["bye"])
}

// One Parser's registry hands out a distinct tree-sitter parser instance
// per concurrent caller for a given extension (internal/block/languages.go's
// per-extension sync.Pool); run with `go test -race` this must never
// trip tree-sitter's own "not safe for concurrent use" detector, which a
// single shared *tree_sitter.Parser across goroutines would.
func TestParseIsSafeForConcurrentCallers(t *testing.T) {
	dir := t.TempDir()
	p := NewParser()

	const workers = 8
	paths := make([]string, workers)
	for i := range paths {
		paths[i] = writeSource(t, dir, fmt.Sprintf("f%d.go", i), fmt.Sprintf(`package sample

func F%d(a, b int) int {
	return a + b + %d
}
`, i, i))
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			_, err := p.Parse(path)
			errs[i] = err
		}(i, path)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "worker %d", i)
	}
}

func findBlockByName(t *testing.T, blocks []Block, name string) Block {
	t.Helper()
	for _, b := range blocks {
		if b.Name == name {
			return b
		}
	}
	t.Fatalf("no block named %q among %d blocks", name, len(blocks))
	return Block{}
}
