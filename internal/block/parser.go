package block

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	blockerrors "github.com/standardbeagle/testimpact/internal/errors"
	"github.com/standardbeagle/testimpact/internal/types"
)

// Parser turns source files into Blocks. One Parser holds a compiled query
// plus a pool of tree-sitter parsers per recognized extension, and is safe
// to reuse across files and goroutines: each Parse call checks out its own
// parser instance rather than sharing one across concurrent callers
// (grounded on the teacher's TreeSitterParser, internal/parser/parser.go,
// which is built once per index and shared).
type Parser struct {
	mu  sync.Mutex
	reg *registry
}

// NewParser builds a Parser with every language this engine recognizes
// registered and ready.
func NewParser() *Parser {
	return &Parser{reg: newRegistry()}
}

// Parse reads path and splits it into a sequence of Blocks ordered by start
// line per spec.md §4.A. Declared spans nest (the prelude block spans the
// whole file); each line is owned by exactly one block, the innermost one
// containing it (see Owner). A missing file returns a FileMissingError.
// A file whose extension has no registered grammar, or whose content the
// grammar can't parse, falls back to the single degenerate block described
// in spec.md §4.A "Errors" rather than failing the call.
func (p *Parser) Parse(path string) ([]Block, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, blockerrors.NewFileMissingError(types.FilePath(path))
		}
		return nil, blockerrors.NewParseFailureError(types.FilePath(path), err)
	}

	ext := strings.ToLower(filepath.Ext(path))

	p.mu.Lock()
	supported := p.reg.supports(ext)
	p.mu.Unlock()
	if !supported {
		return degenerateBlock(content), nil
	}

	blocks, err := p.parseWithGrammar(path, ext, content)
	if err != nil {
		// A grammar that can't cope with this file's content still yields
		// a usable, if coarse, fingerprint — spec.md §4.A requires parse
		// failures to degrade gracefully rather than stall the engine.
		return degenerateBlock(content), nil
	}
	return blocks, nil
}

// parseWithGrammar runs the language's query against content and builds
// the file's prelude block plus one block per captured declaration.
func (p *Parser) parseWithGrammar(path, ext string, content []byte) (blocks []Block, err error) {
	defer func() {
		// Tree-sitter's C library can panic across the CGO boundary on
		// pathological input; recover and let the caller fall back to the
		// degenerate block, matching the teacher's own parser.go recover
		// pattern around every Parse call.
		if r := recover(); r != nil {
			err = blockerrors.NewParseFailureError(types.FilePath(path), panicError{r})
		}
	}()

	p.mu.Lock()
	pool := p.reg.pools[ext]
	query := p.reg.queries[ext]
	p.mu.Unlock()

	parser, _ := pool.Get().(*tree_sitter.Parser)
	if parser == nil {
		return nil, blockerrors.NewParseFailureError(types.FilePath(path), errParseReturnedNil)
	}
	defer pool.Put(parser)

	// The tree-sitter C library mutates the buffer it's handed; copy so a
	// caller's own content slice is never touched (teacher's copy-on-parse
	// pattern, internal/parser/parser.go).
	buf := make([]byte, len(content))
	copy(buf, content)

	tree := parser.Parse(buf, nil)
	if tree == nil {
		return nil, blockerrors.NewParseFailureError(types.FilePath(path), errParseReturnedNil)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, blockerrors.NewParseFailureError(types.FilePath(path), errParseReturnedNil)
	}
	if root.HasError() {
		return nil, blockerrors.NewParseFailureError(types.FilePath(path), errSyntax)
	}
	lineCount := strings.Count(string(buf), "\n") + 1

	declSpans := collectDeclarations(query, root, buf)
	commentRanges := collectComments(root)

	masked := maskComments(buf, commentRanges)

	blocks = make([]Block, 0, len(declSpans)+1)
	for _, d := range declSpans {
		blocks = append(blocks, Block{
			Start: d.start,
			End:   d.end,
			Type:  TypeDeclaration,
			Name:  d.name,
		})
	}
	blocks = append(blocks, Block{
		Start: 1,
		End:   lineCount,
		Type:  TypePrelude,
		Name:  filepath.Base(path),
	})

	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Start < blocks[j].Start })

	for i := range blocks {
		lines := ownedLines(blocks, i, lineCount)
		blocks[i].Checksum = checksum(strings.Join(canonicalLines(masked, lines), "\n"))
	}

	return blocks, nil
}

// declSpan is one @block capture: a named declaration's 1-indexed, inclusive
// line span plus whatever name the query captured for it (may be empty,
// e.g. Go's anonymous func_literal).
type declSpan struct {
	start, end int
	name       string
}

// collectDeclarations runs query over root and returns one declSpan per
// @block capture, resolving its @block.name sibling capture in the same
// match when present (teacher's extractBasicSymbolsStringRef in
// internal/parser/parser.go walks matches the same way).
func collectDeclarations(query *tree_sitter.Query, root *tree_sitter.Node, content []byte) []declSpan {
	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()

	captureNames := query.CaptureNames()
	matches := qc.Matches(query, root, content)

	var spans []declSpan
	for {
		match := matches.Next()
		if match == nil {
			break
		}

		var blockNode *tree_sitter.Node
		name := ""
		for _, c := range match.Captures {
			captureName := captureNames[c.Index]
			node := c.Node
			switch {
			case captureName == "block":
				blockNode = &node
			case strings.HasSuffix(captureName, ".name"):
				name = string(content[node.StartByte():node.EndByte()])
			}
		}
		if blockNode == nil {
			continue
		}
		spans = append(spans, declSpan{
			start: int(blockNode.StartPosition().Row) + 1,
			end:   int(blockNode.EndPosition().Row) + 1,
			name:  name,
		})
	}
	return spans
}

// collectComments walks the tree for every node whose kind names it a
// comment, across every grammar this engine supports, without needing a
// per-language comment query (grammars name these "comment",
// "line_comment" or "block_comment").
func collectComments(root *tree_sitter.Node) []byteRange {
	var ranges []byteRange
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		if strings.Contains(n.Kind(), "comment") {
			ranges = append(ranges, byteRange{Start: int(n.StartByte()), End: int(n.EndByte())})
			return
		}
		count := int(n.ChildCount())
		for i := 0; i < count; i++ {
			walk(n.Child(uint(i)))
		}
	}
	walk(root)
	return ranges
}

// ownedLines returns the set of 1-indexed lines that blocks[i] owns: lines
// within its span not claimed by a smaller nested block (spec.md §4.A, via
// Owner's innermost-containment rule).
func ownedLines(blocks []Block, i, lineCount int) map[int]bool {
	b := blocks[i]
	lines := make(map[int]bool, b.Span()+1)
	for line := b.Start; line <= b.End && line <= lineCount; line++ {
		if Owner(blocks, line) == i {
			lines[line] = true
		}
	}
	return lines
}

// degenerateBlock builds the single whole-file block spec.md §4.A specifies
// for files with no registered grammar or that the grammar rejects: any
// edit anywhere in the file invalidates it, cosmetic or not.
func degenerateBlock(content []byte) []Block {
	lineCount := strings.Count(string(content), "\n") + 1
	return []Block{{
		Start:    1,
		End:      lineCount,
		Type:     TypeDegenerate,
		Checksum: rawChecksum(content),
	}}
}

type panicError struct{ v any }

func (p panicError) Error() string { return "tree-sitter panic" }

var errParseReturnedNil = panicError{v: "parser returned nil tree"}

var errSyntax = errors.New("source contains syntax errors")
