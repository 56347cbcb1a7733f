package block

import (
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
)

// langSpec binds one or more file extensions to a tree-sitter grammar and
// the query that recovers this spec's block boundaries from it: the file's
// top-level functions and the methods nested in its types. Trimmed from the
// teacher's parser_language_setup.go, which also queries classes,
// interfaces, fields and imports for symbol search — none of which this
// engine's block model needs.
type langSpec struct {
	extensions []string
	language   func() *tree_sitter.Language
	query      string
}

var langSpecs = []langSpec{
	{
		extensions: []string{".go"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_go.Language()) },
		query: `
            (function_declaration name: (identifier) @block.name) @block
            (method_declaration name: (field_identifier) @block.name) @block
            (func_literal) @block
        `,
	},
	{
		extensions: []string{".py"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_python.Language()) },
		query: `
            (class_definition
                body: (block
                    (function_definition name: (identifier) @block.name) @block))
            (function_definition name: (identifier) @block.name) @block
        `,
	},
	{
		extensions: []string{".js", ".jsx"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_javascript.Language()) },
		query: `
            (function_declaration name: (identifier) @block.name) @block
            (generator_function_declaration name: (identifier) @block.name) @block
            (variable_declarator
                name: (identifier) @block.name
                value: [(arrow_function) (function_expression) (generator_function)]) @block
            (method_definition name: (property_identifier) @block.name) @block
        `,
	},
	{
		extensions: []string{".ts", ".tsx"},
		language: func() *tree_sitter.Language {
			return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
		},
		query: `
            (function_declaration name: (identifier) @block.name) @block
            (generator_function_declaration name: (identifier) @block.name) @block
            (method_definition name: (property_identifier) @block.name) @block
            (function_expression name: (identifier) @block.name) @block
        `,
	},
	{
		extensions: []string{".rs"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_rust.Language()) },
		query: `
            (impl_item
                body: (declaration_list
                    (function_item name: (identifier) @block.name) @block))
            (trait_item
                body: (declaration_list
                    (function_item name: (identifier) @block.name) @block))
            (function_item name: (identifier) @block.name) @block
        `,
	},
	{
		extensions: []string{".java"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_java.Language()) },
		query: `
            (method_declaration name: (identifier) @block.name) @block
            (constructor_declaration name: (identifier) @block.name) @block
        `,
	},
	{
		extensions: []string{".cpp", ".cc", ".cxx", ".c", ".h", ".hpp"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_cpp.Language()) },
		query: `
            (function_definition declarator: (function_declarator declarator: (identifier) @block.name)) @block
        `,
	},
	{
		extensions: []string{".cs"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_csharp.Language()) },
		query: `
            (method_declaration name: (identifier) @block.name) @block
            (constructor_declaration name: (identifier) @block.name) @block
        `,
	},
	{
		extensions: []string{".php", ".phtml"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP()) },
		query: `
            (function_definition name: (name) @block.name) @block
            (method_declaration name: (name) @block.name) @block
        `,
	},
	{
		extensions: []string{".zig"},
		language:   func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_zig.Language()) },
		query: `
            (function_declaration (identifier) @block.name) @block
        `,
	},
}

// registry holds one compiled query and one *sync.Pool of tree-sitter
// parsers per recognized extension. The query is read-only and safe to
// share; the parser is not — tree-sitter's Parser.Parse mutates internal
// state and two goroutines calling it on the same instance concurrently
// is a data race, so analyzer.Reparse's concurrent re-parse fan-out needs
// one parser per in-flight goroutine rather than one shared instance per
// language. A sync.Pool hands each parseWithGrammar call its own parser,
// checked back in when done, and grows lazily under concurrent load
// instead of pre-allocating one per worker.
type registry struct {
	pools   map[string]*sync.Pool
	queries map[string]*tree_sitter.Query
}

func newRegistry() *registry {
	r := &registry{
		pools:   make(map[string]*sync.Pool),
		queries: make(map[string]*tree_sitter.Query),
	}
	for _, spec := range langSpecs {
		spec := spec
		language := spec.language()
		// The Go tree-sitter binding can return a typed-nil error from
		// NewQuery; check the query value itself, not err, as the
		// teacher's setup* methods do throughout parser_language_setup.go.
		query, _ := tree_sitter.NewQuery(language, spec.query)
		if query == nil {
			continue
		}

		pool := newParserPool(spec.language)
		probe := pool.Get()
		if probe == nil {
			continue
		}
		pool.Put(probe)

		for _, ext := range spec.extensions {
			r.pools[ext] = pool
			r.queries[ext] = query
		}
	}
	return r
}

// newParserPool builds a sync.Pool whose New func constructs a fresh
// tree-sitter parser bound to language, so every checkout is a distinct
// instance safe for its borrower to mutate.
func newParserPool(language func() *tree_sitter.Language) *sync.Pool {
	return &sync.Pool{
		New: func() any {
			p := tree_sitter.NewParser()
			if err := p.SetLanguage(language()); err != nil {
				return nil
			}
			return p
		},
	}
}

func (r *registry) supports(ext string) bool {
	_, ok := r.pools[ext]
	return ok
}
