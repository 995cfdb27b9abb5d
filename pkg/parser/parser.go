package parser

// Package parser implements a hand-written recursive-descent FHIRPath
// parser using Pratt's "Top Down Operator Precedence" technique to resolve
// FHIRPath's operator precedence table (spec §4.2).
//
// # Architecture
//
//   - Lexer: tokenizes the source into a stream of Tokens.
//   - Parser: builds an *types.ASTNode tree from the token stream, bump-
//     allocating every node from a single types.NodeArena.
//   - Printer: renders an ASTNode tree back to canonical FHIRPath source,
//     used by the parse-print round-trip tests.
//
// # Example
//
//	expr, err := parser.Parse("Patient.name.where(use = 'official').given")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ast := expr.AST()
import (
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// Parse lexes and parses a FHIRPath expression, returning the compiled
// Expression or the first ParseError encountered.
func Parse(source string) (*types.Expression, error) {
	p := NewParser(source)
	return p.Parse()
}

// ParseOption configures parsing behavior.
type ParseOption func(*ParseOptions)

// ParseOptions holds parser configuration.
type ParseOptions struct {
	// MaxDepth bounds recursion depth to guard against pathological or
	// adversarial input; 0 means DefaultMaxDepth.
	MaxDepth int
}

const DefaultMaxDepth = 250

// WithMaxDepth overrides the recursion depth limit.
func WithMaxDepth(depth int) ParseOption {
	return func(o *ParseOptions) { o.MaxDepth = depth }
}
