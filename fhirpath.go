// Package fhirpath provides a Go implementation of the FHIRPath expression
// language (http://hl7.org/fhirpath/) for navigating and querying FHIR
// resource data.
//
// FHIRPath is a path-based navigation and extraction language, similar in
// spirit to XPath, defined over a tree of typed values rather than raw
// JSON. This package compiles expressions once via Parse and evaluates the
// resulting Expression any number of times against different resources.
//
// # Quick start
//
//	expr, err := fhirpath.Parse("Patient.name.where(use = 'official').given")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := fhirpath.Evaluate(ctx, expr, types.NewResource(patientJSON, "Patient"))
//
// # Caching
//
// Callers that re-evaluate the same expression string repeatedly (the
// common case for a FHIRPath engine embedded in a validator or mapping
// pipeline) should compile once with Parse/MustParse and reuse the
// *types.Expression, or use pkg/cache's LRU to memoize Parse itself.
//
// # Schema awareness
//
// Evaluate and Analyze both accept a schema.Provider, which resolves FHIR
// type names and `value[x]` choice properties. A nil provider is legal:
// navigation degrades to a direct/prefix-scan heuristic over JSON and the
// analyzer skips checks it cannot statically confirm (spec "schema
// availability failures").
package fhirpath

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fhirpath-go/fhirpath/pkg/analyzer"
	"github.com/fhirpath-go/fhirpath/pkg/cache"
	"github.com/fhirpath-go/fhirpath/pkg/evaluator"
	"github.com/fhirpath-go/fhirpath/pkg/parser"
	"github.com/fhirpath-go/fhirpath/pkg/schema"
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// Parse lexes and parses a FHIRPath expression, returning the compiled
// Expression or the first ParseError encountered.
func Parse(source string) (*types.Expression, error) {
	return parser.Parse(source)
}

// MustParse is like Parse but panics if source cannot be parsed. It
// simplifies safe initialization of package-level expression variables.
func MustParse(source string) *types.Expression {
	expr, err := Parse(source)
	if err != nil {
		panic(fmt.Sprintf("fhirpath: Parse(%q): %v", source, err))
	}
	return expr
}

// ExpressionCache is a thread-safe LRU of compiled expressions, re-exported
// so callers embedding this engine in a validator or mapping pipeline (the
// common case for repeated evaluation of a small set of path strings) don't
// need to import pkg/cache directly.
type ExpressionCache = cache.Cache

// NewExpressionCache creates an expression cache holding up to capacity
// compiled expressions (0 or negative uses a default of 256).
func NewExpressionCache(capacity int) *ExpressionCache {
	return cache.New(capacity)
}

// ParseCached parses source through c: a cached Expression is returned as
// is, and on a miss source is parsed and, if it parses, stored in c. Parse
// errors are not cached, so a failing or evicted source is parsed again on
// its next call.
func ParseCached(c *ExpressionCache, source string) (*types.Expression, error) {
	return c.GetOrCompile(source, func() (*types.Expression, error) { return Parse(source) })
}

// Analyze statically checks expr for unknown identifiers, properties,
// functions, and operator-type mismatches, using provider (which may be
// nil) to resolve FHIR type information.
func Analyze(expr *types.Expression, provider schema.Provider, opts ...analyzer.Option) (*analyzer.Result, error) {
	return analyzer.Analyze(context.Background(), expr, provider, opts...)
}

// EvalOption configures an Evaluate call's underlying evaluator.
type EvalOption = evaluator.EvalOption

// WithMaxDepth re-exports evaluator.WithMaxDepth.
func WithMaxDepth(depth int) EvalOption { return evaluator.WithMaxDepth(depth) }

// WithTimeout re-exports evaluator.WithTimeout.
func WithTimeout(d time.Duration) EvalOption { return evaluator.WithTimeout(d) }

// WithLogger re-exports evaluator.WithLogger.
func WithLogger(logger *slog.Logger) EvalOption { return evaluator.WithLogger(logger) }

// WithSchema re-exports evaluator.WithSchema.
func WithSchema(sch schema.Provider) EvalOption { return evaluator.WithSchema(sch) }

// WithTrace re-exports evaluator.WithTrace.
func WithTrace(fn evaluator.TraceFunc) EvalOption { return evaluator.WithTrace(fn) }

// Evaluate evaluates expr's AST against input, returning the result Value
// or an *types.EvaluationError on a hard failure.
func Evaluate(ctx context.Context, expr *types.Expression, input types.Value, opts ...EvalOption) (types.Value, error) {
	eval := evaluator.New(opts...)
	return eval.Eval(ctx, expr, input)
}

// EvaluateString compiles source and evaluates it against input in one call.
// For repeated evaluation of the same expression, prefer Parse + Evaluate.
func EvaluateString(ctx context.Context, source string, input types.Value, opts ...EvalOption) (types.Value, error) {
	expr, err := Parse(source)
	if err != nil {
		return types.Empty, err
	}
	return Evaluate(ctx, expr, input, opts...)
}
