// Package evaluator walks a parsed FHIRPath AST against a FHIR resource and
// produces a result Value (spec §4).
//
// The evaluator receives the AST produced by pkg/parser and a root input
// Value (almost always a Resource), and tree-walks it node by node:
//   - Navigation (identifier/property/index) reads FHIR resource JSON via
//     pkg/fhirjson, consulting an optional schema.Provider for choice-type
//     (`value[x]`) resolution.
//   - Operators implement FHIRPath's three-valued logic and singleton-
//     lifting arithmetic/comparison rules directly over Value.
//   - Function and method calls dispatch to pkg/registry, which owns every
//     built-in function's implementation; the evaluator only supplies the
//     registry.EvalContext callback surface (lambda evaluation, variable
//     scoping, tracing) those implementations need.
//
// # Example
//
//	eval := evaluator.New()
//	result, err := eval.Eval(ctx, expr, types.NewResource(patientJSON, "Patient"))
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fhirpath-go/fhirpath/pkg/registry"
	"github.com/fhirpath-go/fhirpath/pkg/schema"
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// Evaluator evaluates FHIRPath expressions against FHIR resource data.
type Evaluator struct {
	opts   EvalOptions
	logger *slog.Logger
	reg    *registry.Registry
}

// EvalOptions configures evaluator behavior.
type EvalOptions struct {
	// MaxDepth limits AST recursion depth, guarding against pathological
	// expressions (deeply nested parentheses, runaway repeat() chains).
	MaxDepth int
	// Timeout bounds a single Eval call's wall-clock time.
	Timeout time.Duration
	// Logger receives structured diagnostics: a warning when an Eval call
	// ends cancelled or timed out, and the default Trace sink's debug
	// records. Defaults to slog.Default().
	Logger *slog.Logger
	// Schema resolves FHIR type names and choice properties during
	// navigation. May be nil, in which case navigation falls back to
	// fhirjson's direct/prefix heuristic (spec §7).
	Schema schema.Provider
	// Registry supplies function/operator implementations. Defaults to
	// registry.Default().
	Registry *registry.Registry
	// Trace receives trace(name, value) calls. Defaults to a slog-backed
	// sink at debug level.
	Trace TraceFunc
}

// EvalOption configures evaluation behavior.
type EvalOption func(*EvalOptions)

func WithMaxDepth(depth int) EvalOption {
	return func(o *EvalOptions) { o.MaxDepth = depth }
}

func WithTimeout(d time.Duration) EvalOption {
	return func(o *EvalOptions) { o.Timeout = d }
}

func WithLogger(logger *slog.Logger) EvalOption {
	return func(o *EvalOptions) { o.Logger = logger }
}

func WithSchema(sch schema.Provider) EvalOption {
	return func(o *EvalOptions) { o.Schema = sch }
}

func WithRegistry(reg *registry.Registry) EvalOption {
	return func(o *EvalOptions) { o.Registry = reg }
}

func WithTrace(fn TraceFunc) EvalOption {
	return func(o *EvalOptions) { o.Trace = fn }
}

// New creates a new Evaluator with default options.
func New(opts ...EvalOption) *Evaluator {
	options := EvalOptions{
		MaxDepth: 250,
		Timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Registry == nil {
		options.Registry = registry.Default()
	}
	if options.Trace == nil {
		logger := options.Logger
		options.Trace = func(name string, value types.Value) {
			logger.Debug("fhirpath trace", "name", name, "value", value.String())
		}
	}
	return &Evaluator{opts: options, logger: options.Logger, reg: options.Registry}
}

// Eval evaluates expr's AST against input. Each call is tagged with a
// fresh invocation id so a Logger shared across concurrent Eval calls (the
// common case for a schema-cache-backed Evaluator serving many requests)
// can correlate a timeout/cancellation log line back to the call it
// belongs to.
func (e *Evaluator) Eval(ctx context.Context, expr *types.Expression, input types.Value) (types.Value, error) {
	if expr == nil || expr.AST() == nil {
		return types.Empty, fmt.Errorf("evaluator: invalid expression")
	}
	invocationID := uuid.New()
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}
	ec := newRootContext(ctx, e.reg, e.opts.Schema, e.opts.Trace, input, e.opts.MaxDepth)
	result, err := evalNode(ec, expr.AST())
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.logger.Warn("fhirpath evaluation cancelled", "invocation_id", invocationID, "cause", ctxErr)
	}
	return result, err
}
