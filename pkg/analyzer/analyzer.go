// Package analyzer performs static analysis of a parsed FHIRPath expression
// (spec §4.3): unknown identifier/property/function detection, arity
// checking against the registry, and operator operand-type checking, all
// reported as non-fatal AnalysisDiagnostics rather than hard errors.
//
// There is no teacher analogue — JSONata's reference implementation skips
// static typing entirely — so this package is built from scratch, but in
// the teacher's idiom: a direct switch-on-node-type walk (mirroring
// pkg/evaluator's eval_node.go dispatch) rather than a visitor interface.
//
// A nil schema.Provider, or one that errors/returns not-found, degrades the
// walk to a permissive "type unknown" mode rather than failing outright
// (spec §7 "schema availability failures") — the analyzer only reports
// what it can actually confirm is wrong.
package analyzer

import (
	"context"

	"github.com/fhirpath-go/fhirpath/pkg/registry"
	"github.com/fhirpath-go/fhirpath/pkg/schema"
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// Result holds every diagnostic collected during Analyze.
type Result struct {
	Diagnostics []types.AnalysisDiagnostic
}

// HasErrors reports whether any diagnostic carries SeverityError.
func (r *Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == types.SeverityError {
			return true
		}
	}
	return false
}

// Option configures an analysis run.
type Option func(*analysisState)

// WithRegistry overrides the default function/operator registry consulted
// for name/arity checks.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *analysisState) { s.reg = reg }
}

// analysisState threads the provider, registry, and known "current type"
// (when the schema can tell us) through the recursive walk. The current type
// is not a field: walk receives it as its cur argument, the
// TypeReflectionInfo of the value flowing into the node being visited; it is
// the zero value (Kind == ReflectionSimple, Name == "") when unknown.
type analysisState struct {
	ctx      context.Context
	provider schema.Provider
	reg      *registry.Registry
	diags    *[]types.AnalysisDiagnostic
}

// Analyze statically checks expr against provider (which may be nil) and
// the default registry, returning every diagnostic found. It never returns
// a non-nil error itself — failures surface as SeverityError diagnostics —
// except when expr itself is malformed (e.g. nil AST).
func Analyze(ctx context.Context, expr *types.Expression, provider schema.Provider, opts ...Option) (*Result, error) {
	if expr == nil || expr.AST() == nil {
		return nil, &types.EvaluationError{Kind: types.KindInternal, Message: "analyzer: invalid expression"}
	}
	var diags []types.AnalysisDiagnostic
	st := &analysisState{ctx: ctx, provider: provider, reg: registry.Default(), diags: &diags}
	for _, opt := range opts {
		opt(st)
	}

	root := rootType(ctx, provider, expr.AST())
	st.walk(expr.AST(), root)
	return &Result{Diagnostics: diags}, nil
}

// rootType attempts to resolve the expression's root node to a concrete
// type, so property navigation starting from e.g. `Patient.name` can be
// checked. Any expression not rooted at a bare resource-type identifier (a
// sub-expression, `%resource`-relative path, etc.) starts with an unknown
// type instead of failing.
func rootType(ctx context.Context, provider schema.Provider, n *types.ASTNode) types.TypeReflectionInfo {
	if provider == nil {
		return types.TypeReflectionInfo{}
	}
	leftmost := leftmostIdentifier(n)
	if leftmost == "" {
		return types.TypeReflectionInfo{}
	}
	info, ok, err := provider.GetType(ctx, leftmost)
	if err != nil || !ok {
		return types.TypeReflectionInfo{}
	}
	return info
}

func leftmostIdentifier(n *types.ASTNode) string {
	for n != nil {
		switch n.Type {
		case types.NodeIdentifier:
			return n.Name
		case types.NodeProperty, types.NodeMethod, types.NodeIndex, types.NodeTypeCheck, types.NodeTypeCast:
			n = n.Base
		default:
			return ""
		}
	}
	return ""
}

func (s *analysisState) add(d types.AnalysisDiagnostic) {
	*s.diags = append(*s.diags, d)
}

// walk visits n, reporting diagnostics, and returns n's statically known
// result type (zero value when not determinable).
func (s *analysisState) walk(n *types.ASTNode, cur types.TypeReflectionInfo) types.TypeReflectionInfo {
	if n == nil {
		return types.TypeReflectionInfo{}
	}
	switch n.Type {
	case types.NodeLiteral:
		return literalType(n)

	case types.NodeIdentifier:
		return s.walkIdentifier(n, cur)

	case types.NodeProperty:
		base := s.walk(n.Base, cur)
		return s.walkProperty(n, base)

	case types.NodeMethod:
		base := s.walk(n.Base, cur)
		s.walkFunctionArgs(n.Args, base)
		return s.walkFunction(n, base)

	case types.NodeFunction:
		s.walkFunctionArgs(n.Args, cur)
		return s.walkFunction(n, cur)

	case types.NodeIndex:
		s.walk(n.Base, cur)
		if n.Index != nil {
			s.walk(n.Index, cur)
		}
		return types.TypeReflectionInfo{}

	case types.NodeBinary:
		left := s.walk(n.Left, cur)
		right := s.walk(n.Right, cur)
		return s.checkOperator(n, left, right)

	case types.NodeUnary:
		return s.walk(n.Right, cur)

	case types.NodeUnion:
		s.walk(n.Left, cur)
		s.walk(n.Right, cur)
		return types.TypeReflectionInfo{}

	case types.NodeVariable:
		return types.TypeReflectionInfo{}

	case types.NodeCollection:
		for _, el := range n.Elements {
			s.walk(el, cur)
		}
		return types.TypeReflectionInfo{}

	case types.NodeTypeCheck, types.NodeTypeCast:
		s.walk(n.Base, cur)
		return types.TypeReflectionInfo{}

	case types.NodeParen:
		return s.walk(n.Inner, cur)

	case types.NodeConditional:
		s.walk(n.Cond, cur)
		then := s.walk(n.Then, cur)
		s.walk(n.Else, cur)
		return then

	default:
		return types.TypeReflectionInfo{}
	}
}

func literalType(n *types.ASTNode) types.TypeReflectionInfo {
	name := ""
	switch n.LiteralKind {
	case types.LiteralBoolean:
		name = "Boolean"
	case types.LiteralInteger:
		name = "Integer"
	case types.LiteralDecimal:
		name = "Decimal"
	case types.LiteralString:
		name = "String"
	case types.LiteralDate:
		name = "Date"
	case types.LiteralDateTime:
		name = "DateTime"
	case types.LiteralTime:
		name = "Time"
	case types.LiteralQuantity:
		name = "Quantity"
	default:
		return types.TypeReflectionInfo{}
	}
	return types.NewSimpleType("System", name, nil)
}

// walkIdentifier treats a bare identifier either as a resource-type filter
// (e.g. "Patient" appearing mid-expression) or a property read off cur.
func (s *analysisState) walkIdentifier(n *types.ASTNode, cur types.TypeReflectionInfo) types.TypeReflectionInfo {
	if s.provider == nil {
		return types.TypeReflectionInfo{}
	}
	if info, ok, err := s.provider.GetType(s.ctx, n.Name); err == nil && ok {
		return info
	}
	if cur.Kind != types.ReflectionClass {
		return types.TypeReflectionInfo{}
	}
	return s.walkProperty(n, cur)
}

func (s *analysisState) walkProperty(n *types.ASTNode, base types.TypeReflectionInfo) types.TypeReflectionInfo {
	if base.Kind != types.ReflectionClass {
		// Navigation off an unknown or primitive type: nothing to check.
		return types.TypeReflectionInfo{}
	}
	el, ok := base.Element(n.Name)
	if ok {
		return el.Type
	}
	if s.provider != nil {
		if isChoice, err := s.provider.IsChoiceProperty(s.ctx, base.Name, n.Name); err == nil && isChoice {
			return types.TypeReflectionInfo{}
		}
	}
	s.add(types.AnalysisDiagnostic{
		Severity:   types.SeverityError,
		Span:       n.Span,
		Code:       types.ErrUnknownProperty,
		Message:    "unknown property \"" + n.Name + "\" on " + base.QualifiedName(),
		Suggestion: suggest(n.Name, base.ElementNames()),
	})
	return types.TypeReflectionInfo{}
}

func (s *analysisState) walkFunctionArgs(args []*types.ASTNode, cur types.TypeReflectionInfo) {
	for _, a := range args {
		s.walk(a, cur)
	}
}

func (s *analysisState) walkFunction(n *types.ASTNode, cur types.TypeReflectionInfo) types.TypeReflectionInfo {
	op, ok := s.reg.Lookup(n.Name)
	if !ok {
		s.add(types.AnalysisDiagnostic{
			Severity:   types.SeverityError,
			Span:       n.Span,
			Code:       types.ErrUnknownFunction,
			Message:    "unknown function \"" + n.Name + "\"",
			Suggestion: suggest(n.Name, s.reg.Names()),
		})
		return types.TypeReflectionInfo{}
	}
	argc := len(n.Args)
	if argc < op.MinArgs || (op.MaxArgs >= 0 && argc > op.MaxArgs) {
		s.add(types.AnalysisDiagnostic{
			Severity: types.SeverityError,
			Span:     n.Span,
			Code:     types.ErrArityMismatch,
			Message:  n.Name + " expects between " + itoa(op.MinArgs) + " and " + itoa(op.MaxArgs) + " arguments",
		})
	}
	return types.TypeReflectionInfo{}
}

func itoa(n int) string {
	if n < 0 {
		return "unbounded"
	}
	digits := [20]byte{}
	i := len(digits)
	if n == 0 {
		return "0"
	}
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}
