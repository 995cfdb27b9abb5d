package evaluator

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// evalNode is the central AST dispatcher every other evaluation helper in
// this package (and every registry.EvalContext method) funnels through.
func evalNode(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	if n == nil {
		return types.Empty, nil
	}
	if ec.maxDepth > 0 && ec.depth > ec.maxDepth {
		return types.Empty, types.NewEvaluationError(types.KindOverflow, "maximum expression depth exceeded")
	}
	ec.depth++
	defer func() { ec.depth-- }()

	switch n.Type {
	case types.NodeLiteral:
		return evalLiteral(n)
	case types.NodeIdentifier:
		return evalIdentifier(ec, n)
	case types.NodeVariable:
		return evalVariable(ec, n)
	case types.NodeProperty:
		return evalProperty(ec, n)
	case types.NodeIndex:
		return evalIndex(ec, n)
	case types.NodeFunction:
		if n.Name == "defineVariable" {
			return evalDefineVariable(ec, ec.CurrentInput(), n.Args)
		}
		return evalCall(ec, n.Name, n.Args)
	case types.NodeMethod:
		base, err := evalNode(ec, n.Base)
		if err != nil {
			return types.Empty, err
		}
		if n.Name == "defineVariable" {
			return evalDefineVariable(ec, base, n.Args)
		}
		callEc := ec.withItem(base, 0, types.Empty)
		return evalCall(callEc, n.Name, n.Args)
	case types.NodeBinary:
		return evalBinary(ec, n)
	case types.NodeUnary:
		return evalUnary(ec, n)
	case types.NodeUnion:
		return evalUnion(ec, n)
	case types.NodeTypeCheck:
		return evalTypeCheck(ec, n)
	case types.NodeTypeCast:
		return evalTypeCast(ec, n)
	case types.NodeParen:
		return evalNode(ec, n.Inner)
	case types.NodeCollection:
		var out []types.Value
		for _, el := range n.Elements {
			v, err := evalNode(ec, el)
			if err != nil {
				return types.Empty, err
			}
			out = append(out, v.Elements()...)
		}
		return types.NewCollection(out...), nil
	case types.NodeConditional:
		return evalConditional(ec, n)
	default:
		return types.Empty, types.NewEvaluationError(types.KindInternal, "unhandled node type "+string(n.Type))
	}
}

func evalLiteral(n *types.ASTNode) (types.Value, error) {
	switch n.LiteralKind {
	case types.LiteralBoolean:
		return types.NewBoolean(n.BoolValue), nil
	case types.LiteralInteger:
		return types.NewInteger(n.IntValue), nil
	case types.LiteralDecimal:
		d, _, err := apd.NewFromString(n.StrValue)
		if err != nil {
			return types.Empty, types.NewEvaluationError(types.KindInternal, err.Error())
		}
		return types.NewDecimal(*d), nil
	case types.LiteralString:
		return types.NewString(n.StrValue), nil
	case types.LiteralDate:
		return types.NewDate(n.StrValue, datePrecision(n.StrValue)), nil
	case types.LiteralDateTime:
		return types.NewDateTime(n.StrValue, dateTimePrecision(n.StrValue)), nil
	case types.LiteralTime:
		return types.NewTime(n.StrValue, timePrecision(n.StrValue)), nil
	case types.LiteralQuantity:
		d, _, err := apd.NewFromString(n.QuantityNum)
		if err != nil {
			return types.Empty, types.NewEvaluationError(types.KindInternal, err.Error())
		}
		return types.NewQuantity(*d, n.StrValue, nil), nil
	case types.LiteralNull:
		return types.Empty, nil
	default:
		return types.Empty, types.NewEvaluationError(types.KindInternal, "unknown literal kind")
	}
}

// evalVariable resolves $this/$index/$total and %-prefixed environment or
// user variables. The lexer/parser strip the leading $/% sigil into n.Name
// (the parser tags %-form variables with Namespace == "%").
func evalVariable(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	v, ok := ec.Variable(n.Name)
	if !ok {
		if n.Namespace == "%" {
			return types.Empty, types.NewEvaluationError(types.KindUnknownFunction, "undefined environment variable %"+n.Name)
		}
		return types.Empty, nil
	}
	return v, nil
}

// evalUnion implements `|`: a deduplicated merge of both sides (spec §4.3).
func evalUnion(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	left, err := evalNode(ec, n.Left)
	if err != nil {
		return types.Empty, err
	}
	right, err := evalNode(ec, n.Right)
	if err != nil {
		return types.Empty, err
	}
	var out []types.Value
	for _, v := range append(append([]types.Value{}, left.Elements()...), right.Elements()...) {
		dup := false
		for _, seen := range out {
			if types.Equal(seen, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return types.NewCollection(out...), nil
}

// evalTypeCheck implements `expr is Type`, singleton-lifting per spec §5.1.
func evalTypeCheck(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	base, err := evalNode(ec, n.Base)
	if err != nil {
		return types.Empty, err
	}
	v, ok := base.Singleton()
	if !ok {
		return types.Empty, nil
	}
	return types.NewBoolean(valueMatchesTypeName(v, n.TypeName)), nil
}

// evalTypeCast implements `expr as Type`: the value itself if it matches,
// Empty otherwise (spec §5.1) — it never raises an error on mismatch.
func evalTypeCast(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	base, err := evalNode(ec, n.Base)
	if err != nil {
		return types.Empty, err
	}
	v, ok := base.Singleton()
	if !ok {
		return types.Empty, nil
	}
	if valueMatchesTypeName(v, n.TypeName) {
		return v, nil
	}
	return types.Empty, nil
}

func valueMatchesTypeName(v types.Value, typeName string) bool {
	name := typeName
	for i := len(typeName) - 1; i >= 0; i-- {
		if typeName[i] == '.' {
			name = typeName[i+1:]
			break
		}
	}
	switch v.Kind() {
	case types.KindBoolean:
		return name == "Boolean"
	case types.KindInteger:
		return name == "Integer"
	case types.KindDecimal:
		return name == "Decimal"
	case types.KindString:
		return name == "String"
	case types.KindDate:
		return name == "Date"
	case types.KindDateTime:
		return name == "DateTime"
	case types.KindTime:
		return name == "Time"
	case types.KindQuantity:
		return name == "Quantity"
	case types.KindResource:
		return v.ResourceType() == name
	default:
		return false
	}
}

// evalConditional implements the ternary-sugar `cond ? then : else` form
// some tooling emits for iif (spec §7 supplemented form); the functional
// iif() itself lives in the registry.
func evalConditional(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	cond, err := evalNode(ec, n.Cond)
	if err != nil {
		return types.Empty, err
	}
	b, ok := cond.Singleton()
	if ok && b.Kind() == types.KindBoolean && b.Bool() {
		return evalNode(ec, n.Then)
	}
	if n.Else != nil {
		return evalNode(ec, n.Else)
	}
	return types.Empty, nil
}
