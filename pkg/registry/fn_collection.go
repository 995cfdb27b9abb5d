package registry

import (
	"github.com/samber/lo"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

func registerCollectionFns(r *Registry) {
	r.register(&Operation{Name: "empty", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnEmpty})
	r.register(&Operation{Name: "exists", MinArgs: 0, MaxArgs: 1, Pure: true, Raw: true, RawFn: fnExists})
	r.register(&Operation{Name: "count", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnCount})
	r.register(&Operation{Name: "first", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnFirst})
	r.register(&Operation{Name: "last", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnLast})
	r.register(&Operation{Name: "tail", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnTail})
	r.register(&Operation{Name: "skip", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnSkip})
	r.register(&Operation{Name: "take", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnTake})
	r.register(&Operation{Name: "single", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnSingle})
	r.register(&Operation{Name: "distinct", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnDistinct})
	r.register(&Operation{Name: "isDistinct", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnIsDistinct})
	r.register(&Operation{Name: "subsetOf", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnSubsetOf})
	r.register(&Operation{Name: "supersetOf", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnSupersetOf})
	r.register(&Operation{Name: "union", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnUnion})
	r.register(&Operation{Name: "combine", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnCombine})
	r.register(&Operation{Name: "intersect", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnIntersect})
	r.register(&Operation{Name: "exclude", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnExclude})

	r.register(&Operation{Name: "where", MinArgs: 1, MaxArgs: 1, Pure: true, Raw: true, RawFn: fnWhere})
	r.register(&Operation{Name: "select", MinArgs: 1, MaxArgs: 1, Pure: true, Raw: true, RawFn: fnSelect})
	r.register(&Operation{Name: "all", MinArgs: 1, MaxArgs: 1, Pure: true, Raw: true, RawFn: fnAll})
	r.register(&Operation{Name: "any", MinArgs: 0, MaxArgs: 1, Pure: true, Raw: true, RawFn: fnAny})
	r.register(&Operation{Name: "repeat", MinArgs: 1, MaxArgs: 1, Pure: true, Raw: true, RawFn: fnRepeat})
	r.register(&Operation{Name: "aggregate", MinArgs: 1, MaxArgs: 2, Pure: true, Raw: true, RawFn: fnAggregate})
	r.register(&Operation{Name: "ofType", MinArgs: 1, MaxArgs: 1, Pure: true, Raw: true, RawFn: fnOfType})
	r.register(&Operation{Name: "iif", MinArgs: 2, MaxArgs: 3, Pure: true, Raw: true, RawFn: fnIif})

	r.register(&Operation{Name: "trace", MinArgs: 1, MaxArgs: 2, Pure: false, Raw: true, RawFn: fnTrace})
	r.register(&Operation{Name: "defineVariable", MinArgs: 1, MaxArgs: 2, Pure: false, Raw: true, RawFn: fnDefineVariable})

	r.register(&Operation{Name: "children", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnChildren})
	r.register(&Operation{Name: "descendants", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnDescendants})
}

func fnEmpty(ec EvalContext, args []types.Value) (types.Value, error) {
	return types.NewBoolean(ec.CurrentInput().IsEmptyLike()), nil
}

// fnExists with no argument is a plain non-emptiness test; with an argument
// it is `where(arg).exists()` — a filtered existence test, hence Raw.
func fnExists(ec EvalContext, rawArgs []*types.ASTNode) (types.Value, error) {
	if len(rawArgs) == 0 {
		return types.NewBoolean(!ec.CurrentInput().IsEmptyLike()), nil
	}
	filtered, err := filterBy(ec, rawArgs[0])
	if err != nil {
		return types.Empty, err
	}
	return types.NewBoolean(len(filtered) > 0), nil
}

func fnCount(ec EvalContext, args []types.Value) (types.Value, error) {
	return types.NewInteger(int64(ec.CurrentInput().Len())), nil
}

func fnFirst(ec EvalContext, args []types.Value) (types.Value, error) {
	els := ec.CurrentInput().Elements()
	if len(els) == 0 {
		return types.Empty, nil
	}
	return els[0], nil
}

func fnLast(ec EvalContext, args []types.Value) (types.Value, error) {
	els := ec.CurrentInput().Elements()
	if len(els) == 0 {
		return types.Empty, nil
	}
	return els[len(els)-1], nil
}

func fnTail(ec EvalContext, args []types.Value) (types.Value, error) {
	els := ec.CurrentInput().Elements()
	if len(els) <= 1 {
		return types.Empty, nil
	}
	return types.NewCollection(els[1:]...), nil
}

func fnSkip(ec EvalContext, args []types.Value) (types.Value, error) {
	n := int(args[0].Int())
	els := ec.CurrentInput().Elements()
	if n < 0 {
		n = 0
	}
	if n >= len(els) {
		return types.Empty, nil
	}
	return types.NewCollection(els[n:]...), nil
}

func fnTake(ec EvalContext, args []types.Value) (types.Value, error) {
	n := int(args[0].Int())
	els := ec.CurrentInput().Elements()
	if n <= 0 {
		return types.Empty, nil
	}
	if n > len(els) {
		n = len(els)
	}
	return types.NewCollection(els[:n]...), nil
}

func fnSingle(ec EvalContext, args []types.Value) (types.Value, error) {
	els := ec.CurrentInput().Elements()
	if len(els) == 0 {
		return types.Empty, nil
	}
	if len(els) > 1 {
		return types.Empty, types.NewEvaluationError(types.KindTypeError, "single() called on a collection with more than one item")
	}
	return els[0], nil
}

func fnDistinct(ec EvalContext, args []types.Value) (types.Value, error) {
	return types.NewCollection(distinctValues(ec.CurrentInput().Elements())...), nil
}

func fnIsDistinct(ec EvalContext, args []types.Value) (types.Value, error) {
	els := ec.CurrentInput().Elements()
	return types.NewBoolean(len(distinctValues(els)) == len(els)), nil
}

func distinctValues(els []types.Value) []types.Value {
	out := make([]types.Value, 0, len(els))
	for _, v := range els {
		if !lo.ContainsBy(out, func(o types.Value) bool { return types.Equal(o, v) }) {
			out = append(out, v)
		}
	}
	return out
}

func fnSubsetOf(ec EvalContext, args []types.Value) (types.Value, error) {
	other := args[0].Elements()
	for _, v := range ec.CurrentInput().Elements() {
		if !lo.ContainsBy(other, func(o types.Value) bool { return types.Equal(o, v) }) {
			return types.NewBoolean(false), nil
		}
	}
	return types.NewBoolean(true), nil
}

func fnSupersetOf(ec EvalContext, args []types.Value) (types.Value, error) {
	self := ec.CurrentInput().Elements()
	for _, v := range args[0].Elements() {
		if !lo.ContainsBy(self, func(o types.Value) bool { return types.Equal(o, v) }) {
			return types.NewBoolean(false), nil
		}
	}
	return types.NewBoolean(true), nil
}

func fnUnion(ec EvalContext, args []types.Value) (types.Value, error) {
	combined := append(append([]types.Value{}, ec.CurrentInput().Elements()...), args[0].Elements()...)
	return types.NewCollection(distinctValues(combined)...), nil
}

func fnCombine(ec EvalContext, args []types.Value) (types.Value, error) {
	combined := append(append([]types.Value{}, ec.CurrentInput().Elements()...), args[0].Elements()...)
	return types.NewCollection(combined...), nil
}

func fnIntersect(ec EvalContext, args []types.Value) (types.Value, error) {
	other := args[0].Elements()
	var out []types.Value
	for _, v := range distinctValues(ec.CurrentInput().Elements()) {
		if lo.ContainsBy(other, func(o types.Value) bool { return types.Equal(o, v) }) {
			out = append(out, v)
		}
	}
	return types.NewCollection(out...), nil
}

func fnExclude(ec EvalContext, args []types.Value) (types.Value, error) {
	other := args[0].Elements()
	var out []types.Value
	for _, v := range ec.CurrentInput().Elements() {
		if !lo.ContainsBy(other, func(o types.Value) bool { return types.Equal(o, v) }) {
			out = append(out, v)
		}
	}
	return types.NewCollection(out...), nil
}

// filterBy is where()'s core, shared with the Raw-arity exists(crit) form.
func filterBy(ec EvalContext, body *types.ASTNode) ([]types.Value, error) {
	els := ec.CurrentInput().Elements()
	total := types.NewInteger(int64(len(els)))
	var out []types.Value
	for i, item := range els {
		result, err := ec.EvaluateLambda(body, item, i, total)
		if err != nil {
			return nil, err
		}
		if b, ok := result.Singleton(); ok && b.Kind() == types.KindBoolean && b.Bool() {
			out = append(out, item)
		}
	}
	return out, nil
}

func fnWhere(ec EvalContext, rawArgs []*types.ASTNode) (types.Value, error) {
	out, err := filterBy(ec, rawArgs[0])
	if err != nil {
		return types.Empty, err
	}
	return types.NewCollection(out...), nil
}

func fnSelect(ec EvalContext, rawArgs []*types.ASTNode) (types.Value, error) {
	els := ec.CurrentInput().Elements()
	total := types.NewInteger(int64(len(els)))
	var out []types.Value
	for i, item := range els {
		result, err := ec.EvaluateLambda(rawArgs[0], item, i, total)
		if err != nil {
			return types.Empty, err
		}
		out = append(out, result.Elements()...)
	}
	return types.NewCollection(out...), nil
}

func fnAll(ec EvalContext, rawArgs []*types.ASTNode) (types.Value, error) {
	els := ec.CurrentInput().Elements()
	total := types.NewInteger(int64(len(els)))
	for i, item := range els {
		result, err := ec.EvaluateLambda(rawArgs[0], item, i, total)
		if err != nil {
			return types.Empty, err
		}
		b, ok := result.Singleton()
		if !ok || b.Kind() != types.KindBoolean || !b.Bool() {
			return types.NewBoolean(false), nil
		}
	}
	return types.NewBoolean(true), nil
}

func fnAny(ec EvalContext, rawArgs []*types.ASTNode) (types.Value, error) {
	if len(rawArgs) == 0 {
		return types.NewBoolean(!ec.CurrentInput().IsEmptyLike()), nil
	}
	out, err := filterBy(ec, rawArgs[0])
	if err != nil {
		return types.Empty, err
	}
	return types.NewBoolean(len(out) > 0), nil
}

// fnRepeat applies the projection repeatedly until a fixed point — no
// projected element is new relative to everything accumulated so far —
// which is how recursive tree walks like parent.repeat(child) terminate.
func fnRepeat(ec EvalContext, rawArgs []*types.ASTNode) (types.Value, error) {
	frontier := ec.CurrentInput().Elements()
	seen := append([]types.Value{}, frontier...)
	var out []types.Value
	for len(frontier) > 0 {
		total := types.NewInteger(int64(len(frontier)))
		var next []types.Value
		for i, item := range frontier {
			result, err := ec.EvaluateLambda(rawArgs[0], item, i, total)
			if err != nil {
				return types.Empty, err
			}
			for _, v := range result.Elements() {
				if !lo.ContainsBy(seen, func(o types.Value) bool { return types.Equal(o, v) }) {
					seen = append(seen, v)
					next = append(next, v)
					out = append(out, v)
				}
			}
		}
		frontier = next
	}
	return types.NewCollection(out...), nil
}

// fnAggregate folds the collection left-to-right through a body expression
// that sees $this (current item), $index, and the running total bound to
// variable `total` (spec-supplemented aggregate with a seed, per SPEC_FULL
// §7), seeded with the optional second argument or Empty.
func fnAggregate(ec EvalContext, rawArgs []*types.ASTNode) (types.Value, error) {
	var acc types.Value = types.Empty
	if len(rawArgs) == 2 {
		v, err := ec.EvaluateIn(rawArgs[1])
		if err != nil {
			return types.Empty, err
		}
		acc = v
	}
	els := ec.CurrentInput().Elements()
	for i, item := range els {
		scoped := ec.WithVariable("total", acc)
		result, err := scoped.EvaluateLambda(rawArgs[0], item, i, acc)
		if err != nil {
			return types.Empty, err
		}
		acc = result
	}
	return acc, nil
}

func fnOfType(ec EvalContext, rawArgs []*types.ASTNode) (types.Value, error) {
	typeName, err := staticTypeNameArg(rawArgs[0])
	if err != nil {
		return types.Empty, err
	}
	var out []types.Value
	for _, v := range ec.CurrentInput().Elements() {
		if valueMatchesType(v, typeName) {
			out = append(out, v)
		}
	}
	return types.NewCollection(out...), nil
}

// staticTypeNameArg pulls a type name out of an argument AST that must be a
// bare identifier or qualified name (ofType(FHIR.Patient)), not a general
// expression.
func staticTypeNameArg(n *types.ASTNode) (string, error) {
	switch n.Type {
	case types.NodeIdentifier:
		return n.Name, nil
	case types.NodeProperty:
		base, err := staticTypeNameArg(n.Base)
		if err != nil {
			return "", err
		}
		return base + "." + n.Name, nil
	default:
		return "", types.NewEvaluationError(types.KindTypeError, "expected a type specifier")
	}
}

func valueMatchesType(v types.Value, typeName string) bool {
	name := typeName
	if idx := lastDot(typeName); idx >= 0 {
		name = typeName[idx+1:]
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

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

func fnIif(ec EvalContext, rawArgs []*types.ASTNode) (types.Value, error) {
	cond, err := ec.EvaluateIn(rawArgs[0])
	if err != nil {
		return types.Empty, err
	}
	b, ok := cond.Singleton()
	if ok && b.Kind() == types.KindBoolean && b.Bool() {
		return ec.EvaluateIn(rawArgs[1])
	}
	if len(rawArgs) == 3 {
		return ec.EvaluateIn(rawArgs[2])
	}
	return types.Empty, nil
}

func fnTrace(ec EvalContext, rawArgs []*types.ASTNode) (types.Value, error) {
	name, err := staticStringArg(rawArgs[0])
	if err != nil {
		return types.Empty, err
	}
	traced := ec.CurrentInput()
	if len(rawArgs) == 2 {
		projection, err := ec.EvaluateIn(rawArgs[1])
		if err != nil {
			return types.Empty, err
		}
		traced = projection
	}
	ec.Trace(name, traced)
	return ec.CurrentInput(), nil
}

func staticStringArg(n *types.ASTNode) (string, error) {
	if n.Type == types.NodeLiteral && n.LiteralKind == types.LiteralString {
		return n.StrValue, nil
	}
	return "", types.NewEvaluationError(types.KindTypeError, "expected a string literal argument")
}

// fnDefineVariable is registered only so the analyzer can validate
// defineVariable() calls' arity/argument shape through the same Lookup path
// as every other function. It is never actually dispatched: binding a
// variable has to widen the *caller's* scope chain for every step that
// follows, which a registry Impl has no way to hand back to its caller
// (EvalContext.WithVariable only returns a child scope), so eval_node.go
// special-cases "defineVariable" ahead of registry dispatch and calls
// evalDefineVariable (eval_call.go), which binds through the evaluator-side
// context's DefineVariable. If
// this ever did run it would silently discard the binding, so it fails
// loudly instead.
func fnDefineVariable(ec EvalContext, rawArgs []*types.ASTNode) (types.Value, error) {
	return types.Empty, types.NewEvaluationError(types.KindInternal,
		"defineVariable must be evaluated via the evaluator's special case, not registry dispatch")
}

func fnChildren(ec EvalContext, args []types.Value) (types.Value, error) {
	var out []types.Value
	for _, v := range ec.CurrentInput().Elements() {
		out = append(out, directChildren(v)...)
	}
	return types.NewCollection(out...), nil
}

func fnDescendants(ec EvalContext, args []types.Value) (types.Value, error) {
	var out []types.Value
	frontier := ec.CurrentInput().Elements()
	for len(frontier) > 0 {
		var next []types.Value
		for _, v := range frontier {
			children := directChildren(v)
			out = append(out, children...)
			next = append(next, children...)
		}
		frontier = next
	}
	return types.NewCollection(out...), nil
}
