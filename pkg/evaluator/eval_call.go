package evaluator

import (
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// evalCall dispatches a function/method name to the registry. Raw
// operations (where/select/repeat/...) receive their argument ASTs
// unevaluated so they control exactly when and with what $this binding
// each one runs; ordinary operations receive pre-evaluated argument values.
func evalCall(ec *evalContext, name string, rawArgs []*types.ASTNode) (types.Value, error) {
	op, ok := ec.reg.Lookup(name)
	if !ok {
		return types.Empty, types.NewEvaluationError(types.KindUnknownFunction, "unknown function "+name)
	}
	if len(rawArgs) < op.MinArgs || (op.MaxArgs >= 0 && len(rawArgs) > op.MaxArgs) {
		return types.Empty, types.NewEvaluationError(types.KindArityMismatch, name+" called with wrong number of arguments")
	}
	if op.Raw {
		return op.RawFn(ec, rawArgs)
	}
	args := make([]types.Value, len(rawArgs))
	for i, a := range rawArgs {
		v, err := evalNode(ec, a)
		if err != nil {
			return types.Empty, err
		}
		args[i] = v
	}
	return op.Fn(ec, args)
}

// evalDefineVariable backs defineVariable(name [, value]). Unlike every
// other registry operation, its effect (binding name for the rest of the
// enclosing pipeline) cannot be expressed by returning a value — it must
// widen the very *evalContext the surrounding expression keeps
// evaluating through. So the evaluator special-cases this one call instead
// of routing it through the generic registry.EvalContext.WithVariable
// (which only ever returns an isolated child scope, by design, for every
// other caller — see [[defineVariable-scope]] in DESIGN.md).
func evalDefineVariable(ec *evalContext, receiver types.Value, args []*types.ASTNode) (types.Value, error) {
	if len(args) < 1 {
		return types.Empty, types.NewEvaluationError(types.KindArityMismatch, "defineVariable requires a name argument")
	}
	nameNode := args[0]
	if nameNode.Type != types.NodeLiteral || nameNode.LiteralKind != types.LiteralString {
		return types.Empty, types.NewEvaluationError(types.KindTypeError, "defineVariable's name argument must be a string literal")
	}
	value := receiver
	if len(args) == 2 {
		v, err := evalNode(ec.withItem(receiver, ec.index, ec.total), args[1])
		if err != nil {
			return types.Empty, err
		}
		value = v
	}
	ec.DefineVariable(nameNode.StrValue, value)
	return receiver, nil
}
