package evaluator

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

var arithCtx = apd.BaseContext.WithPrecision(34)

// evalBinary dispatches a NodeBinary node by its Op string (spec §4.2/§4.3).
// Boolean operators implement FHIRPath's three-valued logic directly over
// Empty rather than routing through Go's bool, since e.g. `false and {}` is
// false (not Empty) while `true and {}` is Empty.
func evalBinary(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	switch n.Op {
	case "and":
		return evalAnd(ec, n)
	case "or":
		return evalOr(ec, n)
	case "xor":
		return evalXor(ec, n)
	case "implies":
		return evalImplies(ec, n)
	}

	left, err := evalNode(ec, n.Left)
	if err != nil {
		return types.Empty, err
	}
	right, err := evalNode(ec, n.Right)
	if err != nil {
		return types.Empty, err
	}

	switch n.Op {
	case "=":
		return equalityOp(left, right, false)
	case "!=":
		return equalityOp(left, right, true)
	case "~":
		return equivalenceOp(left, right, false)
	case "!~":
		return equivalenceOp(left, right, true)
	case "<", "<=", ">", ">=":
		return comparisonOp(n.Op, left, right)
	case "+", "-", "*", "/", "div", "mod":
		return arithmeticOp(n.Op, left, right)
	case "&":
		return concatOp(left, right)
	case "in":
		return inOp(left, right)
	case "contains":
		return inOp(right, left)
	}
	return types.Empty, types.NewEvaluationError(types.KindInternal, "unknown operator "+n.Op)
}

func boolSingleton(v types.Value) (bool, bool) {
	s, ok := v.Singleton()
	if !ok || s.Kind() != types.KindBoolean {
		return false, false
	}
	return s.Bool(), true
}

func evalAnd(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	left, err := evalNode(ec, n.Left)
	if err != nil {
		return types.Empty, err
	}
	if lb, ok := boolSingleton(left); ok && !lb {
		return types.NewBoolean(false), nil
	}
	right, err := evalNode(ec, n.Right)
	if err != nil {
		return types.Empty, err
	}
	rb, rok := boolSingleton(right)
	if rok && !rb {
		return types.NewBoolean(false), nil
	}
	lb, lok := boolSingleton(left)
	if lok && rok {
		return types.NewBoolean(lb && rb), nil
	}
	return types.Empty, nil
}

func evalOr(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	left, err := evalNode(ec, n.Left)
	if err != nil {
		return types.Empty, err
	}
	if lb, ok := boolSingleton(left); ok && lb {
		return types.NewBoolean(true), nil
	}
	right, err := evalNode(ec, n.Right)
	if err != nil {
		return types.Empty, err
	}
	if rb, ok := boolSingleton(right); ok && rb {
		return types.NewBoolean(true), nil
	}
	lb, lok := boolSingleton(left)
	rb, rok := boolSingleton(right)
	if lok && rok {
		return types.NewBoolean(lb || rb), nil
	}
	return types.Empty, nil
}

func evalXor(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	left, err := evalNode(ec, n.Left)
	if err != nil {
		return types.Empty, err
	}
	right, err := evalNode(ec, n.Right)
	if err != nil {
		return types.Empty, err
	}
	lb, lok := boolSingleton(left)
	rb, rok := boolSingleton(right)
	if !lok || !rok {
		return types.Empty, nil
	}
	return types.NewBoolean(lb != rb), nil
}

func evalImplies(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	left, err := evalNode(ec, n.Left)
	if err != nil {
		return types.Empty, err
	}
	lb, lok := boolSingleton(left)
	if lok && !lb {
		return types.NewBoolean(true), nil
	}
	right, err := evalNode(ec, n.Right)
	if err != nil {
		return types.Empty, err
	}
	rb, rok := boolSingleton(right)
	if rok && rb {
		return types.NewBoolean(true), nil
	}
	if !lok {
		return types.Empty, nil
	}
	if !rok {
		return types.Empty, nil
	}
	return types.NewBoolean(false), nil
}

// equalityOp implements `=`/`!=`: a multi-element comparison is false (true
// for `!=`) unless lengths match and every pairwise Equal holds (spec §6.3);
// either side being Empty, or a pair of same-kind temporals of differing
// precision, makes the whole comparison Empty, not false.
func equalityOp(left, right types.Value, negate bool) (types.Value, error) {
	if left.IsEmptyLike() || right.IsEmptyLike() {
		return types.Empty, nil
	}
	le, re := left.Elements(), right.Elements()
	if len(le) != len(re) {
		return types.NewBoolean(negate), nil
	}
	for i := range le {
		k := le[i].Kind()
		if (k == types.KindDate || k == types.KindDateTime || k == types.KindTime) &&
			re[i].Kind() == k && le[i].Precision() != re[i].Precision() {
			return types.Empty, nil
		}
		if !types.Equal(le[i], re[i]) {
			return types.NewBoolean(negate), nil
		}
	}
	return types.NewBoolean(!negate), nil
}

// equivalenceOp implements `~`/`!~`: unlike `=`, Empty ~ Empty is true and
// the operator never degrades to Empty (spec §6.3).
func equivalenceOp(left, right types.Value, negate bool) (types.Value, error) {
	le, re := left.Elements(), right.Elements()
	if len(le) != len(re) {
		return types.NewBoolean(negate), nil
	}
	for i := range le {
		if !types.Equal(le[i], re[i]) {
			return types.NewBoolean(negate), nil
		}
	}
	return types.NewBoolean(!negate), nil
}

func comparisonOp(op string, left, right types.Value) (types.Value, error) {
	l, lok := left.Singleton()
	r, rok := right.Singleton()
	if !lok || !rok {
		return types.Empty, nil
	}
	cmp, ok := types.Compare(l, r)
	if !ok {
		return types.Empty, nil
	}
	var result bool
	switch op {
	case "<":
		result = cmp < 0
	case "<=":
		result = cmp <= 0
	case ">":
		result = cmp > 0
	case ">=":
		result = cmp >= 0
	}
	return types.NewBoolean(result), nil
}

func arithmeticOp(op string, left, right types.Value) (types.Value, error) {
	l, lok := left.Singleton()
	r, rok := right.Singleton()
	if !lok || !rok {
		return types.Empty, nil
	}
	if l.Kind() == types.KindQuantity || r.Kind() == types.KindQuantity {
		return quantityArithmetic(op, l, r)
	}
	if l.Kind() == types.KindInteger && r.Kind() == types.KindInteger && op != "/" {
		return integerArithmetic(op, l, r)
	}
	if isNumericKind(l.Kind()) && isNumericKind(r.Kind()) {
		return decimalArithmetic(op, asDecimalVal(l), asDecimalVal(r))
	}
	return types.Empty, nil
}

func isNumericKind(k types.Kind) bool {
	return k == types.KindInteger || k == types.KindDecimal
}

func asDecimalVal(v types.Value) apd.Decimal {
	if v.Kind() == types.KindInteger {
		return *apd.New(v.Int(), 0)
	}
	return v.Decimal()
}

func integerArithmetic(op string, l, r types.Value) (types.Value, error) {
	a, b := l.Int(), r.Int()
	switch op {
	case "+":
		return types.NewInteger(a + b), nil
	case "-":
		return types.NewInteger(a - b), nil
	case "*":
		return types.NewInteger(a * b), nil
	case "div":
		if b == 0 {
			return types.Empty, types.NewEvaluationError(types.KindDivisionByZero, "integer division by zero")
		}
		return types.NewInteger(a / b), nil
	case "mod":
		if b == 0 {
			return types.Empty, types.NewEvaluationError(types.KindDivisionByZero, "modulo by zero")
		}
		return types.NewInteger(a % b), nil
	}
	return types.Empty, nil
}

func decimalArithmetic(op string, a, b apd.Decimal) (types.Value, error) {
	var out apd.Decimal
	switch op {
	case "+":
		_, _ = arithCtx.Add(&out, &a, &b)
	case "-":
		_, _ = arithCtx.Sub(&out, &a, &b)
	case "*":
		_, _ = arithCtx.Mul(&out, &a, &b)
	case "/":
		if b.IsZero() {
			return types.Empty, nil
		}
		if _, err := arithCtx.Quo(&out, &a, &b); err != nil {
			return types.Empty, types.NewEvaluationError(types.KindDivisionByZero, err.Error())
		}
	case "div":
		if b.IsZero() {
			return types.Empty, types.NewEvaluationError(types.KindDivisionByZero, "division by zero")
		}
		_, _ = arithCtx.QuoInteger(&out, &a, &b)
	case "mod":
		if b.IsZero() {
			return types.Empty, types.NewEvaluationError(types.KindDivisionByZero, "modulo by zero")
		}
		_, _ = arithCtx.Rem(&out, &a, &b)
	}
	return types.NewDecimal(out), nil
}

// quantityArithmetic only supports same-unit (or unitless/scalar)
// operands — full UCUM unit conversion is the UnitConverter collaborator's
// job (spec §3's UnitExpression), not the core arithmetic operator.
func quantityArithmetic(op string, l, r types.Value) (types.Value, error) {
	switch {
	case l.Kind() == types.KindQuantity && r.Kind() == types.KindQuantity:
		if l.Unit() != r.Unit() {
			return types.Empty, nil
		}
		val, err := decimalArithmetic(op, l.Decimal(), r.Decimal())
		if err != nil {
			return types.Empty, err
		}
		d := val.Decimal()
		return types.NewQuantity(d, l.Unit(), l.UnitExpr()), nil
	case l.Kind() == types.KindQuantity && isNumericKind(r.Kind()):
		val, err := decimalArithmetic(op, l.Decimal(), asDecimalVal(r))
		if err != nil {
			return types.Empty, err
		}
		d := val.Decimal()
		return types.NewQuantity(d, l.Unit(), l.UnitExpr()), nil
	case r.Kind() == types.KindQuantity && isNumericKind(l.Kind()):
		val, err := decimalArithmetic(op, asDecimalVal(l), r.Decimal())
		if err != nil {
			return types.Empty, err
		}
		d := val.Decimal()
		return types.NewQuantity(d, r.Unit(), r.UnitExpr()), nil
	}
	return types.Empty, nil
}

func concatOp(left, right types.Value) (types.Value, error) {
	ls, lok := stringOrEmpty(left)
	rs, rok := stringOrEmpty(right)
	if !lok && left.Kind() != types.KindEmpty {
		return types.Empty, types.NewEvaluationError(types.KindTypeError, "& requires string operands")
	}
	if !rok && right.Kind() != types.KindEmpty {
		return types.Empty, types.NewEvaluationError(types.KindTypeError, "& requires string operands")
	}
	return types.NewString(ls + rs), nil
}

func stringOrEmpty(v types.Value) (string, bool) {
	if v.IsEmptyLike() {
		return "", true
	}
	s, ok := v.Singleton()
	if !ok || s.Kind() != types.KindString {
		return "", false
	}
	return s.Str(), true
}

// inOp implements `left in right`: true if every element of left is
// contained in right (spec §4.3); `contains` is its mirror, dispatched by
// swapping operands at the call site.
func inOp(left, right types.Value) (types.Value, error) {
	rightEls := right.Elements()
	for _, v := range left.Elements() {
		found := false
		for _, o := range rightEls {
			if types.Equal(v, o) {
				found = true
				break
			}
		}
		if !found {
			return types.NewBoolean(false), nil
		}
	}
	return types.NewBoolean(true), nil
}

// evalUnary implements prefix +/- (spec §4.3): + is a no-op on a numeric or
// quantity singleton, - negates it; anything else is Empty.
func evalUnary(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	right, err := evalNode(ec, n.Right)
	if err != nil {
		return types.Empty, err
	}
	v, ok := right.Singleton()
	if !ok {
		return types.Empty, nil
	}
	if n.Op == "+" {
		if isNumericKind(v.Kind()) || v.Kind() == types.KindQuantity {
			return v, nil
		}
		return types.Empty, nil
	}
	switch v.Kind() {
	case types.KindInteger:
		return types.NewInteger(-v.Int()), nil
	case types.KindDecimal:
		var out apd.Decimal
		d := v.Decimal()
		out.Neg(&d)
		return types.NewDecimal(out), nil
	case types.KindQuantity:
		var out apd.Decimal
		d := v.Decimal()
		out.Neg(&d)
		return types.NewQuantity(out, v.Unit(), v.UnitExpr()), nil
	default:
		return types.Empty, nil
	}
}
