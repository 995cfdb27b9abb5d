package analyzer

import "github.com/fhirpath-go/fhirpath/pkg/types"

// operatorClass buckets a FHIRPath binary operator by what operand types it
// accepts, so checkOperator can flag a statically-known mismatch (e.g.
// String + Boolean) while still degrading silently whenever either side's
// type could not be determined (spec §7).
type operatorClass int

const (
	classArithmetic operatorClass = iota // + - * / div mod
	classCompare                         // < <= > >=
	classEquality                        // = != ~ !~
	classBoolean                         // and or xor implies
	classStringConcat                    // &
	classMembership                      // in contains
	classOther
)

var operatorClasses = map[string]operatorClass{
	"+": classArithmetic, "-": classArithmetic, "*": classArithmetic,
	"/": classArithmetic, "div": classArithmetic, "mod": classArithmetic,
	"<": classCompare, "<=": classCompare, ">": classCompare, ">=": classCompare,
	"=": classEquality, "!=": classEquality, "~": classEquality, "!~": classEquality,
	"and": classBoolean, "or": classBoolean, "xor": classBoolean, "implies": classBoolean,
	"&":       classStringConcat,
	"in":      classMembership,
	"contains": classMembership,
}

// numericTypeNames and comparableTypeNames name the System types each
// operator class accepts when a static type IS known; an unknown (zero
// value) operand never triggers a diagnostic.
var numericTypeNames = map[string]bool{"Integer": true, "Decimal": true, "Quantity": true}
var comparableTypeNames = map[string]bool{
	"Integer": true, "Decimal": true, "Quantity": true,
	"String": true, "Date": true, "DateTime": true, "Time": true,
}

// checkOperator validates left/right against n.Op's accepted operand
// classes, reporting ErrOperatorType when both types are statically known
// and at least one is clearly incompatible. Returns the operator's static
// result type when determinable (Boolean for compare/equality/boolean
// operators), or the zero value otherwise.
func (s *analysisState) checkOperator(n *types.ASTNode, left, right types.TypeReflectionInfo) types.TypeReflectionInfo {
	class, ok := operatorClasses[n.Op]
	if !ok {
		return types.TypeReflectionInfo{}
	}

	switch class {
	case classArithmetic:
		s.checkOperandClass(n, left, numericTypeNames, "numeric")
		s.checkOperandClass(n, right, numericTypeNames, "numeric")
		return types.TypeReflectionInfo{}
	case classCompare:
		s.checkOperandClass(n, left, comparableTypeNames, "comparable")
		s.checkOperandClass(n, right, comparableTypeNames, "comparable")
		return types.NewSimpleType("System", "Boolean", nil)
	case classEquality, classBoolean:
		return types.NewSimpleType("System", "Boolean", nil)
	case classStringConcat:
		return types.NewSimpleType("System", "String", nil)
	default:
		return types.TypeReflectionInfo{}
	}
}

func (s *analysisState) checkOperandClass(n *types.ASTNode, t types.TypeReflectionInfo, allowed map[string]bool, label string) {
	if t.Kind != types.ReflectionSimple || t.Name == "" {
		return // type not statically known; nothing to check
	}
	if !allowed[t.Name] {
		s.add(types.AnalysisDiagnostic{
			Severity: types.SeverityError,
			Span:     n.Span,
			Code:     types.ErrOperatorType,
			Message:  "operator \"" + n.Op + "\" requires " + label + " operands, got " + t.QualifiedName(),
		})
	}
}
