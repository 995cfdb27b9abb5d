package registry

import (
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// registerMiscFns wires the remaining system functions that don't fit the
// collection/string/numeric/conversion families: current-time accessors,
// type() reflection, not(), and the narrative/quantity checks that
// supplement the distillation (comparable, htmlChecks — SPEC_FULL §7).
func registerMiscFns(r *Registry) {
	r.register(&Operation{Name: "today", MinArgs: 0, MaxArgs: 0, Pure: false, Fn: fnToday})
	r.register(&Operation{Name: "now", MinArgs: 0, MaxArgs: 0, Pure: false, Fn: fnNow})
	r.register(&Operation{Name: "timeOfDay", MinArgs: 0, MaxArgs: 0, Pure: false, Fn: fnTimeOfDay})
	r.register(&Operation{Name: "not", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnNot})
	r.register(&Operation{Name: "type", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnType})
	r.register(&Operation{Name: "is", MinArgs: 1, MaxArgs: 1, Pure: true, Raw: true, RawFn: fnIsFunctional})
	r.register(&Operation{Name: "comparable", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnComparable})
	r.register(&Operation{Name: "htmlChecks", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnHTMLChecks})
}

func fnToday(ec EvalContext, args []types.Value) (types.Value, error) {
	now := time.Now()
	return types.NewDate(now.Format("2006-01-02"), types.PrecisionDay), nil
}

func fnNow(ec EvalContext, args []types.Value) (types.Value, error) {
	now := time.Now()
	return types.NewDateTime(now.Format("2006-01-02T15:04:05.000Z07:00"), types.PrecisionMillisecond), nil
}

func fnTimeOfDay(ec EvalContext, args []types.Value) (types.Value, error) {
	now := time.Now()
	return types.NewTime(now.Format("15:04:05.000"), types.PrecisionMillisecond), nil
}

func fnNot(ec EvalContext, args []types.Value) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok || v.Kind() != types.KindBoolean {
		return types.Empty, nil
	}
	return types.NewBoolean(!v.Bool()), nil
}

// fnType implements the type() reflection function: a primitive singleton
// reports its System.* TypeInfo, and a Resource-kind singleton (a full
// resource, or a complex-type element the evaluator has tagged via
// fhirjson.TagResourceType during navigation) reports its FHIR.* TypeInfo
// when a ResourceType is known. An untagged, structure-unaware object
// (no schema.Provider configured) yields Empty rather than guessing.
func fnType(ec EvalContext, args []types.Value) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok {
		return types.Empty, nil
	}
	if v.Kind() == types.KindResource {
		if v.ResourceType() == "" {
			return types.Empty, nil
		}
		return types.NewTypeInfo("FHIR", v.ResourceType()), nil
	}
	name := systemTypeName(v.Kind())
	if name == "" {
		return types.Empty, nil
	}
	return types.NewTypeInfo("System", name), nil
}

func systemTypeName(k types.Kind) string {
	switch k {
	case types.KindBoolean:
		return "Boolean"
	case types.KindInteger:
		return "Integer"
	case types.KindDecimal:
		return "Decimal"
	case types.KindString:
		return "String"
	case types.KindDate:
		return "Date"
	case types.KindDateTime:
		return "DateTime"
	case types.KindTime:
		return "Time"
	case types.KindQuantity:
		return "Quantity"
	default:
		return ""
	}
}

// fnIsFunctional backs the functional form `is(TypeSpecifier)`, used as an
// alternative to the `is` keyword operator (e.g. inside a where() body
// built by tooling that only emits function calls). It expects its single
// raw argument to be a bare identifier/property chain naming a type, the
// same grammar parseTypeSpecifier accepts for the infix form.
func fnIsFunctional(ec EvalContext, rawArgs []*types.ASTNode) (types.Value, error) {
	name, err := staticTypeNameArg(rawArgs[0])
	if err != nil {
		return types.Empty, err
	}
	v, ok := ec.CurrentInput().Singleton()
	if !ok {
		return types.Empty, nil
	}
	return types.NewBoolean(valueMatchesType(v, name)), nil
}

// fnComparable implements the spec-supplemented comparable(quantity) check
// (SPEC_FULL §7): two quantities are comparable if they share a unit, or are
// both unitless. Without a UCUM collaborator wired in (spec §1 Out of
// scope), differing non-empty units are reported as not comparable rather
// than guessing at a conversion — the same permissive-but-honest default
// types.NopUnitConverter uses elsewhere, grounded in
// original_source/fhirpath-core/src/value_ext.rs's has_compatible_dimensions.
func fnComparable(ec EvalContext, args []types.Value) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok || v.Kind() != types.KindQuantity {
		return types.Empty, nil
	}
	other, ok := args[0].Singleton()
	if !ok || other.Kind() != types.KindQuantity {
		return types.Empty, nil
	}
	return types.NewBoolean(v.Unit() == other.Unit()), nil
}

// fnHTMLChecks implements the spec-supplemented htmlChecks() function
// (SPEC_FULL §7), used to validate a resource's narrative text.div content.
// No library in the dependency corpus parses HTML/XHTML fragments, so this
// leans on encoding/xml to confirm the fragment is at least well-formed XML
// (balanced, properly nested tags) — a deliberately narrower check than the
// full FHIR narrative ruleset (allowed element/attribute allow-list), which
// would need a dedicated HTML parser this corpus doesn't carry.
func fnHTMLChecks(ec EvalContext, args []types.Value) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok || v.Kind() != types.KindString {
		return types.Empty, nil
	}
	dec := xml.NewDecoder(strings.NewReader(v.Str()))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return types.NewBoolean(true), nil
		}
		if err != nil {
			return types.NewBoolean(false), nil
		}
	}
}
