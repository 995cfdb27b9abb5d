// Package types defines the core type system shared by every stage of the
// FHIRPath pipeline: the tagged Value sum (runtime values), the ASTNode sum
// (parsed expressions), TypeReflectionInfo (schema reflection), and the
// structured error/diagnostic taxonomy.
package types

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindBoolean
	KindInteger
	KindDecimal
	KindString
	KindDate
	KindDateTime
	KindTime
	KindQuantity
	KindResource
	KindCollection
	KindTypeInfo
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "Empty"
	case KindBoolean:
		return "Boolean"
	case KindInteger:
		return "Integer"
	case KindDecimal:
		return "Decimal"
	case KindString:
		return "String"
	case KindDate:
		return "Date"
	case KindDateTime:
		return "DateTime"
	case KindTime:
		return "Time"
	case KindQuantity:
		return "Quantity"
	case KindResource:
		return "Resource"
	case KindCollection:
		return "Collection"
	case KindTypeInfo:
		return "TypeInfo"
	default:
		return "Unknown"
	}
}

// Precision tags how much of a Date/DateTime/Time literal was specified,
// per spec §3 and §6.3. Comparisons and equality between temporals of
// differing precision degrade to Empty rather than guessing.
type Precision uint8

const (
	PrecisionYear Precision = iota
	PrecisionMonth
	PrecisionDay
	PrecisionHour
	PrecisionMinute
	PrecisionSecond
	PrecisionMillisecond
)

// UnitExpression is the parsed form of a quantity unit string (e.g. a UCUM
// expression decomposed into symbol/exponent pairs). The core never
// performs unit arithmetic itself — that is the UnitConverter collaborator's
// job (see unit.go) — so UnitExpression is treated as an opaque comparable
// payload here.
type UnitExpression struct {
	Symbol string
	Factor *apd.Decimal // canonical-unit multiplier, nil if unknown
}

// Value is a tagged sum of every FHIRPath runtime value (spec §3). It is a
// plain struct rather than an interface so that scalar values (the
// overwhelming majority on any hot evaluation path) never need a heap
// allocation to satisfy an interface.
type Value struct {
	kind Kind

	boolean bool
	integer int64
	decimal apd.Decimal
	str     string // String payload, and the raw lexeme for Date/DateTime/Time

	precision Precision

	unit     string
	unitExpr *UnitExpression

	resourceJSON []byte
	resourceType string

	collection []Value

	namespace string
	name      string
}

// Empty is the singleton "no value" result.
var Empty = Value{kind: KindEmpty}

func NewBoolean(b bool) Value { return Value{kind: KindBoolean, boolean: b} }
func NewInteger(i int64) Value { return Value{kind: KindInteger, integer: i} }
func NewString(s string) Value { return Value{kind: KindString, str: s} }

// NewDecimal wraps an already-parsed apd.Decimal.
func NewDecimal(d apd.Decimal) Value { return Value{kind: KindDecimal, decimal: d} }

// NewDecimalFromString parses a decimal literal using apd's exact (non
// floating-point) parser, preserving trailing zeros for precision-sensitive
// comparisons (spec §3, arbitrary precision Decimal).
func NewDecimalFromString(s string) (Value, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Value{}, fmt.Errorf("invalid decimal literal %q: %w", s, err)
	}
	return Value{kind: KindDecimal, decimal: *d}, nil
}

func NewDate(lexeme string, p Precision) Value {
	return Value{kind: KindDate, str: lexeme, precision: p}
}

func NewDateTime(lexeme string, p Precision) Value {
	return Value{kind: KindDateTime, str: lexeme, precision: p}
}

func NewTime(lexeme string, p Precision) Value {
	return Value{kind: KindTime, str: lexeme, precision: p}
}

// NewQuantity builds a Quantity value. unit may be empty (unitless) and
// expr may be nil (unit not yet resolved by a UnitConverter).
func NewQuantity(d apd.Decimal, unit string, expr *UnitExpression) Value {
	return Value{kind: KindQuantity, decimal: d, unit: unit, unitExpr: expr}
}

// NewResource wraps an opaque JSON object (a FHIR resource or backbone
// element) together with its resourceType tag, if any.
func NewResource(json []byte, resourceType string) Value {
	return Value{kind: KindResource, resourceJSON: json, resourceType: resourceType}
}

func NewTypeInfo(namespace, name string) Value {
	return Value{kind: KindTypeInfo, namespace: namespace, name: name}
}

// NewCollection builds a Collection value, flattening any nested
// collections one level per invariant (i) in spec §3: collections never
// directly nest. Empty values passed in are NOT automatically dropped —
// callers that want Empty-filtering semantics (e.g. `=` equality) do that
// explicitly; NewCollection only enforces the non-nesting invariant.
func NewCollection(values ...Value) Value {
	flat := make([]Value, 0, len(values))
	for _, v := range values {
		if v.kind == KindCollection {
			flat = append(flat, v.collection...)
		} else {
			flat = append(flat, v)
		}
	}
	return Value{kind: KindCollection, collection: flat}
}

// Kind returns the tag of the variant held by v.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// IsEmptyLike treats both Empty and a zero-length Collection as "no value",
// per invariant (iii): most predicates don't distinguish them, even though
// the API boundary does (see Value.IsEmpty for the strict form).
func (v Value) IsEmptyLike() bool {
	return v.kind == KindEmpty || (v.kind == KindCollection && len(v.collection) == 0)
}

func (v Value) Bool() bool { return v.boolean }
func (v Value) Int() int64 { return v.integer }
func (v Value) Decimal() apd.Decimal { return v.decimal }
func (v Value) Str() string { return v.str }
func (v Value) Precision() Precision { return v.precision }
func (v Value) Unit() string { return v.unit }
func (v Value) UnitExpr() *UnitExpression { return v.unitExpr }
func (v Value) ResourceJSON() []byte { return v.resourceJSON }
func (v Value) ResourceType() string { return v.resourceType }
func (v Value) Namespace() string { return v.namespace }
func (v Value) Name() string { return v.name }

// Elements returns the items of a Collection, or a 1-element slice wrapping
// any other value (singletons count as a 1-element collection — spec §4.4
// index access, and the singleton/collection identity test property §8).
// Empty returns a nil (zero-length) slice.
func (v Value) Elements() []Value {
	switch v.kind {
	case KindCollection:
		return v.collection
	case KindEmpty:
		return nil
	default:
		return []Value{v}
	}
}

// Len returns the number of elements Elements() would return, without
// allocating a singleton wrapper slice.
func (v Value) Len() int {
	switch v.kind {
	case KindCollection:
		return len(v.collection)
	case KindEmpty:
		return 0
	default:
		return 1
	}
}

// Singleton returns the sole element of a one-element collection or
// non-collection value, and ok=false for Empty or a multi-element
// collection. Used by operators marked "singleton-lifting" in spec §8.
func (v Value) Singleton() (Value, bool) {
	switch v.kind {
	case KindEmpty:
		return Empty, false
	case KindCollection:
		if len(v.collection) == 1 {
			return v.collection[0], true
		}
		return Empty, false
	default:
		return v, true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindEmpty:
		return "{}"
	case KindBoolean:
		if v.boolean {
			return "true"
		}
		return "false"
	case KindInteger:
		return fmt.Sprintf("%d", v.integer)
	case KindDecimal:
		return v.decimal.String()
	case KindString:
		return v.str
	case KindDate, KindDateTime, KindTime:
		return v.str
	case KindQuantity:
		if v.unit == "" {
			return v.decimal.String()
		}
		return fmt.Sprintf("%s '%s'", v.decimal.String(), v.unit)
	case KindResource:
		return string(v.resourceJSON)
	case KindTypeInfo:
		if v.namespace == "" {
			return v.name
		}
		return v.namespace + "." + v.name
	case KindCollection:
		parts := make([]string, len(v.collection))
		for i, e := range v.collection {
			parts[i] = e.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return ""
	}
}
