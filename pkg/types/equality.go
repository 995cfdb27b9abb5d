package types

import "github.com/cockroachdb/apd/v3"

// Equal implements FHIRPath's strict singleton equality (the building block
// both the `=` operator and collection functions like distinct/union use):
// two values are equal only if they share a Kind and their payloads compare
// equal. Temporals compare equal only at matching Precision (spec §6.3);
// comparing temporals of differing precision is a job for the `=` operator
// itself, which degrades to Empty rather than false — Equal here reports
// plain false for that case, since it is used by callers (distinct, etc.)
// that want a total, boolean notion of "same value".
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		// Integer/Decimal interop: FHIRPath treats 1 and 1.0 as equal.
		if a.kind == KindInteger && b.kind == KindDecimal {
			return decimalEqual(apd.New(a.integer, 0), &b.decimal)
		}
		if a.kind == KindDecimal && b.kind == KindInteger {
			return decimalEqual(&a.decimal, apd.New(b.integer, 0))
		}
		return false
	}
	switch a.kind {
	case KindEmpty:
		return true
	case KindBoolean:
		return a.boolean == b.boolean
	case KindInteger:
		return a.integer == b.integer
	case KindDecimal:
		return decimalEqual(&a.decimal, &b.decimal)
	case KindString:
		return a.str == b.str
	case KindDate, KindDateTime, KindTime:
		return a.precision == b.precision && a.str == b.str
	case KindQuantity:
		return a.unit == b.unit && decimalEqual(&a.decimal, &b.decimal)
	case KindResource:
		return a.resourceType == b.resourceType && string(a.resourceJSON) == string(b.resourceJSON)
	case KindTypeInfo:
		return a.namespace == b.namespace && a.name == b.name
	case KindCollection:
		if len(a.collection) != len(b.collection) {
			return false
		}
		for i := range a.collection {
			if !Equal(a.collection[i], b.collection[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func decimalEqual(a, b *apd.Decimal) bool {
	return a.Cmp(b) == 0
}

// Compare returns -1/0/1 for a<b/a==b/a>b among ordered kinds (Integer,
// Decimal, String, Date/DateTime/Time of matching precision, Quantity of
// matching unit), and ok=false when the two values are not comparable —
// the `<`/`<=`/`>`/`>=` operators degrade to Empty on ok=false.
func Compare(a, b Value) (cmp int, ok bool) {
	switch {
	case a.kind == KindInteger && b.kind == KindInteger:
		switch {
		case a.integer < b.integer:
			return -1, true
		case a.integer > b.integer:
			return 1, true
		default:
			return 0, true
		}
	case isNumeric(a.kind) && isNumeric(b.kind):
		ad, bd := asDecimal(a), asDecimal(b)
		return ad.Cmp(&bd), true
	case a.kind == KindString && b.kind == KindString:
		switch {
		case a.str < b.str:
			return -1, true
		case a.str > b.str:
			return 1, true
		default:
			return 0, true
		}
	case (a.kind == KindDate || a.kind == KindDateTime || a.kind == KindTime) && a.kind == b.kind:
		if a.precision != b.precision {
			return 0, false
		}
		switch {
		case a.str < b.str:
			return -1, true
		case a.str > b.str:
			return 1, true
		default:
			return 0, true
		}
	case a.kind == KindQuantity && b.kind == KindQuantity:
		if a.unit != b.unit {
			return 0, false
		}
		return a.decimal.Cmp(&b.decimal), true
	default:
		return 0, false
	}
}

func isNumeric(k Kind) bool { return k == KindInteger || k == KindDecimal }

func asDecimal(v Value) apd.Decimal {
	if v.kind == KindInteger {
		return *apd.New(v.integer, 0)
	}
	return v.decimal
}
