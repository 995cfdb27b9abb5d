package types

import "github.com/cockroachdb/apd/v3"

// UnitConverter is the external collaborator that knows UCUM unit algebra
// (spec §1 Out of scope). The core consumes it only through this interface:
// it never parses or normalizes unit strings itself.
type UnitConverter interface {
	// Comparable reports whether two unit strings denote quantities that can
	// be compared/added once converted to a common base unit.
	Comparable(a, b string) bool

	// Convert rewrites value (expressed in fromUnit) into toUnit, returning
	// ok=false if the units are not comparable.
	Convert(value apd.Decimal, fromUnit, toUnit string) (apd.Decimal, bool)

	// Parse decomposes a unit string into a UnitExpression, or returns
	// ok=false for a unit string it does not recognize (callers fall back to
	// treating the unit as an opaque string).
	Parse(unit string) (UnitExpression, bool)
}

// NopUnitConverter treats every unit string as incomparable to every other
// (including itself, except by exact string match), which is the safe
// degrade-to-permissive default described in spec §7 for missing
// collaborators — it never panics, it just makes quantity comparisons
// across differing units yield Empty instead of a wrong answer.
type NopUnitConverter struct{}

func (NopUnitConverter) Comparable(a, b string) bool { return a == b }

func (NopUnitConverter) Convert(value apd.Decimal, fromUnit, toUnit string) (apd.Decimal, bool) {
	if fromUnit == toUnit {
		return value, true
	}
	return apd.Decimal{}, false
}

func (NopUnitConverter) Parse(unit string) (UnitExpression, bool) {
	return UnitExpression{Symbol: unit}, false
}
