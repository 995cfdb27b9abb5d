// Package fhirjson converts between gjson results and the runtime Value
// type, without ever fully unmarshaling a FHIR resource into Go structs.
// It is shared by pkg/registry (children()/descendants()) and pkg/evaluator
// (property navigation, choice-type resolution) so both walk opaque
// resource JSON the same way.
package fhirjson

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// Children returns the immediate child values of v: for a Resource, every
// JSON member read via gjson (the resourceType discriminator itself is
// skipped, since it is not a navigable element); for any other Kind, none.
func Children(v types.Value) []types.Value {
	if v.Kind() != types.KindResource {
		return nil
	}
	parsed := gjson.ParseBytes(v.ResourceJSON())
	if !parsed.IsObject() {
		return nil
	}
	var out []types.Value
	parsed.ForEach(func(key, value gjson.Result) bool {
		if key.String() == "resourceType" {
			return true
		}
		out = append(out, FromResult(value)...)
		return true
	})
	return out
}

// Property looks up the element named name on v (a Resource-kind Value),
// resolving FHIR's choice-type (`value[x]`) convention: if no member is
// named exactly name, the first member whose name is name followed by a
// capitalized type suffix (valueString, valueQuantity, ...) is used.
func Property(v types.Value, name string) []types.Value {
	if v.Kind() != types.KindResource {
		return nil
	}
	parsed := gjson.ParseBytes(v.ResourceJSON())
	if !parsed.IsObject() {
		return nil
	}
	if direct := parsed.Get(gjsonPathEscape(name)); direct.Exists() {
		return FromResult(direct)
	}
	var out []types.Value
	parsed.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if !strings.HasPrefix(k, name) || len(k) == len(name) {
			return true
		}
		rest := k[len(name):]
		if rest[0] < 'A' || rest[0] > 'Z' {
			return true
		}
		out = append(out, FromResult(value)...)
		return false
	})
	return out
}

// gjsonPathEscape escapes path metacharacters (`.`, `*`, `?`) gjson would
// otherwise interpret as wildcards, since FHIR element names are plain
// JSON object keys, never gjson path expressions.
func gjsonPathEscape(name string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(name)
}

// TagResourceType re-serializes v's raw JSON with resourceType set to
// typeName, and returns the resulting Resource-kind Value. A plain JSON
// object nested inside a FHIR resource (a HumanName, an Address, a backbone
// element) carries no resourceType of its own, so Children/Property produce
// it with ResourceType() == ""; the caller tags it with the structural type
// the schema.Provider resolved for that element so type()/ofType()/is/as
// and any further choice-property resolution on it keep working once it is
// narrowed away from its parent. v is returned unchanged if it is not a
// Resource or typeName is empty.
func TagResourceType(v types.Value, typeName string) types.Value {
	if v.Kind() != types.KindResource || typeName == "" || v.ResourceType() == typeName {
		return v
	}
	tagged, err := sjson.SetBytes(v.ResourceJSON(), "resourceType", typeName)
	if err != nil {
		return v
	}
	return types.NewResource(tagged, typeName)
}

// FromResult converts one gjson.Result member into zero or more Values: a
// JSON array fans out into one Value per element, a JSON object becomes a
// single untyped Resource-kind Value (the caller's schema-aware layer, not
// this package, resolves the FHIR structure type), and scalars become
// their corresponding Value Kind.
func FromResult(v gjson.Result) []types.Value {
	switch {
	case v.IsArray():
		var out []types.Value
		for _, el := range v.Array() {
			out = append(out, FromResult(el)...)
		}
		return out
	case v.IsObject():
		return []types.Value{types.NewResource([]byte(v.Raw), "")}
	case v.Type == gjson.String:
		return []types.Value{types.NewString(v.String())}
	case v.Type == gjson.Number:
		if v.Num == float64(int64(v.Num)) {
			return []types.Value{types.NewInteger(int64(v.Num))}
		}
		d, err := types.NewDecimalFromString(v.Raw)
		if err != nil {
			return nil
		}
		return []types.Value{d}
	case v.Type == gjson.True, v.Type == gjson.False:
		return []types.Value{types.NewBoolean(v.Bool())}
	default:
		return nil
	}
}
