package evaluator

import (
	"github.com/fhirpath-go/fhirpath/pkg/fhirjson"
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// evalIdentifier resolves a bare identifier (spec §4.4): at the head of a
// path it is either a type-name filter (`Patient` on a Patient resource
// returns the resource unchanged) or, failing that, ordinary property
// navigation off the current $this.
func evalIdentifier(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	cur := ec.CurrentInput()
	if r, ok := cur.Singleton(); ok && r.Kind() == types.KindResource && r.ResourceType() == n.Name {
		return cur, nil
	}
	return navigateProperty(ec, cur, n.Name), nil
}

// evalProperty evaluates base.name, flattening over every element of base
// per FHIRPath's automatic singleton/collection handling (spec §3).
func evalProperty(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	base, err := evalNode(ec, n.Base)
	if err != nil {
		return types.Empty, err
	}
	return navigateProperty(ec, base, n.Name), nil
}

func navigateProperty(ec *evalContext, base types.Value, name string) types.Value {
	var out []types.Value
	for _, el := range base.Elements() {
		out = append(out, propertyValues(ec, el, name)...)
	}
	return types.NewCollection(out...)
}

// propertyValues resolves one element's property, preferring the schema
// Provider's choice-type resolution (which knows the actual FHIR element
// model) and falling back to fhirjson's direct/prefix heuristic when no
// Provider is configured, or when the Provider errors on or does not report
// name as a choice property (spec §7, "schema availability failures" —
// navigation degrades, it never errors). When the Provider reports a choice
// property but cannot resolve which variant is present, the property yields
// no values.
func propertyValues(ec *evalContext, el types.Value, name string) []types.Value {
	if el.Kind() != types.KindResource {
		return nil
	}
	if ec.sch != nil {
		isChoice, err := ec.sch.IsChoiceProperty(ec.goCtx, el.ResourceType(), name)
		if err == nil && isChoice {
			variant, ok, err := ec.sch.ResolveChoiceProperty(ec.goCtx, el.ResourceType(), name, el.ResourceJSON())
			if err == nil && ok {
				return fhirjson.Property(el, variant)
			}
			return nil
		}
	}
	values := fhirjson.Property(el, name)
	return tagElementType(ec, el.ResourceType(), name, values)
}

// tagElementType tags any Resource-kind value in values with the FHIR
// structural type the schema Provider reports for parentType.name (e.g.
// HumanName for Patient.name), so a complex-type child navigated away from
// its parent still answers type()/ofType()/is/as correctly (spec §6.5;
// without the Provider, or for a simple/unknown element, values is
// returned unchanged).
func tagElementType(ec *evalContext, parentType, name string, values []types.Value) []types.Value {
	if ec.sch == nil || parentType == "" {
		return values
	}
	parent, ok, err := ec.sch.GetType(ec.goCtx, parentType)
	if err != nil || !ok {
		return values
	}
	el, ok := parent.Element(name)
	if !ok || el.Type.Kind != types.ReflectionClass {
		return values
	}
	for i, v := range values {
		values[i] = fhirjson.TagResourceType(v, el.Type.Name)
	}
	return values
}

// evalIndex evaluates base[index], singleton-lifting the index expression
// and returning Empty for an out-of-range or non-integer index rather than
// raising an error (spec §4.4's indexer, a total function over any input).
func evalIndex(ec *evalContext, n *types.ASTNode) (types.Value, error) {
	base, err := evalNode(ec, n.Base)
	if err != nil {
		return types.Empty, err
	}
	idxVal, err := evalNode(ec, n.Index)
	if err != nil {
		return types.Empty, err
	}
	idx, ok := idxVal.Singleton()
	if !ok || idx.Kind() != types.KindInteger {
		return types.Empty, nil
	}
	els := base.Elements()
	i := int(idx.Int())
	if i < 0 || i >= len(els) {
		return types.Empty, nil
	}
	return els[i], nil
}
