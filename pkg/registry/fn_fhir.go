package registry

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/fhirpath-go/fhirpath/pkg/fhirjson"
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// registerFHIRFns wires the FHIR-specific function family spec §4.5
// requires alongside the generic collection/string/numeric core: extension
// lookup, primitive-value accessors, Coding/Identifier/CodeableConcept
// helpers, local reference resolution, and the CDA hasTemplateIdOf check —
// grounded in original_source/crates/octofhir-fhirpath/src/registry/fhir.rs.
func registerFHIRFns(r *Registry) {
	r.register(&Operation{Name: "extension", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnExtension})
	r.register(&Operation{Name: "hasValue", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnHasValue})
	r.register(&Operation{Name: "getValue", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnGetValue})
	r.register(&Operation{Name: "identifier", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnIdentifier})
	r.register(&Operation{Name: "coding", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnCoding})
	r.register(&Operation{Name: "display", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnDisplay})
	r.register(&Operation{Name: "hasTemplateIdOf", MinArgs: 1, MaxArgs: 2, Pure: true, Fn: fnHasTemplateIdOf})
	r.register(&Operation{Name: "resolve", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnResolve})
	r.register(&Operation{Name: "conformsTo", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnConformsTo})
}

// fnExtension returns every member of the input's `extension` array whose
// `url` matches args[0]. The `modifierExtension` array is not searched.
func fnExtension(ec EvalContext, args []types.Value) (types.Value, error) {
	url, ok := args[0].Singleton()
	if !ok || url.Kind() != types.KindString {
		return types.Empty, nil
	}
	var out []types.Value
	for _, v := range ec.CurrentInput().Elements() {
		out = append(out, extensionsByURL(v, url.Str())...)
	}
	return types.NewCollection(out...), nil
}

func extensionsByURL(v types.Value, url string) []types.Value {
	if v.Kind() != types.KindResource {
		return nil
	}
	var out []types.Value
	gjson.GetBytes(v.ResourceJSON(), "extension").ForEach(func(_, ext gjson.Result) bool {
		if ext.Get("url").String() == url {
			out = append(out, types.NewResource([]byte(ext.Raw), "Extension"))
		}
		return true
	})
	return out
}

// fnHasValue reports whether any item in the input collection carries a
// value: a non-empty string, any scalar/temporal/quantity, or a non-empty
// object. An empty input, or one made up only of empty strings/objects,
// reports false.
func fnHasValue(ec EvalContext, args []types.Value) (types.Value, error) {
	input := ec.CurrentInput()
	if input.IsEmptyLike() {
		return types.NewBoolean(false), nil
	}
	for _, v := range input.Elements() {
		if elementHasValue(v) {
			return types.NewBoolean(true), nil
		}
	}
	return types.NewBoolean(false), nil
}

func elementHasValue(v types.Value) bool {
	switch v.Kind() {
	case types.KindEmpty:
		return false
	case types.KindString:
		return v.Str() != ""
	case types.KindResource:
		parsed := gjson.ParseBytes(v.ResourceJSON())
		return parsed.IsObject() && len(parsed.Map()) > 0
	default:
		return true
	}
}

// fnGetValue returns a primitive's own value unchanged, and for a complex
// element carrying a `value` member (an extended-primitive wrapper, or a
// `value[x]` sibling reached directly) returns that member instead.
func fnGetValue(ec EvalContext, args []types.Value) (types.Value, error) {
	var out []types.Value
	for _, v := range ec.CurrentInput().Elements() {
		if v.Kind() != types.KindResource {
			out = append(out, v)
			continue
		}
		if val := gjson.GetBytes(v.ResourceJSON(), "value"); val.Exists() {
			out = append(out, fhirjson.FromResult(val)...)
		}
	}
	return types.NewCollection(out...), nil
}

// fnIdentifier returns members of the input's `identifier` array whose
// `system` matches args[0].
func fnIdentifier(ec EvalContext, args []types.Value) (types.Value, error) {
	system, ok := args[0].Singleton()
	if !ok || system.Kind() != types.KindString {
		return types.Empty, nil
	}
	var out []types.Value
	for _, v := range ec.CurrentInput().Elements() {
		if v.Kind() != types.KindResource {
			continue
		}
		gjson.GetBytes(v.ResourceJSON(), "identifier").ForEach(func(_, id gjson.Result) bool {
			if id.Get("system").String() == system.Str() {
				out = append(out, types.NewResource([]byte(id.Raw), "Identifier"))
			}
			return true
		})
	}
	return types.NewCollection(out...), nil
}

// fnCoding returns the `coding` array of a CodeableConcept.
func fnCoding(ec EvalContext, args []types.Value) (types.Value, error) {
	var out []types.Value
	for _, v := range ec.CurrentInput().Elements() {
		if v.Kind() != types.KindResource {
			continue
		}
		gjson.GetBytes(v.ResourceJSON(), "coding").ForEach(func(_, c gjson.Result) bool {
			out = append(out, types.NewResource([]byte(c.Raw), "Coding"))
			return true
		})
	}
	return types.NewCollection(out...), nil
}

// fnDisplay returns a Coding's `display` string.
func fnDisplay(ec EvalContext, args []types.Value) (types.Value, error) {
	var out []types.Value
	for _, v := range ec.CurrentInput().Elements() {
		if v.Kind() != types.KindResource {
			continue
		}
		if d := gjson.GetBytes(v.ResourceJSON(), "display"); d.Exists() && d.Type == gjson.String {
			out = append(out, types.NewString(d.String()))
		}
	}
	return types.NewCollection(out...), nil
}

// fnHasTemplateIdOf is the CDA-on-FHIR check for a `templateId` entry
// matching root (and, if given, extension).
func fnHasTemplateIdOf(ec EvalContext, args []types.Value) (types.Value, error) {
	root, ok := args[0].Singleton()
	if !ok || root.Kind() != types.KindString {
		return types.Empty, nil
	}
	var ext string
	hasExt := false
	if len(args) == 2 {
		if e, ok := args[1].Singleton(); ok && e.Kind() == types.KindString {
			ext, hasExt = e.Str(), true
		}
	}
	v, ok := ec.CurrentInput().Singleton()
	if !ok || v.Kind() != types.KindResource {
		return types.NewBoolean(false), nil
	}
	found := false
	gjson.GetBytes(v.ResourceJSON(), "templateId").ForEach(func(_, tid gjson.Result) bool {
		if tid.Get("root").String() != root.Str() {
			return true
		}
		if !hasExt || tid.Get("extension").String() == ext {
			found = true
			return false
		}
		return true
	})
	return types.NewBoolean(found), nil
}

// fnResolve implements local, in-memory Reference resolution: a contained
// resource by "#id", or a Bundle entry by fullUrl or ResourceType/id match,
// both read off %resource (the root input to the top-level Evaluate call,
// matching the original's resource_context collaborator). Resolving an
// absolute URL against a terminology/reference server is out of scope
// (Non-goal: reference resolution over the network), so a reference this
// can't satisfy locally is dropped from the result rather than erroring.
func fnResolve(ec EvalContext, args []types.Value) (types.Value, error) {
	root := ec.RootResource()
	var out []types.Value
	for _, v := range ec.CurrentInput().Elements() {
		ref, ok := referenceString(v)
		if !ok {
			continue
		}
		if resolved, ok := resolveReference(root, ref); ok {
			out = append(out, resolved)
		}
	}
	return types.NewCollection(out...), nil
}

func referenceString(v types.Value) (string, bool) {
	switch v.Kind() {
	case types.KindString:
		return v.Str(), true
	case types.KindResource:
		ref := gjson.GetBytes(v.ResourceJSON(), "reference")
		if ref.Exists() && ref.Type == gjson.String {
			return ref.String(), true
		}
	}
	return "", false
}

func resolveReference(root types.Value, reference string) (types.Value, bool) {
	if root.Kind() != types.KindResource {
		return types.Empty, false
	}
	if id, ok := strings.CutPrefix(reference, "#"); ok {
		var result types.Value
		found := false
		gjson.GetBytes(root.ResourceJSON(), "contained").ForEach(func(_, entry gjson.Result) bool {
			if entry.Get("id").String() != id {
				return true
			}
			result = types.NewResource([]byte(entry.Raw), entry.Get("resourceType").String())
			found = true
			return false
		})
		return result, found
	}
	var result types.Value
	found := false
	gjson.GetBytes(root.ResourceJSON(), "entry").ForEach(func(_, entry gjson.Result) bool {
		res := entry.Get("resource")
		expected := res.Get("resourceType").String() + "/" + res.Get("id").String()
		if entry.Get("fullUrl").String() != reference && expected != reference {
			return true
		}
		result = types.NewResource([]byte(res.Raw), res.Get("resourceType").String())
		found = true
		return false
	})
	return result, found
}

// fnConformsTo checks the input resource's base type against profile's
// final path segment (e.g. ".../StructureDefinition/Patient" against a
// Patient resource). This is a base-type match only, not full
// StructureDefinition conformance (constraint/slicing validation needs a
// downloaded profile and schema store, which is out of scope per Non-goals
// "schema download/storage"); an unresolvable comparison degrades to Empty
// rather than a guessed answer.
func fnConformsTo(ec EvalContext, args []types.Value) (types.Value, error) {
	profile, ok := args[0].Singleton()
	if !ok || profile.Kind() != types.KindString {
		return types.Empty, nil
	}
	v, ok := ec.CurrentInput().Singleton()
	if !ok || v.Kind() != types.KindResource || v.ResourceType() == "" {
		return types.Empty, nil
	}
	return types.NewBoolean(strings.HasSuffix(profile.Str(), "/"+v.ResourceType())), nil
}
