package types

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ElementInfo describes one element (property) of a ClassInfo, per spec §3.
type ElementInfo struct {
	Name string
	Type TypeReflectionInfo

	Min int
	Max int // -1 means unbounded (spec's "max=None")

	IsModifier bool
	IsSummary  bool
	Doc        string

	// Choice holds the variant ElementInfos when this element is itself a
	// choice-type base (e.g. the synthetic "value" entry standing in for
	// valueString/valueInteger/…). Empty when this element is not a choice.
	Choice []ElementInfo
}

// IsChoice reports whether this element represents a `[x]` choice property.
func (e ElementInfo) IsChoice() bool { return len(e.Choice) > 0 }

// ReflectionKind tags which TypeReflectionInfo variant is held.
type ReflectionKind uint8

const (
	ReflectionSimple ReflectionKind = iota
	ReflectionClass
)

// TypeReflectionInfo is a tagged sum: SimpleType (a primitive/System type)
// or ClassInfo (a FHIR resource/complex type with an ordered element list),
// per spec §3.
type TypeReflectionInfo struct {
	Kind      ReflectionKind
	Namespace string
	Name      string
	BaseType  *TypeReflectionInfo // nil at the root of a hierarchy

	// Elements is present only when Kind == ReflectionClass. It uses an
	// ordered map (not a slice+index map pair) so declaration order — which
	// FHIR StructureDefinitions are authoritative about, and which
	// `children()`/reflection consumers must preserve — is the map's
	// natural iteration order rather than a side channel.
	Elements *orderedmap.OrderedMap[string, ElementInfo]
}

// NewSimpleType builds a SimpleType reflection entry.
func NewSimpleType(namespace, name string, base *TypeReflectionInfo) TypeReflectionInfo {
	return TypeReflectionInfo{Kind: ReflectionSimple, Namespace: namespace, Name: name, BaseType: base}
}

// NewClassInfo builds an empty ClassInfo; call AddElement to populate it.
func NewClassInfo(namespace, name string, base *TypeReflectionInfo) TypeReflectionInfo {
	return TypeReflectionInfo{
		Kind:      ReflectionClass,
		Namespace: namespace,
		Name:      name,
		BaseType:  base,
		Elements:  orderedmap.New[string, ElementInfo](),
	}
}

// AddElement appends an element, preserving insertion order.
func (t *TypeReflectionInfo) AddElement(el ElementInfo) {
	if t.Elements == nil {
		t.Elements = orderedmap.New[string, ElementInfo]()
	}
	t.Elements.Set(el.Name, el)
}

// Element looks up a direct element by name.
func (t *TypeReflectionInfo) Element(name string) (ElementInfo, bool) {
	if t.Elements == nil {
		return ElementInfo{}, false
	}
	return t.Elements.Get(name)
}

// ElementNames returns element names in declaration order, used by the
// analyzer's did-you-mean suggestions.
func (t *TypeReflectionInfo) ElementNames() []string {
	if t.Elements == nil {
		return nil
	}
	names := make([]string, 0, t.Elements.Len())
	for pair := t.Elements.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// TypeInfoValue renders this reflection entry as the TypeInfo Value variant
// returned by the `type()` operation.
func (t TypeReflectionInfo) TypeInfoValue() Value {
	return NewTypeInfo(t.Namespace, t.Name)
}

// QualifiedName returns "Namespace.Name", e.g. "FHIR.Patient" or
// "System.Integer".
func (t TypeReflectionInfo) QualifiedName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}
