package registry_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhirpath-go/fhirpath/pkg/evaluator"
	"github.com/fhirpath-go/fhirpath/pkg/parser"
	"github.com/fhirpath-go/fhirpath/pkg/registry"
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

func TestDefaultRegistryHasCoreOperations(t *testing.T) {
	reg := registry.Default()
	for _, name := range []string{
		"where", "select", "exists", "empty", "first", "last", "count",
		"upper", "lower", "substring", "replace", "matches", "lastIndexOf",
		"abs", "round", "sqrt", "power",
		"toInteger", "toString", "toBoolean", "toDate", "toDateTime", "toTime",
		"children", "descendants", "trace", "defineVariable", "iif",
		"extension", "hasValue", "getValue", "identifier", "coding", "display",
		"hasTemplateIdOf", "resolve", "conformsTo",
	} {
		_, ok := reg.Lookup(name)
		assert.True(t, ok, "expected %q to be registered", name)
	}
}

func TestUnknownOperationLookupFails(t *testing.T) {
	reg := registry.Default()
	_, ok := reg.Lookup("totallyNotARealFunction")
	assert.False(t, ok)
}

func evalExpr(t *testing.T, expr string, input types.Value) types.Value {
	t.Helper()
	compiled, err := parser.Parse(expr)
	require.NoError(t, err)
	e := evaluator.New()
	result, err := e.Eval(context.Background(), compiled, input)
	require.NoError(t, err)
	return result
}

func TestAggregateSeededFold(t *testing.T) {
	input := types.NewCollection(types.NewInteger(1), types.NewInteger(2), types.NewInteger(3), types.NewInteger(4))
	result := evalExpr(t, "aggregate($this + $total, 0)", input)
	assert.Equal(t, int64(10), result.Int())
}

func TestRepeatFixedPoint(t *testing.T) {
	// A simple collection-of-collections-style repeat: repeat(children())
	// over a resource without nested arrays should terminate immediately.
	input := types.NewResource([]byte(`{"resourceType":"Patient","active":true}`), "Patient")
	result := evalExpr(t, "Patient.repeat(children())", input)
	assert.True(t, result.Len() >= 0)
}

func TestDistinctAndIsDistinct(t *testing.T) {
	input := types.NewCollection(types.NewInteger(1), types.NewInteger(1), types.NewInteger(2))
	assert.Equal(t, 2, evalExpr(t, "distinct()", input).Len())
	assert.False(t, evalExpr(t, "isDistinct()", input).Bool())
}

func TestConversionFunctions(t *testing.T) {
	assert.Equal(t, int64(42), evalExpr(t, "toInteger()", types.NewString("42")).Int())
	assert.True(t, evalExpr(t, "convertsToInteger()", types.NewString("42")).Bool())
	assert.False(t, evalExpr(t, "convertsToInteger()", types.NewString("nope")).Bool())
}

func decimalFromString(t *testing.T, s string) types.Value {
	t.Helper()
	v, err := types.NewDecimalFromString(s)
	require.NoError(t, err)
	return v
}

func TestDecimalBoundaries(t *testing.T) {
	input := decimalFromString(t, "1.5")
	low := evalExpr(t, "lowBoundary()", input)
	high := evalExpr(t, "highBoundary()", input)
	lowF, _ := low.Decimal().Float64()
	highF, _ := high.Decimal().Float64()
	assert.InDelta(t, 1.45, lowF, 1e-9)
	assert.InDelta(t, 1.55, highF, 1e-9)
}

func TestDateBoundaries(t *testing.T) {
	year := types.NewDate("2014", types.PrecisionYear)
	assert.Equal(t, "2014-01-01", evalExpr(t, "lowBoundary()", year).Str())
	assert.Equal(t, "2014-12-31", evalExpr(t, "highBoundary()", year).Str())

	month := types.NewDate("2014-02", types.PrecisionMonth)
	assert.Equal(t, "2014-02-01", evalExpr(t, "lowBoundary()", month).Str())
	assert.Equal(t, "2014-02-28", evalExpr(t, "highBoundary()", month).Str())
}

func TestTemporalAndQuantityPrecision(t *testing.T) {
	month := types.NewDate("2014-02", types.PrecisionMonth)
	assert.Equal(t, int64(6), evalExpr(t, "precision()", month).Int())
	assert.Equal(t, int64(3), evalExpr(t, "precision()", decimalFromString(t, "1.50")).Int())
}

func TestComparableQuantities(t *testing.T) {
	input := types.NewQuantity(*apd.New(4, 0), "mg", nil)
	assert.True(t, evalExpr(t, "comparable(4 'mg')", input).Bool())
	assert.False(t, evalExpr(t, "comparable(4 'kg')", input).Bool())
}

func TestHTMLChecks(t *testing.T) {
	assert.True(t, evalExpr(t, "htmlChecks()", types.NewString("<div><p>hello</p></div>")).Bool())
	assert.False(t, evalExpr(t, "htmlChecks()", types.NewString("<div><p>oops</div>")).Bool())
}

func TestLastIndexOf(t *testing.T) {
	input := types.NewString("abcabc")
	assert.Equal(t, int64(3), evalExpr(t, "lastIndexOf('a')", input).Int())
	assert.Equal(t, int64(0), evalExpr(t, "indexOf('a')", input).Int())
}

func TestTemporalConversions(t *testing.T) {
	assert.Equal(t, "2015-02-07", evalExpr(t, "toDate()", types.NewString("2015-02-07")).Str())
	assert.True(t, evalExpr(t, "toDate()", types.NewString("not a date")).IsEmptyLike())

	dt := evalExpr(t, "toDateTime()", types.NewDate("2015-02", types.PrecisionMonth))
	assert.Equal(t, "2015-02", dt.Str())
	assert.Equal(t, types.PrecisionMonth, dt.Precision())

	assert.True(t, evalExpr(t, "convertsToTime()", types.NewString("13:28:17")).Bool())
	assert.False(t, evalExpr(t, "convertsToTime()", types.NewString("nope")).Bool())

	truncated := evalExpr(t, "toDate()", types.NewDateTime("2015-02-07T13:28:17", types.PrecisionSecond))
	assert.Equal(t, "2015-02-07", truncated.Str())
}

func TestFHIRExtensionAndValueHelpers(t *testing.T) {
	patient := types.NewResource([]byte(`{
		"resourceType": "Patient",
		"extension": [
			{"url": "http://example.org/ext", "valueString": "x"},
			{"url": "http://example.org/other", "valueString": "y"}
		],
		"identifier": [{"system": "http://example.org/mrn", "value": "123"}]
	}`), "Patient")

	ext := evalExpr(t, "extension('http://example.org/ext')", patient)
	assert.Equal(t, 1, ext.Len())

	id := evalExpr(t, "identifier('http://example.org/mrn')", patient)
	assert.Equal(t, 1, id.Len())

	assert.True(t, evalExpr(t, "hasValue()", types.NewString("x")).Bool())
	assert.False(t, evalExpr(t, "hasValue()", types.NewString("")).Bool())
}

func TestFHIRCodingDisplayAndTemplateId(t *testing.T) {
	concept := types.NewResource([]byte(`{
		"coding": [{"system": "http://loinc.org", "code": "1234", "display": "Test"}]
	}`), "CodeableConcept")

	codings := evalExpr(t, "coding()", concept)
	assert.Equal(t, 1, codings.Len())
	assert.Equal(t, "Test", evalExpr(t, "display()", codings.Elements()[0]).Str())

	cda := types.NewResource([]byte(`{
		"templateId": [{"root": "2.16.840.1.113883.10.20.22.1.1", "extension": "2015-08-01"}]
	}`), "Section")
	assert.True(t, evalExpr(t, "hasTemplateIdOf('2.16.840.1.113883.10.20.22.1.1', '2015-08-01')", cda).Bool())
	assert.False(t, evalExpr(t, "hasTemplateIdOf('nope')", cda).Bool())
}

func TestFHIRResolveAndConformsTo(t *testing.T) {
	bundle := types.NewResource([]byte(`{
		"resourceType": "Bundle",
		"entry": [
			{"fullUrl": "urn:uuid:1", "resource": {"resourceType": "Patient", "id": "1", "active": true}}
		]
	}`), "Bundle")

	resolved := evalExpr(t, "'urn:uuid:1'.resolve()", bundle)
	assert.Equal(t, 1, resolved.Len())
	assert.Equal(t, "Patient", resolved.Elements()[0].ResourceType())

	patient := types.NewResource([]byte(`{"resourceType":"Patient","id":"1"}`), "Patient")
	assert.True(t, evalExpr(t, "conformsTo('http://hl7.org/fhir/StructureDefinition/Patient')", patient).Bool())
	assert.False(t, evalExpr(t, "conformsTo('http://hl7.org/fhir/StructureDefinition/Observation')", patient).Bool())
}
