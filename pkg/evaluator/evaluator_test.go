package evaluator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhirpath-go/fhirpath/pkg/evaluator"
	"github.com/fhirpath-go/fhirpath/pkg/parser"
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

const patientJSON = `{
	"resourceType": "Patient",
	"active": true,
	"name": [
		{"use": "official", "given": ["Jim"], "family": "Smith"},
		{"use": "nickname", "given": ["Jimmy"]}
	],
	"birthDate": "1974-12-25",
	"valueQuantity": {"value": 1.5, "unit": "mg"}
}`

func eval(t *testing.T, expr string) types.Value {
	t.Helper()
	e := evaluator.New()
	compiled, err := parser.Parse(expr)
	require.NoError(t, err, "parse %q", expr)
	input := types.NewResource([]byte(patientJSON), "Patient")
	result, err := e.Eval(context.Background(), compiled, input)
	require.NoError(t, err, "eval %q", expr)
	return result
}

func TestEvalNavigation(t *testing.T) {
	result := eval(t, "Patient.name.where(use = 'official').given")
	require.Equal(t, 1, result.Len())
	assert.Equal(t, "Jim", result.Elements()[0].Str())
}

func TestEvalIndexAndCount(t *testing.T) {
	assert.Equal(t, int64(2), eval(t, "Patient.name.count()").Int())
	assert.Equal(t, "Smith", eval(t, "Patient.name[0].family").Str())
}

func TestEvalBooleanLogic(t *testing.T) {
	assert.True(t, eval(t, "Patient.active").Bool())
	assert.True(t, eval(t, "Patient.active and true").Bool())
	assert.True(t, eval(t, "Patient.name.exists()").Bool())
	assert.False(t, eval(t, "Patient.name.empty()").Bool())
}

func TestEvalArithmetic(t *testing.T) {
	assert.Equal(t, int64(7), eval(t, "3 + 4").Int())
	d := eval(t, "1 / 4")
	got, _ := d.Decimal().Float64()
	assert.InDelta(t, 0.25, got, 1e-9)
}

func TestEvalStringFunctions(t *testing.T) {
	assert.Equal(t, "JIM", eval(t, "Patient.name[0].given[0].upper()").Str())
	assert.True(t, eval(t, "Patient.name[0].family.startsWith('Sm')").Bool())
}

func TestEvalDefineVariablePropagatesThroughPipeline(t *testing.T) {
	result := eval(t, "Patient.name.first().defineVariable('n', given.first()).select(%n)")
	require.Equal(t, 1, result.Len())
	assert.Equal(t, "Jim", result.Elements()[0].Str())
}

func TestEvalUnionDedup(t *testing.T) {
	result := eval(t, "(1 | 2 | 2 | 3)")
	assert.Equal(t, 3, result.Len())
}

func TestEvalTypeCheck(t *testing.T) {
	assert.True(t, eval(t, "1 is Integer").Bool())
	assert.False(t, eval(t, "'x' is Integer").Bool())
}

func TestEvalIifSugar(t *testing.T) {
	assert.Equal(t, "yes", eval(t, "iif(Patient.active, 'yes', 'no')").Str())
}

func TestEvalMissingPropertyIsEmptyNotError(t *testing.T) {
	result := eval(t, "Patient.nonexistentField")
	assert.True(t, result.IsEmptyLike())
}

// fakeHumanNameProvider resolves just enough of Patient.name's structure to
// exercise schema-driven narrowing of a complex-type element away from its
// parent resource.
type fakeHumanNameProvider struct{}

func (fakeHumanNameProvider) GetType(_ context.Context, name string) (types.TypeReflectionInfo, bool, error) {
	if name != "Patient" {
		return types.TypeReflectionInfo{}, false, nil
	}
	humanName := types.NewClassInfo("FHIR", "HumanName", nil)
	patient := types.NewClassInfo("FHIR", "Patient", nil)
	patient.AddElement(types.ElementInfo{Name: "name", Type: humanName})
	return patient, true, nil
}

func (fakeHumanNameProvider) IsChoiceProperty(context.Context, string, string) (bool, error) {
	return false, nil
}

func (fakeHumanNameProvider) ResolveChoiceProperty(context.Context, string, string, []byte) (string, bool, error) {
	return "", false, nil
}

func (fakeHumanNameProvider) GetChoiceVariants(context.Context, string, string) ([]types.ElementInfo, error) {
	return nil, nil
}

func (fakeHumanNameProvider) IsSubtype(_ context.Context, child, parent string) (bool, error) {
	return child == parent, nil
}

func TestEvalNarrowedElementReportsStructuralType(t *testing.T) {
	e := evaluator.New(evaluator.WithSchema(fakeHumanNameProvider{}))
	compiled, err := parser.Parse("Patient.name.first().type()")
	require.NoError(t, err)
	input := types.NewResource([]byte(patientJSON), "Patient")
	result, err := e.Eval(context.Background(), compiled, input)
	require.NoError(t, err)
	singleton, ok := result.Singleton()
	require.True(t, ok)
	assert.Equal(t, "FHIR", singleton.Namespace())
	assert.Equal(t, "HumanName", singleton.Name())
}

func TestEvalOfTypeMatchesSchemaNarrowedElement(t *testing.T) {
	e := evaluator.New(evaluator.WithSchema(fakeHumanNameProvider{}))
	compiled, err := parser.Parse("Patient.name.ofType(HumanName).count()")
	require.NoError(t, err)
	input := types.NewResource([]byte(patientJSON), "Patient")
	result, err := e.Eval(context.Background(), compiled, input)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Int())
}
