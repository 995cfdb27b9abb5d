package analyzer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhirpath-go/fhirpath/pkg/analyzer"
	"github.com/fhirpath-go/fhirpath/pkg/parser"
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// fakeProvider is a minimal in-memory schema.Provider covering just enough
// of Patient/HumanName to exercise the analyzer's property and type checks.
type fakeProvider struct {
	types map[string]types.TypeReflectionInfo
}

func newFakeProvider() *fakeProvider {
	humanName := types.NewClassInfo("FHIR", "HumanName", nil)
	humanName.AddElement(types.ElementInfo{Name: "family", Type: types.NewSimpleType("System", "String", nil)})
	humanName.AddElement(types.ElementInfo{Name: "given", Type: types.NewSimpleType("System", "String", nil)})

	patient := types.NewClassInfo("FHIR", "Patient", nil)
	patient.AddElement(types.ElementInfo{Name: "active", Type: types.NewSimpleType("System", "Boolean", nil)})
	patient.AddElement(types.ElementInfo{Name: "name", Type: humanName})
	patient.AddElement(types.ElementInfo{Name: "birthDate", Type: types.NewSimpleType("System", "Date", nil)})

	return &fakeProvider{types: map[string]types.TypeReflectionInfo{
		"Patient":   patient,
		"HumanName": humanName,
	}}
}

func (p *fakeProvider) GetType(_ context.Context, name string) (types.TypeReflectionInfo, bool, error) {
	info, ok := p.types[name]
	return info, ok, nil
}

func (p *fakeProvider) IsChoiceProperty(_ context.Context, resourceType, baseName string) (bool, error) {
	return resourceType == "Patient" && baseName == "value", nil
}

func (p *fakeProvider) ResolveChoiceProperty(_ context.Context, _, _ string, _ []byte) (string, bool, error) {
	return "", false, nil
}

func (p *fakeProvider) GetChoiceVariants(_ context.Context, _, _ string) ([]types.ElementInfo, error) {
	return nil, nil
}

func (p *fakeProvider) IsSubtype(_ context.Context, child, parent string) (bool, error) {
	return child == parent, nil
}

func analyze(t *testing.T, expr string, provider *fakeProvider) *analyzer.Result {
	t.Helper()
	compiled, err := parser.Parse(expr)
	require.NoError(t, err, "parse %q", expr)
	result, err := analyzer.Analyze(context.Background(), compiled, provider)
	require.NoError(t, err)
	return result
}

func TestAnalyzeKnownPathHasNoDiagnostics(t *testing.T) {
	result := analyze(t, "Patient.name.family", newFakeProvider())
	assert.Empty(t, result.Diagnostics)
	assert.False(t, result.HasErrors())
}

func TestAnalyzeUnknownPropertySuggestsClosestMatch(t *testing.T) {
	result := analyze(t, "Patient.name.familly", newFakeProvider())
	require.Len(t, result.Diagnostics, 1)
	d := result.Diagnostics[0]
	assert.Equal(t, types.ErrUnknownProperty, d.Code)
	assert.Equal(t, "family", d.Suggestion)
}

func TestAnalyzeChoicePropertyIsPermitted(t *testing.T) {
	result := analyze(t, "Patient.value", newFakeProvider())
	assert.Empty(t, result.Diagnostics)
}

func TestAnalyzeUnknownFunctionReportsDiagnostic(t *testing.T) {
	result := analyze(t, "Patient.name.notAFunction()", newFakeProvider())
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, types.ErrUnknownFunction, result.Diagnostics[0].Code)
}

func TestAnalyzeArityMismatchReportsDiagnostic(t *testing.T) {
	result := analyze(t, "Patient.name.substring(1, 2, 3)", newFakeProvider())
	require.NotEmpty(t, result.Diagnostics)
	found := false
	for _, d := range result.Diagnostics {
		if d.Code == types.ErrArityMismatch {
			found = true
		}
	}
	assert.True(t, found, "expected an arity-mismatch diagnostic, got %+v", result.Diagnostics)
}

func TestAnalyzeOperatorTypeMismatchReportsDiagnostic(t *testing.T) {
	result := analyze(t, "Patient.active + 1", newFakeProvider())
	require.NotEmpty(t, result.Diagnostics)
	assert.Equal(t, types.ErrOperatorType, result.Diagnostics[0].Code)
}

func TestAnalyzeWithNilProviderDegradesPermissively(t *testing.T) {
	compiled, err := parser.Parse("Patient.whatever.totallyUnknownField")
	require.NoError(t, err)
	result, err := analyzer.Analyze(context.Background(), compiled, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Diagnostics)
}

func TestAnalyzeInvalidExpressionReturnsError(t *testing.T) {
	_, err := analyzer.Analyze(context.Background(), nil, nil)
	assert.Error(t, err)
}
