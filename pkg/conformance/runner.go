package conformance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fhirpath-go/fhirpath"
	"github.com/fhirpath-go/fhirpath/pkg/evaluator"
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// EvaluateTestCase parses and evaluates a test case's expression against
// resourceJSON (the raw bytes resolved via GetData), returning a TestResult
// comparable against the case's expected Result/Error.
func EvaluateTestCase(ctx context.Context, testCase *TestCase, resourceJSON []byte) (*TestResult, error) {
	start := time.Now()

	if testCase.Timelimit != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*testCase.Timelimit)*time.Millisecond)
		defer cancel()
	}

	expr, err := fhirpath.Parse(testCase.Expr)
	if err != nil {
		return &TestResult{
			Passed:     false,
			Error:      err,
			Message:    fmt.Sprintf("parse error: %v", err),
			DurationMs: time.Since(start).Seconds() * 1000,
		}, nil
	}

	input := resourceValue(resourceJSON, testCase.ResourceType)

	var opts []evaluator.EvalOption
	result, err := fhirpath.Evaluate(ctx, expr, input, opts...)
	duration := time.Since(start)

	testResult := &TestResult{DurationMs: duration.Seconds() * 1000}
	if err != nil {
		testResult.Passed = false
		testResult.Error = err
		testResult.Message = err.Error()
		if evalErr, ok := err.(*types.EvaluationError); ok {
			testResult.ErrorCode = string(evalErr.Kind)
		}
		return testResult, nil
	}

	actual := valueToInterface(result)
	testResult.Actual = actual
	testResult.Expected = testCase.Result
	passed, msg := CompareResults(actual, testCase.Result, *testCase)
	testResult.Passed = passed
	if !passed {
		testResult.Message = msg
	}
	return testResult, nil
}

// resourceValue builds the types.Value a test case evaluates against: the
// Empty value when there is no data at all, otherwise a Resource wrapping
// raw, typed by resourceType or, when that is empty, by the JSON's own
// resourceType field. A bare scalar or array is wrapped as a Resource the
// same way; it is not translated to another Value kind.
func resourceValue(raw []byte, resourceType string) types.Value {
	if len(raw) == 0 {
		return types.Empty
	}
	rt := resourceType
	if rt == "" {
		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(raw, &probe); err == nil {
			rt = probe.ResourceType
		}
	}
	return types.NewResource(raw, rt)
}

// valueToInterface renders a types.Value as a plain Go interface{} (string/
// int64/float64/bool/[]interface{}/map[string]interface{}) for comparison
// against a suite's expected-result JSON. Decimals become float64 as
// json.Unmarshal would produce; Integers stay int64.
func valueToInterface(v types.Value) interface{} {
	if v.IsEmptyLike() {
		return nil
	}
	if v.Kind() == types.KindCollection {
		els := v.Elements()
		if len(els) == 1 {
			return valueToInterface(els[0])
		}
		out := make([]interface{}, len(els))
		for i, el := range els {
			out[i] = valueToInterface(el)
		}
		return out
	}
	switch v.Kind() {
	case types.KindBoolean:
		return v.Bool()
	case types.KindInteger:
		return v.Int()
	case types.KindDecimal:
		f, _ := v.Decimal().Float64()
		return f
	case types.KindString, types.KindDate, types.KindDateTime, types.KindTime:
		return v.Str()
	case types.KindQuantity:
		f, _ := v.Decimal().Float64()
		return map[string]interface{}{"value": f, "unit": v.Unit()}
	case types.KindResource:
		var decoded interface{}
		_ = json.Unmarshal(v.ResourceJSON(), &decoded)
		return decoded
	case types.KindTypeInfo:
		return v.Namespace() + "." + v.Name()
	default:
		return nil
	}
}
