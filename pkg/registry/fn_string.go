package registry

import (
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

func registerStringFns(r *Registry) {
	r.register(&Operation{Name: "length", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnLength})
	r.register(&Operation{Name: "upper", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: wrapStringFn(strings.ToUpper)})
	r.register(&Operation{Name: "lower", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: wrapStringFn(strings.ToLower)})
	r.register(&Operation{Name: "trim", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: wrapStringFn(strings.TrimSpace)})
	r.register(&Operation{Name: "substring", MinArgs: 1, MaxArgs: 2, Pure: true, Fn: fnSubstring})
	r.register(&Operation{Name: "startsWith", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnStartsWith})
	r.register(&Operation{Name: "endsWith", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnEndsWith})
	r.register(&Operation{Name: "contains", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnStringContains})
	r.register(&Operation{Name: "indexOf", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnIndexOf})
	r.register(&Operation{Name: "lastIndexOf", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnLastIndexOf})
	r.register(&Operation{Name: "replace", MinArgs: 2, MaxArgs: 2, Pure: true, Fn: fnReplace})
	r.register(&Operation{Name: "matches", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnMatches})
	r.register(&Operation{Name: "replaceMatches", MinArgs: 2, MaxArgs: 2, Pure: true, Fn: fnReplaceMatches})
	r.register(&Operation{Name: "split", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnSplit})
	r.register(&Operation{Name: "join", MinArgs: 0, MaxArgs: 1, Pure: true, Fn: fnJoin})
	r.register(&Operation{Name: "toChars", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnToChars})
}

func stringInput(ec EvalContext) (string, bool) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok || v.Kind() != types.KindString {
		return "", false
	}
	return v.Str(), true
}

func wrapStringFn(f func(string) string) Impl {
	return func(ec EvalContext, args []types.Value) (types.Value, error) {
		s, ok := stringInput(ec)
		if !ok {
			return types.Empty, nil
		}
		return types.NewString(f(s)), nil
	}
}

func fnLength(ec EvalContext, args []types.Value) (types.Value, error) {
	s, ok := stringInput(ec)
	if !ok {
		return types.Empty, nil
	}
	return types.NewInteger(int64(len([]rune(s)))), nil
}

func fnSubstring(ec EvalContext, args []types.Value) (types.Value, error) {
	s, ok := stringInput(ec)
	if !ok {
		return types.Empty, nil
	}
	runes := []rune(s)
	start := int(args[0].Int())
	if start < 0 || start >= len(runes) {
		return types.Empty, nil
	}
	end := len(runes)
	if len(args) == 2 {
		length := int(args[1].Int())
		if start+length < end {
			end = start + length
		}
	}
	return types.NewString(string(runes[start:end])), nil
}

func fnStartsWith(ec EvalContext, args []types.Value) (types.Value, error) {
	s, ok := stringInput(ec)
	if !ok {
		return types.Empty, nil
	}
	return types.NewBoolean(strings.HasPrefix(s, args[0].Str())), nil
}

func fnEndsWith(ec EvalContext, args []types.Value) (types.Value, error) {
	s, ok := stringInput(ec)
	if !ok {
		return types.Empty, nil
	}
	return types.NewBoolean(strings.HasSuffix(s, args[0].Str())), nil
}

func fnStringContains(ec EvalContext, args []types.Value) (types.Value, error) {
	s, ok := stringInput(ec)
	if !ok {
		return types.Empty, nil
	}
	return types.NewBoolean(strings.Contains(s, args[0].Str())), nil
}

func fnIndexOf(ec EvalContext, args []types.Value) (types.Value, error) {
	s, ok := stringInput(ec)
	if !ok {
		return types.Empty, nil
	}
	return types.NewInteger(int64(strings.Index(s, args[0].Str()))), nil
}

func fnLastIndexOf(ec EvalContext, args []types.Value) (types.Value, error) {
	s, ok := stringInput(ec)
	if !ok {
		return types.Empty, nil
	}
	return types.NewInteger(int64(strings.LastIndex(s, args[0].Str()))), nil
}

func fnReplace(ec EvalContext, args []types.Value) (types.Value, error) {
	s, ok := stringInput(ec)
	if !ok {
		return types.Empty, nil
	}
	return types.NewString(strings.ReplaceAll(s, args[0].Str(), args[1].Str())), nil
}

// fnMatches/fnReplaceMatches use regexp2 rather than stdlib regexp: FHIRPath
// specifies .NET-flavored regular expressions (lookaround, backreferences)
// that Go's RE2 engine cannot execute.
func fnMatches(ec EvalContext, args []types.Value) (types.Value, error) {
	s, ok := stringInput(ec)
	if !ok {
		return types.Empty, nil
	}
	re, err := regexp2.Compile(args[0].Str(), regexp2.None)
	if err != nil {
		return types.Empty, types.NewEvaluationError(types.KindInvalidRegex, err.Error())
	}
	m, err := re.MatchString(s)
	if err != nil {
		return types.Empty, types.NewEvaluationError(types.KindInvalidRegex, err.Error())
	}
	return types.NewBoolean(m), nil
}

func fnReplaceMatches(ec EvalContext, args []types.Value) (types.Value, error) {
	s, ok := stringInput(ec)
	if !ok {
		return types.Empty, nil
	}
	re, err := regexp2.Compile(args[0].Str(), regexp2.None)
	if err != nil {
		return types.Empty, types.NewEvaluationError(types.KindInvalidRegex, err.Error())
	}
	out, err := re.Replace(s, dotNetToGoReplacement(args[1].Str()), -1, -1)
	if err != nil {
		return types.Empty, types.NewEvaluationError(types.KindInvalidRegex, err.Error())
	}
	return types.NewString(out), nil
}

// dotNetToGoReplacement rewrites .NET-style `$1` group references into the
// form regexp2.Replace expects (it already accepts `$1`, so this is a
// narrow identity hook kept for the one divergent case: a literal `$$`
// escape, which both dialects happen to agree on).
func dotNetToGoReplacement(repl string) string { return repl }

func fnSplit(ec EvalContext, args []types.Value) (types.Value, error) {
	s, ok := stringInput(ec)
	if !ok {
		return types.Empty, nil
	}
	parts := strings.Split(s, args[0].Str())
	out := make([]types.Value, len(parts))
	for i, p := range parts {
		out[i] = types.NewString(p)
	}
	return types.NewCollection(out...), nil
}

func fnJoin(ec EvalContext, args []types.Value) (types.Value, error) {
	sep := ""
	if len(args) == 1 {
		sep = args[0].Str()
	}
	els := ec.CurrentInput().Elements()
	parts := make([]string, len(els))
	for i, v := range els {
		parts[i] = v.String()
	}
	return types.NewString(strings.Join(parts, sep)), nil
}

func fnToChars(ec EvalContext, args []types.Value) (types.Value, error) {
	s, ok := stringInput(ec)
	if !ok {
		return types.Empty, nil
	}
	runes := []rune(s)
	out := make([]types.Value, len(runes))
	for i, r := range runes {
		out[i] = types.NewString(string(r))
	}
	return types.NewCollection(out...), nil
}
