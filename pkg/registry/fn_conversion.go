package registry

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/spf13/cast"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// registerConversionFns wires FHIRPath's toX()/convertsToX() family onto
// spf13/cast's permissive scalar coercions (spec §4.6's lenient conversion
// rules match cast's "best effort, never panics" contract closely enough
// that only the boolean-string and quantity special cases need bespoke
// handling here).
func registerConversionFns(r *Registry) {
	r.register(&Operation{Name: "toInteger", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnToInteger})
	r.register(&Operation{Name: "toDecimal", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnToDecimal})
	r.register(&Operation{Name: "toString", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnToString})
	r.register(&Operation{Name: "toBoolean", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnToBoolean})
	r.register(&Operation{Name: "toQuantity", MinArgs: 0, MaxArgs: 1, Pure: true, Fn: fnToQuantity})
	r.register(&Operation{Name: "toDate", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnToDate})
	r.register(&Operation{Name: "toDateTime", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnToDateTime})
	r.register(&Operation{Name: "toTime", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnToTime})

	r.register(&Operation{Name: "convertsToInteger", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: convertsTo(fnToInteger)})
	r.register(&Operation{Name: "convertsToDecimal", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: convertsTo(fnToDecimal)})
	r.register(&Operation{Name: "convertsToString", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: convertsTo(fnToString)})
	r.register(&Operation{Name: "convertsToBoolean", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: convertsTo(fnToBoolean)})
	r.register(&Operation{Name: "convertsToQuantity", MinArgs: 0, MaxArgs: 1, Pure: true, Fn: convertsTo(fnToQuantity)})
	r.register(&Operation{Name: "convertsToDate", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: convertsTo(fnToDate)})
	r.register(&Operation{Name: "convertsToDateTime", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: convertsTo(fnToDateTime)})
	r.register(&Operation{Name: "convertsToTime", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: convertsTo(fnToTime)})
}

// convertsTo adapts a toX implementation into its convertsToX sibling: the
// conversion succeeds iff toX would have returned a non-Empty result for
// the same input, without surfacing the converted value itself.
func convertsTo(toX Impl) Impl {
	return func(ec EvalContext, args []types.Value) (types.Value, error) {
		v, err := toX(ec, args)
		if err != nil {
			return types.NewBoolean(false), nil
		}
		return types.NewBoolean(!v.IsEmptyLike()), nil
	}
}

func fnToInteger(ec EvalContext, args []types.Value) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok {
		return types.Empty, nil
	}
	switch v.Kind() {
	case types.KindInteger:
		return v, nil
	case types.KindBoolean:
		if v.Bool() {
			return types.NewInteger(1), nil
		}
		return types.NewInteger(0), nil
	case types.KindString:
		i, err := cast.ToInt64E(v.Str())
		if err != nil {
			return types.Empty, nil
		}
		return types.NewInteger(i), nil
	default:
		return types.Empty, nil
	}
}

func fnToDecimal(ec EvalContext, args []types.Value) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok {
		return types.Empty, nil
	}
	switch v.Kind() {
	case types.KindDecimal:
		return v, nil
	case types.KindInteger:
		return types.NewDecimal(*apd.New(v.Int(), 0)), nil
	case types.KindBoolean:
		if v.Bool() {
			return types.NewDecimal(*apd.New(1, 0)), nil
		}
		return types.NewDecimal(*apd.New(0, 0)), nil
	case types.KindString:
		f, err := cast.ToFloat64E(v.Str())
		if err != nil {
			return types.Empty, nil
		}
		d, _, err := apd.NewFromString(cast.ToString(f))
		if err != nil {
			return types.Empty, nil
		}
		return types.NewDecimal(*d), nil
	default:
		return types.Empty, nil
	}
}

func fnToString(ec EvalContext, args []types.Value) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok {
		return types.Empty, nil
	}
	if v.Kind() == types.KindResource {
		return types.Empty, nil
	}
	return types.NewString(v.String()), nil
}

func fnToBoolean(ec EvalContext, args []types.Value) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok {
		return types.Empty, nil
	}
	switch v.Kind() {
	case types.KindBoolean:
		return v, nil
	case types.KindInteger:
		switch v.Int() {
		case 1:
			return types.NewBoolean(true), nil
		case 0:
			return types.NewBoolean(false), nil
		default:
			return types.Empty, nil
		}
	case types.KindString:
		switch v.Str() {
		case "true", "t", "yes", "y", "1", "1.0":
			return types.NewBoolean(true), nil
		case "false", "f", "no", "n", "0", "0.0":
			return types.NewBoolean(false), nil
		default:
			return types.Empty, nil
		}
	default:
		return types.Empty, nil
	}
}

func fnToQuantity(ec EvalContext, args []types.Value) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok {
		return types.Empty, nil
	}
	switch v.Kind() {
	case types.KindQuantity:
		return v, nil
	case types.KindInteger:
		return types.NewQuantity(*apd.New(v.Int(), 0), "1", nil), nil
	case types.KindDecimal:
		return types.NewQuantity(v.Decimal(), "1", nil), nil
	case types.KindString:
		d, _, err := apd.NewFromString(v.Str())
		if err != nil {
			return types.Empty, nil
		}
		return types.NewQuantity(*d, "1", nil), nil
	default:
		return types.Empty, nil
	}
}

// fnToDate, fnToDateTime, and fnToTime round out the toX() family with the
// three temporal conversions (spec §4.6): a same-Kind value passes through
// unchanged, a wider temporal narrows to its date/time portion, and a string
// is accepted only if it has the right shape for the target Kind — anything
// else degrades to Empty rather than erroring, matching the rest of this
// file's cast-based leniency.
func fnToDate(ec EvalContext, args []types.Value) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok {
		return types.Empty, nil
	}
	switch v.Kind() {
	case types.KindDate:
		return v, nil
	case types.KindDateTime:
		datePart := temporalDatePart(v.Str())
		return types.NewDate(datePart, temporalDatePrecision(datePart)), nil
	case types.KindString:
		if !looksLikeDateLexeme(v.Str()) {
			return types.Empty, nil
		}
		return types.NewDate(v.Str(), temporalDatePrecision(v.Str())), nil
	default:
		return types.Empty, nil
	}
}

func fnToDateTime(ec EvalContext, args []types.Value) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok {
		return types.Empty, nil
	}
	switch v.Kind() {
	case types.KindDateTime:
		return v, nil
	case types.KindDate:
		return types.NewDateTime(v.Str(), v.Precision()), nil
	case types.KindString:
		if !looksLikeDateTimeLexeme(v.Str()) {
			return types.Empty, nil
		}
		return types.NewDateTime(v.Str(), temporalDateTimePrecision(v.Str())), nil
	default:
		return types.Empty, nil
	}
}

func fnToTime(ec EvalContext, args []types.Value) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok {
		return types.Empty, nil
	}
	switch v.Kind() {
	case types.KindTime:
		return v, nil
	case types.KindString:
		if !looksLikeTimeLexeme(v.Str()) {
			return types.Empty, nil
		}
		return types.NewTime(v.Str(), temporalTimePrecision(v.Str())), nil
	default:
		return types.Empty, nil
	}
}

// temporalDatePart/temporalDatePrecision/temporalDateTimePrecision/
// temporalTimePrecision mirror pkg/evaluator's literal-precision inference
// (how much of an ISO 8601-derived lexeme was actually written) for the
// strings toDate/toDateTime/toTime accept; duplicated narrowly here since
// pkg/evaluator already depends on this package and the reverse import
// would cycle.
func temporalDatePart(lexeme string) string {
	if i := strings.IndexByte(lexeme, 'T'); i >= 0 {
		return lexeme[:i]
	}
	return lexeme
}

func temporalDatePrecision(lexeme string) types.Precision {
	switch {
	case len(lexeme) >= 10:
		return types.PrecisionDay
	case len(lexeme) >= 7:
		return types.PrecisionMonth
	default:
		return types.PrecisionYear
	}
}

func temporalDateTimePrecision(lexeme string) types.Precision {
	idx := strings.IndexByte(lexeme, 'T')
	if idx < 0 {
		return temporalDatePrecision(lexeme)
	}
	return temporalTimePrecision(lexeme[idx+1:])
}

func temporalTimePrecision(clock string) types.Precision {
	end := len(clock)
	for i, r := range clock {
		if r == '+' || r == 'Z' || (r == '-' && i > 0) {
			end = i
			break
		}
	}
	clock = clock[:end]
	switch {
	case len(clock) == 0:
		return types.PrecisionHour
	case strings.Contains(clock, "."):
		return types.PrecisionMillisecond
	case strings.Count(clock, ":") >= 2:
		return types.PrecisionSecond
	case strings.Count(clock, ":") == 1:
		return types.PrecisionMinute
	default:
		return types.PrecisionHour
	}
}

// looksLikeDateLexeme/looksLikeDateTimeLexeme/looksLikeTimeLexeme are
// best-effort shape checks, not full ISO 8601 validation: good enough to
// keep toDate("hello") from producing a garbage Date rather than Empty,
// without duplicating the lexer's full grammar.
func looksLikeDateLexeme(s string) bool {
	parts := strings.SplitN(s, "-", 3)
	if len(parts[0]) != 4 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return false
		}
	}
	return true
}

func looksLikeDateTimeLexeme(s string) bool {
	return looksLikeDateLexeme(temporalDatePart(s))
}

func looksLikeTimeLexeme(s string) bool {
	if s == "" {
		return false
	}
	clock := s
	for i, r := range s {
		if r == '+' || r == 'Z' || (r == '-' && i > 0) {
			clock = s[:i]
			break
		}
	}
	hour := clock
	if i := strings.IndexByte(clock, ':'); i >= 0 {
		hour = clock[:i]
	}
	_, err := strconv.Atoi(hour)
	return err == nil
}
