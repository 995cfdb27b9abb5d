package registry

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

var numCtx = apd.BaseContext.WithPrecision(34)

func registerNumericFns(r *Registry) {
	r.register(&Operation{Name: "abs", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnAbs})
	r.register(&Operation{Name: "ceiling", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnCeiling})
	r.register(&Operation{Name: "floor", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnFloor})
	r.register(&Operation{Name: "round", MinArgs: 0, MaxArgs: 1, Pure: true, Fn: fnRound})
	r.register(&Operation{Name: "sqrt", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnSqrt})
	r.register(&Operation{Name: "truncate", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnTruncate})
	r.register(&Operation{Name: "exp", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnExp})
	r.register(&Operation{Name: "ln", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnLn})
	r.register(&Operation{Name: "log", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnLog})
	r.register(&Operation{Name: "power", MinArgs: 1, MaxArgs: 1, Pure: true, Fn: fnPower})
	r.register(&Operation{Name: "precision", MinArgs: 0, MaxArgs: 0, Pure: true, Fn: fnPrecision})
	r.register(&Operation{Name: "lowBoundary", MinArgs: 0, MaxArgs: 1, Pure: true, Fn: fnLowBoundary})
	r.register(&Operation{Name: "highBoundary", MinArgs: 0, MaxArgs: 1, Pure: true, Fn: fnHighBoundary})
}

func numericInput(ec EvalContext) (apd.Decimal, bool) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok {
		return apd.Decimal{}, false
	}
	switch v.Kind() {
	case types.KindInteger:
		return *apd.New(v.Int(), 0), true
	case types.KindDecimal:
		return v.Decimal(), true
	default:
		return apd.Decimal{}, false
	}
}

func fnAbs(ec EvalContext, args []types.Value) (types.Value, error) {
	d, ok := numericInput(ec)
	if !ok {
		return types.Empty, nil
	}
	var out apd.Decimal
	out.Abs(&d)
	return types.NewDecimal(out), nil
}

func fnCeiling(ec EvalContext, args []types.Value) (types.Value, error) {
	d, ok := numericInput(ec)
	if !ok {
		return types.Empty, nil
	}
	var out apd.Decimal
	if _, err := numCtx.Ceil(&out, &d); err != nil {
		return types.Empty, types.NewEvaluationError(types.KindOverflow, err.Error())
	}
	i, err := out.Int64()
	if err != nil {
		return types.Empty, types.NewEvaluationError(types.KindOverflow, err.Error())
	}
	return types.NewInteger(i), nil
}

func fnFloor(ec EvalContext, args []types.Value) (types.Value, error) {
	d, ok := numericInput(ec)
	if !ok {
		return types.Empty, nil
	}
	var out apd.Decimal
	if _, err := numCtx.Floor(&out, &d); err != nil {
		return types.Empty, types.NewEvaluationError(types.KindOverflow, err.Error())
	}
	i, err := out.Int64()
	if err != nil {
		return types.Empty, types.NewEvaluationError(types.KindOverflow, err.Error())
	}
	return types.NewInteger(i), nil
}

func fnRound(ec EvalContext, args []types.Value) (types.Value, error) {
	d, ok := numericInput(ec)
	if !ok {
		return types.Empty, nil
	}
	places := int32(0)
	if len(args) == 1 {
		places = int32(args[0].Int())
	}
	rctx := apd.BaseContext.WithPrecision(34)
	rctx.Rounding = apd.RoundHalfUp
	var scaled, out apd.Decimal
	_, _ = rctx.Mul(&scaled, &d, apd.New(1, places))
	_, _ = rctx.RoundToIntegralValue(&scaled, &scaled)
	_, _ = rctx.Quantize(&out, &scaled, -places)
	_, _ = rctx.Mul(&out, &scaled, apd.New(1, -places))
	return types.NewDecimal(out), nil
}

func fnSqrt(ec EvalContext, args []types.Value) (types.Value, error) {
	d, ok := numericInput(ec)
	if !ok {
		return types.Empty, nil
	}
	if d.Negative {
		return types.Empty, nil
	}
	var out apd.Decimal
	if _, err := numCtx.Sqrt(&out, &d); err != nil {
		return types.Empty, types.NewEvaluationError(types.KindOverflow, err.Error())
	}
	return types.NewDecimal(out), nil
}

func fnTruncate(ec EvalContext, args []types.Value) (types.Value, error) {
	d, ok := numericInput(ec)
	if !ok {
		return types.Empty, nil
	}
	var out apd.Decimal
	out.Reduce(&d)
	trunc := apd.BaseContext.WithPrecision(34)
	trunc.Rounding = apd.RoundDown
	if _, err := trunc.RoundToIntegralValue(&out, &d); err != nil {
		return types.Empty, types.NewEvaluationError(types.KindOverflow, err.Error())
	}
	i, err := out.Int64()
	if err != nil {
		return types.Empty, types.NewEvaluationError(types.KindOverflow, err.Error())
	}
	return types.NewInteger(i), nil
}

func fnExp(ec EvalContext, args []types.Value) (types.Value, error) {
	d, ok := numericInput(ec)
	if !ok {
		return types.Empty, nil
	}
	var out apd.Decimal
	if _, err := numCtx.Exp(&out, &d); err != nil {
		return types.Empty, types.NewEvaluationError(types.KindOverflow, err.Error())
	}
	return types.NewDecimal(out), nil
}

func fnLn(ec EvalContext, args []types.Value) (types.Value, error) {
	d, ok := numericInput(ec)
	if !ok {
		return types.Empty, nil
	}
	if d.Sign() <= 0 {
		return types.Empty, nil
	}
	var out apd.Decimal
	if _, err := numCtx.Ln(&out, &d); err != nil {
		return types.Empty, types.NewEvaluationError(types.KindOverflow, err.Error())
	}
	return types.NewDecimal(out), nil
}

func fnLog(ec EvalContext, args []types.Value) (types.Value, error) {
	d, ok := numericInput(ec)
	if !ok {
		return types.Empty, nil
	}
	if d.Sign() <= 0 {
		return types.Empty, nil
	}
	base := asDecimalArg(args[0])
	if base.Sign() <= 0 {
		return types.Empty, nil
	}
	var lnVal, lnBase, out apd.Decimal
	if _, err := numCtx.Ln(&lnVal, &d); err != nil {
		return types.Empty, types.NewEvaluationError(types.KindOverflow, err.Error())
	}
	if _, err := numCtx.Ln(&lnBase, &base); err != nil {
		return types.Empty, types.NewEvaluationError(types.KindOverflow, err.Error())
	}
	if _, err := numCtx.Quo(&out, &lnVal, &lnBase); err != nil {
		return types.Empty, types.NewEvaluationError(types.KindOverflow, err.Error())
	}
	return types.NewDecimal(out), nil
}

func fnPower(ec EvalContext, args []types.Value) (types.Value, error) {
	d, ok := numericInput(ec)
	if !ok {
		return types.Empty, nil
	}
	exp := asDecimalArg(args[0])
	var out apd.Decimal
	if _, err := numCtx.Pow(&out, &d, &exp); err != nil {
		return types.Empty, nil
	}
	return types.NewDecimal(out), nil
}

// fnPrecision reports the number of significant digits (Integer/Decimal) or
// the fixed digit-count a temporal's Precision implies (spec-supplemented:
// precision on temporals and decimals, per SPEC_FULL §7, grounded in
// original_source/crates/fhirpath-registry's precision/boundary family).
func fnPrecision(ec EvalContext, args []types.Value) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok {
		return types.Empty, nil
	}
	switch v.Kind() {
	case types.KindInteger:
		return types.NewInteger(int64(len(v.String()))), nil
	case types.KindDecimal:
		d := v.Decimal()
		return types.NewInteger(int64(len(d.Coeff.String()))), nil
	case types.KindQuantity:
		d := v.Decimal()
		return types.NewInteger(int64(len(d.Coeff.String()))), nil
	case types.KindDate, types.KindDateTime, types.KindTime:
		return types.NewInteger(int64(temporalPrecisionDigits(v.Precision()))), nil
	default:
		return types.Empty, nil
	}
}

// temporalPrecisionDigits maps a Precision to the digit count FHIRPath
// associates with it (year=4, up through millisecond=17), mirroring the R5
// spec's precision() table for Date/DateTime/Time.
func temporalPrecisionDigits(p types.Precision) int {
	switch p {
	case types.PrecisionYear:
		return 4
	case types.PrecisionMonth:
		return 6
	case types.PrecisionDay:
		return 8
	case types.PrecisionHour:
		return 10
	case types.PrecisionMinute:
		return 12
	case types.PrecisionSecond:
		return 14
	case types.PrecisionMillisecond:
		return 17
	default:
		return 0
	}
}

func asDecimalArg(v types.Value) apd.Decimal {
	if v.Kind() == types.KindInteger {
		return *apd.New(v.Int(), 0)
	}
	return v.Decimal()
}

// decimalScale returns the number of digits after the decimal point d was
// parsed with (apd keeps trailing zeros, so 1.50's scale is 2, not 1).
func decimalScale(d *apd.Decimal) int32 {
	if d.Exponent >= 0 {
		return 0
	}
	return -d.Exponent
}

// fnLowBoundary and fnHighBoundary implement the spec-supplemented
// lowBoundary([precision])/highBoundary([precision]) pair (SPEC_FULL §7):
// for a Decimal/Quantity, the value's last significant digit is treated as
// rounded to the nearest unit, so the boundary is the value +/- half that
// unit; for a Date/DateTime/Time, the boundary fills every field the
// literal's Precision left unspecified with its minimum (low) or maximum
// (high) possible value.
func fnLowBoundary(ec EvalContext, args []types.Value) (types.Value, error) {
	return boundary(ec, args, -1)
}

func fnHighBoundary(ec EvalContext, args []types.Value) (types.Value, error) {
	return boundary(ec, args, 1)
}

func boundary(ec EvalContext, args []types.Value, sign int64) (types.Value, error) {
	v, ok := ec.CurrentInput().Singleton()
	if !ok {
		return types.Empty, nil
	}
	switch v.Kind() {
	case types.KindInteger, types.KindDecimal:
		return decimalBoundary(asDecimalArg(v), args, sign, func(d apd.Decimal) types.Value {
			return types.NewDecimal(d)
		}), nil
	case types.KindQuantity:
		return decimalBoundary(v.Decimal(), args, sign, func(d apd.Decimal) types.Value {
			return types.NewQuantity(d, v.Unit(), v.UnitExpr())
		}), nil
	case types.KindDate:
		return types.NewDate(dateBoundaryLexeme(v.Str(), v.Precision(), sign), types.PrecisionDay), nil
	case types.KindDateTime:
		return types.NewDateTime(dateTimeBoundaryLexeme(v.Str(), v.Precision(), sign), types.PrecisionMillisecond), nil
	case types.KindTime:
		return types.NewTime(timeBoundaryLexeme(v.Str(), v.Precision(), sign), types.PrecisionMillisecond), nil
	default:
		return types.Empty, nil
	}
}

func decimalBoundary(d apd.Decimal, args []types.Value, sign int64, wrap func(apd.Decimal) types.Value) types.Value {
	scale := decimalScale(&d)
	if len(args) == 1 && args[0].Kind() == types.KindInteger {
		scale = int32(args[0].Int())
	}
	half := apd.New(5, -(scale + 1))
	var out apd.Decimal
	if sign < 0 {
		_, _ = numCtx.Sub(&out, &d, half)
	} else {
		_, _ = numCtx.Add(&out, &d, half)
	}
	return wrap(out)
}

// dateFields splits a "YYYY", "YYYY-MM" or "YYYY-MM-DD" lexeme into numeric
// components, defaulting any field the literal omitted to zero.
func dateFields(lexeme string) (year, month, day int) {
	parts := strings.SplitN(lexeme, "-", 3)
	if len(parts) > 0 {
		year, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		month, _ = strconv.Atoi(parts[1])
	}
	if len(parts) > 2 {
		day, _ = strconv.Atoi(parts[2])
	}
	return
}

func lastDayOfMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateBoundaryLexeme(lexeme string, p types.Precision, sign int64) string {
	year, month, day := dateFields(lexeme)
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	if sign < 0 {
		if p < types.PrecisionMonth {
			month = 1
		}
		if p < types.PrecisionDay {
			day = 1
		}
	} else {
		if p < types.PrecisionMonth {
			month = 12
		}
		if p < types.PrecisionDay {
			day = lastDayOfMonth(year, month)
		}
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// splitTimezone separates a trailing "Z" or "+hh:mm"/"-hh:mm" UTC offset
// from a DateTime's time-of-day portion, so boundary filling never mangles
// the offset while padding hour/minute/second/millisecond fields.
func splitTimezone(s string) (body, tz string) {
	if strings.HasSuffix(s, "Z") {
		return s[:len(s)-1], "Z"
	}
	if i := strings.LastIndexAny(s, "+-"); i > 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func dateTimeBoundaryLexeme(lexeme string, p types.Precision, sign int64) string {
	datePart := lexeme
	timePart := ""
	tz := ""
	if idx := strings.Index(lexeme, "T"); idx >= 0 {
		datePart = lexeme[:idx]
		timePart, tz = splitTimezone(lexeme[idx+1:])
	}
	datePrecision := p
	if datePrecision > types.PrecisionDay {
		datePrecision = types.PrecisionDay
	}
	boundedDate := dateBoundaryLexeme(datePart, datePrecision, sign)
	if p < types.PrecisionHour {
		if sign < 0 {
			return boundedDate + "T00:00:00.000" + tz
		}
		return boundedDate + "T23:59:59.999" + tz
	}
	return boundedDate + "T" + timeBoundaryFields(timePart, p, sign) + tz
}

func timeBoundaryLexeme(lexeme string, p types.Precision, sign int64) string {
	body, tz := splitTimezone(lexeme)
	return timeBoundaryFields(body, p, sign) + tz
}

// timeBoundaryFields pads an "HH", "HH:MM", "HH:MM:SS" or "HH:MM:SS.sss"
// time-of-day string out to millisecond precision, filling every field
// beyond p with its minimum (low) or maximum (high) value.
func timeBoundaryFields(body string, p types.Precision, sign int64) string {
	hour, minute, second, ms := 0, 0, 0, 0
	secPart := body
	if dot := strings.Index(body, "."); dot >= 0 {
		secPart = body[:dot]
		msStr := body[dot+1:]
		for len(msStr) < 3 {
			msStr += "0"
		}
		ms, _ = strconv.Atoi(msStr[:3])
	}
	parts := strings.Split(secPart, ":")
	if len(parts) > 0 && parts[0] != "" {
		hour, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		minute, _ = strconv.Atoi(parts[1])
	}
	if len(parts) > 2 {
		second, _ = strconv.Atoi(parts[2])
	}
	if sign < 0 {
		if p < types.PrecisionMinute {
			minute = 0
		}
		if p < types.PrecisionSecond {
			second = 0
		}
		if p < types.PrecisionMillisecond {
			ms = 0
		}
	} else {
		if p < types.PrecisionMinute {
			minute = 59
		}
		if p < types.PrecisionSecond {
			second = 59
		}
		if p < types.PrecisionMillisecond {
			ms = 999
		}
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hour, minute, second, ms)
}
