package evaluator

import "github.com/fhirpath-go/fhirpath/pkg/types"

// datePrecision/dateTimePrecision/timePrecision infer a temporal literal's
// Precision from how much of its ISO 8601-derived lexeme was actually
// written (spec §3/§6.3) — `@2015` is year precision, `@2015-02-07` is day
// precision, and so on. The lexeme here never carries a leading '@'/'T'
// sigil (the lexer strips it before handing the token to the parser).
func datePrecision(lexeme string) types.Precision {
	switch {
	case len(lexeme) >= 10:
		return types.PrecisionDay
	case len(lexeme) >= 7:
		return types.PrecisionMonth
	default:
		return types.PrecisionYear
	}
}

func dateTimePrecision(lexeme string) types.Precision {
	idx := -1
	for i, r := range lexeme {
		if r == 'T' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return datePrecision(lexeme)
	}
	timePart := lexeme[idx+1:]
	return timePrecisionFromClock(timePart)
}

func timePrecision(lexeme string) types.Precision {
	return timePrecisionFromClock(lexeme)
}

func timePrecisionFromClock(clock string) types.Precision {
	// Strip a trailing timezone offset/Z before counting clock components.
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
	case containsRune(clock, '.'):
		return types.PrecisionMillisecond
	case countRune(clock, ':') >= 2:
		return types.PrecisionSecond
	case countRune(clock, ':') == 1:
		return types.PrecisionMinute
	default:
		return types.PrecisionHour
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func countRune(s string, r rune) int {
	n := 0
	for _, c := range s {
		if c == r {
			n++
		}
	}
	return n
}
