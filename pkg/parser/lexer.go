package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

const eof = -1

// Lexer converts a FHIRPath expression into a sequence of tokens, in the
// same single-pass, rune-scanning style as a hand-written JSON/JSONata
// lexer: track start/current offsets into the source, advance one rune at
// a time, and carve off a Token whenever a lexical rule completes.
type Lexer struct {
	input   string
	length  int
	start   int
	current int
	width   int

	line       int
	column     int
	startLine  int
	startCol   int

	err *types.ParseError
}

func NewLexer(input string) *Lexer {
	return &Lexer{
		input:     input,
		length:    len(input),
		line:      1,
		column:    1,
		startLine: 1,
		startCol:  1,
	}
}

func (l *Lexer) Error() *types.ParseError { return l.err }

// Next returns the next token, skipping whitespace and line comments
// (`//`) and block comments (`/* */`), both of which FHIRPath permits.
func (l *Lexer) Next() Token {
	l.skipTrivia()
	if l.err != nil {
		return l.errorToken(types.ErrUnterminatedLit, l.err.Message)
	}

	l.startLine, l.startCol = l.line, l.column
	ch := l.nextRune()
	if ch == eof {
		return l.eofToken()
	}

	switch {
	case ch == '\'':
		return l.scanString('\'')
	case ch == '`':
		return l.scanDelimitedIdent()
	case ch == '"':
		return l.scanDelimitedIdent2()
	case ch == '@':
		return l.scanDateTime()
	case ch == '$':
		return l.scanVariable()
	case ch == '%':
		return l.scanExternal()
	case ch >= '0' && ch <= '9':
		l.backup()
		return l.scanNumber()
	case isIdentStart(ch):
		l.backup()
		return l.scanIdentifier()
	}

	if rts := lookupSymbol2(ch); rts != nil {
		for _, rt := range rts {
			if l.acceptRune(rt.r) {
				return l.newToken(rt.tt)
			}
		}
	}
	if tt, ok := lookupSymbol1(ch); ok {
		return l.newToken(tt)
	}

	return l.errorToken(types.ErrInvalidEscape, "unrecognized character")
}

func (l *Lexer) scanString(quote rune) Token {
	var b strings.Builder
	for {
		ch := l.nextRune()
		switch ch {
		case quote:
			t := l.newToken(TokenString)
			t.Value = b.String()
			return t
		case eof, '\n':
			return l.errorToken(types.ErrUnterminatedString, "unterminated string literal")
		case '\\':
			r, ok := l.scanEscape()
			if !ok {
				return l.errorToken(types.ErrInvalidEscape, "invalid escape sequence")
			}
			b.WriteRune(r)
		default:
			b.WriteRune(ch)
		}
	}
}

func (l *Lexer) scanEscape() (rune, bool) {
	ch := l.nextRune()
	switch ch {
	case '\'', '"', '`', '\\', '/':
		return ch, true
	case 'r':
		return '\r', true
	case 'n':
		return '\n', true
	case 't':
		return '\t', true
	case 'f':
		return '\f', true
	case 'u':
		var cp rune
		for i := 0; i < 4; i++ {
			d := l.nextRune()
			v, ok := hexVal(d)
			if !ok {
				return 0, false
			}
			cp = cp*16 + rune(v)
		}
		return cp, true
	default:
		return 0, false
	}
}

func hexVal(r rune) (int, bool) {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0'), true
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10, true
	case r >= 'A' && r <= 'F':
		return int(r-'A') + 10, true
	default:
		return 0, false
	}
}

// scanDelimitedIdent reads a `backtick-delimited` identifier, used both as
// a plain path segment escape and, after '%', as an external-constant name.
func (l *Lexer) scanDelimitedIdent() Token {
	var b strings.Builder
	for {
		ch := l.nextRune()
		switch ch {
		case '`':
			t := l.newToken(TokenIdentEsc)
			t.Value = b.String()
			return t
		case eof, '\n':
			return l.errorToken(types.ErrUnterminatedLit, "unterminated delimited identifier")
		default:
			b.WriteRune(ch)
		}
	}
}

// scanDelimitedIdent2 supports double-quoted identifiers, which some FHIR
// tooling emits interchangeably with backticks for escaped path segments.
func (l *Lexer) scanDelimitedIdent2() Token {
	var b strings.Builder
	for {
		ch := l.nextRune()
		switch ch {
		case '"':
			t := l.newToken(TokenIdentEsc)
			t.Value = b.String()
			return t
		case eof, '\n':
			return l.errorToken(types.ErrUnterminatedLit, "unterminated delimited identifier")
		case '\\':
			r, ok := l.scanEscape()
			if !ok {
				return l.errorToken(types.ErrInvalidEscape, "invalid escape sequence")
			}
			b.WriteRune(r)
		default:
			b.WriteRune(ch)
		}
	}
}

// scanNumber reads an integer or decimal literal: [0-9]+('.'[0-9]+)?. No
// exponent form and no leading sign — FHIRPath gives unary +/- to the
// parser, not the lexer.
func (l *Lexer) scanNumber() Token {
	l.acceptAll(isDigit)
	if l.peekRune() == '.' {
		save := l.current
		l.nextRune()
		if isDigit(l.peekRune()) {
			l.acceptAll(isDigit)
		} else {
			l.current = save
		}
	}
	return l.newToken(TokenNumber)
}

// scanDateTime reads a date/time/datetime literal starting after the
// consumed '@'. Forms (spec §4.1, ISO 8601-derived):
//
//	@2015-02-07                 Date (full)
//	@2015-02                    Date (partial, month precision)
//	@2015                       Date (partial, year precision)
//	@2015-02-07T13:28:17-05:00  DateTime
//	@T13:28:17                  Time
func (l *Lexer) scanDateTime() Token {
	if l.peekRune() == 'T' {
		l.nextRune()
		l.acceptAll(isDateTimeLiteralRune)
		t := l.newToken(TokenTime)
		t.Value = t.Value[2:] // drop leading "@T"
		return t
	}
	l.acceptAll(isDateTimeLiteralRune)
	hasTime := strings.Contains(l.input[l.start:l.current], "T")
	tt := TokenDate
	if hasTime {
		tt = TokenDateTime
	}
	t := l.newToken(tt)
	t.Value = t.Value[1:] // drop leading '@'
	return t
}

func isDateTimeLiteralRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == ':' || r == '.' || r == '+' || r == 'T' || r == 'Z':
		return true
	default:
		return false
	}
}

// scanVariable reads $this, $index, $total, or any other $-prefixed name
// (reserved for future special variables per spec §4.1).
func (l *Lexer) scanVariable() Token {
	l.acceptAll(isIdentPart)
	t := l.newToken(TokenVariable)
	t.Value = l.input[t.Start+1 : t.End] // drop leading '$'
	return t
}

// scanExternal reads a %-prefixed external constant: %resource, %context,
// %'quoted name', or %`escaped name`.
func (l *Lexer) scanExternal() Token {
	switch l.peekRune() {
	case '\'':
		l.nextRune()
		inner := l.scanString('\'')
		t := l.newToken(TokenExternal)
		t.Value = inner.Value
		return t
	case '`':
		l.nextRune()
		inner := l.scanDelimitedIdent()
		t := l.newToken(TokenExternal)
		t.Value = inner.Value
		return t
	default:
		l.acceptAll(isIdentPart)
		t := l.newToken(TokenExternal)
		t.Value = l.input[t.Start+1 : t.End]
		return t
	}
}

func (l *Lexer) scanIdentifier() Token {
	l.acceptAll(isIdentPart)
	t := l.newToken(TokenIdent)
	if tt, ok := lookupKeyword(t.Value); ok {
		t.Type = tt
	}
	return t
}

func (l *Lexer) skipTrivia() {
	for {
		l.acceptAll(isWhitespace)
		if l.peekRune() == '/' {
			save, saveLine, saveCol := l.current, l.line, l.column
			l.nextRune()
			switch l.peekRune() {
			case '/':
				for {
					ch := l.nextRune()
					if ch == eof || ch == '\n' {
						break
					}
				}
				l.ignore()
				continue
			case '*':
				l.nextRune()
				for {
					ch := l.nextRune()
					if ch == eof {
						l.err = &types.ParseError{
							Span:    types.Span{Start: save, End: l.current, Line: saveLine, Column: saveCol},
							Code:    types.ErrUnterminatedLit,
							Message: "unterminated block comment",
						}
						return
					}
					if ch == '*' && l.peekRune() == '/' {
						l.nextRune()
						break
					}
				}
				l.ignore()
				continue
			default:
				l.current, l.line, l.column = save, saveLine, saveCol
			}
		}
		break
	}
	l.ignore()
}

func (l *Lexer) eofToken() Token {
	return Token{Type: TokenEOF, Start: l.current, End: l.current, Line: l.line, Column: l.column}
}

func (l *Lexer) errorToken(code types.ErrorCode, message string) Token {
	t := l.newToken(TokenError)
	l.err = &types.ParseError{
		Span:    types.Span{Start: t.Start, End: t.End, Line: t.Line, Column: t.Column},
		Code:    code,
		Message: message,
		Token:   t.Value,
	}
	return t
}

func (l *Lexer) newToken(tt TokenType) Token {
	t := Token{
		Type:   tt,
		Value:  l.input[l.start:l.current],
		Start:  l.start,
		End:    l.current,
		Line:   l.startLine,
		Column: l.startCol,
	}
	l.width = 0
	l.start = l.current
	l.startLine, l.startCol = l.line, l.column
	return t
}

func (l *Lexer) ignore() {
	l.start = l.current
	l.startLine, l.startCol = l.line, l.column
}

func (l *Lexer) nextRune() rune {
	if l.current >= l.length {
		l.width = 0
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.input[l.current:])
	l.width = w
	l.current += w
	if r == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return r
}

func (l *Lexer) peekRune() rune {
	if l.current >= l.length {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.current:])
	return r
}

func (l *Lexer) backup() {
	l.current -= l.width
	if l.column > 1 {
		l.column--
	}
}

func (l *Lexer) acceptRune(r rune) bool {
	if l.peekRune() == r {
		l.nextRune()
		return true
	}
	return false
}

func (l *Lexer) acceptAll(isValid func(rune) bool) bool {
	matched := false
	for isValid(l.peekRune()) {
		l.nextRune()
		matched = true
	}
	return matched
}

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v':
		return true
	default:
		return false
	}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || isDigit(r)
}
