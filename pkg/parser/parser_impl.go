package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// Parser implements a recursive-descent parser for FHIRPath expressions
// using Pratt's "Top Down Operator Precedence" algorithm: parseExpression
// pulls a prefix ("nud") term then repeatedly folds in infix ("led")
// operators whose precedence exceeds the caller's right-binding-power
// floor, exactly the shape a hand-written JSONata/expression parser uses.
type Parser struct {
	lexer   *Lexer
	current Token
	opts    ParseOptions
	arena   *types.NodeArena
	depth   int
}

func NewParser(source string, opts ...ParseOption) *Parser {
	options := ParseOptions{MaxDepth: DefaultMaxDepth}
	for _, o := range opts {
		o(&options)
	}
	if options.MaxDepth <= 0 {
		options.MaxDepth = DefaultMaxDepth
	}
	p := &Parser{
		lexer: NewLexer(source),
		opts:  options,
		arena: types.NewNodeArena(),
	}
	p.advance()
	return p
}

// Parse consumes the entire token stream and returns the compiled
// Expression, or the first ParseError hit.
func (p *Parser) Parse() (*types.Expression, error) {
	if p.current.Type == TokenError {
		return nil, p.lexer.Error()
	}
	if p.current.Type == TokenEOF {
		return nil, p.errorAt(p.current, types.ErrEmptyExpression, "empty expression")
	}

	node, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, p.errorAt(p.current, types.ErrUnexpectedToken,
			fmt.Sprintf("unexpected token %q", p.current.Value))
	}
	return types.NewExpression(node, p.lexer.input, p.arena), nil
}

// precedence is FHIRPath's operator binding-power table (spec §4.2), from
// loosest (implies) to tightest (postfix . and []), which are handled
// structurally rather than through this table.
var precedence = map[TokenType]int{
	TokenKwImplies: 20,
	TokenKwXor:     30,
	TokenKwOr:      30,
	TokenKwAnd:     40,
	TokenKwIn:      50,
	TokenKwContains: 50,
	TokenEqual:         60,
	TokenEquivalent:    60,
	TokenNotEqual:      60,
	TokenNotEquivalent: 60,
	TokenLess:          70,
	TokenLessEqual:     70,
	TokenGreater:       70,
	TokenGreaterEqual:  70,
	TokenUnion:  80,
	TokenKwIs:   85,
	TokenKwAs:   85,
	TokenPlus:   90,
	TokenMinus:  90,
	TokenConcat: 90,
	TokenMult:   100,
	TokenDiv:    100,
	TokenKwDiv:  100,
	TokenKwMod:  100,
}

func (p *Parser) getPrecedence(tt TokenType) int {
	return precedence[tt]
}

func (p *Parser) advance() {
	p.current = p.lexer.Next()
}

func (p *Parser) span(start Token) types.Span {
	return types.Span{Start: start.Start, End: p.current.Start, Line: start.Line, Column: start.Column}
}

func (p *Parser) errorAt(t Token, code types.ErrorCode, message string) error {
	return &types.ParseError{
		Span:    types.Span{Start: t.Start, End: t.End, Line: t.Line, Column: t.Column},
		Code:    code,
		Message: message,
		Token:   t.Value,
	}
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	if p.current.Type != tt {
		return Token{}, p.errorAt(p.current, types.ErrUnexpectedToken,
			fmt.Sprintf("expected %s but got %s", tt.String(), p.current.Type.String()))
	}
	t := p.current
	p.advance()
	return t, nil
}

func (p *Parser) enter() error {
	p.depth++
	if p.depth > p.opts.MaxDepth {
		return p.errorAt(p.current, types.ErrUnexpectedToken, "expression nesting too deep")
	}
	return nil
}

func (p *Parser) leave() { p.depth-- }

// parseExpression implements the Pratt loop: parse a prefix term, then
// keep consuming infix operators whose precedence beats rbp.
func (p *Parser) parseExpression(rbp int) (*types.ASTNode, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	left, err = p.parsePostfix(left)
	if err != nil {
		return nil, err
	}

	for rbp < p.getPrecedence(p.current.Type) {
		left, err = p.parseInfix(left)
		if err != nil {
			return nil, err
		}
		left, err = p.parsePostfix(left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

// parsePostfix folds in the structurally highest-precedence operators: '.'
// navigation (property or method call) and '[' indexing, looping so that
// `a.b[0].c(1)` chains correctly.
func (p *Parser) parsePostfix(left *types.ASTNode) (*types.ASTNode, error) {
	for {
		switch p.current.Type {
		case TokenDot:
			start := p.current
			p.advance()
			node, err := p.parseInvocation(left, start)
			if err != nil {
				return nil, err
			}
			left = node
		case TokenBracketOpen:
			start := p.current
			p.advance()
			idx, err := p.parseExpression(0)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenBracketClose); err != nil {
				return nil, err
			}
			node := p.arena.Alloc(types.NodeIndex, p.span(start))
			node.Base = left
			node.Index = idx
			left = node
		default:
			return left, nil
		}
	}
}

// parseInvocation parses the member following '.': a bare identifier
// becomes a NodeProperty, an identifier followed by '(' becomes a
// NodeMethod (a function invoked on `left`).
func (p *Parser) parseInvocation(left *types.ASTNode, dotTok Token) (*types.ASTNode, error) {
	name, err := p.parseMemberName()
	if err != nil {
		return nil, err
	}
	if p.current.Type == TokenParenOpen {
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		node := p.arena.Alloc(types.NodeMethod, p.span(dotTok))
		node.Base = left
		node.Name = name
		node.Args = args
		return node, nil
	}
	node := p.arena.Alloc(types.NodeProperty, p.span(dotTok))
	node.Base = left
	node.Name = name
	return node, nil
}

// parseMemberName accepts an identifier, a delimited identifier, or a
// keyword used as an identifier (FHIRPath reserves words like "as"/"is"
// but still allows them as ordinary path segment names).
func (p *Parser) parseMemberName() (string, error) {
	switch p.current.Type {
	case TokenIdent, TokenIdentEsc:
		name := p.current.Value
		p.advance()
		return name, nil
	case TokenKwAnd, TokenKwOr, TokenKwXor, TokenKwImplies, TokenKwIn,
		TokenKwContains, TokenKwIs, TokenKwAs, TokenKwDiv, TokenKwMod:
		name := p.current.Type.String()
		p.advance()
		return name, nil
	default:
		return "", p.errorAt(p.current, types.ErrEmptyIdentifier,
			fmt.Sprintf("expected identifier, got %s", p.current.Type.String()))
	}
}

func (p *Parser) parseArgList() ([]*types.ASTNode, error) {
	p.advance() // skip '('
	var args []*types.ASTNode
	if p.current.Type == TokenParenClose {
		p.advance()
		return args, nil
	}
	for {
		arg, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.current.Type == TokenComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokenParenClose); err != nil {
		return nil, err
	}
	return args, nil
}

// parsePrimary parses a prefix ("nud") term: literals, identifiers/function
// calls, variables, external constants, parenthesized expressions, the
// empty collection `{}`, and unary +/-.
func (p *Parser) parsePrimary() (*types.ASTNode, error) {
	tok := p.current
	switch tok.Type {
	case TokenString:
		p.advance()
		return p.literal(tok, types.LiteralString, tok.Value), nil
	case TokenNumber:
		return p.parseNumberOrQuantity()
	case TokenBoolean:
		p.advance()
		n := p.arena.Alloc(types.NodeLiteral, types.Span{Start: tok.Start, End: tok.End, Line: tok.Line, Column: tok.Column})
		n.LiteralKind = types.LiteralBoolean
		n.BoolValue = tok.Value == "true"
		return n, nil
	case TokenDate:
		p.advance()
		return p.literal(tok, types.LiteralDate, tok.Value), nil
	case TokenDateTime:
		p.advance()
		return p.literal(tok, types.LiteralDateTime, tok.Value), nil
	case TokenTime:
		p.advance()
		return p.literal(tok, types.LiteralTime, tok.Value), nil
	case TokenVariable:
		p.advance()
		n := p.arena.Alloc(types.NodeVariable, singleSpan(tok))
		n.Name = tok.Value
		return n, nil
	case TokenExternal:
		p.advance()
		n := p.arena.Alloc(types.NodeVariable, singleSpan(tok))
		n.Name = tok.Value
		n.Namespace = "%"
		return n, nil
	case TokenParenOpen:
		p.advance()
		inner, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenParenClose); err != nil {
			return nil, err
		}
		n := p.arena.Alloc(types.NodeParen, singleSpan(tok))
		n.Inner = inner
		return n, nil
	case TokenBraceOpen:
		p.advance()
		if _, err := p.expect(TokenBraceClose); err != nil {
			return nil, err
		}
		n := p.arena.Alloc(types.NodeLiteral, singleSpan(tok))
		n.LiteralKind = types.LiteralNull
		return n, nil
	case TokenMinus, TokenPlus:
		p.advance()
		operand, err := p.parseExpression(105) // binds tighter than * / div mod
		if err != nil {
			return nil, err
		}
		n := p.arena.Alloc(types.NodeUnary, singleSpan(tok))
		n.Op = tok.Type.String()
		n.Right = operand
		return n, nil
	case TokenIdent, TokenIdentEsc:
		return p.parseIdentOrCall(tok)
	case TokenKwAnd, TokenKwOr, TokenKwXor, TokenKwImplies, TokenKwIn,
		TokenKwContains, TokenKwIs, TokenKwAs, TokenKwDiv, TokenKwMod:
		// A reserved word in prefix position is an ordinary identifier
		// (e.g. `as` the path segment vs. `as` the operator).
		return p.parseIdentOrCall(tok)
	case TokenEOF:
		return nil, p.errorAt(tok, types.ErrUnexpectedEOF, "unexpected end of expression")
	default:
		return nil, p.errorAt(tok, types.ErrUnexpectedToken,
			fmt.Sprintf("unexpected token %q", tok.Value))
	}
}

func (p *Parser) literal(tok Token, kind types.LiteralKind, value string) *types.ASTNode {
	n := p.arena.Alloc(types.NodeLiteral, singleSpan(tok))
	n.LiteralKind = kind
	n.StrValue = value
	return n
}

func singleSpan(t Token) types.Span {
	return types.Span{Start: t.Start, End: t.End, Line: t.Line, Column: t.Column}
}

// parseNumberOrQuantity parses a number literal, fusing a following unit
// (a string literal or a calendar-duration keyword) into a single Quantity
// literal node per spec §3 ("4 'mg'", "4 days").
func (p *Parser) parseNumberOrQuantity() (*types.ASTNode, error) {
	tok := p.current
	p.advance()

	switch {
	case p.current.Type == TokenString:
		unit := p.current
		p.advance()
		n := p.arena.Alloc(types.NodeLiteral, types.Span{Start: tok.Start, End: unit.End, Line: tok.Line, Column: tok.Column})
		n.LiteralKind = types.LiteralQuantity
		n.QuantityNum = tok.Value
		n.StrValue = unit.Value
		return n, nil
	case p.current.Type == TokenIdent && isDateTimeUnit(p.current.Value):
		unit := p.current
		p.advance()
		n := p.arena.Alloc(types.NodeLiteral, types.Span{Start: tok.Start, End: unit.End, Line: tok.Line, Column: tok.Column})
		n.LiteralKind = types.LiteralQuantity
		n.QuantityNum = tok.Value
		n.StrValue = unit.Value
		return n, nil
	default:
		if strings.Contains(tok.Value, ".") {
			return p.literal(tok, types.LiteralDecimal, tok.Value), nil
		}
		n := p.arena.Alloc(types.NodeLiteral, singleSpan(tok))
		n.LiteralKind = types.LiteralInteger
		n.StrValue = tok.Value
		v, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, p.errorAt(tok, types.ErrInvalidNumber, "invalid integer literal")
		}
		n.IntValue = v
		return n, nil
	}
}

// parseIdentOrCall parses a bare identifier, a unqualified function call
// (`exists()`), or a System/FHIR-qualified type name used standalone (e.g.
// as the argument to a lambda — the qualifier is just regular property
// navigation handled by parsePostfix; here we only build the leaf).
func (p *Parser) parseIdentOrCall(tok Token) (*types.ASTNode, error) {
	name, err := p.parseMemberName()
	if err != nil {
		return nil, err
	}
	if p.current.Type == TokenParenOpen {
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		n := p.arena.Alloc(types.NodeFunction, singleSpan(tok))
		n.Name = name
		n.Args = args
		return n, nil
	}
	n := p.arena.Alloc(types.NodeIdentifier, singleSpan(tok))
	n.Name = name
	return n, nil
}

// parseInfix parses a binary operator expression, or (for `is`/`as`) a
// type-membership test whose right operand is a type specifier rather
// than a general expression.
func (p *Parser) parseInfix(left *types.ASTNode) (*types.ASTNode, error) {
	tok := p.current
	prec := p.getPrecedence(tok.Type)

	if tok.Type == TokenKwIs || tok.Type == TokenKwAs {
		p.advance()
		typeName, err := p.parseTypeSpecifier()
		if err != nil {
			return nil, err
		}
		nodeType := types.NodeTypeCheck
		if tok.Type == TokenKwAs {
			nodeType = types.NodeTypeCast
		}
		n := p.arena.Alloc(nodeType, singleSpan(tok))
		n.Base = left
		n.TypeName = typeName
		return n, nil
	}

	p.advance()
	// `implies` is right-associative (spec §4.2: `a implies b implies c` is
	// `a implies (b implies c)`), so its recursive descent must not stop at
	// its own precedence level the way every left-associative operator does.
	rightPrec := prec
	if tok.Type == TokenKwImplies {
		rightPrec = prec - 1
	}
	right, err := p.parseExpression(rightPrec)
	if err != nil {
		return nil, err
	}

	if tok.Type == TokenUnion {
		n := p.arena.Alloc(types.NodeUnion, singleSpan(tok))
		n.Left = left
		n.Right = right
		return n, nil
	}

	n := p.arena.Alloc(types.NodeBinary, singleSpan(tok))
	n.Op = tok.Type.String()
	n.Left = left
	n.Right = right
	return n, nil
}

// parseTypeSpecifier parses a (possibly qualified) type name:
// `Patient`, `FHIR.Patient`, `System.String`.
func (p *Parser) parseTypeSpecifier() (string, error) {
	first, err := p.parseMemberName()
	if err != nil {
		return "", err
	}
	if p.current.Type == TokenDot {
		p.advance()
		second, err := p.parseMemberName()
		if err != nil {
			return "", err
		}
		return first + "." + second, nil
	}
	return first, nil
}
