package parser

import (
	"strings"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// Print renders an ASTNode tree back to canonical FHIRPath source text. It
// is deliberately not a byte-for-byte echo of the original input (it drops
// comments and normalizes whitespace/quoting) — its contract is that
// re-parsing its output produces an equivalent tree, the property the
// parse-print round-trip tests check.
func Print(n *types.ASTNode) string {
	var b strings.Builder
	write(&b, n)
	return b.String()
}

func write(b *strings.Builder, n *types.ASTNode) {
	if n == nil {
		return
	}
	switch n.Type {
	case types.NodeLiteral:
		writeLiteral(b, n)
	case types.NodeIdentifier:
		b.WriteString(quoteIdent(n.Name))
	case types.NodeVariable:
		if n.Namespace == "%" {
			b.WriteByte('%')
		} else {
			b.WriteByte('$')
		}
		b.WriteString(n.Name)
	case types.NodeProperty:
		write(b, n.Base)
		b.WriteByte('.')
		b.WriteString(quoteIdent(n.Name))
	case types.NodeMethod:
		write(b, n.Base)
		b.WriteByte('.')
		b.WriteString(n.Name)
		writeArgs(b, n.Args)
	case types.NodeFunction:
		b.WriteString(n.Name)
		writeArgs(b, n.Args)
	case types.NodeIndex:
		write(b, n.Base)
		b.WriteByte('[')
		write(b, n.Index)
		b.WriteByte(']')
	case types.NodeUnary:
		b.WriteString(n.Op)
		write(b, n.Right)
	case types.NodeBinary:
		write(b, n.Left)
		b.WriteByte(' ')
		b.WriteString(n.Op)
		b.WriteByte(' ')
		write(b, n.Right)
	case types.NodeUnion:
		write(b, n.Left)
		b.WriteString(" | ")
		write(b, n.Right)
	case types.NodeTypeCheck:
		write(b, n.Base)
		b.WriteString(" is ")
		b.WriteString(n.TypeName)
	case types.NodeTypeCast:
		write(b, n.Base)
		b.WriteString(" as ")
		b.WriteString(n.TypeName)
	case types.NodeParen:
		b.WriteByte('(')
		write(b, n.Inner)
		b.WriteByte(')')
	default:
		b.WriteString("{}")
	}
}

func writeLiteral(b *strings.Builder, n *types.ASTNode) {
	switch n.LiteralKind {
	case types.LiteralBoolean:
		if n.BoolValue {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case types.LiteralInteger, types.LiteralDecimal:
		b.WriteString(n.StrValue)
	case types.LiteralString:
		b.WriteByte('\'')
		b.WriteString(escapeString(n.StrValue))
		b.WriteByte('\'')
	case types.LiteralDate:
		b.WriteByte('@')
		b.WriteString(n.StrValue)
	case types.LiteralDateTime:
		b.WriteByte('@')
		b.WriteString(n.StrValue)
	case types.LiteralTime:
		b.WriteString("@T")
		b.WriteString(strings.TrimPrefix(n.StrValue, "T"))
	case types.LiteralQuantity:
		b.WriteString(n.QuantityNum)
		b.WriteByte(' ')
		if isDateTimeUnit(n.StrValue) {
			b.WriteString(n.StrValue)
		} else {
			b.WriteByte('\'')
			b.WriteString(n.StrValue)
			b.WriteByte('\'')
		}
	case types.LiteralNull:
		b.WriteString("{}")
	}
}

func writeArgs(b *strings.Builder, args []*types.ASTNode) {
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		write(b, a)
	}
	b.WriteByte(')')
}

func escapeString(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString("\\'")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// quoteIdent backtick-quotes an identifier if it collides with a reserved
// keyword or contains characters that would otherwise be ambiguous.
func quoteIdent(name string) string {
	if name == "" {
		return "``"
	}
	if _, reserved := keywords[name]; reserved {
		return "`" + name + "`"
	}
	if !isIdentStart(rune(name[0])) {
		return "`" + name + "`"
	}
	for _, r := range name {
		if !isIdentPart(r) {
			return "`" + name + "`"
		}
	}
	return name
}
