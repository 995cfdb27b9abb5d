package parser_test

import (
	"testing"

	"github.com/fhirpath-go/fhirpath/pkg/parser"
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

func parseExpr(t *testing.T, input string) *types.ASTNode {
	t.Helper()
	expr, err := parser.Parse(input)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", input, err)
	}
	return expr.AST()
}

func expectError(t *testing.T, input string) {
	t.Helper()
	if _, err := parser.Parse(input); err == nil {
		t.Fatalf("expected error parsing %q but got none", input)
	}
}

func TestParseLiterals(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind types.LiteralKind
	}{
		{"string", "'hello'", types.LiteralString},
		{"integer", "42", types.LiteralInteger},
		{"decimal", "3.14", types.LiteralDecimal},
		{"boolean true", "true", types.LiteralBoolean},
		{"boolean false", "false", types.LiteralBoolean},
		{"date", "@2015-02-07", types.LiteralDate},
		{"datetime", "@2015-02-07T13:28:17-05:00", types.LiteralDateTime},
		{"time", "@T13:28:17", types.LiteralTime},
		{"quantity string unit", "4 'mg'", types.LiteralQuantity},
		{"quantity calendar unit", "4 days", types.LiteralQuantity},
		{"empty collection", "{}", types.LiteralNull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := parseExpr(t, tt.in)
			if node.Type != types.NodeLiteral {
				t.Fatalf("expected literal node, got %s", node.Type)
			}
			if node.LiteralKind != tt.kind {
				t.Errorf("expected kind %v, got %v", tt.kind, node.LiteralKind)
			}
		})
	}
}

func TestParsePropertyNavigation(t *testing.T) {
	node := parseExpr(t, "Patient.name.given")
	if node.Type != types.NodeProperty || node.Name != "given" {
		t.Fatalf("unexpected top node: %+v", node)
	}
	mid := node.Base
	if mid.Type != types.NodeProperty || mid.Name != "name" {
		t.Fatalf("unexpected mid node: %+v", mid)
	}
	root := mid.Base
	if root.Type != types.NodeIdentifier || root.Name != "Patient" {
		t.Fatalf("unexpected root node: %+v", root)
	}
}

func TestParseMethodCall(t *testing.T) {
	node := parseExpr(t, "Patient.name.where(use = 'official')")
	if node.Type != types.NodeMethod || node.Name != "where" {
		t.Fatalf("expected method node, got %+v", node)
	}
	if len(node.Args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(node.Args))
	}
	cond := node.Args[0]
	if cond.Type != types.NodeBinary || cond.Op != "=" {
		t.Fatalf("expected '=' binary condition, got %+v", cond)
	}
}

func TestParseIndexer(t *testing.T) {
	node := parseExpr(t, "Patient.name[0]")
	if node.Type != types.NodeIndex {
		t.Fatalf("expected index node, got %s", node.Type)
	}
	if node.Index.LiteralKind != types.LiteralInteger || node.Index.StrValue != "0" {
		t.Fatalf("unexpected index expr: %+v", node.Index)
	}
}

func TestParseTypeOperators(t *testing.T) {
	isNode := parseExpr(t, "value is FHIR.Quantity")
	if isNode.Type != types.NodeTypeCheck || isNode.TypeName != "FHIR.Quantity" {
		t.Fatalf("unexpected is node: %+v", isNode)
	}
	asNode := parseExpr(t, "value as Quantity")
	if asNode.Type != types.NodeTypeCast || asNode.TypeName != "Quantity" {
		t.Fatalf("unexpected as node: %+v", asNode)
	}
}

func TestParseUnion(t *testing.T) {
	node := parseExpr(t, "name.given | name.family")
	if node.Type != types.NodeUnion {
		t.Fatalf("expected union node, got %s", node.Type)
	}
}

func TestOperatorPrecedence(t *testing.T) {
	// `and` binds looser than comparison, which binds looser than +.
	node := parseExpr(t, "1 + 2 = 3 and true")
	if node.Type != types.NodeBinary || node.Op != "and" {
		t.Fatalf("expected top-level 'and', got %+v", node)
	}
	left := node.Left
	if left.Type != types.NodeBinary || left.Op != "=" {
		t.Fatalf("expected '=' on the left of 'and', got %+v", left)
	}
	sum := left.Left
	if sum.Type != types.NodeBinary || sum.Op != "+" {
		t.Fatalf("expected '+' nested under '=', got %+v", sum)
	}
}

func TestImpliesIsRightAssociative(t *testing.T) {
	// `a implies b implies c` must bind as `a implies (b implies c)`, not
	// `(a implies b) implies c`.
	node := parseExpr(t, "a implies b implies c")
	if node.Type != types.NodeBinary || node.Op != "implies" {
		t.Fatalf("expected top-level 'implies', got %+v", node)
	}
	if node.Left.Type != types.NodeIdentifier || node.Left.Name != "a" {
		t.Fatalf("expected bare identifier 'a' on the left, got %+v", node.Left)
	}
	right := node.Right
	if right.Type != types.NodeBinary || right.Op != "implies" {
		t.Fatalf("expected nested 'implies' on the right, got %+v", right)
	}
	if right.Left.Name != "b" || right.Right.Name != "c" {
		t.Fatalf("expected b implies c nested on the right, got %+v", right)
	}
}

func TestUnaryMinusPrecedence(t *testing.T) {
	node := parseExpr(t, "-1 + 2")
	if node.Type != types.NodeBinary || node.Op != "+" {
		t.Fatalf("expected top-level '+', got %+v", node)
	}
	if node.Left.Type != types.NodeUnary {
		t.Fatalf("expected unary minus on left, got %+v", node.Left)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"",
		"Patient.",
		"Patient.name(",
		"'unterminated",
		"(1 + 2",
	}
	for _, in := range cases {
		expectError(t, in)
	}
}

func TestPrintRoundTrip(t *testing.T) {
	cases := []string{
		"Patient.name.where(use = 'official').given",
		"1 + 2 * 3",
		"name.given | name.family",
		"value is FHIR.Quantity",
		"$this.count() > 0",
	}
	for _, in := range cases {
		ast := parseExpr(t, in)
		printed := parser.Print(ast)
		reparsed, err := parser.Parse(printed)
		if err != nil {
			t.Fatalf("re-parsing printed form %q (from %q) failed: %v", printed, in, err)
		}
		if parser.Print(reparsed.AST()) != printed {
			t.Errorf("round trip unstable for %q: got %q then %q", in, printed, parser.Print(reparsed.AST()))
		}
	}
}
