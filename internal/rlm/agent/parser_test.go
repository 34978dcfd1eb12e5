package agent

import "testing"

func TestClassifyPlainCode(t *testing.T) {
	p := Classify("x = 1\nprint(x)\n")
	if p.Kind != KindCode {
		t.Fatalf("expected KindCode, got %v", p.Kind)
	}
	if p.Code != "x = 1\nprint(x)" {
		t.Fatalf("unexpected code: %q", p.Code)
	}
}

func TestClassifyStripsCodeFences(t *testing.T) {
	p := Classify("```python\nx = 1\nprint(x)\n```")
	if p.Kind != KindCode {
		t.Fatalf("expected KindCode, got %v", p.Kind)
	}
	if p.Code != "x = 1\nprint(x)" {
		t.Fatalf("unexpected code: %q", p.Code)
	}
}

func TestClassifyFinalDoubleQuoted(t *testing.T) {
	p := Classify("x = 1\nFINAL(\"the answer is 42\")")
	if p.Kind != KindFinal {
		t.Fatalf("expected KindFinal, got %v", p.Kind)
	}
	if p.Expr != `"the answer is 42"` {
		t.Fatalf("unexpected expr: %q", p.Expr)
	}
}

func TestClassifyFinalSingleQuoted(t *testing.T) {
	p := Classify("FINAL('42')")
	if p.Kind != KindFinal || p.Expr != "'42'" {
		t.Fatalf("unexpected parsed: %+v", p)
	}
}

func TestClassifyFinalExpression(t *testing.T) {
	p := Classify("FINAL(str(1 + 2))")
	if p.Kind != KindFinal || p.Expr != "str(1 + 2)" {
		t.Fatalf("unexpected parsed: %+v", p)
	}
}

func TestClassifyFinalWithNestedParens(t *testing.T) {
	p := Classify(`FINAL(str(sorted([3, 2, 1])[0]))`)
	if p.Kind != KindFinal {
		t.Fatalf("expected KindFinal, got %v", p.Kind)
	}
	if p.Expr != "str(sorted([3, 2, 1])[0])" {
		t.Fatalf("unexpected expr: %q", p.Expr)
	}
}

func TestClassifyFinalParenInsideStringLiteral(t *testing.T) {
	p := Classify(`FINAL("value (with parens)")`)
	if p.Kind != KindFinal {
		t.Fatalf("expected KindFinal, got %v", p.Kind)
	}
	if p.Expr != `"value (with parens)"` {
		t.Fatalf("unexpected expr: %q", p.Expr)
	}
}

func TestClassifyFinalVar(t *testing.T) {
	p := Classify("total = compute()\nFINAL_VAR(total)")
	if p.Kind != KindFinalVar {
		t.Fatalf("expected KindFinalVar, got %v", p.Kind)
	}
	if p.Expr != "total" {
		t.Fatalf("unexpected expr: %q", p.Expr)
	}
}

func TestClassifyFinalVarRejectsNonIdentifier(t *testing.T) {
	p := Classify("FINAL_VAR(1 + 2)")
	if p.Kind != KindCode {
		t.Fatalf("expected fallback to KindCode for non-identifier FINAL_VAR arg, got %v", p.Kind)
	}
}

func TestClassifyFinalToleratesLeadingWhitespace(t *testing.T) {
	p := Classify("x = 1\n    FINAL(\"done\")")
	if p.Kind != KindFinal || p.Expr != `"done"` {
		t.Fatalf("unexpected parsed: %+v", p)
	}
}

func TestClassifyFinalInsideFence(t *testing.T) {
	p := Classify("```\nFINAL(\"done\")\n```")
	if p.Kind != KindFinal || p.Expr != `"done"` {
		t.Fatalf("unexpected parsed: %+v", p)
	}
}

func TestClassifyFinalFirstLineWins(t *testing.T) {
	p := Classify("FINAL(\"first\")\nFINAL(\"second\")")
	if p.Kind != KindFinal || p.Expr != `"first"` {
		t.Fatalf("expected the first FINAL line to win, got %+v", p)
	}
}

func TestClassifyIgnoresTrailingProseAfterFinal(t *testing.T) {
	p := Classify("FINAL(\"42\")\nThanks for the help!")
	if p.Kind != KindFinal || p.Expr != `"42"` {
		t.Fatalf("unexpected parsed: %+v", p)
	}
}
