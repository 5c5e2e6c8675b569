package shell

import "testing"

func kinds(toks []Token) []TokenKind {
	out := make([]TokenKind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func assertKinds(t *testing.T, toks []Token, want ...TokenKind) {
	t.Helper()
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("kind count = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d kind = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLexSimpleWords(t *testing.T) {
	toks, err := Lex("echo hello world")
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	assertKinds(t, toks, TokWord, TokWord, TokWord, TokEOF)
	if toks[0].Value != "echo" || toks[2].Value != "world" {
		t.Fatalf("unexpected values: %+v", toks)
	}
}

func TestLexOperators(t *testing.T) {
	toks, err := Lex("a | b && c || d ; e &")
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	assertKinds(t, toks,
		TokWord, TokPipe, TokWord, TokAnd, TokWord, TokOr, TokWord, TokSemi, TokWord, TokBackground, TokEOF)
}

func TestLexRedirections(t *testing.T) {
	toks, err := Lex("cmd > out.txt >> more.txt < in.txt 2> err.txt 2>> errmore.txt &> both.txt")
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	assertKinds(t, toks,
		TokWord,
		TokRedirOut, TokWord,
		TokRedirAppend, TokWord,
		TokRedirIn, TokWord,
		TokRedirErrOut, TokWord,
		TokRedirErrAppend, TokWord,
		TokRedirBoth, TokWord,
		TokEOF)
}

func TestLexSingleQuoteIsLiteral(t *testing.T) {
	toks, err := Lex(`echo 'hello $USER world'`)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	if toks[1].Value != "hello $USER world" {
		t.Fatalf("got %q", toks[1].Value)
	}
	if !toks[1].Quoted || toks[1].DoubleQ {
		t.Fatalf("expected Quoted=true DoubleQ=false, got %+v", toks[1])
	}
}

func TestLexDoubleQuotePreservesDollarForLaterExpansion(t *testing.T) {
	toks, err := Lex(`echo "hello $USER"`)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	if toks[1].Value != "hello $USER" {
		t.Fatalf("got %q", toks[1].Value)
	}
	if !toks[1].DoubleQ {
		t.Fatalf("expected DoubleQ=true")
	}
}

func TestLexDoubleQuoteEscapes(t *testing.T) {
	toks, err := Lex(`echo "a \"quoted\" word"`)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	if toks[1].Value != `a "quoted" word` {
		t.Fatalf("got %q", toks[1].Value)
	}
}

func TestLexBackslashEscapeOutsideQuotes(t *testing.T) {
	toks, err := Lex(`echo a\ b`)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	assertKinds(t, toks, TokWord, TokWord, TokEOF)
	if toks[1].Value != "a b" {
		t.Fatalf("got %q", toks[1].Value)
	}
}

func TestLexUnterminatedSingleQuoteErrors(t *testing.T) {
	if _, err := Lex("echo 'unterminated"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLexUnterminatedDoubleQuoteErrors(t *testing.T) {
	if _, err := Lex(`echo "unterminated`); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLexParens(t *testing.T) {
	toks, err := Lex("(a; b)")
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	assertKinds(t, toks, TokLParen, TokWord, TokSemi, TokWord, TokRParen, TokEOF)
}

func TestLexAdjacentWordAndOperatorNoSpace(t *testing.T) {
	toks, err := Lex("ls>out.txt")
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	assertKinds(t, toks, TokWord, TokRedirOut, TokWord, TokEOF)
}

func TestLexEmptyLine(t *testing.T) {
	toks, err := Lex("   ")
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	assertKinds(t, toks, TokEOF)
}
