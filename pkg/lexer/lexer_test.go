package lexer

import "testing"

func tokens(src string) []Token {
	s := New(src)
	var out []Token
	for {
		tok := s.NextToken()
		out = append(out, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return out
}

func TestPunctuationAndOperators(t *testing.T) {
	toks := tokens("(){}[],.;: ~ ^")
	want := []TokenType{
		TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace,
		TokenLeftBracket, TokenRightBracket, TokenComma, TokenDot,
		TokenSemicolon, TokenColon, TokenTilde, TokenCaret, TokenEOF,
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(want), toks)
	}
	for i, tt := range want {
		if toks[i].Type != tt {
			t.Errorf("token %d: got %v, want %v", i, toks[i].Type, tt)
		}
	}
}

func TestCompoundOperators(t *testing.T) {
	cases := map[string]TokenType{
		"+":  TokenPlus,
		"++": TokenPlusPlus,
		"+=": TokenPlusEqual,
		"-":  TokenMinus,
		"--": TokenMinusMinus,
		"-=": TokenMinusEqual,
		"==": TokenEqualEqual,
		"=":  TokenEqual,
		"!=": TokenBangEqual,
		"!":  TokenBang,
		"<=": TokenLessEqual,
		"<<": TokenLessLess,
		"<":  TokenLess,
		">=": TokenGreaterEqual,
		">>": TokenGreaterGreater,
		">":  TokenGreater,
		"&&": TokenAmpAmp,
		"&":  TokenAmp,
		"||": TokenPipePipe,
		"|":  TokenPipe,
	}
	for src, want := range cases {
		toks := tokens(src)
		if toks[0].Type != want {
			t.Errorf("scanning %q: got %v, want %v", src, toks[0].Type, want)
		}
	}
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	toks := tokens("let fn type self super switch case default while for if else break continue assert print return and or true false nil foo_bar2")
	wantKeyword := []TokenType{
		TokenLet, TokenFn, TokenTypeKeyword, TokenSelf, TokenSuper, TokenSwitch,
		TokenCase, TokenDefault, TokenWhile, TokenFor, TokenIf, TokenElse,
		TokenBreak, TokenContinue, TokenAssert, TokenPrint, TokenReturn,
		TokenAnd, TokenOr, TokenTrue, TokenFalse, TokenNil, TokenIdentifier,
	}
	for i, tt := range wantKeyword {
		if toks[i].Type != tt {
			t.Errorf("token %d: got %v, want %v", i, toks[i].Type, tt)
		}
	}
}

func TestNumbers(t *testing.T) {
	for _, src := range []string{"123", "3.14", "0", "1e10", "2.5e-3"} {
		toks := tokens(src)
		if toks[0].Type != TokenNumber || toks[0].Lexeme != src {
			t.Errorf("scanning %q: got %v %q", src, toks[0].Type, toks[0].Lexeme)
		}
	}
}

func TestStringLiteralAndEscapes(t *testing.T) {
	toks := tokens(`"hello\nworld"`)
	if toks[0].Type != TokenString {
		t.Fatalf("got %v, want TokenString", toks[0].Type)
	}
	if got, want := toks[0].StringValue(), "hello\nworld"; got != want {
		t.Errorf("StringValue() = %q, want %q", got, want)
	}
}

func TestUnterminatedString(t *testing.T) {
	toks := tokens(`"unterminated`)
	if toks[0].Type != TokenError {
		t.Errorf("got %v, want TokenError", toks[0].Type)
	}
}

func TestCommentsAndWhitespaceSkipped(t *testing.T) {
	toks := tokens("# a comment\nlet x = 1 // trailing\n// whole line\n+ 2")
	want := []TokenType{TokenLet, TokenIdentifier, TokenEqual, TokenNumber, TokenPlus, TokenNumber, TokenEOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(want), toks)
	}
	for i, tt := range want {
		if toks[i].Type != tt {
			t.Errorf("token %d: got %v, want %v", i, toks[i].Type, tt)
		}
	}
}

func TestLineTracking(t *testing.T) {
	toks := tokens("let x = 1\nlet y = 2")
	var secondLet Token
	count := 0
	for _, tok := range toks {
		if tok.Type == TokenLet {
			count++
			if count == 2 {
				secondLet = tok
			}
		}
	}
	if secondLet.Line != 2 {
		t.Errorf("second let: line = %d, want 2", secondLet.Line)
	}
}
