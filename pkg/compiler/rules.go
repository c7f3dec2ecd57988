package compiler

import "github.com/kristofer/tater/pkg/lexer"

// Precedence climbs from loosest to tightest binding, mirroring
// the language grammar's precedence table exactly.
type Precedence int

const (
	PrecNone       Precedence = iota
	PrecAssignment            // =  += -= *= /=
	PrecOr                    // or
	PrecAnd                   // and
	PrecEquality              // == !=
	PrecComparison            // < > <= >=
	PrecBitOr                 // |
	PrecBitXor                // ^
	PrecBitAnd                // &
	PrecShift                 // << >>
	PrecTerm                  // + -
	PrecFactor                // * / %
	PrecUnary                 // ! - ~
	PrecCall                  // . () []
	PrecPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

var rules map[lexer.TokenType]parseRule

func init() {
	rules = map[lexer.TokenType]parseRule{
		lexer.TokenLeftParen:   {(*Compiler).grouping, (*Compiler).call, PrecCall},
		lexer.TokenLeftBracket: {(*Compiler).listLiteral, (*Compiler).subscript, PrecCall},
		lexer.TokenLeftBrace:   {(*Compiler).mapLiteral, nil, PrecNone},
		lexer.TokenDot:         {nil, (*Compiler).dot, PrecCall},
		lexer.TokenMinus:       {(*Compiler).unary, (*Compiler).binary, PrecTerm},
		lexer.TokenPlus:        {nil, (*Compiler).binary, PrecTerm},
		lexer.TokenSlash:       {nil, (*Compiler).binary, PrecFactor},
		lexer.TokenStar:        {nil, (*Compiler).binary, PrecFactor},
		lexer.TokenPercent:     {nil, (*Compiler).binary, PrecFactor},
		lexer.TokenBang:        {(*Compiler).unary, nil, PrecNone},
		lexer.TokenTilde:       {(*Compiler).unary, nil, PrecNone},
		lexer.TokenPlusPlus:    {nil, nil, PrecNone},
		lexer.TokenMinusMinus:  {nil, nil, PrecNone},
		lexer.TokenBangEqual:   {nil, (*Compiler).binary, PrecEquality},
		lexer.TokenEqualEqual:  {nil, (*Compiler).binary, PrecEquality},
		lexer.TokenGreater:         {nil, (*Compiler).binary, PrecComparison},
		lexer.TokenGreaterEqual:    {nil, (*Compiler).binary, PrecComparison},
		lexer.TokenLess:             {nil, (*Compiler).binary, PrecComparison},
		lexer.TokenLessEqual:        {nil, (*Compiler).binary, PrecComparison},
		lexer.TokenAmp:               {nil, (*Compiler).binary, PrecBitAnd},
		lexer.TokenPipe:              {nil, (*Compiler).binary, PrecBitOr},
		lexer.TokenCaret:             {nil, (*Compiler).binary, PrecBitXor},
		lexer.TokenLessLess:          {nil, (*Compiler).binary, PrecShift},
		lexer.TokenGreaterGreater:    {nil, (*Compiler).binary, PrecShift},
		lexer.TokenIdentifier: {(*Compiler).variable, nil, PrecNone},
		lexer.TokenString:     {(*Compiler).stringLit, nil, PrecNone},
		lexer.TokenNumber:     {(*Compiler).numberLit, nil, PrecNone},
		lexer.TokenAnd:        {nil, (*Compiler).and_, PrecAnd},
		lexer.TokenOr:         {nil, (*Compiler).or_, PrecOr},
		lexer.TokenTrue:       {(*Compiler).literal, nil, PrecNone},
		lexer.TokenFalse:      {(*Compiler).literal, nil, PrecNone},
		lexer.TokenNil:        {(*Compiler).literal, nil, PrecNone},
		lexer.TokenSelf:       {(*Compiler).self, nil, PrecNone},
		lexer.TokenSuper:      {(*Compiler).super, nil, PrecNone},
		lexer.TokenFn:         {(*Compiler).lambda, nil, PrecNone},
	}
}

func getRule(t lexer.TokenType) parseRule {
	if r, ok := rules[t]; ok {
		return r
	}
	return parseRule{nil, nil, PrecNone}
}

// parsePrecedence is the Pratt engine's core loop: consume a prefix
// expression, then keep consuming infix operators at least as tight
// as minPrec.
func (c *Compiler) parsePrecedence(minPrec Precedence) {
	c.advance()
	prefix := getRule(c.previous.Type).prefix
	if prefix == nil {
		c.error("expected expression")
		return
	}
	canAssign := minPrec <= PrecAssignment
	prefix(c, canAssign)

	for minPrec <= getRule(c.current.Type).precedence {
		c.advance()
		infix := getRule(c.previous.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.matchTok(lexer.TokenEqual) {
		c.error("invalid assignment target")
	}
}

func (c *Compiler) expression() { c.parsePrecedence(PrecAssignment) }
