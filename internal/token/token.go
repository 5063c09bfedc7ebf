package token

import "github.com/xirelogy/go-scm/internal/value"

// Type identifies the category of a token.
type Type string

// Token carries the lexical item along with its source position.
// Value tokens hold their decoded literal in Value.
type Token struct {
	Type    Type
	Literal string
	Value   value.Value
	Pos     Position
}

// Position describes a byte offset and 1-based line/column.
type Position struct {
	Offset int
	Line   int
	Column int
}

// Span represents an inclusive start and end position for a form.
type Span struct {
	Start Position
	End   Position
}

const (
	Illegal Type = "ILLEGAL"
	EOF     Type = "EOF"

	// identifiers and literals
	Ident Type = "IDENT"
	Value Type = "VALUE"

	// delimiters
	LParen Type = "LPAREN"
	RParen Type = "RPAREN"
)

// Special form keywords. They lex as identifiers; the compiler checks heads
// against these.
const (
	KeywordDefine = "define"
	KeywordLambda = "lambda"
	KeywordIf     = "if"
)

var keywords = map[string]bool{
	KeywordDefine: true,
	KeywordLambda: true,
	KeywordIf:     true,
}

// IsKeyword reports whether ident names a special form.
func IsKeyword(ident string) bool {
	return keywords[ident]
}
