package lexer

import (
	"fmt"
	"strings"

	"github.com/xirelogy/go-scm/internal/numeric"
	"github.com/xirelogy/go-scm/internal/token"
	"github.com/xirelogy/go-scm/internal/value"
)

// Error is a lexical error. Lexing stops at the first one.
type Error struct {
	Pos     token.Position
	Message string
	// Incomplete is set when the input ended inside a literal.
	Incomplete bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Lexer converts source text into a stream of tokens.
type Lexer struct {
	input   string
	pos     int  // current position in bytes
	readPos int  // next read position
	ch      byte // current char
	line    int
	column  int
	err     *Error
}

// New creates a lexer for the provided source text.
func New(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// Tokenize lexes the whole input, stopping at the first error.
func Tokenize(input string) ([]token.Token, error) {
	l := New(input)
	var out []token.Token
	for {
		tok := l.NextToken()
		if tok.Type == token.Illegal {
			return out, l.Err()
		}
		out = append(out, tok)
		if tok.Type == token.EOF {
			return out, nil
		}
	}
}

// Err returns the error behind the last Illegal token, or nil.
func (l *Lexer) Err() error {
	if l.err == nil {
		return nil
	}
	return l.err
}

// NextToken returns the next token from the input. After an error every
// call returns the same Illegal token.
func (l *Lexer) NextToken() token.Token {
	if l.err != nil {
		return token.Token{Type: token.Illegal, Literal: l.err.Message, Pos: l.err.Pos}
	}

	l.skipWhitespace()

	if l.atEnd() {
		return l.makeToken(token.EOF, "")
	}

	switch l.ch {
	case '(':
		tok := l.makeToken(token.LParen, "(")
		l.readChar()
		return tok
	case ')':
		tok := l.makeToken(token.RParen, ")")
		l.readChar()
		return tok
	case '"':
		return l.readString()
	case '#':
		return l.readHash()
	default:
		if isForbidden(l.ch) {
			return l.fail(l.position(), fmt.Sprintf("unexpected character %q", l.ch), false)
		}
		if isDigit(l.ch) {
			return l.readNumber()
		}
		return l.readIdentifier()
	}
}

func (l *Lexer) position() token.Position {
	return token.Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.column,
	}
}

func (l *Lexer) makeToken(t token.Type, lit string) token.Token {
	return token.Token{
		Type:    t,
		Literal: lit,
		Pos:     l.position(),
	}
}

func (l *Lexer) fail(pos token.Position, msg string, incomplete bool) token.Token {
	l.err = &Error{Pos: pos, Message: msg, Incomplete: incomplete}
	return token.Token{Type: token.Illegal, Literal: msg, Pos: pos}
}

// finishLiteral checks that a literal is followed by a delimiter.
func (l *Lexer) finishLiteral(tok token.Token) token.Token {
	if l.atEnd() || isWhitespace(l.ch) || l.ch == ')' {
		return tok
	}
	return l.fail(l.position(), fmt.Sprintf("unexpected %q after literal %s", l.ch, tok.Literal), false)
}

func (l *Lexer) skipWhitespace() {
	for !l.atEnd() && isWhitespace(l.ch) {
		l.readChar()
	}
}

func (l *Lexer) readIdentifier() token.Token {
	start := l.makeToken(token.Ident, "")
	var sb strings.Builder
	for !l.atEnd() && !isWhitespace(l.ch) && l.ch != '(' && l.ch != ')' {
		if isForbidden(l.ch) {
			return l.fail(l.position(), fmt.Sprintf("unexpected character %q in identifier", l.ch), false)
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}
	start.Literal = sb.String()
	return start
}

func (l *Lexer) readNumber() token.Token {
	start := l.makeToken(token.Value, "")
	var sb strings.Builder
	for !l.atEnd() && isDigit(l.ch) {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		sb.WriteByte(l.ch)
		l.readChar()
		for !l.atEnd() && isDigit(l.ch) {
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
	start.Literal = sb.String()
	n, err := numeric.Parse(start.Literal)
	if err != nil {
		return l.fail(start.Pos, err.Error(), false)
	}
	start.Value = value.Number(n)
	return l.finishLiteral(start)
}

func (l *Lexer) readHash() token.Token {
	start := l.makeToken(token.Value, "")
	l.readChar() // consume '#'
	switch {
	case l.ch == 't':
		start.Literal = "#t"
		start.Value = value.Bool(true)
		l.readChar()
	case l.ch == 'f':
		start.Literal = "#f"
		start.Value = value.Bool(false)
		l.readChar()
	case l.ch == '\'':
		l.readChar()
		if l.atEnd() {
			return l.fail(start.Pos, "unterminated character literal", true)
		}
		if l.ch < 'a' || l.ch > 'z' {
			return l.fail(start.Pos, fmt.Sprintf("invalid character literal #'%c", l.ch), false)
		}
		start.Literal = "#'" + string(l.ch)
		start.Value = value.Char(rune(l.ch))
		l.readChar()
	case l.atEnd():
		return l.fail(start.Pos, "unterminated # literal", true)
	default:
		return l.fail(start.Pos, fmt.Sprintf("invalid literal #%c", l.ch), false)
	}
	return l.finishLiteral(start)
}

// readString reads a double-quoted string. No escapes are processed.
func (l *Lexer) readString() token.Token {
	start := l.makeToken(token.Value, "")
	var sb strings.Builder

	for {
		l.readChar()
		if l.atEnd() {
			return l.fail(start.Pos, "unterminated string", true)
		}
		if l.ch == '"' {
			l.readChar()
			break
		}
		sb.WriteByte(l.ch)
	}

	start.Value = value.String(sb.String())
	start.Literal = `"` + sb.String() + `"`
	return l.finishLiteral(start)
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\t' || ch == '\r'
}

func isForbidden(ch byte) bool {
	switch ch {
	case '[', ']', '{', '}', '|', '\\':
		return true
	default:
		return false
	}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		l.ch = 0
		return
	}

	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	l.ch = l.input[l.readPos]
	l.pos = l.readPos
	l.readPos++
	l.column++
}
