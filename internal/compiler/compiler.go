package compiler

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xirelogy/go-scm/internal/lexer"
	"github.com/xirelogy/go-scm/internal/numeric"
	"github.com/xirelogy/go-scm/internal/token"
	"github.com/xirelogy/go-scm/internal/value"
)

// SyntaxError reports a failure to lex or lower a form.
type SyntaxError struct {
	Source  string
	Pos     token.Position
	Message string
	// Incomplete is set when the input ended inside a form.
	Incomplete bool
}

func (e *SyntaxError) Error() string {
	var sb strings.Builder
	if e.Source != "" {
		sb.WriteString(e.Source)
		sb.WriteString(":")
	}
	fmt.Fprintf(&sb, "%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
	return sb.String()
}

// IsIncomplete reports whether err is a syntax error caused by input ending
// inside a form.
func IsIncomplete(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se) && se.Incomplete
}

// Compiler lowers top-level forms to instruction vectors in a single pass
// over the token stream.
type Compiler struct {
	l      *lexer.Lexer
	source string
	cur    token.Token
	prev   token.Token
	err    error
}

// New creates a compiler over src. source names the input in diagnostics.
func New(source, src string) *Compiler {
	c := &Compiler{
		l:      lexer.New(src),
		source: source,
	}
	c.nextToken()
	return c
}

// Compile lowers every top-level form of src into a Module. On error the
// module holds the forms compiled before the failing one.
func Compile(source, src string) (*Module, error) {
	c := New(source, src)
	mod := &Module{Source: source}
	for {
		form, err := c.Next()
		if err == io.EOF {
			return mod, nil
		}
		if err != nil {
			return mod, err
		}
		mod.Forms = append(mod.Forms, form)
	}
}

// Next compiles the next top-level form. It returns io.EOF when the input is
// exhausted. After an error every call returns the same error.
func (c *Compiler) Next() (*Form, error) {
	if c.err != nil {
		return nil, c.err
	}
	switch c.cur.Type {
	case token.EOF:
		return nil, io.EOF
	case token.LParen:
	case token.Illegal:
		return nil, c.fail(c.lexError())
	default:
		return nil, c.fail(c.errorf(c.cur.Pos, "expected '(' at top level, got %s", describe(c.cur)))
	}

	start := c.cur.Pos
	body, err := c.parseExpr()
	if err != nil {
		return nil, c.fail(err)
	}
	return &Form{
		Proc: &value.Procedure{Name: "top-level", Body: body},
		Span: token.Span{Start: start, End: c.prev.Pos},
	}, nil
}

func (c *Compiler) fail(err error) error {
	c.err = err
	return err
}

func (c *Compiler) nextToken() {
	c.prev = c.cur
	c.cur = c.l.NextToken()
}

// parseValue lowers one operand: an atom or a parenthesized form.
func (c *Compiler) parseValue() ([]value.Instruction, error) {
	tok := c.cur
	switch tok.Type {
	case token.Ident:
		c.nextToken()
		if n, err := numeric.Parse(tok.Literal); err == nil {
			return []value.Instruction{at(value.PushValue(value.Number(n)), tok)}, nil
		}
		return []value.Instruction{at(value.PushVariable(tok.Literal), tok)}, nil
	case token.Value:
		c.nextToken()
		return []value.Instruction{at(value.PushValue(tok.Value), tok)}, nil
	case token.LParen:
		return c.parseExpr()
	default:
		return nil, c.unexpected()
	}
}

// parseExpr lowers a parenthesized form. The current token is its '('.
func (c *Compiler) parseExpr() ([]value.Instruction, error) {
	open := c.cur
	c.nextToken()

	head := c.cur
	switch {
	case head.Type == token.RParen:
		c.nextToken()
		return []value.Instruction{at(value.PushValue(value.Nil()), open)}, nil
	case head.Type == token.Ident && token.IsKeyword(head.Literal):
		c.nextToken()
		switch head.Literal {
		case token.KeywordDefine:
			return c.parseDefine(head)
		case token.KeywordLambda:
			return c.parseLambda(head)
		default:
			return c.parseIf(head)
		}
	case head.Type == token.Ident:
		if _, err := numeric.Parse(head.Literal); err != nil {
			c.nextToken()
			args, n, err := c.parseArgs()
			if err != nil {
				return nil, err
			}
			code := []value.Instruction{at(value.Call(head.Literal, n), head)}
			return append(code, args...), nil
		}
		return c.parseApply(open)
	case head.Type == token.Value || head.Type == token.LParen:
		return c.parseApply(open)
	default:
		return nil, c.unexpected()
	}
}

// parseApply lowers a form whose head is not an identifier into
// (apply head (list args...)).
func (c *Compiler) parseApply(open token.Token) ([]value.Instruction, error) {
	callee, err := c.parseValue()
	if err != nil {
		return nil, err
	}
	args, n, err := c.parseArgs()
	if err != nil {
		return nil, err
	}
	code := make([]value.Instruction, 0, len(callee)+len(args)+2)
	code = append(code, at(value.Call("apply", 2), open))
	code = append(code, callee...)
	code = append(code, at(value.Call("list", n), open))
	return append(code, args...), nil
}

// parseArgs lowers operands up to and including the closing ')'.
func (c *Compiler) parseArgs() ([]value.Instruction, int, error) {
	var code []value.Instruction
	n := 0
	for c.cur.Type != token.RParen {
		arg, err := c.parseValue()
		if err != nil {
			return nil, 0, err
		}
		code = append(code, arg...)
		n++
	}
	c.nextToken()
	return code, n, nil
}

func (c *Compiler) parseDefine(head token.Token) ([]value.Instruction, error) {
	switch c.cur.Type {
	case token.Ident:
		name := c.cur
		c.nextToken()
		body, err := c.parseBody(head)
		if err != nil {
			return nil, err
		}
		return append([]value.Instruction{at(value.Assign(name.Literal), name)}, body...), nil
	case token.LParen:
		c.nextToken()
		if c.cur.Type != token.Ident {
			return nil, c.expected("procedure name")
		}
		name := c.cur
		c.nextToken()
		params, err := c.parseParams()
		if err != nil {
			return nil, err
		}
		body, err := c.parseBody(head)
		if err != nil {
			return nil, err
		}
		closure := at(value.MakeClosure(params, len(body)), head)
		closure.Name = name.Literal
		code := make([]value.Instruction, 0, len(body)+2)
		code = append(code, at(value.Assign(name.Literal), name))
		code = append(code, body...)
		return append(code, closure), nil
	default:
		return nil, c.expected("name or (name params...) after define")
	}
}

func (c *Compiler) parseLambda(head token.Token) ([]value.Instruction, error) {
	var params []string
	switch c.cur.Type {
	case token.Ident:
		params = []string{c.cur.Literal}
		c.nextToken()
	case token.LParen:
		c.nextToken()
		var err error
		if params, err = c.parseParams(); err != nil {
			return nil, err
		}
	default:
		return nil, c.expected("parameter or (parameters...) after lambda")
	}
	body, err := c.parseBody(head)
	if err != nil {
		return nil, err
	}
	return append(body, at(value.MakeClosure(params, len(body)), head)), nil
}

// parseIf lowers (if c t [e]) to [e] BranchAfterTrue [t] BranchIfFalse [c].
func (c *Compiler) parseIf(head token.Token) ([]value.Instruction, error) {
	var parts [][]value.Instruction
	for c.cur.Type != token.RParen {
		if len(parts) == 3 {
			if c.cur.Type == token.EOF || c.cur.Type == token.Illegal {
				return nil, c.unexpected()
			}
			return nil, c.errorf(c.cur.Pos, "if expects 2 or 3 operands")
		}
		part, err := c.parseValue()
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	if len(parts) < 2 {
		return nil, c.errorf(c.cur.Pos, "if expects 2 or 3 operands, got %d", len(parts))
	}
	c.nextToken()

	cond, then := parts[0], parts[1]
	alt := []value.Instruction{at(value.PushValue(value.Nil()), head)}
	if len(parts) == 3 {
		alt = parts[2]
	}
	code := make([]value.Instruction, 0, len(alt)+len(then)+len(cond)+2)
	code = append(code, alt...)
	code = append(code, at(value.BranchAfterTrue(len(alt)), head))
	code = append(code, then...)
	code = append(code, at(value.BranchIfFalse(len(then)+1), head))
	return append(code, cond...), nil
}

// parseParams reads identifiers up to and including ')'.
func (c *Compiler) parseParams() ([]string, error) {
	params := []string{}
	for c.cur.Type != token.RParen {
		if c.cur.Type != token.Ident {
			return nil, c.expected("parameter name")
		}
		params = append(params, c.cur.Literal)
		c.nextToken()
	}
	c.nextToken()
	return params, nil
}

// parseBody reads exactly one body expression and the form's closing ')'.
func (c *Compiler) parseBody(head token.Token) ([]value.Instruction, error) {
	if c.cur.Type == token.RParen {
		return nil, c.errorf(c.cur.Pos, "%s expects a body expression", head.Literal)
	}
	body, err := c.parseValue()
	if err != nil {
		return nil, err
	}
	if c.cur.Type != token.RParen {
		if c.cur.Type == token.EOF || c.cur.Type == token.Illegal {
			return nil, c.unexpected()
		}
		return nil, c.errorf(c.cur.Pos, "%s expects exactly one body expression", head.Literal)
	}
	c.nextToken()
	return body, nil
}

func (c *Compiler) unexpected() error {
	switch c.cur.Type {
	case token.EOF:
		e := c.errorf(c.cur.Pos, "unexpected end of input")
		e.Incomplete = true
		return e
	case token.Illegal:
		return c.lexError()
	default:
		return c.errorf(c.cur.Pos, "unexpected %s", describe(c.cur))
	}
}

func (c *Compiler) expected(what string) error {
	if c.cur.Type == token.EOF || c.cur.Type == token.Illegal {
		return c.unexpected()
	}
	return c.errorf(c.cur.Pos, "expected %s, got %s", what, describe(c.cur))
}

func (c *Compiler) lexError() *SyntaxError {
	var lexErr *lexer.Error
	if errors.As(c.l.Err(), &lexErr) {
		return &SyntaxError{
			Source:     c.source,
			Pos:        lexErr.Pos,
			Message:    lexErr.Message,
			Incomplete: lexErr.Incomplete,
		}
	}
	return c.errorf(c.cur.Pos, "%s", c.cur.Literal)
}

func (c *Compiler) errorf(pos token.Position, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Source:  c.source,
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	}
}

func at(in value.Instruction, tok token.Token) value.Instruction {
	in.Line = tok.Pos.Line
	return in
}

func describe(tok token.Token) string {
	switch tok.Type {
	case token.EOF:
		return "end of input"
	case token.LParen, token.RParen:
		return fmt.Sprintf("'%s'", tok.Literal)
	default:
		return fmt.Sprintf("%s %s", strings.ToLower(string(tok.Type)), tok.Literal)
	}
}
