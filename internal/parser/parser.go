// Package parser implements a recursive-descent, precedence-climbing
// parser over the token stream produced by internal/lexer, producing an
// internal/ast.Spec. Grammar: an init block, one or more named process
// blocks, and one or more named property declarations.
package parser

import (
	"fmt"

	"entremets/internal/ast"
	"entremets/internal/lexer"
)

// ParseError reports a syntax error with source position.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Column, e.Message)
}

// Parser consumes tokens from a Lexer one at a time, with a single token
// of lookahead.
type Parser struct {
	lex  *lexer.Lexer
	cur  lexer.Token
	peek lexer.Token
}

// New constructs a Parser over the given source text.
func New(source string) *Parser {
	p := &Parser{lex: lexer.New(source)}
	p.advance()
	p.advance()
	return p
}

// Parse parses a complete specification.
func Parse(source string) (*ast.Spec, error) {
	p := New(source)
	return p.parseSpec()
}

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.lex.NextToken()
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Line: p.cur.Line, Column: p.cur.Column, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(t lexer.TokenType) (lexer.Token, error) {
	if p.cur.Type != t {
		return lexer.Token{}, p.errorf("expected %s, got %s %q", t, p.cur.Type, p.cur.Value)
	}
	tok := p.cur
	p.advance()
	return tok, nil
}

func (p *Parser) parseSpec() (*ast.Spec, error) {
	spec := &ast.Spec{}

	if _, err := p.expect(lexer.INIT); err != nil {
		return nil, err
	}
	initBlock, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	spec.Init = initBlock

	for p.cur.Type == lexer.PROCESS {
		proc, err := p.parseProcess()
		if err != nil {
			return nil, err
		}
		spec.Processes = append(spec.Processes, proc)
	}

	for p.cur.Type == lexer.PROPERTY {
		prop, err := p.parseProperty()
		if err != nil {
			return nil, err
		}
		spec.Properties = append(spec.Properties, prop)
	}

	if p.cur.Type != lexer.EOF {
		return nil, p.errorf("unexpected trailing token %s %q", p.cur.Type, p.cur.Value)
	}
	if len(spec.Processes) == 0 {
		return nil, p.errorf("specification must declare at least one process")
	}
	if len(spec.Properties) == 0 {
		return nil, p.errorf("specification must declare at least one property")
	}
	return spec, nil
}

func (p *Parser) parseProcess() (*ast.ProcessDecl, error) {
	if _, err := p.expect(lexer.PROCESS); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.STRING)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.ProcessDecl{Name: name.Value, Body: body}, nil
}

func (p *Parser) parseProperty() (*ast.PropertyDecl, error) {
	if _, err := p.expect(lexer.PROPERTY); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.STRING)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.EQ); err != nil {
		return nil, err
	}

	var op ast.TemporalOp
	switch p.cur.Type {
	case lexer.ALWAYS:
		op = ast.Always
	case lexer.NEVER:
		op = ast.Never
	case lexer.EVENTUALLY:
		op = ast.Eventually
	default:
		return nil, p.errorf("expected always/never/eventually, got %s", p.cur.Type)
	}
	p.advance()

	if _, err := p.expect(lexer.LPAREN); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, err
	}
	return &ast.PropertyDecl{Name: name.Value, Op: op, Expr: expr}, nil
}

func (p *Parser) parseBlock() (ast.Block, error) {
	if _, err := p.expect(lexer.LBRACE); err != nil {
		return nil, err
	}
	var block ast.Block
	for p.cur.Type != lexer.RBRACE {
		if p.cur.Type == lexer.EOF {
			return nil, p.errorf("unterminated block")
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		block = append(block, stmt)
	}
	if _, err := p.expect(lexer.RBRACE); err != nil {
		return nil, err
	}
	return block, nil
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	switch p.cur.Type {
	case lexer.LET:
		return p.parseLet()
	case lexer.IF:
		return p.parseIf()
	case lexer.TRANSACTION:
		return p.parseTransaction()
	case lexer.ABORT:
		p.advance()
		return &ast.AbortStmt{}, nil
	case lexer.LATCH:
		p.advance()
		return &ast.LatchStmt{}, nil
	case lexer.SELECT, lexer.INSERT, lexer.UPDATE, lexer.DELETE, lexer.CREATE, lexer.ALTER:
		sqlStmt, err := p.parseSQLStatement()
		if err != nil {
			return nil, err
		}
		return &ast.SQLStmt{SQL: sqlStmt}, nil
	default:
		return nil, p.errorf("unexpected token %s %q at start of statement", p.cur.Type, p.cur.Value)
	}
}

func (p *Parser) parseLet() (*ast.LetStmt, error) {
	p.advance() // let
	name, err := p.expect(lexer.VARIABLE)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.EQ); err != nil {
		return nil, err
	}
	if p.cur.Type == lexer.SELECT {
		sel, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		return &ast.LetStmt{Name: name.Value, RHS: sel}, nil
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	rhs, ok := expr.(ast.RHS)
	if !ok {
		return nil, p.errorf("expression %s cannot be bound by let", expr.String())
	}
	return &ast.LetStmt{Name: name.Value, RHS: rhs}, nil
}

func (p *Parser) parseIf() (*ast.IfStmt, error) {
	p.advance() // if
	if _, err := p.expect(lexer.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var elseBlock ast.Block
	if p.cur.Type == lexer.ELSE {
		p.advance()
		elseBlock, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	return &ast.IfStmt{Cond: cond, Then: then, Else: elseBlock}, nil
}

func (p *Parser) parseTransaction() (*ast.TransactionStmt, error) {
	p.advance() // transaction
	isolation := "read_committed"
	if p.cur.Type == lexer.READ_COMMITTED {
		isolation = p.cur.Value
		p.advance()
	}
	if _, err := p.expect(lexer.DO); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.TransactionStmt{Isolation: isolation, Body: body}, nil
}
