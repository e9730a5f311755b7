package parser

import (
	"strconv"

	"entremets/internal/ast"
	"entremets/internal/lexer"
)

// parseExpr parses a full expression at the lowest precedence ("or").
func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.OR {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.AND {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: "and", Left: left, Right: right}
	}
	return left, nil
}

var comparisonOps = map[lexer.TokenType]string{
	lexer.EQ:  "=",
	lexer.NEQ: "<>",
	lexer.LT:  "<",
	lexer.LE:  "<=",
	lexer.GT:  ">",
	lexer.GE:  ">=",
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if op, ok := comparisonOps[p.cur.Type]; ok {
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	} else if p.cur.Type == lexer.IN {
		p.advance()
		collection, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &ast.InExpr{Item: left, Collection: collection}
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.PLUS || p.cur.Type == lexer.MINUS {
		op := "+"
		if p.cur.Type == lexer.MINUS {
			op = "-"
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.STAR || p.cur.Type == lexer.SLASH || p.cur.Type == lexer.PERCENT {
		var op string
		switch p.cur.Type {
		case lexer.STAR:
			op = "*"
		case lexer.SLASH:
			op = "/"
		case lexer.PERCENT:
			op = "%"
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	if p.cur.Type == lexer.NOT {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: "not", Operand: operand}, nil
	}
	if p.cur.Type == lexer.MINUS {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: "-", Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.DOT {
		p.advance()
		member, err := p.expect(lexer.IDENT)
		if err != nil {
			// tx.committed / tx.aborted use keyword-shaped field names only
			// in prose; grammatically they are plain identifiers.
			return nil, err
		}
		if ref, ok := expr.(*ast.ColumnRef); ok {
			expr = &ast.ProcessFieldRef{Process: ref.Name, Field: member.Value}
		} else {
			expr = &ast.MemberExpr{Object: expr, Member: member.Value}
		}
	}
	return expr, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	switch p.cur.Type {
	case lexer.NUMBER:
		n, err := strconv.ParseInt(p.cur.Value, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid integer literal %q", p.cur.Value)
		}
		p.advance()
		return &ast.IntLit{Value: n}, nil
	case lexer.TRUE:
		p.advance()
		return &ast.BoolLit{Value: true}, nil
	case lexer.FALSE:
		p.advance()
		return &ast.BoolLit{Value: false}, nil
	case lexer.NIL:
		p.advance()
		return &ast.NilLit{}, nil
	case lexer.VARIABLE:
		name := p.cur.Value
		p.advance()
		return &ast.VarRef{Name: name}, nil
	case lexer.IDENT:
		name := p.cur.Value
		p.advance()
		return &ast.ColumnRef{Name: name}, nil
	case lexer.COUNT:
		return p.parseCount()
	case lexer.LPAREN:
		p.advance()
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.cur.Type == lexer.COMMA {
			items := []ast.Expr{first}
			for p.cur.Type == lexer.COMMA {
				p.advance()
				next, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				items = append(items, next)
			}
			if _, err := p.expect(lexer.RPAREN); err != nil {
				return nil, err
			}
			return &ast.TupleLit{Items: items}, nil
		}
		if _, err := p.expect(lexer.RPAREN); err != nil {
			return nil, err
		}
		return first, nil
	case lexer.LBRACE:
		p.advance()
		var items []ast.Expr
		if p.cur.Type != lexer.RBRACE {
			for {
				item, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				items = append(items, item)
				if p.cur.Type != lexer.COMMA {
					break
				}
				p.advance()
			}
		}
		if _, err := p.expect(lexer.RBRACE); err != nil {
			return nil, err
		}
		return &ast.SetLit{Items: items}, nil
	default:
		return nil, p.errorf("unexpected token %s %q in expression", p.cur.Type, p.cur.Value)
	}
}

func (p *Parser) parseCount() (ast.Expr, error) {
	p.advance() // count
	if _, err := p.expect(lexer.LPAREN); err != nil {
		return nil, err
	}
	column := "*"
	if p.cur.Type == lexer.STAR {
		p.advance()
	} else {
		name, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		column = name.Value
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, err
	}
	sel, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	return &ast.CountExpr{Column: column, Source: sel}, nil
}
