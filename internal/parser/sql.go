package parser

import (
	"entremets/internal/ast"
	"entremets/internal/lexer"
)

func (p *Parser) parseSQLStatement() (ast.SQLStatement, error) {
	switch p.cur.Type {
	case lexer.SELECT:
		return p.parseSelect()
	case lexer.INSERT:
		return p.parseInsert()
	case lexer.UPDATE:
		return p.parseUpdate()
	case lexer.DELETE:
		return p.parseDelete()
	case lexer.CREATE:
		return p.parseCreate()
	case lexer.ALTER:
		return p.parseAlterTable()
	default:
		return nil, p.errorf("unexpected token %s at start of SQL statement", p.cur.Type)
	}
}

func (p *Parser) parseSelect() (*ast.SelectStmt, error) {
	p.advance() // select
	var columns []string
	if p.cur.Type == lexer.STAR {
		p.advance()
	} else {
		for {
			name, err := p.expect(lexer.IDENT)
			if err != nil {
				return nil, err
			}
			columns = append(columns, name.Value)
			if p.cur.Type != lexer.COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(lexer.FROM); err != nil {
		return nil, err
	}
	table, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	sel := &ast.SelectStmt{Table: table.Value, Columns: columns}
	if p.cur.Type == lexer.WHERE {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Where = where
	}
	if p.cur.Type == lexer.FOR {
		p.advance()
		if _, err := p.expect(lexer.UPDATE); err != nil {
			return nil, err
		}
		sel.ForUpdate = true
	}
	return sel, nil
}

func (p *Parser) parseInsert() (*ast.InsertStmt, error) {
	p.advance() // insert
	if _, err := p.expect(lexer.INTO); err != nil {
		return nil, err
	}
	table, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LPAREN); err != nil {
		return nil, err
	}
	var cols []string
	for {
		name, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		cols = append(cols, name.Value)
		if p.cur.Type != lexer.COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.VALUES); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LPAREN); err != nil {
		return nil, err
	}
	values := make(map[string]ast.Expr, len(cols))
	for i, c := range cols {
		if i > 0 {
			if _, err := p.expect(lexer.COMMA); err != nil {
				return nil, err
			}
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		values[c] = expr
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, err
	}
	return &ast.InsertStmt{Table: table.Value, Values: values}, nil
}

func (p *Parser) parseUpdate() (*ast.UpdateStmt, error) {
	p.advance() // update
	table, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.SET); err != nil {
		return nil, err
	}
	assignments := map[string]ast.Expr{}
	for {
		col, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.EQ); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		assignments[col.Value] = val
		if p.cur.Type != lexer.COMMA {
			break
		}
		p.advance()
	}
	stmt := &ast.UpdateStmt{Table: table.Value, Assignments: assignments}
	if p.cur.Type == lexer.WHERE {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (*ast.DeleteStmt, error) {
	p.advance() // delete
	if _, err := p.expect(lexer.FROM); err != nil {
		return nil, err
	}
	table, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	stmt := &ast.DeleteStmt{Table: table.Value}
	if p.cur.Type == lexer.WHERE {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *Parser) parseCreate() (ast.SQLStatement, error) {
	p.advance() // create
	switch p.cur.Type {
	case lexer.TABLE:
		return p.parseCreateTable()
	case lexer.UNIQUE:
		p.advance()
		if _, err := p.expect(lexer.INDEX); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.ON); err != nil {
			return nil, err
		}
		table, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		return &ast.CreateUniqueIndexStmt{Table: table.Value, Columns: cols}, nil
	default:
		return nil, p.errorf("expected table or unique index after create, got %s", p.cur.Type)
	}
}

func (p *Parser) parseCreateTable() (*ast.CreateTableStmt, error) {
	p.advance() // table
	table, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	cols, err := p.parseIdentList()
	if err != nil {
		return nil, err
	}
	return &ast.CreateTableStmt{Table: table.Value, Columns: cols}, nil
}

func (p *Parser) parseAlterTable() (*ast.AlterTableAddForeignKeyStmt, error) {
	p.advance() // alter
	if _, err := p.expect(lexer.TABLE); err != nil {
		return nil, err
	}
	table, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.ADD); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.CONSTRAINT); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.FOREIGN); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.KEY); err != nil {
		return nil, err
	}
	cols, err := p.parseIdentList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.REFERENCES); err != nil {
		return nil, err
	}
	refTable, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	refCols, err := p.parseIdentList()
	if err != nil {
		return nil, err
	}
	return &ast.AlterTableAddForeignKeyStmt{
		Table: table.Value, Columns: cols,
		RefTable: refTable.Value, RefColumns: refCols,
	}, nil
}

func (p *Parser) parseIdentList() ([]string, error) {
	if _, err := p.expect(lexer.LPAREN); err != nil {
		return nil, err
	}
	var out []string
	for {
		name, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		out = append(out, name.Value)
		if p.cur.Type != lexer.COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, err
	}
	return out, nil
}
