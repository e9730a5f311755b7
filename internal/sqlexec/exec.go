package sqlexec

import (
	"entremets/internal/ast"
	"entremets/internal/storage"
	"entremets/internal/value"
)

// Select runs a plain (non-locking) select and returns the matching
// rows projected to the requested columns, or the full row when
// Columns is nil ("select *").
func Select(stmt *ast.SelectStmt, ctx *Ctx) ([]value.Row, error) {
	pred, errSlot := buildPredicate(stmt.Where, ctx)
	rows, err := ctx.Engine.Read(ctx.Tx, stmt.Table, pred)
	if err != nil {
		return nil, err
	}
	if *errSlot != nil {
		return nil, *errSlot
	}
	if stmt.Columns == nil {
		return rows, nil
	}
	out := make([]value.Row, len(rows))
	for i, r := range rows {
		projected := make(value.Row, len(stmt.Columns))
		for _, c := range stmt.Columns {
			projected[c] = r[c]
		}
		out[i] = projected
	}
	return out, nil
}

// SelectForUpdate runs a locking select. blockedBy is nonzero iff the
// step cannot proceed because another running transaction holds a
// matching row's lock.
func SelectForUpdate(stmt *ast.SelectStmt, ctx *Ctx) (rows []value.Row, blockedBy storage.TxID, err error) {
	pred, errSlot := buildPredicate(stmt.Where, ctx)
	rows, blockedBy, err = ctx.Engine.TrySelectForUpdate(ctx.Tx, stmt.Table, pred)
	if err != nil {
		return nil, 0, err
	}
	if *errSlot != nil {
		return nil, 0, *errSlot
	}
	return rows, blockedBy, nil
}

// Insert evaluates the value expressions and inserts the resulting row.
func Insert(stmt *ast.InsertStmt, ctx *Ctx) (value.RowID, error) {
	row := make(value.Row, len(stmt.Values))
	for col, expr := range stmt.Values {
		v, err := Eval(expr, nil, ctx)
		if err != nil {
			return 0, err
		}
		row[col] = v
	}
	return ctx.Engine.Insert(ctx.Tx, stmt.Table, row)
}

// Update evaluates the predicate and per-column assignment expressions
// against each matching row, attempting all-or-nothing lock acquisition.
func Update(stmt *ast.UpdateStmt, ctx *Ctx) (updated int, blockedBy storage.TxID, err error) {
	pred, errSlot := buildPredicate(stmt.Where, ctx)
	var assignErr error
	assign := func(cur value.Row) value.Row {
		out := cur.Clone()
		for col, expr := range stmt.Assignments {
			v, err := Eval(expr, cur, ctx)
			if err != nil {
				if assignErr == nil {
					assignErr = err
				}
				continue
			}
			out[col] = v
		}
		return out
	}
	updated, blockedBy, err = ctx.Engine.TryUpdate(ctx.Tx, stmt.Table, pred, assign)
	if err != nil {
		return 0, 0, err
	}
	if *errSlot != nil {
		return 0, 0, *errSlot
	}
	if assignErr != nil {
		return 0, 0, assignErr
	}
	return updated, blockedBy, nil
}

// Delete evaluates the predicate and tombstones each matching row.
func Delete(stmt *ast.DeleteStmt, ctx *Ctx) (deleted int, blockedBy storage.TxID, err error) {
	pred, errSlot := buildPredicate(stmt.Where, ctx)
	deleted, blockedBy, err = ctx.Engine.TryDelete(ctx.Tx, stmt.Table, pred)
	if err != nil {
		return 0, 0, err
	}
	if *errSlot != nil {
		return 0, 0, *errSlot
	}
	return deleted, blockedBy, nil
}

// RunInit executes the init block's DDL and seed data against a fresh
// engine. Init statements run outside any transaction: CREATE TABLE and
// its constraints declare schema, and seed INSERTs commit directly via
// Engine.Seed.
func RunInit(block ast.Block, engine *storage.Engine) error {
	ctx := &Ctx{Env: NewEnv(), Engine: engine}
	for _, stmt := range block {
		sqlStmt, ok := stmt.(*ast.SQLStmt)
		if !ok {
			return &EvalError{Message: "only SQL/DDL statements are permitted in the init block"}
		}
		if err := runInitStmt(sqlStmt.SQL, ctx); err != nil {
			return err
		}
	}
	return nil
}

func runInitStmt(stmt ast.SQLStatement, ctx *Ctx) error {
	switch s := stmt.(type) {
	case *ast.CreateTableStmt:
		if err := ctx.Engine.CreateTable(s.Table, s.Columns); err != nil {
			return err
		}
		for _, seed := range s.Rows {
			row := make(value.Row, len(seed))
			for col, expr := range seed {
				v, err := Eval(expr, nil, ctx)
				if err != nil {
					return err
				}
				row[col] = v
			}
			if err := ctx.Engine.Seed(s.Table, row); err != nil {
				return err
			}
		}
		return nil
	case *ast.CreateUniqueIndexStmt:
		return ctx.Engine.CreateUniqueIndex(s.Table, s.Columns)
	case *ast.AlterTableAddForeignKeyStmt:
		return ctx.Engine.AddForeignKey(s.Table, s.Columns, s.RefTable, s.RefColumns)
	case *ast.InsertStmt:
		row := make(value.Row, len(s.Values))
		for col, expr := range s.Values {
			v, err := Eval(expr, nil, ctx)
			if err != nil {
				return err
			}
			row[col] = v
		}
		return ctx.Engine.Seed(s.Table, row)
	default:
		return &EvalError{Message: "statement not permitted in init block"}
	}
}
