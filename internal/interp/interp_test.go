package interp

import (
	"testing"

	"entremets/internal/ast"
	"entremets/internal/sqlexec"
	"entremets/internal/storage"
	"entremets/internal/value"
)

func newAccounts(t *testing.T) *storage.Engine {
	t.Helper()
	e := storage.NewEngine()
	if err := e.CreateTable("accounts", []string{"id", "balance"}); err != nil {
		t.Fatal(err)
	}
	if err := e.Seed("accounts", value.Row{"id": value.Int(1), "balance": value.Int(100)}); err != nil {
		t.Fatal(err)
	}
	return e
}

func noStatus(string) (bool, bool, error) { return false, false, nil }

func idEquals(n int64) ast.Expr {
	return &ast.BinaryExpr{Op: "=", Left: &ast.ColumnRef{Name: "id"}, Right: &ast.IntLit{Value: n}}
}

func TestStepLetBindsScalarExpr(t *testing.T) {
	e := newAccounts(t)
	proc := &ast.ProcessDecl{Name: "p0", Body: ast.Block{
		&ast.LetStmt{Name: "x", RHS: &ast.IntLit{Value: 41}},
	}}
	s := New(proc)
	res, err := Step(s, e, noStatus)
	if err != nil || res.Outcome != Completed {
		t.Fatalf("unexpected result %+v err %v", res, err)
	}
	if s.Vars["x"].AsInt() != 41 {
		t.Fatalf("expected $x = 41, got %v", s.Vars["x"])
	}
	res, err = Step(s, e, noStatus)
	if err != nil || res.Outcome != ProcessFinished {
		t.Fatalf("expected process finished, got %+v err %v", res, err)
	}
}

func TestStepLetBindsSelectColumn(t *testing.T) {
	e := newAccounts(t)
	proc := &ast.ProcessDecl{Name: "p0", Body: ast.Block{
		&ast.LetStmt{Name: "bal", RHS: &ast.SelectStmt{Table: "accounts", Columns: []string{"balance"}, Where: idEquals(1)}},
	}}
	s := New(proc)
	res, err := Step(s, e, noStatus)
	if err != nil || res.Outcome != Completed {
		t.Fatalf("unexpected result %+v err %v", res, err)
	}
	if s.Vars["bal"].AsInt() != 100 {
		t.Fatalf("expected $bal = 100, got %v", s.Vars["bal"])
	}
}

func TestStepBareUpdateAutoCommits(t *testing.T) {
	e := newAccounts(t)
	proc := &ast.ProcessDecl{Name: "p0", Body: ast.Block{
		&ast.SQLStmt{SQL: &ast.UpdateStmt{
			Table:       "accounts",
			Assignments: map[string]ast.Expr{"balance": &ast.IntLit{Value: 200}},
			Where:       idEquals(1),
		}},
	}}
	s := New(proc)
	res, err := Step(s, e, noStatus)
	if err != nil || res.Outcome != Completed {
		t.Fatalf("unexpected result %+v err %v", res, err)
	}
	if !s.LastCommitted || s.LastAborted {
		t.Fatalf("expected implicit commit to be recorded, got committed=%v aborted=%v", s.LastCommitted, s.LastAborted)
	}

	readTx := e.Begin(storage.ReadCommitted)
	rows, err := sqlexec.Select(&ast.SelectStmt{Table: "accounts", Where: idEquals(1)}, &sqlexec.Ctx{Env: sqlexec.NewEnv(), Engine: e, Tx: readTx, Status: noStatus})
	if err != nil {
		t.Fatal(err)
	}
	if rows[0]["balance"].AsInt() != 200 {
		t.Fatalf("expected committed balance 200, got %v", rows[0])
	}
}

func TestStepTransactionBodyCommitsOnFallThrough(t *testing.T) {
	e := newAccounts(t)
	proc := &ast.ProcessDecl{Name: "p0", Body: ast.Block{
		&ast.TransactionStmt{Isolation: "read_committed", Body: ast.Block{
			&ast.SQLStmt{SQL: &ast.UpdateStmt{
				Table:       "accounts",
				Assignments: map[string]ast.Expr{"balance": &ast.IntLit{Value: 50}},
				Where:       idEquals(1),
			}},
		}},
		&ast.LetStmt{Name: "done", RHS: &ast.IntLit{Value: 1}},
	}}
	s := New(proc)

	// step 1: enter the transaction
	if res, err := Step(s, e, noStatus); err != nil || res.Outcome != Completed {
		t.Fatalf("enter transaction: %+v %v", res, err)
	}
	if s.ActiveTx == 0 {
		t.Fatalf("expected an open transaction")
	}
	openTx := s.ActiveTx

	// step 2: run the update inside the transaction, not yet committed
	if res, err := Step(s, e, noStatus); err != nil || res.Outcome != Completed {
		t.Fatalf("update in tx: %+v %v", res, err)
	}
	if s.ActiveTx != openTx {
		t.Fatalf("transaction should still be open after the update statement")
	}

	// step 3: falling off the end of the body is its own atomic commit step
	if res, err := Step(s, e, noStatus); err != nil || res.Outcome != Completed {
		t.Fatalf("implicit commit: %+v %v", res, err)
	}
	if s.ActiveTx != 0 || !s.LastCommitted || s.LastAborted {
		t.Fatalf("expected transaction closed and committed, got activeTx=%d committed=%v aborted=%v", s.ActiveTx, s.LastCommitted, s.LastAborted)
	}

	// step 4: control resumes after the transaction statement
	res, err := Step(s, e, noStatus)
	if err != nil || res.Outcome != Completed {
		t.Fatalf("resume after transaction: %+v %v", res, err)
	}
	if s.Vars["done"].AsInt() != 1 {
		t.Fatalf("expected $done = 1, got %v", s.Vars["done"])
	}
}

func TestStepAbortDiscardsWrites(t *testing.T) {
	e := newAccounts(t)
	proc := &ast.ProcessDecl{Name: "p0", Body: ast.Block{
		&ast.TransactionStmt{Isolation: "read_committed", Body: ast.Block{
			&ast.SQLStmt{SQL: &ast.UpdateStmt{
				Table:       "accounts",
				Assignments: map[string]ast.Expr{"balance": &ast.IntLit{Value: 999}},
				Where:       idEquals(1),
			}},
			&ast.AbortStmt{},
		}},
	}}
	s := New(proc)

	mustComplete(t, s, e) // enter transaction
	mustComplete(t, s, e) // update
	mustComplete(t, s, e) // abort

	if s.ActiveTx != 0 || !s.LastAborted || s.LastCommitted {
		t.Fatalf("expected transaction closed and aborted, got activeTx=%d committed=%v aborted=%v", s.ActiveTx, s.LastCommitted, s.LastAborted)
	}

	readTx := e.Begin(storage.ReadCommitted)
	rows, err := sqlexec.Select(&ast.SelectStmt{Table: "accounts", Where: idEquals(1)}, &sqlexec.Ctx{Env: sqlexec.NewEnv(), Engine: e, Tx: readTx, Status: noStatus})
	if err != nil {
		t.Fatal(err)
	}
	if rows[0]["balance"].AsInt() != 100 {
		t.Fatalf("expected balance unchanged at 100 after abort, got %v", rows[0])
	}
}

func TestStepIfEntersCorrectBranchAndResumes(t *testing.T) {
	e := newAccounts(t)
	proc := &ast.ProcessDecl{Name: "p0", Body: ast.Block{
		&ast.IfStmt{
			Cond: &ast.BoolLit{Value: true},
			Then: ast.Block{&ast.LetStmt{Name: "branch", RHS: &ast.IntLit{Value: 1}}},
			Else: ast.Block{&ast.LetStmt{Name: "branch", RHS: &ast.IntLit{Value: 2}}},
		},
		&ast.LetStmt{Name: "after", RHS: &ast.IntLit{Value: 7}},
	}}
	s := New(proc)

	mustComplete(t, s, e) // evaluate condition, enter then-branch
	mustComplete(t, s, e) // run the let inside then-branch
	if s.Vars["branch"].AsInt() != 1 {
		t.Fatalf("expected then-branch taken, got %v", s.Vars["branch"])
	}
	mustComplete(t, s, e) // resume at the statement after the if
	if s.Vars["after"].AsInt() != 7 {
		t.Fatalf("expected control to resume after the if statement, got %v", s.Vars["after"])
	}
}

func TestStepSelectForUpdateBlocksWithoutMutatingState(t *testing.T) {
	e := newAccounts(t)
	holder := e.Begin(storage.ReadCommitted)
	if _, blocked, err := e.TrySelectForUpdate(holder, "accounts", func(r value.Row) bool { return true }); err != nil || blocked != 0 {
		t.Fatalf("setup lock acquisition failed: blocked=%d err=%v", blocked, err)
	}

	proc := &ast.ProcessDecl{Name: "p1", Body: ast.Block{
		&ast.SQLStmt{SQL: &ast.SelectStmt{Table: "accounts", ForUpdate: true}},
	}}
	s := New(proc)
	res, err := Step(s, e, noStatus)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Blocked || res.BlockedBy != holder {
		t.Fatalf("expected blocked by %d, got %+v", holder, res)
	}
}

func TestAdvancePastLatch(t *testing.T) {
	e := newAccounts(t)
	proc := &ast.ProcessDecl{Name: "p0", Body: ast.Block{
		&ast.LatchStmt{},
		&ast.LetStmt{Name: "after", RHS: &ast.IntLit{Value: 3}},
	}}
	s := New(proc)
	res, err := Step(s, e, noStatus)
	if err != nil || res.Outcome != AtLatch {
		t.Fatalf("expected AtLatch, got %+v err %v", res, err)
	}
	AdvancePastLatch(s)
	res, err = Step(s, e, noStatus)
	if err != nil || res.Outcome != Completed {
		t.Fatalf("unexpected result after advancing past latch: %+v %v", res, err)
	}
	if s.Vars["after"].AsInt() != 3 {
		t.Fatalf("expected $after = 3, got %v", s.Vars["after"])
	}
}

func mustComplete(t *testing.T, s *ProcessState, e *storage.Engine) {
	t.Helper()
	res, err := Step(s, e, noStatus)
	if err != nil || res.Outcome != Completed {
		t.Fatalf("expected Completed, got %+v err %v", res, err)
	}
}
