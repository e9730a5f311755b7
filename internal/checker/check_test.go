package checker

import (
	"testing"

	"entremets/internal/ast"
	"entremets/internal/scheduler"
)

func eq(col string, n int64) ast.Expr {
	return &ast.BinaryExpr{Op: "=", Left: &ast.ColumnRef{Name: col}, Right: &ast.IntLit{Value: n}}
}

func singleRowSpec(initial int64, newValue int64) *ast.Spec {
	return &ast.Spec{
		Init: ast.Block{
			&ast.SQLStmt{SQL: &ast.CreateTableStmt{Table: "counters", Columns: []string{"id", "n"}, Rows: []map[string]ast.Expr{
				{"id": &ast.IntLit{Value: 1}, "n": &ast.IntLit{Value: initial}},
			}}},
		},
		Processes: []*ast.ProcessDecl{
			{Name: "p0", Body: ast.Block{
				&ast.SQLStmt{SQL: &ast.UpdateStmt{Table: "counters", Where: eq("id", 1), Assignments: map[string]ast.Expr{
					"n": &ast.IntLit{Value: newValue},
				}}},
			}},
		},
	}
}

func counterAt(n int64) ast.Expr {
	return &ast.BinaryExpr{
		Op:    "=",
		Left:  &ast.CountExpr{Column: "*", Source: &ast.SelectStmt{Table: "counters", Where: eq("n", n)}},
		Right: &ast.IntLit{Value: 1},
	}
}

func TestCheckAlwaysViolatedOnceValueChanges(t *testing.T) {
	g, err := scheduler.Explore(singleRowSpec(0, 1), 100)
	if err != nil {
		t.Fatal(err)
	}
	prop := &ast.PropertyDecl{Name: "stays_zero", Op: ast.Always, Expr: counterAt(0)}
	res, err := Check(g, prop)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Violated {
		t.Fatal("expected always(counter = 0) to be violated")
	}
	if len(res.Path) == 0 {
		t.Fatal("expected a non-empty counter-example path")
	}
}

func TestCheckNeverHoldsWhenValueNeverReached(t *testing.T) {
	g, err := scheduler.Explore(singleRowSpec(0, 1), 100)
	if err != nil {
		t.Fatal(err)
	}
	prop := &ast.PropertyDecl{Name: "never_99", Op: ast.Never, Expr: counterAt(99)}
	res, err := Check(g, prop)
	if err != nil {
		t.Fatal(err)
	}
	if res.Violated {
		t.Fatal("expected never(counter = 99) to hold")
	}
}

func TestCheckEventuallyHoldsWhenFinalStateSatisfiesIt(t *testing.T) {
	g, err := scheduler.Explore(singleRowSpec(0, 1), 100)
	if err != nil {
		t.Fatal(err)
	}
	prop := &ast.PropertyDecl{Name: "reaches_one", Op: ast.Eventually, Expr: counterAt(1)}
	res, err := Check(g, prop)
	if err != nil {
		t.Fatal(err)
	}
	if res.Violated {
		t.Fatal("expected eventually(counter = 1) to hold")
	}
}

func TestCheckEventuallyViolatedWhenNoPathReachesIt(t *testing.T) {
	g, err := scheduler.Explore(singleRowSpec(0, 1), 100)
	if err != nil {
		t.Fatal(err)
	}
	prop := &ast.PropertyDecl{Name: "reaches_five", Op: ast.Eventually, Expr: counterAt(5)}
	res, err := Check(g, prop)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Violated {
		t.Fatal("expected eventually(counter = 5) to be violated")
	}
}
