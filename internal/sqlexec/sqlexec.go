// Package sqlexec evaluates the restricted SQL subset and scalar
// expression grammar of §4.2 against a storage.Engine snapshot: select,
// insert, update, delete, "for update", and the init block's DDL, plus
// arithmetic/comparison/logical/"in"/count expression evaluation with
// $variable substitution. sqlexec holds no state of its own -- it is a
// pure function of (ast node, variable bindings, engine, transaction).
package sqlexec

import (
	"fmt"

	"entremets/internal/ast"
	"entremets/internal/storage"
	"entremets/internal/value"
)

// Env is the process-local variable bindings ($name -> Value) visible
// while evaluating one statement.
type Env struct {
	Vars map[string]value.Value
}

// NewEnv constructs an empty Env.
func NewEnv() *Env { return &Env{Vars: make(map[string]value.Value)} }

// EvalError reports a runtime evaluation failure: an unbound variable,
// an unresolved process field, or an operator applied to the wrong kind
// of value. The type checker rejects most of these statically; this
// error exists for the residue that depends on the unknown runtime
// shape of SELECT results.
type EvalError struct {
	Message string
}

func (e *EvalError) Error() string { return fmt.Sprintf("sqlexec: %s", e.Message) }

// ProcessStatus answers tx.committed / tx.aborted lookups for property
// evaluation; the scheduler supplies the real implementation
// (WorldState.Status), backed by each process's most recent transaction
// outcome.
type ProcessStatus func(process string) (committed, aborted bool, err error)

// Ctx bundles everything evaluation needs beyond the expression itself:
// variable bindings, the storage snapshot a count(*) subquery runs
// against, which transaction is doing the reading, and the process
// status callback for tx.committed/tx.aborted.
type Ctx struct {
	Env    *Env
	Engine *storage.Engine
	Tx     storage.TxID
	Status ProcessStatus
}

// Eval evaluates a scalar expression. row supplies column bindings when
// evaluating a WHERE/SET expression in the context of one candidate row;
// pass nil when there is no enclosing row (e.g. a bare "let").
func Eval(expr ast.Expr, row value.Row, ctx *Ctx) (value.Value, error) {
	switch e := expr.(type) {
	case *ast.IntLit:
		return value.Int(e.Value), nil
	case *ast.BoolLit:
		return value.Bool(e.Value), nil
	case *ast.NilLit:
		return value.Nil, nil
	case *ast.VarRef:
		v, ok := ctx.Env.Vars[e.Name]
		if !ok {
			return value.Nil, &EvalError{Message: "unbound variable $" + e.Name}
		}
		return v, nil
	case *ast.ColumnRef:
		if row == nil {
			return value.Nil, &EvalError{Message: "column reference " + e.Name + " outside row context"}
		}
		v, ok := row[e.Name]
		if !ok {
			return value.Nil, nil
		}
		return v, nil
	case *ast.ProcessFieldRef:
		committed, aborted, err := ctx.Status(e.Process)
		if err != nil {
			return value.Nil, err
		}
		switch e.Field {
		case "committed":
			return value.Bool(committed), nil
		case "aborted":
			return value.Bool(aborted), nil
		default:
			return value.Nil, &EvalError{Message: "unknown process field " + e.Field}
		}
	case *ast.MemberExpr:
		obj, err := Eval(e.Object, row, ctx)
		if err != nil {
			return value.Nil, err
		}
		txn, ok := ctx.Engine.Transactions[storage.TxID(obj.AsTxHandle())]
		if obj.Kind() != value.KindTxHandle || !ok {
			return value.Nil, &EvalError{Message: "member " + e.Member + ": operand is not a transaction handle"}
		}
		switch e.Member {
		case "committed":
			return value.Bool(txn.State == storage.Committed), nil
		case "aborted":
			return value.Bool(txn.State == storage.Aborted), nil
		}
		return value.Nil, &EvalError{Message: "unknown transaction member " + e.Member}
	case *ast.BinaryExpr:
		return evalBinary(e, row, ctx)
	case *ast.UnaryExpr:
		return evalUnary(e, row, ctx)
	case *ast.TupleLit:
		items := make([]value.Value, len(e.Items))
		for i, it := range e.Items {
			v, err := Eval(it, row, ctx)
			if err != nil {
				return value.Nil, err
			}
			items[i] = v
		}
		return value.Tuple(items...), nil
	case *ast.SetLit:
		items := make([]value.Value, len(e.Items))
		for i, it := range e.Items {
			v, err := Eval(it, row, ctx)
			if err != nil {
				return value.Nil, err
			}
			items[i] = v
		}
		return value.Set(items...), nil
	case *ast.InExpr:
		item, err := Eval(e.Item, row, ctx)
		if err != nil {
			return value.Nil, err
		}
		coll, err := Eval(e.Collection, row, ctx)
		if err != nil {
			return value.Nil, err
		}
		var elems []value.Value
		switch coll.Kind() {
		case value.KindSet:
			elems = coll.AsSet()
		case value.KindTuple:
			elems = coll.AsTuple()
		default:
			return value.Nil, &EvalError{Message: "in: right-hand side is not a set or tuple"}
		}
		for _, el := range elems {
			if item.Equal(el) {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	case *ast.CountExpr:
		return evalCount(e, ctx)
	default:
		return value.Nil, &EvalError{Message: fmt.Sprintf("cannot evaluate %T", expr)}
	}
}

func evalCount(e *ast.CountExpr, ctx *Ctx) (value.Value, error) {
	pred, errSlot := buildPredicate(e.Source.Where, ctx)
	rows, err := ctx.Engine.Read(ctx.Tx, e.Source.Table, pred)
	if err != nil {
		return value.Nil, err
	}
	if *errSlot != nil {
		return value.Nil, *errSlot
	}
	if e.Column == "*" {
		return value.Int(int64(len(rows))), nil
	}
	var n int64
	for _, r := range rows {
		if v, ok := r[e.Column]; ok && !v.IsNil() {
			n++
		}
	}
	return value.Int(n), nil
}

func evalUnary(e *ast.UnaryExpr, row value.Row, ctx *Ctx) (value.Value, error) {
	operand, err := Eval(e.Operand, row, ctx)
	if err != nil {
		return value.Nil, err
	}
	switch e.Op {
	case "not":
		if operand.Kind() != value.KindBool {
			return value.Nil, &EvalError{Message: "not: operand is not boolean"}
		}
		return value.Bool(!operand.AsBool()), nil
	case "-":
		if operand.Kind() != value.KindInteger {
			return value.Nil, &EvalError{Message: "unary -: operand is not an integer"}
		}
		return value.Int(-operand.AsInt()), nil
	default:
		return value.Nil, &EvalError{Message: "unknown unary operator " + e.Op}
	}
}

func evalBinary(e *ast.BinaryExpr, row value.Row, ctx *Ctx) (value.Value, error) {
	if e.Op == "and" || e.Op == "or" {
		return evalShortCircuit(e, row, ctx)
	}
	left, err := Eval(e.Left, row, ctx)
	if err != nil {
		return value.Nil, err
	}
	right, err := Eval(e.Right, row, ctx)
	if err != nil {
		return value.Nil, err
	}
	switch e.Op {
	case "+", "-", "*", "/", "%":
		if left.Kind() != value.KindInteger || right.Kind() != value.KindInteger {
			return value.Nil, &EvalError{Message: e.Op + ": both operands must be integers"}
		}
		a, b := left.AsInt(), right.AsInt()
		switch e.Op {
		case "+":
			return value.Int(a + b), nil
		case "-":
			return value.Int(a - b), nil
		case "*":
			return value.Int(a * b), nil
		case "/":
			if b == 0 {
				return value.Nil, &EvalError{Message: "division by zero"}
			}
			return value.Int(a / b), nil
		case "%":
			if b == 0 {
				return value.Nil, &EvalError{Message: "modulo by zero"}
			}
			return value.Int(a % b), nil
		}
	case "=":
		return value.Bool(left.Equal(right)), nil
	case "<>":
		return value.Bool(!left.Equal(right)), nil
	case "<", "<=", ">", ">=":
		if left.Kind() != value.KindInteger || right.Kind() != value.KindInteger {
			return value.Nil, &EvalError{Message: e.Op + ": both operands must be integers"}
		}
		a, b := left.AsInt(), right.AsInt()
		switch e.Op {
		case "<":
			return value.Bool(a < b), nil
		case "<=":
			return value.Bool(a <= b), nil
		case ">":
			return value.Bool(a > b), nil
		case ">=":
			return value.Bool(a >= b), nil
		}
	}
	return value.Nil, &EvalError{Message: "unknown binary operator " + e.Op}
}

// evalShortCircuit implements and/or without evaluating the right operand
// unless its value can actually change the result, so a right side that
// would fail to evaluate (division by zero, an unbound $variable) never
// runs once the left side alone already decides the outcome.
func evalShortCircuit(e *ast.BinaryExpr, row value.Row, ctx *Ctx) (value.Value, error) {
	left, err := Eval(e.Left, row, ctx)
	if err != nil {
		return value.Nil, err
	}
	if left.Kind() != value.KindBool {
		return value.Nil, &EvalError{Message: e.Op + ": both operands must be boolean"}
	}
	if e.Op == "and" && !left.AsBool() {
		return value.Bool(false), nil
	}
	if e.Op == "or" && left.AsBool() {
		return value.Bool(true), nil
	}
	right, err := Eval(e.Right, row, ctx)
	if err != nil {
		return value.Nil, err
	}
	if right.Kind() != value.KindBool {
		return value.Nil, &EvalError{Message: e.Op + ": both operands must be boolean"}
	}
	return right, nil
}

// buildPredicate turns an optional WHERE expression into a
// storage.Predicate. Any evaluation error encountered while the
// predicate runs is captured into the returned error slot rather than
// panicking, since storage.Predicate itself cannot return an error.
func buildPredicate(where ast.Expr, ctx *Ctx) (storage.Predicate, *error) {
	var firstErr error
	if where == nil {
		return nil, &firstErr
	}
	return func(r value.Row) bool {
		v, err := Eval(where, r, ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return false
		}
		return v.Truthy()
	}, &firstErr
}
