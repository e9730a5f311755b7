package interp

import (
	"fmt"
	"sort"

	"entremets/internal/ast"
	"entremets/internal/sqlexec"
	"entremets/internal/storage"
	"entremets/internal/value"
)

// Outcome classifies what a single Step call did.
type Outcome int

const (
	// Completed means the step executed and the process's state
	// (and possibly the engine's) now reflects it.
	Completed Outcome = iota
	// Blocked means the step could not run because a row it needed
	// is locked by another running transaction; state is unchanged
	// and this contributes no successor world state (§4.3).
	Blocked
	// AtLatch means the process is parked at a latch statement; only
	// a joint rendezvous release (AdvancePastLatch) can move it past
	// this point.
	AtLatch
	// ProcessFinished means the process has no more statements to run.
	ProcessFinished
)

// Result reports the outcome of one Step call.
type Result struct {
	Outcome   Outcome
	BlockedBy storage.TxID
}

// Step executes exactly one atomic micro-step of the process's body
// against engine, per the step catalog of §4.3.
func Step(state *ProcessState, engine *storage.Engine, status sqlexec.ProcessStatus) (Result, error) {
	if state.Finished {
		return Result{Outcome: ProcessFinished}, nil
	}

	stmt, txEnd, tx := state.peek()
	if txEnd {
		if err := engine.Commit(tx); err != nil {
			return Result{}, err
		}
		state.popTxBody()
		state.ActiveTx = 0
		state.LastCommitted = true
		state.LastAborted = false
		return Result{Outcome: Completed}, nil
	}
	if stmt == nil {
		state.Finished = true
		return Result{Outcome: ProcessFinished}, nil
	}

	var res Result
	var err error
	switch st := stmt.(type) {
	case *ast.LetStmt:
		res, err = stepLet(state, st, engine, status)
	case *ast.IfStmt:
		res, err = stepIf(state, st, engine, status)
	case *ast.TransactionStmt:
		res, err = stepTransaction(state, st, engine)
	case *ast.AbortStmt:
		res, err = stepAbort(state, engine)
	case *ast.LatchStmt:
		return Result{Outcome: AtLatch}, nil
	case *ast.SQLStmt:
		res, err = stepSQL(state, st, engine, status)
	default:
		return Result{}, &StepError{Process: state.Name, Message: fmt.Sprintf("unrecognized statement %T", stmt)}
	}
	if err == nil && res.Outcome == Completed {
		if next, nextTxEnd, _ := state.peek(); next == nil && !nextTxEnd {
			state.Finished = true
		}
	}
	return res, err
}

// AdvancePastLatch moves a parked process past its latch statement. The
// scheduler calls this on every live process simultaneously, as one
// joint transition, once all of them are parked (§4.4's rendezvous
// rule) -- it is never reachable through Step alone.
func AdvancePastLatch(state *ProcessState) {
	state.advance()
	state.LatchesCrossed++
	if next, nextTxEnd, _ := state.peek(); next == nil && !nextTxEnd {
		state.Finished = true
	}
}

// ForceAbort aborts state's open transaction and unwinds its control
// stack back to the statement after the surrounding transaction block,
// exactly as an explicit abort statement would. The scheduler calls
// this directly, outside of Step, to apply a deadlock-victim abort
// (§4.1): the victim was not necessarily the process whose step was
// being attempted, so there is no pending Step call to route it through.
func ForceAbort(state *ProcessState, engine *storage.Engine) error {
	tx, ok := state.unwindToTxBody()
	if !ok {
		return &StepError{Process: state.Name, Message: "deadlock victim has no open transaction to abort"}
	}
	if err := engine.Abort(tx); err != nil {
		return err
	}
	state.ActiveTx = 0
	state.LastAborted = true
	state.LastCommitted = false
	if next, nextTxEnd, _ := state.peek(); next == nil && !nextTxEnd {
		state.Finished = true
	}
	return nil
}

// runStatement executes f under the process's currently open
// transaction, or -- if none is open -- under a throwaway transaction
// that is committed immediately on success or aborted immediately if f
// reports blocking, modeling a bare statement as its own implicit,
// auto-committing transaction.
func runStatement(state *ProcessState, engine *storage.Engine, f func(storage.TxID) (storage.TxID, error)) (Result, error) {
	if state.ActiveTx != 0 {
		blocked, err := f(state.ActiveTx)
		if err != nil {
			return Result{}, err
		}
		if blocked != 0 {
			return Result{Outcome: Blocked, BlockedBy: blocked}, nil
		}
		return Result{Outcome: Completed}, nil
	}
	tx := engine.Begin(storage.ReadCommitted)
	blocked, err := f(tx)
	if err != nil {
		return Result{}, err
	}
	if blocked != 0 {
		if abortErr := engine.Abort(tx); abortErr != nil {
			return Result{}, abortErr
		}
		return Result{Outcome: Blocked, BlockedBy: blocked}, nil
	}
	if err := engine.Commit(tx); err != nil {
		return Result{}, err
	}
	state.LastCommitted = true
	state.LastAborted = false
	return Result{Outcome: Completed}, nil
}

func stepLet(state *ProcessState, st *ast.LetStmt, engine *storage.Engine, status sqlexec.ProcessStatus) (Result, error) {
	switch rhs := st.RHS.(type) {
	case *ast.SelectStmt:
		var bound value.Value
		if rhs.ForUpdate {
			res, err := runStatement(state, engine, func(tx storage.TxID) (storage.TxID, error) {
				ctx := &sqlexec.Ctx{Env: &sqlexec.Env{Vars: state.Vars}, Engine: engine, Tx: tx, Status: status}
				rows, blocked, err := sqlexec.SelectForUpdate(rhs, ctx)
				if err != nil || blocked != 0 {
					return blocked, err
				}
				bound = reduceRows(rhs, rows)
				return 0, nil
			})
			if err != nil || res.Outcome != Completed {
				return res, err
			}
		} else {
			ctx := &sqlexec.Ctx{Env: &sqlexec.Env{Vars: state.Vars}, Engine: engine, Tx: state.ActiveTx, Status: status}
			rows, err := sqlexec.Select(rhs, ctx)
			if err != nil {
				return Result{}, err
			}
			bound = reduceRows(rhs, rows)
		}
		state.Vars[st.Name] = bound
	case ast.Expr:
		ctx := &sqlexec.Ctx{Env: &sqlexec.Env{Vars: state.Vars}, Engine: engine, Tx: state.ActiveTx, Status: status}
		v, err := sqlexec.Eval(rhs, nil, ctx)
		if err != nil {
			return Result{}, err
		}
		state.Vars[st.Name] = v
	default:
		return Result{}, &StepError{Process: state.Name, Message: fmt.Sprintf("unrecognized let right-hand side %T", st.RHS)}
	}
	state.advance()
	return Result{Outcome: Completed}, nil
}

// reduceRows collapses a SELECT's result rows to the single Value a let
// binding stores: Nil if nothing matched, the lone column's value when
// exactly one column was requested, and otherwise a tuple of the
// requested (or, for "select *", all) columns from the first match.
func reduceRows(sel *ast.SelectStmt, rows []value.Row) value.Value {
	if len(rows) == 0 {
		return value.Nil
	}
	row := rows[0]
	if len(sel.Columns) == 1 {
		if v, ok := row[sel.Columns[0]]; ok {
			return v
		}
		return value.Nil
	}
	cols := sel.Columns
	if cols == nil {
		cols = make([]string, 0, len(row))
		for c := range row {
			cols = append(cols, c)
		}
		sort.Strings(cols)
	}
	return row.Project(cols)
}

func stepIf(state *ProcessState, st *ast.IfStmt, engine *storage.Engine, status sqlexec.ProcessStatus) (Result, error) {
	ctx := &sqlexec.Ctx{Env: &sqlexec.Env{Vars: state.Vars}, Engine: engine, Tx: state.ActiveTx, Status: status}
	v, err := sqlexec.Eval(st.Cond, nil, ctx)
	if err != nil {
		return Result{}, err
	}
	state.advance()
	if v.Truthy() {
		if len(st.Then) > 0 {
			state.enter(st.Then)
		}
	} else if len(st.Else) > 0 {
		state.enter(st.Else)
	}
	return Result{Outcome: Completed}, nil
}

func stepTransaction(state *ProcessState, st *ast.TransactionStmt, engine *storage.Engine) (Result, error) {
	tx := engine.Begin(storage.ReadCommitted)
	state.ActiveTx = tx
	state.advance()
	state.enterTxBody(st.Body, tx)
	return Result{Outcome: Completed}, nil
}

func stepAbort(state *ProcessState, engine *storage.Engine) (Result, error) {
	if err := ForceAbort(state, engine); err != nil {
		return Result{}, err
	}
	return Result{Outcome: Completed}, nil
}

func stepSQL(state *ProcessState, st *ast.SQLStmt, engine *storage.Engine, status sqlexec.ProcessStatus) (Result, error) {
	switch sql := st.SQL.(type) {
	case *ast.SelectStmt:
		if sql.ForUpdate {
			res, err := runStatement(state, engine, func(tx storage.TxID) (storage.TxID, error) {
				ctx := &sqlexec.Ctx{Env: &sqlexec.Env{Vars: state.Vars}, Engine: engine, Tx: tx, Status: status}
				_, blocked, err := sqlexec.SelectForUpdate(sql, ctx)
				return blocked, err
			})
			if err != nil || res.Outcome != Completed {
				return res, err
			}
		} else {
			ctx := &sqlexec.Ctx{Env: &sqlexec.Env{Vars: state.Vars}, Engine: engine, Tx: state.ActiveTx, Status: status}
			if _, err := sqlexec.Select(sql, ctx); err != nil {
				return Result{}, err
			}
		}
	case *ast.InsertStmt:
		res, err := runStatement(state, engine, func(tx storage.TxID) (storage.TxID, error) {
			ctx := &sqlexec.Ctx{Env: &sqlexec.Env{Vars: state.Vars}, Engine: engine, Tx: tx, Status: status}
			_, err := sqlexec.Insert(sql, ctx)
			return 0, err
		})
		if err != nil || res.Outcome != Completed {
			return res, err
		}
	case *ast.UpdateStmt:
		res, err := runStatement(state, engine, func(tx storage.TxID) (storage.TxID, error) {
			ctx := &sqlexec.Ctx{Env: &sqlexec.Env{Vars: state.Vars}, Engine: engine, Tx: tx, Status: status}
			_, blocked, err := sqlexec.Update(sql, ctx)
			return blocked, err
		})
		if err != nil || res.Outcome != Completed {
			return res, err
		}
	case *ast.DeleteStmt:
		res, err := runStatement(state, engine, func(tx storage.TxID) (storage.TxID, error) {
			ctx := &sqlexec.Ctx{Env: &sqlexec.Env{Vars: state.Vars}, Engine: engine, Tx: tx, Status: status}
			_, blocked, err := sqlexec.Delete(sql, ctx)
			return blocked, err
		})
		if err != nil || res.Outcome != Completed {
			return res, err
		}
	default:
		return Result{}, &StepError{Process: state.Name, Message: fmt.Sprintf("statement %T is not permitted in a process body", sql)}
	}
	state.advance()
	return Result{Outcome: Completed}, nil
}
