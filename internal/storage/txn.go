package storage

import "entremets/internal/value"

// Begin starts a new transaction and returns its id. Transaction ids are
// assigned in begin order, which the fingerprinting layer relies on to
// canonicalize them (see Fingerprint).
func (e *Engine) Begin(iso Isolation) TxID {
	e.nextTxID++
	id := e.nextTxID
	e.Transactions[id] = newTransaction(id, iso)
	return id
}

func (e *Engine) mustRunning(id TxID) (*Transaction, error) {
	tx, ok := e.Transactions[id]
	if !ok {
		return nil, &TxError{Op: "lookup", TxID: id, Message: "unknown transaction"}
	}
	if tx.State != Running {
		return nil, &TxError{Op: "lookup", TxID: id, Message: "transaction is not running"}
	}
	return tx, nil
}

// visibleValue implements the read-committed visibility rule of §3: a
// transaction's own pending write is visible to itself; otherwise only
// the committed value is visible; a tombstone (pending or committed)
// means the row does not exist for the reader.
func visibleValue(row *versionedRow, tx TxID) (value.Row, bool) {
	if row.hasPending && row.pendingOwner == tx {
		if row.pendingTomb {
			return nil, false
		}
		return row.pending, true
	}
	if row.hasCommitted {
		if row.committedTomb {
			return nil, false
		}
		return row.committed, true
	}
	return nil, false
}

// Commit validates foreign-key constraints against the post-commit state
// of every row the transaction wrote or locked for update, then promotes
// pending values to committed and releases all locks. On constraint
// failure no state is mutated.
func (e *Engine) Commit(id TxID) error {
	tx, err := e.mustRunning(id)
	if err != nil {
		return err
	}

	type pendingWrite struct {
		table string
		id    value.RowID
		row   *versionedRow
	}
	var writes []pendingWrite
	seen := make(map[rowRef]bool)
	for ref := range tx.WriteLocks {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		row := e.Tables[ref.Table].rows[ref.Row]
		if row.hasPending && row.pendingOwner == id {
			writes = append(writes, pendingWrite{ref.Table, ref.Row, row})
		}
	}
	for ref := range tx.ForUpdateLocks {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		row := e.Tables[ref.Table].rows[ref.Row]
		if row.hasPending && row.pendingOwner == id {
			writes = append(writes, pendingWrite{ref.Table, ref.Row, row})
		}
	}

	for _, w := range writes {
		if w.row.pendingTomb {
			continue
		}
		t := e.Tables[w.table]
		for _, fk := range t.ForeignKeys {
			tuple := w.row.pending.Project(fk.Columns)
			if hasNilComponent(tuple) {
				continue
			}
			if !e.referenceExists(fk.RefTable, fk.RefColumns, tuple, id) {
				return &ConstraintError{Kind: "foreign_key", Table: w.table,
					Message: "no matching row in " + fk.RefTable + " for " + tuple.String()}
			}
		}
	}

	// Incoming direction: a row being tombstoned must not still be
	// referenced by a live child row in some other table's foreign key
	// (spec.md:64, §8 invariant 5).
	for _, w := range writes {
		if !w.row.pendingTomb || !w.row.hasCommitted {
			continue
		}
		for _, inb := range e.inbound[w.table] {
			target := w.row.committed.Project(inb.FK.RefColumns)
			if hasNilComponent(target) {
				continue
			}
			if e.hasLiveChild(inb, target, id) {
				return &ConstraintError{Kind: "foreign_key", Table: inb.ChildTable,
					Message: "row in " + w.table + " is still referenced by " + inb.ChildTable + " for " + target.String()}
			}
		}
	}

	for _, w := range writes {
		if w.row.pendingTomb {
			delete(e.Tables[w.table].rows, w.id)
			continue
		}
		w.row.hasCommitted = true
		w.row.committed = w.row.pending
		w.row.committedTomb = false
		w.row.committedBy = id
		w.row.hasPending = false
		w.row.pending = nil
		w.row.lockHolder = 0
	}
	for ref := range tx.WriteLocks {
		if row, ok := e.Tables[ref.Table].rows[ref.Row]; ok {
			row.lockHolder = 0
		}
	}
	for ref := range tx.ForUpdateLocks {
		if row, ok := e.Tables[ref.Table].rows[ref.Row]; ok {
			row.lockHolder = 0
		}
	}
	tx.WriteLocks = make(map[rowRef]struct{})
	tx.ForUpdateLocks = make(map[rowRef]struct{})
	tx.State = Committed
	return nil
}

// referenceExists reports whether some row of refTable projects to
// target on refColumns, as seen from tx (its own uncommitted writes
// count, mirroring that a self-referencing foreign key can be satisfied
// within one transaction's own batch of writes).
func (e *Engine) referenceExists(refTable string, refColumns []string, target value.Value, tx TxID) bool {
	t := e.Tables[refTable]
	for _, id := range t.sortedRowIDs() {
		row := t.rows[id]
		val, ok := visibleValue(row, tx)
		if !ok {
			continue
		}
		if val.Project(refColumns).Equal(target) {
			return true
		}
	}
	return false
}

// hasLiveChild reports whether some row of inb.ChildTable, as seen from
// tx, still projects to target on inb.FK.Columns -- the child side of the
// incoming foreign-key check a tombstone must pass at commit.
func (e *Engine) hasLiveChild(inb inboundForeignKey, target value.Value, tx TxID) bool {
	t := e.Tables[inb.ChildTable]
	for _, id := range t.sortedRowIDs() {
		row := t.rows[id]
		val, ok := visibleValue(row, tx)
		if !ok {
			continue
		}
		tuple := val.Project(inb.FK.Columns)
		if hasNilComponent(tuple) {
			continue
		}
		if tuple.Equal(target) {
			return true
		}
	}
	return false
}

func hasNilComponent(v value.Value) bool {
	for _, item := range v.AsTuple() {
		if item.IsNil() {
			return true
		}
	}
	return false
}

// Abort discards every pending write the transaction holds, deletes any
// row it inserted but never committed, and releases all locks.
func (e *Engine) Abort(id TxID) error {
	tx, err := e.mustRunning(id)
	if err != nil {
		return err
	}
	all := make(map[rowRef]bool)
	for ref := range tx.WriteLocks {
		all[ref] = true
	}
	for ref := range tx.ForUpdateLocks {
		all[ref] = true
	}
	for ref := range all {
		t := e.Tables[ref.Table]
		row, ok := t.rows[ref.Row]
		if !ok {
			continue
		}
		if row.hasPending && row.pendingOwner == id {
			row.hasPending = false
			row.pending = nil
			row.pendingTomb = false
		}
		row.lockHolder = 0
		if !row.hasCommitted {
			delete(t.rows, ref.Row)
		}
	}
	tx.WriteLocks = make(map[rowRef]struct{})
	tx.ForUpdateLocks = make(map[rowRef]struct{})
	tx.State = Aborted
	return nil
}

// LockHolder returns the transaction currently holding the row's
// exclusive lock, or 0 if the row is unlocked.
func (e *Engine) LockHolder(table string, id value.RowID) TxID {
	t, ok := e.Tables[table]
	if !ok {
		return 0
	}
	row, ok := t.rows[id]
	if !ok {
		return 0
	}
	return row.lockHolder
}
