package storage

import "entremets/internal/value"

// Predicate filters rows; Assign computes a row's new value from its
// current value. Both are supplied by internal/sqlexec, which evaluates
// the AST against bound process variables -- storage itself has no
// notion of expressions.
type Predicate func(value.Row) bool
type Assign func(value.Row) value.Row

// Read returns every visible row of table matching predicate, in a
// deterministic row-id order. Read-committed never acquires locks on
// plain reads.
func (e *Engine) Read(tx TxID, table string, pred Predicate) ([]value.Row, error) {
	t, ok := e.Tables[table]
	if !ok {
		return nil, &DDLError{Op: "select", Message: "unknown table " + table}
	}
	var out []value.Row
	for _, id := range t.sortedRowIDs() {
		val, ok := visibleValue(t.rows[id], tx)
		if !ok {
			continue
		}
		if pred == nil || pred(val) {
			out = append(out, val)
		}
	}
	return out, nil
}

// checkUnique reports a constraint error if candidate would collide on
// any declared unique index with some other row: its value visible to tx,
// or another transaction's pending (non-tombstone) value. Tuples with a
// Nil component are exempt, matching standard SQL NULL-distinctness.
func checkUnique(t *Table, tx TxID, candidate value.Row, exclude value.RowID, hasExclude bool) error {
	for _, idx := range t.UniqueIndexes {
		target := candidate.Project(idx)
		if hasNilComponent(target) {
			continue
		}
		for id, row := range t.rows {
			if hasExclude && id == exclude {
				continue
			}
			if val, ok := visibleValue(row, tx); ok && val.Project(idx).Equal(target) {
				return &ConstraintError{Kind: "unique", Table: t.Name, Message: "duplicate value for " + target.String()}
			}
			if row.hasPending && row.pendingOwner != tx && !row.pendingTomb && row.pending.Project(idx).Equal(target) {
				return &ConstraintError{Kind: "unique", Table: t.Name, Message: "duplicate value for " + target.String() + " pending in another transaction"}
			}
		}
	}
	return nil
}

// Insert adds a new row as tx's pending write. The row is immediately
// unique-checked (§4.1: "reject if any other row ... currently projects
// to the same tuple") and its lock is held until commit or abort.
func (e *Engine) Insert(tx TxID, table string, values value.Row) (value.RowID, error) {
	t, ok := e.Tables[table]
	if !ok {
		return 0, &DDLError{Op: "insert", Message: "unknown table " + table}
	}
	txn, err := e.mustRunning(tx)
	if err != nil {
		return 0, err
	}
	if err := checkUnique(t, tx, values, 0, false); err != nil {
		return 0, err
	}
	t.nextRowID++
	id := t.nextRowID
	t.rows[id] = &versionedRow{
		hasPending:   true,
		pending:      values.Clone(),
		pendingOwner: tx,
		lockHolder:   tx,
	}
	txn.WriteLocks[rowRef{table, id}] = struct{}{}
	return id, nil
}

// Seed inserts a row directly as committed, with no owning transaction.
// Used only for the init block's literal seed data, which exists before
// any process begins running and so is never subject to MVCC visibility
// rules.
func (e *Engine) Seed(table string, values value.Row) error {
	t, ok := e.Tables[table]
	if !ok {
		return &DDLError{Op: "seed", Message: "unknown table " + table}
	}
	if err := checkUnique(t, 0, values, 0, false); err != nil {
		return err
	}
	t.nextRowID++
	t.rows[t.nextRowID] = &versionedRow{
		hasCommitted: true,
		committed:    values.Clone(),
		committedBy:  0,
	}
	return nil
}

// matching returns the live rows of table visible to tx that satisfy
// pred, in deterministic order.
func (e *Engine) matching(t *Table, tx TxID, pred Predicate) []value.RowID {
	var ids []value.RowID
	for _, id := range t.sortedRowIDs() {
		val, ok := visibleValue(t.rows[id], tx)
		if !ok {
			continue
		}
		if pred == nil || pred(val) {
			ids = append(ids, id)
		}
	}
	return ids
}

// lockConflict returns the id of another running transaction already
// holding the lock on any of ids, or 0 if none conflicts.
func (t *Table) lockConflict(tx TxID, ids []value.RowID) TxID {
	for _, id := range ids {
		row := t.rows[id]
		if row.locked() && row.lockHolder != tx {
			return row.lockHolder
		}
	}
	return 0
}

// TryUpdate attempts to lock and rewrite every row matching pred as one
// atomic, all-or-nothing step (§4.2's acquire-ordering rule, simplified
// to a single attempt rather than incrementally retained partial locks
// -- see DESIGN.md). If any matched row is held by another running
// transaction, the update is not applied and blockedBy names the holder.
func (e *Engine) TryUpdate(tx TxID, table string, pred Predicate, assign Assign) (updated int, blockedBy TxID, err error) {
	t, ok := e.Tables[table]
	if !ok {
		return 0, 0, &DDLError{Op: "update", Message: "unknown table " + table}
	}
	txn, err := e.mustRunning(tx)
	if err != nil {
		return 0, 0, err
	}
	ids := e.matching(t, tx, pred)
	if blocker := t.lockConflict(tx, ids); blocker != 0 {
		return 0, blocker, nil
	}
	newVals := make(map[value.RowID]value.Row, len(ids))
	for _, id := range ids {
		cur, _ := visibleValue(t.rows[id], tx)
		nv := assign(cur)
		if err := checkUnique(t, tx, nv, id, true); err != nil {
			return 0, 0, err
		}
		newVals[id] = nv
	}
	for _, id := range ids {
		row := t.rows[id]
		row.hasPending = true
		row.pending = newVals[id]
		row.pendingTomb = false
		row.pendingOwner = tx
		row.lockHolder = tx
		txn.WriteLocks[rowRef{table, id}] = struct{}{}
	}
	return len(ids), 0, nil
}

// TryDelete is TryUpdate's tombstoning counterpart.
func (e *Engine) TryDelete(tx TxID, table string, pred Predicate) (deleted int, blockedBy TxID, err error) {
	t, ok := e.Tables[table]
	if !ok {
		return 0, 0, &DDLError{Op: "delete", Message: "unknown table " + table}
	}
	txn, err := e.mustRunning(tx)
	if err != nil {
		return 0, 0, err
	}
	ids := e.matching(t, tx, pred)
	if blocker := t.lockConflict(tx, ids); blocker != 0 {
		return 0, blocker, nil
	}
	for _, id := range ids {
		row := t.rows[id]
		row.hasPending = true
		row.pending = nil
		row.pendingTomb = true
		row.pendingOwner = tx
		row.lockHolder = tx
		txn.WriteLocks[rowRef{table, id}] = struct{}{}
	}
	return len(ids), 0, nil
}

// TrySelectForUpdate acquires the exclusive row lock on every matching
// row without installing a semantic write: it clones the currently
// visible value into the pending slot purely to record lock ownership,
// so that "a row has a pending value iff some running transaction owns
// its lock" continues to hold even for a lock taken by intent alone.
func (e *Engine) TrySelectForUpdate(tx TxID, table string, pred Predicate) (rows []value.Row, blockedBy TxID, err error) {
	t, ok := e.Tables[table]
	if !ok {
		return nil, 0, &DDLError{Op: "select for update", Message: "unknown table " + table}
	}
	txn, err := e.mustRunning(tx)
	if err != nil {
		return nil, 0, err
	}
	ids := e.matching(t, tx, pred)
	if blocker := t.lockConflict(tx, ids); blocker != 0 {
		return nil, blocker, nil
	}
	out := make([]value.Row, 0, len(ids))
	for _, id := range ids {
		row := t.rows[id]
		val, _ := visibleValue(row, tx)
		out = append(out, val)
		if row.lockHolder == tx && row.hasPending && row.pendingOwner == tx {
			continue // already owns a pending write or a prior for-update clone
		}
		row.hasPending = true
		row.pending = val.Clone()
		row.pendingTomb = false
		row.pendingOwner = tx
		row.lockHolder = tx
		txn.ForUpdateLocks[rowRef{table, id}] = struct{}{}
	}
	return out, 0, nil
}
