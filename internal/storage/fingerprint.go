package storage

import (
	"sort"
	"strings"
)

// TxLabel maps a TxID to a canonical, schedule-independent label. The
// scheduler supplies one that labels a transaction by the name of the
// process that owns it plus that process's transaction ordinal, since
// raw TxID values are assigned in begin order and so are not stable
// across interleavings that reach an otherwise-identical state by
// starting transactions in a different order (§4.4).
type TxLabel func(TxID) string

// Fingerprint renders a canonical string representation of the engine's
// entire state: every table's rows as a sorted multiset, with all
// transaction references rewritten through label so that permuting raw
// RowID/TxID assignment never changes the fingerprint of an otherwise
// identical state.
func Fingerprint(e *Engine, label TxLabel) string {
	var b strings.Builder
	names := append([]string(nil), e.tableOrder...)
	sort.Strings(names)
	for _, name := range names {
		b.WriteString("table ")
		b.WriteString(name)
		b.WriteString(":\n")
		rows := make([]string, 0, len(e.Tables[name].rows))
		for _, row := range e.Tables[name].rows {
			rows = append(rows, fingerprintRow(row, label))
		}
		sort.Strings(rows)
		for _, r := range rows {
			b.WriteString("  ")
			b.WriteString(r)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func fingerprintRow(row *versionedRow, label TxLabel) string {
	var b strings.Builder
	if row.hasCommitted {
		if row.committedTomb {
			b.WriteString("committed=<deleted>")
		} else {
			b.WriteString("committed=")
			b.WriteString(row.committed.String())
		}
		b.WriteString(" by=")
		b.WriteString(label(row.committedBy))
	} else {
		b.WriteString("committed=<none>")
	}
	b.WriteString(" ")
	if row.hasPending {
		if row.pendingTomb {
			b.WriteString("pending=<deleted>")
		} else {
			b.WriteString("pending=")
			b.WriteString(row.pending.String())
		}
		b.WriteString(" owner=")
		b.WriteString(label(row.pendingOwner))
	} else {
		b.WriteString("pending=<none>")
	}
	b.WriteString(" lock=")
	b.WriteString(label(row.lockHolder))
	return b.String()
}
