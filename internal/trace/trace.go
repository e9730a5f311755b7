// Package trace renders a counter-example path (§6's trace format) as
// human-readable, optionally colorized output: the initial state, one
// block per transition naming which process stepped and what it did,
// its local variable bindings, the resulting table contents, and --
// when the path ends in an unresolvable stall -- a deadlock header.
package trace

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"entremets/internal/checker"
	"entremets/internal/scheduler"
	"entremets/internal/storage"
	"entremets/internal/value"
)

// Options controls rendering. Color disables ANSI output when false, for
// redirected or non-terminal output.
type Options struct {
	Color bool
}

// Render writes res's counter-example path, or a clean "no counter
// example" line when res was not violated.
func Render(res *checker.Result, statesExplored int, opts Options) string {
	var b strings.Builder
	red, green, cyan := color.New(color.FgRed), color.New(color.FgGreen), color.New(color.FgCyan)
	if !opts.Color {
		red.DisableColor()
		green.DisableColor()
		cyan.DisableColor()
	}

	if !res.Violated {
		green.Fprintln(&b, "No counter example found")
		fmt.Fprintf(&b, "States explored: %d\n", statesExplored)
		return b.String()
	}

	red.Fprintf(&b, "property %q violated (%s)\n", res.Property, res.Op)
	for i, node := range res.Path {
		if i == 0 {
			b.WriteString("Initial state:\n")
			writeTables(&b, node.State.Engine)
			continue
		}
		cyan.Fprintf(&b, "Process %s: %s\n", node.Via.Process, node.Via.Description)
		writeLocalState(&b, node.State)
		writeTables(&b, node.State.Engine)
	}
	if res.Path[len(res.Path)-1].Deadlock {
		red.Fprintln(&b, "Deadlock: no admissible transition")
	}
	fmt.Fprintf(&b, "States explored: %d\n", statesExplored)
	return b.String()
}

func writeLocalState(b *strings.Builder, ws *scheduler.WorldState) {
	b.WriteString("  Local State {")
	vars := ws.MergedVars()
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)
	for i, n := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s: %s", n, vars[n].String())
	}
	b.WriteString("}\n")
}

func writeTables(b *strings.Builder, engine *storage.Engine) {
	for _, name := range engine.TableNames() {
		rows, err := engine.Read(0, name, nil)
		if err != nil {
			continue
		}
		cols := engine.Tables[name].Columns
		fmt.Fprintf(b, "  %s (%s)\n", name, strings.Join(cols, ", "))
		for _, row := range sortedRows(rows, cols) {
			vals := make([]string, len(cols))
			for i, c := range cols {
				if v, ok := row[c]; ok {
					vals[i] = v.String()
				} else {
					vals[i] = value.Nil.String()
				}
			}
			fmt.Fprintf(b, "    (%s)\n", strings.Join(vals, ", "))
		}
	}
}

// sortedRows orders rows deterministically by their column values in
// declared column order, so the same committed content always renders
// identically regardless of internal row id allocation.
func sortedRows(rows []value.Row, cols []string) []value.Row {
	out := append([]value.Row(nil), rows...)
	sort.Slice(out, func(i, j int) bool {
		for _, c := range cols {
			a, b := out[i][c], out[j][c]
			if a.Equal(b) {
				continue
			}
			return a.String() < b.String()
		}
		return false
	})
	return out
}
