package typecheck

import "fmt"

// NameError reports an unresolved table, column, variable, or process
// reference.
type NameError struct {
	Message string
}

func (e *NameError) Error() string { return fmt.Sprintf("typecheck: %s", e.Message) }

// TypeError reports a scalar type mismatch.
type TypeError struct {
	Context string
	Message string
}

func (e *TypeError) Error() string { return fmt.Sprintf("typecheck: %s: %s", e.Context, e.Message) }
