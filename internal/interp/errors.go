package interp

import "fmt"

// StepError reports a failure to execute a process's current statement
// that is not a lock conflict (which is reported via Result.Blocked
// instead): a malformed AST, or a storage-layer error that escaped
// static type checking.
type StepError struct {
	Process string
	Message string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("interp: process %s: %s", e.Process, e.Message)
}
