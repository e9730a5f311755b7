package checker

import "fmt"

// CheckError reports a failure to evaluate a property expression against
// a discovered world state -- a malformed reference, or a property whose
// expression does not reduce to a boolean.
type CheckError struct {
	Property string
	Message  string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("checker: property %q: %s", e.Property, e.Message)
}
