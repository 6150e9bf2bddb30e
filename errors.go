package forth

import "fmt"

// fatalError reports an illegal opcode, an out-of-bounds memory access, or a
// stack bounds violation. It poisons the instance: INVALID is set and every
// later API call refuses to run (see SPEC_FULL §7).
type fatalError struct{ msg string }

func (e *fatalError) Error() string { return fmt.Sprintf("fatal: %s", e.msg) }

// recoverableError reports an unknown word, a numeric parse failure, a
// stack under/overflow at a checked site, or a divide by zero. Disposition
// is governed by ERROR_HANDLER (errorRecover/errorHalt/errorInvalidate).
type recoverableError struct{ msg string }

func (e *recoverableError) Error() string { return fmt.Sprintf("error: %s", e.msg) }

// diagnostic formats a one-line message in the `( kind "text" )` style the
// original prints to stderr, chosen so a transcript of interpreter output
// still reads as a sequence of Forth comments.
func diagnostic(kind, format string, args ...interface{}) string {
	return fmt.Sprintf("( %s \"%s\" )\n", kind, fmt.Sprintf(format, args...))
}
