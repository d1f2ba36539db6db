package stream

import "strconv"

// atoiOrPanic parses the decimal :status of a header set handed to
// WriteHeaders (set by the caller, or by this package when the set was
// read with GetHeaders), so a parse failure means the caller supplied
// a malformed :status pseudo-header.
func atoiOrPanic(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		invariant("malformed :status value " + s)
	}
	return n
}
