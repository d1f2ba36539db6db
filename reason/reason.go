// Package reason supplies the reason-phrase lookup the stream needs
// when writing a status line, keyed by numeric status code.
package reason

import (
	"net/http"
	"strconv"
)

// overrides covers informational/historical codes net/http.StatusText
// leaves blank in some Go versions, plus a couple of phrases this
// library prefers over the stdlib's.
var overrides = map[int]string{
	103: "Early Hints",
	418: "I'm a Teapot",
}

// Phrase returns the reason phrase for status, falling back to a
// generic "status N" when no table entry exists — write_headers must
// still be able to emit a status line for a code nobody has named.
func Phrase(status int) string {
	if p, ok := overrides[status]; ok {
		return p
	}
	if p := http.StatusText(status); p != "" {
		return p
	}
	return "status " + strconv.Itoa(status)
}
