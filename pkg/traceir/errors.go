package traceir

import "github.com/efficios/go-debuginfofilter/pkg/ierrors"

// ierrMalformed wraps a structurally-inconsistent input object (input and
// output metadata diverged, e.g. a field present without its field class)
// as a fatal error for the current Iterator.Next call (spec.md §7: "errors
// in constructing a copy of metadata or a message are fatal for the
// current next() call").
func ierrMalformed(op, msg string) error {
	return ierrors.Fatal(ierrors.CodeMalformedMetadata, "traceir", op, msg)
}
