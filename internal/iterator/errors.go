package iterator

import "github.com/efficios/go-debuginfofilter/pkg/ierrors"

// ierrMalformed flags a pump-level invariant violation (a STREAM_END or
// PACKET_END referencing an object this iterator never mapped) as fatal
// for the current Next call (spec.md §7).
func ierrMalformed(op, msg string) error {
	return ierrors.Fatal(ierrors.CodeMalformedMetadata, "iterator", op, msg)
}
