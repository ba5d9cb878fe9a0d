package cper

import "errors"

var (
	// ErrMalformed reports a status block whose lengths or offsets violate
	// the header invariants. The whole blob must be rejected.
	ErrMalformed = errors.New("cper: malformed status block")
	// ErrTruncated reports a section list that does not add up: a section
	// claims more bytes than remain, or bytes are left over at the end.
	ErrTruncated = errors.New("cper: truncated section list")
)
