package pager

import "errors"

// ErrEOF signals a read past the current end of file. It is an internal
// control-flow signal: the build pipeline's k-way merge (pkg/build) uses it
// to detect run exhaustion, and it must never surface to a query caller.
var ErrEOF = errors.New("pager: eof")

// ErrReadOnly is returned by any mutating call on a file opened read-only.
var ErrReadOnly = errors.New("pager: file is read-only")
