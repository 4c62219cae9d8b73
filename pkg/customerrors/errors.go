// Package customerrors defines the sentinel errors shared across the
// indexing engine.
package customerrors

import (
	"errors"
)

var (
	// ErrKeyNotFound should be returned from lookup operations when the
	// lookup key is not found in index/store.
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyTooLarge is returned by index implementations when a key is
	// larger than a configured limit if any.
	ErrKeyTooLarge = errors.New("key is too large")

	// ErrEmptyKey should be returned by backends when an operation is
	// requested with an empty key.
	ErrEmptyKey = errors.New("empty key")

	// ErrImmutable should be returned by backends when write operation
	// (put/del) is attempted on a readonly.
	ErrImmutable = errors.New("operation not allowed in read-only mode")

	ErrNotFound = errors.New("not found")

	// ErrUnsupportedFormat is surfaced when an index file's signature or
	// layout_version doesn't match what this implementation understands.
	// The caller is expected to rebuild the index from the primary store.
	ErrUnsupportedFormat = errors.New("unsupported index file format")

	// ErrTreeFull is raised internally when a leaf cannot grow in place and
	// no relocation via the free-space tracker succeeds. It never surfaces
	// to callers directly: it triggers a full tree rebuild instead.
	ErrTreeFull = errors.New("tree full: relocation failed")

	// ErrDuplicateKey is raised when a unique tree already holds the key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidArgument covers an operator unsupported for an index type,
	// or a malformed query value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIO covers read/write/rename failures against an index file or the
	// build pipeline's scratch files (spec §7 `IO`): surfaced to the
	// caller as-is, with scratch files left in place for a retry.
	ErrIO = errors.New("index I/O failure")
)
