package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrNoClasses means a dump was requested with nothing eligible to
	// archive. Not a failure of the pipeline, just nothing to do.
	ErrNoClasses = errors.New("no classes to archive")

	// ErrCapacity means the reserved buffer could not hold the gathered
	// metadata. The size estimate is reported so the caller can raise it.
	ErrCapacity = errors.New("archive buffer capacity exceeded")

	// ErrBaseMismatch means a dynamic archive was opened against a base
	// archive it was not built on top of.
	ErrBaseMismatch = errors.New("base archive mismatch")

	// ErrBadHeader covers an unreadable, truncated, or checksum-failing
	// header. An archive in this state is rejected as a whole.
	ErrBadHeader = errors.New("invalid archive header")

	// ErrBadRegion means a region payload failed its checksum.
	ErrBadRegion = errors.New("archive region corrupted")
)

// InvariantError reports a broken relocation invariant: a pointer that was
// never registered with the ledger, or an object whose markers were
// cleared and not restored before encoding. These are builder bugs, so the
// message carries enough identity to find the offending object.
type InvariantError struct {
	Op     string // phase or operation that tripped the check
	Object string // description of the holder object
	Detail string
}

func (e *InvariantError) Error() string {
	if e.Object == "" {
		return fmt.Sprintf("relocation invariant violated in %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("relocation invariant violated in %s for %s: %s", e.Op, e.Object, e.Detail)
}

func invariantf(op string, obj any, format string, args ...any) *InvariantError {
	return &InvariantError{
		Op:     op,
		Object: describe(obj),
		Detail: fmt.Sprintf(format, args...),
	}
}
