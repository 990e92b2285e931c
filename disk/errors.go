package disk

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind tags a disk-level error with one of the taxonomy entries from
// spec.md §7, so a caller can react to the category rather than parsing
// message text.
type Kind int

const (
	// KindFormat covers header magic mismatches, impossible geometry, and
	// out-of-range enumerants.
	KindFormat Kind = iota
	// KindSectorNotFound means the CHS triple is not present on this image.
	KindSectorNotFound
	// KindNotWriteable means a write was attempted on a read-only handle.
	KindNotWriteable
	// KindChecksum means a sector or record CRC failed to verify.
	KindChecksum
	// KindEndOfStream means the underlying source was truncated.
	KindEndOfStream
	// KindDisposed means a handle was used after Dispose.
	KindDisposed
)

func (k Kind) String() string {
	switch k {
	case KindFormat:
		return "FormatError"
	case KindSectorNotFound:
		return "SectorNotFound"
	case KindNotWriteable:
		return "NotWriteable"
	case KindChecksum:
		return "ChecksumError"
	case KindEndOfStream:
		return "EndOfStream"
	case KindDisposed:
		return "ObjectDisposed"
	default:
		return "UnknownError"
	}
}

// Error is a tagged disk-layer error. Wrap it with github.com/pkg/errors
// at each call site that adds context, the way the teacher wraps
// DiskInformation/TrackInformation read failures.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// NewError builds a Kind-tagged error with a formatted message.
func NewError(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err (or one of its wrapped causes) is a disk
// Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var derr *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			derr = e
			break
		}
		err = errors.Unwrap(err)
	}
	return derr != nil && derr.Kind == kind
}
