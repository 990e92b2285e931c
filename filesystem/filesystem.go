// Package filesystem defines the common contract every on-disk filesystem
// in this module implements (spec.md §4.4): list/read/write/delete/rename
// by name, free-space accounting, filename validation, and a consistency
// check, all layered on a disk.Disk rather than any one image format.
package filesystem

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/dragontools/dragondisk/disk"
)

// Kind enumerates the filesystem-layer error classes (spec.md §4.4, §7),
// distinct from disk.Kind's image-layer classes.
type Kind int

const (
	KindFileNotFound Kind = iota
	KindFileExists
	KindFilesystemFull
	KindInvalidFilename
	KindConsistencyError
)

func (k Kind) String() string {
	switch k {
	case KindFileNotFound:
		return "file not found"
	case KindFileExists:
		return "file exists"
	case KindFilesystemFull:
		return "filesystem full"
	case KindInvalidFilename:
		return "invalid filename"
	case KindConsistencyError:
		return "consistency error"
	default:
		return "unknown"
	}
}

// Error is the filesystem layer's tagged error type, mirroring disk.Error.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// NewError builds a Kind-tagged filesystem error with a formatted message.
func NewError(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err (or one of its wrapped causes) is a
// filesystem Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			fe = e
			break
		}
		err = errors.Unwrap(err)
	}
	return fe != nil && fe.Kind == kind
}

// FileInfo describes one catalog entry without reading its data (spec.md
// §4.4 "get_file_info").
type FileInfo struct {
	Name     string
	Size     int // logical byte length, filesystem-specific meaning of "logical"
	IsDir    bool
	SectorCH []disk.CHS // sectors allocated to this entry, in file order
}

// File is a fully-read file: its catalog metadata plus its decoded bytes.
type File struct {
	Info FileInfo
	Data []byte
}

// CheckReport is the structured result of a consistency scan (spec.md §9
// supplemented "Check" operation): each filesystem's Check populates
// Errors with one human-readable entry per invariant violation found, and
// leaves it empty on a clean volume.
type CheckReport struct {
	Errors []string
}

// Filesystem is the common operation set every {RsDos, DragonDos, Flex,
// OS-9} implementation satisfies (spec.md §4.4).
type Filesystem interface {
	// ListFiles returns every catalog entry, directories included where
	// the filesystem has them (OS-9 only).
	ListFiles() ([]FileInfo, error)

	FileExists(name string) (bool, error)

	ReadFile(name string) (File, error)

	// WriteFile creates or overwrites name with data. Implementations
	// that cannot derive a write path from their documented format
	// return a KindConsistencyError-wrapped explanation instead of
	// silently truncating or corrupting the volume.
	WriteFile(name string, data []byte) error

	DeleteFile(name string) error

	RenameFile(oldName, newName string) error

	// Free reports free space in bytes, the filesystem's own notion of
	// an allocation unit multiplied out (spec.md §4.4, §9 Open Questions).
	Free() (int, error)

	// IsValidFilename reports whether name could be used with WriteFile
	// without a KindInvalidFilename error.
	IsValidFilename(name string) bool

	// Check scans directory and allocation structures for internal
	// consistency, never mutating the volume.
	Check() (CheckReport, error)

	GetFileInfo(name string) (FileInfo, error)

	// IsSectorAllocated reports whether chs currently belongs to some
	// file or filesystem structure.
	IsSectorAllocated(chs disk.CHS) (bool, error)
}
