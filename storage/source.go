package storage

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Source is the random-access byte store a disk image sits on: a host
// file, or an in-memory buffer for the Memory disk variant (spec.md §9).
// Every image codec opens one Source and keeps exclusive ownership of it
// for its lifetime (spec.md §5 "Shared resource policy").
type Source interface {
	io.ReaderAt
	Size() int64
	Close() error

	// WriteAt fails with NotWriteable-style errors at the caller's
	// discretion; a read-only Source should simply not be asked to write.
	WriteAt(p []byte, off int64) (int, error)
	Writable() bool
}

// FileSource is a Source backed by an *os.File.
type FileSource struct {
	f        *os.File
	writable bool
	size     int64
}

// OpenFile wraps an already-open file as a Source. The caller retains
// ownership of f only indirectly: Close on the returned Source closes f.
func OpenFile(f *os.File, writable bool) (*FileSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "storage: stat")
	}
	return &FileSource{f: f, writable: writable, size: info.Size()}, nil
}

func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *FileSource) WriteAt(p []byte, off int64) (int, error) {
	if !s.writable {
		return 0, errors.New("storage: write to read-only file source")
	}
	return s.f.WriteAt(p, off)
}

func (s *FileSource) Size() int64 {
	return s.size
}

func (s *FileSource) Writable() bool {
	return s.writable
}

func (s *FileSource) Close() error {
	return s.f.Close()
}

// MemorySource is a Source backed by an in-memory byte slice, used by the
// disk/memory codec and by tests that build a fresh filesystem image
// without a host file (spec.md §9 "Memory" sum-type member).
type MemorySource struct {
	data     []byte
	writable bool
}

// NewMemorySource wraps data as a Source. If writable, WriteAt overwrites
// bytes within len(data) and rejects writes that would extend it — image
// geometry is fixed at open time (spec.md §3 Disk invariant).
func NewMemorySource(data []byte, writable bool) *MemorySource {
	return &MemorySource{data: data, writable: writable}
}

func (s *MemorySource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s.data)) {
		return 0, errors.New("storage: read offset out of range")
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *MemorySource) WriteAt(p []byte, off int64) (int, error) {
	if !s.writable {
		return 0, errors.New("storage: write to read-only memory source")
	}
	if off < 0 || off+int64(len(p)) > int64(len(s.data)) {
		return 0, errors.New("storage: write offset out of range")
	}
	return copy(s.data[off:], p), nil
}

func (s *MemorySource) Size() int64 {
	return int64(len(s.data))
}

func (s *MemorySource) Writable() bool {
	return s.writable
}

func (s *MemorySource) Close() error {
	return nil
}

// Bytes returns the backing slice directly, for tests that want to
// inspect what was written.
func (s *MemorySource) Bytes() []byte {
	return s.data
}
