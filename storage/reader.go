// Package storage adapts an os.File (or any io.ReadWriteSeeker) for the
// byte-level access patterns the disk codecs need: buffered peeks ahead of
// a read, little-endian scalar reads, and absolute-offset sector access.
//
// This mirrors the teacher's retroio/storage package, whose own source was
// trimmed from the retrieval pack; its contract is reconstructed here from
// every surviving call site (storage.NewReader(f), reader.Peek(1),
// reader.PeekShort(), reader.ReadByte(), and its use as the io.Reader
// binary.Read expects throughout retroio/amstrad and retroio/spectrum).
package storage

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Reader wraps an io.Reader with small-lookahead peeking, matching the
// call patterns of retroio's storage.Reader.
type Reader struct {
	br     *bufio.Reader
	offset int64
}

// NewReader wraps r for buffered, peekable reading.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 4096)}
}

// NewSourceReader returns a sequential Reader over the whole of a Source,
// starting at byte 0.
func NewSourceReader(src Source) *Reader {
	return NewReader(io.NewSectionReader(src, 0, src.Size()))
}

// Read implements io.Reader so a *Reader can be passed directly to
// binary.Read.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.br.Read(p)
	r.offset += int64(n)
	return n, err
}

// ReadByte reads and returns a single byte, matching retroio's
// reader.ReadByte() (no error is surfaced at call sites in the pack, but
// returning one keeps truncated-stream detection honest).
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, errors.Wrap(err, "storage: read byte")
	}
	r.offset++
	return b, nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrapf(err, "storage: read %d bytes", n)
	}
	return buf, nil
}

// Peek returns the next n bytes without advancing the read position.
func (r *Reader) Peek(n int) ([]byte, error) {
	b, err := r.br.Peek(n)
	if err != nil {
		return nil, errors.Wrap(err, "storage: peek")
	}
	return b, nil
}

// PeekShort returns the next two bytes as a little-endian uint16 without
// advancing the read position, matching retroio's reader.PeekShort() used
// to sanity-check a block's declared length before committing to parse it.
func (r *Reader) PeekShort() (uint16, error) {
	b, err := r.Peek(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadShort reads a little-endian uint16.
func (r *Reader) ReadShort() (uint16, error) {
	var v uint16
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, errors.Wrap(err, "storage: read short")
	}
	return v, nil
}

// Offset reports the number of bytes consumed from the underlying stream
// so far.
func (r *Reader) Offset() int64 {
	return r.offset
}
