package tape

import (
	"github.com/pkg/errors"

	"github.com/dragontools/dragondisk/bitstream"
)

// DataBlock is a framed Data-type block's payload together with the
// checksum it validated against.
type DataBlock struct {
	Payload  []byte
	Checksum byte
}

// Stream wraps a raw tape byte image for bit-level block framing
// (spec.md §4.5), reading least-significant-bit first to match the
// cassette encoding convention (see bitstream.LSBFirst).
type Stream struct {
	r *bitstream.Reader
	w *bitstream.Writer
}

// NewStream wraps data for sequential block reading.
func NewStream(data []byte) *Stream {
	return &Stream{r: bitstream.NewReader(data, bitstream.LSBFirst)}
}

// NewWriteStream creates an empty Stream for sequential block writing.
func NewWriteStream() *Stream {
	return &Stream{w: bitstream.NewWriter(bitstream.LSBFirst)}
}

// Next reads and validates the next framed block, dispatching to
// Header or DataBlock on the block's type byte (spec.md §4.5).
func (s *Stream) Next(minLeader int) (interface{}, error) {
	if s.r == nil {
		return nil, errors.New("tape: stream not open for reading")
	}
	block, err := ReadBlock(s.r, minLeader)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case TypeHeader:
		return DecodeHeader(block.Payload), nil
	case TypeData:
		return DataBlock{Payload: block.Payload, Checksum: block.Checksum}, nil
	case TypeEndOfFile:
		return nil, nil
	default:
		return nil, errors.Errorf("tape: unrecognised block type 0x%02x", block.Type)
	}
}

// WriteHeader frames h as a Header block preceded by leaderLength
// leader bytes.
func (s *Stream) WriteHeader(h Header, leaderLength int) {
	WriteBlock(s.w, h.ToBlock(), leaderLength)
}

// WriteData frames payload as a Data block preceded by leaderLength
// leader bytes.
func (s *Stream) WriteData(payload []byte, leaderLength int) {
	block := Block{Type: TypeData, Payload: payload}
	WriteBlock(s.w, block, leaderLength)
}

// WriteEndOfFile frames an empty EndOfFile block.
func (s *Stream) WriteEndOfFile(leaderLength int) {
	WriteBlock(s.w, Block{Type: TypeEndOfFile}, leaderLength)
}

// Bytes returns the accumulated write-side image.
func (s *Stream) Bytes() []byte {
	return s.w.Bytes()
}
