// Package tape implements the cassette tape block framer: leader
// detection, non-byte-aligned sync search, and checksummed block
// read/write (spec.md §4.5).
package tape

import (
	"github.com/pkg/errors"

	"github.com/dragontools/dragondisk/bitstream"
)

// Block types, dispatched on the framer's type byte.
const (
	TypeHeader    byte = 0x00
	TypeData      byte = 0x01
	TypeEndOfFile byte = 0xFF
)

const (
	leaderByte = 0x55
	syncByte   = 0x3C
)

// Block is one framed tape block: a type byte, a payload, and the
// checksum the framer validated it against.
type Block struct {
	Type     byte
	Payload  []byte
	Checksum byte
}

// checksum computes type + length + Σpayload mod 256, matching the
// validation rule in spec.md §4.5.
func checksum(blockType byte, length byte, payload []byte) byte {
	sum := int(blockType) + int(length)
	for _, b := range payload {
		sum += int(b)
	}
	return byte(sum % 256)
}

// lengthByte encodes a payload length as the wire's length byte: 0xFF
// is the sentinel for an explicit zero-length payload, and for data
// blocks 0x00 stands for a full 256-byte payload (the two special
// cases spec.md §4.5 calls out).
func lengthByte(payloadLen int) byte {
	if payloadLen == 0 {
		return 0xFF
	}
	if payloadLen == 256 {
		return 0x00
	}
	return byte(payloadLen)
}

// payloadLen decodes the wire length byte under the same rule.
func payloadLen(b byte, blockType byte) int {
	if b == 0xFF {
		return 0
	}
	if b == 0x00 && blockType == TypeData {
		return 256
	}
	return int(b)
}

// ErrSyncNotFound is returned when ReadBlock exhausts the stream
// without finding a qualifying leader/sync sequence.
var ErrSyncNotFound = errors.New("tape: sync mark not found")

// ReadBlock scans r for at least minLeader consecutive 0x55 leader
// bytes followed by a 0x3C sync byte appearing at any bit offset (the
// search is not byte-aligned), then reads and validates one framed
// block.
func ReadBlock(r *bitstream.Reader, minLeader int) (Block, error) {
	if err := scanForSync(r, minLeader); err != nil {
		return Block{}, err
	}

	blockType, err := r.ReadByte()
	if err != nil {
		return Block{}, errors.Wrap(err, "tape: read block type")
	}
	lenByte, err := r.ReadByte()
	if err != nil {
		return Block{}, errors.Wrap(err, "tape: read block length")
	}
	n := payloadLen(lenByte, blockType)

	payload := make([]byte, n)
	for i := range payload {
		b, err := r.ReadByte()
		if err != nil {
			return Block{}, errors.Wrapf(err, "tape: read payload byte %d", i)
		}
		payload[i] = b
	}

	gotChecksum, err := r.ReadByte()
	if err != nil {
		return Block{}, errors.Wrap(err, "tape: read checksum")
	}
	want := checksum(blockType, lenByte, payload)
	if gotChecksum != want {
		return Block{}, errors.Errorf("tape: checksum mismatch: got 0x%02x want 0x%02x", gotChecksum, want)
	}

	return Block{Type: blockType, Payload: payload, Checksum: gotChecksum}, nil
}

// scanForSync consumes leader bytes and the sync byte, positioning r's
// bit cursor immediately after the sync byte. Leader bytes are counted
// byte-aligned; once enough have been seen, the sync byte is searched
// for at every bit offset within the following byte window, since on
// real tape the 0x3C sync does not necessarily land on the leader's
// byte boundary.
func scanForSync(r *bitstream.Reader, minLeader int) error {
	leaderRun := 0
	for {
		startBit := r.BitPos()
		b, err := r.ReadByte()
		if err != nil {
			return ErrSyncNotFound
		}

		if b == leaderByte {
			leaderRun++
			continue
		}

		if leaderRun >= minLeader {
			for shift := 0; shift < 8; shift++ {
				if err := r.SeekBit(startBit + shift); err != nil {
					break
				}
				v, err := r.ReadByte()
				if err == nil && v == syncByte {
					return nil
				}
			}
		}

		leaderRun = 0
		if err := r.SeekBit(startBit + 8); err != nil {
			return ErrSyncNotFound
		}
	}
}

// WriteBlock emits leaderLength 0x55 bytes, a 0x3C sync byte, then the
// block's type/length/payload/checksum, all byte-aligned from the
// current stream position.
func WriteBlock(w *bitstream.Writer, block Block, leaderLength int) {
	for i := 0; i < leaderLength; i++ {
		w.WriteByte(leaderByte)
	}
	w.WriteByte(syncByte)

	lenByte := lengthByte(len(block.Payload))
	w.WriteByte(block.Type)
	w.WriteByte(lenByte)
	for _, b := range block.Payload {
		w.WriteByte(b)
	}
	w.WriteByte(checksum(block.Type, lenByte, block.Payload))
}
