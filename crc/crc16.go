// Package crc implements the CRC-16/CCITT checksum used by the MFM-encoded
// address and data records found on HFE and DMK disk images.
package crc

// CCITT is a running CRC-16/CCITT accumulator: polynomial 0x1021, initial
// value 0xFFFF, no final XOR, computed MSB-first one byte at a time.
//
// The zero value is not valid; use New.
type CCITT struct {
	state uint16
}

// New returns a CCITT accumulator seeded to the standard initial value
// 0xFFFF.
func New() *CCITT {
	return &CCITT{state: 0xFFFF}
}

// Feed folds one byte into the running CRC and returns the accumulator for
// convenient chaining.
func (c *CCITT) Feed(b byte) *CCITT {
	c.state ^= uint16(b) << 8
	for i := 0; i < 8; i++ {
		if c.state&0x8000 != 0 {
			c.state = (c.state << 1) ^ 0x1021
		} else {
			c.state <<= 1
		}
	}
	return c
}

// FeedBytes folds an entire byte slice into the running CRC.
func (c *CCITT) FeedBytes(bs []byte) *CCITT {
	for _, b := range bs {
		c.Feed(b)
	}
	return c
}

// Sum returns the CRC accumulated so far without modifying the state.
func (c *CCITT) Sum() uint16 {
	return c.state
}

// Bytes returns the CRC as a big-endian two-byte slice, the order it is
// written to media in IDAM/DAM records (spec §4.1, §6).
func (c *CCITT) Bytes() [2]byte {
	return [2]byte{byte(c.state >> 8), byte(c.state)}
}

// Checksum computes the CRC-16/CCITT of a byte sequence in one call.
func Checksum(bs []byte) uint16 {
	return New().FeedBytes(bs).Sum()
}
