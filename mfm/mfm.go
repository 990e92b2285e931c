// Package mfm implements Modified Frequency Modulation encoding and
// decoding with IBM-style A1 sync-mark detection (spec.md §4.2).
//
// MFM turns each data bit into a (clock, data) media-bit pair:
// clock = !prevData && !data; data is written through unchanged. The A1
// sync mark is an illegal pattern with a missing clock bit, used to mark
// the start of every IDAM/DAM record (spec.md §6, GLOSSARY "Sync mark").
package mfm

import (
	"github.com/dragontools/dragondisk/bitstream"
)

// syncPattern16 is the 16 raw media bits of one A1 sync mark, written
// MSB-first as the value 0x4489 (spec.md §4.2, §6).
const syncPattern16 = 0x4489

// SyncByte is the decoded byte value (0xA1) a sync mark stands in for.
const SyncByte = 0xA1

// Encoder writes MFM-encoded bytes to an internal media-bit buffer.
//
// Media bits are packed LSB-first into the output byte stream: the first
// bit emitted for a cell lands in bit 0 of the current output byte. This
// is the packing spec.md §4.2's parenthetical refers to when it gives the
// sync mark as "0x44 0x89 when MSB-first, written as 0x22 0x91 when the
// reader takes the decoded representation" — 0x22/0x91 are 0x44/0x89 with
// each byte's bits reversed, which is exactly this packing order.
type Encoder struct {
	w        *bitstream.Writer
	prevData byte
}

// NewEncoder returns an Encoder with no previously written data bit (the
// implicit predecessor of the first written byte is 0).
func NewEncoder() *Encoder {
	return &Encoder{w: bitstream.NewWriter(bitstream.LSBFirst)}
}

// WriteByte emits 16 media bits for one decoded data byte, most
// significant bit first.
func (e *Encoder) WriteByte(b byte) {
	for i := 7; i >= 0; i-- {
		bit := (b >> uint(i)) & 1
		clock := byte(0)
		if e.prevData == 0 && bit == 0 {
			clock = 1
		}
		e.w.WriteBit(clock)
		e.w.WriteBit(bit)
		e.prevData = bit
	}
}

// WriteBytes emits each byte of bs in turn.
func (e *Encoder) WriteBytes(bs []byte) {
	for _, b := range bs {
		e.WriteByte(b)
	}
}

// WriteSync emits the canonical A1 sync pattern (missing-clock-bit
// illegal pattern) and resets the encoder's previous-data-bit state to 0,
// so the following WriteByte clocks its first bit as if a 0 data bit
// preceded it (a 0x00 after a sync encodes as 0x55 0x55).
func (e *Encoder) WriteSync() {
	for i := 15; i >= 0; i-- {
		e.w.WriteBit(byte((syncPattern16 >> uint(i)) & 1))
	}
	e.prevData = 0
}

// Bytes returns the encoded media-bit stream accumulated so far.
func (e *Encoder) Bytes() []byte {
	return e.w.Bytes()
}

// Decoder reads MFM-encoded media bits back into decoded bytes, flagging
// which ones were produced from an A1 sync mark rather than the regular
// clock/data table.
type Decoder struct {
	r *bitstream.Reader
}

// NewDecoder wraps an MFM-encoded byte slice (e.g. one HFE/DMK raw track)
// for decoding.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{r: bitstream.NewReader(data, bitstream.LSBFirst)}
}

// BitPos reports the decoder's current bit offset into the media stream.
func (d *Decoder) BitPos() int {
	return d.r.BitPos()
}

// SeekBit repositions the decoder's bit cursor, used after FindSync to
// re-enter byte-wise decoding at a known-good boundary.
func (d *Decoder) SeekBit(pos int) error {
	return d.r.SeekBit(pos)
}

// ReadByte decodes the next 16 media bits into one data byte. sync
// reports whether those 16 bits were the canonical A1 sync pattern, in
// which case the returned byte is SyncByte. err is bitstream.ErrEndOfStream
// once fewer than 16 bits remain.
func (d *Decoder) ReadByte() (value byte, sync bool, err error) {
	start := d.r.BitPos()

	window, err := d.r.ReadBits(16)
	if err != nil {
		d.r.SeekBit(start)
		return 0, false, err
	}

	if window == syncPattern16 {
		return SyncByte, true, nil
	}

	var b byte
	for i := 7; i >= 0; i-- {
		pair := byte((window >> uint(2*i)) & 0x3)
		data := pair & 1
		b = (b << 1) | data
	}
	return b, false, nil
}

// FindSync scans forward bit by bit from the current position for the
// next A1 sync mark, leaving the cursor positioned at the start of the
// matching 16-bit window (not consumed) so a subsequent ReadByte reports
// sync=true. It returns bitstream.ErrEndOfStream if no sync mark is found
// before the stream ends.
func (d *Decoder) FindSync() error {
	pos := d.r.BitPos()
	total := d.r.Len()

	for pos+16 <= total {
		if err := d.r.SeekBit(pos); err != nil {
			return err
		}
		window, err := d.r.ReadBits(16)
		if err != nil {
			return err
		}
		if window == syncPattern16 {
			return d.r.SeekBit(pos)
		}
		pos++
	}
	return bitstream.ErrEndOfStream
}
