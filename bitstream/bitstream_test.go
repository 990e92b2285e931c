package bitstream_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragontools/dragondisk/bitstream"
)

func TestRoundTripMSBFirst(t *testing.T) {
	w := bitstream.NewWriter(bitstream.MSBFirst)
	for _, b := range []byte{0x4E, 0xA1, 0x00, 0xFF} {
		w.WriteByte(b)
	}

	r := bitstream.NewReader(w.Bytes(), bitstream.MSBFirst)
	for _, want := range []byte{0x4E, 0xA1, 0x00, 0xFF} {
		got, err := r.ReadByte()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestRoundTripLSBFirst(t *testing.T) {
	w := bitstream.NewWriter(bitstream.LSBFirst)
	for _, b := range []byte{0x55, 0x3C, 0x01, 0x80} {
		w.WriteByte(b)
	}

	r := bitstream.NewReader(w.Bytes(), bitstream.LSBFirst)
	for _, want := range []byte{0x55, 0x3C, 0x01, 0x80} {
		got, err := r.ReadByte()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReadBitEndOfStream(t *testing.T) {
	r := bitstream.NewReader([]byte{0xFF}, bitstream.MSBFirst)
	for i := 0; i < 8; i++ {
		_, err := r.ReadBit()
		require.NoError(t, err)
	}
	_, err := r.ReadBit()
	assert.ErrorIs(t, err, bitstream.ErrEndOfStream)
}

func TestSeekBit(t *testing.T) {
	r := bitstream.NewReader([]byte{0xF0, 0x0F}, bitstream.MSBFirst)
	require.NoError(t, r.SeekBit(4))
	v, err := r.ReadBits(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x00), v)
}

func TestWriteBitsMostSignificantFirst(t *testing.T) {
	w := bitstream.NewWriter(bitstream.MSBFirst)
	w.WriteBits(0b1010, 4)
	r := bitstream.NewReader(w.Bytes(), bitstream.MSBFirst)
	v, err := r.ReadBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b1010), v)
}
