package tape_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragontools/dragondisk/bitstream"
	"github.com/dragontools/dragondisk/tape"
)

// TestReadBlockMatchesScenarioS4 reproduces spec.md §8 scenario S4: a
// short-leader stream parses to a header block, length 15, checksum
// 0x08, decoding to filename FOOBAR, BASIC, non-ASCII, non-gapped.
func TestReadBlockMatchesScenarioS4(t *testing.T) {
	data := []byte{
		0x55, 0x3C, 0x00, 0x0F,
		0x46, 0x4F, 0x4F, 0x42, 0x41, 0x52, 0x20, 0x20,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x08,
	}
	r := bitstream.NewReader(data, bitstream.LSBFirst)

	block, err := tape.ReadBlock(r, 1)
	require.NoError(t, err)
	assert.Equal(t, tape.TypeHeader, block.Type)
	assert.Len(t, block.Payload, 15)
	assert.Equal(t, byte(0x08), block.Checksum)

	h := tape.DecodeHeader(block.Payload)
	assert.Equal(t, "FOOBAR", h.Name)
	assert.Equal(t, tape.FileTypeBasic, h.FileType)
	assert.False(t, h.IsASCII)
	assert.False(t, h.IsGapped)
}

// TestHeaderPayloadMatchesScenarioS5 reproduces spec.md §8 scenario
// S5's worked byte-for-byte header payload and checksum.
func TestHeaderPayloadMatchesScenarioS5(t *testing.T) {
	h := tape.NewHeader("BARBAR", tape.FileTypeMachineCode, false, false, 10000, 50000)

	want := []byte{0x42, 0x41, 0x52, 0x42, 0x41, 0x52, 0x20, 0x20, 0x02, 0x00, 0x00, 0xC3, 0x50, 0x27, 0x10}
	assert.Equal(t, want, h.Payload())
	assert.Equal(t, byte(0x45), h.Checksum())
}

func TestReadBlockRejectsBadChecksum(t *testing.T) {
	data := []byte{0x55, 0x3C, 0x01, 0x02, 0xAA, 0xBB, 0x00}
	r := bitstream.NewReader(data, bitstream.LSBFirst)

	_, err := tape.ReadBlock(r, 1)
	assert.Error(t, err)
}

func TestWriteBlockThenReadBlockRoundTrip(t *testing.T) {
	w := bitstream.NewWriter(bitstream.LSBFirst)
	block := tape.Block{Type: tape.TypeData, Payload: []byte("hello, dragon")}
	tape.WriteBlock(w, block, 4)

	r := bitstream.NewReader(w.Bytes(), bitstream.LSBFirst)
	got, err := tape.ReadBlock(r, 4)
	require.NoError(t, err)
	assert.Equal(t, tape.TypeData, got.Type)
	assert.Equal(t, []byte("hello, dragon"), got.Payload)
}

func TestReadBlockZeroLengthSentinel(t *testing.T) {
	w := bitstream.NewWriter(bitstream.LSBFirst)
	tape.WriteBlock(w, tape.Block{Type: tape.TypeEndOfFile}, 2)

	r := bitstream.NewReader(w.Bytes(), bitstream.LSBFirst)
	got, err := tape.ReadBlock(r, 2)
	require.NoError(t, err)
	assert.Equal(t, tape.TypeEndOfFile, got.Type)
	assert.Empty(t, got.Payload)
}

func TestReadBlockDataBlockFullLengthSentinel(t *testing.T) {
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	w := bitstream.NewWriter(bitstream.LSBFirst)
	tape.WriteBlock(w, tape.Block{Type: tape.TypeData, Payload: payload}, 1)

	r := bitstream.NewReader(w.Bytes(), bitstream.LSBFirst)
	got, err := tape.ReadBlock(r, 1)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Payload)
}

func TestReadBlockSyncNotFound(t *testing.T) {
	data := []byte{0x55, 0x55, 0x55}
	r := bitstream.NewReader(data, bitstream.LSBFirst)
	_, err := tape.ReadBlock(r, 1)
	assert.ErrorIs(t, err, tape.ErrSyncNotFound)
}
