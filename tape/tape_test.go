package tape_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragontools/dragondisk/tape"
)

func TestStreamWriteThenReadHeaderAndData(t *testing.T) {
	ws := tape.NewWriteStream()
	h := tape.NewHeader("PROGRAM", tape.FileTypeBasic, true, false, 0x1000, 0x1010)
	ws.WriteHeader(h, 4)
	ws.WriteData([]byte("payload bytes"), 2)
	ws.WriteEndOfFile(2)

	rs := tape.NewStream(ws.Bytes())

	got, err := rs.Next(1)
	require.NoError(t, err)
	gotHeader, ok := got.(tape.Header)
	require.True(t, ok)
	assert.Equal(t, "PROGRAM", gotHeader.Name)
	assert.Equal(t, tape.FileTypeBasic, gotHeader.FileType)

	got, err = rs.Next(1)
	require.NoError(t, err)
	gotData, ok := got.(tape.DataBlock)
	require.True(t, ok)
	assert.Equal(t, []byte("payload bytes"), gotData.Payload)

	got, err = rs.Next(1)
	require.NoError(t, err)
	assert.Nil(t, got)
}
