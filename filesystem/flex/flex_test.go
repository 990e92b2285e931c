package flex_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/disk/memory"
	"github.com/dragontools/dragondisk/filesystem"
	"github.com/dragontools/dragondisk/filesystem/flex"
)

// writeChain lays out a file as a chain of sectors, each prefixed with
// the next sector's linear index (big-endian), the last with 0x0000.
func writeChain(t *testing.T, d disk.Disk, start int, payload []byte) {
	t.Helper()
	const bodyPerSector = 254
	idx := start
	for off := 0; off < len(payload) || off == 0; off += bodyPerSector {
		end := off + bodyPerSector
		if end > len(payload) {
			end = len(payload)
		}
		body := payload[off:end]

		next := idx + 1
		last := end >= len(payload)
		if last {
			next = 0
		}

		buf := make([]byte, 256)
		buf[0] = byte(next >> 8)
		buf[1] = byte(next)
		copy(buf[2:], body)

		chs := linearToCHSForTest(idx)
		require.NoError(t, d.WriteSector(chs, buf))

		if last {
			break
		}
		idx++
	}
}

func linearToCHSForTest(index int) disk.CHS {
	zero := index - 1
	return disk.CHS{Track: zero / 18, Head: 0, Sector: zero%18 + 1}
}

func freshDisk(t *testing.T) disk.Disk {
	t.Helper()
	d := memory.New(1, 40, 18, 256, 1, true)
	dirBuf := make([]byte, 256) // next-dir-sector = 0 (only directory sector), all entries unused
	require.NoError(t, d.WriteSector(linearToCHSForTest(5), dirBuf))
	return d
}

func writeDirEntry(t *testing.T, d disk.Disk, slot int, name, ext string, startIdx, count int) {
	t.Helper()
	chs := linearToCHSForTest(5)
	sec, err := d.ReadSector(chs)
	require.NoError(t, err)
	buf := append([]byte(nil), sec.Data...)

	off := 16 + slot*24
	copy(buf[off:off+8], []byte(name+"        ")[:8])
	copy(buf[off+8:off+11], []byte(ext+"   ")[:3])
	endCHS := linearToCHSForTest(startIdx + count - 1)
	startLinear := startIdx
	endLinear := endCHS.Track*18 + endCHS.Sector
	buf[off+11] = byte(startLinear >> 8)
	buf[off+12] = byte(startLinear)
	buf[off+13] = byte(endLinear >> 8)
	buf[off+14] = byte(endLinear)
	buf[off+15] = byte(count >> 8)
	buf[off+16] = byte(count)

	require.NoError(t, d.WriteSector(chs, buf))
}

func TestReadFileFollowsChain(t *testing.T) {
	d := freshDisk(t)
	payload := make([]byte, 600)
	for i := range payload {
		payload[i] = byte(i)
	}
	writeChain(t, d, 6, payload)
	writeDirEntry(t, d, 0, "DATA", "BIN", 6, 3)

	fs := flex.Open(d, 1)
	f, err := fs.ReadFile("DATA.BIN")
	require.NoError(t, err)
	// FLEX records no byte length: ReadFile returns every sector's
	// 254-byte body, so the last sector's zero padding comes back too.
	want := make([]byte, 3*254)
	copy(want, payload)
	assert.Equal(t, want, f.Data)
}

func TestFileExists(t *testing.T) {
	d := freshDisk(t)
	writeChain(t, d, 6, []byte("hello"))
	writeDirEntry(t, d, 0, "HI", "", 6, 1)

	fs := flex.Open(d, 1)
	exists, err := fs.FileExists("HI")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileNotFound(t *testing.T) {
	fs := flex.Open(freshDisk(t), 1)
	_, err := fs.ReadFile("NOPE")
	assert.True(t, filesystem.IsKind(err, filesystem.KindFileNotFound))
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs := flex.Open(freshDisk(t), 1)

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, fs.WriteFile("DATA.BIN", payload))

	f, err := fs.ReadFile("DATA.BIN")
	require.NoError(t, err)
	want := make([]byte, 4*254)
	copy(want, payload)
	assert.Equal(t, want, f.Data)
}

func TestDeleteFileReclaimsSpace(t *testing.T) {
	fs := flex.Open(freshDisk(t), 1)
	require.NoError(t, fs.WriteFile("A", make([]byte, 500)))

	before, err := fs.Free()
	require.NoError(t, err)

	require.NoError(t, fs.DeleteFile("A"))

	after, err := fs.Free()
	require.NoError(t, err)
	assert.Greater(t, after, before)

	exists, err := fs.FileExists("A")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRenameFile(t *testing.T) {
	fs := flex.Open(freshDisk(t), 1)
	require.NoError(t, fs.WriteFile("OLD", make([]byte, 10)))
	require.NoError(t, fs.RenameFile("OLD", "NEW"))

	exists, err := fs.FileExists("NEW")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = fs.FileExists("OLD")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFreeCountsUnallocatedSectors(t *testing.T) {
	d := freshDisk(t)
	total := 1 * 40 * 18

	fs := flex.Open(d, 1)
	free, err := fs.Free()
	require.NoError(t, err)
	assert.Equal(t, (total-1)*256, free) // only the directory sector is allocated

	writeChain(t, d, 6, make([]byte, 254))
	writeDirEntry(t, d, 0, "A", "", 6, 1)

	free2, err := fs.Free()
	require.NoError(t, err)
	assert.Equal(t, (total-2)*256, free2)
}

func TestCheckDetectsSharedSector(t *testing.T) {
	d := freshDisk(t)
	writeChain(t, d, 6, make([]byte, 10))
	writeDirEntry(t, d, 0, "A", "", 6, 1)
	writeDirEntry(t, d, 1, "B", "", 6, 1)

	fs := flex.Open(d, 1)
	report, err := fs.Check()
	require.NoError(t, err)
	assert.NotEmpty(t, report.Errors)
}

func TestIsValidFilename(t *testing.T) {
	fs := flex.Open(freshDisk(t), 1)
	assert.True(t, fs.IsValidFilename("HELLO"))
	assert.True(t, fs.IsValidFilename("HELLO.TXT"))
	assert.False(t, fs.IsValidFilename(""))
	assert.False(t, fs.IsValidFilename("TOOLONGNAME"))
}
