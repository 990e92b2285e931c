package rsdos_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/disk/memory"
	"github.com/dragontools/dragondisk/filesystem"
	"github.com/dragontools/dragondisk/filesystem/rsdos"
)

// freshDisk builds a blank 35-track RsDos volume: granule map all-free,
// directory sectors all-0xFF (end-of-directory marker throughout).
func freshDisk(t *testing.T) disk.Disk {
	t.Helper()
	d := memory.New(1, 35, 18, 256, 1, true)

	mapBuf := make([]byte, 256)
	for i := range mapBuf {
		mapBuf[i] = 0xFF
	}
	require.NoError(t, d.WriteSector(disk.CHS{Track: 17, Head: 0, Sector: 2}, mapBuf))

	dirBuf := make([]byte, 256)
	for i := range dirBuf {
		dirBuf[i] = 0xFF
	}
	for s := 3; s <= 11; s++ {
		require.NoError(t, d.WriteSector(disk.CHS{Track: 17, Head: 0, Sector: s}, dirBuf))
	}
	return d
}

func TestIsValidFilename(t *testing.T) {
	fs := rsdos.Open(freshDisk(t))
	assert.True(t, fs.IsValidFilename("HELLO"))
	assert.True(t, fs.IsValidFilename("HELLO.BAS"))
	assert.False(t, fs.IsValidFilename(""))
	assert.False(t, fs.IsValidFilename("TOOLONGNAME.BAS"))
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs := rsdos.Open(freshDisk(t))

	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, fs.WriteFile("HELLO.BAS", payload))

	exists, err := fs.FileExists("HELLO.BAS")
	require.NoError(t, err)
	assert.True(t, exists)

	f, err := fs.ReadFile("HELLO.BAS")
	require.NoError(t, err)
	assert.Equal(t, payload, f.Data)
}

func TestFreeDecreasesAfterWrite(t *testing.T) {
	fs := rsdos.Open(freshDisk(t))
	before, err := fs.Free()
	require.NoError(t, err)

	require.NoError(t, fs.WriteFile("AA", make([]byte, 100)))

	after, err := fs.Free()
	require.NoError(t, err)
	assert.Less(t, after, before)
}

func TestDeleteFileFreesGranules(t *testing.T) {
	fs := rsdos.Open(freshDisk(t))
	require.NoError(t, fs.WriteFile("AA", make([]byte, 100)))

	before, err := fs.Free()
	require.NoError(t, err)

	require.NoError(t, fs.DeleteFile("AA"))

	after, err := fs.Free()
	require.NoError(t, err)
	assert.Greater(t, after, before)

	exists, err := fs.FileExists("AA")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCheckCleanOnFreshVolume(t *testing.T) {
	fs := rsdos.Open(freshDisk(t))
	require.NoError(t, fs.WriteFile("AA", make([]byte, 3000)))
	require.NoError(t, fs.WriteFile("BB", make([]byte, 500)))

	report, err := fs.Check()
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
}

func TestListFilesReturnsEveryEntry(t *testing.T) {
	fs := rsdos.Open(freshDisk(t))
	require.NoError(t, fs.WriteFile("AA", make([]byte, 100)))
	require.NoError(t, fs.WriteFile("BB", make([]byte, 200)))

	files, err := fs.ListFiles()
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFileNotFound(t *testing.T) {
	fs := rsdos.Open(freshDisk(t))
	_, err := fs.ReadFile("NOPE")
	assert.True(t, filesystem.IsKind(err, filesystem.KindFileNotFound))
}

func TestRenameFile(t *testing.T) {
	fs := rsdos.Open(freshDisk(t))
	require.NoError(t, fs.WriteFile("OLD", make([]byte, 100)))
	require.NoError(t, fs.RenameFile("OLD", "NEW"))

	exists, err := fs.FileExists("NEW")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = fs.FileExists("OLD")
	require.NoError(t, err)
	assert.False(t, exists)
}
