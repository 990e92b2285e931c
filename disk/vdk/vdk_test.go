package vdk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/disk/vdk"
	"github.com/dragontools/dragondisk/storage"
)

// image builds a well-formed VDK byte stream for the given geometry, with
// header length and compression fields filled in correctly.
func image(tracks, sides byte) []byte {
	const sectorBytes = 18 * 256
	data := make([]byte, 12+int(tracks)*int(sides)*sectorBytes)
	data[0] = 'd'
	data[1] = 'k'
	data[8] = 12 // header length
	data[9] = tracks
	data[10] = sides
	data[11] = 0 // uncompressed
	return data
}

func TestOpenRejectsBadMagic(t *testing.T) {
	data := image(40, 1)
	data[1] = 'x'
	src := storage.NewMemorySource(data, false)

	_, err := vdk.Open(src, false)
	assert.True(t, disk.IsKind(err, disk.KindFormat))
}

func TestOpenRejectsCompression(t *testing.T) {
	data := image(40, 1)
	data[11] = 1
	src := storage.NewMemorySource(data, false)

	_, err := vdk.Open(src, false)
	assert.True(t, disk.IsKind(err, disk.KindFormat))
}

// TestGeometryAndIterationMatchScenario mirrors spec.md §8 scenario S7:
// opening an 80-track, 2-side image reports heads=2, tracks=80, and 2880
// unique CHS positions on iteration.
func TestGeometryAndIterationMatchScenario(t *testing.T) {
	src := storage.NewMemorySource(image(80, 2), false)
	d, err := vdk.Open(src, false)
	require.NoError(t, err)

	assert.Equal(t, 2, d.Heads())
	assert.Equal(t, 80, d.Tracks())

	seen := map[disk.CHS]bool{}
	it := d.Sectors()
	count := 0
	for {
		c, ok := it.Next()
		if !ok {
			break
		}
		assert.False(t, seen[c], "duplicate CHS %+v", c)
		seen[c] = true
		count++
	}
	assert.Equal(t, 80*2*18, count)
	assert.Equal(t, 2880, count)
}

func TestReadWriteSectorRoundTrip(t *testing.T) {
	src := storage.NewMemorySource(image(40, 1), true)
	d, err := vdk.Open(src, true)
	require.NoError(t, err)

	chs := disk.CHS{Track: 20, Head: 0, Sector: 9}
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(255 - i)
	}
	require.NoError(t, d.WriteSector(chs, payload))

	got, err := d.ReadSector(chs)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Data)
}

func TestHeadMajorOrderingWithinTrack(t *testing.T) {
	// Side 1's sectors must sit immediately after all of side 0's sectors
	// within the same track, not interleaved sector-by-sector.
	src := storage.NewMemorySource(image(1, 2), true)
	d, err := vdk.Open(src, true)
	require.NoError(t, err)

	side0Last := make([]byte, 256)
	side0Last[0] = 0xAA
	require.NoError(t, d.WriteSector(disk.CHS{Track: 0, Head: 0, Sector: 18}, side0Last))

	side1First := make([]byte, 256)
	side1First[0] = 0xBB
	require.NoError(t, d.WriteSector(disk.CHS{Track: 0, Head: 1, Sector: 1}, side1First))

	got0, err := d.ReadSector(disk.CHS{Track: 0, Head: 0, Sector: 18})
	require.NoError(t, err)
	assert.Equal(t, byte(0xAA), got0.Data[0])

	got1, err := d.ReadSector(disk.CHS{Track: 0, Head: 1, Sector: 1})
	require.NoError(t, err)
	assert.Equal(t, byte(0xBB), got1.Data[0])

	// Raw layout: after the 12-byte header, side 0 sector 18 is the 18th
	// 256-byte slot and side 1 sector 1 is the 19th.
	assert.Equal(t, byte(0xAA), src.Bytes()[12+17*256])
	assert.Equal(t, byte(0xBB), src.Bytes()[12+18*256])
}

func TestSectorNotFoundOutOfRange(t *testing.T) {
	src := storage.NewMemorySource(image(35, 1), false)
	d, err := vdk.Open(src, false)
	require.NoError(t, err)

	_, err = d.ReadSector(disk.CHS{Track: 99, Head: 0, Sector: 1})
	assert.True(t, disk.IsKind(err, disk.KindSectorNotFound))
}

func TestWriteRejectedOnReadOnly(t *testing.T) {
	src := storage.NewMemorySource(image(35, 1), false)
	d, err := vdk.Open(src, false)
	require.NoError(t, err)

	err = d.WriteSector(disk.CHS{Track: 0, Head: 0, Sector: 1}, make([]byte, 256))
	assert.True(t, disk.IsKind(err, disk.KindNotWriteable))
}
