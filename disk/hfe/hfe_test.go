package hfe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragontools/dragondisk/crc"
	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/disk/hfe"
	"github.com/dragontools/dragondisk/mfm"
	"github.com/dragontools/dragondisk/storage"
)

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func sizeCodeFor(size int) byte {
	if size == 256 {
		return 1
	}
	return 1
}

func rawTrack(t *testing.T, chs disk.CHS, size int, data []byte) []byte {
	t.Helper()

	e := mfm.NewEncoder()
	e.WriteBytes(bytesOf(0x4E, 8))

	e.WriteSync()
	e.WriteSync()
	e.WriteSync()
	idamFields := []byte{byte(chs.Track), byte(chs.Head), byte(chs.Sector), sizeCodeFor(size)}
	e.WriteByte(0xFE)
	e.WriteBytes(idamFields)
	idamCRC := crc.Checksum(append([]byte{0xA1, 0xA1, 0xA1, 0xFE}, idamFields...))
	e.WriteByte(byte(idamCRC >> 8))
	e.WriteByte(byte(idamCRC))

	e.WriteBytes(bytesOf(0x4E, 8))

	e.WriteSync()
	e.WriteSync()
	e.WriteSync()
	e.WriteByte(0xFB)
	e.WriteBytes(data)
	damCRC := crc.Checksum(append([]byte{0xA1, 0xA1, 0xA1, 0xFB}, data...))
	e.WriteByte(byte(damCRC >> 8))
	e.WriteByte(byte(damCRC))

	e.WriteBytes(bytesOf(0x4E, 32)) // generous trailing gap, padded to a half-block below

	return e.Bytes()
}

// image assembles a minimal single-track, two-side HFE image with one
// sector on each side, spanning as many 512-byte interleave blocks as the
// encoded MFM track data requires.
func image(t *testing.T, side0, side1 []byte) []byte {
	t.Helper()

	const halfBlock = 256
	trackLen := len(side0)
	if len(side1) > trackLen {
		trackLen = len(side1)
	}
	numBlocks := (trackLen + halfBlock - 1) / halfBlock

	pad := func(b []byte) []byte {
		out := make([]byte, numBlocks*halfBlock)
		copy(out, b)
		for i := len(b); i < len(out); i++ {
			out[i] = 0xFF
		}
		return out
	}
	side0 = pad(side0)
	side1 = pad(side1)

	header := make([]byte, 512)
	copy(header[0:8], "HXCPICFE")
	header[9] = 1 // one track
	header[10] = 2
	header[18] = 1 // track list at block 1
	header[19] = 0

	trackList := make([]byte, 512)
	trackList[0] = 2 // data blocks start at block 2
	trackList[1] = 0
	trackList[2] = byte(trackLen)
	trackList[3] = byte(trackLen >> 8)

	data := make([]byte, numBlocks*512)
	for i := 0; i < numBlocks; i++ {
		copy(data[i*512:i*512+halfBlock], side0[i*halfBlock:(i+1)*halfBlock])
		copy(data[i*512+halfBlock:(i+1)*512], side1[i*halfBlock:(i+1)*halfBlock])
	}

	out := append([]byte{}, header...)
	out = append(out, trackList...)
	out = append(out, data...)
	return out
}

func TestOpenReadsHeaderGeometry(t *testing.T) {
	side0 := rawTrack(t, disk.CHS{Track: 0, Head: 0, Sector: 1}, 256, bytesOf(0x11, 256))
	side1 := rawTrack(t, disk.CHS{Track: 0, Head: 1, Sector: 1}, 256, bytesOf(0x22, 256))
	data := image(t, side0, side1)
	src := storage.NewMemorySource(data, false)

	d, err := hfe.Open(src, false)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Heads())
	assert.Equal(t, 1, d.Tracks())
}

func TestReadSectorBothSides(t *testing.T) {
	side0 := rawTrack(t, disk.CHS{Track: 0, Head: 0, Sector: 1}, 256, bytesOf(0x11, 256))
	side1 := rawTrack(t, disk.CHS{Track: 0, Head: 1, Sector: 1}, 256, bytesOf(0x22, 256))
	data := image(t, side0, side1)
	src := storage.NewMemorySource(data, false)

	d, err := hfe.Open(src, false)
	require.NoError(t, err)

	got0, err := d.ReadSector(disk.CHS{Track: 0, Head: 0, Sector: 1})
	require.NoError(t, err)
	assert.Equal(t, bytesOf(0x11, 256), got0.Data)

	got1, err := d.ReadSector(disk.CHS{Track: 0, Head: 1, Sector: 1})
	require.NoError(t, err)
	assert.Equal(t, bytesOf(0x22, 256), got1.Data)
}

func TestSectorNotFoundOnMissingHead(t *testing.T) {
	side0 := rawTrack(t, disk.CHS{Track: 0, Head: 0, Sector: 1}, 256, bytesOf(0x11, 256))
	side1 := rawTrack(t, disk.CHS{Track: 0, Head: 1, Sector: 1}, 256, bytesOf(0x22, 256))
	data := image(t, side0, side1)
	src := storage.NewMemorySource(data, false)

	d, err := hfe.Open(src, false)
	require.NoError(t, err)

	_, err = d.ReadSector(disk.CHS{Track: 0, Head: 2, Sector: 1})
	assert.True(t, disk.IsKind(err, disk.KindSectorNotFound))
}

func TestWriteSectorPatchesSideInPlace(t *testing.T) {
	side0 := rawTrack(t, disk.CHS{Track: 0, Head: 0, Sector: 1}, 256, bytesOf(0x11, 256))
	side1 := rawTrack(t, disk.CHS{Track: 0, Head: 1, Sector: 1}, 256, bytesOf(0x22, 256))
	data := image(t, side0, side1)
	src := storage.NewMemorySource(data, true)

	d, err := hfe.Open(src, true)
	require.NoError(t, err)

	newData := bytesOf(0x99, 256)
	require.NoError(t, d.WriteSector(disk.CHS{Track: 0, Head: 0, Sector: 1}, newData))

	got, err := d.ReadSector(disk.CHS{Track: 0, Head: 0, Sector: 1})
	require.NoError(t, err)
	assert.Equal(t, newData, got.Data)

	// The other side's sector must be untouched.
	got1, err := d.ReadSector(disk.CHS{Track: 0, Head: 1, Sector: 1})
	require.NoError(t, err)
	assert.Equal(t, bytesOf(0x22, 256), got1.Data)
}
