package dmk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragontools/dragondisk/crc"
	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/disk/dmk"
	"github.com/dragontools/dragondisk/mfm"
	"github.com/dragontools/dragondisk/storage"
)

const idamTableBytes = 64 * 2

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func sizeCodeFor(size int) byte {
	switch size {
	case 128:
		return 0
	case 256:
		return 1
	case 512:
		return 2
	case 1024:
		return 3
	}
	return 1
}

// rawTrack builds one gap+IDAM+gap+DAM+data+CRC record for a single sector,
// the same way disk/helpers_test.go does for the lower-level ScanTrack
// tests, but is reproduced here since disk's test helpers are unexported.
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

	e.WriteBytes(bytesOf(0x4E, 8))

	return e.Bytes()
}

// image assembles a complete single-sector-per-track DMK image with the
// given number of tracks and sides.
func image(t *testing.T, tracks, sides int, size int, payload []byte) []byte {
	t.Helper()

	trackData := rawTrack(t, disk.CHS{Track: 0, Head: 0, Sector: 1}, size, payload)
	trackLen := idamTableBytes + len(trackData)

	out := make([]byte, 16)
	out[1] = byte(tracks)
	out[2] = byte(trackLen)
	out[3] = byte(trackLen >> 8)
	if sides == 1 {
		out[4] = 0x10
	}

	for tr := 0; tr < tracks; tr++ {
		for h := 0; h < sides; h++ {
			raw := rawTrack(t, disk.CHS{Track: tr, Head: h, Sector: 1}, size, payload)
			rec := make([]byte, idamTableBytes)
			rec = append(rec, raw...)
			out = append(out, rec...)
		}
	}
	return out
}

func TestOpenReadsHeaderGeometry(t *testing.T) {
	data := image(t, 2, 1, 256, bytesOf(0x5A, 256))
	src := storage.NewMemorySource(data, false)

	d, err := dmk.Open(src, false)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Heads())
	assert.Equal(t, 2, d.Tracks())
}

func TestReadSectorFindsScannedPayload(t *testing.T) {
	payload := bytesOf(0x5A, 256)
	data := image(t, 1, 1, 256, payload)
	src := storage.NewMemorySource(data, false)

	d, err := dmk.Open(src, false)
	require.NoError(t, err)

	got, err := d.ReadSector(disk.CHS{Track: 0, Head: 0, Sector: 1})
	require.NoError(t, err)
	assert.Equal(t, payload, got.Data)
}

func TestWriteSectorPatchesInPlace(t *testing.T) {
	payload := bytesOf(0x5A, 256)
	data := image(t, 1, 1, 256, payload)
	src := storage.NewMemorySource(data, true)

	d, err := dmk.Open(src, true)
	require.NoError(t, err)

	newData := bytesOf(0x99, 256)
	require.NoError(t, d.WriteSector(disk.CHS{Track: 0, Head: 0, Sector: 1}, newData))

	got, err := d.ReadSector(disk.CHS{Track: 0, Head: 0, Sector: 1})
	require.NoError(t, err)
	assert.Equal(t, newData, got.Data)
}

func TestSectorNotFound(t *testing.T) {
	data := image(t, 1, 1, 256, bytesOf(0, 256))
	src := storage.NewMemorySource(data, false)

	d, err := dmk.Open(src, false)
	require.NoError(t, err)

	_, err = d.ReadSector(disk.CHS{Track: 0, Head: 0, Sector: 5})
	assert.True(t, disk.IsKind(err, disk.KindSectorNotFound))
}

func TestSingleSidedFlagLimitsHeads(t *testing.T) {
	data := image(t, 1, 1, 128, bytesOf(0, 128))
	src := storage.NewMemorySource(data, false)

	d, err := dmk.Open(src, false)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Heads())
	assert.False(t, d.SectorExists(disk.CHS{Track: 0, Head: 1, Sector: 1}))
}
