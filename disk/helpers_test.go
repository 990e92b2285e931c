package disk_test

import (
	"testing"

	"github.com/dragontools/dragondisk/crc"
	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/mfm"
)

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

// buildTestTrack assembles one gap+IDAM+gap+DAM+data+CRC record, MFM
// encoded, the way a real HFE/DMK raw track stores it (spec.md §3).
func buildTestTrack(t *testing.T, chs disk.CHS, size int, data []byte) []byte {
	t.Helper()

	e := mfm.NewEncoder()
	e.WriteBytes(bytesOf(0x4E, 8)) // leading gap

	e.WriteSync()
	e.WriteSync()
	e.WriteSync()
	idamFields := []byte{byte(chs.Track), byte(chs.Head), byte(chs.Sector), sizeCodeFor(size)}
	e.WriteByte(0xFE)
	e.WriteBytes(idamFields)
	idamCRC := crc.Checksum(append([]byte{0xA1, 0xA1, 0xA1, 0xFE}, idamFields...))
	e.WriteByte(byte(idamCRC >> 8))
	e.WriteByte(byte(idamCRC))

	e.WriteBytes(bytesOf(0x4E, 8)) // inter-record gap

	e.WriteSync()
	e.WriteSync()
	e.WriteSync()
	e.WriteByte(0xFB)
	e.WriteBytes(data)
	damCRC := crc.Checksum(append([]byte{0xA1, 0xA1, 0xA1, 0xFB}, data...))
	e.WriteByte(byte(damCRC >> 8))
	e.WriteByte(byte(damCRC))

	e.WriteBytes(bytesOf(0x4E, 8)) // trailing gap

	return e.Bytes()
}
