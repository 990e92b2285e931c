package crc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dragontools/dragondisk/crc"
)

// TestStandardCheckValue verifies law 7 from spec.md §8: CRC-16/CCITT over
// the ASCII digits "123456789" with seed 0xFFFF equals the standard check
// value 0x29B1.
func TestStandardCheckValue(t *testing.T) {
	got := crc.Checksum([]byte("123456789"))
	assert.Equal(t, uint16(0x29B1), got)
}

func TestFeedIsEquivalentToFeedBytes(t *testing.T) {
	data := []byte{0x31, 0x32, 0x33, 0x34}

	byByte := crc.New()
	for _, b := range data {
		byByte.Feed(b)
	}

	byBytes := crc.New().FeedBytes(data)

	assert.Equal(t, byByte.Sum(), byBytes.Sum())
}

// TestSectorInfoCRC checks scenario S1 from spec.md §8: the IDAM record for
// HfeSectorInfo(head=0, track=1, sector=1, size=256) carries CRC 0x8CB8.
func TestSectorInfoCRC(t *testing.T) {
	record := []byte{0xA1, 0xA1, 0xA1, 0xFE, 0x01, 0x00, 0x01, 0x01}
	got := crc.Checksum(record)
	assert.Equal(t, uint16(0x8CB8), got)
}

// TestSectorDataCRC checks scenario S2: 256 bytes of 0xE5 preceded by the
// sync+DAM prologue produce trailing CRC bytes 0x78 0x27.
func TestSectorDataCRC(t *testing.T) {
	record := []byte{0xA1, 0xA1, 0xA1, 0xFB}
	for i := 0; i < 256; i++ {
		record = append(record, 0xE5)
	}
	got := crc.New().FeedBytes(record)
	assert.Equal(t, [2]byte{0x78, 0x27}, got.Bytes())
}
