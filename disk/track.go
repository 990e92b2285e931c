package disk

import (
	"github.com/pkg/errors"

	"github.com/dragontools/dragondisk/crc"
	"github.com/dragontools/dragondisk/mfm"
)

// idamMark and damMark are the IBM-style address marks that follow the
// triple A1 sync preamble (spec.md GLOSSARY "IDAM / DAM").
const (
	idamMark = 0xFE
	damMark  = 0xFB
)

// TrackSector is one sector recovered by scanning a raw MFM-encoded track
// (spec.md §3 "Track (HFE/DMK)"), plus the bit offset of its data field so
// a later WriteSector can re-encode the payload in place without
// rebuilding the whole track.
type TrackSector struct {
	Sector

	dataBitOffset int // bit position of the first data byte of the DAM record
}

// ScanTrack decodes raw MFM track bytes and recovers the sector list by
// locating (IDAM, DAM) record pairs (spec.md §3, §6).
//
// A sector whose ID or data CRC fails to verify is still returned, with
// CRCBad set — CRC errors surface as a flag, never a silently substituted
// payload (spec.md §7).
func ScanTrack(raw []byte) ([]TrackSector, error) {
	d := mfm.NewDecoder(raw)

	var sectors []TrackSector
	var pending *TrackSector
	var pendingOK bool

scan:
	for {
		if err := d.FindSync(); err != nil {
			break scan
		}

		ok, err := readSyncTriple(d)
		if err != nil {
			break scan
		}
		if !ok {
			continue scan
		}

		marker, _, err := d.ReadByte()
		if err != nil {
			break scan
		}

		switch marker {
		case idamMark:
			fields, err := readBytes(d, 4) // track, head, sector, size-code
			if err != nil {
				break scan
			}
			crcBytes, err := readBytes(d, 2)
			if err != nil {
				break scan
			}
			region := append([]byte{0xA1, 0xA1, 0xA1, idamMark}, fields...)
			got := crc.Checksum(region)
			want := uint16(crcBytes[0])<<8 | uint16(crcBytes[1])

			size := 128 << fields[3]
			ts := TrackSector{
				Sector: Sector{
					CHS: CHS{
						Track:  int(fields[0]),
						Head:   int(fields[1]),
						Sector: int(fields[2]),
					},
					Size: size,
				},
			}
			pending = &ts
			pendingOK = got == want

		case damMark:
			if pending == nil {
				continue scan
			}
			startBit := d.BitPos()
			data, err := readBytes(d, pending.Size)
			if err != nil {
				pending = nil
				break scan
			}
			crcBytes, err := readBytes(d, 2)
			if err != nil {
				pending = nil
				break scan
			}
			region := append([]byte{0xA1, 0xA1, 0xA1, damMark}, data...)
			got := crc.Checksum(region)
			want := uint16(crcBytes[0])<<8 | uint16(crcBytes[1])

			pending.Data = data
			pending.CRCBad = !(pendingOK && got == want)
			pending.dataBitOffset = startBit
			sectors = append(sectors, *pending)
			pending = nil
		}
	}

	return sectors, nil
}

func readSyncTriple(d *mfm.Decoder) (bool, error) {
	for i := 0; i < 3; i++ {
		b, sync, err := d.ReadByte()
		if err != nil {
			return false, err
		}
		if !sync || b != mfm.SyncByte {
			return false, nil
		}
	}
	return true, nil
}

func readBytes(d *mfm.Decoder, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, _, err := d.ReadByte()
		if err != nil {
			return nil, errors.Wrap(err, "disk: truncated track")
		}
		out[i] = b
	}
	return out, nil
}

// PatchSectorData re-encodes newData as MFM bits directly over the data
// field of an already-scanned sector, and rewrites its trailing CRC,
// without disturbing the rest of the track layout. raw is mutated in
// place and also returned for convenience.
func PatchSectorData(raw []byte, ts TrackSector, newData []byte) ([]byte, error) {
	if len(newData) != ts.Size {
		return nil, NewError(KindFormat, "sector data size mismatch: want %d, got %d", ts.Size, len(newData))
	}

	e := mfm.NewEncoder()
	e.WriteBytes(newData)

	region := append([]byte{0xA1, 0xA1, 0xA1, damMark}, newData...)
	sum := crc.Checksum(region)
	e.WriteByte(byte(sum >> 8))
	e.WriteByte(byte(sum))

	encoded := e.Bytes()

	startByte := ts.dataBitOffset / 8
	if ts.dataBitOffset%8 != 0 {
		return nil, NewError(KindFormat, "sector data is not byte-aligned in track buffer")
	}
	if startByte+len(encoded) > len(raw) {
		return nil, NewError(KindFormat, "patched sector data overruns track buffer")
	}
	copy(raw[startByte:], encoded)

	return raw, nil
}
