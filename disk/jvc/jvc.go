// Package jvc implements the flat JVC/DSK sector image format (spec.md
// §4.3 "JVC"). A JVC image is sector data with an optional 0-5 byte
// header; with no header, geometry is inferred from the file length.
package jvc

import (
	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/storage"
)

const (
	defaultSectorsPerTrack = 18
	defaultSectorSize      = 256
	defaultSides           = 1
	defaultFirstSectorID   = 1

	maxHeaderLen = 5
)

// header holds the optional JVC geometry override fields (spec.md §4.3).
type header struct {
	sectorsPerTrack int
	sides           int
	sectorSize      int
	firstSectorID   int
	hasAttrFlag     bool
}

// Disk is a JVC/flat sector image.
type Disk struct {
	src      storage.Source
	writable bool

	hdr       header
	headerLen int64
	tracks    int
}

// Open reads the (possibly absent) JVC header and infers geometry from
// the remaining file length (spec.md §4.3).
func Open(src storage.Source, writable bool) (*Disk, error) {
	size := src.Size()

	trackBytes := int64(defaultSectorsPerTrack * defaultSectorSize)
	headerLen := size % trackBytes
	if headerLen > maxHeaderLen {
		headerLen = 0
	}

	hdr := header{
		sectorsPerTrack: defaultSectorsPerTrack,
		sides:           defaultSides,
		sectorSize:      defaultSectorSize,
		firstSectorID:   defaultFirstSectorID,
	}

	if headerLen > 0 {
		buf := make([]byte, headerLen)
		if _, err := src.ReadAt(buf, 0); err != nil {
			return nil, disk.NewError(disk.KindFormat, "jvc: short header read: %v", err)
		}
		if len(buf) >= 1 && buf[0] != 0 {
			hdr.sectorsPerTrack = int(buf[0])
		}
		if len(buf) >= 2 && buf[1] != 0 {
			hdr.sides = int(buf[1])
		}
		if len(buf) >= 3 {
			hdr.sectorSize = 128 << buf[2]
		}
		if len(buf) >= 4 && buf[3] != 0 {
			hdr.firstSectorID = int(buf[3])
		}
		if len(buf) >= 5 {
			hdr.hasAttrFlag = true
		}
	}

	dataSize := size - headerLen
	trackStride := int64(hdr.sectorsPerTrack * hdr.sectorSize * hdr.sides)
	if trackStride == 0 {
		return nil, disk.NewError(disk.KindFormat, "jvc: zero-size track geometry")
	}
	tracks := int(dataSize / trackStride)

	return &Disk{
		src:       src,
		writable:  writable,
		hdr:       hdr,
		headerLen: headerLen,
		tracks:    tracks,
	}, nil
}

func (d *Disk) Heads() int  { return d.hdr.sides }
func (d *Disk) Tracks() int { return d.tracks }

func (d *Disk) Writable() bool { return d.writable && d.src.Writable() }

func (d *Disk) offset(chs disk.CHS) (int64, bool) {
	if chs.Track < 0 || chs.Track >= d.tracks {
		return 0, false
	}
	if chs.Head < 0 || chs.Head >= d.hdr.sides {
		return 0, false
	}
	rel := chs.Sector - d.hdr.firstSectorID
	if rel < 0 || rel >= d.hdr.sectorsPerTrack {
		return 0, false
	}

	trackIndex := chs.Track*d.hdr.sides + chs.Head
	off := d.headerLen + int64(trackIndex*d.hdr.sectorsPerTrack*d.hdr.sectorSize) + int64(rel*d.hdr.sectorSize)
	return off, true
}

func (d *Disk) SectorExists(chs disk.CHS) bool {
	_, ok := d.offset(chs)
	return ok
}

func (d *Disk) ReadSector(chs disk.CHS) (disk.Sector, error) {
	off, ok := d.offset(chs)
	if !ok {
		return disk.Sector{}, disk.NewError(disk.KindSectorNotFound, "jvc: %+v", chs)
	}

	buf := make([]byte, d.hdr.sectorSize)
	if _, err := d.src.ReadAt(buf, off); err != nil {
		return disk.Sector{}, disk.NewError(disk.KindEndOfStream, "jvc: short sector read: %v", err)
	}

	return disk.Sector{CHS: chs, Size: d.hdr.sectorSize, Data: buf}, nil
}

func (d *Disk) WriteSector(chs disk.CHS, data []byte) error {
	if !d.Writable() {
		return disk.NewError(disk.KindNotWriteable, "jvc: disk is read-only")
	}
	off, ok := d.offset(chs)
	if !ok {
		return disk.NewError(disk.KindSectorNotFound, "jvc: %+v", chs)
	}
	if len(data) != d.hdr.sectorSize {
		return disk.NewError(disk.KindFormat, "jvc: sector size mismatch: want %d, got %d", d.hdr.sectorSize, len(data))
	}
	if _, err := d.src.WriteAt(data, off); err != nil {
		return disk.NewError(disk.KindFormat, "jvc: write failed: %v", err)
	}
	return nil
}

func (d *Disk) Sectors() disk.Iterator {
	var chs []disk.CHS
	for t := 0; t < d.tracks; t++ {
		for h := 0; h < d.hdr.sides; h++ {
			for s := 0; s < d.hdr.sectorsPerTrack; s++ {
				chs = append(chs, disk.CHS{Track: t, Head: h, Sector: d.hdr.firstSectorID + s})
			}
		}
	}
	return disk.NewSliceIterator(chs)
}

func (d *Disk) Dispose() error {
	if d.src == nil {
		return nil
	}
	err := d.src.Close()
	d.src = nil
	return err
}
