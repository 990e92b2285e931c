// Package memory implements a byte-slice-backed disk.Disk with no
// on-disk image framing at all (spec.md §9 "Memory" sum-type member) -
// useful for filesystem write-path tests and for synthesizing a fresh,
// empty disk instead of patching an existing image in place.
package memory

import (
	"github.com/dragontools/dragondisk/disk"
)

// Disk is a flat, fixed-geometry sector store held entirely in RAM.
type Disk struct {
	heads           int
	tracks          int
	sectorsPerTrack int
	sectorSize      int
	firstSectorID   int
	writable        bool

	data map[disk.CHS][]byte
}

// New creates an empty Disk of the given geometry, every sector
// zero-filled.
func New(heads, tracks, sectorsPerTrack, sectorSize, firstSectorID int, writable bool) *Disk {
	d := &Disk{
		heads:           heads,
		tracks:          tracks,
		sectorsPerTrack: sectorsPerTrack,
		sectorSize:      sectorSize,
		firstSectorID:   firstSectorID,
		writable:        writable,
		data:            make(map[disk.CHS][]byte),
	}
	for t := 0; t < tracks; t++ {
		for h := 0; h < heads; h++ {
			for s := 0; s < sectorsPerTrack; s++ {
				chs := disk.CHS{Track: t, Head: h, Sector: firstSectorID + s}
				d.data[chs] = make([]byte, sectorSize)
			}
		}
	}
	return d
}

func (d *Disk) Heads() int  { return d.heads }
func (d *Disk) Tracks() int { return d.tracks }

func (d *Disk) Writable() bool { return d.writable }

func (d *Disk) SectorExists(chs disk.CHS) bool {
	_, ok := d.data[chs]
	return ok
}

func (d *Disk) ReadSector(chs disk.CHS) (disk.Sector, error) {
	buf, ok := d.data[chs]
	if !ok {
		return disk.Sector{}, disk.NewError(disk.KindSectorNotFound, "memory: %+v", chs)
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return disk.Sector{CHS: chs, Size: d.sectorSize, Data: out}, nil
}

func (d *Disk) WriteSector(chs disk.CHS, data []byte) error {
	if !d.writable {
		return disk.NewError(disk.KindNotWriteable, "memory: disk is read-only")
	}
	buf, ok := d.data[chs]
	if !ok {
		return disk.NewError(disk.KindSectorNotFound, "memory: %+v", chs)
	}
	if len(data) != len(buf) {
		return disk.NewError(disk.KindFormat, "memory: sector size mismatch: want %d, got %d", len(buf), len(data))
	}
	copy(buf, data)
	return nil
}

func (d *Disk) Sectors() disk.Iterator {
	var chs []disk.CHS
	for t := 0; t < d.tracks; t++ {
		for h := 0; h < d.heads; h++ {
			for s := 0; s < d.sectorsPerTrack; s++ {
				chs = append(chs, disk.CHS{Track: t, Head: h, Sector: d.firstSectorID + s})
			}
		}
	}
	return disk.NewSliceIterator(chs)
}

func (d *Disk) Dispose() error {
	d.data = nil
	return nil
}
