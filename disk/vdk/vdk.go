// Package vdk implements the VDK sector image format (spec.md §4.3 "VDK"):
// a flat sector dump prefixed by a fixed 12-byte header carrying the magic
// "dk", geometry, and a compression flag this library refuses to read.
package vdk

import (
	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/storage"
)

const (
	headerSize = 12

	magic0 = 'd'
	magic1 = 'k'

	sectorsPerTrack = 18
	sectorSize      = 256
)

// header mirrors the on-disk VDK header layout byte for byte.
type header struct {
	version           byte
	backCompatVersion byte
	sourceID          byte
	sourceVersion     byte
	flags             byte
	headerLength      byte
	tracks            byte
	sides             byte
	compression       byte
}

// Disk is a VDK image: 18 sectors/track, 256 bytes/sector, fixed.
type Disk struct {
	src      storage.Source
	writable bool

	hdr       header
	headerLen int64
}

// Open validates the "dk" magic and the compression byte, then opens the
// image for sector access at the declared geometry.
func Open(src storage.Source, writable bool) (*Disk, error) {
	buf := make([]byte, headerSize)
	if _, err := src.ReadAt(buf, 0); err != nil {
		return nil, disk.NewError(disk.KindFormat, "vdk: short header read: %v", err)
	}
	if buf[0] != magic0 || buf[1] != magic1 {
		return nil, disk.NewError(disk.KindFormat, "vdk: bad magic %q", buf[0:2])
	}

	hdr := header{
		version:           buf[2],
		backCompatVersion: buf[3],
		sourceID:          buf[4],
		sourceVersion:     buf[5],
		flags:             buf[6],
		headerLength:      buf[8],
		tracks:            buf[9],
		sides:             buf[10],
		compression:       buf[11],
	}
	if hdr.compression != 0 {
		return nil, disk.NewError(disk.KindFormat, "vdk: compressed images are not supported")
	}

	headerLen := int64(hdr.headerLength)
	if headerLen < headerSize {
		// Some writers leave headerLength at 0; the fixed 12-byte header
		// is always present regardless.
		headerLen = headerSize
	}

	return &Disk{src: src, writable: writable, hdr: hdr, headerLen: headerLen}, nil
}

func (d *Disk) Heads() int  { return int(d.hdr.sides) }
func (d *Disk) Tracks() int { return int(d.hdr.tracks) }

func (d *Disk) Writable() bool { return d.writable && d.src.Writable() }

// offset computes the byte offset of chs under "head-major" ordering: for
// each track, all side-0 sectors precede all side-1 sectors (spec.md §4.3).
func (d *Disk) offset(chs disk.CHS) (int64, bool) {
	if chs.Track < 0 || chs.Track >= int(d.hdr.tracks) {
		return 0, false
	}
	if chs.Head < 0 || chs.Head >= int(d.hdr.sides) {
		return 0, false
	}
	rel := chs.Sector - 1
	if rel < 0 || rel >= sectorsPerTrack {
		return 0, false
	}

	trackIndex := chs.Track*int(d.hdr.sides) + chs.Head
	off := d.headerLen + int64(trackIndex*sectorsPerTrack*sectorSize) + int64(rel*sectorSize)
	return off, true
}

func (d *Disk) SectorExists(chs disk.CHS) bool {
	_, ok := d.offset(chs)
	return ok
}

func (d *Disk) ReadSector(chs disk.CHS) (disk.Sector, error) {
	off, ok := d.offset(chs)
	if !ok {
		return disk.Sector{}, disk.NewError(disk.KindSectorNotFound, "vdk: %+v", chs)
	}

	buf := make([]byte, sectorSize)
	if _, err := d.src.ReadAt(buf, off); err != nil {
		return disk.Sector{}, disk.NewError(disk.KindEndOfStream, "vdk: short sector read: %v", err)
	}
	return disk.Sector{CHS: chs, Size: sectorSize, Data: buf}, nil
}

func (d *Disk) WriteSector(chs disk.CHS, data []byte) error {
	if !d.Writable() {
		return disk.NewError(disk.KindNotWriteable, "vdk: disk is read-only")
	}
	off, ok := d.offset(chs)
	if !ok {
		return disk.NewError(disk.KindSectorNotFound, "vdk: %+v", chs)
	}
	if len(data) != sectorSize {
		return disk.NewError(disk.KindFormat, "vdk: sector size mismatch: want %d, got %d", sectorSize, len(data))
	}
	if _, err := d.src.WriteAt(data, off); err != nil {
		return disk.NewError(disk.KindFormat, "vdk: write failed: %v", err)
	}
	return nil
}

func (d *Disk) Sectors() disk.Iterator {
	var chs []disk.CHS
	for t := 0; t < int(d.hdr.tracks); t++ {
		for h := 0; h < int(d.hdr.sides); h++ {
			for s := 1; s <= sectorsPerTrack; s++ {
				chs = append(chs, disk.CHS{Track: t, Head: h, Sector: s})
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
