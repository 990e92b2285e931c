// Package dmk implements the DMK track image format (spec.md §4.3 "DMK"):
// a 16-byte header followed by one fixed-size raw MFM track per (track,
// head), each prefixed by a table of IDAM bit offsets.
package dmk

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/storage"
)

const (
	headerSize = 16

	// idamTableEntries is the number of 16-bit IDAM pointers reserved at
	// the start of every raw track, one per sector DMK supports per track.
	idamTableEntries = 64
	idamTableBytes   = idamTableEntries * 2
)

// header mirrors the 16-byte DMK header.
type header struct {
	writeProtect byte
	tracks       byte
	trackLenLo   byte
	trackLenHi   byte
	flags        byte
}

// Disk is a DMK track image.
type Disk struct {
	src      storage.Source
	writable bool

	hdr      header
	trackLen int
	sides    int
	tracks   int
}

// Open parses the DMK header and derives per-track layout parameters.
func Open(src storage.Source, writable bool) (*Disk, error) {
	buf := make([]byte, headerSize)
	if _, err := src.ReadAt(buf, 0); err != nil {
		return nil, disk.NewError(disk.KindFormat, "dmk: short header read: %v", err)
	}

	hdr := header{
		writeProtect: buf[0],
		tracks:       buf[1],
		trackLenLo:   buf[2],
		trackLenHi:   buf[3],
		flags:        buf[4],
	}

	trackLen := int(hdr.trackLenHi)<<8 | int(hdr.trackLenLo)
	if trackLen <= idamTableBytes {
		return nil, disk.NewError(disk.KindFormat, "dmk: implausible track length %d", trackLen)
	}

	sides := 2
	if hdr.flags&0x10 != 0 {
		sides = 1
	}

	return &Disk{
		src:      src,
		writable: writable,
		hdr:      hdr,
		trackLen: trackLen,
		sides:    sides,
		tracks:   int(hdr.tracks),
	}, nil
}

func (d *Disk) Heads() int  { return d.sides }
func (d *Disk) Tracks() int { return d.tracks }

func (d *Disk) Writable() bool {
	return d.writable && d.src.Writable() && d.hdr.writeProtect == 0
}

// trackOffset returns the byte offset of the raw track record (table plus
// data) for (track, head) under the DMK convention: tracks are stored in
// track-major order, side 0 then side 1 within each track.
func (d *Disk) trackOffset(track, head int) (int64, bool) {
	if track < 0 || track >= d.tracks {
		return 0, false
	}
	if head < 0 || head >= d.sides {
		return 0, false
	}
	index := track*d.sides + head
	return int64(headerSize + index*d.trackLen), true
}

// readTrack loads one (track, head)'s raw bytes: the IDAM offset table
// followed by the MFM-encoded data region.
func (d *Disk) readTrack(track, head int) ([]byte, int64, error) {
	off, ok := d.trackOffset(track, head)
	if !ok {
		return nil, 0, disk.NewError(disk.KindSectorNotFound, "dmk: track %d head %d out of range", track, head)
	}
	buf := make([]byte, d.trackLen)
	if _, err := d.src.ReadAt(buf, off); err != nil {
		return nil, 0, disk.NewError(disk.KindEndOfStream, "dmk: short track read: %v", err)
	}
	return buf, off, nil
}

// scanTrack decodes the raw data region (past the IDAM offset table) of a
// track into its sector list.
func (d *Disk) scanTrack(raw []byte) ([]disk.TrackSector, error) {
	return disk.ScanTrack(raw[idamTableBytes:])
}

func (d *Disk) findSector(chs disk.CHS) ([]byte, int64, disk.TrackSector, error) {
	raw, off, err := d.readTrack(chs.Track, chs.Head)
	if err != nil {
		return nil, 0, disk.TrackSector{}, err
	}
	sectors, err := d.scanTrack(raw)
	if err != nil {
		return nil, 0, disk.TrackSector{}, errors.Wrap(err, "dmk: scanning track")
	}
	for _, s := range sectors {
		if s.Sector.Sector == chs.Sector {
			return raw, off, s, nil
		}
	}
	return nil, 0, disk.TrackSector{}, disk.NewError(disk.KindSectorNotFound, "dmk: %+v", chs)
}

func (d *Disk) SectorExists(chs disk.CHS) bool {
	_, _, _, err := d.findSector(chs)
	return err == nil
}

func (d *Disk) ReadSector(chs disk.CHS) (disk.Sector, error) {
	_, _, ts, err := d.findSector(chs)
	if err != nil {
		return disk.Sector{}, err
	}
	return ts.Sector, nil
}

func (d *Disk) WriteSector(chs disk.CHS, data []byte) error {
	if !d.Writable() {
		return disk.NewError(disk.KindNotWriteable, "dmk: disk is read-only or write-protected")
	}
	raw, off, ts, err := d.findSector(chs)
	if err != nil {
		return err
	}
	if len(data) != ts.Size {
		return disk.NewError(disk.KindFormat, "dmk: sector size mismatch: want %d, got %d", ts.Size, len(data))
	}

	// TrackSector's recorded data bit offset is relative to the decoded
	// data region, which starts idamTableBytes into the raw track buffer.
	region := raw[idamTableBytes:]
	patched, err := disk.PatchSectorData(region, ts, data)
	if err != nil {
		return err
	}
	copy(raw[idamTableBytes:], patched)

	if _, err := d.src.WriteAt(raw, off); err != nil {
		return disk.NewError(disk.KindFormat, "dmk: write failed: %v", err)
	}
	return nil
}

func (d *Disk) Sectors() disk.Iterator {
	var chs []disk.CHS
	for t := 0; t < d.tracks; t++ {
		for h := 0; h < d.sides; h++ {
			raw, _, err := d.readTrack(t, h)
			if err != nil {
				continue
			}
			sectors, err := d.scanTrack(raw)
			if err != nil {
				continue
			}
			for _, s := range sectors {
				chs = append(chs, s.CHS)
			}
		}
	}
	sort.Slice(chs, func(i, j int) bool {
		a, b := chs[i], chs[j]
		if a.Track != b.Track {
			return a.Track < b.Track
		}
		if a.Head != b.Head {
			return a.Head < b.Head
		}
		return a.Sector < b.Sector
	})
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
