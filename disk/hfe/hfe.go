// Package hfe implements the HFE floppy-emulator image format (spec.md
// §4.3 "HFE"): a 512-byte header, a track-list block of per-track
// (offset, length) entries, and side-interleaved raw MFM track data
// stored in 256-byte half-blocks.
//
// HFE's on-disk convention packs each media byte with the first
// generated bit in the least-significant position — the mirror of the
// MSB-first convention the rest of this library reasons about, kept that
// way in real HFE tooling for PIC EUSART compatibility. The mfm package's
// bitstream.LSBFirst packing already matches that convention directly, so
// no extra bit reversal is needed at this layer.
package hfe

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/storage"
)

const (
	headerBlockSize = 512
	blockSize       = 512
	halfBlockSize   = 256

	signature = "HXCPICFE"
)

// Track encoding types (spec.md §4.3; only MFM matters to this library).
const (
	EncodingISOIBM_MFM = 0x00
)

// header mirrors the fixed 512-byte HFE header, the fields this library
// cares about in file order; the remainder of the block is reserved
// padding.
type header struct {
	formatRevision      byte
	numberOfTrack       byte
	numberOfSide        byte
	trackEncoding       byte
	bitRate             uint16
	floppyRPM           uint16
	floppyInterfaceMode byte
	writeProtected      byte
	trackListOffset     uint16 // in 512-byte blocks
	writeAllowed        byte
	singleStep          byte
	track0S0AltEncoding byte
	track0S0Encoding    byte
	track0S1AltEncoding byte
	track0S1Encoding    byte
}

// trackEntry is one (offset, length) pair from the track-list block.
type trackEntry struct {
	offsetBlocks uint16
	lengthBytes  uint16
}

// Disk is an HFE image, decoded lazily per track and cached per (track,
// head) once scanned.
type Disk struct {
	src      storage.Source
	writable bool

	hdr    header
	tracks []trackEntry

	cache map[disk.CHS]disk.Sector
}

// Open validates the HFE signature and reads the header and track list.
func Open(src storage.Source, writable bool) (*Disk, error) {
	hb := make([]byte, headerBlockSize)
	if _, err := src.ReadAt(hb, 0); err != nil {
		return nil, disk.NewError(disk.KindFormat, "hfe: short header read: %v", err)
	}
	if string(hb[0:8]) != signature {
		return nil, disk.NewError(disk.KindFormat, "hfe: bad signature %q", hb[0:8])
	}

	hdr := header{
		formatRevision:      hb[8],
		numberOfTrack:       hb[9],
		numberOfSide:        hb[10],
		trackEncoding:       hb[11],
		bitRate:             uint16(hb[12]) | uint16(hb[13])<<8,
		floppyRPM:           uint16(hb[14]) | uint16(hb[15])<<8,
		floppyInterfaceMode: hb[16],
		writeProtected:      hb[17],
		trackListOffset:     uint16(hb[18]) | uint16(hb[19])<<8,
		writeAllowed:        hb[20],
		singleStep:          hb[21],
		track0S0AltEncoding: hb[22],
		track0S0Encoding:    hb[23],
		track0S1AltEncoding: hb[24],
		track0S1Encoding:    hb[25],
	}

	listOff := int64(hdr.trackListOffset) * blockSize
	listBuf := make([]byte, int(hdr.numberOfTrack)*4)
	if len(listBuf) > 0 {
		if _, err := src.ReadAt(listBuf, listOff); err != nil {
			return nil, disk.NewError(disk.KindFormat, "hfe: short track-list read: %v", err)
		}
	}

	tracks := make([]trackEntry, hdr.numberOfTrack)
	for i := range tracks {
		b := listBuf[i*4 : i*4+4]
		tracks[i] = trackEntry{
			offsetBlocks: uint16(b[0]) | uint16(b[1])<<8,
			lengthBytes:  uint16(b[2]) | uint16(b[3])<<8,
		}
	}

	return &Disk{
		src:      src,
		writable: writable,
		hdr:      hdr,
		tracks:   tracks,
		cache:    map[disk.CHS]disk.Sector{},
	}, nil
}

func (d *Disk) Heads() int  { return int(d.hdr.numberOfSide) }
func (d *Disk) Tracks() int { return int(d.hdr.numberOfTrack) }

func (d *Disk) Writable() bool {
	return d.writable && d.src.Writable() && d.hdr.writeProtected == 0
}

// sideData reads and de-interleaves one (track, head)'s raw MFM bytes out
// of the 512-byte blocks that alternate 256 bytes of side 0 with 256
// bytes of side 1.
func (d *Disk) sideData(track, head int) ([]byte, error) {
	if track < 0 || track >= len(d.tracks) {
		return nil, disk.NewError(disk.KindSectorNotFound, "hfe: track %d out of range", track)
	}
	entry := d.tracks[track]

	blockOff := int64(entry.offsetBlocks) * blockSize
	totalLen := int(entry.lengthBytes)

	out := make([]byte, 0, totalLen)
	buf := make([]byte, blockSize)
	for off := int64(0); len(out) < totalLen; off += blockSize {
		if _, err := d.src.ReadAt(buf, blockOff+off); err != nil {
			return nil, errors.Wrap(err, "hfe: short track data read")
		}
		var half []byte
		if head == 0 {
			half = buf[0:halfBlockSize]
		} else {
			half = buf[halfBlockSize:blockSize]
		}
		remain := totalLen - len(out)
		if remain < len(half) {
			half = half[:remain]
		}
		out = append(out, half...)
	}
	return out, nil
}

func (d *Disk) scan(track, head int) error {
	raw, err := d.sideData(track, head)
	if err != nil {
		return err
	}
	sectors, err := disk.ScanTrack(raw)
	if err != nil {
		return errors.Wrap(err, "hfe: scanning track")
	}
	for _, s := range sectors {
		d.cache[s.CHS] = s.Sector
	}
	return nil
}

func (d *Disk) lookup(chs disk.CHS) (disk.Sector, error) {
	if chs.Head < 0 || chs.Head >= d.Heads() {
		return disk.Sector{}, disk.NewError(disk.KindSectorNotFound, "hfe: %+v", chs)
	}
	if s, ok := d.cache[chs]; ok {
		return s, nil
	}
	if err := d.scan(chs.Track, chs.Head); err != nil {
		return disk.Sector{}, err
	}
	s, ok := d.cache[chs]
	if !ok {
		return disk.Sector{}, disk.NewError(disk.KindSectorNotFound, "hfe: %+v", chs)
	}
	return s, nil
}

func (d *Disk) SectorExists(chs disk.CHS) bool {
	_, err := d.lookup(chs)
	return err == nil
}

func (d *Disk) ReadSector(chs disk.CHS) (disk.Sector, error) {
	return d.lookup(chs)
}

// WriteSector patches an already-formatted sector's payload in place.
// Growing a track's allocated length to add new sectors is out of scope
// (spec.md Non-goals: no fresh-format track synthesis for MFM-encoded
// images); use disk/memory or a flat format for write-heavy workflows.
func (d *Disk) WriteSector(chs disk.CHS, data []byte) error {
	if !d.Writable() {
		return disk.NewError(disk.KindNotWriteable, "hfe: disk is read-only or write-protected")
	}
	if _, err := d.lookup(chs); err != nil {
		return err
	}

	raw, err := d.sideData(chs.Track, chs.Head)
	if err != nil {
		return err
	}
	sectors, err := disk.ScanTrack(raw)
	if err != nil {
		return errors.Wrap(err, "hfe: scanning track")
	}
	var target *disk.TrackSector
	for i := range sectors {
		if sectors[i].CHS == chs {
			target = &sectors[i]
			break
		}
	}
	if target == nil {
		return disk.NewError(disk.KindSectorNotFound, "hfe: %+v", chs)
	}
	if len(data) != target.Size {
		return disk.NewError(disk.KindFormat, "hfe: sector size mismatch: want %d, got %d", target.Size, len(data))
	}

	patched, err := disk.PatchSectorData(raw, *target, data)
	if err != nil {
		return err
	}
	if err := d.writeSideData(chs.Track, chs.Head, patched); err != nil {
		return err
	}

	delete(d.cache, chs)
	return d.scan(chs.Track, chs.Head)
}

// writeSideData re-interleaves a patched side's bytes back into the
// image's 512-byte blocks.
func (d *Disk) writeSideData(track, head int, data []byte) error {
	entry := d.tracks[track]
	blockOff := int64(entry.offsetBlocks) * blockSize

	buf := make([]byte, blockSize)
	for off := 0; off < len(data); off += halfBlockSize {
		if _, err := d.src.ReadAt(buf, blockOff+int64(off/halfBlockSize)*blockSize); err != nil {
			return errors.Wrap(err, "hfe: short track data read during write")
		}
		chunk := data[off:]
		if len(chunk) > halfBlockSize {
			chunk = chunk[:halfBlockSize]
		}
		if head == 0 {
			copy(buf[0:halfBlockSize], chunk)
		} else {
			copy(buf[halfBlockSize:blockSize], chunk)
		}
		if _, err := d.src.WriteAt(buf, blockOff+int64(off/halfBlockSize)*blockSize); err != nil {
			return errors.Wrap(err, "hfe: write failed")
		}
	}
	return nil
}

func (d *Disk) Sectors() disk.Iterator {
	var chs []disk.CHS
	for t := 0; t < len(d.tracks); t++ {
		for h := 0; h < d.Heads(); h++ {
			if err := d.scan(t, h); err != nil {
				continue
			}
		}
	}
	for c := range d.cache {
		chs = append(chs, c)
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
