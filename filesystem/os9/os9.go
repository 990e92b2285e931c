// Package os9 implements the OS-9 filesystem: a disk descriptor in
// sector 0, file descriptors (FDs) carrying attributes and a segment
// list, and directory files whose entries are 32 bytes of
// name(29)+3-byte FD sector (spec.md §4.4.4).
package os9

import (
	"strings"

	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/filesystem"
)

const (
	descriptorSectorSize = 256

	// Disk identification sector (LSN 0) field offsets.
	offTotalSectors  = 0x00 // 3 bytes, big-endian
	offSectorsPerTrk = 0x03 // 2 bytes
	offHeads         = 0x05
	offClusterSize   = 0x10 // 2 bytes, in sectors
	offRootFD        = 0x05 + 0x08 // 3 bytes, LSN of the root directory's FD
	offBitmapStart   = 0x19        // 3 bytes, LSN of the allocation bitmap's first sector

	// File descriptor (FD) sector field offsets.
	fdAttributes  = 0x00
	fdOwner       = 0x01
	fdLinkCount   = 0x08
	fdFileSize    = 0x09 // 4 bytes, big-endian
	fdSegmentList = 0x10 // 0x30: 48 segments of (LSN:3, count:2)

	segmentListOffset = 0x10
	segmentSize       = 5
	maxSegments        = 48

	dirEntrySize = 32
	nameFieldLen = 29

	attrDirectory = 0x20
)

// lsnToCHS maps a flat OS-9 logical sector number to CHS using the
// same track-major, head-interleaved layout as DragonDos (spec.md
// §4.4.1's addressing convention, reused here since OS-9 also tracks a
// flat LSN space rather than per-track sector IDs).
func lsnToCHS(lsn, sectorsPerTrack, heads int) disk.CHS {
	perTrack := sectorsPerTrack * heads
	track := lsn / perTrack
	within := lsn % perTrack
	head := within / sectorsPerTrack
	sector := within%sectorsPerTrack + 1
	return disk.CHS{Track: track, Head: head, Sector: sector}
}

func get24(b []byte, off int) int {
	return int(b[off])<<16 | int(b[off+1])<<8 | int(b[off+2])
}

func put24(b []byte, off int, v int) {
	b[off] = byte(v >> 16)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v)
}

func get16(b []byte, off int) int { return int(b[off])<<8 | int(b[off+1]) }

func put16(b []byte, off int, v int) {
	b[off] = byte(v >> 8)
	b[off+1] = byte(v)
}

// descriptor is the sector-0 disk identification sector.
type descriptor struct {
	totalSectors    int
	sectorsPerTrack int
	heads           int
	clusterSize     int
	rootFD          int
	bitmapStart     int
}

func parseDescriptor(b []byte) descriptor {
	return descriptor{
		totalSectors:    get24(b, offTotalSectors),
		sectorsPerTrack: get16(b, offSectorsPerTrk),
		heads:           int(b[offHeads]),
		clusterSize:     get16(b, offClusterSize),
		rootFD:          get24(b, offRootFD),
		bitmapStart:     get24(b, offBitmapStart),
	}
}

func (d descriptor) bytes() []byte {
	b := make([]byte, descriptorSectorSize)
	put24(b, offTotalSectors, d.totalSectors)
	put16(b, offSectorsPerTrk, d.sectorsPerTrack)
	b[offHeads] = byte(d.heads)
	put16(b, offClusterSize, d.clusterSize)
	put24(b, offRootFD, d.rootFD)
	put24(b, offBitmapStart, d.bitmapStart)
	return b
}

// segment is one contiguous run of sectors in a file descriptor's
// segment list.
type segment struct {
	startLSN int
	count    int
}

// fileDescriptor is one OS-9 FD sector.
type fileDescriptor struct {
	attributes byte
	owner      byte
	linkCount  byte
	size       int
	segments   []segment
}

func parseFD(b []byte) fileDescriptor {
	fd := fileDescriptor{
		attributes: b[fdAttributes],
		owner:      b[fdOwner],
		linkCount:  b[fdLinkCount],
		size:       int(b[fdFileSize])<<24 | int(b[fdFileSize+1])<<16 | int(b[fdFileSize+2])<<8 | int(b[fdFileSize+3]),
	}
	for i := 0; i < maxSegments; i++ {
		off := segmentListOffset + i*segmentSize
		if off+segmentSize > len(b) {
			break
		}
		lsn := get24(b, off)
		count := get16(b, off+3)
		if lsn == 0 && count == 0 {
			break
		}
		fd.segments = append(fd.segments, segment{startLSN: lsn, count: count})
	}
	return fd
}

func (fd fileDescriptor) bytes() []byte {
	b := make([]byte, descriptorSectorSize)
	b[fdAttributes] = fd.attributes
	b[fdOwner] = fd.owner
	b[fdLinkCount] = fd.linkCount
	b[fdFileSize] = byte(fd.size >> 24)
	b[fdFileSize+1] = byte(fd.size >> 16)
	b[fdFileSize+2] = byte(fd.size >> 8)
	b[fdFileSize+3] = byte(fd.size)
	for i, seg := range fd.segments {
		off := segmentListOffset + i*segmentSize
		put24(b, off, seg.startLSN)
		put16(b, off+3, seg.count)
	}
	return b
}

func (fd fileDescriptor) isDirectory() bool { return fd.attributes&attrDirectory != 0 }

// dirEntry is one 32-byte directory-file entry: a name (up to 28
// characters, the final byte of the name field with the high bit set
// to mark the end) followed by a 3-byte FD sector number.
type dirEntry struct {
	name   string
	fdLSN  int
	unused bool
}

func parseDirEntries(data []byte) []dirEntry {
	var out []dirEntry
	for off := 0; off+dirEntrySize <= len(data); off += dirEntrySize {
		raw := data[off : off+nameFieldLen]
		fdLSN := get24(data, off+nameFieldLen)
		if raw[0] == 0x00 || fdLSN == 0 {
			continue
		}
		var nameBuf []byte
		for _, c := range raw {
			if c&0x80 != 0 {
				nameBuf = append(nameBuf, c&0x7F)
				break
			}
			if c == 0x00 {
				break
			}
			nameBuf = append(nameBuf, c)
		}
		out = append(out, dirEntry{name: string(nameBuf), fdLSN: fdLSN})
	}
	return out
}

func encodeDirEntry(name string, fdLSN int) []byte {
	b := make([]byte, dirEntrySize)
	n := []byte(strings.ToUpper(name))
	if len(n) > nameFieldLen {
		n = n[:nameFieldLen]
	}
	copy(b, n)
	b[len(n)-1] |= 0x80
	put24(b, nameFieldLen, fdLSN)
	return b
}

// Filesystem is an OS-9 volume.
type Filesystem struct {
	d    disk.Disk
	desc descriptor
}

// Open reads the sector-0 disk descriptor and wraps d as an OS-9
// volume.
func Open(d disk.Disk) (*Filesystem, error) {
	sec, err := d.ReadSector(disk.CHS{Track: 0, Head: 0, Sector: 1})
	if err != nil {
		return nil, err
	}
	return &Filesystem{d: d, desc: parseDescriptor(sec.Data)}, nil
}

// Format initializes a blank OS-9 volume: descriptor sector, an empty
// root directory FD/segment, and a bitmap in which only the descriptor,
// root FD, bitmap and root directory sectors are marked allocated.
func Format(d disk.Disk, heads, tracks, sectorsPerTrack int) (*Filesystem, error) {
	total := heads * tracks * sectorsPerTrack
	desc := descriptor{
		totalSectors:    total,
		sectorsPerTrack: sectorsPerTrack,
		heads:           heads,
		clusterSize:     1,
		rootFD:          1,
		bitmapStart:     2,
	}
	fs := &Filesystem{d: d, desc: desc}

	if err := d.WriteSector(fs.chs(0), desc.bytes()); err != nil {
		return nil, err
	}

	bitmapBytes := (total + 7) / 8
	bitmapSectors := (bitmapBytes + descriptorSectorSize - 1) / descriptorSectorSize
	if bitmapSectors < 1 {
		bitmapSectors = 1
	}
	rootDirLSN := desc.bitmapStart + bitmapSectors

	rootFD := fileDescriptor{
		attributes: attrDirectory,
		linkCount:  1,
		size:       0,
		segments:   []segment{{startLSN: rootDirLSN, count: 1}},
	}
	if err := d.WriteSector(fs.chs(desc.rootFD), rootFD.bytes()); err != nil {
		return nil, err
	}
	if err := d.WriteSector(fs.chs(rootDirLSN), make([]byte, descriptorSectorSize)); err != nil {
		return nil, err
	}

	bitmap := make([]byte, bitmapSectors*descriptorSectorSize)
	// Reserve sectors 0 (descriptor), desc.rootFD, rootDirLSN, and the
	// bitmap's own sectors.
	reserve := func(lsn int) { bitmap[lsn/8] |= 1 << uint(lsn%8) }
	reserve(0)
	reserve(desc.rootFD)
	reserve(rootDirLSN)
	for i := 0; i < bitmapSectors; i++ {
		reserve(desc.bitmapStart + i)
	}
	for i := 0; i < bitmapSectors; i++ {
		if err := d.WriteSector(fs.chs(desc.bitmapStart+i), bitmap[i*descriptorSectorSize:(i+1)*descriptorSectorSize]); err != nil {
			return nil, err
		}
	}

	return fs, nil
}

func (fs *Filesystem) chs(lsn int) disk.CHS {
	return lsnToCHS(lsn, fs.desc.sectorsPerTrack, fs.desc.heads)
}

func (fs *Filesystem) readFD(lsn int) (fileDescriptor, error) {
	sec, err := fs.d.ReadSector(fs.chs(lsn))
	if err != nil {
		return fileDescriptor{}, err
	}
	return parseFD(sec.Data), nil
}

func (fs *Filesystem) writeFD(lsn int, fd fileDescriptor) error {
	return fs.d.WriteSector(fs.chs(lsn), fd.bytes())
}

func (fs *Filesystem) segmentCHS(fd fileDescriptor) []disk.CHS {
	var out []disk.CHS
	for _, seg := range fd.segments {
		for i := 0; i < seg.count; i++ {
			out = append(out, fs.chs(seg.startLSN+i))
		}
	}
	return out
}

func (fs *Filesystem) readDirEntries() ([]dirEntry, error) {
	rootFD, err := fs.readFD(fs.desc.rootFD)
	if err != nil {
		return nil, err
	}
	var entries []dirEntry
	for _, chs := range fs.segmentCHS(rootFD) {
		sec, err := fs.d.ReadSector(chs)
		if err != nil {
			return nil, err
		}
		entries = append(entries, parseDirEntries(sec.Data)...)
	}
	return entries, nil
}

func (fs *Filesystem) findEntry(name string) (dirEntry, error) {
	entries, err := fs.readDirEntries()
	if err != nil {
		return dirEntry{}, err
	}
	want := strings.ToUpper(name)
	for _, e := range entries {
		if strings.ToUpper(e.name) == want {
			return e, nil
		}
	}
	return dirEntry{}, filesystem.NewError(filesystem.KindFileNotFound, "%s", name)
}

func (fs *Filesystem) ListFiles() ([]filesystem.FileInfo, error) {
	entries, err := fs.readDirEntries()
	if err != nil {
		return nil, err
	}
	var out []filesystem.FileInfo
	for _, e := range entries {
		fd, err := fs.readFD(e.fdLSN)
		if err != nil {
			return nil, err
		}
		out = append(out, filesystem.FileInfo{
			Name:     e.name,
			Size:     fd.size,
			IsDir:    fd.isDirectory(),
			SectorCH: fs.segmentCHS(fd),
		})
	}
	return out, nil
}

func (fs *Filesystem) FileExists(name string) (bool, error) {
	_, err := fs.findEntry(name)
	if filesystem.IsKind(err, filesystem.KindFileNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (fs *Filesystem) ReadFile(name string) (filesystem.File, error) {
	e, err := fs.findEntry(name)
	if err != nil {
		return filesystem.File{}, err
	}
	fd, err := fs.readFD(e.fdLSN)
	if err != nil {
		return filesystem.File{}, err
	}

	var data []byte
	for _, chs := range fs.segmentCHS(fd) {
		sec, err := fs.d.ReadSector(chs)
		if err != nil {
			return filesystem.File{}, err
		}
		data = append(data, sec.Data...)
	}
	if len(data) > fd.size {
		data = data[:fd.size]
	}

	return filesystem.File{
		Info: filesystem.FileInfo{Name: e.name, Size: fd.size, SectorCH: fs.segmentCHS(fd)},
		Data: data,
	}, nil
}

func (fs *Filesystem) IsValidFilename(name string) bool {
	return len(name) > 0 && len(name) < nameFieldLen && !strings.ContainsAny(name, "/\\")
}

func (fs *Filesystem) readBitmap() ([]byte, int, error) {
	bitmapBytes := (fs.desc.totalSectors + 7) / 8
	bitmapSectors := (bitmapBytes + descriptorSectorSize - 1) / descriptorSectorSize
	if bitmapSectors < 1 {
		bitmapSectors = 1
	}
	bitmap := make([]byte, bitmapSectors*descriptorSectorSize)
	for i := 0; i < bitmapSectors; i++ {
		sec, err := fs.d.ReadSector(fs.chs(fs.desc.bitmapStart + i))
		if err != nil {
			return nil, 0, err
		}
		copy(bitmap[i*descriptorSectorSize:], sec.Data)
	}
	return bitmap, bitmapSectors, nil
}

func (fs *Filesystem) writeBitmap(bitmap []byte, bitmapSectors int) error {
	for i := 0; i < bitmapSectors; i++ {
		if err := fs.d.WriteSector(fs.chs(fs.desc.bitmapStart+i), bitmap[i*descriptorSectorSize:(i+1)*descriptorSectorSize]); err != nil {
			return err
		}
	}
	return nil
}

func bitGet(bitmap []byte, lsn int) bool { return bitmap[lsn/8]&(1<<uint(lsn%8)) != 0 }
func bitSet(bitmap []byte, lsn int, v bool) {
	if v {
		bitmap[lsn/8] |= 1 << uint(lsn%8)
	} else {
		bitmap[lsn/8] &^= 1 << uint(lsn%8)
	}
}

// Free reports unallocated space from the bitmap, counting each clear bit
// as one free 256-byte sector; the descriptor's cluster size is not
// applied.
func (fs *Filesystem) Free() (int, error) {
	bitmap, _, err := fs.readBitmap()
	if err != nil {
		return 0, err
	}
	free := 0
	for lsn := 0; lsn < fs.desc.totalSectors; lsn++ {
		if !bitGet(bitmap, lsn) {
			free++
		}
	}
	return free * descriptorSectorSize, nil
}

func (fs *Filesystem) allocateContiguous(count int, bitmap []byte) (int, error) {
	run := 0
	for lsn := 0; lsn < fs.desc.totalSectors; lsn++ {
		if !bitGet(bitmap, lsn) {
			run++
			if run == count {
				start := lsn - count + 1
				for i := 0; i < count; i++ {
					bitSet(bitmap, start+i, true)
				}
				return start, nil
			}
		} else {
			run = 0
		}
	}
	return 0, filesystem.NewError(filesystem.KindFilesystemFull, "no contiguous run of %d sectors", count)
}

func (fs *Filesystem) allocateFD(bitmap []byte) (int, error) {
	lsn, err := fs.allocateContiguous(1, bitmap)
	return lsn, err
}

func (fs *Filesystem) WriteFile(name string, data []byte) error {
	if !fs.IsValidFilename(name) {
		return filesystem.NewError(filesystem.KindInvalidFilename, "%s", name)
	}
	if exists, err := fs.FileExists(name); err != nil {
		return err
	} else if exists {
		if err := fs.DeleteFile(name); err != nil {
			return err
		}
	}

	bitmap, bitmapSectors, err := fs.readBitmap()
	if err != nil {
		return err
	}

	needed := (len(data) + descriptorSectorSize - 1) / descriptorSectorSize
	if needed == 0 {
		needed = 1
	}
	dataStart, err := fs.allocateContiguous(needed, bitmap)
	if err != nil {
		return err
	}
	fdLSN, err := fs.allocateFD(bitmap)
	if err != nil {
		return err
	}

	fd := fileDescriptor{
		linkCount: 1,
		size:      len(data),
		segments:  []segment{{startLSN: dataStart, count: needed}},
	}
	if err := fs.writeFD(fdLSN, fd); err != nil {
		return err
	}

	padded := make([]byte, needed*descriptorSectorSize)
	copy(padded, data)
	for i := 0; i < needed; i++ {
		chs := fs.chs(dataStart + i)
		if err := fs.d.WriteSector(chs, padded[i*descriptorSectorSize:(i+1)*descriptorSectorSize]); err != nil {
			return err
		}
	}

	if err := fs.appendDirEntry(name, fdLSN); err != nil {
		return err
	}
	return fs.writeBitmap(bitmap, bitmapSectors)
}

func (fs *Filesystem) appendDirEntry(name string, fdLSN int) error {
	rootFD, err := fs.readFD(fs.desc.rootFD)
	if err != nil {
		return err
	}
	chsList := fs.segmentCHS(rootFD)
	perSector := descriptorSectorSize / dirEntrySize

	for _, chs := range chsList {
		sec, err := fs.d.ReadSector(chs)
		if err != nil {
			return err
		}
		buf := append([]byte(nil), sec.Data...)
		for slot := 0; slot < perSector; slot++ {
			off := slot * dirEntrySize
			if buf[off] == 0x00 {
				copy(buf[off:off+dirEntrySize], encodeDirEntry(name, fdLSN))
				return fs.d.WriteSector(chs, buf)
			}
		}
	}
	return filesystem.NewError(filesystem.KindFilesystemFull, "root directory full")
}

func (fs *Filesystem) DeleteFile(name string) error {
	want := strings.ToUpper(name)

	rootFD, err := fs.readFD(fs.desc.rootFD)
	if err != nil {
		return err
	}
	perSector := descriptorSectorSize / dirEntrySize

	found := false
	var target dirEntry
	for _, chs := range fs.segmentCHS(rootFD) {
		sec, err := fs.d.ReadSector(chs)
		if err != nil {
			return err
		}
		buf := append([]byte(nil), sec.Data...)
		dirty := false
		for slot := 0; slot < perSector; slot++ {
			off := slot * dirEntrySize
			if buf[off] == 0x00 {
				continue
			}
			es := parseDirEntries(buf[off : off+dirEntrySize])
			if len(es) == 0 || strings.ToUpper(es[0].name) != want {
				continue
			}
			target = es[0]
			found = true
			buf[off] = 0x00
			dirty = true
		}
		if dirty {
			if err := fs.d.WriteSector(chs, buf); err != nil {
				return err
			}
		}
	}
	if !found {
		return filesystem.NewError(filesystem.KindFileNotFound, "%s", name)
	}

	fd, err := fs.readFD(target.fdLSN)
	if err != nil {
		return err
	}
	bitmap, bitmapSectors, err := fs.readBitmap()
	if err != nil {
		return err
	}
	bitSet(bitmap, target.fdLSN, false)
	for _, seg := range fd.segments {
		for i := 0; i < seg.count; i++ {
			bitSet(bitmap, seg.startLSN+i, false)
		}
	}
	return fs.writeBitmap(bitmap, bitmapSectors)
}

func (fs *Filesystem) RenameFile(oldName, newName string) error {
	if !fs.IsValidFilename(newName) {
		return filesystem.NewError(filesystem.KindInvalidFilename, "%s", newName)
	}
	rootFD, err := fs.readFD(fs.desc.rootFD)
	if err != nil {
		return err
	}
	want := strings.ToUpper(oldName)
	perSector := descriptorSectorSize / dirEntrySize

	for _, chs := range fs.segmentCHS(rootFD) {
		sec, err := fs.d.ReadSector(chs)
		if err != nil {
			return err
		}
		buf := append([]byte(nil), sec.Data...)
		for slot := 0; slot < perSector; slot++ {
			off := slot * dirEntrySize
			if buf[off] == 0x00 {
				continue
			}
			es := parseDirEntries(buf[off : off+dirEntrySize])
			if len(es) == 0 || strings.ToUpper(es[0].name) != want {
				continue
			}
			copy(buf[off:off+dirEntrySize], encodeDirEntry(newName, es[0].fdLSN))
			return fs.d.WriteSector(chs, buf)
		}
	}
	return filesystem.NewError(filesystem.KindFileNotFound, "%s", oldName)
}

func (fs *Filesystem) GetFileInfo(name string) (filesystem.FileInfo, error) {
	e, err := fs.findEntry(name)
	if err != nil {
		return filesystem.FileInfo{}, err
	}
	fd, err := fs.readFD(e.fdLSN)
	if err != nil {
		return filesystem.FileInfo{}, err
	}
	return filesystem.FileInfo{Name: e.name, Size: fd.size, IsDir: fd.isDirectory(), SectorCH: fs.segmentCHS(fd)}, nil
}

func (fs *Filesystem) IsSectorAllocated(chs disk.CHS) (bool, error) {
	bitmap, _, err := fs.readBitmap()
	if err != nil {
		return false, err
	}
	for lsn := 0; lsn < fs.desc.totalSectors; lsn++ {
		if fs.chs(lsn) == chs {
			return bitGet(bitmap, lsn), nil
		}
	}
	return false, nil
}

// Check verifies every directory entry's FD resolves and that no two
// files claim overlapping segments.
func (fs *Filesystem) Check() (filesystem.CheckReport, error) {
	var report filesystem.CheckReport

	entries, err := fs.readDirEntries()
	if err != nil {
		return report, err
	}

	claimed := map[disk.CHS]string{}
	for _, e := range entries {
		fd, err := fs.readFD(e.fdLSN)
		if err != nil {
			report.Errors = append(report.Errors, e.name+": "+err.Error())
			continue
		}
		for _, chs := range fs.segmentCHS(fd) {
			if owner, ok := claimed[chs]; ok {
				report.Errors = append(report.Errors, e.name+": sector shared with "+owner)
			} else {
				claimed[chs] = e.name
			}
		}
	}
	return report, nil
}
