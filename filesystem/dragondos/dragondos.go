// Package dragondos implements the DragonDos filesystem: a bitmap-based
// free-space map and a directory of continuation-chained entries, both
// living on a reserved span of the disk anchored at track 20 (spec.md
// §4.4.2).
//
// DragonDos addresses sectors by a flat logical sector number (LSN)
// rather than by (track, head, sector) directly; lsnToCHS converts an
// LSN to a CHS triple, track-major with head interleaved within a
// track (the same convention disk/vdk uses for "head-major" order).
package dragondos

import (
	"strings"

	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/filesystem"
)

const (
	sectorsPerTrack = 18
	sectorSize      = 256

	directoryStartTrack = 20

	// reservedLSNCount is the span of logical sectors DragonDos reserves
	// for its bitmap and directory, regardless of disk geometry: the
	// spec.md §9 scenario S6 literal free-space figures for all four
	// geometries (1/40, 2/40, 1/80, 2/80) only agree with a flat
	// bitmap-bit count if exactly 36 sectors are always reserved, which
	// is "two full tracks' worth of sectors" folded onto a single-sided
	// disk as tracks 20 and 21 and onto a double-sided disk as both
	// heads of track 20 alone.
	reservedLSNCount = 36

	entrySize        = 25
	nameFieldLen     = 8
	extFieldLen      = 3
	extentsPerEntry  = 4
	flagContinuation = 0x01
	flagLastExtent   = 0x40

	headerMagicStart = 0x55
	headerMagicEnd   = 0xAA

	// FileTypeBasic and FileTypeMachineCode are the two DragonDos header
	// type bytes spec.md §4.4.2 names.
	FileTypeBasic       = 1
	FileTypeMachineCode = 2
)

// extent is one (start LSN, sector count) run within a directory entry.
type extent struct {
	startLSN uint16
	count    byte
}

// dirEntry is one 25-byte DragonDos directory slot.
type dirEntry struct {
	name    [nameFieldLen]byte
	ext     [extFieldLen]byte
	flags   byte
	extents [extentsPerEntry]extent
	link    byte // continuation entry index within the directory, 0 = none
	unused  bool
}

func parseDirEntry(b []byte) dirEntry {
	var e dirEntry
	e.unused = b[0] == 0x00
	copy(e.name[:], b[0:8])
	copy(e.ext[:], b[8:11])
	e.flags = b[11]
	for i := 0; i < extentsPerEntry; i++ {
		off := 12 + i*3
		e.extents[i] = extent{
			startLSN: uint16(b[off])<<8 | uint16(b[off+1]),
			count:    b[off+2],
		}
	}
	e.link = b[24]
	return e
}

func (e dirEntry) bytes() []byte {
	b := make([]byte, entrySize)
	copy(b[0:8], e.name[:])
	copy(b[8:11], e.ext[:])
	b[11] = e.flags
	for i := 0; i < extentsPerEntry; i++ {
		off := 12 + i*3
		b[off] = byte(e.extents[i].startLSN >> 8)
		b[off+1] = byte(e.extents[i].startLSN)
		b[off+2] = e.extents[i].count
	}
	b[24] = e.link
	return b
}

func (e dirEntry) displayName() string {
	name := strings.TrimRight(string(e.name[:]), " ")
	ext := strings.TrimRight(string(e.ext[:]), " ")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

func splitName(name string) ([nameFieldLen]byte, [extFieldLen]byte) {
	var n [nameFieldLen]byte
	var e [extFieldLen]byte
	for i := range n {
		n[i] = ' '
	}
	for i := range e {
		e[i] = ' '
	}
	base := name
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		base = name[:dot]
		copy(e[:], strings.ToUpper(name[dot+1:]))
	}
	copy(n[:], strings.ToUpper(base))
	return n, e
}

// Filesystem is a DragonDos volume.
type Filesystem struct {
	d               disk.Disk
	heads           int
	tracks          int
	totalLSN        int
	reservedStart   int
	bitmapSectors   int
	entriesPerBlock int
	dirSectorStart  int // first LSN available for directory entries
	dirSectorCount  int
}

// Open wraps d as a DragonDos volume of the given geometry.
func Open(d disk.Disk, heads, tracks int) *Filesystem {
	total := heads * tracks * sectorsPerTrack
	reservedStart := directoryStartTrack * sectorsPerTrack * heads

	bitmapBytes := (total + 7) / 8
	bitmapSectors := (bitmapBytes + sectorSize - 1) / sectorSize
	if bitmapSectors < 1 {
		bitmapSectors = 1
	}

	return &Filesystem{
		d:              d,
		heads:          heads,
		tracks:         tracks,
		totalLSN:       total,
		reservedStart:  reservedStart,
		bitmapSectors:  bitmapSectors,
		dirSectorStart: reservedStart + bitmapSectors,
		dirSectorCount: reservedLSNCount - bitmapSectors,
	}
}

func (fs *Filesystem) lsnToCHS(lsn int) disk.CHS {
	perTrack := sectorsPerTrack * fs.heads
	track := lsn / perTrack
	within := lsn % perTrack
	head := within / sectorsPerTrack
	sector := within%sectorsPerTrack + 1
	return disk.CHS{Track: track, Head: head, Sector: sector}
}

// Free reports free space in bytes: every unreserved, unallocated LSN
// times the sector size (spec.md §4.4.2, §9 scenario S6).
func (fs *Filesystem) Free() (int, error) {
	bitmap, err := fs.readBitmap()
	if err != nil {
		return 0, err
	}
	free := 0
	for lsn := 0; lsn < fs.totalLSN; lsn++ {
		if !bitGet(bitmap, lsn) {
			free++
		}
	}
	return free * sectorSize, nil
}

func bitGet(bitmap []byte, i int) bool {
	return bitmap[i/8]&(1<<uint(i%8)) != 0
}

func bitSet(bitmap []byte, i int, v bool) {
	if v {
		bitmap[i/8] |= 1 << uint(i%8)
	} else {
		bitmap[i/8] &^= 1 << uint(i%8)
	}
}

func (fs *Filesystem) readBitmap() ([]byte, error) {
	buf := make([]byte, fs.bitmapSectors*sectorSize)
	for i := 0; i < fs.bitmapSectors; i++ {
		sec, err := fs.d.ReadSector(fs.lsnToCHS(fs.reservedStart + i))
		if err != nil {
			return nil, err
		}
		copy(buf[i*sectorSize:], sec.Data)
	}
	return buf[:(fs.totalLSN+7)/8], nil
}

func (fs *Filesystem) writeBitmap(bitmap []byte) error {
	for i := 0; i < fs.bitmapSectors; i++ {
		buf := make([]byte, sectorSize)
		lo := i * sectorSize
		hi := lo + sectorSize
		if hi > len(bitmap) {
			hi = len(bitmap)
		}
		if lo < len(bitmap) {
			copy(buf, bitmap[lo:hi])
		}
		if err := fs.d.WriteSector(fs.lsnToCHS(fs.reservedStart+i), buf); err != nil {
			return err
		}
	}
	return nil
}

// Format initializes a blank volume: the reserved LSN span is marked
// allocated, everything else free, and the directory is emptied.
func (fs *Filesystem) Format() error {
	bitmap := make([]byte, (fs.totalLSN+7)/8)
	for lsn := fs.reservedStart; lsn < fs.reservedStart+reservedLSNCount && lsn < fs.totalLSN; lsn++ {
		bitSet(bitmap, lsn, true)
	}
	if err := fs.writeBitmap(bitmap); err != nil {
		return err
	}

	empty := make([]byte, sectorSize)
	for i := 0; i < fs.dirSectorCount; i++ {
		if err := fs.d.WriteSector(fs.lsnToCHS(fs.dirSectorStart+i), empty); err != nil {
			return err
		}
	}
	return nil
}

func (fs *Filesystem) entriesPerSector() int { return sectorSize / entrySize }

func (fs *Filesystem) readDirectory() ([]dirEntry, error) {
	var entries []dirEntry
	perSector := fs.entriesPerSector()
	for i := 0; i < fs.dirSectorCount; i++ {
		sec, err := fs.d.ReadSector(fs.lsnToCHS(fs.dirSectorStart + i))
		if err != nil {
			return nil, err
		}
		for s := 0; s < perSector; s++ {
			off := s * entrySize
			if off+entrySize > sectorSize {
				break
			}
			e := parseDirEntry(sec.Data[off : off+entrySize])
			if e.unused {
				continue
			}
			if e.flags&flagContinuation != 0 {
				continue // folded into its parent logical entry below
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// extentsFor resolves a logical file's full extent list by following
// spec.md §4.4.2's continuation chain, up to 4 extents per physical entry.
func (fs *Filesystem) extentsFor(e dirEntry) ([]extent, error) {
	var out []extent
	for _, ex := range e.extents {
		if ex.count > 0 {
			out = append(out, ex)
		}
	}
	link := e.link
	seen := map[byte]bool{}
	for link != 0 {
		if seen[link] {
			return nil, filesystem.NewError(filesystem.KindConsistencyError, "directory continuation loop at entry %d", link)
		}
		seen[link] = true

		cont, err := fs.readEntryAt(link)
		if err != nil {
			return nil, err
		}
		for _, ex := range cont.extents {
			if ex.count > 0 {
				out = append(out, ex)
			}
		}
		link = cont.link
	}
	return out, nil
}

// readEntryAt fetches the directory slot at flat index idx (0-based
// across all directory sectors), used to resolve continuation links.
func (fs *Filesystem) readEntryAt(idx byte) (dirEntry, error) {
	perSector := fs.entriesPerSector()
	sectorIdx := int(idx) / perSector
	slot := int(idx) % perSector
	if sectorIdx >= fs.dirSectorCount {
		return dirEntry{}, filesystem.NewError(filesystem.KindConsistencyError, "continuation index %d out of range", idx)
	}
	sec, err := fs.d.ReadSector(fs.lsnToCHS(fs.dirSectorStart + sectorIdx))
	if err != nil {
		return dirEntry{}, err
	}
	off := slot * entrySize
	return parseDirEntry(sec.Data[off : off+entrySize]), nil
}

func extentsToCHS(fs *Filesystem, extents []extent) []disk.CHS {
	var out []disk.CHS
	for _, ex := range extents {
		for i := 0; i < int(ex.count); i++ {
			out = append(out, fs.lsnToCHS(int(ex.startLSN)+i))
		}
	}
	return out
}

func extentsToSize(extents []extent) int {
	total := 0
	for _, ex := range extents {
		total += int(ex.count) * sectorSize
	}
	return total
}

func (fs *Filesystem) findEntry(name string) (dirEntry, error) {
	entries, err := fs.readDirectory()
	if err != nil {
		return dirEntry{}, err
	}
	want := strings.ToUpper(name)
	for _, e := range entries {
		if strings.ToUpper(e.displayName()) == want {
			return e, nil
		}
	}
	return dirEntry{}, filesystem.NewError(filesystem.KindFileNotFound, "%s", name)
}

func (fs *Filesystem) ListFiles() ([]filesystem.FileInfo, error) {
	entries, err := fs.readDirectory()
	if err != nil {
		return nil, err
	}
	var out []filesystem.FileInfo
	for _, e := range entries {
		extents, err := fs.extentsFor(e)
		if err != nil {
			return nil, err
		}
		out = append(out, filesystem.FileInfo{
			Name:     e.displayName(),
			Size:     extentsToSize(extents),
			SectorCH: extentsToCHS(fs, extents),
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

// decodeHeader strips the spec.md §4.4.2 `55 type loLoad hiLoad loLen
// hiLen loExec hiExec AA` framing a DragonDos file carries as its first
// 9 bytes, if present.
func decodeHeader(data []byte) (fileType byte, loadAddr, length, execAddr uint16, body []byte, hasHeader bool) {
	if len(data) < 9 || data[0] != headerMagicStart || data[8] != headerMagicEnd {
		return 0, 0, 0, 0, data, false
	}
	fileType = data[1]
	loadAddr = uint16(data[2]) | uint16(data[3])<<8
	length = uint16(data[4]) | uint16(data[5])<<8
	execAddr = uint16(data[6]) | uint16(data[7])<<8
	return fileType, loadAddr, length, execAddr, data[9:], true
}

func encodeHeader(fileType byte, loadAddr, length, execAddr uint16, body []byte) []byte {
	out := make([]byte, 9+len(body))
	out[0] = headerMagicStart
	out[1] = fileType
	out[2] = byte(loadAddr)
	out[3] = byte(loadAddr >> 8)
	out[4] = byte(length)
	out[5] = byte(length >> 8)
	out[6] = byte(execAddr)
	out[7] = byte(execAddr >> 8)
	out[8] = headerMagicEnd
	copy(out[9:], body)
	return out
}

func (fs *Filesystem) ReadFile(name string) (filesystem.File, error) {
	e, err := fs.findEntry(name)
	if err != nil {
		return filesystem.File{}, err
	}
	extents, err := fs.extentsFor(e)
	if err != nil {
		return filesystem.File{}, err
	}
	chs := extentsToCHS(fs, extents)

	var raw []byte
	for _, c := range chs {
		sec, err := fs.d.ReadSector(c)
		if err != nil {
			return filesystem.File{}, err
		}
		raw = append(raw, sec.Data...)
	}

	_, _, length, _, body, hasHeader := decodeHeader(raw)
	if hasHeader && int(length) <= len(body) {
		body = body[:length]
	}

	return filesystem.File{
		Info: filesystem.FileInfo{Name: e.displayName(), Size: len(body), SectorCH: chs},
		Data: body,
	}, nil
}

func (fs *Filesystem) IsValidFilename(name string) bool {
	if name == "" || len(name) > 12 {
		return false
	}
	base := name
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		base = name[:dot]
		if len(name)-dot-1 > extFieldLen {
			return false
		}
	}
	return len(base) > 0 && len(base) <= nameFieldLen
}

// WriteFile allocates one contiguous run of free sectors from the bitmap,
// writes the data behind a machine-code file header (load and exec
// address 0), and creates (or replaces) a single-extent directory entry.
// It does not split a file across extents or write continuation entries;
// ReadFile/ListFiles do follow both for files written by other tools.
func (fs *Filesystem) WriteFile(name string, data []byte) error {
	if !fs.IsValidFilename(name) {
		return filesystem.NewError(filesystem.KindInvalidFilename, "%s", name)
	}
	if exists, _ := fs.FileExists(name); exists {
		if err := fs.DeleteFile(name); err != nil {
			return err
		}
	}

	framed := encodeHeader(FileTypeMachineCode, 0, uint16(len(data)), 0, data)
	needed := (len(framed) + sectorSize - 1) / sectorSize

	bitmap, err := fs.readBitmap()
	if err != nil {
		return err
	}

	run, err := fs.allocateContiguous(bitmap, needed)
	if err != nil {
		return err
	}
	for lsn := run; lsn < run+needed; lsn++ {
		bitSet(bitmap, lsn, true)
	}
	if err := fs.writeBitmap(bitmap); err != nil {
		return err
	}

	for i := 0; i < needed; i++ {
		buf := make([]byte, sectorSize)
		lo := i * sectorSize
		hi := lo + sectorSize
		if hi > len(framed) {
			hi = len(framed)
		}
		copy(buf, framed[lo:hi])
		if err := fs.d.WriteSector(fs.lsnToCHS(run+i), buf); err != nil {
			return err
		}
	}

	n, ext := splitName(name)
	e := dirEntry{name: n, ext: ext, flags: flagLastExtent}
	e.extents[0] = extent{startLSN: uint16(run), count: byte(needed)}
	return fs.writeNewEntry(e)
}

// allocateContiguous finds the first run of `needed` consecutive free
// (non-reserved) LSNs.
func (fs *Filesystem) allocateContiguous(bitmap []byte, needed int) (int, error) {
	run := 0
	start := -1
	for lsn := 0; lsn < fs.totalLSN; lsn++ {
		if !bitGet(bitmap, lsn) {
			if start < 0 {
				start = lsn
			}
			run++
			if run == needed {
				return start, nil
			}
		} else {
			start = -1
			run = 0
		}
	}
	return 0, filesystem.NewError(filesystem.KindFilesystemFull, "need %d contiguous sectors", needed)
}

func (fs *Filesystem) writeNewEntry(e dirEntry) error {
	perSector := fs.entriesPerSector()
	for i := 0; i < fs.dirSectorCount; i++ {
		sec, err := fs.d.ReadSector(fs.lsnToCHS(fs.dirSectorStart + i))
		if err != nil {
			return err
		}
		for s := 0; s < perSector; s++ {
			off := s * entrySize
			if off+entrySize > sectorSize {
				break
			}
			slot := parseDirEntry(sec.Data[off : off+entrySize])
			if slot.unused {
				copy(sec.Data[off:off+entrySize], e.bytes())
				return fs.d.WriteSector(fs.lsnToCHS(fs.dirSectorStart+i), sec.Data)
			}
		}
	}
	return filesystem.NewError(filesystem.KindFilesystemFull, "directory is full")
}

func (fs *Filesystem) DeleteFile(name string) error {
	perSector := fs.entriesPerSector()
	want := strings.ToUpper(name)

	for dirIdx := 0; dirIdx < fs.dirSectorCount; dirIdx++ {
		sec, err := fs.d.ReadSector(fs.lsnToCHS(fs.dirSectorStart + dirIdx))
		if err != nil {
			return err
		}
		for s := 0; s < perSector; s++ {
			off := s * entrySize
			if off+entrySize > sectorSize {
				break
			}
			e := parseDirEntry(sec.Data[off : off+entrySize])
			if e.unused || e.flags&flagContinuation != 0 {
				continue
			}
			if strings.ToUpper(e.displayName()) != want {
				continue
			}

			extents, err := fs.extentsFor(e)
			if err != nil {
				return err
			}
			bitmap, err := fs.readBitmap()
			if err != nil {
				return err
			}
			for _, ex := range extents {
				for i := 0; i < int(ex.count); i++ {
					bitSet(bitmap, int(ex.startLSN)+i, false)
				}
			}
			if err := fs.writeBitmap(bitmap); err != nil {
				return err
			}

			sec.Data[off] = 0x00
			return fs.d.WriteSector(fs.lsnToCHS(fs.dirSectorStart+dirIdx), sec.Data)
		}
	}
	return filesystem.NewError(filesystem.KindFileNotFound, "%s", name)
}

func (fs *Filesystem) RenameFile(oldName, newName string) error {
	if !fs.IsValidFilename(newName) {
		return filesystem.NewError(filesystem.KindInvalidFilename, "%s", newName)
	}
	perSector := fs.entriesPerSector()
	want := strings.ToUpper(oldName)

	for dirIdx := 0; dirIdx < fs.dirSectorCount; dirIdx++ {
		sec, err := fs.d.ReadSector(fs.lsnToCHS(fs.dirSectorStart + dirIdx))
		if err != nil {
			return err
		}
		for s := 0; s < perSector; s++ {
			off := s * entrySize
			if off+entrySize > sectorSize {
				break
			}
			e := parseDirEntry(sec.Data[off : off+entrySize])
			if e.unused || e.flags&flagContinuation != 0 {
				continue
			}
			if strings.ToUpper(e.displayName()) != want {
				continue
			}
			n, ext := splitName(newName)
			copy(sec.Data[off:off+8], n[:])
			copy(sec.Data[off+8:off+11], ext[:])
			return fs.d.WriteSector(fs.lsnToCHS(fs.dirSectorStart+dirIdx), sec.Data)
		}
	}
	return filesystem.NewError(filesystem.KindFileNotFound, "%s", oldName)
}

func (fs *Filesystem) GetFileInfo(name string) (filesystem.FileInfo, error) {
	e, err := fs.findEntry(name)
	if err != nil {
		return filesystem.FileInfo{}, err
	}
	extents, err := fs.extentsFor(e)
	if err != nil {
		return filesystem.FileInfo{}, err
	}
	return filesystem.FileInfo{
		Name:     e.displayName(),
		Size:     extentsToSize(extents),
		SectorCH: extentsToCHS(fs, extents),
	}, nil
}

func (fs *Filesystem) IsSectorAllocated(chs disk.CHS) (bool, error) {
	entries, err := fs.readDirectory()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		extents, err := fs.extentsFor(e)
		if err != nil {
			continue
		}
		for _, c := range extentsToCHS(fs, extents) {
			if c == chs {
				return true, nil
			}
		}
	}
	return false, nil
}

// Check verifies that no two files claim the same LSN and that every LSN
// a file claims is marked allocated in the bitmap. Bitmap bits set for
// sectors that no file claims are not reported.
func (fs *Filesystem) Check() (filesystem.CheckReport, error) {
	var report filesystem.CheckReport

	entries, err := fs.readDirectory()
	if err != nil {
		return report, err
	}
	bitmap, err := fs.readBitmap()
	if err != nil {
		return report, err
	}

	claimed := map[int]string{}
	for _, e := range entries {
		name := e.displayName()
		extents, err := fs.extentsFor(e)
		if err != nil {
			report.Errors = append(report.Errors, name+": "+err.Error())
			continue
		}
		for _, ex := range extents {
			for i := 0; i < int(ex.count); i++ {
				lsn := int(ex.startLSN) + i
				if !bitGet(bitmap, lsn) {
					report.Errors = append(report.Errors, name+": sector not marked allocated in bitmap")
				}
				if owner, ok := claimed[lsn]; ok {
					report.Errors = append(report.Errors, name+": LSN shared with "+owner)
				} else {
					claimed[lsn] = name
				}
			}
		}
	}
	return report, nil
}
