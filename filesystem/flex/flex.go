// Package flex implements the FLEX filesystem: a directory of 24-byte
// entries starting at (1-based) sector-index 5, each file a chain of
// sectors whose first two bytes point at the next sector in the chain
// (spec.md §4.4.3).
package flex

import (
	"strings"

	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/filesystem"
)

const (
	sectorsPerTrack = 18

	directoryStartIndex = 5 // 1-based linear sector index
	entriesPerSector     = 10
	entrySize            = 24
	entriesStartOffset   = 16

	nameFieldLen = 8
	extFieldLen  = 3
)

// dirEntry is one 24-byte FLEX directory slot.
type dirEntry struct {
	name        [nameFieldLen]byte
	ext         [extFieldLen]byte
	startCHS    disk.CHS
	endCHS      disk.CHS
	sectorCount uint16
	randomFlag  byte
	month, day  byte
	yearOffset  byte
	unused      bool
}

func parseDirEntry(b []byte, sides int) dirEntry {
	var e dirEntry
	e.unused = b[0] == 0x00
	copy(e.name[:], b[0:8])
	copy(e.ext[:], b[8:11])
	e.startCHS = linearToCHS(int(b[11])*256+int(b[12]), sides)
	e.endCHS = linearToCHS(int(b[13])*256+int(b[14]), sides)
	e.sectorCount = uint16(b[15])<<8 | uint16(b[16])
	e.randomFlag = b[17]
	e.month = b[18]
	e.day = b[19]
	e.yearOffset = b[20]
	return e
}

func (e dirEntry) displayName() string {
	name := strings.TrimRight(string(e.name[:]), " ")
	ext := strings.TrimRight(string(e.ext[:]), " ")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// linearToCHS converts a 1-based linear sector index to CHS, 18
// sectors/track interleaved across heads the same way disk/vdk lays
// sectors out head-major within a track.
func linearToCHS(index int, sides int) disk.CHS {
	if index <= 0 {
		return disk.CHS{}
	}
	zero := index - 1
	perTrack := sectorsPerTrack * sides
	track := zero / perTrack
	within := zero % perTrack
	head := within / sectorsPerTrack
	sector := within%sectorsPerTrack + 1
	return disk.CHS{Track: track, Head: head, Sector: sector}
}

func chsToLinear(c disk.CHS, sides int) int {
	return c.Track*sectorsPerTrack*sides + c.Head*sectorsPerTrack + (c.Sector - 1) + 1
}

func indexToCHS(index, sides int) disk.CHS { return linearToCHS(index, sides) }

// Filesystem is a FLEX volume.
type Filesystem struct {
	d     disk.Disk
	sides int
}

// Open wraps d as a FLEX volume.
func Open(d disk.Disk, sides int) *Filesystem {
	return &Filesystem{d: d, sides: sides}
}

// directorySectors walks the directory's own singly-linked sector chain
// (next-sector index in the first two bytes, big-endian) starting at
// sector-index 5.
func (fs *Filesystem) directorySectors() ([]disk.CHS, error) {
	var out []disk.CHS
	idx := directoryStartIndex
	seen := map[int]bool{}
	for idx != 0 {
		if seen[idx] {
			return nil, filesystem.NewError(filesystem.KindConsistencyError, "directory chain loop at sector %d", idx)
		}
		seen[idx] = true
		chs := indexToCHS(idx, fs.sides)
		out = append(out, chs)

		sec, err := fs.d.ReadSector(chs)
		if err != nil {
			return nil, err
		}
		idx = int(sec.Data[0])<<8 | int(sec.Data[1])
	}
	return out, nil
}

func (fs *Filesystem) readDirectory() ([]dirEntry, error) {
	sectors, err := fs.directorySectors()
	if err != nil {
		return nil, err
	}
	var entries []dirEntry
	for _, chs := range sectors {
		sec, err := fs.d.ReadSector(chs)
		if err != nil {
			return nil, err
		}
		for i := 0; i < entriesPerSector; i++ {
			off := entriesStartOffset + i*entrySize
			if off+entrySize > len(sec.Data) {
				break
			}
			e := parseDirEntry(sec.Data[off:off+entrySize], fs.sides)
			if e.unused {
				continue
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
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

// fileChain follows a file's sector-linkage, each sector's first two
// bytes pointing at the next (spec.md §4.4.3), until a zero pointer.
func (fs *Filesystem) fileChain(start disk.CHS) ([]disk.CHS, error) {
	var out []disk.CHS
	idx := chsToLinear(start, fs.sides)
	seen := map[int]bool{}
	for idx != 0 {
		if seen[idx] {
			return nil, filesystem.NewError(filesystem.KindConsistencyError, "file chain loop at sector %d", idx)
		}
		seen[idx] = true
		chs := indexToCHS(idx, fs.sides)
		out = append(out, chs)

		sec, err := fs.d.ReadSector(chs)
		if err != nil {
			return nil, err
		}
		idx = int(sec.Data[0])<<8 | int(sec.Data[1])
	}
	return out, nil
}

func (fs *Filesystem) ListFiles() ([]filesystem.FileInfo, error) {
	entries, err := fs.readDirectory()
	if err != nil {
		return nil, err
	}
	var out []filesystem.FileInfo
	for _, e := range entries {
		chain, err := fs.fileChain(e.startCHS)
		if err != nil {
			return nil, err
		}
		out = append(out, filesystem.FileInfo{
			Name:     e.displayName(),
			Size:     int(e.sectorCount) * 254, // each sector holds 2 link bytes + 254 data bytes
			SectorCH: chain,
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
	chain, err := fs.fileChain(e.startCHS)
	if err != nil {
		return filesystem.File{}, err
	}

	var data []byte
	for _, chs := range chain {
		sec, err := fs.d.ReadSector(chs)
		if err != nil {
			return filesystem.File{}, err
		}
		data = append(data, sec.Data[2:]...) // skip the 2-byte next-sector link
	}

	return filesystem.File{
		Info: filesystem.FileInfo{Name: e.displayName(), Size: len(data), SectorCH: chain},
		Data: data,
	}, nil
}

func (fs *Filesystem) IsValidFilename(name string) bool {
	if name == "" {
		return false
	}
	base := name
	ext := ""
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		base = name[:dot]
		ext = name[dot+1:]
	}
	return len(base) > 0 && len(base) <= nameFieldLen && len(ext) <= extFieldLen
}

// allocatedSectors returns every sector currently claimed by the
// directory chain or by some file's chain.
func (fs *Filesystem) allocatedSectors() (map[disk.CHS]bool, error) {
	allocated := map[disk.CHS]bool{}
	dirSectors, err := fs.directorySectors()
	if err != nil {
		return nil, err
	}
	for _, chs := range dirSectors {
		allocated[chs] = true
	}
	entries, err := fs.readDirectory()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		chain, err := fs.fileChain(e.startCHS)
		if err != nil {
			return nil, err
		}
		for _, chs := range chain {
			allocated[chs] = true
		}
	}
	return allocated, nil
}

// Free reports the count of unallocated sectors times sector size
// (spec.md §9 Open Question (a): FLEX's free()/check() are left
// unimplemented in the original, so this follows the spec's explicit
// instruction rather than guessing at source behavior).
func (fs *Filesystem) Free() (int, error) {
	allocated, err := fs.allocatedSectors()
	if err != nil {
		return 0, err
	}

	free := 0
	it := fs.d.Sectors()
	for {
		chs, ok := it.Next()
		if !ok {
			break
		}
		if !allocated[chs] {
			free++
		}
	}
	return free * 256, nil
}

// freeLinearIndices returns count free linear sector indices, in
// ascending order, skipping anything in allocated.
func (fs *Filesystem) freeLinearIndices(count int, allocated map[disk.CHS]bool) ([]int, error) {
	var out []int
	it := fs.d.Sectors()
	for len(out) < count {
		chs, ok := it.Next()
		if !ok {
			return nil, filesystem.NewError(filesystem.KindFilesystemFull, "not enough free sectors")
		}
		if allocated[chs] {
			continue
		}
		out = append(out, chsToLinear(chs, fs.sides))
	}
	return out, nil
}

// WriteFile allocates a fresh chain of sectors for data (254 bytes of
// body per sector, the first two bytes of each holding the next
// sector's linear index, big-endian, 0x0000 terminating the chain),
// then appends a directory entry pointing at the chain's head.
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

	const bodyPerSector = 254
	needed := (len(data) + bodyPerSector - 1) / bodyPerSector
	if needed == 0 {
		needed = 1
	}

	allocated, err := fs.allocatedSectors()
	if err != nil {
		return err
	}
	indices, err := fs.freeLinearIndices(needed, allocated)
	if err != nil {
		return err
	}

	for i, idx := range indices {
		next := 0
		if i < len(indices)-1 {
			next = indices[i+1]
		}
		off := i * bodyPerSector
		end := off + bodyPerSector
		if end > len(data) {
			end = len(data)
		}
		buf := make([]byte, 256)
		buf[0] = byte(next >> 8)
		buf[1] = byte(next)
		copy(buf[2:], data[off:end])
		if err := fs.d.WriteSector(indexToCHS(idx, fs.sides), buf); err != nil {
			return err
		}
	}

	base := name
	ext := ""
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		base = name[:dot]
		ext = name[dot+1:]
	}
	return fs.appendDirEntry(base, ext, indices[0], len(indices))
}

func (fs *Filesystem) appendDirEntry(base, ext string, startIdx, count int) error {
	dirSectors, err := fs.directorySectors()
	if err != nil {
		return err
	}

	encode := func(buf []byte, slot int) {
		off := entriesStartOffset + slot*entrySize
		copy(buf[off:off+8], []byte(padField(base, nameFieldLen)))
		copy(buf[off+8:off+11], []byte(padField(ext, extFieldLen)))
		endLinear := startIdx + count - 1
		buf[off+11] = byte(startIdx >> 8)
		buf[off+12] = byte(startIdx)
		buf[off+13] = byte(endLinear >> 8)
		buf[off+14] = byte(endLinear)
		buf[off+15] = byte(count >> 8)
		buf[off+16] = byte(count)
	}

	for _, chs := range dirSectors {
		sec, err := fs.d.ReadSector(chs)
		if err != nil {
			return err
		}
		buf := append([]byte(nil), sec.Data...)
		for slot := 0; slot < entriesPerSector; slot++ {
			off := entriesStartOffset + slot*entrySize
			if buf[off] == 0x00 {
				encode(buf, slot)
				return fs.d.WriteSector(chs, buf)
			}
		}
	}
	return filesystem.NewError(filesystem.KindFilesystemFull, "directory full")
}

func padField(s string, n int) string {
	s = strings.ToUpper(s)
	if len(s) > n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// DeleteFile clears the file's directory slot. The sectors in its
// chain are not overwritten, only dropped from the allocated set the
// next time Free or WriteFile computes it.
func (fs *Filesystem) DeleteFile(name string) error {
	dirSectors, err := fs.directorySectors()
	if err != nil {
		return err
	}
	want := strings.ToUpper(name)

	for _, chs := range dirSectors {
		sec, err := fs.d.ReadSector(chs)
		if err != nil {
			return err
		}
		buf := append([]byte(nil), sec.Data...)
		for slot := 0; slot < entriesPerSector; slot++ {
			off := entriesStartOffset + slot*entrySize
			if buf[off] == 0x00 {
				continue
			}
			e := parseDirEntry(buf[off:off+entrySize], fs.sides)
			if strings.ToUpper(e.displayName()) != want {
				continue
			}
			buf[off] = 0x00
			return fs.d.WriteSector(chs, buf)
		}
	}
	return filesystem.NewError(filesystem.KindFileNotFound, "%s", name)
}

// RenameFile rewrites the directory entry's name/extension fields in
// place; the file's chain is untouched.
func (fs *Filesystem) RenameFile(oldName, newName string) error {
	if !fs.IsValidFilename(newName) {
		return filesystem.NewError(filesystem.KindInvalidFilename, "%s", newName)
	}
	dirSectors, err := fs.directorySectors()
	if err != nil {
		return err
	}
	want := strings.ToUpper(oldName)

	newBase := newName
	newExt := ""
	if dot := strings.IndexByte(newName, '.'); dot >= 0 {
		newBase = newName[:dot]
		newExt = newName[dot+1:]
	}

	for _, chs := range dirSectors {
		sec, err := fs.d.ReadSector(chs)
		if err != nil {
			return err
		}
		buf := append([]byte(nil), sec.Data...)
		for slot := 0; slot < entriesPerSector; slot++ {
			off := entriesStartOffset + slot*entrySize
			if buf[off] == 0x00 {
				continue
			}
			e := parseDirEntry(buf[off:off+entrySize], fs.sides)
			if strings.ToUpper(e.displayName()) != want {
				continue
			}
			copy(buf[off:off+8], []byte(padField(newBase, nameFieldLen)))
			copy(buf[off+8:off+11], []byte(padField(newExt, extFieldLen)))
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
	chain, err := fs.fileChain(e.startCHS)
	if err != nil {
		return filesystem.FileInfo{}, err
	}
	return filesystem.FileInfo{Name: e.displayName(), Size: int(e.sectorCount) * 254, SectorCH: chain}, nil
}

func (fs *Filesystem) IsSectorAllocated(chs disk.CHS) (bool, error) {
	sectors, err := fs.directorySectors()
	if err != nil {
		return false, err
	}
	for _, c := range sectors {
		if c == chs {
			return true, nil
		}
	}
	entries, err := fs.readDirectory()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		chain, err := fs.fileChain(e.startCHS)
		if err != nil {
			continue
		}
		for _, c := range chain {
			if c == chs {
				return true, nil
			}
		}
	}
	return false, nil
}

// Check verifies every file's chain is reachable and that no sector is
// claimed by more than one file (spec.md §9 Open Question (a)).
func (fs *Filesystem) Check() (filesystem.CheckReport, error) {
	var report filesystem.CheckReport

	entries, err := fs.readDirectory()
	if err != nil {
		return report, err
	}

	claimed := map[disk.CHS]string{}
	for _, e := range entries {
		name := e.displayName()
		chain, err := fs.fileChain(e.startCHS)
		if err != nil {
			report.Errors = append(report.Errors, name+": "+err.Error())
			continue
		}
		for _, chs := range chain {
			if owner, ok := claimed[chs]; ok {
				report.Errors = append(report.Errors, name+": sector shared with "+owner)
			} else {
				claimed[chs] = name
			}
		}
	}
	return report, nil
}
