// Package rsdos implements the Tandy Color Computer Disk BASIC ("RS-DOS")
// filesystem: a 68-entry granule map plus a flat directory, both fixed on
// track 17 of a single-sided 35-track image (spec.md §4.4.1).
package rsdos

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/filesystem"
)

const (
	directoryTrack   = 17
	granuleMapSector = 2
	firstDirSector   = 3
	lastDirSector    = 11
	entriesPerSector = 8
	entrySize        = 32

	sectorsPerGranule = 9
	granuleBytes      = sectorsPerGranule * 256
	granuleCount      = 68

	granuleFree       = 0xFF
	granuleTerminalLo = 0xC0
	granuleTerminalHi = 0xC9
)

var filenamePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{1,7}(\.[A-Z0-9]{0,3})?$`)

// entry is one 32-byte RsDos directory slot.
type entry struct {
	name          [8]byte
	ext           [3]byte
	fileType      byte
	ascii         byte
	firstGranule  byte
	lastSectorLen uint16 // big-endian on disk
	unused        bool
	endOfDir      bool
}

func parseEntry(b []byte) entry {
	var e entry
	copy(e.name[:], b[0:8])
	copy(e.ext[:], b[8:11])
	e.fileType = b[11]
	e.ascii = b[12]
	e.firstGranule = b[13]
	e.lastSectorLen = uint16(b[14])<<8 | uint16(b[15])
	e.unused = b[0] == 0x00
	e.endOfDir = b[0] == 0xFF
	return e
}

func (e entry) bytes() []byte {
	b := make([]byte, entrySize)
	copy(b[0:8], e.name[:])
	copy(b[8:11], e.ext[:])
	b[11] = e.fileType
	b[12] = e.ascii
	b[13] = e.firstGranule
	b[14] = byte(e.lastSectorLen >> 8)
	b[15] = byte(e.lastSectorLen)
	return b
}

func (e entry) displayName(caseSensitive bool) string {
	name := strings.TrimRight(string(e.name[:]), " ")
	ext := strings.TrimRight(string(e.ext[:]), " ")
	full := name
	if ext != "" {
		full = name + "." + ext
	}
	if !caseSensitive {
		return strings.ToUpper(full)
	}
	return full
}

func splitName(name string) ([8]byte, [3]byte) {
	var n [8]byte
	var e [3]byte
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

// Filesystem is an RsDos volume backed by d.
type Filesystem struct {
	d             disk.Disk
	caseSensitive bool // spec.md §9 "case-sensitivity knob", default off
}

// Open wraps d as an RsDos filesystem. d must be a single-sided, 35-track,
// 18-sectors-per-track, 256-byte-sector disk; Open does not itself verify
// geometry beyond what reads naturally fail on.
func Open(d disk.Disk) *Filesystem {
	return &Filesystem{d: d}
}

// SetCaseSensitive toggles filename comparison case sensitivity (default
// off, spec.md §9).
func (fs *Filesystem) SetCaseSensitive(v bool) { fs.caseSensitive = v }

func (fs *Filesystem) readGranuleMap() ([granuleCount]byte, error) {
	var m [granuleCount]byte
	sec, err := fs.d.ReadSector(disk.CHS{Track: directoryTrack, Head: 0, Sector: granuleMapSector})
	if err != nil {
		return m, err
	}
	copy(m[:], sec.Data[:granuleCount])
	return m, nil
}

func (fs *Filesystem) writeGranuleMap(m [granuleCount]byte) error {
	buf := make([]byte, 256)
	copy(buf, m[:])
	return fs.d.WriteSector(disk.CHS{Track: directoryTrack, Head: 0, Sector: granuleMapSector}, buf)
}

// granuleToLSN maps a granule index to its first (track, sector-base)
// pair, skipping the directory track (spec.md §4.4.1).
func granuleToLSN(g int) (track, sectorBase int) {
	if g < 34 {
		track = g / 2
	} else {
		track = g/2 + 1
	}
	if g%2 == 0 {
		sectorBase = 0
	} else {
		sectorBase = 9
	}
	return
}

func (fs *Filesystem) readDirectory() ([]entry, error) {
	var entries []entry
	for s := firstDirSector; s <= lastDirSector; s++ {
		sec, err := fs.d.ReadSector(disk.CHS{Track: directoryTrack, Head: 0, Sector: s})
		if err != nil {
			return nil, err
		}
		for i := 0; i < entriesPerSector; i++ {
			off := i * entrySize
			e := parseEntry(sec.Data[off : off+entrySize])
			if e.endOfDir {
				return entries, nil
			}
			if e.unused {
				continue
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (fs *Filesystem) findEntry(name string) (entry, disk.CHS, int, error) {
	want := name
	if !fs.caseSensitive {
		want = strings.ToUpper(want)
	}
	for s := firstDirSector; s <= lastDirSector; s++ {
		sec, err := fs.d.ReadSector(disk.CHS{Track: directoryTrack, Head: 0, Sector: s})
		if err != nil {
			return entry{}, disk.CHS{}, 0, err
		}
		for i := 0; i < entriesPerSector; i++ {
			off := i * entrySize
			e := parseEntry(sec.Data[off : off+entrySize])
			if e.endOfDir {
				return entry{}, disk.CHS{}, 0, filesystem.NewError(filesystem.KindFileNotFound, "%s", name)
			}
			if e.unused {
				continue
			}
			got := e.displayName(fs.caseSensitive)
			target := want
			if !fs.caseSensitive {
				got = strings.ToUpper(got)
			}
			if got == target {
				return e, disk.CHS{Track: directoryTrack, Head: 0, Sector: s}, off, nil
			}
		}
	}
	return entry{}, disk.CHS{}, 0, filesystem.NewError(filesystem.KindFileNotFound, "%s", name)
}

func (fs *Filesystem) ListFiles() ([]filesystem.FileInfo, error) {
	entries, err := fs.readDirectory()
	if err != nil {
		return nil, err
	}
	var out []filesystem.FileInfo
	for _, e := range entries {
		chain, err := fs.granuleChain(int(e.firstGranule))
		if err != nil {
			return nil, err
		}
		out = append(out, filesystem.FileInfo{
			Name:     e.displayName(fs.caseSensitive),
			Size:     fs.fileSize(chain, e.lastSectorLen),
			SectorCH: chainToCHS(chain),
		})
	}
	return out, nil
}

func (fs *Filesystem) FileExists(name string) (bool, error) {
	_, _, _, err := fs.findEntry(name)
	if filesystem.IsKind(err, filesystem.KindFileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// granuleEntry is one resolved granule: its index plus the map byte.
type granuleEntry struct {
	index int
	next  byte // raw map[index] value
}

// granuleChain follows the granule map starting at first until a terminal
// marker (0xC0..0xC9) is reached.
func (fs *Filesystem) granuleChain(first int) ([]granuleEntry, error) {
	m, err := fs.readGranuleMap()
	if err != nil {
		return nil, err
	}

	var chain []granuleEntry
	g := first
	seen := map[int]bool{}
	for {
		if g < 0 || g >= granuleCount {
			return nil, filesystem.NewError(filesystem.KindConsistencyError, "granule index %d out of range", g)
		}
		if seen[g] {
			return nil, filesystem.NewError(filesystem.KindConsistencyError, "granule chain revisits index %d", g)
		}
		seen[g] = true

		v := m[g]
		chain = append(chain, granuleEntry{index: g, next: v})
		if v >= granuleTerminalLo && v <= granuleTerminalHi {
			return chain, nil
		}
		if v == granuleFree {
			return nil, filesystem.NewError(filesystem.KindConsistencyError, "granule chain hits a free entry at %d", g)
		}
		g = int(v)
	}
}

func chainToCHS(chain []granuleEntry) []disk.CHS {
	var out []disk.CHS
	for i, ge := range chain {
		track, sectorBase := granuleToLSN(ge.index)
		sectors := sectorsPerGranule
		if i == len(chain)-1 {
			sectors = int(ge.next & 0x0F)
			if sectors == 0 {
				sectors = sectorsPerGranule
			}
		}
		for s := 0; s < sectors; s++ {
			out = append(out, disk.CHS{Track: track, Head: 0, Sector: sectorBase + s + 1})
		}
	}
	return out
}

func (fs *Filesystem) fileSize(chain []granuleEntry, lastSectorLen uint16) int {
	if len(chain) == 0 {
		return 0
	}
	fullGranules := len(chain) - 1
	size := fullGranules * granuleBytes
	last := chain[len(chain)-1]
	lastGranuleSectors := int(last.next & 0x0F)
	if lastGranuleSectors == 0 {
		lastGranuleSectors = sectorsPerGranule
	}
	if lastGranuleSectors > 0 {
		size += (lastGranuleSectors - 1) * 256
		size += int(lastSectorLen)
	}
	return size
}

func (fs *Filesystem) ReadFile(name string) (filesystem.File, error) {
	e, _, _, err := fs.findEntry(name)
	if err != nil {
		return filesystem.File{}, err
	}
	chain, err := fs.granuleChain(int(e.firstGranule))
	if err != nil {
		return filesystem.File{}, err
	}
	chs := chainToCHS(chain)

	var data []byte
	for _, c := range chs {
		sec, err := fs.d.ReadSector(c)
		if err != nil {
			return filesystem.File{}, err
		}
		data = append(data, sec.Data...)
	}
	size := fs.fileSize(chain, e.lastSectorLen)
	if size < len(data) {
		data = data[:size]
	}

	return filesystem.File{
		Info: filesystem.FileInfo{Name: e.displayName(fs.caseSensitive), Size: size, SectorCH: chs},
		Data: data,
	}, nil
}

func (fs *Filesystem) IsValidFilename(name string) bool {
	return filenamePattern.MatchString(strings.ToUpper(name))
}

func (fs *Filesystem) WriteFile(name string, data []byte) error {
	if !fs.IsValidFilename(name) {
		return filesystem.NewError(filesystem.KindInvalidFilename, "%s", name)
	}

	m, err := fs.readGranuleMap()
	if err != nil {
		return err
	}

	needed := (len(data) + granuleBytes - 1) / granuleBytes
	if needed == 0 {
		needed = 1
	}
	var free []int
	for i := 0; i < granuleCount && len(free) < needed; i++ {
		if m[i] == granuleFree {
			free = append(free, i)
		}
	}
	if len(free) < needed {
		return filesystem.NewError(filesystem.KindFilesystemFull, "need %d granules, have %d free", needed, len(free))
	}

	// Already-present files are overwritten in place; delete first so the
	// old chain's granules are reclaimed rather than leaked.
	if exists, _ := fs.FileExists(name); exists {
		if err := fs.DeleteFile(name); err != nil {
			return err
		}
		m, err = fs.readGranuleMap()
		if err != nil {
			return err
		}
		free = free[:0]
		for i := 0; i < granuleCount && len(free) < needed; i++ {
			if m[i] == granuleFree {
				free = append(free, i)
			}
		}
	}

	remaining := data
	var lastSectorLen uint16
	for i, g := range free {
		track, sectorBase := granuleToLSN(g)
		chunk := remaining
		if len(chunk) > granuleBytes {
			chunk = chunk[:granuleBytes]
		}
		sectorsUsed := (len(chunk) + 255) / 256
		if sectorsUsed == 0 {
			sectorsUsed = 1
		}
		for s := 0; s < sectorsUsed; s++ {
			buf := make([]byte, 256)
			lo := s * 256
			hi := lo + 256
			if hi > len(chunk) {
				hi = len(chunk)
			}
			if lo < len(chunk) {
				copy(buf, chunk[lo:hi])
			}
			if err := fs.d.WriteSector(disk.CHS{Track: track, Head: 0, Sector: sectorBase + s + 1}, buf); err != nil {
				return err
			}
		}
		if i == len(free)-1 {
			m[g] = byte(granuleTerminalLo + sectorsUsed)
			lastSectorLen = uint16(len(chunk) - (sectorsUsed-1)*256)
		} else {
			m[g] = byte(free[i+1])
		}
		remaining = remaining[len(chunk):]
	}

	if err := fs.writeGranuleMap(m); err != nil {
		return err
	}

	n, ext := splitName(name)
	e := entry{name: n, ext: ext, fileType: 2, ascii: 0, firstGranule: byte(free[0]), lastSectorLen: lastSectorLen}
	return fs.writeDirectoryEntry(e)
}

func (fs *Filesystem) writeDirectoryEntry(e entry) error {
	for s := firstDirSector; s <= lastDirSector; s++ {
		sec, err := fs.d.ReadSector(disk.CHS{Track: directoryTrack, Head: 0, Sector: s})
		if err != nil {
			return err
		}
		for i := 0; i < entriesPerSector; i++ {
			off := i * entrySize
			slot := parseEntry(sec.Data[off : off+entrySize])
			if slot.unused || slot.endOfDir {
				copy(sec.Data[off:off+entrySize], e.bytes())
				return fs.d.WriteSector(disk.CHS{Track: directoryTrack, Head: 0, Sector: s}, sec.Data)
			}
		}
	}
	return filesystem.NewError(filesystem.KindFilesystemFull, "directory is full")
}

func (fs *Filesystem) DeleteFile(name string) error {
	e, chs, off, err := fs.findEntry(name)
	if err != nil {
		return err
	}
	chain, err := fs.granuleChain(int(e.firstGranule))
	if err != nil {
		return err
	}

	m, err := fs.readGranuleMap()
	if err != nil {
		return err
	}
	for _, ge := range chain {
		m[ge.index] = granuleFree
	}
	if err := fs.writeGranuleMap(m); err != nil {
		return err
	}

	sec, err := fs.d.ReadSector(chs)
	if err != nil {
		return err
	}
	sec.Data[off] = 0x00
	return fs.d.WriteSector(chs, sec.Data)
}

func (fs *Filesystem) RenameFile(oldName, newName string) error {
	if !fs.IsValidFilename(newName) {
		return filesystem.NewError(filesystem.KindInvalidFilename, "%s", newName)
	}
	_, chs, off, err := fs.findEntry(oldName)
	if err != nil {
		return err
	}
	sec, err := fs.d.ReadSector(chs)
	if err != nil {
		return err
	}
	n, ext := splitName(newName)
	copy(sec.Data[off:off+8], n[:])
	copy(sec.Data[off+8:off+11], ext[:])
	return fs.d.WriteSector(chs, sec.Data)
}

func (fs *Filesystem) Free() (int, error) {
	m, err := fs.readGranuleMap()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, v := range m {
		if v == granuleFree {
			count++
		}
	}
	return count * granuleBytes, nil
}

func (fs *Filesystem) GetFileInfo(name string) (filesystem.FileInfo, error) {
	e, _, _, err := fs.findEntry(name)
	if err != nil {
		return filesystem.FileInfo{}, err
	}
	chain, err := fs.granuleChain(int(e.firstGranule))
	if err != nil {
		return filesystem.FileInfo{}, err
	}
	return filesystem.FileInfo{
		Name:     e.displayName(fs.caseSensitive),
		Size:     fs.fileSize(chain, e.lastSectorLen),
		SectorCH: chainToCHS(chain),
	}, nil
}

func (fs *Filesystem) IsSectorAllocated(chs disk.CHS) (bool, error) {
	if chs.Track == directoryTrack {
		return true, nil
	}
	entries, err := fs.readDirectory()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		chain, err := fs.granuleChain(int(e.firstGranule))
		if err != nil {
			continue
		}
		for _, c := range chainToCHS(chain) {
			if c == chs {
				return true, nil
			}
		}
	}
	return false, nil
}

// Check verifies the granule-chain invariants from spec.md §4.4.1: every
// chain terminates in 0xC0..0xC9, no granule is shared between chains,
// and no chain visits the directory track.
func (fs *Filesystem) Check() (filesystem.CheckReport, error) {
	var report filesystem.CheckReport

	entries, err := fs.readDirectory()
	if err != nil {
		return report, err
	}

	claimed := map[int]string{}
	for _, e := range entries {
		name := e.displayName(fs.caseSensitive)
		chain, err := fs.granuleChain(int(e.firstGranule))
		if err != nil {
			report.Errors = append(report.Errors, name+": "+err.Error())
			continue
		}
		last := chain[len(chain)-1].next
		if last < granuleTerminalLo || last > granuleTerminalHi {
			report.Errors = append(report.Errors, name+": chain does not terminate in 0xC0-0xC9")
		}
		for _, ge := range chain {
			track, _ := granuleToLSN(ge.index)
			if track == directoryTrack {
				report.Errors = append(report.Errors, name+": chain visits the directory track")
			}
			if owner, ok := claimed[ge.index]; ok {
				report.Errors = append(report.Errors, name+": granule "+strconv.Itoa(ge.index)+" shared with "+owner)
			} else {
				claimed[ge.index] = name
			}
		}
	}
	return report, nil
}
