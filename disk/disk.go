// Package disk defines the sector/track data model shared by every image
// codec (JVC, VDK, DMK, HFE, and the in-memory variant) and the Disk
// interface they all implement (spec.md §2 L2, §3, §4.3).
package disk

import (
	"github.com/pkg/errors"
)

// CHS identifies a sector by cylinder (track), head, and sector number.
// Within a disk the set of CHS triples is unique; within a track, sector
// numbers need not be contiguous or start at 1 (spec.md §3).
type CHS struct {
	Track  int
	Head   int
	Sector int
}

// Sector is a located, fixed-size payload. Size is one of 128, 256, 512,
// or 1024 and the payload is always exactly that many bytes.
type Sector struct {
	CHS
	Size    int
	Data    []byte
	CRCBad  bool // set when a sector's on-media CRC failed to verify
}

// Iterator yields the CHS triples present on a disk in (track, head,
// sector) ascending order, lazily and only once (spec.md §9 "Iteration").
// Calling Next again after it returns false is undefined; callers should
// stop.
type Iterator interface {
	Next() (CHS, bool)
}

// Disk is the uniform sector-addressable interface every image codec
// implements (spec.md §4.3).
//
// Geometry (Heads, Tracks) is fixed at Open time. WriteSector fails with a
// KindSectorNotFound Error if the target triple does not exist on this
// disk, and with a KindNotWriteable Error if the disk was opened
// read-only (spec.md §3 Disk invariant).
type Disk interface {
	// Heads reports the number of sides, 1 or 2.
	Heads() int
	// Tracks reports the number of cylinders, in [35, 80].
	Tracks() int
	// Writable reports whether WriteSector may succeed.
	Writable() bool

	// SectorExists reports whether the CHS triple is present on this disk.
	SectorExists(chs CHS) bool

	// ReadSector returns the payload for chs. CRCBad is set, never a
	// silently substituted payload, when a sector's CRC fails to verify
	// (spec.md §7 propagation policy).
	ReadSector(chs CHS) (Sector, error)

	// WriteSector replaces the payload for chs. len(data) must equal the
	// sector's Size.
	WriteSector(chs CHS, data []byte) error

	// Sectors returns a fresh, single-pass iterator over every CHS triple
	// on the disk, in ascending (track, head, sector) order.
	Sectors() Iterator

	// Dispose flushes any pending image-level metadata (HFE track list,
	// DMK IDAM offsets) and releases the underlying source. Double-dispose
	// is a no-op (spec.md §9 "Disposal").
	Dispose() error
}

// ErrDisposed is a sentinel cause for a KindDisposed Error. None of the
// codecs in this module return it: they do not check for use of a disk
// after Dispose.
var ErrDisposed = errors.New("disk: handle has been disposed")
