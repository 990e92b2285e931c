// Package image dispatches a raw storage.Source to the right disk image
// codec by sniffing its signature bytes and, failing that, its filename
// extension (spec.md §6 "Format dispatch").
//
// It is the one package allowed to import every disk/<format> leaf
// package; those packages import disk and storage, never each other or
// image, so there is no cycle.
package image

import (
	"strings"

	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/disk/dmk"
	"github.com/dragontools/dragondisk/disk/hfe"
	"github.com/dragontools/dragondisk/disk/jvc"
	"github.com/dragontools/dragondisk/disk/vdk"
	"github.com/dragontools/dragondisk/storage"
)

func detectHFE(src storage.Source) bool {
	buf := make([]byte, 8)
	if _, err := src.ReadAt(buf, 0); err != nil {
		return false
	}
	return string(buf) == "HXCPICFE"
}

func detectVDK(src storage.Source) bool {
	buf := make([]byte, 12)
	if _, err := src.ReadAt(buf, 0); err != nil {
		return false
	}
	return buf[0] == 'd' && buf[1] == 'k' && buf[11] == 0
}

// Open opens src as a disk.Disk, preferring signature detection over the
// filename extension; a flat image with neither HFE's nor VDK's
// signature, and an extension that doesn't name DMK, defaults to JVC,
// since a headerless or near-headerless flat sector dump is exactly what
// JVC is.
func Open(src storage.Source, filename string, writable bool) (disk.Disk, error) {
	if detectHFE(src) {
		return hfe.Open(src, writable)
	}
	if detectVDK(src) {
		return vdk.Open(src, writable)
	}

	switch ext := strings.ToLower(filename); {
	case strings.HasSuffix(ext, ".dmk"):
		return dmk.Open(src, writable)
	case strings.HasSuffix(ext, ".vdk"):
		return vdk.Open(src, writable)
	case strings.HasSuffix(ext, ".hfe"):
		return hfe.Open(src, writable)
	default:
		return jvc.Open(src, writable)
	}
}
