package metadata

import "strings"

// Reserved VG names. These never appear as real volume groups on disk.
//
// VGGlobal names the global advisory lock, which orders ahead of every
// per-VG lock. Orphan pseudo-VG names collect PVs not currently assigned to
// a real VG; there is one orphan pseudo-VG per on-disk format.
const (
	VGGlobal  = "#global"
	VGOrphans = "#orphans"
)

// IsGlobalVG reports whether name is the reserved global lock name.
func IsGlobalVG(name string) bool {
	return name == VGGlobal
}

// IsOrphanVG reports whether name refers to an orphan pseudo-VG of any
// format.
func IsOrphanVG(name string) bool {
	return strings.HasPrefix(name, VGOrphans)
}

// OrphanVGName returns the orphan pseudo-VG name for an on-disk format.
func OrphanVGName(formatName string) string {
	return VGOrphans + "_" + formatName
}
