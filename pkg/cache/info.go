package cache

import (
	"github.com/lcorbani/volman/internal/logger"
	"github.com/lcorbani/volman/pkg/device"
	"github.com/lcorbani/volman/pkg/format"
	"github.com/lcorbani/volman/pkg/metadata"
)

// PV record status flags.
const (
	// cacheInvalid marks a record whose label must be re-read before use.
	cacheInvalid uint32 = 1 << iota

	// cacheLocked marks a record whose VG lock was held when the record
	// was last refreshed, so it stays usable while the lock is held.
	cacheLocked
)

// Info is the cache record of one device/PV pairing. Exactly one Info
// exists per known PV identifier; duplicate devices are suppressed at
// registration and never reach the index.
type Info struct {
	c *Cache

	dev        *device.Device
	pvid       metadata.ID
	fmt        format.Format
	deviceSize uint64
	status     uint32

	// vginfo is the owning VG record, nil while unattached. The record
	// appears in exactly vginfo's member list.
	vginfo *VGInfo

	mdas []metadata.DiskArea
	das  []metadata.DiskArea
	bas  []metadata.DiskArea
}

// Device returns the device this PV record is bound to.
func (info *Info) Device() *device.Device {
	return info.dev
}

// PVID returns the PV identifier.
func (info *Info) PVID() metadata.ID {
	return info.pvid
}

// Format returns the on-disk format backend of this PV.
func (info *Info) Format() format.Format {
	return info.fmt
}

// DeviceSize returns the recorded device size in bytes.
func (info *Info) DeviceSize() uint64 {
	return info.deviceSize
}

// SetDeviceSize records the device size in bytes.
func (info *Info) SetDeviceSize(size uint64) {
	info.deviceSize = size
}

// VGName returns the owning VG's name, or "" while unattached.
func (info *Info) VGName() string {
	if info.vginfo == nil {
		return ""
	}
	return info.vginfo.vgname
}

// IsOrphan reports whether the PV currently belongs to an orphan
// pseudo-VG (or is not attached to any VG at all).
func (info *Info) IsOrphan() bool {
	if info.vginfo == nil {
		return true
	}
	return metadata.IsOrphanVG(info.vginfo.vgname)
}

// MakeValid clears the invalid flag after the label was re-read.
func (info *Info) MakeValid() {
	info.status &^= cacheInvalid
}

// CheckFormat verifies the PV was written by the given format.
func (info *Info) CheckFormat(f format.Format) bool {
	if info.fmt != f {
		logger.Error("PV %s is a different format (%s)", info.dev.Name, info.fmt.Name())
		return false
	}
	return true
}

// isValid reports whether the record may serve lookups. A record is valid
// if it is not flagged invalid and, additionally, either its VG is not
// lock-held by this process or the record was refreshed under that lock.
// Remote nodes read while the controlling node holds the lock, so an
// unlocked VG's cached state is safe to use.
func (info *Info) isValid() bool {
	if info.status&cacheInvalid != 0 {
		return false
	}
	if info.vginfo != nil && !info.c.VGNameIsLocked(info.vginfo.vgname) {
		return true
	}
	return info.status&cacheLocked != 0
}

// SetMetadataAreas replaces the metadata-area descriptors.
func (info *Info) SetMetadataAreas(areas []metadata.DiskArea) {
	info.mdas = append(info.mdas[:0], areas...)
}

// SetDataAreas replaces the data-area descriptors.
func (info *Info) SetDataAreas(areas []metadata.DiskArea) {
	info.das = append(info.das[:0], areas...)
}

// SetBootloaderAreas replaces the bootloader-area descriptors.
func (info *Info) SetBootloaderAreas(areas []metadata.DiskArea) {
	info.bas = append(info.bas[:0], areas...)
}

// MetadataAreas returns the metadata-area descriptors.
func (info *Info) MetadataAreas() []metadata.DiskArea {
	return info.mdas
}

// DataAreas returns the data-area descriptors.
func (info *Info) DataAreas() []metadata.DiskArea {
	return info.das
}

// BootloaderAreas returns the bootloader-area descriptors.
func (info *Info) BootloaderAreas() []metadata.DiskArea {
	return info.bas
}

// MDACount returns the number of metadata areas on the PV.
func (info *Info) MDACount() int {
	return len(info.mdas)
}

// SmallestMDASize returns the smallest metadata-area size, or 0 when the
// PV has none.
func (info *Info) SmallestMDASize() uint64 {
	var min uint64
	for _, mda := range info.mdas {
		if min == 0 || mda.Size < min {
			min = mda.Size
		}
	}
	return min
}

// mdasEmptyOrIgnored reports whether the PV carries no usable metadata
// area, which makes VG ownership impossible to determine from the PV
// alone.
func (info *Info) mdasEmptyOrIgnored() bool {
	for _, mda := range info.mdas {
		if !mda.Ignored {
			return false
		}
	}
	return true
}

// UpdateFromPV refreshes the record from a parsed PV after metadata was
// written: device size and data/bootloader area layout.
func (info *Info) UpdateFromPV(pv *metadata.PhysicalVolume, f format.Format) {
	info.deviceSize = pv.Size
	info.fmt = f

	info.das = []metadata.DiskArea{{Offset: pv.PEStart, Size: 0}}
	if pv.BASize > 0 {
		info.bas = []metadata.DiskArea{{Offset: pv.BAStart, Size: pv.BASize}}
	}
}
