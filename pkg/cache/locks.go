package cache

import (
	"github.com/lcorbani/volman/internal/logger"
	"github.com/lcorbani/volman/pkg/metadata"
)

// updateCacheInfoLockState flips the locked flag on a PV record. A lock
// transition invalidates the record, and with it any cached metadata of
// the owning VG, unless the global lock is held: under the global lock
// nothing can have changed on disk.
func (c *Cache) updateCacheInfoLockState(info *Info, locked bool) (metadataStillValid bool) {
	wasLocked := info.status&cacheLocked != 0

	metadataStillValid = true
	if wasLocked != locked && !c.VGNameIsLocked(metadata.VGGlobal) {
		info.status |= cacheInvalid
		metadataStillValid = false
	}

	if locked {
		info.status |= cacheLocked
	} else {
		info.status &^= cacheLocked
	}
	return metadataStillValid
}

// updateVGInfoLockState propagates a lock transition to every member PV
// of a VG and discards cached metadata invalidated by the transition.
func (c *Cache) updateVGInfoLockState(vginfo *VGInfo, locked bool) {
	metadataStillValid := true
	for _, info := range vginfo.infos {
		if !c.updateCacheInfoLockState(info, locked) {
			metadataStillValid = false
		}
	}
	if !metadataStillValid {
		c.freeCachedMetadata(vginfo)
	}
}

func (c *Cache) updateCacheLockState(vgname string, locked bool) {
	vginfo := c.VGInfoFromVGName(vgname, metadata.ID{})
	if vginfo == nil {
		return
	}
	c.updateVGInfoLockState(vginfo, locked)
}

// LockVGName records that the named VG was locked by the caller. Locking
// a VG other than the global one marks its member PVs, invalidating them
// if the lock state actually changed. The global lock is tracked but not
// counted: it pins no devices.
func (c *Cache) LockVGName(vgname string) {
	if c.locks[vgname] {
		logger.Internal("Nested locking attempted on VG %s", vgname)
	}
	c.locks[vgname] = true

	if !metadata.IsGlobalVG(vgname) {
		c.updateCacheLockState(vgname, true)
		c.vgsLocked++
	}
}

// UnlockVGName records that the named VG was unlocked. When the last held
// per-VG lock goes away every open device handle is released, since
// nothing pins the devices anymore.
func (c *Cache) UnlockVGName(vgname string) {
	if !c.locks[vgname] {
		logger.Internal("Attempt to unlock unlocked VG %s", vgname)
	}
	delete(c.locks, vgname)

	if !metadata.IsGlobalVG(vgname) {
		c.updateCacheLockState(vgname, false)

		if c.vgsLocked > 0 {
			c.vgsLocked--
		}
		if c.vgsLocked == 0 {
			c.devices.CloseAll()
		}
	}
}

// VGNameIsLocked reports whether the named VG is recorded as locked. All
// orphan pseudo-VGs share a single lock.
func (c *Cache) VGNameIsLocked(vgname string) bool {
	if metadata.IsOrphanVG(vgname) {
		vgname = metadata.VGOrphans
	}
	return c.locks[vgname]
}

// VGsLocked returns the number of per-VG locks currently recorded. The
// global lock is not one of them.
func (c *Cache) VGsLocked() int {
	return c.vgsLocked
}

// PVIDIsLocked reports whether the VG owning the given PV is locked.
func (c *Cache) PVIDIsLocked(pvid metadata.ID) bool {
	info := c.InfoFromPVID(pvid, false)
	if info == nil || info.vginfo == nil {
		return false
	}
	return c.VGNameIsLocked(info.vginfo.vgname)
}

// vgnameOrderCorrect reports whether a lock on vgname2 may be requested
// while a lock on vgname1 is held: global first, orphans last,
// lexicographic order in between.
func vgnameOrderCorrect(vgname1, vgname2 string) bool {
	if metadata.IsGlobalVG(vgname1) {
		return true
	}
	if metadata.IsGlobalVG(vgname2) {
		return false
	}
	if metadata.IsOrphanVG(vgname1) {
		return false
	}
	if metadata.IsOrphanVG(vgname2) {
		return true
	}
	return vgname1 < vgname2
}

// VerifyLockOrder checks that locking vgname now would respect the lock
// ordering with respect to every lock already recorded, and returns a
// lock-order error naming the offending held lock otherwise.
func (c *Cache) VerifyLockOrder(vgname string) error {
	for held := range c.locks {
		if !vgnameOrderCorrect(held, vgname) {
			c.metrics.LockOrderViolation()
			logger.Internal("VG lock %s must be requested before %s, not after", vgname, held)
			return &Error{
				Code:    ErrLockOrder,
				Message: "lock requested out of order after " + held,
				Name:    vgname,
			}
		}
	}
	return nil
}
