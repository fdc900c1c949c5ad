package cache

import (
	"bytes"

	"github.com/cespare/xxhash/v2"

	"github.com/lcorbani/volman/internal/logger"
	"github.com/lcorbani/volman/pkg/metadata"
)

// freeCachedMetadata discards a VG's cached metadata blob, the parsed
// tree derived from it, and the cache's own reference to the shared
// parsed VG object. A parsed VG still borrowed elsewhere survives until
// its last borrower releases it. With no blob cached there is nothing
// to drop: the cache holds at most one reference per blob stored.
func (c *Cache) freeCachedMetadata(vginfo *VGInfo) {
	if vginfo == nil || vginfo.meta == nil {
		return
	}

	vginfo.meta = nil
	vginfo.precommitted = false
	vginfo.tree = nil
	c.metrics.MetadataDropped()
	logger.Debug("Metadata cache: VG %s wiped", vginfo.vgname)

	if vginfo.cachedVG != nil {
		c.holdersDecAndTest(vginfo)
	}
}

// holdersDecAndTest drops one reference to the shared parsed VG and
// reports whether it was the last. On the last release the object is
// torn down, after an optional consistency check against the checksum
// snapshotted when the object was built.
func (c *Cache) holdersDecAndTest(vginfo *VGInfo) bool {
	vginfo.holders--
	c.metrics.HoldersChanged(vginfo.holders)
	logger.Debug("VG %s now has %d holder(s)", vginfo.vgname, vginfo.holders)

	if vginfo.holders > 0 {
		return false
	}

	if vginfo.useCount > 1 {
		logger.Debug("VG %s reused %d times", vginfo.vgname, vginfo.useCount)
	}

	// Check only objects that were actually shared; a single borrow has
	// no window for another holder to corrupt it.
	if c.detectCorruption && vginfo.useCount > c.reuseThreshold && !vginfo.invalidated {
		c.checkCachedVG(vginfo)
	}

	vginfo.cachedVG = nil
	vginfo.invalidated = false
	return true
}

// checkCachedVG re-exports the shared parsed VG and compares its checksum
// with the one snapshotted at build time. A mismatch means a borrower
// mutated the shared object.
func (c *Cache) checkCachedVG(vginfo *VGInfo) {
	blob, err := vginfo.fmt.ExportVG(vginfo.cachedVG)
	if err != nil {
		logger.Internal("Failed to re-export cached VG %s for checking: %v", vginfo.vgname, err)
		return
	}
	if sum := xxhash.Sum64(blob); sum != vginfo.cachedSum {
		logger.Internal("Cached VG %s metadata changed while shared (checksum %x != %x)",
			vginfo.vgname, sum, vginfo.cachedSum)
	}
}

// storeMetadata serializes a VG and caches the blob, replacing whatever
// was cached before. A byte-identical blob keeps the already-parsed tree.
func (c *Cache) storeMetadata(vg *metadata.VolumeGroup, precommitted bool) {
	vginfo := c.VGInfoFromVGID(vg.ID)
	if vginfo == nil {
		logger.Internal("Attempt to store metadata for unknown VG %s", vg.Name)
		return
	}

	blob, err := vginfo.fmt.ExportVG(vg)
	if err != nil {
		logger.Error("Failed to serialize metadata of VG %s: %v", vg.Name, err)
		return
	}

	if vginfo.meta == nil || !bytes.Equal(vginfo.meta, blob) {
		c.freeCachedMetadata(vginfo)
		vginfo.meta = blob
	}
	vginfo.precommitted = precommitted
	c.metrics.MetadataStored(precommitted)

	suffix := ""
	if precommitted {
		suffix = ", precommitted"
	}
	logger.Debug("Metadata cache: VG %s (%s) stored (%d bytes%s)",
		vg.Name, vginfo.vgid, len(blob), suffix)
}

// UpdateVG applies parsed VG metadata to the cache: every member PV
// record is refiled under the VG, and when blob caching is enabled the
// serialized metadata is stored, committed or precommitted.
func (c *Cache) UpdateVG(vg *metadata.VolumeGroup, precommitted bool) error {
	summary := vg.Summary()

	for _, pv := range vg.PVs {
		info := c.InfoFromPVID(pv.ID, false)
		if info == nil {
			continue
		}
		if err := c.UpdateVGNameAndID(info, &summary); err != nil {
			return err
		}
	}

	if c.cacheVGMetadata {
		c.storeMetadata(vg, precommitted)
	}
	return nil
}

// CommitMetadata upgrades precommitted cached metadata of the named VG
// to committed. It is a no-op for VGs not cached or not precommitted.
func (c *Cache) CommitMetadata(vgname string) {
	vginfo := c.VGInfoFromVGName(vgname, metadata.ID{})
	if vginfo == nil {
		return
	}
	if vginfo.precommitted {
		logger.Debug("Precommitted metadata cache: VG %s upgraded to committed", vginfo.vgname)
		vginfo.precommitted = false
	}
}

// DropMetadata discards cached metadata of the named VG and invalidates
// its member PV labels. With dropPrecommitted set, staged metadata is
// reverted too.
//
// Dropping an orphan pseudo-VG broadcasts to the orphans of every format
// and marks the cache as needing a full rescan, since PVs may have
// appeared or vanished. An active daemon is authoritative, so nothing is
// dropped; and while the global lock is held by a reader nothing can
// have changed on disk, so the drop is skipped.
func (c *Cache) DropMetadata(vgname string, dropPrecommitted bool) {
	if c.daemonActive() {
		return
	}

	if metadata.IsOrphanVG(vgname) {
		for _, f := range c.formats {
			c.dropMetadata(f.OrphanVGName(), false)
		}
		c.hasScanned = false
		return
	}

	if c.VGNameIsLocked(metadata.VGGlobal) && !c.coord.WriteLockHeld() {
		return
	}
	c.dropMetadata(vgname, dropPrecommitted)
}

func (c *Cache) dropMetadata(vgname string, dropPrecommitted bool) {
	vginfo := c.VGInfoFromVGName(vgname, metadata.ID{})
	if vginfo == nil {
		return
	}

	// Precommitted metadata with no cached blob means the commit that
	// should have upgraded or dropped it never happened.
	if !dropPrecommitted && vginfo.precommitted && vginfo.meta == nil {
		logger.Internal("Metadata commit for VG %s not found", vginfo.vgname)
	}

	// Precommitted metadata was cached after the labels were already
	// invalidated; do not invalidate them again unless reverting.
	if dropPrecommitted || !vginfo.precommitted {
		for _, info := range vginfo.infos {
			info.status |= cacheInvalid
		}
	}

	c.freeCachedMetadata(vginfo)

	if dropPrecommitted {
		vginfo.precommitted = false
	}
}

// GetVG returns the shared parsed VG built from cached metadata, taking
// one holder reference the caller must give back with ReleaseVG.
//
// A not-cached error sends the caller to disk. That happens when no
// metadata blob is cached, when precommitted metadata is requested but
// only committed is cached, or when committed metadata is requested,
// only precommitted is cached, and no critical section makes the staged
// copy effectively durable. An invalidated error means a member PV
// record went stale since the metadata was cached.
func (c *Cache) GetVG(vgname string, vgid metadata.ID, precommitted bool) (*metadata.VolumeGroup, error) {
	if c.daemonActive() && !precommitted {
		vg, err := c.daemon.VGLookup(vgname, vgid)
		if err != nil {
			logger.Debug("Daemon lookup of VG %s failed: %v", vgname, err)
		} else if vg != nil {
			return vg, nil
		}
	}

	if vgid.IsZero() {
		return nil, &Error{Code: ErrNotCached, Message: "no VG identifier", Name: vgname}
	}

	vginfo := c.VGInfoFromVGID(vgid)
	if vginfo == nil || vginfo.meta == nil {
		return nil, &Error{Code: ErrNotCached, Message: "no cached metadata", Name: vgname}
	}

	if !vginfo.isValid() {
		return nil, &Error{Code: ErrInvalidated, Message: "cached metadata invalidated", Name: vginfo.vgname}
	}

	if (precommitted && !vginfo.precommitted) ||
		(!precommitted && vginfo.precommitted && !c.coord.CriticalSection()) {
		return nil, &Error{Code: ErrNotCached, Message: "cached metadata in wrong commit state", Name: vginfo.vgname}
	}

	// An invalidated parsed VG must not be handed out again. The cache
	// drops its own reference and rebuilds from the tree; outstanding
	// borrowers keep the abandoned object alive until they release it.
	if vginfo.cachedVG != nil && vginfo.invalidated {
		c.holdersDecAndTest(vginfo)
		vginfo.cachedVG = nil
	}

	if vginfo.cachedVG == nil {
		if err := c.buildCachedVG(vginfo); err != nil {
			c.freeCachedMetadata(vginfo)
			return nil, err
		}
	} else {
		c.metrics.VGCacheHit()
	}

	vginfo.holders++
	vginfo.useCount++
	c.metrics.HoldersChanged(vginfo.holders)

	kind := ""
	if vginfo.precommitted {
		kind = "precommitted "
	}
	logger.Debug("Using cached %smetadata for VG %s with %d holder(s)",
		kind, vginfo.vgname, vginfo.holders)

	return vginfo.cachedVG, nil
}

// buildCachedVG parses the cached blob (reusing a previously parsed
// tree) into the shared parsed VG object. The cache itself counts as the
// first holder.
func (c *Cache) buildCachedVG(vginfo *VGInfo) error {
	if vginfo.tree == nil {
		tree, err := vginfo.fmt.ParseBlob(vginfo.meta)
		if err != nil {
			return &Error{Code: ErrCollaborator,
				Message: "parsing cached metadata: " + err.Error(), Name: vginfo.vgname}
		}
		vginfo.tree = tree
	}

	vg, err := vginfo.fmt.ImportVG(vginfo.tree)
	if err != nil {
		return &Error{Code: ErrCollaborator,
			Message: "importing cached metadata: " + err.Error(), Name: vginfo.vgname}
	}

	if c.detectCorruption {
		blob, err := vginfo.fmt.ExportVG(vg)
		if err != nil {
			return &Error{Code: ErrCollaborator,
				Message: "exporting rebuilt metadata: " + err.Error(), Name: vginfo.vgname}
		}
		vginfo.cachedSum = xxhash.Sum64(blob)
	}

	vginfo.cachedVG = vg
	vginfo.holders = 1
	vginfo.useCount = 0
	vginfo.invalidated = false
	c.metrics.VGCacheBuild()

	return nil
}

// ReleaseVG gives back one holder reference on a VG obtained from GetVG.
// VGs not served from the cache are ignored.
func (c *Cache) ReleaseVG(vg *metadata.VolumeGroup) {
	if vg == nil {
		return
	}
	vginfo := c.VGInfoFromVGID(vg.ID)
	if vginfo == nil || vginfo.cachedVG != vg {
		return
	}
	c.holdersDecAndTest(vginfo)
}
