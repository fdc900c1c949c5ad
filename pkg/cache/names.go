package cache

import (
	"github.com/lcorbani/volman/internal/logger"
	"github.com/lcorbani/volman/pkg/format"
	"github.com/lcorbani/volman/pkg/metadata"
)

// freeVGInfo removes a VG record from every index: the same-name chain,
// the identity index, and the global list. Cached metadata is discarded
// first.
func (c *Cache) freeVGInfo(vginfo *VGInfo) {
	c.freeCachedMetadata(vginfo)

	chain := c.vgnames[vginfo.vgname]
	for i, v := range chain {
		if v == vginfo {
			chain = append(chain[:i], chain[i+1:]...)
			break
		}
	}
	if len(chain) == 0 {
		delete(c.vgnames, vginfo.vgname)
	} else {
		c.vgnames[vginfo.vgname] = chain
	}

	if !vginfo.vgid.IsZero() && c.vgids[vginfo.vgid] == vginfo {
		delete(c.vgids, vginfo.vgid)
	}

	c.removeVGInfoFromList(vginfo)
}

// dropVGInfo detaches info from vginfo and frees the VG record once its
// member list is empty. Orphan pseudo-VGs persist regardless.
func (c *Cache) dropVGInfo(info *Info, vginfo *VGInfo) {
	if info != nil {
		detachInfo(info)
	}

	if vginfo == nil || metadata.IsOrphanVG(vginfo.vgname) || len(vginfo.infos) > 0 {
		return
	}

	c.freeVGInfo(vginfo)
}

// insertVGInfo places a new VG record in the name index. When a primary
// record with the same name already exists, precedence decides which of
// the two is reachable by plain name lookup; the loser joins the chain.
//
// Precedence, first match wins:
//  1. existing not exported, new exported: keep existing
//  2. existing exported, new not: new becomes primary
//  3. existing created on this host: keep existing
//  4. existing has no creation host, new has one: new becomes primary
//  5. new created on this host: new becomes primary
//  6. otherwise keep existing
func (c *Cache) insertVGInfo(newVGInfo *VGInfo, vgid metadata.ID,
	vgstatus metadata.VGStatus, creationHost string, primary *VGInfo) {

	useNew := false

	if primary != nil {
		name := newVGInfo.vgname
		switch {
		case !primary.status.Exported() && vgstatus.Exported():
			logger.Warn("Duplicate VG name %s: existing %s takes precedence over exported %s",
				name, primary.vgid, vgid)
		case primary.status.Exported() && !vgstatus.Exported():
			logger.Warn("Duplicate VG name %s: %s takes precedence over exported %s",
				name, vgid, primary.vgid)
			useNew = true
		case primary.creationHost != "" && primary.creationHost == c.hostname:
			logger.Warn("Duplicate VG name %s: existing %s (created here) takes precedence over %s",
				name, primary.vgid, vgid)
		case primary.creationHost == "" && creationHost != "":
			logger.Warn("Duplicate VG name %s: %s (with creation host) takes precedence over %s",
				name, vgid, primary.vgid)
			useNew = true
		case creationHost != "" && creationHost == c.hostname:
			logger.Warn("Duplicate VG name %s: %s (created here) takes precedence over %s",
				name, vgid, primary.vgid)
			useNew = true
		default:
			logger.Warn("Duplicate VG name %s: existing %s takes precedence over %s",
				name, primary.vgid, vgid)
		}
	}

	chain := c.vgnames[newVGInfo.vgname]
	if useNew || primary == nil {
		c.vgnames[newVGInfo.vgname] = append([]*VGInfo{newVGInfo}, chain...)
	} else {
		c.vgnames[newVGInfo.vgname] = append(chain, newVGInfo)
	}
}

// updateVGName moves a PV record under the named VG, creating the VG
// record when the name is first observed. With a nil info the VG record
// alone is registered (orphan pseudo-VGs).
func (c *Cache) updateVGName(info *Info, vgname string, vgid metadata.ID,
	vgstatus metadata.VGStatus, creationHost string, f format.Format) error {

	if vgname == "" || (info != nil && info.vginfo != nil && info.vginfo.vgname == vgname) {
		return nil
	}

	if info != nil {
		c.dropVGInfo(info, info.vginfo)
	}

	vginfo := c.VGInfoFromVGName(vgname, vgid)
	if vginfo == nil {
		vginfo = &VGInfo{vgname: vgname}

		// While scanning, an invalidated record under this name is about
		// to be re-read anyway; evict it to its format's orphan VG rather
		// than reporting a bogus duplicate.
		var primary *VGInfo
		for {
			primary = nil
			if chain := c.vgnames[vgname]; len(chain) > 0 {
				primary = chain[0]
			}
			if primary == nil || !c.scanning || !primary.isInvalid() {
				break
			}

			orphan := c.VGInfoFromVGName(primary.fmt.OrphanVGName(), metadata.ID{})
			if orphan == nil {
				logger.Internal("Orphan vginfo %s lost from cache", primary.fmt.OrphanVGName())
				return &Error{Code: ErrNotFound, Message: "orphan VG missing from cache",
					Name: primary.fmt.OrphanVGName()}
			}

			members := append([]*Info(nil), primary.infos...)
			for _, member := range members {
				detachInfo(member)
				orphan.attachInfo(member)
				logger.Debug("Metadata cache: %s: now in VG %s", member.dev.Name, orphan.vgname)
			}
			c.dropVGInfo(nil, primary)
		}

		c.insertVGInfo(vginfo, vgid, vgstatus, creationHost, primary)
		c.addVGInfoToList(vginfo)
	}

	if info != nil {
		vginfo.attachInfo(info)
	} else {
		c.updateVGID(nil, vginfo, vgid)
	}

	c.updateVGInfoLockState(vginfo, c.VGNameIsLocked(vgname))

	vginfo.fmt = f

	if info != nil {
		logger.Debug("Metadata cache: %s: now in VG %s (%s)", info.dev.Name, vgname, vginfo.vgid)
	} else {
		logger.Debug("Metadata cache: initialised VG %s", vgname)
	}

	return nil
}

// updateVGStatus refreshes status flags, creation host and lock type on
// the record's owning VG.
func (c *Cache) updateVGStatus(info *Info, vgstatus metadata.VGStatus,
	creationHost, lockType string) {

	if info == nil || info.vginfo == nil {
		return
	}
	vginfo := info.vginfo

	if vginfo.status.Exported() != vgstatus.Exported() {
		state := "no longer"
		if vgstatus.Exported() {
			state = "now"
		}
		logger.Debug("Metadata cache: %s: VG %s %s exported", info.dev.Name, vginfo.vgname, state)
	}
	vginfo.status = vgstatus

	if creationHost != "" && creationHost != vginfo.creationHost {
		vginfo.creationHost = creationHost
		logger.Debug("Metadata cache: %s: VG %s: set creation host to %s",
			info.dev.Name, vginfo.vgname, creationHost)
	}

	if lockType != "" && lockType != vginfo.lockType {
		vginfo.lockType = lockType
	}
}

// updateVGMDAInfo records the metadata-area checksum and size last seen
// for the record's owning VG.
func (c *Cache) updateVGMDAInfo(info *Info, mdaChecksum uint32, mdaSize uint64) {
	if info == nil || info.vginfo == nil || mdaSize == 0 {
		return
	}
	vginfo := info.vginfo

	if vginfo.mdaChecksum == mdaChecksum || vginfo.mdaSize == mdaSize {
		return
	}

	vginfo.mdaChecksum = mdaChecksum
	vginfo.mdaSize = mdaSize

	logger.Debug("Metadata cache: %s: VG %s: stored metadata checksum %d with size %d",
		info.dev.Name, vginfo.vgname, mdaChecksum, mdaSize)
}

// UpdateVGNameAndID applies a VG summary, as read from a PV label or full
// metadata, to a PV record: VG membership, identifiers, status, and
// metadata-area identity.
func (c *Cache) UpdateVGNameAndID(info *Info, summary *metadata.VGSummary) error {
	vgname := summary.VGName
	vgid := summary.VGID

	if vgname == "" && info.vginfo == nil {
		logger.Internal("Empty VG name handed to cache")
		vgname = info.fmt.OrphanVGName()
		vgid = metadata.MakeID(vgname)
	}

	// A PV without usable mdas that already sits in a real VG keeps its
	// membership during a critical section: the orphan claim cannot be
	// trusted from the label alone.
	if metadata.IsOrphanVG(vgname) && info.vginfo != nil &&
		info.mdasEmptyOrIgnored() && !metadata.IsOrphanVG(info.vginfo.vgname) &&
		c.coord.CriticalSection() {
		return nil
	}

	// Making a PV an orphan can leave cached VG metadata referencing a
	// device no longer in the VG (e.g. re-initializing a member PV).
	if metadata.IsOrphanVG(vgname) && info.vginfo != nil && !metadata.IsOrphanVG(info.vginfo.vgname) {
		info.vginfo.invalidated = true
	}

	// Moving a PV from orphan into a real VG always makes it valid.
	if !metadata.IsOrphanVG(vgname) {
		info.status &^= cacheInvalid
	}

	if err := c.updateVGName(info, vgname, vgid, summary.Status, summary.CreationHost, info.fmt); err != nil {
		return err
	}
	c.updateVGID(info, info.vginfo, vgid)
	c.updateVGStatus(info, summary.Status, summary.CreationHost, summary.LockType)
	c.updateVGMDAInfo(info, summary.MDAChecksum, summary.MDASize)

	return nil
}

// AddOrphanVGInfo registers the orphan pseudo-VG of a format.
func (c *Cache) AddOrphanVGInfo(f format.Format) error {
	name := f.OrphanVGName()
	return c.updateVGName(nil, name, metadata.MakeID(name), 0, "", f)
}

// LookupMDA searches the cache for a VG whose last-seen metadata-area
// checksum and size match the summary and, on a hit, fills in the VG
// identity fields so the caller can skip re-parsing the metadata text.
func (c *Cache) LookupMDA(summary *metadata.VGSummary) bool {
	if summary.MDASize == 0 {
		return false
	}

	for _, vginfo := range c.vginfos {
		if summary.MDAChecksum == vginfo.mdaChecksum &&
			summary.MDASize == vginfo.mdaSize &&
			!metadata.IsOrphanVG(vginfo.vgname) {
			summary.VGName = vginfo.vgname
			summary.VGID = vginfo.vgid
			summary.Status = vginfo.status
			summary.CreationHost = vginfo.creationHost
			return true
		}
	}
	return false
}
