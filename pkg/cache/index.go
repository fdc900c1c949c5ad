package cache

import (
	"github.com/lcorbani/volman/internal/logger"
	"github.com/lcorbani/volman/pkg/metadata"
)

// InfoFromPVID looks up the PV record for an identifier. With validOnly
// set, a record whose cached state is not known to be valid is treated as
// absent.
func (c *Cache) InfoFromPVID(pvid metadata.ID, validOnly bool) *Info {
	if pvid.IsZero() {
		return nil
	}
	info, ok := c.pvids[pvid]
	if !ok {
		return nil
	}
	if validOnly && !info.isValid() {
		return nil
	}
	return info
}

// VGInfoFromVGID looks up the VG record for an identifier.
func (c *Cache) VGInfoFromVGID(vgid metadata.ID) *VGInfo {
	if vgid.IsZero() {
		return nil
	}
	vginfo, ok := c.vgids[vgid]
	if !ok {
		logger.Debug("Metadata cache has no info for vgid %q", vgid)
		return nil
	}
	return vginfo
}

// VGInfoFromVGName looks up the VG record for a name. A non-zero vgid
// constrains the lookup: name alone is ambiguous when duplicate VG names
// exist, so the same-name chain is searched for the matching identifier.
// With an empty name the lookup falls back to the identifier alone.
func (c *Cache) VGInfoFromVGName(vgname string, vgid metadata.ID) *VGInfo {
	if vgname == "" {
		return c.VGInfoFromVGID(vgid)
	}

	chain, ok := c.vgnames[vgname]
	if !ok || len(chain) == 0 {
		logger.Debug("Metadata cache has no info for vgname %q", vgname)
		return nil
	}

	if !vgid.IsZero() {
		for _, vginfo := range chain {
			if vginfo.vgid == vgid {
				return vginfo
			}
		}
		logger.Debug("Metadata cache has not found vgname %q with vgid %q", vgname, vgid)
		return nil
	}

	return chain[0]
}

// VGNameFromVGID returns the name of the VG with the given identifier.
func (c *Cache) VGNameFromVGID(vgid metadata.ID) (string, error) {
	vginfo := c.VGInfoFromVGID(vgid)
	if vginfo == nil {
		return "", &Error{Code: ErrNotFound, Message: "no VG with vgid", Name: vgid.String()}
	}
	return vginfo.vgname, nil
}

// VGNameFromPVID returns the name of the VG owning the given PV.
func (c *Cache) VGNameFromPVID(pvid metadata.ID) (string, error) {
	if _, err := c.DeviceFromPVID(pvid); err != nil {
		return "", &Error{Code: ErrNotFound, Message: "couldn't find device with uuid", Name: pvid.String()}
	}

	info := c.InfoFromPVID(pvid, false)
	if info == nil || info.vginfo == nil {
		return "", &Error{Code: ErrNotFound, Message: "no VG for PV", Name: pvid.String()}
	}
	return info.vginfo.vgname, nil
}

// VGIDIsCached reports whether the identifier names a real, cached VG.
// With an active daemon every VG is considered cached.
func (c *Cache) VGIDIsCached(vgid metadata.ID) bool {
	if c.daemonActive() {
		return true
	}

	vginfo := c.VGInfoFromVGID(vgid)
	if vginfo == nil || vginfo.vgname == "" {
		return false
	}
	return !metadata.IsOrphanVG(vginfo.vgname)
}

// updatePVID rebinds a PV record to an identifier in the identity index
// and on the device itself.
func (c *Cache) updatePVID(info *Info, pvid metadata.ID) {
	if existing, ok := c.pvids[pvid]; ok && existing == info && info.dev.PVID == pvid {
		return
	}
	if !info.dev.PVID.IsZero() {
		delete(c.pvids, info.dev.PVID)
	}
	info.pvid = pvid
	info.dev.PVID = pvid
	c.pvids[pvid] = info
}

// updateVGID rebinds a VG record to an identifier in the identity index.
func (c *Cache) updateVGID(info *Info, vginfo *VGInfo, vgid metadata.ID) {
	if vgid.IsZero() || vginfo == nil || vginfo.vgid == vgid {
		return
	}

	if !vginfo.vgid.IsZero() {
		delete(c.vgids, vginfo.vgid)
	}
	vginfo.vgid = vgid
	c.vgids[vgid] = vginfo

	if !metadata.IsOrphanVG(vginfo.vgname) {
		devname := ""
		if info != nil {
			devname = info.dev.Name
		}
		logger.Debug("Metadata cache: %s: setting %s VGID to %s", devname, vginfo.vgname, vgid)
	}
}
