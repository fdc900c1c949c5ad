package cache

import (
	"github.com/lcorbani/volman/internal/logger"
	"github.com/lcorbani/volman/pkg/device"
	"github.com/lcorbani/volman/pkg/format"
	"github.com/lcorbani/volman/pkg/metadata"
)

// Add registers a PV seen on a device and files it under the named VG,
// or under the format's orphan pseudo-VG when vgname is empty.
//
// The cache keeps exactly one record per PV ID. When the same ID shows
// up on a second device the new sighting is ignored, a warning is
// logged, and (nil, nil) is returned; FoundDuplicates reports that this
// happened. Re-registering the same device under a new PV ID rebinds
// the existing record.
func (c *Cache) Add(f format.Format, pvid metadata.ID, dev *device.Device,
	vgname string, vgid metadata.ID, vgstatus metadata.VGStatus) (*Info, error) {

	info := c.pvids[pvid]

	if info == nil && !dev.PVID.IsZero() {
		// Same device, new PV ID: the PV was re-initialized in place.
		if prev := c.pvids[dev.PVID]; prev != nil && prev.dev == dev {
			c.updatePVID(prev, pvid)
			info = prev
		}
	}

	created := false
	switch {
	case info == nil:
		info = &Info{
			c:      c,
			dev:    dev,
			pvid:   pvid,
			fmt:    f,
			status: cacheInvalid,
		}
		c.pvids[pvid] = info
		dev.PVID = pvid
		created = true

	case info.dev != dev:
		logger.Warn("Ignore duplicate PV %s on device %s. Already using PV from device %s.",
			pvid, dev.Name, info.dev.Name)
		c.foundDuplicates = true
		c.metrics.DuplicateFound()
		if c.daemonActive() {
			if err := c.daemon.SetDuplicatesFound(true); err != nil {
				logger.Warn("Failed to report duplicate PVs to daemon: %v", err)
			}
		}
		return nil, nil

	default:
		info.fmt = f
	}

	summary := &metadata.VGSummary{
		VGName: vgname,
		VGID:   vgid,
		Status: vgstatus,
	}
	if summary.VGName == "" {
		summary.VGName = f.OrphanVGName()
		summary.VGID = metadata.MakeID(summary.VGName)
	}

	if err := c.UpdateVGNameAndID(info, summary); err != nil {
		if created {
			c.Del(info)
		}
		return nil, err
	}

	return info, nil
}

// Del removes a PV record from the cache. The owning VG record is freed
// once its last member is gone, unless it is an orphan pseudo-VG.
func (c *Cache) Del(info *Info) {
	delete(c.pvids, info.pvid)
	if info.dev != nil && info.dev.PVID == info.pvid {
		info.dev.PVID = metadata.ID{}
	}
	c.dropVGInfo(info, info.vginfo)
}
