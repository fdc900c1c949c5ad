package cache

import (
	"errors"

	"github.com/lcorbani/volman/internal/logger"
	"github.com/lcorbani/volman/pkg/device"
	"github.com/lcorbani/volman/pkg/format"
	"github.com/lcorbani/volman/pkg/metadata"
)

// ScanMode selects how much work LabelScan does.
type ScanMode int

const (
	// ScanCached reuses prior scan results, re-reading only invalidated
	// PV records.
	ScanCached ScanMode = iota

	// ScanFull re-reads the label of every visible device.
	ScanFull

	// ScanFullRefresh additionally refreshes the device filters before
	// scanning and afterwards persists the visible-device set for
	// short-lived processes.
	ScanFullRefresh
)

// LabelScan walks the visible devices and (re)builds the PV and VG
// indexes from their labels. With an active daemon the devices are not
// touched at all; the cache is seeded from the daemon instead.
func (c *Cache) LabelScan(mode ScanMode) error {
	if c.daemonActive() {
		return c.SeedFromDaemon()
	}

	if c.scanning {
		logger.Internal("Recursive device scan attempted")
		return &Error{Code: ErrScanInProgress, Message: "scan already in progress"}
	}
	c.scanning = true
	defer func() { c.scanning = false }()

	c.metrics.ScanStarted(mode != ScanCached)

	if c.hasScanned && mode == ScanCached {
		return c.scanInvalid()
	}

	refresh := mode == ScanFullRefresh
	devs, err := c.devices.Devices(refresh)
	if err != nil {
		return &Error{Code: ErrCollaborator, Message: "listing devices: " + err.Error()}
	}

	for _, dev := range devs {
		c.readDevice(dev)
	}
	c.hasScanned = true

	// Formats keeping metadata outside PV labels scan those areas now.
	for _, f := range c.formats {
		if err := f.Scan(); err != nil {
			return &Error{Code: ErrCollaborator,
				Message: "format " + f.Name() + " scan: " + err.Error()}
		}
	}

	// A long-lived process writes the visible-device set out so
	// short-lived commands can skip filter evaluation.
	if refresh && c.longLived && c.filterCache != nil {
		names := make([]string, 0, len(devs))
		for _, dev := range devs {
			names = append(names, dev.Name)
		}
		if err := c.filterCache.Save(names); err != nil {
			logger.Warn("Failed to persist device filter cache: %v", err)
		}
	}

	return nil
}

// scanInvalid re-reads only the devices whose PV records were
// invalidated since the last scan.
func (c *Cache) scanInvalid() error {
	// Collect first: re-reading labels refiles records under VGs and
	// mutates the member lists being walked.
	var stale []*device.Device
	for _, vginfo := range c.vginfos {
		for _, info := range vginfo.infos {
			if !info.isValid() {
				stale = append(stale, info.dev)
			}
		}
	}

	for _, dev := range stale {
		c.readDevice(dev)
	}
	return nil
}

// readDevice reads one device's label and applies it to the cache. A
// device that lost its label drops the PV record it used to back.
func (c *Cache) readDevice(dev *device.Device) {
	label, err := c.devices.ReadLabel(dev)
	if err != nil {
		c.metrics.DeviceRead(false)
		if errors.Is(err, device.ErrNoLabel) {
			logger.Debug("%s: no PV label", dev.Name)
			if info := c.pvids[dev.PVID]; info != nil && info.dev == dev {
				c.Del(info)
			}
		} else {
			logger.Warn("Failed to read label on %s: %v", dev.Name, err)
		}
		return
	}
	c.metrics.DeviceRead(true)

	if _, err := c.addFromLabel(dev, label); err != nil {
		logger.Warn("Failed to cache PV on %s: %v", dev.Name, err)
	}
}

// addFromLabel registers the PV described by a label. It returns
// (nil, nil) when the label was a suppressed duplicate sighting.
func (c *Cache) addFromLabel(dev *device.Device, label *device.Label) (*Info, error) {
	f := c.formatsByName[label.FormatName]
	if f == nil {
		return nil, &Error{Code: ErrCollaborator,
			Message: "unknown metadata format " + label.FormatName, Name: dev.Name}
	}

	var (
		vgname   string
		vgid     metadata.ID
		vgstatus metadata.VGStatus
	)
	if label.VG != nil {
		vgname = label.VG.VGName
		vgid = label.VG.VGID
		vgstatus = label.VG.Status
	}

	info, err := c.Add(f, label.PVID, dev, vgname, vgid, vgstatus)
	if err != nil || info == nil {
		return info, err
	}

	info.SetDeviceSize(label.DeviceSize)
	info.SetMetadataAreas(label.MetadataAreas)
	info.SetDataAreas(label.DataAreas)
	info.SetBootloaderAreas(label.BootloaderAreas)

	if label.VG != nil {
		c.updateVGStatus(info, label.VG.Status, label.VG.CreationHost, label.VG.LockType)
		c.updateVGMDAInfo(info, label.VG.MDAChecksum, label.VG.MDASize)
	}

	info.MakeValid()
	return info, nil
}

// SeedFromDaemon fills the cache from the daemon's PV list instead of
// reading devices.
func (c *Cache) SeedFromDaemon() error {
	records, err := c.daemon.PVList()
	if err != nil {
		return &Error{Code: ErrCollaborator, Message: "daemon PV list: " + err.Error()}
	}

	for _, rec := range records {
		if _, err := c.addFromLabel(rec.Device, rec.Label); err != nil {
			return err
		}
	}
	c.hasScanned = true
	return nil
}

// HasScanned reports whether a device scan completed since the cache was
// built or last wiped.
func (c *Cache) HasScanned() bool {
	return c.hasScanned
}

// DeviceFromPVID locates the device holding a PV, escalating from the
// cached answer through an incremental scan to a full scan with filter
// refresh. Inside a critical section devices must not be rescanned, so
// escalation stops after the incremental attempt.
func (c *Cache) DeviceFromPVID(pvid metadata.ID) (*device.Device, error) {
	if dev := c.deviceFromPVID(pvid); dev != nil {
		return dev, nil
	}

	if err := c.LabelScan(ScanCached); err != nil {
		return nil, err
	}
	if dev := c.deviceFromPVID(pvid); dev != nil {
		return dev, nil
	}

	if c.coord.CriticalSection() {
		return nil, &Error{Code: ErrNotFound, Message: "PV not found on any device", Name: pvid.String()}
	}

	if err := c.LabelScan(ScanFullRefresh); err != nil {
		return nil, err
	}
	if dev := c.deviceFromPVID(pvid); dev != nil {
		return dev, nil
	}

	return nil, &Error{Code: ErrNotFound, Message: "PV not found on any device", Name: pvid.String()}
}

// deviceFromPVID returns the cached device for a PV after re-reading its
// label to confirm the device still holds that PV.
func (c *Cache) deviceFromPVID(pvid metadata.ID) *device.Device {
	info := c.InfoFromPVID(pvid, false)
	if info == nil {
		return nil
	}
	dev := info.dev

	label, err := c.devices.ReadLabel(dev)
	if err != nil {
		if errors.Is(err, device.ErrNoLabel) {
			c.Del(info)
		}
		return nil
	}
	if _, err := c.addFromLabel(dev, label); err != nil {
		return nil
	}
	if label.PVID != pvid {
		return nil
	}
	return dev
}

// FormatFromVGName returns the format backend of a VG, scanning if the
// VG is not yet known.
func (c *Cache) FormatFromVGName(vgname string, vgid metadata.ID) (format.Format, error) {
	vginfo := c.VGInfoFromVGName(vgname, vgid)
	if vginfo == nil {
		if err := c.LabelScan(ScanCached); err != nil {
			return nil, err
		}
		if vginfo = c.VGInfoFromVGName(vgname, vgid); vginfo == nil {
			return nil, &Error{Code: ErrNotFound, Message: "VG not found", Name: vgname}
		}
	}
	return vginfo.fmt, nil
}

// VGNames enumerates known VG names, real VGs first. Orphan and global
// pseudo-VG names are included only when includeInternal is set.
func (c *Cache) VGNames(includeInternal bool) []string {
	names := make([]string, 0, len(c.vginfos))
	for _, vginfo := range c.vginfos {
		if !includeInternal && metadata.IsOrphanVG(vginfo.vgname) {
			continue
		}
		names = append(names, vginfo.vgname)
	}
	return names
}

// VGIDs enumerates known VG identifiers, real VGs first.
func (c *Cache) VGIDs(includeInternal bool) []metadata.ID {
	ids := make([]metadata.ID, 0, len(c.vginfos))
	for _, vginfo := range c.vginfos {
		if !includeInternal && metadata.IsOrphanVG(vginfo.vgname) {
			continue
		}
		ids = append(ids, vginfo.vgid)
	}
	return ids
}

// VGNameIDs enumerates known (VG name, VG identifier) pairs.
func (c *Cache) VGNameIDs(includeInternal bool) []metadata.VGNameID {
	pairs := make([]metadata.VGNameID, 0, len(c.vginfos))
	for _, vginfo := range c.vginfos {
		if !includeInternal && metadata.IsOrphanVG(vginfo.vgname) {
			continue
		}
		pairs = append(pairs, metadata.VGNameID{Name: vginfo.vgname, ID: vginfo.vgid})
	}
	return pairs
}

// PVIDs enumerates the PV identifiers of one VG's member records.
func (c *Cache) PVIDs(vgname string, vgid metadata.ID) []metadata.ID {
	vginfo := c.VGInfoFromVGName(vgname, vgid)
	if vginfo == nil {
		return nil
	}
	pvids := make([]metadata.ID, 0, len(vginfo.infos))
	for _, info := range vginfo.infos {
		pvids = append(pvids, info.pvid)
	}
	return pvids
}
