// Package device defines the device-layer collaborator consumed by the
// metadata cache: enumeration of block devices under a filter chain, label
// reads, and device-handle management.
//
// The cache never touches device sectors itself; implementations of Layer
// own discovery, filtering and label parsing mechanics.
package device

import (
	"errors"

	"github.com/lcorbani/volman/pkg/metadata"
)

// ErrNoLabel is returned by ReadLabel for a device that carries no
// recognizable PV label. The cache treats it as "not a PV", not a failure.
var ErrNoLabel = errors.New("device has no PV label")

// Device is an opaque handle to one block device known to the device layer.
type Device struct {
	// Name is the device path, unique within the layer.
	Name string

	// Size is the device size in bytes.
	Size uint64

	// PVID is the PV identifier last bound to this device. The cache
	// rebinds it when a label read reports a different identifier, e.g.
	// after re-initializing a PV in place.
	PVID metadata.ID
}

// Label is the result of reading a device's PV label: the PV identity plus
// the VG summary and area descriptors recorded alongside it.
type Label struct {
	PVID       metadata.ID
	FormatName string
	DeviceSize uint64

	// VG is nil for an orphan PV (labeled but not in a VG).
	VG *metadata.VGSummary

	MetadataAreas   []metadata.DiskArea
	DataAreas       []metadata.DiskArea
	BootloaderAreas []metadata.DiskArea
}

// Layer enumerates devices and reads their labels.
type Layer interface {
	// Devices lists the devices passing the active filter chain. With
	// refreshFilters set the filter chain is rebuilt first. An error here
	// aborts a scan: without a filter chain no device can be trusted.
	Devices(refreshFilters bool) ([]*Device, error)

	// ReadLabel reads and parses the PV label of a device, opening a
	// device handle that stays open until CloseAll. Returns ErrNoLabel for
	// unlabeled devices; other errors mean the device could not be read
	// this time.
	ReadLabel(dev *Device) (*Label, error)

	// CloseAll closes every open device handle.
	CloseAll()
}
