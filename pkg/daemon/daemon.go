// Package daemon defines the external metadata daemon collaborator.
//
// When a daemon is active it is authoritative for PV and VG lookups: the
// cache defers to it instead of scanning devices. The daemon runs outside
// this process; implementations here are clients.
package daemon

import (
	"github.com/lcorbani/volman/pkg/device"
	"github.com/lcorbani/volman/pkg/metadata"
)

// PVRecord is one PV known to the daemon: the device it resides on plus
// the label content the daemon holds for it. It carries enough to seed a
// local cache without touching the device.
type PVRecord struct {
	Device *device.Device
	Label  *device.Label
}

// Client talks to the external metadata daemon.
type Client interface {
	// Active reports whether a daemon is running and should be treated as
	// authoritative. All other methods may fail when inactive.
	Active() bool

	// VGLookup fetches a parsed VG by name and, when non-zero, identifier.
	VGLookup(name string, vgid metadata.ID) (*metadata.VolumeGroup, error)

	// PVList returns every PV the daemon knows, for seeding a local cache.
	PVList() ([]PVRecord, error)

	// SetDuplicatesFound records in the daemon that a scan saw duplicate
	// PVs, so later commands can warn without rescanning.
	SetDuplicatesFound(found bool) error
}
