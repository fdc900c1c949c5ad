// Package memory implements an in-process metadata daemon client, holding
// the authoritative PV/VG state in memory. It stands in for an external
// daemon in the CLI and the tests.
package memory

import (
	"fmt"
	"sync"

	"github.com/lcorbani/volman/pkg/daemon"
	"github.com/lcorbani/volman/pkg/metadata"
)

// Client is an in-memory daemon.Client.
type Client struct {
	mu         sync.RWMutex
	active     bool
	vgs        map[metadata.ID]*metadata.VolumeGroup
	pvs        []daemon.PVRecord
	duplicates bool
}

// NewClient returns an inactive client with no records.
func NewClient() *Client {
	return &Client{
		vgs: make(map[metadata.ID]*metadata.VolumeGroup),
	}
}

// Activate marks the daemon as running and authoritative.
func (c *Client) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
}

// Deactivate marks the daemon as stopped.
func (c *Client) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
}

// AddVG stores an authoritative parsed VG.
func (c *Client) AddVG(vg *metadata.VolumeGroup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vgs[vg.ID] = vg
}

// AddPV stores an authoritative PV record.
func (c *Client) AddPV(rec daemon.PVRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pvs = append(c.pvs, rec)
}

func (c *Client) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *Client) VGLookup(name string, vgid metadata.ID) (*metadata.VolumeGroup, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.active {
		return nil, fmt.Errorf("metadata daemon not active")
	}
	if !vgid.IsZero() {
		if vg, ok := c.vgs[vgid]; ok && (name == "" || vg.Name == name) {
			return vg, nil
		}
		return nil, fmt.Errorf("VG %s not known to daemon", vgid)
	}
	for _, vg := range c.vgs {
		if vg.Name == name {
			return vg, nil
		}
	}
	return nil, fmt.Errorf("VG %s not known to daemon", name)
}

func (c *Client) PVList() ([]daemon.PVRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.active {
		return nil, fmt.Errorf("metadata daemon not active")
	}
	out := make([]daemon.PVRecord, len(c.pvs))
	copy(out, c.pvs)
	return out, nil
}

func (c *Client) SetDuplicatesFound(found bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return fmt.Errorf("metadata daemon not active")
	}
	c.duplicates = found
	return nil
}

// DuplicatesFound reports the recorded duplicates flag.
func (c *Client) DuplicatesFound() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.duplicates
}
