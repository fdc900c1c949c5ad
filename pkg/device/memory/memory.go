// Package memory implements an in-memory device layer.
//
// It serves the simulated device configurations of the CLI and the test
// suites: devices are registered with pre-built labels, filters are plain
// name predicates, and handle bookkeeping is observable.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lcorbani/volman/pkg/device"
)

type devState struct {
	dev      *device.Device
	label    *device.Label
	readErr  error
	open     bool
	filtered bool
}

// Layer is an in-memory device.Layer.
//
// Unlike the cache itself, a Layer models an external subsystem shared
// between processes, so its state is guarded by a mutex.
type Layer struct {
	mu      sync.RWMutex
	devices map[string]*devState
	filter  func(name string) bool

	refreshes int
}

// NewLayer returns an empty device layer accepting every device.
func NewLayer() *Layer {
	return &Layer{
		devices: make(map[string]*devState),
	}
}

// AddDevice registers a device. A nil label marks the device as unlabeled.
func (l *Layer) AddDevice(dev *device.Device, label *device.Label) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.devices[dev.Name] = &devState{dev: dev, label: label}
}

// RemoveDevice drops a device from the layer.
func (l *Layer) RemoveDevice(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.devices, name)
}

// SetLabel replaces the label returned for a device.
func (l *Layer) SetLabel(name string, label *device.Label) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.devices[name]; ok {
		st.label = label
	}
}

// FailLabel makes ReadLabel of a device return err until cleared with nil.
func (l *Layer) FailLabel(name string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.devices[name]; ok {
		st.readErr = err
	}
}

// SetFilter installs the device filter predicate; nil accepts everything.
// The predicate only takes effect on the next filter refresh, matching the
// behavior of a rebuilt filter chain.
func (l *Layer) SetFilter(filter func(name string) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filter = filter
}

// Devices lists devices passing the filter chain, in name order.
func (l *Layer) Devices(refreshFilters bool) ([]*device.Device, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if refreshFilters {
		l.refreshes++
		for _, st := range l.devices {
			st.filtered = l.filter != nil && !l.filter(st.dev.Name)
		}
	}

	names := make([]string, 0, len(l.devices))
	for name, st := range l.devices {
		if st.filtered {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	devs := make([]*device.Device, len(names))
	for i, name := range names {
		devs[i] = l.devices[name].dev
	}
	return devs, nil
}

// ReadLabel returns the registered label and marks the device handle open.
func (l *Layer) ReadLabel(dev *device.Device) (*device.Label, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.devices[dev.Name]
	if !ok {
		return nil, fmt.Errorf("device %s not present", dev.Name)
	}
	if st.readErr != nil {
		return nil, st.readErr
	}
	if st.label == nil {
		return nil, device.ErrNoLabel
	}
	st.open = true
	return st.label, nil
}

// CloseAll closes every open device handle.
func (l *Layer) CloseAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, st := range l.devices {
		st.open = false
	}
}

// OpenHandles counts devices with an open handle.
func (l *Layer) OpenHandles() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, st := range l.devices {
		if st.open {
			n++
		}
	}
	return n
}

// FilterRefreshes counts how often the filter chain was rebuilt.
func (l *Layer) FilterRefreshes() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.refreshes
}
