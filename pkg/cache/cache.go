// Package cache implements the in-memory metadata cache for the volume
// management layer: an index of which device holds which PV, which PVs
// form which VG, and the cached VG metadata itself.
//
// The cache sits between the device layer and the callers that manipulate
// volume groups. It tolerates duplicate PVs (the same identity seen on
// several devices), VG name collisions, precommitted metadata staged by a
// concurrent writer, and advisory locks coordinated by an external lock
// manager.
//
// Concurrency model: the cache has no internal locking and starts no
// goroutines. It is invoked synchronously within a single command whose
// process model guarantees single-threaded access; cross-process
// coordination happens through the external lock manager whose state the
// lock-tracking operations mirror.
package cache

import (
	"fmt"

	"github.com/lcorbani/volman/internal/logger"
	"github.com/lcorbani/volman/pkg/daemon"
	"github.com/lcorbani/volman/pkg/device"
	"github.com/lcorbani/volman/pkg/filtercache"
	"github.com/lcorbani/volman/pkg/format"
	"github.com/lcorbani/volman/pkg/metadata"
)

// Coordinator reports the state of the external cluster/lock coordination
// this process participates in.
type Coordinator interface {
	// CriticalSection reports whether this process is inside a critical
	// section with devices suspended. While true, precommitted metadata is
	// treated as already effectively durable.
	CriticalSection() bool

	// WriteLockHeld reports whether this process holds a VG write lock.
	WriteLockHeld() bool
}

type noopCoordinator struct{}

func (noopCoordinator) CriticalSection() bool { return false }
func (noopCoordinator) WriteLockHeld() bool   { return false }

// Options configures a Cache.
type Options struct {
	// Devices is the device layer used for scans. Required.
	Devices device.Layer

	// Formats lists the metadata format backends. Required, at least one.
	// Each format contributes one orphan pseudo-VG.
	Formats []format.Format

	// Daemon, when non-nil and active, is authoritative: scans delegate to
	// it and VG lookups may be served from it.
	Daemon daemon.Client

	// Coordinator reports external lock-manager state. Defaults to a
	// coordinator that is never in a critical section.
	Coordinator Coordinator

	// FilterCache, when set together with LongLived, receives the device
	// name set after every full scan with filter refresh.
	FilterCache *filtercache.Store

	// LongLived marks a long-running process, enabling filter cache dumps
	// for the benefit of short-lived commands.
	LongLived bool

	// Hostname is the local host name, used to resolve duplicate VG names
	// in favor of locally created VGs.
	Hostname string

	// CacheVGMetadata enables caching of serialized VG metadata blobs.
	CacheVGMetadata bool

	// DetectCorruption enables the consistency check on the shared parsed
	// VG object when its last borrower releases it.
	DetectCorruption bool

	// ReuseCheckThreshold is the number of reuses of a parsed VG above
	// which the consistency check runs. Zero means the default of 1, so a
	// VG borrowed once and released is never checked.
	ReuseCheckThreshold int

	// Metrics receives cache events. Nil disables instrumentation.
	Metrics Metrics
}

// Cache is the process-wide metadata cache.
type Cache struct {
	pvids   map[metadata.ID]*Info
	vgids   map[metadata.ID]*VGInfo
	vgnames map[string][]*VGInfo // same-name chain, primary first
	locks   map[string]bool
	vginfos []*VGInfo // iteration order: real VGs first, orphans last

	scanning        bool
	hasScanned      bool
	vgsLocked       int
	globalLockHeld  bool // global lock held when cache wiped
	foundDuplicates bool

	devices       device.Layer
	formats       []format.Format
	formatsByName map[string]format.Format
	daemon        daemon.Client
	coord         Coordinator
	filterCache   *filtercache.Store
	longLived     bool

	hostname         string
	cacheVGMetadata  bool
	detectCorruption bool
	reuseThreshold   int

	metrics Metrics
}

// New builds a cache and seeds the orphan pseudo-VG of every format.
func New(opts Options) (*Cache, error) {
	if opts.Devices == nil {
		return nil, fmt.Errorf("cache: device layer is required")
	}
	if len(opts.Formats) == 0 {
		return nil, fmt.Errorf("cache: at least one format backend is required")
	}

	coord := opts.Coordinator
	if coord == nil {
		coord = noopCoordinator{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	reuseThreshold := opts.ReuseCheckThreshold
	if reuseThreshold <= 0 {
		reuseThreshold = 1
	}

	c := &Cache{
		devices:          opts.Devices,
		formats:          opts.Formats,
		formatsByName:    make(map[string]format.Format, len(opts.Formats)),
		daemon:           opts.Daemon,
		coord:            coord,
		filterCache:      opts.FilterCache,
		longLived:        opts.LongLived,
		hostname:         opts.Hostname,
		cacheVGMetadata:  opts.CacheVGMetadata,
		detectCorruption: opts.DetectCorruption,
		reuseThreshold:   reuseThreshold,
		metrics:          metrics,
	}
	c.initTables()

	for _, f := range opts.Formats {
		c.formatsByName[f.Name()] = f
	}
	if err := c.seedOrphans(); err != nil {
		return nil, err
	}
	return c, nil
}

// initTables resets the index tables. The record of held locks is cleared
// too; the global lock survives through globalLockHeld and is re-recorded
// by the caller.
func (c *Cache) initTables() {
	c.pvids = make(map[metadata.ID]*Info)
	c.vgids = make(map[metadata.ID]*VGInfo)
	c.vgnames = make(map[string][]*VGInfo)
	c.locks = make(map[string]bool)
	c.vginfos = nil
	c.vgsLocked = 0
}

// seedOrphans registers the orphan pseudo-VG of every format.
func (c *Cache) seedOrphans() error {
	for _, f := range c.formats {
		if err := c.AddOrphanVGInfo(f); err != nil {
			return err
		}
	}
	return nil
}

// Destroy tears the cache down. With retainOrphans the orphan pseudo-VGs
// are reseeded immediately so the cache stays usable. With reset the
// record of a held global lock is discarded instead of being carried over;
// any other lock still recorded at teardown is an internal error.
func (c *Cache) Destroy(retainOrphans, reset bool) {
	logger.Debug("Wiping internal VG cache")

	c.hasScanned = false

	for _, info := range c.pvids {
		info.dev.PVID = metadata.ID{}
		info.vginfo = nil
	}

	if reset {
		c.globalLockHeld = false
	} else {
		for vgname := range c.locks {
			if metadata.IsGlobalVG(vgname) {
				c.globalLockHeld = true
			} else {
				logger.Internal("Volume group %s was not unlocked", vgname)
			}
		}
	}

	c.initTables()

	// Restore the global lock state cleared by the table reset.
	if c.globalLockHeld {
		c.LockVGName(metadata.VGGlobal)
		c.globalLockHeld = false
	}

	if retainOrphans {
		if err := c.seedOrphans(); err != nil {
			logger.Error("Failed to reseed orphan VGs: %v", err)
		}
	}
}

// FoundDuplicates reports whether any scan since the last clear saw two
// devices claiming the same PV identifier.
func (c *Cache) FoundDuplicates() bool {
	return c.foundDuplicates
}

// ClearFoundDuplicates resets the duplicates flag after it was reported.
func (c *Cache) ClearFoundDuplicates() {
	c.foundDuplicates = false
}

// HasLockType reports whether any known VG uses the given lock type, e.g.
// "sanlock".
func (c *Cache) HasLockType(lockType string) bool {
	for _, vginfo := range c.vginfos {
		if vginfo.lockType == lockType {
			return true
		}
	}
	return false
}

// MaxNameLengths returns the longest device name and VG name currently
// known, for report column sizing.
func (c *Cache) MaxNameLengths() (pvMax, vgMax int) {
	for _, vginfo := range c.vginfos {
		if len(vginfo.vgname) > vgMax {
			vgMax = len(vginfo.vgname)
		}
		for _, info := range vginfo.infos {
			if len(info.dev.Name) > pvMax {
				pvMax = len(info.dev.Name)
			}
		}
	}
	return pvMax, vgMax
}

// addVGInfoToList places a vginfo on the global iteration list. Orphan
// pseudo-VGs go last so enumeration visits real VGs first.
func (c *Cache) addVGInfoToList(vginfo *VGInfo) {
	if metadata.IsOrphanVG(vginfo.vgname) {
		c.vginfos = append(c.vginfos, vginfo)
		return
	}
	c.vginfos = append([]*VGInfo{vginfo}, c.vginfos...)
}

func (c *Cache) removeVGInfoFromList(vginfo *VGInfo) {
	for i, v := range c.vginfos {
		if v == vginfo {
			c.vginfos = append(c.vginfos[:i], c.vginfos[i+1:]...)
			return
		}
	}
}

func (c *Cache) daemonActive() bool {
	return c.daemon != nil && c.daemon.Active()
}
