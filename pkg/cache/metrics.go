package cache

// Metrics receives cache events. Implementations must be cheap: hooks are
// called inline from cache operations.
//
// The Prometheus implementation lives in pkg/metrics; a nil Metrics in
// Options selects the built-in no-op.
type Metrics interface {
	// ScanStarted is called when a label scan begins. full marks scans
	// that read every device rather than only invalidated entries.
	ScanStarted(full bool)

	// DeviceRead is called per device label read attempt.
	DeviceRead(ok bool)

	// DuplicateFound is called when a scan rejects a duplicate device.
	DuplicateFound()

	// MetadataStored is called when a VG metadata blob is cached.
	MetadataStored(precommitted bool)

	// MetadataDropped is called when cached VG metadata is discarded.
	MetadataDropped()

	// VGCacheHit is called when a VG lookup is served from the cached
	// parsed object; VGCacheBuild when the object is built from the blob.
	VGCacheHit()
	VGCacheBuild()

	// HoldersChanged reports the new holder count of a shared parsed VG.
	HoldersChanged(holders int)

	// LockOrderViolation is called when lock-order verification fails.
	LockOrderViolation()
}

type noopMetrics struct{}

func (noopMetrics) ScanStarted(bool)    {}
func (noopMetrics) DeviceRead(bool)     {}
func (noopMetrics) DuplicateFound()     {}
func (noopMetrics) MetadataStored(bool) {}
func (noopMetrics) MetadataDropped()    {}
func (noopMetrics) VGCacheHit()         {}
func (noopMetrics) VGCacheBuild()       {}
func (noopMetrics) HoldersChanged(int)  {}
func (noopMetrics) LockOrderViolation() {}
