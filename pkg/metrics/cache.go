package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lcorbani/volman/pkg/cache"
)

// cacheMetrics is the Prometheus implementation of the cache.Metrics
// interface.
//
// This implementation collects metrics about the metadata cache:
//   - Scan counts, split into full and incremental
//   - Device label read outcomes
//   - Duplicate PV sightings
//   - Cached metadata blob store/drop counts
//   - Shared parsed-VG reuse (hits, builds, holder counts)
//   - Lock-order violations
type cacheMetrics struct {
	scans               *prometheus.CounterVec
	deviceReads         *prometheus.CounterVec
	duplicatePVs        prometheus.Counter
	metadataStores      *prometheus.CounterVec
	metadataDrops       prometheus.Counter
	vgCacheHits         prometheus.Counter
	vgCacheBuilds       prometheus.Counter
	vgHolders           prometheus.Gauge
	lockOrderViolations prometheus.Counter
}

// NewCacheMetrics creates a new Prometheus-backed cache.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes the cache to use its built-in no-op implementation.
func NewCacheMetrics() cache.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &cacheMetrics{
		scans: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "volman_cache_scans_total",
				Help: "Total number of device label scans",
			},
			[]string{"full"},
		),
		deviceReads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "volman_cache_device_reads_total",
				Help: "Total number of device label read attempts",
			},
			[]string{"status"},
		),
		duplicatePVs: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "volman_cache_duplicate_pvs_total",
				Help: "Total number of suppressed duplicate PV sightings",
			},
		),
		metadataStores: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "volman_cache_metadata_stores_total",
				Help: "Total number of VG metadata blobs cached",
			},
			[]string{"precommitted"},
		),
		metadataDrops: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "volman_cache_metadata_drops_total",
				Help: "Total number of cached VG metadata blobs discarded",
			},
		),
		vgCacheHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "volman_cache_vg_hits_total",
				Help: "Total number of VG lookups served from the cached parsed object",
			},
		),
		vgCacheBuilds: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "volman_cache_vg_builds_total",
				Help: "Total number of parsed VG objects built from cached metadata",
			},
		),
		vgHolders: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "volman_cache_vg_holders",
				Help: "Current holder count across shared parsed VG objects",
			},
		),
		lockOrderViolations: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "volman_cache_lock_order_violations_total",
				Help: "Total number of VG lock requests rejected for ordering",
			},
		),
	}
}

func (m *cacheMetrics) ScanStarted(full bool) {
	m.scans.WithLabelValues(strconv.FormatBool(full)).Inc()
}

func (m *cacheMetrics) DeviceRead(ok bool) {
	status := "error"
	if ok {
		status = "ok"
	}
	m.deviceReads.WithLabelValues(status).Inc()
}

func (m *cacheMetrics) DuplicateFound() {
	m.duplicatePVs.Inc()
}

func (m *cacheMetrics) MetadataStored(precommitted bool) {
	m.metadataStores.WithLabelValues(strconv.FormatBool(precommitted)).Inc()
}

func (m *cacheMetrics) MetadataDropped() {
	m.metadataDrops.Inc()
}

func (m *cacheMetrics) VGCacheHit() {
	m.vgCacheHits.Inc()
}

func (m *cacheMetrics) VGCacheBuild() {
	m.vgCacheBuilds.Inc()
}

func (m *cacheMetrics) HoldersChanged(holders int) {
	m.vgHolders.Set(float64(holders))
}

func (m *cacheMetrics) LockOrderViolation() {
	m.lockOrderViolations.Inc()
}
