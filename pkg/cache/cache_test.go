package cache

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcorbani/volman/internal/logger"
	"github.com/lcorbani/volman/pkg/device"
	devmemory "github.com/lcorbani/volman/pkg/device/memory"
	"github.com/lcorbani/volman/pkg/format"
	formattext "github.com/lcorbani/volman/pkg/format/text"
	"github.com/lcorbani/volman/pkg/metadata"
)

// testCoordinator is a controllable Coordinator for tests.
type testCoordinator struct {
	critical  bool
	writeLock bool
}

func (tc *testCoordinator) CriticalSection() bool { return tc.critical }
func (tc *testCoordinator) WriteLockHeld() bool   { return tc.writeLock }

// newTestCache builds a cache over an in-memory device layer with the
// text format backend.
func newTestCache(t *testing.T, mutate ...func(*Options)) (*Cache, *devmemory.Layer, *testCoordinator) {
	t.Helper()

	layer := devmemory.NewLayer()
	coord := &testCoordinator{}
	opts := Options{
		Devices:         layer,
		Formats:         []format.Format{formattext.New()},
		Coordinator:     coord,
		Hostname:        "node-a",
		CacheVGMetadata: true,
	}
	for _, m := range mutate {
		m(&opts)
	}

	c, err := New(opts)
	require.NoError(t, err)
	return c, layer, coord
}

// pvLabel builds a text-format label. Empty vgname yields an orphan label.
func pvLabel(pvid, vgname string, size uint64) *device.Label {
	label := &device.Label{
		PVID:       metadata.MakeID(pvid),
		FormatName: formattext.FormatName,
		DeviceSize: size,
		MetadataAreas: []metadata.DiskArea{
			{Offset: 4096, Size: 1048576},
		},
	}
	if vgname != "" {
		label.VG = &metadata.VGSummary{
			VGName: vgname,
			VGID:   metadata.MakeID(vgname + "-id"),
		}
	}
	return label
}

// addPVDevice registers a labeled device on the layer.
func addPVDevice(layer *devmemory.Layer, name, pvid, vgname string) *device.Device {
	dev := &device.Device{Name: name, Size: 1 << 30}
	layer.AddDevice(dev, pvLabel(pvid, vgname, 1<<30))
	return dev
}

// captureLog routes logger output into a buffer for the duration of the
// test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })
	return &buf
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{Devices: devmemory.NewLayer()})
	require.Error(t, err)
}

func TestNewSeedsOrphanVGs(t *testing.T) {
	c, _, _ := newTestCache(t)

	orphan := c.VGInfoFromVGName(metadata.OrphanVGName(formattext.FormatName), metadata.ID{})
	require.NotNil(t, orphan)
	assert.Equal(t, 0, orphan.PVCount())

	// Orphans are excluded from the public enumeration unless asked for.
	assert.Empty(t, c.VGNames(false))
	assert.Equal(t, []string{metadata.OrphanVGName(formattext.FormatName)}, c.VGNames(true))
}

func TestDestroyRetainsOrphansAndGlobalLock(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))

	c.LockVGName(metadata.VGGlobal)
	c.Destroy(true, false)

	assert.True(t, c.VGNameIsLocked(metadata.VGGlobal), "global lock must survive a wipe")
	assert.Equal(t, 0, c.VGsLocked(), "global lock is not a per-VG lock")
	assert.False(t, c.HasScanned())
	assert.NotNil(t, c.VGInfoFromVGName(metadata.OrphanVGName(formattext.FormatName), metadata.ID{}))
	assert.Nil(t, c.VGInfoFromVGName("vg0", metadata.ID{}))

	// A reset discards the carried lock.
	c.Destroy(true, true)
	assert.False(t, c.VGNameIsLocked(metadata.VGGlobal))
	assert.Equal(t, 0, c.VGsLocked())
}

func TestDestroyReportsLeakedLocks(t *testing.T) {
	c, _, _ := newTestCache(t)
	buf := captureLog(t)

	c.LockVGName("vg-leaked")
	c.Destroy(true, false)

	assert.Contains(t, buf.String(), "INTERNAL ERROR")
	assert.Contains(t, buf.String(), "vg-leaked")
	assert.False(t, c.VGNameIsLocked("vg-leaked"))
}

func TestHasLockType(t *testing.T) {
	c, layer, _ := newTestCache(t)
	dev := addPVDevice(layer, "/dev/a", "pv1", "vg0")
	label := pvLabel("pv1", "vg0", dev.Size)
	label.VG.LockType = "sanlock"
	layer.SetLabel("/dev/a", label)
	require.NoError(t, c.LabelScan(ScanFull))

	assert.True(t, c.HasLockType("sanlock"))
	assert.False(t, c.HasLockType("dlm"))
}

func TestMaxNameLengths(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a-very-long-device-name", "pv1", "vg0")
	addPVDevice(layer, "/dev/b", "pv2", "vg-with-a-longer-name")
	require.NoError(t, c.LabelScan(ScanFull))

	pvMax, vgMax := c.MaxNameLengths()
	assert.Equal(t, len("/dev/a-very-long-device-name"), pvMax)
	assert.Equal(t, len("vg-with-a-longer-name"), vgMax)
}
