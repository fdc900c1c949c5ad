package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcorbani/volman/pkg/metadata"
)

// testVG builds parsed metadata matching the labels addPVDevice writes:
// the VG identifier is derived from the name the same way.
func testVG(vgname string, pvids ...string) *metadata.VolumeGroup {
	vg := &metadata.VolumeGroup{
		Name:       vgname,
		ID:         metadata.MakeID(vgname + "-id"),
		SeqNo:      1,
		ExtentSize: 4 << 20,
	}
	for _, pvid := range pvids {
		vg.PVs = append(vg.PVs, &metadata.PhysicalVolume{
			ID:         metadata.MakeID(pvid),
			DeviceName: "/dev/" + pvid,
			Size:       1 << 30,
			PEStart:    1 << 20,
		})
	}
	return vg
}

func TestUpdateVGStoresMetadata(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))

	vg := testVG("vg0", "pv1")
	require.NoError(t, c.UpdateVG(vg, false))

	vginfo := c.VGInfoFromVGID(vg.ID)
	require.NotNil(t, vginfo)
	assert.True(t, vginfo.HasCachedMetadata())
	assert.False(t, vginfo.Precommitted())
}

func TestUpdateVGWithoutBlobCaching(t *testing.T) {
	c, layer, _ := newTestCache(t, func(o *Options) { o.CacheVGMetadata = false })
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))

	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1"), false))

	vginfo := c.VGInfoFromVGName("vg0", metadata.ID{})
	require.NotNil(t, vginfo)
	assert.False(t, vginfo.HasCachedMetadata())
}

func TestGetVGCountsHolders(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))
	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1"), false))

	vgid := metadata.MakeID("vg0-id")

	// Building the shared object counts the cache itself as holder one.
	first, err := c.GetVG("vg0", vgid, false)
	require.NoError(t, err)
	assert.Equal(t, 2, c.VGInfoFromVGID(vgid).Holders())

	second, err := c.GetVG("vg0", vgid, false)
	require.NoError(t, err)
	assert.Same(t, first, second, "borrowers share one parsed object")
	assert.Equal(t, 3, c.VGInfoFromVGID(vgid).Holders())

	c.ReleaseVG(second)
	c.ReleaseVG(first)
	assert.Equal(t, 1, c.VGInfoFromVGID(vgid).Holders())

	// The object survives for the next borrower.
	third, err := c.GetVG("vg0", vgid, false)
	require.NoError(t, err)
	assert.Same(t, first, third)
	c.ReleaseVG(third)
}

func TestGetVGMisses(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))

	// No identifier at all.
	_, err := c.GetVG("vg0", metadata.ID{}, false)
	require.Error(t, err)
	assert.True(t, IsNotCached(err))

	// Known VG, nothing stored yet.
	_, err = c.GetVG("vg0", metadata.MakeID("vg0-id"), false)
	require.Error(t, err)
	assert.True(t, IsNotCached(err))
}

func TestGetVGInvalidatedMember(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))
	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1"), false))

	info := c.InfoFromPVID(metadata.MakeID("pv1"), false)
	require.NotNil(t, info)
	info.status |= cacheInvalid

	_, err := c.GetVG("vg0", metadata.MakeID("vg0-id"), false)
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrInvalidated, code)
}

func TestPrecommittedMetadataVisibility(t *testing.T) {
	c, layer, coord := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))
	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1"), true))

	vgid := metadata.MakeID("vg0-id")

	// Staged metadata is invisible to committed readers.
	_, err := c.GetVG("vg0", vgid, false)
	require.Error(t, err)
	assert.True(t, IsNotCached(err))

	// The precommitted reader sees it.
	vg, err := c.GetVG("vg0", vgid, true)
	require.NoError(t, err)
	assert.Equal(t, "vg0", vg.Name)
	c.ReleaseVG(vg)

	// Inside a critical section the staged copy is effectively durable.
	coord.critical = true
	vg, err = c.GetVG("vg0", vgid, false)
	require.NoError(t, err)
	c.ReleaseVG(vg)
	coord.critical = false

	// The commit flips visibility the other way around.
	c.CommitMetadata("vg0")
	vg, err = c.GetVG("vg0", vgid, false)
	require.NoError(t, err)
	c.ReleaseVG(vg)

	_, err = c.GetVG("vg0", vgid, true)
	require.Error(t, err)
	assert.True(t, IsNotCached(err))
}

func TestDropMetadataRevertsPrecommit(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))
	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1"), true))

	c.DropMetadata("vg0", true)

	vginfo := c.VGInfoFromVGName("vg0", metadata.ID{})
	require.NotNil(t, vginfo)
	assert.False(t, vginfo.HasCachedMetadata())
	assert.False(t, vginfo.Precommitted())
	assert.Nil(t, c.InfoFromPVID(metadata.MakeID("pv1"), true),
		"reverting must invalidate the member labels")
}

func TestDropMetadataKeepsLabelsForPrecommit(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))
	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1"), true))

	// Dropping without reverting: the labels were already invalidated
	// when the precommit was staged, so they are left alone.
	c.DropMetadata("vg0", false)

	vginfo := c.VGInfoFromVGName("vg0", metadata.ID{})
	assert.False(t, vginfo.HasCachedMetadata())
	assert.NotNil(t, c.InfoFromPVID(metadata.MakeID("pv1"), true))
}

func TestDropMetadataReportsMissingCommit(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))

	vginfo := c.VGInfoFromVGName("vg0", metadata.ID{})
	require.NotNil(t, vginfo)
	vginfo.precommitted = true // staged state whose blob never arrived

	buf := captureLog(t)
	c.DropMetadata("vg0", false)
	assert.Contains(t, buf.String(), "INTERNAL ERROR")
	assert.Contains(t, buf.String(), "commit for VG vg0 not found")
}

func TestDropMetadataSkippedUnderGlobalReadLock(t *testing.T) {
	c, layer, coord := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))
	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1"), false))

	c.LockVGName(metadata.VGGlobal)

	c.DropMetadata("vg0", false)
	assert.True(t, c.VGInfoFromVGName("vg0", metadata.ID{}).HasCachedMetadata(),
		"a global read lock means nothing changed on disk")

	// A writer invalidates for real.
	coord.writeLock = true
	c.DropMetadata("vg0", false)
	assert.False(t, c.VGInfoFromVGName("vg0", metadata.ID{}).HasCachedMetadata())

	c.UnlockVGName(metadata.VGGlobal)
}

func TestDropMetadataOrphansForcesRescan(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))
	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1"), false))
	require.True(t, c.HasScanned())

	c.DropMetadata(metadata.VGOrphans, false)

	assert.False(t, c.HasScanned(), "orphan drop must force the next scan")
	assert.True(t, c.VGInfoFromVGName("vg0", metadata.ID{}).HasCachedMetadata(),
		"named VG metadata is not part of the orphan broadcast")
}

func TestLockTransitionDropsCachedMetadata(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))
	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1"), false))

	c.LockVGName("vg0")
	assert.False(t, c.VGInfoFromVGName("vg0", metadata.ID{}).HasCachedMetadata())
	c.UnlockVGName("vg0")
}

func TestLockCycleKeepsBorrowedReference(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))
	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1"), false))

	vgid := metadata.MakeID("vg0-id")
	vg, err := c.GetVG("vg0", vgid, false)
	require.NoError(t, err)
	vginfo := c.VGInfoFromVGID(vgid)
	require.Equal(t, 2, vginfo.Holders())

	// The lock transition wipes the blob and drops the cache's own
	// reference; the unlock transition finds nothing left to drop.
	c.LockVGName("vg0")
	c.UnlockVGName("vg0")

	assert.False(t, vginfo.HasCachedMetadata())
	assert.Equal(t, 1, vginfo.Holders(), "the borrowed reference survives both transitions")

	c.ReleaseVG(vg)
	assert.Equal(t, 0, vginfo.Holders())
	assert.Nil(t, vginfo.cachedVG)
}

func TestGetVGRebuildsAfterMemberTurnsOrphan(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	addPVDevice(layer, "/dev/b", "pv2", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))
	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1", "pv2"), false))

	vgid := metadata.MakeID("vg0-id")
	first, err := c.GetVG("vg0", vgid, false)
	require.NoError(t, err)
	c.ReleaseVG(first)

	// A member re-initialized as an orphan leaves the parsed object
	// stale even though the remaining members are untouched.
	info := c.InfoFromPVID(metadata.MakeID("pv2"), false)
	require.NotNil(t, info)
	orphan := c.formats[0].OrphanVGName()
	require.NoError(t, c.UpdateVGNameAndID(info, &metadata.VGSummary{
		VGName: orphan,
		VGID:   metadata.MakeID(orphan),
	}))

	vginfo := c.VGInfoFromVGID(vgid)
	require.NotNil(t, vginfo)
	require.True(t, vginfo.invalidated)

	second, err := c.GetVG("vg0", vgid, false)
	require.NoError(t, err)
	assert.NotSame(t, first, second, "a stale parsed object must not be handed out again")
	assert.False(t, vginfo.invalidated)
	assert.Equal(t, 2, vginfo.Holders())

	// The abandoned object belongs to its borrowers alone now.
	c.ReleaseVG(first)
	assert.Equal(t, 2, vginfo.Holders())
	c.ReleaseVG(second)
	assert.Equal(t, 1, vginfo.Holders())
}

func TestStoreMetadataKeepsTreeForIdenticalBlob(t *testing.T) {
	c, layer, _ := newTestCache(t)
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))

	vg := testVG("vg0", "pv1")
	require.NoError(t, c.UpdateVG(vg, false))

	// Borrow once so the parsed tree exists.
	borrowed, err := c.GetVG("vg0", vg.ID, false)
	require.NoError(t, err)
	c.ReleaseVG(borrowed)

	vginfo := c.VGInfoFromVGID(vg.ID)
	require.NotNil(t, vginfo.tree)

	// Re-storing identical metadata keeps the parsed tree.
	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1"), false))
	assert.NotNil(t, vginfo.tree)

	// Changed metadata discards it.
	changed := testVG("vg0", "pv1")
	changed.SeqNo = 2
	require.NoError(t, c.UpdateVG(changed, false))
	assert.Nil(t, vginfo.tree)
	assert.True(t, vginfo.HasCachedMetadata())
}

func TestSharedVGMutationDetected(t *testing.T) {
	c, layer, _ := newTestCache(t, func(o *Options) { o.DetectCorruption = true })
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))
	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1"), false))

	vgid := metadata.MakeID("vg0-id")

	// Two borrows: the object was genuinely shared, so the release-time
	// check applies.
	first, err := c.GetVG("vg0", vgid, false)
	require.NoError(t, err)
	second, err := c.GetVG("vg0", vgid, false)
	require.NoError(t, err)

	second.SeqNo = 99 // a borrower corrupting the shared object

	c.ReleaseVG(second)
	c.ReleaseVG(first)

	buf := captureLog(t)
	c.DropMetadata("vg0", false) // releases the cache's own reference
	assert.Contains(t, buf.String(), "INTERNAL ERROR")
	assert.Contains(t, buf.String(), "changed while shared")
}

func TestSingleBorrowSkipsMutationCheck(t *testing.T) {
	c, layer, _ := newTestCache(t, func(o *Options) { o.DetectCorruption = true })
	addPVDevice(layer, "/dev/a", "pv1", "vg0")
	require.NoError(t, c.LabelScan(ScanFull))
	require.NoError(t, c.UpdateVG(testVG("vg0", "pv1"), false))

	vg, err := c.GetVG("vg0", metadata.MakeID("vg0-id"), false)
	require.NoError(t, err)
	vg.SeqNo = 99
	c.ReleaseVG(vg)

	buf := captureLog(t)
	c.DropMetadata("vg0", false)
	assert.NotContains(t, buf.String(), "changed while shared",
		"a single borrow has no sharing window to check")
}
