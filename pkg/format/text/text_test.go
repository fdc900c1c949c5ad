package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcorbani/volman/pkg/metadata"
)

func sampleVG() *metadata.VolumeGroup {
	return &metadata.VolumeGroup{
		Name:         "vg0",
		ID:           metadata.MakeID("vg0-id"),
		Status:       metadata.VGExported,
		CreationHost: "node-a",
		LockType:     "sanlock",
		SeqNo:        7,
		ExtentSize:   4 << 20,
		PVs: []*metadata.PhysicalVolume{
			{
				ID:         metadata.MakeID("pv1"),
				DeviceName: "/dev/a",
				Size:       1 << 30,
				PEStart:    1 << 20,
				BAStart:    4096,
				BASize:     1 << 20,
			},
			{
				ID:         metadata.MakeID("pv2"),
				DeviceName: "/dev/b",
				Size:       2 << 30,
				PEStart:    1 << 20,
			},
		},
	}
}

func TestExportImport(t *testing.T) {
	f := New()
	vg := sampleVG()

	blob, err := f.ExportVG(vg)
	require.NoError(t, err)

	tree, err := f.ParseBlob(blob)
	require.NoError(t, err)

	got, err := f.ImportVG(tree)
	require.NoError(t, err)

	assert.Equal(t, vg.Name, got.Name)
	assert.Equal(t, vg.ID, got.ID)
	assert.Equal(t, vg.Status, got.Status)
	assert.Equal(t, vg.CreationHost, got.CreationHost)
	assert.Equal(t, vg.LockType, got.LockType)
	assert.Equal(t, vg.SeqNo, got.SeqNo)
	assert.Equal(t, vg.ExtentSize, got.ExtentSize)
	require.Len(t, got.PVs, 2)
	assert.Equal(t, metadata.MakeID("pv1"), got.PVs[0].ID)
	assert.Equal(t, "/dev/a", got.PVs[0].DeviceName)
	assert.Equal(t, vg.PVs[0].BASize, got.PVs[0].BASize)
	assert.Equal(t, metadata.MakeID("pv2"), got.PVs[1].ID)
}

func TestExportIsDeterministic(t *testing.T) {
	f := New()
	a, err := f.ExportVG(sampleVG())
	require.NoError(t, err)
	b, err := f.ExportVG(sampleVG())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestImportLeavesTreeReusable(t *testing.T) {
	f := New()
	blob, err := f.ExportVG(sampleVG())
	require.NoError(t, err)
	tree, err := f.ParseBlob(blob)
	require.NoError(t, err)

	first, err := f.ImportVG(tree)
	require.NoError(t, err)
	first.Name = "mutated"
	first.PVs[0].DeviceName = "/dev/mutated"

	second, err := f.ImportVG(tree)
	require.NoError(t, err)
	assert.Equal(t, "vg0", second.Name, "imports must not share state")
	assert.Equal(t, "/dev/a", second.PVs[0].DeviceName)
}

func TestImportRejectsForeignTree(t *testing.T) {
	f := New()
	_, err := f.ImportVG(struct{}{})
	require.Error(t, err)
}

func TestOrphanVGName(t *testing.T) {
	assert.Equal(t, "#orphans_text", New().OrphanVGName())
}
