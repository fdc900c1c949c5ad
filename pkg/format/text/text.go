// Package text implements the YAML-based metadata format backend.
package text

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/lcorbani/volman/pkg/format"
	"github.com/lcorbani/volman/pkg/metadata"
)

// FormatName identifies this backend.
const FormatName = "text"

// Format serializes VG metadata as YAML documents.
type Format struct{}

// New returns the text format backend.
func New() *Format {
	return &Format{}
}

func (f *Format) Name() string {
	return FormatName
}

func (f *Format) OrphanVGName() string {
	return metadata.OrphanVGName(FormatName)
}

// ExportVG serializes a VolumeGroup to a YAML blob. Identifiers travel as
// their textual form.
func (f *Format) ExportVG(vg *metadata.VolumeGroup) ([]byte, error) {
	out := *vg
	out.IDText = vg.ID.String()
	out.PVs = make([]*metadata.PhysicalVolume, len(vg.PVs))
	for i, pv := range vg.PVs {
		cp := *pv
		cp.IDText = pv.ID.String()
		out.PVs[i] = &cp
	}

	blob, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("text format: export of VG %s failed: %w", vg.Name, err)
	}
	return blob, nil
}

// ParseBlob parses a YAML blob into a tree. The returned tree is a
// *metadata.VolumeGroup with textual identifiers not yet resolved.
func (f *Format) ParseBlob(blob []byte) (format.Tree, error) {
	var vg metadata.VolumeGroup
	if err := yaml.Unmarshal(blob, &vg); err != nil {
		return nil, fmt.Errorf("text format: metadata parse failed: %w", err)
	}
	return &vg, nil
}

// ImportVG resolves a parsed tree into a usable VolumeGroup. The tree stays
// untouched so it can be imported again; the returned VolumeGroup is a
// fresh copy.
func (f *Format) ImportVG(tree format.Tree) (*metadata.VolumeGroup, error) {
	parsed, ok := tree.(*metadata.VolumeGroup)
	if !ok {
		return nil, fmt.Errorf("text format: unexpected tree type %T", tree)
	}

	vg := *parsed
	vg.ID = metadata.MakeID(parsed.IDText)
	vg.PVs = make([]*metadata.PhysicalVolume, len(parsed.PVs))
	for i, pv := range parsed.PVs {
		cp := *pv
		cp.ID = metadata.MakeID(pv.IDText)
		vg.PVs[i] = &cp
	}
	return &vg, nil
}

// Scan is a no-op: the text format keeps no metadata outside PV labels.
func (f *Format) Scan() error {
	return nil
}
