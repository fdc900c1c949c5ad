// Package xdr implements a binary metadata format backend using XDR
// encoding (RFC 4506).
package xdr

import (
	"bytes"
	"fmt"

	xdr2 "github.com/rasky/go-xdr/xdr2"

	"github.com/lcorbani/volman/pkg/format"
	"github.com/lcorbani/volman/pkg/metadata"
)

// FormatName identifies this backend.
const FormatName = "xdr"

// Format serializes VG metadata as XDR records.
type Format struct{}

// New returns the xdr format backend.
func New() *Format {
	return &Format{}
}

// wire types: identifiers travel as strings, sizes as XDR hyper.

type wirePV struct {
	ID         string
	DeviceName string
	Size       uint64
	PEStart    uint64
	BAStart    uint64
	BASize     uint64
}

type wireVG struct {
	Name         string
	ID           string
	Status       uint32
	CreationHost string
	LockType     string
	SeqNo        uint32
	ExtentSize   uint64
	PVs          []wirePV
}

func (f *Format) Name() string {
	return FormatName
}

func (f *Format) OrphanVGName() string {
	return metadata.OrphanVGName(FormatName)
}

func (f *Format) ExportVG(vg *metadata.VolumeGroup) ([]byte, error) {
	w := wireVG{
		Name:         vg.Name,
		ID:           vg.ID.String(),
		Status:       uint32(vg.Status),
		CreationHost: vg.CreationHost,
		LockType:     vg.LockType,
		SeqNo:        vg.SeqNo,
		ExtentSize:   vg.ExtentSize,
		PVs:          make([]wirePV, len(vg.PVs)),
	}
	for i, pv := range vg.PVs {
		w.PVs[i] = wirePV{
			ID:         pv.ID.String(),
			DeviceName: pv.DeviceName,
			Size:       pv.Size,
			PEStart:    pv.PEStart,
			BAStart:    pv.BAStart,
			BASize:     pv.BASize,
		}
	}

	var buf bytes.Buffer
	if _, err := xdr2.Marshal(&buf, &w); err != nil {
		return nil, fmt.Errorf("xdr format: export of VG %s failed: %w", vg.Name, err)
	}
	return buf.Bytes(), nil
}

func (f *Format) ParseBlob(blob []byte) (format.Tree, error) {
	var w wireVG
	if _, err := xdr2.Unmarshal(bytes.NewReader(blob), &w); err != nil {
		return nil, fmt.Errorf("xdr format: metadata parse failed: %w", err)
	}
	return &w, nil
}

func (f *Format) ImportVG(tree format.Tree) (*metadata.VolumeGroup, error) {
	w, ok := tree.(*wireVG)
	if !ok {
		return nil, fmt.Errorf("xdr format: unexpected tree type %T", tree)
	}

	vg := &metadata.VolumeGroup{
		Name:         w.Name,
		IDText:       w.ID,
		ID:           metadata.MakeID(w.ID),
		Status:       metadata.VGStatus(w.Status),
		CreationHost: w.CreationHost,
		LockType:     w.LockType,
		SeqNo:        w.SeqNo,
		ExtentSize:   w.ExtentSize,
		PVs:          make([]*metadata.PhysicalVolume, len(w.PVs)),
	}
	for i, pv := range w.PVs {
		vg.PVs[i] = &metadata.PhysicalVolume{
			ID:         metadata.MakeID(pv.ID),
			IDText:     pv.ID,
			DeviceName: pv.DeviceName,
			Size:       pv.Size,
			PEStart:    pv.PEStart,
			BAStart:    pv.BAStart,
			BASize:     pv.BASize,
		}
	}
	return vg, nil
}

// Scan is a no-op: the xdr format keeps no metadata outside PV labels.
func (f *Format) Scan() error {
	return nil
}
