// Package format defines the interface between the metadata cache and the
// on-disk format backends.
//
// A format backend knows how to serialize a parsed VolumeGroup into a
// metadata blob and back. The cache stores blobs, caches the parsed tree
// derived from a blob, and builds shared VolumeGroup objects from the tree;
// it never interprets blob contents itself.
package format

import (
	"github.com/lcorbani/volman/pkg/metadata"
)

// Tree is the parsed representation of a metadata blob. It is opaque to the
// cache: the cache only ties its lifetime to the blob it was parsed from,
// discarding both together.
type Tree interface{}

// Format is one on-disk metadata format backend.
type Format interface {
	// Name identifies the format, e.g. "text".
	Name() string

	// OrphanVGName returns the name of this format's orphan pseudo-VG.
	OrphanVGName() string

	// ExportVG serializes a VolumeGroup into a metadata blob.
	ExportVG(vg *metadata.VolumeGroup) ([]byte, error)

	// ParseBlob parses a metadata blob into a Tree.
	ParseBlob(blob []byte) (Tree, error)

	// ImportVG reconstructs a VolumeGroup from a previously parsed Tree.
	ImportVG(tree Tree) (*metadata.VolumeGroup, error)

	// Scan performs format-specific auxiliary scanning, e.g. metadata kept
	// outside PV labels. Formats with no auxiliary areas return nil.
	Scan() error
}
