package cache

import (
	"github.com/lcorbani/volman/pkg/format"
	"github.com/lcorbani/volman/pkg/metadata"
)

// VGInfo is the cache record of one distinct (VG name, VG identifier)
// pair. Records sharing a name are chained behind the primary record in
// the name index; the primary is chosen by the duplicate-name precedence
// policy.
type VGInfo struct {
	vgname       string
	vgid         metadata.ID
	status       metadata.VGStatus
	creationHost string
	lockType     string

	// mdaChecksum and mdaSize identify the last-seen metadata-area
	// content.
	mdaChecksum uint32
	mdaSize     uint64

	// meta is the serialized metadata blob; tree is the parsed
	// representation derived from it. The tree's lifetime is tied to the
	// blob: both are discarded together.
	meta []byte
	tree format.Tree

	// cachedVG is the shared parsed VG object handed to borrowers,
	// reference counted by holders. cachedSum snapshots a checksum of the
	// object's exported form for the release-time consistency check.
	cachedVG    *metadata.VolumeGroup
	cachedSum   uint64
	holders     int
	useCount    int
	invalidated bool

	// precommitted marks the blob as staged but not yet durably
	// committed.
	precommitted bool

	// infos is the member list: every PV record attached to this VG.
	infos []*Info

	fmt format.Format
}

// Name returns the VG name.
func (vginfo *VGInfo) Name() string {
	return vginfo.vgname
}

// VGID returns the VG identifier.
func (vginfo *VGInfo) VGID() metadata.ID {
	return vginfo.vgid
}

// Status returns the VG status flags.
func (vginfo *VGInfo) Status() metadata.VGStatus {
	return vginfo.status
}

// CreationHost returns the host the VG was created on, or "".
func (vginfo *VGInfo) CreationHost() string {
	return vginfo.creationHost
}

// LockType returns the VG's lock-type label, or "".
func (vginfo *VGInfo) LockType() string {
	return vginfo.lockType
}

// Format returns the on-disk format backend of this VG.
func (vginfo *VGInfo) Format() format.Format {
	return vginfo.fmt
}

// Precommitted reports whether the cached blob is staged, not committed.
func (vginfo *VGInfo) Precommitted() bool {
	return vginfo.precommitted
}

// HasCachedMetadata reports whether a metadata blob is cached.
func (vginfo *VGInfo) HasCachedMetadata() bool {
	return vginfo.meta != nil
}

// Holders returns the borrower count of the shared parsed VG object.
func (vginfo *VGInfo) Holders() int {
	return vginfo.holders
}

// PVCount returns the number of member PV records.
func (vginfo *VGInfo) PVCount() int {
	return len(vginfo.infos)
}

// attachInfo places a PV record on the member list.
func (vginfo *VGInfo) attachInfo(info *Info) {
	if vginfo == nil {
		return
	}
	info.vginfo = vginfo
	vginfo.infos = append(vginfo.infos, info)
}

// detachInfo removes a PV record from its member list.
func detachInfo(info *Info) {
	vginfo := info.vginfo
	if vginfo != nil {
		for i, member := range vginfo.infos {
			if member == info {
				vginfo.infos = append(vginfo.infos[:i], vginfo.infos[i+1:]...)
				break
			}
		}
	}
	info.vginfo = nil
}

// isValid reports whether every member PV record is valid.
func (vginfo *VGInfo) isValid() bool {
	for _, info := range vginfo.infos {
		if !info.isValid() {
			return false
		}
	}
	return true
}

// isInvalid reports whether no member PV record is valid. Mixed states are
// transitional and count as valid enough to keep.
func (vginfo *VGInfo) isInvalid() bool {
	for _, info := range vginfo.infos {
		if info.isValid() {
			return false
		}
	}
	return true
}
