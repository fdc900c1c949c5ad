package metadata

// VGStatus carries volume group status flags as read from metadata.
type VGStatus uint32

const (
	// VGExported marks a VG that has been exported from this system and is
	// awaiting import elsewhere. Exported VGs lose precedence when a
	// duplicate VG name is resolved.
	VGExported VGStatus = 1 << iota
)

// Exported reports whether the exported flag is set.
func (s VGStatus) Exported() bool {
	return s&VGExported != 0
}

// DiskArea describes an on-disk region of a PV: a metadata area, a data
// area, or a bootloader area. Offsets and sizes are in bytes.
type DiskArea struct {
	Offset  uint64 `yaml:"offset"`
	Size    uint64 `yaml:"size"`
	Ignored bool   `yaml:"ignored,omitempty"`
}

// VGSummary is the per-VG information carried by a PV label: enough to
// place the PV in its VG without parsing full metadata.
type VGSummary struct {
	VGName       string
	VGID         ID
	Status       VGStatus
	CreationHost string
	LockType     string

	// MDAChecksum and MDASize identify the last-seen metadata-area content.
	// A (checksum, size) pair already known to the cache means the full
	// metadata text does not need to be re-parsed.
	MDAChecksum uint32
	MDASize     uint64
}

// PhysicalVolume is the parsed representation of one PV as recorded in VG
// metadata.
type PhysicalVolume struct {
	ID         ID     `yaml:"-"`
	IDText     string `yaml:"id"`
	DeviceName string `yaml:"device"`
	Size       uint64 `yaml:"size"`
	PEStart    uint64 `yaml:"pe_start"`
	BAStart    uint64 `yaml:"ba_start,omitempty"`
	BASize     uint64 `yaml:"ba_size,omitempty"`
}

// VolumeGroup is the parsed representation of a VG's metadata.
//
// Parsed VolumeGroups served by the cache are shared between borrowers and
// reference counted; callers obtain them through the cache and must release
// them back. The struct itself carries no cache state.
type VolumeGroup struct {
	Name         string            `yaml:"name"`
	IDText       string            `yaml:"id"`
	ID           ID                `yaml:"-"`
	Status       VGStatus          `yaml:"status"`
	CreationHost string            `yaml:"creation_host,omitempty"`
	LockType     string            `yaml:"lock_type,omitempty"`
	SeqNo        uint32            `yaml:"seqno"`
	ExtentSize   uint64            `yaml:"extent_size"`
	PVs          []*PhysicalVolume `yaml:"pvs"`
}

// Summary derives the label-level VG summary from parsed metadata.
func (vg *VolumeGroup) Summary() VGSummary {
	return VGSummary{
		VGName:       vg.Name,
		VGID:         vg.ID,
		Status:       vg.Status,
		CreationHost: vg.CreationHost,
		LockType:     vg.LockType,
	}
}

// VGNameID pairs a VG name with its identifier for enumeration results.
type VGNameID struct {
	Name string
	ID   ID
}
