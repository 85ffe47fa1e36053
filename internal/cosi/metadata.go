// Package cosi implements the Composable OS Image metadata model and its
// version-gated validator, plus the bundle I/O boundary that extracts a
// COSI file's images and metadata.json from the archive on disk. The
// validator is pure; everything that touches the filesystem lives in the
// bundle side of the package.
package cosi

import "trident/internal/partitiontype"

// Metadata is the parsed contents of a COSI file's metadata.json.
type Metadata struct {
	Version    string                 `json:"version"`
	OsArch     string                 `json:"osArch"`
	OsRelease  string                 `json:"osRelease"`
	Images     []Image                `json:"images"`
	Bootloader *Bootloader            `json:"bootloader,omitempty"`
	OsPackages []OsPackage            `json:"osPackages,omitempty"`
	Partitions []Partition            `json:"partitions,omitempty"`
	Extra      map[string]interface{} `json:"-"`
}

// Image is one filesystem image bundled inside the COSI file. PartType is
// kept as the raw wire string (a kebab-case type name or a GUID) rather than a
// partitiontype.Type, since the validator in this package never needs to
// resolve it; callers that do (the storage graph / encryption planner)
// call ResolvedPartType.
type Image struct {
	Image      ImageFile `json:"image"`
	MountPoint string    `json:"mountPoint"`
	FsType     string    `json:"fsType"`
	FsUUID     string    `json:"fsUuid"`
	PartType   string    `json:"partType"`
	Verity     *Verity   `json:"verity,omitempty"`
}

// ResolvedPartType parses PartType as a partition-type name or GUID.
func (img Image) ResolvedPartType() (partitiontype.Type, error) {
	return partitiontype.TryFromString(img.PartType)
}

// Verity describes the hash-tree image paired with an Image, when the
// filesystem it carries is dm-verity protected.
type Verity struct {
	Image    ImageFile `json:"image"`
	RootHash string    `json:"roothash"`
}

// ImageFile locates and checksums one compressed image blob within the
// bundle. SourceFile is populated only after extraction and is never
// part of the on-disk JSON.
type ImageFile struct {
	Path             string `json:"path"`
	CompressedSize   uint64 `json:"compressedSize"`
	UncompressedSize uint64 `json:"uncompressedSize"`
	Sha384           string `json:"sha384"`
	SourceFile       string `json:"-"`
}

// BootloaderType is the closed set of bootloader shapes a COSI bundle
// can declare from ≥1.1 onward.
type BootloaderType string

const (
	BootloaderGrub        BootloaderType = "grub"
	BootloaderSystemdBoot BootloaderType = "systemd-boot"
)

// Bootloader is the ≥1.1 bootloader descriptor.
type Bootloader struct {
	Type        BootloaderType    `json:"type"`
	SystemdBoot *SystemdBootEntries `json:"systemdBoot,omitempty"`
}

// SystemdBootEntries lists the systemd-boot boot entries bundled with
// the image.
type SystemdBootEntries struct {
	Entries []SystemdBootEntry `json:"entries"`
}

// SystemdBootEntryType distinguishes a self-contained UKI entry from
// other systemd-boot entry shapes.
type SystemdBootEntryType string

const (
	EntryUkiStandalone SystemdBootEntryType = "uki-standalone"
	EntryOther         SystemdBootEntryType = "other"
)

// SystemdBootEntry is one boot menu entry.
type SystemdBootEntry struct {
	Type SystemdBootEntryType `json:"type"`
	Path string                `json:"path"`
}

// OsPackage is one entry of the ≥1.1 package manifest.
type OsPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Release string `json:"release"`
	Arch    string `json:"arch"`
}

// Partition is one ≥1.2 partition-table entry, cross-referencing an
// Image by its archive path.
type Partition struct {
	Number       int    `json:"number"`
	Path         *string `json:"path,omitempty"`
	OriginalSize uint64 `json:"originalSize,omitempty"`
}

// NormalizedArch maps the metadata's osArch value (uname-style, e.g.
// "x86_64") onto Go's architecture names, so it can be compared against
// the running host. Unrecognized values pass through unchanged.
func (m *Metadata) NormalizedArch() string {
	switch m.OsArch {
	case "x86_64", "amd64":
		return "amd64"
	case "aarch64", "arm64":
		return "arm64"
	default:
		return m.OsArch
	}
}

// ImageForMountPoint returns the Image bundled at the given mount point,
// or nil if none matches.
func (m *Metadata) ImageForMountPoint(mountPoint string) *Image {
	for i := range m.Images {
		if m.Images[i].MountPoint == mountPoint {
			return &m.Images[i]
		}
	}
	return nil
}
