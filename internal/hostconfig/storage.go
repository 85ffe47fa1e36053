// Package hostconfig defines the Host Configuration document: the
// declarative disks/partitions/RAID/encryption/filesystem section that
// internal/storagegraph validates, plus the envelope (encryption,
// bootloader, os) the rest of the servicing control plane reads.
package hostconfig

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PartitionSizeGrow is the wire token for "consume remaining disk space".
const PartitionSizeGrow = "grow"

// PartitionSize is either a fixed byte count or Grow (consume the rest of
// the disk). At most one partition per disk may be Grow.
type PartitionSize struct {
	grow  bool
	fixed uint64
}

// Fixed constructs a fixed-size PartitionSize.
func Fixed(bytes uint64) PartitionSize { return PartitionSize{fixed: bytes} }

// Grow is the sentinel "rest of the disk" size.
var Grow = PartitionSize{grow: true}

func (p PartitionSize) IsGrow() bool   { return p.grow }
func (p PartitionSize) Bytes() uint64  { return p.fixed }
func (p PartitionSize) IsFixed() bool  { return !p.grow }

// String renders the canonical human-readable form: the largest unit
// (K/M/G/T, each a power-of-1024 shift) that divides the value exactly,
// falling back to a plain decimal integer. The encoding must round-trip
// byte-exactly through ParsePartitionSize, which rules out approximate
// "1.0 kB"-style formatters.
func (p PartitionSize) String() string {
	if p.grow {
		return PartitionSizeGrow
	}
	n := p.fixed
	switch {
	case n == 0:
		return "0"
	case n&((1<<10)-1) != 0:
		return strconv.FormatUint(n, 10)
	case n&((1<<20)-1) != 0:
		return strconv.FormatUint(n>>10, 10) + "K"
	case n&((1<<30)-1) != 0:
		return strconv.FormatUint(n>>20, 10) + "M"
	case n&((1<<40)-1) != 0:
		return strconv.FormatUint(n>>30, 10) + "G"
	default:
		return strconv.FormatUint(n>>40, 10) + "T"
	}
}

// ParsePartitionSize parses the canonical wire form: "grow", a bare
// integer byte count, or an integer suffixed with K/M/G/T (each a <<10
// shift per letter). Surrounding whitespace around the whole string, and
// between the number and its suffix, is permitted; embedded whitespace
// within the number itself is not.
func ParsePartitionSize(s string) (PartitionSize, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == PartitionSizeGrow {
		return Grow, nil
	}

	shift := 0
	numPart := trimmed
	if len(trimmed) > 0 {
		switch trimmed[len(trimmed)-1] {
		case 'K':
			shift, numPart = 10, trimmed[:len(trimmed)-1]
		case 'M':
			shift, numPart = 20, trimmed[:len(trimmed)-1]
		case 'G':
			shift, numPart = 30, trimmed[:len(trimmed)-1]
		case 'T':
			shift, numPart = 40, trimmed[:len(trimmed)-1]
		}
	}

	n, err := strconv.ParseUint(strings.TrimSpace(numPart), 10, 64)
	if err != nil {
		return PartitionSize{}, fmt.Errorf("invalid partition size %q: %w", s, err)
	}
	return Fixed(n << shift), nil
}

func (p PartitionSize) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

func (p PartitionSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *PartitionSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePartitionSize(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p *PartitionSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParsePartitionSize(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PartitionTableType names the on-disk partition table scheme.
type PartitionTableType string

const (
	PartitionTableGpt PartitionTableType = "gpt"
)

// Disk is a physical or virtual block device carved into Partitions.
type Disk struct {
	ID                 string             `yaml:"id" json:"id"`
	Path               string             `yaml:"path" json:"path"`
	PartitionTableType PartitionTableType `yaml:"partitionTableType" json:"partitionTableType"`
	Partitions         []Partition        `yaml:"partitions" json:"partitions"`
}

// Partition is a slice of a Disk, identified within the host
// configuration by its own ID.
type Partition struct {
	ID   string        `yaml:"id" json:"id"`
	Size PartitionSize `yaml:"size" json:"size"`
	Type string        `yaml:"type" json:"type"`
}

// AdoptedPartition matches an existing on-disk partition by label or
// UUID rather than describing one to be created.
type AdoptedPartition struct {
	ID         string  `yaml:"id" json:"id"`
	MatchLabel *string `yaml:"matchLabel,omitempty" json:"matchLabel,omitempty"`
	MatchUUID  *string `yaml:"matchUuid,omitempty" json:"matchUuid,omitempty"`
}

// RaidArray is a software RAID array built from two or more member
// devices of the same kind and partition size.
type RaidArray struct {
	ID      string   `yaml:"id" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	Level   string   `yaml:"level" json:"level"`
	Devices []string `yaml:"devices" json:"devices"`
}

// AbVolumePair names the two alternating update targets for a single
// logical volume.
type AbVolumePair struct {
	ID      string `yaml:"id" json:"id"`
	VolumeA string `yaml:"volumeA" json:"volumeA"`
	VolumeB string `yaml:"volumeB" json:"volumeB"`
}

// EncryptedVolume is a LUKS2 mapping over an underlying device.
type EncryptedVolume struct {
	ID         string `yaml:"id" json:"id"`
	DeviceID   string `yaml:"deviceId" json:"deviceId"`
	DeviceName string `yaml:"deviceName" json:"deviceName"`
}

// VerityDevice is a dm-verity mapping formed from a data device and a
// matching hash device.
type VerityDevice struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	DataDeviceID string `yaml:"dataDeviceId" json:"dataDeviceId"`
	HashDeviceID string `yaml:"hashDeviceId" json:"hashDeviceId"`
}

// FileSystemType is the closed set of filesystem kinds the storage graph
// understands.
type FileSystemType string

const (
	FsExt4    FileSystemType = "ext4"
	FsXfs     FileSystemType = "xfs"
	FsVfat    FileSystemType = "vfat"
	FsNtfs    FileSystemType = "ntfs"
	FsTmpfs   FileSystemType = "tmpfs"
	FsOverlay FileSystemType = "overlay"
	FsIso9660 FileSystemType = "iso9660"
	FsSwap    FileSystemType = "swap"
	FsAuto    FileSystemType = "auto"
	FsOther   FileSystemType = "other"
)

// FileSystemSource says where the filesystem's bits come from.
type FileSystemSource string

const (
	SourceNew      FileSystemSource = "new"
	SourceImage    FileSystemSource = "image"
	SourceAdopted  FileSystemSource = "adopted"
	SourceEspBundle FileSystemSource = "espBundle"
	SourceOsImage  FileSystemSource = "osImage"
)

// MountPoint is a declared mount path plus its mount options.
type MountPoint struct {
	Path    string `yaml:"path" json:"path"`
	Options string `yaml:"options,omitempty" json:"options,omitempty"`
}

// FileSystem binds a filesystem type/source to an optional block device
// and an optional mount point.
type FileSystem struct {
	ID         string           `yaml:"id" json:"id"`
	DeviceID   *string          `yaml:"deviceId,omitempty" json:"deviceId,omitempty"`
	Type       FileSystemType   `yaml:"type,omitempty" json:"type,omitempty"`
	Source     FileSystemSource `yaml:"source" json:"source"`
	MountPoint *MountPoint      `yaml:"mountPoint,omitempty" json:"mountPoint,omitempty"`
}

// Storage is the storage section of a Host Configuration: every
// block-device and filesystem node the storage graph builder consumes.
type Storage struct {
	Disks             []Disk             `yaml:"disks,omitempty" json:"disks,omitempty"`
	AdoptedPartitions []AdoptedPartition `yaml:"adoptedPartitions,omitempty" json:"adoptedPartitions,omitempty"`
	RaidArrays        []RaidArray        `yaml:"raid,omitempty" json:"raid,omitempty"`
	AbVolumePairs     []AbVolumePair     `yaml:"abVolumes,omitempty" json:"abVolumes,omitempty"`
	EncryptedVolumes  []EncryptedVolume  `yaml:"encryptedVolumes,omitempty" json:"encryptedVolumes,omitempty"`
	VerityDevices     []VerityDevice     `yaml:"verity,omitempty" json:"verity,omitempty"`
	FileSystems       []FileSystem       `yaml:"filesystems,omitempty" json:"filesystems,omitempty"`
}
