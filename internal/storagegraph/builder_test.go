package storagegraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"trident/internal/hostconfig"
)

func fixedPartition(id, typ string, bytes uint64) hostconfig.Partition {
	return hostconfig.Partition{ID: id, Type: typ, Size: hostconfig.Fixed(bytes)}
}

func baseDisk() hostconfig.Disk {
	return hostconfig.Disk{
		ID:                 "disk0",
		Path:               "/dev/sda",
		PartitionTableType: hostconfig.PartitionTableGpt,
		Partitions: []hostconfig.Partition{
			fixedPartition("esp0", "esp", 100<<20),
			fixedPartition("root0", "root-amd64", 2<<30),
			fixedPartition("root1", "root-amd64", 2<<30),
			fixedPartition("roothash0", "root-amd64-verity", 128<<20),
		},
	}
}

// A disk with an ESP plus an A/B root pair should succeed and project
// into the expected fstab.
func TestBuildPlainDiskEspAbRoot(t *testing.T) {
	disk := hostconfig.Disk{
		ID:                 "os",
		Path:               "/dev/sda",
		PartitionTableType: hostconfig.PartitionTableGpt,
		Partitions: []hostconfig.Partition{
			fixedPartition("efi", "esp", 100<<20),
			fixedPartition("root-a", "root", 1<<30),
			fixedPartition("root-b", "root", 1<<30),
		},
	}
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{disk},
		AbVolumePairs: []hostconfig.AbVolumePair{
			{ID: "root", VolumeA: "root-a", VolumeB: "root-b"},
		},
		FileSystems: []hostconfig.FileSystem{
			{ID: "fs-efi", DeviceID: strPtr("efi"), Type: hostconfig.FsVfat, Source: hostconfig.SourceImage,
				MountPoint: &hostconfig.MountPoint{Path: "/boot/efi"}},
			{ID: "fs-root", DeviceID: strPtr("root"), Type: hostconfig.FsExt4, Source: hostconfig.SourceImage,
				MountPoint: &hostconfig.MountPoint{Path: "/"}},
		},
	}}

	g, err := Build(hc)
	require.NoError(t, err)

	entries := g.Fstab(func(n *Node) string { return n.ID })
	require.Len(t, entries, 2)
	byPath := map[string]FstabEntry{}
	for _, e := range entries {
		byPath[e.MountPoint] = e
	}
	require.Equal(t, hostconfig.FsVfat, byPath["/boot/efi"].FsType)
	require.Equal(t, "defaults", byPath["/boot/efi"].Options)
	require.Equal(t, hostconfig.FsExt4, byPath["/"].FsType)
}

func TestBuildSimpleValidGraph(t *testing.T) {
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{baseDisk()},
		FileSystems: []hostconfig.FileSystem{
			{ID: "fs-esp", DeviceID: strPtr("esp0"), Type: hostconfig.FsVfat, Source: hostconfig.SourceNew,
				MountPoint: &hostconfig.MountPoint{Path: "/boot/efi"}},
		},
	}}

	g, err := Build(hc)
	require.NoError(t, err)
	n, ok := g.Lookup("fs-esp")
	require.True(t, ok)
	require.Equal(t, KindFileSystem, n.Kind)
}

func TestBuildDuplicateDeviceID(t *testing.T) {
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{
			baseDisk(),
			{ID: "esp0", Path: "/dev/sdb"}, // reuses a partition's ID
		},
	}}
	_, err := Build(hc)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, DuplicateDeviceID, be.Kind)
}

func TestBuildUnresolvedReference(t *testing.T) {
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{baseDisk()},
		EncryptedVolumes: []hostconfig.EncryptedVolume{
			{ID: "enc0", DeviceID: "does-not-exist", DeviceName: "enc0"},
		},
	}}
	_, err := Build(hc)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, InvalidReferenceKind, be.Kind)
}

func TestBuildInvalidReferenceKind(t *testing.T) {
	// A RAID array pointing at another RAID array is not a valid target kind.
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{baseDisk()},
		RaidArrays: []hostconfig.RaidArray{
			{ID: "raid0", Name: "md0", Level: "1", Devices: []string{"root0", "root1"}},
			{ID: "raid1", Name: "md1", Level: "1", Devices: []string{"raid0", "root1"}},
		},
	}}
	_, err := Build(hc)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, InvalidReferenceKind, be.Kind)
}

func TestBuildRaidCardinalityTooFew(t *testing.T) {
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{baseDisk()},
		RaidArrays: []hostconfig.RaidArray{
			{ID: "raid0", Name: "md0", Level: "1", Devices: []string{"root0"}},
		},
	}}
	_, err := Build(hc)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, InvalidTargetCount, be.Kind)
}

func TestBuildRaidSizeMismatch(t *testing.T) {
	disk := baseDisk()
	disk.Partitions = append(disk.Partitions, fixedPartition("small0", "root-amd64", 1<<30))
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{disk},
		RaidArrays: []hostconfig.RaidArray{
			{ID: "raid0", Name: "md0", Level: "1", Devices: []string{"root0", "small0"}},
		},
	}}
	_, err := Build(hc)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, PartitionSizeMismatch, be.Kind)
}

func TestBuildRaidTypeMismatch(t *testing.T) {
	disk := baseDisk()
	disk.Partitions = append(disk.Partitions, fixedPartition("other0", "home", 2<<30))
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{disk},
		RaidArrays: []hostconfig.RaidArray{
			{ID: "raid0", Name: "md0", Level: "1", Devices: []string{"root0", "other0"}},
		},
	}}
	_, err := Build(hc)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, PartitionTypeMismatch, be.Kind)
}

func TestBuildVerityCongruence(t *testing.T) {
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{baseDisk()},
		VerityDevices: []hostconfig.VerityDevice{
			{ID: "verity0", Name: "root", DataDeviceID: "root0", HashDeviceID: "roothash0"},
		},
	}}
	g, err := Build(hc)
	require.NoError(t, err)
	_, ok := g.Lookup("verity0")
	require.True(t, ok)
}

func TestBuildVerityCongruenceMismatch(t *testing.T) {
	disk := baseDisk()
	disk.Partitions = append(disk.Partitions, fixedPartition("usrhash0", "usr-amd64-verity", 64<<20))
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{disk},
		VerityDevices: []hostconfig.VerityDevice{
			{ID: "verity0", Name: "root", DataDeviceID: "root0", HashDeviceID: "usrhash0"},
		},
	}}
	_, err := Build(hc)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, InvalidVerityHashPartitionType, be.Kind)
}

func TestBuildEncryptedVolumeRejectsHomePartitionType(t *testing.T) {
	// Encrypting a Home partition must fail with InvalidPartitionType.
	disk := hostconfig.Disk{
		ID:                 "disk0",
		Path:                "/dev/sda",
		PartitionTableType: hostconfig.PartitionTableGpt,
		Partitions:         []hostconfig.Partition{fixedPartition("h", "home", 1<<30)},
	}
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{disk},
		EncryptedVolumes: []hostconfig.EncryptedVolume{
			{ID: "e", DeviceID: "h", DeviceName: "e"},
		},
	}}
	_, err := Build(hc)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, InvalidPartitionType, be.Kind)
}

func TestBuildFilesystemMountpointMismatchIsWarningNotError(t *testing.T) {
	// A mismatched (but otherwise valid) mount point is a warning, not a
	// build failure.
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{baseDisk()},
		FileSystems: []hostconfig.FileSystem{
			{ID: "fs-esp", DeviceID: strPtr("esp0"), Type: hostconfig.FsVfat, Source: hostconfig.SourceNew,
				MountPoint: &hostconfig.MountPoint{Path: "/not/esp"}},
		},
	}}
	_, err := Build(hc)
	require.NoError(t, err)
}

func TestBuildEspOnRaidRequiresRaid1(t *testing.T) {
	disk := baseDisk()
	disk.Partitions = append(disk.Partitions, fixedPartition("esp1", "esp", 100<<20))
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{disk},
		RaidArrays: []hostconfig.RaidArray{
			{ID: "raid0", Name: "md0", Level: "0", Devices: []string{"esp0", "esp1"}},
		},
		FileSystems: []hostconfig.FileSystem{
			{ID: "fs-esp", DeviceID: strPtr("raid0"), Type: hostconfig.FsVfat, Source: hostconfig.SourceNew,
				MountPoint: &hostconfig.MountPoint{Path: "/boot/efi"}},
		},
	}}
	_, err := Build(hc)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, BasicCheckFailed, be.Kind)
}

func TestBuildSharingFilesystemTargetRejected(t *testing.T) {
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{baseDisk()},
		FileSystems: []hostconfig.FileSystem{
			{ID: "fs-a", DeviceID: strPtr("root0"), Type: hostconfig.FsExt4, Source: hostconfig.SourceNew,
				MountPoint: &hostconfig.MountPoint{Path: "/"}},
			{ID: "fs-b", DeviceID: strPtr("root0"), Type: hostconfig.FsExt4, Source: hostconfig.SourceNew,
				MountPoint: &hostconfig.MountPoint{Path: "/mnt/other"}},
		},
	}}
	_, err := Build(hc)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, BasicCheckFailed, be.Kind)
}

func TestBuildCycleDetected(t *testing.T) {
	// The Kind compatibility table leaves no way to express a cycle through
	// a host configuration, so this exercises the cycle detector directly
	// on two hand-built RAID nodes that reference each other.
	g := newGraph()
	a := &Node{ID: "a", Kind: KindRaidArray, RaidArray: &RaidArrayAttrs{Level: "1"}}
	b := &Node{ID: "b", Kind: KindRaidArray, RaidArray: &RaidArrayAttrs{Level: "1"}}
	g.addNode(a)
	g.addNode(b)
	g.addEdge(a, b, Regular)
	g.addEdge(b, a, Regular)
	require.False(t, g.acyclic())
}

func TestBuildIsDeterministic(t *testing.T) {
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{baseDisk()},
		FileSystems: []hostconfig.FileSystem{
			{ID: "fs-esp", DeviceID: strPtr("esp0"), Type: hostconfig.FsVfat, Source: hostconfig.SourceNew,
				MountPoint: &hostconfig.MountPoint{Path: "/boot/efi"}},
		},
	}}
	g1, err := Build(hc)
	require.NoError(t, err)
	g2, err := Build(hc)
	require.NoError(t, err)
	require.Equal(t, len(g1.Nodes()), len(g2.Nodes()))
	for i, n := range g1.Nodes() {
		require.Equal(t, n.ID, g2.Nodes()[i].ID)
	}
}

func strPtr(s string) *string { return &s }
