package storagegraph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"trident/internal/hostconfig"
)

func TestBuildDiskPathMustBeAbsolute(t *testing.T) {
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{{ID: "d0", Path: "dev/sda", PartitionTableType: hostconfig.PartitionTableGpt}},
	}}
	_, err := Build(hc)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, BasicCheckFailed, be.Kind)
	require.Equal(t, "d0", be.NodeID)
}

func TestBuildDuplicateDiskPath(t *testing.T) {
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{
			{ID: "d0", Path: "/dev/sda", PartitionTableType: hostconfig.PartitionTableGpt},
			{ID: "d1", Path: "/dev/sda", PartitionTableType: hostconfig.PartitionTableGpt},
		},
	}}
	_, err := Build(hc)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, DuplicateDeviceID, be.Kind)
	require.Equal(t, "d1", be.NodeID)
}

func TestBuildPartitionSizeNotAligned(t *testing.T) {
	disk := hostconfig.Disk{
		ID: "d0", Path: "/dev/sda", PartitionTableType: hostconfig.PartitionTableGpt,
		Partitions: []hostconfig.Partition{{ID: "p0", Type: "esp", Size: hostconfig.Fixed(4095)}},
	}
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{Disks: []hostconfig.Disk{disk}}}
	_, err := Build(hc)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, BasicCheckFailed, be.Kind)
	require.Equal(t, "p0", be.NodeID)
}

func TestBuildAtMostOneGrowPerDisk(t *testing.T) {
	disk := hostconfig.Disk{
		ID: "d0", Path: "/dev/sda", PartitionTableType: hostconfig.PartitionTableGpt,
		Partitions: []hostconfig.Partition{
			{ID: "p0", Type: "linux-generic", Size: hostconfig.Grow},
			{ID: "p1", Type: "linux-generic", Size: hostconfig.Grow},
		},
	}
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{Disks: []hostconfig.Disk{disk}}}
	_, err := Build(hc)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, BasicCheckFailed, be.Kind)
	require.Equal(t, "p1", be.NodeID)
}

func TestBuildAdoptedPartitionMatchExclusiveOr(t *testing.T) {
	label, uid := "boot", "0b0b0b0b-0b0b-0b0b-0b0b-0b0b0b0b0b0b"

	both := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		AdoptedPartitions: []hostconfig.AdoptedPartition{{ID: "a0", MatchLabel: &label, MatchUUID: &uid}},
	}}
	_, err := Build(both)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, BasicCheckFailed, be.Kind)

	neither := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		AdoptedPartitions: []hostconfig.AdoptedPartition{{ID: "a0"}},
	}}
	_, err = Build(neither)
	require.ErrorAs(t, err, &be)
	require.Equal(t, BasicCheckFailed, be.Kind)
}

func TestBuildAdoptedPartitionMatchUuidMustParse(t *testing.T) {
	bad := "not-a-uuid"
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		AdoptedPartitions: []hostconfig.AdoptedPartition{{ID: "a0", MatchUUID: &bad}},
	}}
	_, err := Build(hc)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, BasicCheckFailed, be.Kind)
}

func TestBuildDuplicateAdoptedMatchValues(t *testing.T) {
	label := "boot"
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		AdoptedPartitions: []hostconfig.AdoptedPartition{
			{ID: "a0", MatchLabel: &label},
			{ID: "a1", MatchLabel: &label},
		},
	}}
	_, err := Build(hc)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, DuplicateDeviceID, be.Kind)
	require.Equal(t, "a1", be.NodeID)
}

func TestBuildDuplicateRaidName(t *testing.T) {
	disk := baseDisk()
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{disk},
		RaidArrays: []hostconfig.RaidArray{
			{ID: "r0", Name: "md0", Level: "1", Devices: []string{"root0", "root1"}},
			{ID: "r1", Name: "md0", Level: "1", Devices: []string{"esp0", "roothash0"}},
		},
	}}
	_, err := Build(hc)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, DuplicateDeviceID, be.Kind)
	require.Equal(t, "r1", be.NodeID)
}

func TestBuildFilesystemTypingChecks(t *testing.T) {
	// tmpfs takes no device but must be mounted.
	noMount := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		FileSystems: []hostconfig.FileSystem{
			{ID: "fs0", Type: hostconfig.FsTmpfs, Source: hostconfig.SourceNew},
		},
	}}
	_, err := Build(noMount)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, BasicCheckFailed, be.Kind)

	// ext4 requires a device.
	noDevice := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		FileSystems: []hostconfig.FileSystem{
			{ID: "fs0", Type: hostconfig.FsExt4, Source: hostconfig.SourceNew,
				MountPoint: &hostconfig.MountPoint{Path: "/"}},
		},
	}}
	_, err = Build(noDevice)
	require.ErrorAs(t, err, &be)
	require.Equal(t, BasicCheckFailed, be.Kind)

	// auto cannot describe a freshly created filesystem.
	badSource := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{baseDisk()},
		FileSystems: []hostconfig.FileSystem{
			{ID: "fs0", DeviceID: strPtr("root0"), Type: hostconfig.FsAuto, Source: hostconfig.SourceNew,
				MountPoint: &hostconfig.MountPoint{Path: "/"}},
		},
	}}
	_, err = Build(badSource)
	require.ErrorAs(t, err, &be)
	require.Equal(t, BasicCheckFailed, be.Kind)
}

func TestRenderShowsDiskDownTree(t *testing.T) {
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{baseDisk()},
		FileSystems: []hostconfig.FileSystem{
			{ID: "fs-esp", DeviceID: strPtr("esp0"), Type: hostconfig.FsVfat, Source: hostconfig.SourceNew,
				MountPoint: &hostconfig.MountPoint{Path: "/boot/efi"}},
		},
	}}
	g, err := Build(hc)
	require.NoError(t, err)

	out, err := g.Render()
	require.NoError(t, err)
	require.Contains(t, out, "disk0 (disk, /dev/sda)")
	require.Contains(t, out, "fs-esp")
}

func TestFstabOrdersShallowMountsFirst(t *testing.T) {
	disk := baseDisk()
	hc := &hostconfig.HostConfiguration{Storage: hostconfig.Storage{
		Disks: []hostconfig.Disk{disk},
		FileSystems: []hostconfig.FileSystem{
			{ID: "fs-esp", DeviceID: strPtr("esp0"), Type: hostconfig.FsVfat, Source: hostconfig.SourceNew,
				MountPoint: &hostconfig.MountPoint{Path: "/boot/efi"}},
			{ID: "fs-root", DeviceID: strPtr("root0"), Type: hostconfig.FsExt4, Source: hostconfig.SourceNew,
				MountPoint: &hostconfig.MountPoint{Path: "/"}},
		},
	}}
	g, err := Build(hc)
	require.NoError(t, err)

	entries := g.Fstab(func(n *Node) string { return "/dev/disk/by-partlabel/" + n.ID })
	require.Len(t, entries, 2)
	require.Equal(t, "/", entries[0].MountPoint)
	require.Equal(t, "/boot/efi", entries[1].MountPoint)
	require.True(t, strings.HasPrefix(entries[0].Source, "/dev/disk/by-partlabel/"))
}
