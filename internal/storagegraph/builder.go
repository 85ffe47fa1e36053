package storagegraph

import (
	"path/filepath"

	"github.com/asaskevich/govalidator"
	log "github.com/sirupsen/logrus"

	"trident/internal/hostconfig"
	"trident/internal/partitiontype"
)

// Build validates a Host Configuration's storage section against every
// structural rule in one ordered, fail-fast pass and returns the resulting
// Graph. Validation stops at the first violation rather than accumulating
// a report of every problem.
func Build(hc *hostconfig.HostConfiguration) (*Graph, error) {
	g := newGraph()

	if err := rule1PopulateNodes(g, &hc.Storage); err != nil {
		return nil, err
	}
	if err := rule2ResolveReferences(g, &hc.Storage); err != nil {
		return nil, err
	}
	if err := rule3BasicChecks(g, &hc.Storage); err != nil {
		return nil, err
	}
	if !g.acyclic() {
		return nil, newErr(CycleDetected, "", "storage graph contains a reference cycle")
	}
	if err := rule5Cardinality(g); err != nil {
		return nil, err
	}
	if err := rule6HomogeneousKind(g); err != nil {
		return nil, err
	}
	if err := rule7Sharing(g); err != nil {
		return nil, err
	}
	if err := rule8SizeHomogeneity(g); err != nil {
		return nil, err
	}
	if err := rule9TypeHomogeneityAndAllowedTypes(g); err != nil {
		return nil, err
	}
	if err := rule10VerityCongruence(g); err != nil {
		return nil, err
	}
	if err := rule11RaidLevelRestrictions(g); err != nil {
		return nil, err
	}
	if err := rule12MountpointCompatibility(g); err != nil {
		return nil, err
	}
	return g, nil
}

// rule1PopulateNodes creates a Node for every entity declared anywhere in
// the storage section and checks every host-config ID is unique across the
// whole document, regardless of entity kind: IDs are unique across every
// kind, not just within one list.
func rule1PopulateNodes(g *Graph, s *hostconfig.Storage) error {
	seen := map[string]bool{}
	checkUnique := func(id string) error {
		if seen[id] {
			return newErr(DuplicateDeviceID, id, "id reused by more than one storage entity")
		}
		seen[id] = true
		return nil
	}

	for _, d := range s.Disks {
		if err := checkUnique(d.ID); err != nil {
			return err
		}
		g.addNode(&Node{ID: d.ID, Kind: KindDisk, Disk: &DiskAttrs{Path: d.Path, PartitionTableType: d.PartitionTableType}})
		for _, p := range d.Partitions {
			if err := checkUnique(p.ID); err != nil {
				return err
			}
			t, err := partitiontype.TryFromString(p.Type)
			if err != nil {
				return newErr(InvalidPartitionType, p.ID, "%s", err)
			}
			g.addNode(&Node{ID: p.ID, Kind: KindPartition, Partition: &PartitionAttrs{Size: p.Size, Type: t.ResolveCurrent(), DiskID: d.ID}})
		}
	}
	for _, a := range s.AdoptedPartitions {
		if err := checkUnique(a.ID); err != nil {
			return err
		}
		g.addNode(&Node{ID: a.ID, Kind: KindAdoptedPartition, AdoptedPartition: &AdoptedPartitionAttrs{MatchLabel: a.MatchLabel, MatchUUID: a.MatchUUID}})
	}
	for _, r := range s.RaidArrays {
		if err := checkUnique(r.ID); err != nil {
			return err
		}
		g.addNode(&Node{ID: r.ID, Kind: KindRaidArray, RaidArray: &RaidArrayAttrs{Name: r.Name, Level: r.Level}})
	}
	for _, ab := range s.AbVolumePairs {
		if err := checkUnique(ab.ID); err != nil {
			return err
		}
		g.addNode(&Node{ID: ab.ID, Kind: KindAbVolumePair, AbVolumePair: &AbVolumePairAttrs{}})
	}
	for _, e := range s.EncryptedVolumes {
		if err := checkUnique(e.ID); err != nil {
			return err
		}
		g.addNode(&Node{ID: e.ID, Kind: KindEncryptedVolume, EncryptedVolume: &EncryptedVolumeAttrs{DeviceName: e.DeviceName}})
	}
	for _, v := range s.VerityDevices {
		if err := checkUnique(v.ID); err != nil {
			return err
		}
		g.addNode(&Node{ID: v.ID, Kind: KindVerityDevice, VerityDevice: &VerityDeviceAttrs{Name: v.Name}})
	}
	for _, f := range s.FileSystems {
		if err := checkUnique(f.ID); err != nil {
			return err
		}
		g.addNode(&Node{ID: f.ID, Kind: KindFileSystem, FileSystem: &FileSystemAttrs{Type: f.Type, Source: f.Source, MountPoint: f.MountPoint}})
	}

	return checkPerKindUniqueness(s)
}

// checkPerKindUniqueness enforces the kind-scoped uniqueness constraints
// rule 1 declares alongside ID uniqueness: Disk.path, the adopted
// partitions' match values, RaidArray.name, EncryptedVolume.deviceName
// and VerityDevice.name.
func checkPerKindUniqueness(s *hostconfig.Storage) error {
	unique := func(kind string) func(id, value string) error {
		seen := map[string]bool{}
		return func(id, value string) error {
			if seen[value] {
				return newErr(DuplicateDeviceID, id, "%s %q already used by another entity", kind, value)
			}
			seen[value] = true
			return nil
		}
	}

	diskPaths := unique("device path")
	for _, d := range s.Disks {
		if err := diskPaths(d.ID, d.Path); err != nil {
			return err
		}
	}
	labels, uuids := unique("matchLabel"), unique("matchUuid")
	for _, a := range s.AdoptedPartitions {
		if a.MatchLabel != nil {
			if err := labels(a.ID, *a.MatchLabel); err != nil {
				return err
			}
		}
		if a.MatchUUID != nil {
			if err := uuids(a.ID, *a.MatchUUID); err != nil {
				return err
			}
		}
	}
	raidNames := unique("RAID array name")
	for _, r := range s.RaidArrays {
		if err := raidNames(r.ID, r.Name); err != nil {
			return err
		}
	}
	deviceNames := unique("device name")
	for _, e := range s.EncryptedVolumes {
		if err := deviceNames(e.ID, e.DeviceName); err != nil {
			return err
		}
	}
	verityNames := unique("verity device name")
	for _, v := range s.VerityDevices {
		if err := verityNames(v.ID, v.Name); err != nil {
			return err
		}
	}
	return nil
}

// rule2ResolveReferences wires every cross-reference into a graph edge,
// rejecting references to unknown IDs, duplicate targets within a single
// referrer's own list, and references to a Kind the referrer can't point
// at.
func rule2ResolveReferences(g *Graph, s *hostconfig.Storage) error {
	resolve := func(referrerID, targetID string, kind ReferenceKind, within map[string]bool) error {
		if within[targetID] {
			return newErr(DuplicateTargetID, referrerID, "target %q referenced more than once", targetID)
		}
		within[targetID] = true

		referrer, _ := g.Lookup(referrerID)
		target, ok := g.Lookup(targetID)
		if !ok {
			return newErr(InvalidReferenceKind, referrerID, "target %q does not exist", targetID)
		}
		if allowed := compatibleKinds(referrer.Kind); allowed != nil && !allowed[target.Kind] {
			return newErr(InvalidReferenceKind, referrerID, "target %q has kind %s, not valid here", targetID, target.Kind)
		}
		g.addEdge(referrer, target, kind)
		return nil
	}

	for _, r := range s.RaidArrays {
		within := map[string]bool{}
		for _, dev := range r.Devices {
			if err := resolve(r.ID, dev, Regular, within); err != nil {
				return err
			}
		}
	}
	for _, ab := range s.AbVolumePairs {
		within := map[string]bool{}
		if err := resolve(ab.ID, ab.VolumeA, Regular, within); err != nil {
			return err
		}
		if err := resolve(ab.ID, ab.VolumeB, Regular, within); err != nil {
			return err
		}
	}
	for _, e := range s.EncryptedVolumes {
		within := map[string]bool{}
		if err := resolve(e.ID, e.DeviceID, Regular, within); err != nil {
			return err
		}
	}
	for _, v := range s.VerityDevices {
		within := map[string]bool{}
		if err := resolve(v.ID, v.DataDeviceID, VerityDataDevice, within); err != nil {
			return err
		}
		within = map[string]bool{}
		if err := resolve(v.ID, v.HashDeviceID, VerityHashDevice, within); err != nil {
			return err
		}
	}
	for _, f := range s.FileSystems {
		if f.DeviceID == nil {
			continue
		}
		within := map[string]bool{}
		if err := resolve(f.ID, *f.DeviceID, Regular, within); err != nil {
			return err
		}
	}
	return nil
}

// rule3BasicChecks enforces the per-node invariants that don't depend on
// graph shape: absolute disk paths, 4096-aligned partition sizes, at most
// one Grow partition per disk, the adopted-partition match-field
// exclusive-or, distinct A/B volumes, distinct verity data/hash devices, a
// recognized RAID level string, and the filesystem typing table.
func rule3BasicChecks(g *Graph, s *hostconfig.Storage) error {
	for _, d := range s.Disks {
		if !filepath.IsAbs(d.Path) || !govalidator.IsUnixFilePath(d.Path) {
			return newErr(BasicCheckFailed, d.ID, "disk path %q must be an absolute Unix path", d.Path)
		}
		growSeen := false
		for _, p := range d.Partitions {
			if p.Size.IsGrow() {
				if growSeen {
					return newErr(BasicCheckFailed, p.ID, "at most one grow partition per disk")
				}
				growSeen = true
				continue
			}
			if p.Size.Bytes() == 0 {
				return newErr(BasicCheckFailed, p.ID, "partition size must be non-zero")
			}
			if p.Size.Bytes()%4096 != 0 {
				return newErr(BasicCheckFailed, p.ID, "partition size %s is not a multiple of 4096", p.Size)
			}
		}
	}
	for _, a := range s.AdoptedPartitions {
		hasLabel, hasUUID := a.MatchLabel != nil, a.MatchUUID != nil
		if hasLabel == hasUUID {
			return newErr(BasicCheckFailed, a.ID, "exactly one of matchLabel and matchUuid must be set")
		}
		if hasUUID && !govalidator.IsUUID(*a.MatchUUID) {
			return newErr(BasicCheckFailed, a.ID, "matchUuid %q is not a valid UUID", *a.MatchUUID)
		}
	}
	for _, ab := range s.AbVolumePairs {
		if ab.VolumeA == ab.VolumeB {
			return newErr(BasicCheckFailed, ab.ID, "volumeA and volumeB must be distinct")
		}
	}
	for _, v := range s.VerityDevices {
		if v.DataDeviceID == v.HashDeviceID {
			return newErr(BasicCheckFailed, v.ID, "dataDeviceId and hashDeviceId must be distinct")
		}
	}
	for _, r := range s.RaidArrays {
		switch r.Level {
		case "0", "1", "5", "6", "10":
		default:
			return newErr(BasicCheckFailed, r.ID, "unrecognized RAID level %q", r.Level)
		}
	}
	for _, f := range s.FileSystems {
		hasDevice := f.DeviceID != nil
		if f.Type.ExpectsBlockDeviceID() != hasDevice {
			if hasDevice {
				return newErr(BasicCheckFailed, f.ID, "filesystem type %q does not take a device", f.Type)
			}
			return newErr(BasicCheckFailed, f.ID, "filesystem type %q requires a device", f.Type)
		}
		if f.MountPoint != nil && !f.Type.CanHaveMountPoint() {
			return newErr(BasicCheckFailed, f.ID, "filesystem type %q cannot be mounted", f.Type)
		}
		if f.MountPoint == nil && f.Type.MustHaveMountPoint() {
			return newErr(BasicCheckFailed, f.ID, "filesystem type %q requires a mount point", f.Type)
		}
		if f.MountPoint != nil && !filepath.IsAbs(f.MountPoint.Path) {
			return newErr(BasicCheckFailed, f.ID, "mount point %q must be an absolute path", f.MountPoint.Path)
		}
		if !f.Type.SourceValid(f.Source) {
			return newErr(BasicCheckFailed, f.ID, "source %q is not valid for filesystem type %q", f.Source, f.Type)
		}
	}
	return nil
}

// rule5Cardinality enforces each referrer Kind's allowed fan-out count,
// plus the verity device's fixed 1+1 special case.
func rule5Cardinality(g *Graph) error {
	for _, n := range g.Nodes() {
		if n.Kind == KindVerityDevice {
			targets := g.targetsOf(n)
			dataCount, hashCount := 0, 0
			for _, t := range targets {
				switch t.kind {
				case VerityDataDevice:
					dataCount++
				case VerityHashDevice:
					hashCount++
				}
			}
			if dataCount != 1 || hashCount != 1 {
				return newErr(InvalidTargetCount, n.ID, "verity device requires exactly one data and one hash device, got %d/%d", dataCount, hashCount)
			}
			continue
		}
		c := referrerCardinality(n.Kind)
		count := len(g.targetsOf(n))
		if !c.contains(count) {
			return newErr(InvalidTargetCount, n.ID, "%s requires between %d and %v targets, got %d", n.Kind, c.Min, maxDisplay(c.Max), count)
		}
	}
	return nil
}

func maxDisplay(max int) interface{} {
	if max == unbounded {
		return "unbounded"
	}
	return max
}

// rule6HomogeneousKind enforces that referrers requiring it (RAID arrays,
// A/B pairs, encrypted volumes, verity's own pair, filesystems) never mix
// target Kinds.
func rule6HomogeneousKind(g *Graph) error {
	for _, n := range g.Nodes() {
		if !requiresHomogeneousKind(n.Kind) {
			continue
		}
		targets := g.targetsOf(n)
		var want Kind
		for i, t := range targets {
			if i == 0 {
				want = t.node.Kind
				continue
			}
			if t.node.Kind != want {
				return newErr(ReferenceKindMismatch, n.ID, "target %q has kind %s, expected %s", t.node.ID, t.node.Kind, want)
			}
		}
	}
	return nil
}

// rule7Sharing: a device may be referenced by
// more than one referrer only when every pair of referrers sharing it is
// in each other's valid-sharing-peers set, and a FileSystem target is
// never shared at all.
func rule7Sharing(g *Graph) error {
	for _, n := range g.Nodes() {
		referrers := g.referrersOf(n)
		if len(referrers) <= 1 {
			continue
		}
		for _, r := range referrers {
			if r.Kind == KindFileSystem {
				return newErr(BasicCheckFailed, n.ID, "filesystem target %q may not be shared with another referrer", n.ID)
			}
		}
		for i := 0; i < len(referrers); i++ {
			for j := i + 1; j < len(referrers); j++ {
				a, b := referrers[i], referrers[j]
				if !validSharingPeers(a.Kind)[b.Kind] || !validSharingPeers(b.Kind)[a.Kind] {
					return newErr(BasicCheckFailed, n.ID, "target shared between incompatible referrers %q (%s) and %q (%s)", a.ID, a.Kind, b.ID, b.Kind)
				}
			}
		}
	}
	return nil
}

// rule8SizeHomogeneity enforces that RAID arrays and A/B pairs have
// transitively identical, Fixed-size leaf partitions, via a DFS from each
// such referrer.
func rule8SizeHomogeneity(g *Graph) error {
	for _, n := range g.Nodes() {
		if !requiresSizeHomogeneity(n.Kind) {
			continue
		}
		leaves := g.leafPartitions(n)
		var want *hostconfig.PartitionSize
		for _, leaf := range leaves {
			size := leaf.Partition.Size
			if !size.IsFixed() {
				return newErr(PartitionSizeNotFixed, n.ID, "leaf partition %q must have a fixed size", leaf.ID)
			}
			if want == nil {
				want = &size
				continue
			}
			if size.Bytes() != want.Bytes() {
				return newErr(PartitionSizeMismatch, n.ID, "leaf partitions have mismatched sizes (%s vs %s)", size, *want)
			}
		}
	}
	return nil
}

// rule9TypeHomogeneityAndAllowedTypes enforces leaf
// partition type agreement for RAID/A-B/encrypted/filesystem referrers,
// plus the type allow/block-lists for encrypted volumes and ESP
// filesystems.
func rule9TypeHomogeneityAndAllowedTypes(g *Graph) error {
	for _, n := range g.Nodes() {
		leaves := g.leafPartitions(n)
		if requiresTypeHomogeneity(n.Kind) {
			var want *partitiontype.Type
			for _, leaf := range leaves {
				t := leaf.Partition.Type
				if want == nil {
					want = &t
					continue
				}
				if !t.Equal(*want) {
					return newErr(PartitionTypeMismatch, n.ID, "leaf partitions have mismatched types (%s vs %s)", t, *want)
				}
			}
		}

		if n.Kind == KindEncryptedVolume {
			for _, leaf := range leaves {
				if containsType(blockedPartitionTypes(KindEncryptedVolume), leaf.Partition.Type) {
					return newErr(InvalidPartitionType, n.ID, "underlying partition %q has type %s, which may not be encrypted", leaf.ID, leaf.Partition.Type)
				}
			}
		}

		if n.Kind == KindFileSystem {
			fsType := string(n.FileSystem.Type)
			allowed, restricted := allowedPartitionTypes(n.Kind, fsType)
			if restricted {
				for _, leaf := range leaves {
					if !containsType(allowed, leaf.Partition.Type) {
						return newErr(InvalidPartitionType, n.ID, "filesystem %q requires an underlying partition type in %v, got %s", n.ID, allowed, leaf.Partition.Type)
					}
				}
			}
		}
	}
	return nil
}

// rule10VerityCongruence: a verity device's
// hash partition type must be the ToVerity() image of its data partition
// type (when both sides resolve to a single leaf partition), and each
// side's type must belong to the appropriate verity allow-list.
func rule10VerityCongruence(g *Graph) error {
	for _, n := range g.Nodes() {
		if n.Kind != KindVerityDevice {
			continue
		}
		var dataLeaf, hashLeaf *Node
		for _, t := range g.targetsOf(n) {
			leaves := g.leafPartitions(t.node)
			if len(leaves) != 1 {
				continue
			}
			switch t.kind {
			case VerityDataDevice:
				dataLeaf = leaves[0]
			case VerityHashDevice:
				hashLeaf = leaves[0]
			}
		}
		if dataLeaf != nil && !containsType(verityAllowedDataTypes(), dataLeaf.Partition.Type) {
			return newErr(InvalidPartitionType, n.ID, "verity data partition %q has disallowed type %s, valid types are %v", dataLeaf.ID, dataLeaf.Partition.Type, verityAllowedDataTypes())
		}
		if hashLeaf != nil && !containsType(verityAllowedHashTypes(), hashLeaf.Partition.Type) {
			return newErr(InvalidPartitionType, n.ID, "verity hash partition %q has disallowed type %s, valid types are %v", hashLeaf.ID, hashLeaf.Partition.Type, verityAllowedHashTypes())
		}
		if dataLeaf != nil && hashLeaf != nil {
			if want, ok := dataLeaf.Partition.Type.ToVerity(); ok {
				if !hashLeaf.Partition.Type.Equal(want) && hashLeaf.Partition.Type != partitiontype.LinuxGeneric {
					return newErr(InvalidVerityHashPartitionType, n.ID, "hash partition %q has type %s, expected %s", hashLeaf.ID, hashLeaf.Partition.Type, want)
				}
			}
		}
	}
	return nil
}

// rule11RaidLevelRestrictions: a filesystem
// mounted directly on top of a RAID array, when that filesystem's
// underlying type is ESP, requires the array to be RAID1.
func rule11RaidLevelRestrictions(g *Graph) error {
	for _, n := range g.Nodes() {
		if n.Kind != KindFileSystem || n.FileSystem.Type != hostconfig.FsVfat {
			continue
		}
		for _, t := range g.targetsOf(n) {
			if t.node.Kind != KindRaidArray {
				continue
			}
			if !raidLevelAllowedForEspFilesystem(t.node.RaidArray.Level) {
				return newErr(BasicCheckFailed, n.ID, "ESP filesystem directly on RAID array %q requires level 1, got %q", t.node.ID, t.node.RaidArray.Level)
			}
		}
	}
	return nil
}

// rule12MountpointCompatibility: a filesystem's declared mount point
// should be one the underlying leaf partition type(s) consider canonical,
// when that type has any restriction at all. Unlike every other rule in
// this file, a mismatch never fails the build, only logs a warning.
func rule12MountpointCompatibility(g *Graph) error {
	for _, n := range g.Nodes() {
		if n.Kind != KindFileSystem || n.FileSystem.MountPoint == nil {
			continue
		}
		for _, leaf := range g.leafPartitions(n) {
			valid := leaf.Partition.Type.ValidMountpoints()
			if valid == nil {
				continue
			}
			ok := false
			for _, mp := range valid {
				if mp == n.FileSystem.MountPoint.Path {
					ok = true
					break
				}
			}
			if !ok {
				log.WithFields(log.Fields{
					"filesystem": n.ID,
					"mountPoint": n.FileSystem.MountPoint.Path,
					"partition":  leaf.ID,
					"type":       leaf.Partition.Type.String(),
					"expected":   valid,
				}).Warn("mount point is not canonical for the underlying partition type")
			}
		}
	}
	return nil
}
