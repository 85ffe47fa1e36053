package storagegraph

import "trident/internal/partitiontype"

// cardinality expresses an inclusive [Min, Max] bound; Max == -1 means
// unbounded.
type cardinality struct {
	Min, Max int
}

const unbounded = -1

func (c cardinality) contains(n int) bool {
	if n < c.Min {
		return false
	}
	return c.Max == unbounded || n <= c.Max
}

// compatibleKinds returns the set of target Kinds a referrer of kind k is
// allowed to point at (rule 4).
func compatibleKinds(k Kind) map[Kind]bool {
	deviceLike := map[Kind]bool{
		KindPartition:        true,
		KindAdoptedPartition: true,
	}
	switch k {
	case KindRaidArray:
		return deviceLike
	case KindAbVolumePair:
		return map[Kind]bool{
			KindPartition:        true,
			KindAdoptedPartition: true,
			KindRaidArray:        true,
		}
	case KindEncryptedVolume:
		return map[Kind]bool{
			KindPartition:        true,
			KindAdoptedPartition: true,
			KindRaidArray:        true,
			KindAbVolumePair:     true,
		}
	case KindVerityDevice:
		return map[Kind]bool{
			KindPartition:        true,
			KindAdoptedPartition: true,
			KindRaidArray:        true,
			KindAbVolumePair:     true,
		}
	case KindFileSystem:
		return map[Kind]bool{
			KindPartition:        true,
			KindAdoptedPartition: true,
			KindRaidArray:        true,
			KindAbVolumePair:     true,
			KindEncryptedVolume:  true,
			KindVerityDevice:     true,
		}
	default:
		return nil
	}
}

// referrerCardinality returns the allowed fan-out count for a referrer of
// kind k (rule 5). VerityDevice's two special edges are each individually
// cardinality-1 and are checked separately in the builder.
func referrerCardinality(k Kind) cardinality {
	switch k {
	case KindRaidArray:
		return cardinality{Min: 2, Max: unbounded}
	case KindAbVolumePair:
		return cardinality{Min: 2, Max: 2}
	case KindEncryptedVolume:
		return cardinality{Min: 1, Max: 1}
	case KindFileSystem:
		return cardinality{Min: 0, Max: 1}
	default:
		return cardinality{Min: 0, Max: unbounded}
	}
}

// requiresHomogeneousKind reports whether all of a referrer's targets
// must be the same Kind (rule 6).
func requiresHomogeneousKind(k Kind) bool {
	switch k {
	case KindRaidArray, KindAbVolumePair, KindEncryptedVolume, KindVerityDevice, KindFileSystem:
		return true
	default:
		return false
	}
}

// validSharingPeers returns the set of other referrer Kinds that may
// share a target with k (rule 7); the relation must be symmetric for a
// share to be valid. Filesystems are handled specially in the builder:
// they never share a target with another filesystem regardless of this
// table.
func validSharingPeers(k Kind) map[Kind]bool {
	switch k {
	case KindEncryptedVolume, KindVerityDevice:
		// A single partition may simultaneously back an encrypted volume
		// and be referenced by a verity device only in the (rare, but
		// structurally valid) case of layered verity-over-encryption;
		// treat these two referrer kinds as compatible sharers.
		return map[Kind]bool{KindEncryptedVolume: true, KindVerityDevice: true}
	default:
		return map[Kind]bool{}
	}
}

// requiresSizeHomogeneity reports whether the transitive leaf-partition
// sizes under a referrer of kind k must all agree, and must all be Fixed
// (rule 8).
func requiresSizeHomogeneity(k Kind) bool {
	switch k {
	case KindRaidArray, KindAbVolumePair:
		return true
	default:
		return false
	}
}

// requiresTypeHomogeneity reports whether the transitive leaf-partition
// types under a referrer of kind k must all agree (rule 9).
func requiresTypeHomogeneity(k Kind) bool {
	switch k {
	case KindRaidArray, KindAbVolumePair, KindEncryptedVolume, KindFileSystem:
		return true
	default:
		return false
	}
}

// allowedPartitionTypes returns the set of leaf partition types valid
// under a referrer, or nil for "no restriction beyond what homogeneity
// already implies" (rule 9). fsType is only consulted for KindFileSystem.
func allowedPartitionTypes(k Kind, fsType string) (allowed []partitiontype.Type, restricted bool) {
	switch k {
	case KindEncryptedVolume:
		// "underlying partition type not in {ESP, Root, RootVerity, Home}" --
		// expressed as a blocklist rather than an allowlist since any other
		// type is acceptable.
		return nil, false
	case KindFileSystem:
		if fsType == "vfat" {
			return []partitiontype.Type{partitiontype.Esp}, true
		}
		return nil, false
	default:
		return nil, false
	}
}

// blockedPartitionTypes returns types that are never valid leaves under a
// referrer of kind k, complementing allowedPartitionTypes' allowlist form.
func blockedPartitionTypes(k Kind) []partitiontype.Type {
	switch k {
	case KindEncryptedVolume:
		return []partitiontype.Type{
			partitiontype.Esp,
			partitiontype.RootAmd64, partitiontype.RootArm64,
			partitiontype.RootAmd64Verity, partitiontype.RootArm64Verity,
			partitiontype.Home,
		}
	default:
		return nil
	}
}

// verityAllowedDataTypes / verityAllowedHashTypes implement rule 9's
// verity-specific allowlists: any verity-capable (Root or Usr) partition
// type for either side, plus LinuxGeneric as a permissive escape hatch.
// Rule 10 separately enforces that a non-LinuxGeneric hash side actually
// matches the data side's to_verity() image, so a Usr hash paired with a
// Root data side is still rejected -- just with the more specific
// InvalidVerityHashPartitionType rather than this allowlist's
// InvalidPartitionType.
func verityAllowedDataTypes() []partitiontype.Type {
	return []partitiontype.Type{
		partitiontype.RootAmd64, partitiontype.RootArm64,
		partitiontype.UsrAmd64, partitiontype.UsrArm64,
		partitiontype.LinuxGeneric,
	}
}

func verityAllowedHashTypes() []partitiontype.Type {
	return []partitiontype.Type{
		partitiontype.RootAmd64Verity, partitiontype.RootArm64Verity,
		partitiontype.UsrAmd64Verity, partitiontype.UsrArm64Verity,
		partitiontype.LinuxGeneric,
	}
}

func containsType(set []partitiontype.Type, t partitiontype.Type) bool {
	for _, s := range set {
		if s.Equal(t) {
			return true
		}
	}
	return false
}

// raidLevelAllowedForEspFilesystem implements rule 11: an ESP filesystem sitting directly
// on a RAID array requires RAID1.
func raidLevelAllowedForEspFilesystem(level string) bool {
	return level == "1" || level == "raid1"
}
