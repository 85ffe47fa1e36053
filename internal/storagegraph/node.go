// Package storagegraph implements the typed DAG of block-device and
// filesystem nodes, and the builder that enforces every structural rule
// of a host configuration's storage section in a single ordered pass.
// The DAG representation and the topological cycle check sit on
// gonum.org/v1/gonum/graph.
package storagegraph

import (
	"gonum.org/v1/gonum/graph"

	"trident/internal/hostconfig"
	"trident/internal/partitiontype"
)

// Kind identifies the concrete node type.
type Kind int

const (
	KindDisk Kind = iota
	KindPartition
	KindAdoptedPartition
	KindRaidArray
	KindAbVolumePair
	KindEncryptedVolume
	KindVerityDevice
	KindFileSystem
)

func (k Kind) String() string {
	switch k {
	case KindDisk:
		return "Disk"
	case KindPartition:
		return "Partition"
	case KindAdoptedPartition:
		return "AdoptedPartition"
	case KindRaidArray:
		return "RaidArray"
	case KindAbVolumePair:
		return "AbVolumePair"
	case KindEncryptedVolume:
		return "EncryptedVolume"
	case KindVerityDevice:
		return "VerityDevice"
	case KindFileSystem:
		return "FileSystem"
	default:
		return "Unknown"
	}
}

// Contents records the result of a provisioning action taken against a
// node (e.g. "mkfs succeeded"), set by higher servicing layers once the
// graph has been built. This field is written atomically per node as
// parallel per-device work completes; the graph itself stays otherwise
// immutable after Build.
type Contents struct {
	Provisioned bool
	Detail      string
}

// Node is one vertex of the storage graph. Exactly one of the kind-typed
// payload fields below is non-nil, selected by Kind. Nodes hold no
// pointers to other nodes; edges live in the Graph's separate edge list,
// keyed by the node's graph-internal index.
type Node struct {
	gid  int64
	ID   string
	Kind Kind

	Disk             *DiskAttrs
	Partition        *PartitionAttrs
	AdoptedPartition *AdoptedPartitionAttrs
	RaidArray        *RaidArrayAttrs
	AbVolumePair     *AbVolumePairAttrs
	EncryptedVolume  *EncryptedVolumeAttrs
	VerityDevice     *VerityDeviceAttrs
	FileSystem       *FileSystemAttrs

	Contents *Contents
}

type DiskAttrs struct {
	Path               string
	PartitionTableType hostconfig.PartitionTableType
}

type PartitionAttrs struct {
	Size     hostconfig.PartitionSize
	Type     partitiontype.Type
	DiskID   string
}

type AdoptedPartitionAttrs struct {
	MatchLabel *string
	MatchUUID  *string
}

type RaidArrayAttrs struct {
	Name  string
	Level string
}

type AbVolumePairAttrs struct{}

type EncryptedVolumeAttrs struct {
	DeviceName string
}

type VerityDeviceAttrs struct {
	Name string
}

type FileSystemAttrs struct {
	Type       hostconfig.FileSystemType
	Source     hostconfig.FileSystemSource
	MountPoint *hostconfig.MountPoint
}

// ReferenceKind distinguishes a plain device reference from the two
// structurally special verity edges.
type ReferenceKind int

const (
	Regular ReferenceKind = iota
	VerityDataDevice
	VerityHashDevice
)

func (k ReferenceKind) String() string {
	switch k {
	case VerityDataDevice:
		return "VerityDataDevice"
	case VerityHashDevice:
		return "VerityHashDevice"
	default:
		return "Regular"
	}
}

// passesThroughAttrs reports whether homogeneity rules should look
// through this edge to the target's own attributes (true for regular
// edges and the verity data-side edge) or stop at this edge without
// descending further for attribute-propagation purposes (the verity
// hash-side edge never passes partition attributes up, so
// filesystem-level rules only ever see the data side's type).
func (k ReferenceKind) passesThroughAttrs() bool {
	return k != VerityHashDevice
}

// Edge is a directed reference from a referrer node to a target node,
// satisfying gonum/graph.Edge.
type Edge struct {
	F, T graph.Node
	Kind ReferenceKind
}

func (e Edge) From() graph.Node         { return e.F }
func (e Edge) To() graph.Node           { return e.T }
func (e Edge) ReversedEdge() graph.Edge { return Edge{F: e.T, T: e.F, Kind: e.Kind} }
