package storagegraph

import "fmt"

// BuildError is the closed sum of everything the builder can fail with.
// Every variant except CycleDetected carries the offending node
// identifier so callers can point the user at the exact entity; a cycle
// names no single node, so its NodeID is empty.
type BuildError struct {
	Kind   BuildErrorKind
	NodeID string
	// Detail carries variant-specific context (the other node's id for
	// mismatches, the expected/actual values, etc.) for error messages;
	// it does not change Kind/NodeID-based equality checks in tests.
	Detail string
}

type BuildErrorKind int

const (
	DuplicateDeviceID BuildErrorKind = iota
	DuplicateTargetID
	InvalidReferenceKind
	InvalidTargetCount
	ReferenceKindMismatch
	PartitionSizeNotFixed
	PartitionSizeMismatch
	PartitionTypeMismatch
	PartitionTypeMismatchSpecial
	InvalidPartitionType
	InvalidVerityHashPartitionType
	BasicCheckFailed
	CycleDetected
	InternalError
)

func (k BuildErrorKind) String() string {
	switch k {
	case DuplicateDeviceID:
		return "DuplicateDeviceId"
	case DuplicateTargetID:
		return "DuplicateTargetId"
	case InvalidReferenceKind:
		return "InvalidReferenceKind"
	case InvalidTargetCount:
		return "InvalidTargetCount"
	case ReferenceKindMismatch:
		return "ReferenceKindMismatch"
	case PartitionSizeNotFixed:
		return "PartitionSizeNotFixed"
	case PartitionSizeMismatch:
		return "PartitionSizeMismatch"
	case PartitionTypeMismatch:
		return "PartitionTypeMismatch"
	case PartitionTypeMismatchSpecial:
		return "PartitionTypeMismatchSpecial"
	case InvalidPartitionType:
		return "InvalidPartitionType"
	case InvalidVerityHashPartitionType:
		return "InvalidVerityHashPartitionType"
	case BasicCheckFailed:
		return "BasicCheckFailed"
	case CycleDetected:
		return "CycleDetected"
	case InternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

func (e *BuildError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("storage graph: %s on node %q", e.Kind, e.NodeID)
	}
	return fmt.Sprintf("storage graph: %s on node %q: %s", e.Kind, e.NodeID, e.Detail)
}

func newErr(kind BuildErrorKind, nodeID string, detailFmt string, args ...interface{}) *BuildError {
	return &BuildError{Kind: kind, NodeID: nodeID, Detail: fmt.Sprintf(detailFmt, args...)}
}
