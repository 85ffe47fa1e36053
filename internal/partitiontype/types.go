// Package partitiontype implements the closed catalogue of discoverable
// partition types: bidirectional UUID <-> name mapping,
// architecture-alias resolution, and verity-type derivation.
package partitiontype

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/xrash/smetrics"
)

// Type is a discoverable partition type. The zero value is not a valid
// Type; use the Partition* constants or FromUUID/TryFromString.
type Type struct {
	kind kind
	// unknown is populated only when kind == kindUnknown.
	unknown uuid.UUID
}

type kind int

const (
	kindInvalid kind = iota

	// Architecture-neutral aliases. These only ever appear on the input
	// surface; Resolve replaces them with a concrete arch variant.
	kindRoot
	kindRootVerity
	kindRootVeritySig
	kindUsr
	kindUsrVerity
	kindUsrVeritySig

	// Architecture-independent concrete types.
	kindEsp
	kindXbootldr
	kindSwap
	kindHome
	kindSrv
	kindVar
	kindTmp
	kindLinuxGeneric

	// amd64 concrete variants.
	kindRootAmd64
	kindRootAmd64Verity
	kindRootAmd64VeritySig
	kindUsrAmd64
	kindUsrAmd64Verity
	kindUsrAmd64VeritySig

	// arm64 concrete variants.
	kindRootArm64
	kindRootArm64Verity
	kindRootArm64VeritySig
	kindUsrArm64
	kindUsrArm64Verity
	kindUsrArm64VeritySig

	kindUnknown
)

var (
	Esp          = Type{kind: kindEsp}
	Xbootldr     = Type{kind: kindXbootldr}
	Swap         = Type{kind: kindSwap}
	Home         = Type{kind: kindHome}
	Srv          = Type{kind: kindSrv}
	Var          = Type{kind: kindVar}
	Tmp          = Type{kind: kindTmp}
	LinuxGeneric = Type{kind: kindLinuxGeneric}

	// Architecture-neutral aliases. Must be resolved before ToUUID is called.
	Root          = Type{kind: kindRoot}
	RootVerity    = Type{kind: kindRootVerity}
	RootVeritySig = Type{kind: kindRootVeritySig}
	Usr           = Type{kind: kindUsr}
	UsrVerity     = Type{kind: kindUsrVerity}
	UsrVeritySig  = Type{kind: kindUsrVeritySig}

	RootAmd64          = Type{kind: kindRootAmd64}
	RootAmd64Verity    = Type{kind: kindRootAmd64Verity}
	RootAmd64VeritySig = Type{kind: kindRootAmd64VeritySig}
	UsrAmd64           = Type{kind: kindUsrAmd64}
	UsrAmd64Verity     = Type{kind: kindUsrAmd64Verity}
	UsrAmd64VeritySig  = Type{kind: kindUsrAmd64VeritySig}

	RootArm64          = Type{kind: kindRootArm64}
	RootArm64Verity    = Type{kind: kindRootArm64Verity}
	RootArm64VeritySig = Type{kind: kindRootArm64VeritySig}
	UsrArm64           = Type{kind: kindUsrArm64}
	UsrArm64Verity     = Type{kind: kindUsrArm64Verity}
	UsrArm64VeritySig  = Type{kind: kindUsrArm64VeritySig}
)

// Unknown wraps a GUID that does not match any entry in the catalogue.
func Unknown(u uuid.UUID) Type {
	return Type{kind: kindUnknown, unknown: u}
}

type tableEntry struct {
	kind kind
	name string
	uuid uuid.UUID
}

// table is the closed mapping between kind, kebab-case name, and GUID for
// every concrete (non-alias, non-Unknown) type.
var table = []tableEntry{
	{kindEsp, "esp", uuid.MustParse("c12a7328-f81f-11d2-ba4b-00a0c93ec93b")},
	{kindXbootldr, "xbootldr", uuid.MustParse("bc13c2ff-59e6-4262-a352-b275fd6f7172")},
	{kindSwap, "swap", uuid.MustParse("0657fd6d-a4ab-43c4-84e5-0933c84b4f4f")},
	{kindHome, "home", uuid.MustParse("933ac7e1-2eb4-4f13-b844-0e14e2aef915")},
	{kindSrv, "srv", uuid.MustParse("3b8f8425-20e0-4f3b-907f-1a25a76f98e8")},
	{kindVar, "var", uuid.MustParse("4d21b016-b534-45c2-a9fb-5c16e091fd2d")},
	{kindTmp, "tmp", uuid.MustParse("7ec6f557-3bc5-4aca-b293-16ef5df639d1")},
	{kindLinuxGeneric, "linux-generic", uuid.MustParse("0fc63daf-8483-4772-8e79-3d69d8477de4")},

	{kindRootAmd64, "root-amd64", uuid.MustParse("4f68bce3-e8cd-4db1-96e7-fbcaf984b709")},
	{kindRootAmd64Verity, "root-amd64-verity", uuid.MustParse("2c7357ed-ebd2-46d9-aec1-23d437ec2bf5")},
	{kindRootAmd64VeritySig, "root-amd64-verity-sig", uuid.MustParse("41092b05-9fc8-4523-994f-2def0408b176")},
	{kindUsrAmd64, "usr-amd64", uuid.MustParse("8484680c-9521-48c6-9c11-b0720656f69e")},
	{kindUsrAmd64Verity, "usr-amd64-verity", uuid.MustParse("77ff5f63-e7b6-4633-acf4-1565b864c0e6")},
	{kindUsrAmd64VeritySig, "usr-amd64-verity-sig", uuid.MustParse("e7bb33fb-06cf-4e81-8273-e543b413e2e2")},

	{kindRootArm64, "root-arm64", uuid.MustParse("b921b045-1df0-41c3-af44-4c6f280d3fae")},
	{kindRootArm64Verity, "root-arm64-verity", uuid.MustParse("df3300ce-d69f-4c92-978c-9bfb0f38d820")},
	{kindRootArm64VeritySig, "root-arm64-verity-sig", uuid.MustParse("6db69de6-29f4-4758-a7a5-962190f00ce3")},
	{kindUsrArm64, "usr-arm64", uuid.MustParse("b0e01050-ee5f-4390-949a-9101b17104e9")},
	{kindUsrArm64Verity, "usr-arm64-verity", uuid.MustParse("6e11a4e7-fbca-4ded-b9e9-e1a512bb664e")},
	{kindUsrArm64VeritySig, "usr-arm64-verity-sig", uuid.MustParse("c23ce4ff-44bd-4b00-b2d4-b41b3419e02a")},
}

// aliasNames covers the architecture-neutral aliases, which resolve rather
// than appear in the UUID table directly.
var aliasNames = map[kind]string{
	kindRoot:          "root",
	kindRootVerity:    "root-verity",
	kindRootVeritySig: "root-verity-sig",
	kindUsr:           "usr",
	kindUsrVerity:     "usr-verity",
	kindUsrVeritySig:  "usr-verity-sig",
}

// aliasResolution maps each alias to its {amd64: concrete, arm64: concrete}
// pair.
var aliasResolution = map[kind]struct{ amd64, arm64 kind }{
	kindRoot:          {kindRootAmd64, kindRootArm64},
	kindRootVerity:    {kindRootAmd64Verity, kindRootArm64Verity},
	kindRootVeritySig: {kindRootAmd64VeritySig, kindRootArm64VeritySig},
	kindUsr:           {kindUsrAmd64, kindUsrArm64},
	kindUsrVerity:     {kindUsrAmd64Verity, kindUsrArm64Verity},
	kindUsrVeritySig:  {kindUsrAmd64VeritySig, kindUsrArm64VeritySig},
}

// verityMap declares the Root -> RootVerity / Usr -> UsrVerity congruence,
// expressed on resolved (arch-specific) kinds since ToVerity is meant to be
// called after Resolve.
var verityMap = map[kind]kind{
	kindRootAmd64: kindRootAmd64Verity,
	kindUsrAmd64:  kindUsrAmd64Verity,
	kindRootArm64: kindRootArm64Verity,
	kindUsrArm64:  kindUsrArm64Verity,
	// Also allow calling ToVerity on an unresolved alias directly.
	kindRoot: kindRootVerity,
	kindUsr:  kindUsrVerity,
}

func isAlias(k kind) bool {
	_, ok := aliasResolution[k]
	return ok
}

func lookupByKind(k kind) (tableEntry, bool) {
	for _, e := range table {
		if e.kind == k {
			return e, true
		}
	}
	return tableEntry{}, false
}

// CurrentArch returns "amd64" or "arm64" for the architectures this
// catalogue knows about, defaulting to amd64 for anything else (the
// builder only ever runs on amd64/arm64 hosts in practice).
func CurrentArch() string {
	switch runtime.GOARCH {
	case "arm64":
		return "arm64"
	default:
		return "amd64"
	}
}

// Resolve replaces an architecture-neutral alias with the concrete variant
// for the given architecture ("amd64" or "arm64"). Concrete variants and
// Unknown pass through unchanged.
func (t Type) Resolve(arch string) Type {
	res, ok := aliasResolution[t.kind]
	if !ok {
		return t
	}
	if arch == "arm64" {
		return Type{kind: res.arm64}
	}
	return Type{kind: res.amd64}
}

// ResolveCurrent resolves against CurrentArch().
func (t Type) ResolveCurrent() Type {
	return t.Resolve(CurrentArch())
}

// IsAlias reports whether t is an architecture-neutral alias that must be
// resolved before ToUUID can be called.
func (t Type) IsAlias() bool {
	return isAlias(t.kind)
}

// IsUnknown reports whether t wraps a GUID absent from the catalogue.
func (t Type) IsUnknown() bool {
	return t.kind == kindUnknown
}

// ToUUID returns the GUID for a resolved (non-alias) type. It panics if
// called on an unresolved alias -- callers must Resolve first; an alias
// reaching here is an internal invariant violation.
func (t Type) ToUUID() uuid.UUID {
	if t.kind == kindUnknown {
		return t.unknown
	}
	if isAlias(t.kind) {
		panic(fmt.Sprintf("partitiontype: ToUUID called on unresolved alias %q", t.String()))
	}
	e, ok := lookupByKind(t.kind)
	if !ok {
		panic(fmt.Sprintf("partitiontype: no table entry for kind %d", t.kind))
	}
	return e.uuid
}

// FromUUID maps a GUID to its catalogue variant, or to Unknown(u) if the
// GUID matches no entry.
func FromUUID(u uuid.UUID) Type {
	for _, e := range table {
		if e.uuid == u {
			return Type{kind: e.kind}
		}
	}
	return Unknown(u)
}

// String returns the canonical kebab-case name, or the lowercase GUID
// string for Unknown.
func (t Type) String() string {
	if t.kind == kindUnknown {
		return t.unknown.String()
	}
	if name, ok := aliasNames[t.kind]; ok {
		return name
	}
	if e, ok := lookupByKind(t.kind); ok {
		return e.name
	}
	return "invalid"
}

// TryFromString parses a canonical kebab-case name (or a raw GUID string)
// back into a Type. Unrecognized names that aren't valid GUIDs return an
// error that suggests the closest known name by Jaro-Winkler similarity,
// to help catch config-authoring typos.
func TryFromString(s string) (Type, error) {
	for k, name := range aliasNames {
		if name == s {
			return Type{kind: k}, nil
		}
	}
	for _, e := range table {
		if e.name == s {
			return Type{kind: e.kind}, nil
		}
	}
	if u, err := uuid.Parse(s); err == nil {
		return FromUUID(u), nil
	}
	return Type{}, fmt.Errorf("partitiontype: unrecognized partition type %q (did you mean %q?)", s, suggest(s))
}

// allKnownNames returns every name TryFromString accepts, for suggestion
// purposes and for documentation/CLI enumeration.
func allKnownNames() []string {
	names := make([]string, 0, len(table)+len(aliasNames))
	for _, e := range table {
		names = append(names, e.name)
	}
	for _, n := range aliasNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// suggest returns the catalogue name with the highest Jaro-Winkler
// similarity to s.
func suggest(s string) string {
	best := ""
	bestScore := -1.0
	for _, name := range allKnownNames() {
		score := smetrics.JaroWinkler(strings.ToLower(s), name, 0.7, 4)
		if score > bestScore {
			bestScore = score
			best = name
		}
	}
	return best
}

// ToVerity maps Root -> RootVerity and Usr -> UsrVerity (in either alias
// or architecture-resolved form); every other type has no corresponding
// verity hash partition type, so ok is false.
func (t Type) ToVerity() (Type, bool) {
	k, ok := verityMap[t.kind]
	if !ok {
		return Type{}, false
	}
	return Type{kind: k}, true
}

// Equal reports structural equality, which for Unknown also compares the
// wrapped GUID.
func (t Type) Equal(o Type) bool {
	if t.kind != o.kind {
		return false
	}
	if t.kind == kindUnknown {
		return t.unknown == o.unknown
	}
	return true
}

// ValidMountpoints returns the set of mount paths considered canonical for
// t (used by storage graph rule 12), or nil if t has no specific
// mountpoint expectation (i.e. any mountpoint is acceptable, as for
// LinuxGeneric). A non-nil empty slice means "must not be mounted".
func (t Type) ValidMountpoints() []string {
	switch t.kind {
	case kindEsp:
		return []string{"/boot/efi", "/efi"}
	case kindXbootldr:
		return []string{"/boot"}
	case kindHome:
		return []string{"/home"}
	case kindSrv:
		return []string{"/srv"}
	case kindVar:
		return []string{"/var"}
	case kindTmp:
		return []string{"/tmp"}
	case kindRootAmd64, kindRootArm64, kindRoot:
		return []string{"/"}
	case kindUsrAmd64, kindUsrArm64, kindUsr:
		return []string{"/usr"}
	default:
		return nil
	}
}
