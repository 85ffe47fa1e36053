package cosi

import "fmt"

// ErrorKind is the closed sum of COSI metadata validation failures,
// one variant per versioned rule.
type ErrorKind int

const (
	V1_0DuplicateMountPoint ErrorKind = iota
	V1_1BootloaderRequired
	V1_1GrubWithSystemdBootSection
	V1_1SystemdBootEntriesRequired
	V1_1OsPackagesRequired
	V1_1OsPackageMissingReleaseOrArch
	V1_2PartitionsRequired
	V1_2DuplicatePartitionNumber
	V1_2PartitionPathNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case V1_0DuplicateMountPoint:
		return "V1_0DuplicateMountPoint"
	case V1_1BootloaderRequired:
		return "V1_1BootloaderRequired"
	case V1_1GrubWithSystemdBootSection:
		return "V1_1GrubWithSystemdBootSection"
	case V1_1SystemdBootEntriesRequired:
		return "V1_1SystemdBootEntriesRequired"
	case V1_1OsPackagesRequired:
		return "V1_1OsPackagesRequired"
	case V1_1OsPackageMissingReleaseOrArch:
		return "V1_1OsPackageMissingReleaseOrArch"
	case V1_2PartitionsRequired:
		return "V1_2PartitionsRequired"
	case V1_2DuplicatePartitionNumber:
		return "V1_2DuplicatePartitionNumber"
	case V1_2PartitionPathNotFound:
		return "V1_2PartitionPathNotFound"
	default:
		return "Unknown"
	}
}

// Error is a single validation failure, carrying the declared metadata
// version and the offending detail.
type Error struct {
	Version string
	Kind    ErrorKind
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("cosi metadata (version %s): %s", e.Version, e.Kind)
	}
	return fmt.Sprintf("cosi metadata (version %s): %s: %s", e.Version, e.Kind, e.Detail)
}

// Warning is a non-fatal validation finding: logged by the caller, never
// returned as an error.
type Warning struct {
	Kind   string
	Detail string
}

// Validate runs every per-version rule in ascending version order, and returns the first error encountered plus
// every warning accumulated along the way. It touches no I/O: Metadata
// must already be fully parsed.
func Validate(m *Metadata) ([]Warning, error) {
	var warnings []Warning

	if err := validateV1_0(m); err != nil {
		return warnings, err
	}

	if versionAtLeast(m.Version, "1.1") {
		w, err := validateV1_1(m)
		warnings = append(warnings, w...)
		if err != nil {
			return warnings, err
		}
	}

	if versionAtLeast(m.Version, "1.2") {
		w, err := validateV1_2(m)
		warnings = append(warnings, w...)
		if err != nil {
			return warnings, err
		}
	}

	return warnings, nil
}

func validateV1_0(m *Metadata) error {
	seen := map[string]bool{}
	for _, img := range m.Images {
		if seen[img.MountPoint] {
			return &Error{Version: m.Version, Kind: V1_0DuplicateMountPoint, Detail: img.MountPoint}
		}
		seen[img.MountPoint] = true
	}
	return nil
}

func validateV1_1(m *Metadata) ([]Warning, error) {
	var warnings []Warning

	if m.Bootloader == nil {
		return warnings, &Error{Version: m.Version, Kind: V1_1BootloaderRequired}
	}

	switch m.Bootloader.Type {
	case BootloaderGrub:
		if m.Bootloader.SystemdBoot != nil {
			return warnings, &Error{Version: m.Version, Kind: V1_1GrubWithSystemdBootSection}
		}
	case BootloaderSystemdBoot:
		if m.Bootloader.SystemdBoot == nil || len(m.Bootloader.SystemdBoot.Entries) == 0 {
			return warnings, &Error{Version: m.Version, Kind: V1_1SystemdBootEntriesRequired}
		}
		entries := m.Bootloader.SystemdBoot.Entries
		if entries[0].Type != EntryUkiStandalone {
			warnings = append(warnings, Warning{Kind: "SystemdBootFirstEntryNotUki", Detail: entries[0].Path})
		}
		if len(entries) > 1 {
			warnings = append(warnings, Warning{Kind: "SystemdBootMultipleEntries", Detail: fmt.Sprintf("%d entries, only the first is used", len(entries))})
		}
	default:
		warnings = append(warnings, Warning{Kind: "UnknownBootloaderType", Detail: string(m.Bootloader.Type)})
	}

	if m.OsPackages == nil {
		return warnings, &Error{Version: m.Version, Kind: V1_1OsPackagesRequired}
	}
	for _, pkg := range m.OsPackages {
		if pkg.Release == "" || pkg.Arch == "" {
			return warnings, &Error{Version: m.Version, Kind: V1_1OsPackageMissingReleaseOrArch, Detail: pkg.Name}
		}
	}

	return warnings, nil
}

func validateV1_2(m *Metadata) ([]Warning, error) {
	var warnings []Warning

	if m.Partitions == nil {
		return warnings, &Error{Version: m.Version, Kind: V1_2PartitionsRequired}
	}

	imagePaths := map[string]*Image{}
	for i := range m.Images {
		imagePaths[m.Images[i].Image.Path] = &m.Images[i]
	}

	seenNumbers := map[int]bool{}
	for _, p := range m.Partitions {
		if seenNumbers[p.Number] {
			return warnings, &Error{Version: m.Version, Kind: V1_2DuplicatePartitionNumber, Detail: fmt.Sprintf("%d", p.Number)}
		}
		seenNumbers[p.Number] = true

		if p.Path == nil {
			continue
		}
		img, ok := imagePaths[*p.Path]
		if !ok {
			return warnings, &Error{Version: m.Version, Kind: V1_2PartitionPathNotFound, Detail: *p.Path}
		}
		if p.OriginalSize < img.Image.UncompressedSize {
			warnings = append(warnings, Warning{
				Kind:   "PartitionOriginalSizeSmallerThanImage",
				Detail: fmt.Sprintf("partition %d: originalSize %d < image uncompressedSize %d", p.Number, p.OriginalSize, img.Image.UncompressedSize),
			})
		}
	}

	return warnings, nil
}

// versionAtLeast compares two "major.minor" version strings numerically;
// malformed components compare as 0, so an unparsable version still
// gets the baseline checks.
func versionAtLeast(v, floor string) bool {
	vMaj, vMin := splitVersion(v)
	fMaj, fMin := splitVersion(floor)
	if vMaj != fMaj {
		return vMaj > fMaj
	}
	return vMin >= fMin
}

func splitVersion(v string) (major, minor int) {
	var dot int
	for dot = 0; dot < len(v); dot++ {
		if v[dot] == '.' {
			break
		}
	}
	major = atoiSafe(v[:dot])
	if dot < len(v) {
		minor = atoiSafe(v[dot+1:])
	}
	return
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
