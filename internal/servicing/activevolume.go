package servicing

import (
	"fmt"

	"github.com/moby/sys/mountinfo"

	"trident/internal/tridenterr"
)

// ActiveVolume resolves which side of an A/B volume pair is currently
// mounted at mountPoint, by comparing the live mount table's source
// device against each side's resolved device path.
func ActiveVolume(mountPoint, volumeAPath, volumeBPath string) (string, error) {
	mounts, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter(mountPoint))
	if err != nil {
		return "", tridenterr.Wrapf(tridenterr.Management, err, "failed to read mount table for %q", mountPoint)
	}
	if len(mounts) == 0 {
		return "", tridenterr.New(tridenterr.Management, fmt.Sprintf("no active mount found at %q", mountPoint))
	}

	source := mounts[0].Source
	switch source {
	case volumeAPath:
		return "volume-a", nil
	case volumeBPath:
		return "volume-b", nil
	default:
		return "", tridenterr.New(tridenterr.Management, fmt.Sprintf("mounted device %q at %q matches neither A/B volume path", source, mountPoint))
	}
}
