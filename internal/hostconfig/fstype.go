package hostconfig

// ExpectsBlockDeviceID reports whether a filesystem of this type sits on
// a block device (and therefore must carry a deviceId). Tmpfs and overlay
// are purely virtual; everything else is device-backed.
func (t FileSystemType) ExpectsBlockDeviceID() bool {
	switch t {
	case FsTmpfs, FsOverlay:
		return false
	default:
		return true
	}
}

// CanHaveMountPoint reports whether a filesystem of this type may declare
// a mount point at all. Swap is the only type that never mounts.
func (t FileSystemType) CanHaveMountPoint() bool {
	return t != FsSwap
}

// MustHaveMountPoint reports whether a mount point is mandatory: exactly
// the types that have no backing device but are mountable, since a
// tmpfs/overlay with no mount point would be unreachable entirely.
func (t FileSystemType) MustHaveMountPoint() bool {
	return !t.ExpectsBlockDeviceID() && t.CanHaveMountPoint()
}

// ValidSources returns the filesystem sources a type accepts.
func (t FileSystemType) ValidSources() []FileSystemSource {
	switch t {
	case FsTmpfs, FsOverlay:
		return []FileSystemSource{SourceNew}
	case FsIso9660:
		return []FileSystemSource{SourceAdopted, SourceOsImage}
	case FsVfat:
		return []FileSystemSource{SourceNew, SourceImage, SourceAdopted, SourceEspBundle}
	case FsAuto:
		// Auto means "whatever is already there": it can only describe
		// bits that arrive from an image or an adopted device, never a
		// freshly created filesystem.
		return []FileSystemSource{SourceImage, SourceAdopted, SourceOsImage}
	case FsOther:
		return []FileSystemSource{SourceAdopted}
	default:
		return []FileSystemSource{SourceNew, SourceImage, SourceAdopted}
	}
}

// SourceValid reports whether src is acceptable for this type.
func (t FileSystemType) SourceValid(src FileSystemSource) bool {
	for _, s := range t.ValidSources() {
		if s == src {
			return true
		}
	}
	return false
}

// SupportsVerity reports whether a filesystem of this type may sit on a
// dm-verity device. Only the read-only-capable disk filesystems qualify.
func (t FileSystemType) SupportsVerity() bool {
	switch t {
	case FsExt4, FsXfs, FsAuto:
		return true
	default:
		return false
	}
}
