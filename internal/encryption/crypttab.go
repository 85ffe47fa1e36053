package encryption

import (
	"fmt"
	"strings"

	"trident/internal/hostconfig"
)

// CrypttabEntry is a single synthesized /etc/crypttab line.
type CrypttabEntry struct {
	Name    string
	Device  string
	KeyFile string
	Options string
}

// String renders the entry in crypttab's four-whitespace-separated-field
// format.
func (e CrypttabEntry) String() string {
	return fmt.Sprintf("%s\t%s\t%s\t%s", e.Name, e.Device, e.KeyFile, e.Options)
}

// SynthesizeCrypttab builds the crypttab contents for the given encrypted
// volumes. devicePath resolves a volume's underlying device id to a block
// device path; isSwap reports whether a volume backs a swap filesystem.
// A swap-backed volume gets a throwaway /dev/random key with a plain
// cipher (its contents never need to survive a reboot); anything else is
// unlocked via the TPM2-backed policy synthesized elsewhere in this
// package. An empty volume list means any existing crypttab should be
// removed entirely, signaled by returning a nil (not empty) slice.
func SynthesizeCrypttab(volumes []hostconfig.EncryptedVolume, devicePath func(deviceID string) string, isSwap func(volumeID string) bool) []CrypttabEntry {
	if len(volumes) == 0 {
		return nil
	}

	entries := make([]CrypttabEntry, 0, len(volumes))
	for _, v := range volumes {
		if isSwap(v.ID) {
			entries = append(entries, CrypttabEntry{
				Name:    v.DeviceName,
				Device:  devicePath(v.DeviceID),
				KeyFile: "/dev/random",
				Options: "luks,swap,cipher=aes-xts-plain64,size=512",
			})
			continue
		}
		entries = append(entries, CrypttabEntry{
			Name:    v.DeviceName,
			Device:  devicePath(v.DeviceID),
			KeyFile: "none",
			Options: "luks,tpm2-device=auto",
		})
	}
	return entries
}

// RenderCrypttab joins entries into a complete crypttab file body. A nil
// slice (no volumes) renders to an empty string, which the caller should
// treat as "delete the file" rather than "write an empty file".
func RenderCrypttab(entries []CrypttabEntry) string {
	if len(entries) == 0 {
		return ""
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n") + "\n"
}
