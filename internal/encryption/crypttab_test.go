package encryption

import (
	"testing"

	"github.com/stretchr/testify/require"

	"trident/internal/hostconfig"
)

func TestSynthesizeCrypttabEmptyVolumesReturnsNil(t *testing.T) {
	entries := SynthesizeCrypttab(nil, func(string) string { return "" }, func(string) bool { return false })
	require.Nil(t, entries)
	require.Equal(t, "", RenderCrypttab(entries))
}

func TestSynthesizeCrypttabSwapVolume(t *testing.T) {
	volumes := []hostconfig.EncryptedVolume{{ID: "swap-vol", DeviceID: "part-swap", DeviceName: "cryptswap"}}
	devicePath := func(id string) string { return "/dev/disk/by-partuuid/" + id }
	isSwap := func(id string) bool { return id == "swap-vol" }

	entries := SynthesizeCrypttab(volumes, devicePath, isSwap)
	require.Len(t, entries, 1)
	require.Equal(t, "cryptswap", entries[0].Name)
	require.Equal(t, "/dev/random", entries[0].KeyFile)
	require.Contains(t, entries[0].Options, "swap")
	require.Contains(t, entries[0].Options, "cipher=aes-xts-plain64")
}

func TestSynthesizeCrypttabNonSwapVolume(t *testing.T) {
	volumes := []hostconfig.EncryptedVolume{{ID: "root-vol", DeviceID: "part-root", DeviceName: "cryptroot"}}
	devicePath := func(id string) string { return "/dev/disk/by-partuuid/" + id }
	isSwap := func(id string) bool { return false }

	entries := SynthesizeCrypttab(volumes, devicePath, isSwap)
	require.Len(t, entries, 1)
	require.Equal(t, "none", entries[0].KeyFile)
	require.Equal(t, "luks,tpm2-device=auto", entries[0].Options)
}

func TestRenderCrypttabJoinsEntriesWithTrailingNewline(t *testing.T) {
	entries := []CrypttabEntry{
		{Name: "a", Device: "/dev/a", KeyFile: "none", Options: "luks"},
		{Name: "b", Device: "/dev/b", KeyFile: "/dev/random", Options: "luks,swap"},
	}
	rendered := RenderCrypttab(entries)
	require.Equal(t, "a\t/dev/a\tnone\tluks\nb\t/dev/b\t/dev/random\tluks,swap\n", rendered)
}
