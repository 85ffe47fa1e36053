package encryption

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComposeInputsUkiTarget(t *testing.T) {
	target := Target{
		UkiPath:           "/boot/efi/EFI/Linux/uki.efi",
		KernelCmdlinePath: "/proc/cmdline",
		DiskPath:          "/dev/sda",
	}
	inputs := ComposeInputs(target)

	var kinds []InputKind
	for _, in := range inputs {
		kinds = append(kinds, in.Kind)
	}
	require.Equal(t, []InputKind{InputGpt, InputUki, InputKernelCmdline}, kinds)
}

func TestComposeInputsGrubTarget(t *testing.T) {
	target := Target{BootLoaderPath: "/boot/efi/EFI/BOOT/bootx64.efi"}
	inputs := ComposeInputs(target)

	var kinds []InputKind
	for _, in := range inputs {
		kinds = append(kinds, in.Kind)
	}
	require.Equal(t, []InputKind{InputBootLoaderCode, InputBootLoaderConf}, kinds)
}

func TestComposeInputsIncludesRawMeasurements(t *testing.T) {
	target := Target{RawMeasurements: []RawMeasurement{{Data: []byte("blob"), Pcrs: []int{13}}}}
	inputs := ComposeInputs(target)
	require.Len(t, inputs, 1)
	require.Equal(t, InputRaw, inputs[0].Kind)
	require.Equal(t, []byte("blob"), inputs[0].RawData)
}

func TestPcrlockInputRelevantTo(t *testing.T) {
	in := PcrlockInput{Pcrs: []int{11, 12}}
	require.True(t, in.RelevantTo([]int{7, 12}))
	require.False(t, in.RelevantTo([]int{7, 8}))
}

func TestInputKindDir(t *testing.T) {
	require.Equal(t, GptPcrlockDir, InputGpt.dir())
	require.Equal(t, UkiPcrlockDir, InputUki.dir())
	require.Equal(t, "", InputRaw.dir())
}
