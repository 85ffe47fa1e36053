package encryption

// Directory names under /var/lib/pcrlock.d, each holding the dynamically
// regenerated .pcrlock fragments for one measurement category.
const (
	GptPcrlockDir             = "600-gpt.pcrlock.d"
	BootLoaderCodePcrlockDir  = "610-boot-loader-code.pcrlock.d"
	BootLoaderConfPcrlockDir  = "630-boot-loader-conf.pcrlock.d"
	UkiPcrlockDir             = "650-uki.pcrlock.d"
	KernelCmdlinePcrlockDir   = "710-kernel-cmdline.pcrlock.d"
	KernelInitrdPcrlockDir    = "720-kernel-initrd.pcrlock.d"
)

// PolicyPath is where systemd-pcrlock writes the generated TPM2 access
// policy.
const PolicyPath = "/var/lib/systemd/pcrlock.json"

// InputKind tags which systemd-pcrlock lock-* subcommand a composed
// measurement input maps to.
type InputKind int

const (
	InputGpt InputKind = iota
	InputBootLoaderCode
	InputBootLoaderConf
	InputUki
	InputKernelCmdline
	InputKernelInitrd
	InputRaw
)

func (k InputKind) dir() string {
	switch k {
	case InputGpt:
		return GptPcrlockDir
	case InputBootLoaderCode:
		return BootLoaderCodePcrlockDir
	case InputBootLoaderConf:
		return BootLoaderConfPcrlockDir
	case InputUki:
		return UkiPcrlockDir
	case InputKernelCmdline:
		return KernelCmdlinePcrlockDir
	case InputKernelInitrd:
		return KernelInitrdPcrlockDir
	default:
		return ""
	}
}

// PcrlockInput is one measurement source to feed into policy composition:
// a source file (a PE binary, a GPT disk, a cmdline file, or raw bytes)
// tagged with the PCR set it contributes to.
type PcrlockInput struct {
	Kind       InputKind
	SourcePath string
	RawData    []byte
	Pcrs       []int
}

// Target describes the servicing target's bootable image, enough to
// decide what measurement inputs it needs.
type Target struct {
	UkiPath            string
	BootLoaderPath     string
	KernelCmdlinePath  string
	DiskPath           string
	RawMeasurements    []RawMeasurement
}

// RawMeasurement is an extra binary-data measurement the caller wants
// folded into the policy (e.g. a vendor-specific NVRAM blob), each tagged
// with the PCR(s) it should be attributed to.
type RawMeasurement struct {
	Data []byte
	Pcrs []int
}

// ComposeInputs enumerates the .pcrlock measurement inputs for a target,
// in the fixed order systemd-pcrlock's numeric directory prefixes imply
// (GPT, boot loader code, boot loader conf, UKI, kernel cmdline, then any
// extra raw measurements).
func ComposeInputs(t Target) []PcrlockInput {
	var inputs []PcrlockInput

	if t.DiskPath != "" {
		inputs = append(inputs, PcrlockInput{Kind: InputGpt, SourcePath: t.DiskPath, Pcrs: []int{5}})
	}
	if t.BootLoaderPath != "" {
		inputs = append(inputs, PcrlockInput{Kind: InputBootLoaderCode, SourcePath: t.BootLoaderPath, Pcrs: []int{4}})
		inputs = append(inputs, PcrlockInput{Kind: InputBootLoaderConf, SourcePath: t.BootLoaderPath, Pcrs: []int{1}})
	}
	if t.UkiPath != "" {
		inputs = append(inputs, PcrlockInput{Kind: InputUki, SourcePath: t.UkiPath, Pcrs: []int{11, 12, 13, 14, 15}})
	}
	if t.KernelCmdlinePath != "" {
		inputs = append(inputs, PcrlockInput{Kind: InputKernelCmdline, SourcePath: t.KernelCmdlinePath, Pcrs: []int{12}})
	}
	for _, raw := range t.RawMeasurements {
		inputs = append(inputs, PcrlockInput{Kind: InputRaw, RawData: raw.Data, Pcrs: raw.Pcrs})
	}

	return inputs
}

// RelevantTo reports whether any PCR this input measures is in the
// requested set, used to decide whether an input's .pcrlock.d directory
// needs regenerating at all for a given PCR policy request.
func (in PcrlockInput) RelevantTo(requested []int) bool {
	want := map[int]bool{}
	for _, p := range requested {
		want[p] = true
	}
	for _, p := range in.Pcrs {
		if want[p] {
			return true
		}
	}
	return false
}
