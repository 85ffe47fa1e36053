// Package encryption implements the Encryption / PCR-Policy Planner: the
// static validation of a Host Configuration's encryption block, selection
// of a pcrlock regeneration plan, composition of the .pcrlock measurement
// inputs, and crypttab synthesis.
package encryption

import (
	"fmt"
	"os"
	"sort"

	"github.com/juliangruber/go-intersect"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"trident/internal/hostconfig"
)

// AllowedPCRs is the subset of PCR indices systemd-pcrlock accepts for
// policy generation.
var AllowedPCRs = []hostconfig.Pcr{0, 1, 2, 3, 4, 5, 7, 11, 12, 13, 14, 15}

// ServicingType tags which operation the planner is running for.
type ServicingType int

const (
	CleanInstall ServicingType = iota
	AbUpdate
)

func (s ServicingType) String() string {
	if s == CleanInstall {
		return "CleanInstall"
	}
	return "AbUpdate"
}

// Action is the plan the selector hands back to the caller.
type Action int

const (
	// ActionKeepBootstrapPolicy never regenerates; the bootstrap PCR0
	// policy written at clean-install time remains in force.
	ActionKeepBootstrapPolicy Action = iota
	// ActionRegenerate recomputes the policy over the requested PCR set.
	ActionRegenerate
	// ActionReusePrior keeps the existing PCR7-only policy (GRUB doesn't
	// support pcrlock's richer measurement set).
	ActionReusePrior
)

func (a Action) String() string {
	switch a {
	case ActionKeepBootstrapPolicy:
		return "keep-bootstrap-policy"
	case ActionRegenerate:
		return "regenerate"
	case ActionReusePrior:
		return "reuse-prior"
	default:
		return "unknown"
	}
}

// Plan is the result of SelectPlan.
type Plan struct {
	Action Action
	// CopyExistingPolicy is set when a prior policy JSON should be copied
	// onto the update volume even though it isn't being regenerated.
	CopyExistingPolicy bool
}

// StaticValidate checks the encryption block's self-consistency before
// any plan is selected: recovery-key file permissions, and PCR-selection
// validity against the image type and the runtime environment.
func StaticValidate(enc *hostconfig.Encryption, isUki, inContainer, secureBootEnabled bool) error {
	if enc.RecoveryKeyURL != nil {
		if err := validateRecoveryKeyFile(*enc.RecoveryKeyURL); err != nil {
			return err
		}
	}

	if !isUki {
		if len(enc.Pcrs) != 1 || enc.Pcrs[0] != hostconfig.Pcr(7) {
			return errors.Errorf("non-UKI images may only bind PCR 7, got %v", enc.Pcrs)
		}
		return nil
	}

	if containsPcr(enc.Pcrs, 7) {
		if !secureBootEnabled {
			return errors.New("PCR 7 requires secure boot to be enabled")
		}
		if inContainer {
			return errors.New("PCR 7 is not supported while running inside a container")
		}
	}
	return nil
}

func validateRecoveryKeyFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "recovery key file %q does not exist", path)
	}
	if !info.Mode().IsRegular() {
		return errors.Errorf("recovery key file %q is not a regular file", path)
	}
	if info.Size() == 0 {
		return errors.Errorf("recovery key file %q is empty", path)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return errors.Errorf("recovery key file %q must not be group/other accessible (mode %o)", path, info.Mode().Perm())
	}
	return nil
}

func containsPcr(pcrs []hostconfig.Pcr, want hostconfig.Pcr) bool {
	for _, p := range pcrs {
		if p == want {
			return true
		}
	}
	return false
}

// SelectPlan maps a servicing type and image shape to a policy action.
func SelectPlan(servicing ServicingType, isUki bool) (Plan, error) {
	switch servicing {
	case CleanInstall:
		return Plan{Action: ActionKeepBootstrapPolicy, CopyExistingPolicy: true}, nil
	case AbUpdate:
		if isUki {
			return Plan{Action: ActionRegenerate}, nil
		}
		return Plan{Action: ActionReusePrior}, nil
	default:
		return Plan{}, errors.Errorf("internal error: unrecognized servicing type %v", servicing)
	}
}

// IntersectAllowed intersects the requested PCR set against AllowedPCRs,
// logging a warning for anything dropped. It uses juliangruber/go-intersect rather than a hand-rolled set
// operation, since the requested and allowed lists are each small and
// the library already expresses this exact "keep only what's in both"
// operation generically.
func IntersectAllowed(requested []hostconfig.Pcr) []hostconfig.Pcr {
	reqIface := make([]interface{}, len(requested))
	for i, p := range requested {
		reqIface[i] = p
	}
	allowedIface := make([]interface{}, len(AllowedPCRs))
	for i, p := range AllowedPCRs {
		allowedIface[i] = p
	}

	result := intersect.Simple(reqIface, allowedIface)
	kept := make([]hostconfig.Pcr, 0, len(result))
	keptSet := map[hostconfig.Pcr]bool{}
	for _, v := range result {
		p := v.(hostconfig.Pcr)
		if !keptSet[p] {
			keptSet[p] = true
			kept = append(kept, p)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i] < kept[j] })

	if len(kept) != len(dedupePcrs(requested)) {
		var dropped []hostconfig.Pcr
		for _, p := range requested {
			if !keptSet[p] {
				dropped = append(dropped, p)
			}
		}
		log.WithField("dropped", dropped).Warn("ignoring PCRs unsupported by systemd-pcrlock")
	}

	return kept
}

func dedupePcrs(pcrs []hostconfig.Pcr) []hostconfig.Pcr {
	seen := map[hostconfig.Pcr]bool{}
	var out []hostconfig.Pcr
	for _, p := range pcrs {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// PcrArgument renders a PCR set as the downstream tool's `--pcr=`
// argument form: ascending, comma-separated.
func PcrArgument(pcrs []hostconfig.Pcr) string {
	return joinPcrs(pcrs, ",")
}

// Tpm2EnrollArgument renders a PCR set in the `+`-joined form TPM2
// enrollment tooling expects.
func Tpm2EnrollArgument(pcrs []hostconfig.Pcr) string {
	return joinPcrs(pcrs, "+")
}

func joinPcrs(pcrs []hostconfig.Pcr, sep string) string {
	sorted := append([]hostconfig.Pcr(nil), pcrs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := ""
	for i, p := range sorted {
		if i > 0 {
			out += sep
		}
		out += fmt.Sprintf("%d", p)
	}
	return out
}

// PolicyFile is the subset of systemd-pcrlock's generated policy JSON
// this package needs to verify: the list of PCRs it actually covered.
type PolicyFile struct {
	PcrValues []struct {
		Pcr hostconfig.Pcr `json:"pcr"`
	} `json:"pcrValues"`
}

// VerifyPolicy checks that every requested (post-intersection) PCR
// actually appears in the regenerated policy file. A missing PCR is the
// fatal GenerateTpm2AccessPolicy error.
func VerifyPolicy(policy *PolicyFile, requested []hostconfig.Pcr) error {
	present := map[hostconfig.Pcr]bool{}
	for _, v := range policy.PcrValues {
		present[v.Pcr] = true
	}
	var missing []hostconfig.Pcr
	for _, p := range requested {
		if !present[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("GenerateTpm2AccessPolicy: requested PCRs missing from generated policy: %v", missing)
	}
	return nil
}
