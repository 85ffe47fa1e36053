package hostconfig

import (
	"fmt"

	"github.com/Jeffail/gabs/v2"
	"gopkg.in/yaml.v3"
)

// ImageType distinguishes the two bootloader shapes the encryption
// planner cares about.
type ImageType string

const (
	ImageTypeUki  ImageType = "uki"
	ImageTypeGrub ImageType = "grub"
)

// Pcr is a single TPM2 platform configuration register index.
type Pcr int

// Encryption is the host configuration's encryption/PCR-policy section,
// consumed by internal/encryption.
type Encryption struct {
	RecoveryKeyURL *string           `yaml:"recoveryKeyUrl,omitempty" json:"recoveryKeyUrl,omitempty"`
	Pcrs           []Pcr             `yaml:"pcrs" json:"pcrs"`
	Volumes        []EncryptedVolume `yaml:"volumes,omitempty" json:"volumes,omitempty"`
}

// Bootloader names the servicing target's bootloader shape.
type Bootloader struct {
	Image ImageType `yaml:"image" json:"image"`
}

// HostConfiguration is the full document the RPC surface accepts and
// returns: the validated Storage section plus its sibling sections.
// Fields the typed sections don't recognize are preserved losslessly in
// Extra, a gabs.Container, to avoid lossy round-trips through a single
// closed struct.
type HostConfiguration struct {
	Storage    Storage     `yaml:"storage" json:"storage"`
	Encryption *Encryption `yaml:"encryption,omitempty" json:"encryption,omitempty"`
	Bootloader *Bootloader `yaml:"bootloader,omitempty" json:"bootloader,omitempty"`

	// Extra holds any top-level document fields (e.g. "os", custom
	// extensions) this package doesn't model as Go structs.
	Extra *gabs.Container `yaml:"-" json:"-"`
}

// ParseYAML decodes a Host Configuration document. It first decodes into
// the typed struct (so storage/encryption/bootloader get real types), then
// separately parses the same bytes into a gabs.Container and strips the
// keys already covered by typed fields, so Extra carries everything else
// untouched.
func ParseYAML(data []byte) (*HostConfiguration, error) {
	var hc HostConfiguration
	if err := yaml.Unmarshal(data, &hc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal host configuration: %w", err)
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal host configuration as raw document: %w", err)
	}
	container := gabs.Wrap(normalizeYAMLValue(raw))
	for _, known := range []string{"storage", "encryption", "bootloader"} {
		_ = container.Delete(known)
	}
	hc.Extra = container

	return &hc, nil
}

// normalizeYAMLValue converts the map[interface{}]interface{} that
// gopkg.in/yaml.v3 can produce for untyped nodes into map[string]interface{}
// so gabs (which expects JSON-shaped data) can navigate it.
func normalizeYAMLValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[k] = normalizeYAMLValue(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[fmt.Sprintf("%v", k)] = normalizeYAMLValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, val := range vv {
			out[i] = normalizeYAMLValue(val)
		}
		return out
	default:
		return v
	}
}

// ToYAML serializes the document back to YAML. Extra's fields are merged
// back in alongside the typed sections.
func (hc *HostConfiguration) ToYAML() ([]byte, error) {
	merged := gabs.New()
	if hc.Extra != nil {
		var err error
		merged, err = gabs.ParseJSON(hc.Extra.Bytes())
		if err != nil {
			return nil, fmt.Errorf("failed to clone extra document fields: %w", err)
		}
	}

	typed, err := yaml.Marshal(hc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal typed host configuration fields: %w", err)
	}
	var typedRaw map[string]interface{}
	if err := yaml.Unmarshal(typed, &typedRaw); err != nil {
		return nil, fmt.Errorf("failed to re-unmarshal typed host configuration fields: %w", err)
	}
	for k, v := range typedRaw {
		if _, err := merged.Set(v, k); err != nil {
			return nil, fmt.Errorf("failed to merge field %q: %w", k, err)
		}
	}

	out, err := yaml.Marshal(merged.Data())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged host configuration: %w", err)
	}
	return out, nil
}

// Clone deep-copies the document via a YAML round-trip -- there is no
// cheap way to deep-copy an interface{}/any tree in Go, so
// serialize/deserialize is the simplest correct approach.
func (hc *HostConfiguration) Clone() (*HostConfiguration, error) {
	data, err := hc.ToYAML()
	if err != nil {
		return nil, err
	}
	return ParseYAML(data)
}
