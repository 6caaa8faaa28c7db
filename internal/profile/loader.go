package profile

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wonny/gapscan/internal/contracts"
)

//go:embed profiles.yaml
var builtinYAML []byte

// Builtin returns the profiles shipped with the binary
func Builtin() (*Set, error) {
	return Parse(builtinYAML)
}

// Load reads a profiles file. An empty path returns the built-in set.
// Profiles in the file replace built-ins of the same name.
func Load(path string) (*Set, error) {
	set, err := Builtin()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read profiles: %v", contracts.ErrConfiguration, err)
	}

	custom, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for name, p := range custom.profiles {
		set.profiles[name] = p
	}
	return set, nil
}

// Parse decodes and validates a profiles document.
// Unknown keys fail immediately so typos never silently fall back to defaults.
func Parse(data []byte) (*Set, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode profiles: %v", contracts.ErrConfiguration, err)
	}

	set := &Set{profiles: make(map[string]*Profile, len(f.Profiles))}
	for name, p := range f.Profiles {
		if p == nil {
			return nil, fmt.Errorf("%w: profile %q is empty", contracts.ErrConfiguration, name)
		}
		p.Name = name
		if err := Validate(p); err != nil {
			return nil, err
		}
		set.profiles[name] = p
	}
	return set, nil
}

// Hash returns the SHA256 of the profile's canonical JSON, used to tag reports
func Hash(p *Profile) (string, error) {
	jsonBytes, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
