package profile

import (
	"fmt"
	"sort"

	"github.com/wonny/gapscan/internal/contracts"
)

// Discovery sources a profile may name
const (
	DiscoveryFinviz = "finviz"
	DiscoveryStatic = "static"
)

// Built-in profile names
const (
	Gappers = "gappers"
	Manual  = "manual"
)

// Profile is a named screening preset
type Profile struct {
	Name        string                   `yaml:"-" json:"name"`
	Description string                   `yaml:"description" json:"description"`
	Discovery   string                   `yaml:"discovery" json:"discovery"`
	Tickers     []string                 `yaml:"tickers,omitempty" json:"tickers,omitempty"`
	FloatPolicy string                   `yaml:"float_policy,omitempty" json:"float_policy,omitempty"`
	Criteria    contracts.FilterCriteria `yaml:"criteria" json:"criteria"`
}

// File is the on-disk profiles document
type File struct {
	Profiles map[string]*Profile `yaml:"profiles"`
}

// Set is a validated collection of profiles
type Set struct {
	profiles map[string]*Profile
}

// Get returns the named profile
func (s *Set) Get(name string) (*Profile, error) {
	p, ok := s.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown profile %q (available: %v)", contracts.ErrConfiguration, name, s.Names())
	}
	cp := *p
	cp.Tickers = append([]string(nil), p.Tickers...)
	return &cp, nil
}

// Names returns profile names sorted
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for n := range s.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
