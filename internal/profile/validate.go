package profile

import (
	"fmt"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/pkg/config"
)

// ValidationError names the offending profile field
type ValidationError struct {
	Profile string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("profile %s: %s: %s", e.Profile, e.Field, e.Message)
}

// Unwrap lets callers match contracts.ErrConfiguration
func (e ValidationError) Unwrap() error {
	return contracts.ErrConfiguration
}

// Validate checks a single profile
func Validate(p *Profile) error {
	switch p.Discovery {
	case DiscoveryFinviz, DiscoveryStatic:
	default:
		return ValidationError{p.Name, "discovery", "must be finviz or static"}
	}

	switch p.FloatPolicy {
	case "", config.FloatPolicyAssumeSmall, config.FloatPolicyDisqualify:
	default:
		return ValidationError{p.Name, "float_policy", "must be assume-small or disqualify"}
	}

	for _, t := range p.Tickers {
		if !contracts.NormalizeTicker(t).Valid() {
			return ValidationError{p.Name, "tickers", fmt.Sprintf("invalid symbol %q", t)}
		}
	}

	if err := p.Criteria.Validate(); err != nil {
		return ValidationError{p.Name, "criteria", err.Error()}
	}
	return nil
}
