package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateVendor checks the upstream vendor name
func (v *Validator) ValidateVendor(vendor string) error {
	switch vendor {
	case "openai", "anthropic":
		return nil
	case "":
		return fmt.Errorf("upstream vendor is required")
	default:
		return fmt.Errorf("invalid upstream vendor %s (must be: openai, anthropic)", vendor)
	}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, vendor string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", vendor)
	}

	switch vendor {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidatePersona checks a persona name
func (v *Validator) ValidatePersona(persona string) error {
	switch persona {
	case "", "daddy", "mummy", "custom":
		return nil
	default:
		return fmt.Errorf("invalid persona %s (must be: daddy, mummy, custom)", persona)
	}
}

// ValidateSchedule checks a cron expression in standard five-field form
func (v *Validator) ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return nil
}
