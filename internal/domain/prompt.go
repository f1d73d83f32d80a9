package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// PersonaModule is the prompt module placed first in every system prompt.
const PersonaModule = "persona_aoi"

var promptSlugPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)

// PromptModule is one layer of the assistant's system prompt. A module is
// included for every plan whose level is at least RequiredPlanLevel.
type PromptModule struct {
	Slug              string    `json:"slug"`
	Content           string    `json:"content"`
	RequiredPlanLevel int       `json:"required_plan_level"`
	Active            bool      `json:"is_active"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Validate checks a module before it is stored.
func (m *PromptModule) Validate() error {
	const op = "prompt.validate"

	var ve *ValidationError
	add := func(field, msg string) {
		if ve == nil {
			ve = NewValidationError(op, field, msg)
			return
		}
		ve.Fields[field] = msg
	}

	if !promptSlugPattern.MatchString(m.Slug) {
		add("slug", "must be lowercase letters, digits or underscores")
	}
	if strings.TrimSpace(m.Content) == "" {
		add("content", "is required")
	}
	if m.RequiredPlanLevel < 0 || m.RequiredPlanLevel >= len(AllPlans) {
		add("required_plan_level", fmt.Sprintf("must be between 0 and %d", len(AllPlans)-1))
	}
	if ve != nil {
		return ve
	}
	return nil
}
