package task

import (
	"fmt"
	"strings"
)

// Type identifies a banking workflow.
type Type string

const (
	TypeLoan        Type = "loan"
	TypeCardBlock   Type = "card_block"
	TypeCardApply   Type = "card_apply"
	TypeLimitChange Type = "limit_change"
	TypeBalance     Type = "balance_inquiry"
)

// Kind selects the validator applied to a step's user input.
type Kind string

const (
	// KindText accepts any non-empty text value.
	KindText Kind = "text"
	// KindAmount accepts a dollar amount within the step's Min/Max bounds.
	KindAmount Kind = "amount"
	// KindIncome accepts a positive annual income figure.
	KindIncome Kind = "income"
	// KindOption requires the user to pick from a presented menu.
	KindOption Kind = "option"
)

// Option is one entry of a selection menu presented to the user.
type Option struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// StepSpec declares one ordered unit of a workflow requiring a single
// validated user input.
type StepSpec struct {
	Name        string  `yaml:"name"`
	Prompt      string  `yaml:"prompt"`
	Kind        Kind    `yaml:"kind"`
	Min         float64 `yaml:"min,omitempty"`
	Max         float64 `yaml:"max,omitempty"`
	Hint        string  `yaml:"hint,omitempty"`
	OptionsFrom string  `yaml:"options_from,omitempty"`
	Required    bool    `yaml:"required"`
}

// Definition declares the ordered step sequence for one task type. Definitions
// are loaded at startup and never mutated afterwards.
type Definition struct {
	Type  Type       `yaml:"type"`
	Title string     `yaml:"title"`
	Steps []StepSpec `yaml:"steps"`
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	clone := Definition{
		Type:  def.Type,
		Title: def.Title,
	}
	if len(def.Steps) > 0 {
		clone.Steps = make([]StepSpec, len(def.Steps))
		copy(clone.Steps, def.Steps)
	}
	return clone
}

// Validate ensures the definition is self-consistent.
func (def Definition) Validate() error {
	if strings.TrimSpace(string(def.Type)) == "" {
		return fmt.Errorf("task: type is required")
	}
	if strings.TrimSpace(def.Title) == "" {
		return fmt.Errorf("task %s: title is required", def.Type)
	}
	seen := map[string]struct{}{}
	for idx, step := range def.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("task %s step[%d]: %w", def.Type, idx, err)
		}
		if _, exists := seen[step.Name]; exists {
			return fmt.Errorf("task %s: duplicate step name %s", def.Type, step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	return nil
}

// Normalized clones the definition, applies defaults, and validates the result.
func (def Definition) Normalized() (Definition, error) {
	clone := def.Clone()
	clone.Type = Type(strings.TrimSpace(strings.ToLower(string(clone.Type))))
	clone.Title = strings.TrimSpace(clone.Title)
	for i := range clone.Steps {
		clone.Steps[i].normalize()
	}
	if err := clone.Validate(); err != nil {
		return Definition{}, err
	}
	return clone, nil
}

func (s *StepSpec) normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Prompt = strings.TrimSpace(s.Prompt)
	if s.Kind == "" {
		s.Kind = KindText
	}
}

func (s StepSpec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("step name is required")
	}
	if s.Prompt == "" {
		return fmt.Errorf("step %s: prompt is required", s.Name)
	}
	switch s.Kind {
	case KindText, KindIncome:
	case KindAmount:
		if s.Max != 0 && s.Max < s.Min {
			return fmt.Errorf("step %s: max must be >= min", s.Name)
		}
	case KindOption:
		if s.OptionsFrom == "" {
			return fmt.Errorf("step %s: options_from is required for option steps", s.Name)
		}
	default:
		return fmt.Errorf("step %s: unknown kind %q", s.Name, s.Kind)
	}
	return nil
}
