package task

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidationError reports user input that a step validator refused. It is
// expected feedback, not an engine failure: the caller re-prompts and the
// task instance stays exactly where it was.
type ValidationError struct {
	Step string
	Hint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("task: invalid value for step %s: %s", e.Step, e.Hint)
}

// ValidateValue checks raw user input against the step's kind and bounds and
// returns the canonical stored form. Option steps are resolved against the
// presented menu by the executor, not here.
func (s StepSpec) ValidateValue(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	switch s.Kind {
	case KindText:
		if trimmed == "" {
			return "", &ValidationError{Step: s.Name, Hint: s.hint("please enter a value")}
		}
		return trimmed, nil
	case KindAmount:
		value, ok := parseDollars(trimmed)
		if !ok {
			return "", &ValidationError{Step: s.Name, Hint: s.hint("please enter an amount such as $15,000 or 15000")}
		}
		if s.Min != 0 && value < s.Min {
			return "", &ValidationError{Step: s.Name, Hint: fmt.Sprintf("the minimum is $%s", formatDollars(s.Min))}
		}
		if s.Max != 0 && value > s.Max {
			return "", &ValidationError{Step: s.Name, Hint: fmt.Sprintf("the maximum is $%s", formatDollars(s.Max))}
		}
		return strconv.FormatFloat(value, 'f', 2, 64), nil
	case KindIncome:
		value, ok := parseDollars(trimmed)
		if !ok || value <= 0 {
			return "", &ValidationError{Step: s.Name, Hint: s.hint("please enter your annual gross income, for example $75,000")}
		}
		return strconv.FormatFloat(value, 'f', 2, 64), nil
	case KindOption:
		return "", &ValidationError{Step: s.Name, Hint: s.hint("please pick one of the listed options")}
	default:
		return "", fmt.Errorf("task: step %s has unknown kind %q", s.Name, s.Kind)
	}
}

func (s StepSpec) hint(fallback string) string {
	if s.Hint != "" {
		return s.Hint
	}
	return fallback
}

// parseDollars accepts forms like "15000", "$15,000" and "15000.50".
func parseDollars(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

func formatDollars(value float64) string {
	whole := int64(value)
	out := strconv.FormatInt(whole, 10)
	for i := len(out) - 3; i > 0; i -= 3 {
		out = out[:i] + "," + out[i:]
	}
	if frac := value - float64(whole); frac > 0 {
		out += strings.TrimPrefix(strconv.FormatFloat(frac, 'f', 2, 64), "0")
	}
	return out
}
