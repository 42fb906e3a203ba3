// Package intent turns raw utterances into the small command vocabulary the
// conversation engine understands. Classification is read-only with respect
// to state and never fails: when nothing matches, the result is Unrecognized
// and the fallback router takes over.
package intent

import (
	"github.com/harborbank/concierge/internal/task"
)

// Kind tags a classified intent.
type Kind string

const (
	// KindStartTask begins a new task of Intent.TaskType.
	KindStartTask Kind = "start_task"
	// KindContinue keeps working the active task; Value carries the raw text.
	KindContinue Kind = "continue"
	// KindSwitchTask moves to Intent.TaskType, suspending the active task.
	KindSwitchTask Kind = "switch_task"
	// KindResumeTask reactivates the most recently suspended task.
	KindResumeTask Kind = "resume_task"
	// KindCancelTask abandons the active task.
	KindCancelTask Kind = "cancel_task"
	// KindProvideValue supplies step input for the active task.
	KindProvideValue Kind = "provide_value"
	// KindSelectOption picks Intent.OptionID from the menu shown last turn.
	KindSelectOption Kind = "select_option"
	// KindUnrecognized means no rule and no collaborator produced a verdict.
	KindUnrecognized Kind = "unrecognized"
)

// Intent is the tagged classification result.
type Intent struct {
	Kind     Kind
	TaskType task.Type
	Value    string
	OptionID string
}

// Snapshot is the read-only slice of engine state classification needs.
type Snapshot struct {
	HasActive      bool
	ActiveType     task.Type
	SuspendedTypes []task.Type
	// MenuOptions is the selection menu presented on the previous turn, when
	// the active step is waiting for a pick.
	MenuOptions []task.Option
}

func (s Snapshot) suspendedHas(t task.Type) bool {
	for _, st := range s.SuspendedTypes {
		if st == t {
			return true
		}
	}
	return false
}
