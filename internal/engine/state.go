package engine

import (
	"time"

	"github.com/harborbank/concierge/internal/task"
)

// Status enumerates the lifecycle of a task instance. Active and Suspended
// instances live in the context stack; terminal instances are evicted from it
// but retained in the store for history.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends the instance's lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Instance is one in-progress attempt at a workflow.
type Instance struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	TaskType    task.Type         `json:"task_type"`
	Status      Status            `json:"status"`
	CurrentStep int               `json:"current_step"`
	Collected   map[string]string `json:"collected,omitempty"`
	// PendingOptions is the menu shown for the current step on the previous
	// turn, persisted so a selection resolves the same way after a restart.
	PendingOptions []task.Option `json:"pending_options,omitempty"`
	// Reference holds the business action's reference ID once completed.
	Reference  string    `json:"reference,omitempty"`
	FailReason string    `json:"fail_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the instance.
func (in Instance) Clone() Instance {
	clone := in
	if len(in.Collected) > 0 {
		clone.Collected = make(map[string]string, len(in.Collected))
		for k, v := range in.Collected {
			clone.Collected[k] = v
		}
	}
	if len(in.PendingOptions) > 0 {
		clone.PendingOptions = make([]task.Option, len(in.PendingOptions))
		copy(clone.PendingOptions, in.PendingOptions)
	}
	return clone
}

// ContextStack tracks which task a user is in the middle of. At most one
// instance is active; suspended instances wait in LIFO order, most recently
// suspended last.
type ContextStack struct {
	UserID    string    `json:"user_id"`
	ActiveID  string    `json:"active_id,omitempty"`
	Suspended []string  `json:"suspended,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the stack.
func (cs ContextStack) Clone() ContextStack {
	clone := cs
	if len(cs.Suspended) > 0 {
		clone.Suspended = make([]string, len(cs.Suspended))
		copy(clone.Suspended, cs.Suspended)
	}
	return clone
}

// Idle reports whether no task is active or suspended.
func (cs ContextStack) Idle() bool {
	return cs.ActiveID == "" && len(cs.Suspended) == 0
}

// Contains reports whether the instance ID occupies the active slot or the
// suspended stack.
func (cs ContextStack) Contains(id string) bool {
	if cs.ActiveID == id {
		return true
	}
	for _, suspended := range cs.Suspended {
		if suspended == id {
			return true
		}
	}
	return false
}

func (cs *ContextStack) push(id string) {
	cs.Suspended = append(cs.Suspended, id)
}

func (cs *ContextStack) pop() (string, bool) {
	if len(cs.Suspended) == 0 {
		return "", false
	}
	top := cs.Suspended[len(cs.Suspended)-1]
	cs.Suspended = cs.Suspended[:len(cs.Suspended)-1]
	return top, true
}

func (cs *ContextStack) remove(id string) bool {
	for i, suspended := range cs.Suspended {
		if suspended == id {
			cs.Suspended = append(cs.Suspended[:i], cs.Suspended[i+1:]...)
			return true
		}
	}
	return false
}

// HistoryTurn records one completed conversational turn for audit.
type HistoryTurn struct {
	UserID    string    `json:"user_id"`
	Utterance string    `json:"utterance"`
	Reply     string    `json:"reply"`
	At        time.Time `json:"at"`
}
