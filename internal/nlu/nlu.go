// Package nlu integrates the external natural-language-understanding
// collaborator. The engine treats it as advisory: every call is bounded by a
// timeout and any failure or low-confidence result is handled by the
// deterministic keyword fallback upstream.
package nlu

import (
	"context"

	"github.com/harborbank/concierge/internal/task"
)

// Intent labels returned by the collaborator.
const (
	IntentStartTask  = "start_task"
	IntentResumeTask = "resume_task"
	IntentCancelTask = "cancel_task"
	IntentUnknown    = "unknown"
)

// Result is one classification from the collaborator.
type Result struct {
	Intent     string    `json:"intent"`
	TaskType   task.Type `json:"task_type,omitempty"`
	Confidence float64   `json:"confidence"`
}

// Classifier asks an external service what the user meant. Implementations
// must honor ctx cancellation; callers always pass a deadline.
type Classifier interface {
	Classify(ctx context.Context, utterance, contextHint string) (Result, error)
}
