package banking

import (
	"context"
	"errors"
	"fmt"

	"github.com/harborbank/concierge/internal/task"
)

// Receipt is the successful outcome of a business action.
type Receipt struct {
	Reference string
	Message   string
}

// Rejection is a business refusal: the action ran and the bank said no. It is
// terminal for the task instance and is never retried automatically.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("banking: rejected: %s", r.Reason)
}

// AsRejection extracts a Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Service is the external banking collaborator. Execute performs the terminal
// business action for a completed workflow; Options supplies the enumerated
// choices for dynamic selection menus.
type Service interface {
	Execute(ctx context.Context, userID string, taskType task.Type, values map[string]string) (Receipt, error)
	Options(ctx context.Context, userID, provider string) ([]task.Option, error)
}
