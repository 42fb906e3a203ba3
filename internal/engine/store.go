package engine

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("engine: not found")

// Store is the durable source of truth for conversation state. Every call is
// atomic on its own; the stack manager and executor are the only writers.
type Store interface {
	// LoadContextStack returns the user's stack, or ErrNotFound if the user
	// has never had one.
	LoadContextStack(userID string) (ContextStack, error)
	SaveContextStack(stack ContextStack) error
	// LoadInstance returns ErrNotFound when the instance no longer exists,
	// e.g. after external cleanup.
	LoadInstance(id string) (Instance, error)
	SaveInstance(instance Instance) error
	AppendHistory(turn HistoryTurn) error
	// History returns the user's most recent turns, oldest first.
	History(userID string, limit int) ([]HistoryTurn, error)
}
