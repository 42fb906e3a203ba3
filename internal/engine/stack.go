package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harborbank/concierge/internal/task"
)

// ErrNothingSuspended is returned when a resume is requested with an empty
// suspended stack.
var ErrNothingSuspended = errors.New("engine: no suspended task to resume")

// Manager owns every user's context stack. It is the only component that
// moves instances between the active slot and the suspended stack, which is
// how the single-active-task invariant is enforced.
type Manager struct {
	store Store
	clock func() time.Time
	newID func() string
}

// ManagerOption customizes the manager.
type ManagerOption func(*Manager)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithIDGenerator overrides instance ID generation.
func WithIDGenerator(gen func() string) ManagerOption {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// NewManager wires a stack manager to the persistence store.
func NewManager(store Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	m := &Manager{
		store: store,
		clock: time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Begin loads the user's context stack and opens a turn-scoped session. All
// mutations accumulate in memory and hit the store only on Commit, so a
// failed turn leaves the prior persisted state untouched.
func (m *Manager) Begin(userID string) (*Session, error) {
	stack, err := m.store.LoadContextStack(userID)
	if errors.Is(err, ErrNotFound) {
		stack = ContextStack{UserID: userID}
	} else if err != nil {
		return nil, fmt.Errorf("engine: load context stack for %s: %w", userID, err)
	}
	return &Session{
		manager: m,
		stack:   stack,
		cache:   map[string]Instance{},
		dirty:   map[string]struct{}{},
	}, nil
}

// Session is one user's conversation state for the duration of a single turn.
type Session struct {
	manager *Manager
	stack   ContextStack
	cache   map[string]Instance
	dirty   map[string]struct{}
}

// Stack returns a read-only snapshot of the context stack.
func (s *Session) Stack() ContextStack {
	return s.stack.Clone()
}

// Active returns the active instance, if any.
func (s *Session) Active() (Instance, bool, error) {
	if s.stack.ActiveID == "" {
		return Instance{}, false, nil
	}
	inst, err := s.instance(s.stack.ActiveID)
	if err != nil {
		return Instance{}, false, err
	}
	return inst, true, nil
}

// Suspended returns the suspended instances, most recently suspended last.
func (s *Session) Suspended() ([]Instance, error) {
	out := make([]Instance, 0, len(s.stack.Suspended))
	for _, id := range s.stack.Suspended {
		inst, err := s.instance(id)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// Start begins a task of the given type, suspending the current active task
// if there is one. If a suspended instance of the same type already exists it
// is resumed instead of duplicated.
func (s *Session) Start(taskType task.Type) (Instance, error) {
	if err := s.suspendActive(); err != nil {
		return Instance{}, err
	}
	// A suspended instance of this type resumes rather than forking a twin.
	for i := len(s.stack.Suspended) - 1; i >= 0; i-- {
		inst, err := s.instance(s.stack.Suspended[i])
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return Instance{}, err
		}
		if inst.TaskType == taskType {
			s.stack.remove(inst.ID)
			return s.activate(inst), nil
		}
	}
	now := s.manager.clock()
	inst := Instance{
		ID:        s.manager.newID(),
		UserID:    s.stack.UserID,
		TaskType:  taskType,
		Status:    StatusActive,
		Collected: map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.stack.ActiveID = inst.ID
	s.put(inst)
	return inst, nil
}

// Resume reactivates the most recently suspended task (LIFO). The displaced
// active task, if any, rejoins the queue behind the remaining suspended tasks
// so repeated resumes walk the whole stack instead of toggling between two
// entries. The stack is left unchanged when the target instance no longer
// exists in the store.
func (s *Session) Resume() (Instance, error) {
	if len(s.stack.Suspended) == 0 {
		return Instance{}, ErrNothingSuspended
	}
	top := s.stack.Suspended[len(s.stack.Suspended)-1]
	inst, err := s.instance(top)
	if err != nil {
		return Instance{}, err
	}
	s.stack.pop()
	if s.stack.ActiveID != "" {
		active, err := s.instance(s.stack.ActiveID)
		if err != nil {
			return Instance{}, err
		}
		active.Status = StatusSuspended
		active.UpdatedAt = s.manager.clock()
		s.put(active)
		s.stack.Suspended = append([]string{active.ID}, s.stack.Suspended...)
		s.stack.ActiveID = ""
	}
	return s.activate(inst), nil
}

// Cancel marks the active task Cancelled and evicts it. The most recently
// suspended task, if any, becomes active again.
func (s *Session) Cancel() (Instance, bool, error) {
	active, ok, err := s.Active()
	if err != nil {
		return Instance{}, false, err
	}
	if !ok {
		return Instance{}, false, fmt.Errorf("engine: no active task to cancel")
	}
	active.Status = StatusCancelled
	active.UpdatedAt = s.manager.clock()
	s.put(active)
	s.stack.ActiveID = ""
	return s.popToActive()
}

// Finish applies the executor's completion signal: the active instance is
// already terminal, so evict it and pop the next suspended task if present.
func (s *Session) Finish(inst Instance) (Instance, bool, error) {
	if !inst.Status.Terminal() {
		return Instance{}, false, fmt.Errorf("engine: finish called with non-terminal status %s", inst.Status)
	}
	s.put(inst)
	if s.stack.ActiveID == inst.ID {
		s.stack.ActiveID = ""
	}
	return s.popToActive()
}

// Put records an updated instance (typically from the step executor).
func (s *Session) Put(inst Instance) {
	s.put(inst)
}

// Commit persists every touched instance, then the stack. Instance writes go
// first so the stack, as membership authority, never references unsaved
// state.
func (s *Session) Commit() error {
	for id := range s.dirty {
		inst, ok := s.cache[id]
		if !ok {
			continue
		}
		if err := s.manager.store.SaveInstance(inst); err != nil {
			return fmt.Errorf("engine: save instance %s: %w", id, err)
		}
	}
	s.stack.UpdatedAt = s.manager.clock()
	if err := s.manager.store.SaveContextStack(s.stack); err != nil {
		return fmt.Errorf("engine: save context stack for %s: %w", s.stack.UserID, err)
	}
	s.dirty = map[string]struct{}{}
	return nil
}

func (s *Session) suspendActive() error {
	if s.stack.ActiveID == "" {
		return nil
	}
	active, err := s.instance(s.stack.ActiveID)
	if err != nil {
		return err
	}
	active.Status = StatusSuspended
	active.UpdatedAt = s.manager.clock()
	s.put(active)
	s.stack.push(active.ID)
	s.stack.ActiveID = ""
	return nil
}

func (s *Session) activate(inst Instance) Instance {
	inst.Status = StatusActive
	inst.UpdatedAt = s.manager.clock()
	s.put(inst)
	s.stack.ActiveID = inst.ID
	return inst
}

func (s *Session) popToActive() (Instance, bool, error) {
	top, ok := s.stack.pop()
	if !ok {
		return Instance{}, false, nil
	}
	inst, err := s.instance(top)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The suspended instance vanished; drop it and keep popping.
			return s.popToActive()
		}
		return Instance{}, false, err
	}
	return s.activate(inst), true, nil
}

func (s *Session) instance(id string) (Instance, error) {
	if inst, ok := s.cache[id]; ok {
		return inst.Clone(), nil
	}
	inst, err := s.manager.store.LoadInstance(id)
	if err != nil {
		return Instance{}, err
	}
	s.cache[id] = inst
	return inst.Clone(), nil
}

func (s *Session) put(inst Instance) {
	s.cache[inst.ID] = inst.Clone()
	s.dirty[inst.ID] = struct{}{}
}
