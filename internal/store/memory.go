// Package store provides the durable backends for conversation state. All
// implementations satisfy engine.Store; the backend is chosen at startup from
// configuration.
package store

import (
	"sync"

	"github.com/harborbank/concierge/internal/engine"
)

// Memory keeps everything in process memory. It backs tests and throwaway
// sessions; nothing survives a restart.
type Memory struct {
	mu        sync.RWMutex
	stacks    map[string]engine.ContextStack
	instances map[string]engine.Instance
	history   map[string][]engine.HistoryTurn
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		stacks:    map[string]engine.ContextStack{},
		instances: map[string]engine.Instance{},
		history:   map[string][]engine.HistoryTurn{},
	}
}

func (m *Memory) LoadContextStack(userID string) (engine.ContextStack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stack, ok := m.stacks[userID]
	if !ok {
		return engine.ContextStack{}, engine.ErrNotFound
	}
	return stack.Clone(), nil
}

func (m *Memory) SaveContextStack(stack engine.ContextStack) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stacks[stack.UserID] = stack.Clone()
	return nil
}

func (m *Memory) LoadInstance(id string) (engine.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return engine.Instance{}, engine.ErrNotFound
	}
	return inst.Clone(), nil
}

func (m *Memory) SaveInstance(inst engine.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[inst.ID] = inst.Clone()
	return nil
}

func (m *Memory) AppendHistory(turn engine.HistoryTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[turn.UserID] = append(m.history[turn.UserID], turn)
	return nil
}

func (m *Memory) History(userID string, limit int) ([]engine.HistoryTurn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns := m.history[userID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]engine.HistoryTurn, len(turns))
	copy(out, turns)
	return out, nil
}
