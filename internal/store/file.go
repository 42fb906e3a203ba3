package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harborbank/concierge/internal/engine"
)

// File persists state as JSON documents under a data directory:
//
//	contexts/<user>.json    one context stack per user
//	instances/<id>.json     one task instance per file
//	history/<user>.jsonl    append-only turn log, one JSON object per line
//
// Writes are whole-file replacements, so each record is durable on its own.
type File struct {
	mu   sync.Mutex
	root string
}

// NewFile creates the data directory layout if needed.
func NewFile(root string) (*File, error) {
	if root == "" {
		return nil, fmt.Errorf("store: data directory is required")
	}
	for _, sub := range []string{"contexts", "instances", "history"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s directory: %w", sub, err)
		}
	}
	return &File{root: root}, nil
}

func (f *File) LoadContextStack(userID string) (engine.ContextStack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stack engine.ContextStack
	if err := f.readJSON(f.contextPath(userID), &stack); err != nil {
		return engine.ContextStack{}, err
	}
	return stack, nil
}

func (f *File) SaveContextStack(stack engine.ContextStack) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeJSON(f.contextPath(stack.UserID), stack)
}

func (f *File) LoadInstance(id string) (engine.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var inst engine.Instance
	if err := f.readJSON(f.instancePath(id), &inst); err != nil {
		return engine.Instance{}, err
	}
	return inst, nil
}

func (f *File) SaveInstance(inst engine.Instance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeJSON(f.instancePath(inst.ID), inst)
}

func (f *File) AppendHistory(turn engine.HistoryTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := filepath.Join(f.root, "history", sanitize(turn.UserID)+".jsonl")
	handle, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: open history for %s: %w", turn.UserID, err)
	}
	defer handle.Close()
	encoded, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("store: encode history turn: %w", err)
	}
	if _, err := handle.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("store: append history for %s: %w", turn.UserID, err)
	}
	return nil
}

func (f *File) History(userID string, limit int) ([]engine.HistoryTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := filepath.Join(f.root, "history", sanitize(userID)+".jsonl")
	handle, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: open history for %s: %w", userID, err)
	}
	defer handle.Close()

	var turns []engine.HistoryTurn
	scanner := bufio.NewScanner(handle)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var turn engine.HistoryTurn
		if err := json.Unmarshal([]byte(line), &turn); err != nil {
			// A torn trailing line from a crashed append is skipped, not fatal.
			continue
		}
		turns = append(turns, turn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: read history for %s: %w", userID, err)
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (f *File) contextPath(userID string) string {
	return filepath.Join(f.root, "contexts", sanitize(userID)+".json")
}

func (f *File) instancePath(id string) string {
	return filepath.Join(f.root, "instances", sanitize(id)+".json")
}

func (f *File) readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return engine.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("store: decode %s: %w", path, err)
	}
	return nil
}

func (f *File) writeJSON(path string, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	return nil
}

// sanitize keeps identifiers filesystem-safe.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}
