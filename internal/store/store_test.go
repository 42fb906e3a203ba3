package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/harborbank/concierge/internal/engine"
	"github.com/harborbank/concierge/internal/task"
)

func backends(t *testing.T) map[string]engine.Store {
	t.Helper()
	file, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "concierge.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]engine.Store{
		"memory": NewMemory(),
		"file":   file,
		"sqlite": sqlite,
	}
}

func TestContextStackRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := backend.LoadContextStack("user123"); !errors.Is(err, engine.ErrNotFound) {
				t.Fatalf("load before save = %v, want ErrNotFound", err)
			}
			stack := engine.ContextStack{
				UserID:    "user123",
				ActiveID:  "inst-1",
				Suspended: []string{"inst-2", "inst-3"},
				UpdatedAt: at,
			}
			if err := backend.SaveContextStack(stack); err != nil {
				t.Fatalf("SaveContextStack: %v", err)
			}
			loaded, err := backend.LoadContextStack("user123")
			if err != nil {
				t.Fatalf("LoadContextStack: %v", err)
			}
			if loaded.ActiveID != "inst-1" || len(loaded.Suspended) != 2 || loaded.Suspended[0] != "inst-2" {
				t.Fatalf("loaded = %+v", loaded)
			}

			// Overwrite wins.
			stack.ActiveID = "inst-2"
			stack.Suspended = []string{"inst-3"}
			if err := backend.SaveContextStack(stack); err != nil {
				t.Fatalf("SaveContextStack overwrite: %v", err)
			}
			loaded, _ = backend.LoadContextStack("user123")
			if loaded.ActiveID != "inst-2" || len(loaded.Suspended) != 1 {
				t.Fatalf("after overwrite = %+v", loaded)
			}
		})
	}
}

func TestInstanceRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := backend.LoadInstance("missing"); !errors.Is(err, engine.ErrNotFound) {
				t.Fatalf("load missing = %v, want ErrNotFound", err)
			}
			inst := engine.Instance{
				ID:          "inst-1",
				UserID:      "user123",
				TaskType:    task.TypeLoan,
				Status:      engine.StatusSuspended,
				CurrentStep: 2,
				Collected:   map[string]string{"amount": "15000.00", "purpose": "home repairs"},
				PendingOptions: []task.Option{
					{ID: "card_001", Text: "Visa credit card ending 4567"},
				},
				CreatedAt: at,
				UpdatedAt: at.Add(time.Minute),
			}
			if err := backend.SaveInstance(inst); err != nil {
				t.Fatalf("SaveInstance: %v", err)
			}
			loaded, err := backend.LoadInstance("inst-1")
			if err != nil {
				t.Fatalf("LoadInstance: %v", err)
			}
			if loaded.TaskType != task.TypeLoan || loaded.CurrentStep != 2 {
				t.Fatalf("loaded = %+v", loaded)
			}
			if loaded.Collected["purpose"] != "home repairs" {
				t.Fatalf("collected = %v", loaded.Collected)
			}
			if len(loaded.PendingOptions) != 1 || loaded.PendingOptions[0].ID != "card_001" {
				t.Fatalf("pending options = %v", loaded.PendingOptions)
			}
		})
	}
}

func TestHistoryAppendAndLimit(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			utterances := []string{"hi", "apply for loan", "$15,000", "home repairs"}
			for i, u := range utterances {
				turn := engine.HistoryTurn{
					UserID:    "user123",
					Utterance: u,
					Reply:     "reply " + u,
					At:        base.Add(time.Duration(i) * time.Minute),
				}
				if err := backend.AppendHistory(turn); err != nil {
					t.Fatalf("AppendHistory: %v", err)
				}
			}
			// Another user's turns never bleed in.
			if err := backend.AppendHistory(engine.HistoryTurn{UserID: "other", Utterance: "x", Reply: "y", At: base}); err != nil {
				t.Fatalf("AppendHistory other: %v", err)
			}

			all, err := backend.History("user123", 0)
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(all) != 4 {
				t.Fatalf("history length = %d, want 4", len(all))
			}
			if all[0].Utterance != "hi" || all[3].Utterance != "home repairs" {
				t.Fatalf("history order wrong: %v", all)
			}

			limited, err := backend.History("user123", 2)
			if err != nil {
				t.Fatalf("History limited: %v", err)
			}
			if len(limited) != 2 || limited[0].Utterance != "$15,000" {
				t.Fatalf("limited = %v", limited)
			}

			empty, err := backend.History("nobody", 5)
			if err != nil {
				t.Fatalf("History nobody: %v", err)
			}
			if len(empty) != 0 {
				t.Fatalf("expected no history, got %v", empty)
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	first, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	stack := engine.ContextStack{UserID: "user123", ActiveID: "inst-1"}
	if err := first.SaveContextStack(stack); err != nil {
		t.Fatalf("SaveContextStack: %v", err)
	}
	if err := first.SaveInstance(engine.Instance{ID: "inst-1", UserID: "user123", TaskType: task.TypeLoan, Status: engine.StatusActive}); err != nil {
		t.Fatalf("SaveInstance: %v", err)
	}

	second, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile reopen: %v", err)
	}
	loaded, err := second.LoadContextStack("user123")
	if err != nil {
		t.Fatalf("LoadContextStack after reopen: %v", err)
	}
	if loaded.ActiveID != "inst-1" {
		t.Fatalf("loaded = %+v", loaded)
	}
	if _, err := second.LoadInstance("inst-1"); err != nil {
		t.Fatalf("LoadInstance after reopen: %v", err)
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concierge.db")
	first, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	if err := first.SaveContextStack(engine.ContextStack{UserID: "user123", ActiveID: "inst-9"}); err != nil {
		t.Fatalf("SaveContextStack: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite reopen: %v", err)
	}
	defer second.Close()
	loaded, err := second.LoadContextStack("user123")
	if err != nil {
		t.Fatalf("LoadContextStack after reopen: %v", err)
	}
	if loaded.ActiveID != "inst-9" {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestSanitizeKeepsPathsInsideDataDir(t *testing.T) {
	file, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	stack := engine.ContextStack{UserID: "../../etc/passwd"}
	if err := file.SaveContextStack(stack); err != nil {
		t.Fatalf("SaveContextStack: %v", err)
	}
	if _, err := file.LoadContextStack("../../etc/passwd"); err != nil {
		t.Fatalf("LoadContextStack: %v", err)
	}
}
