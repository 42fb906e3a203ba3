package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harborbank/concierge/internal/agent"
	"github.com/harborbank/concierge/internal/banking"
	"github.com/harborbank/concierge/internal/engine"
	"github.com/harborbank/concierge/internal/intent"
	"github.com/harborbank/concierge/internal/store"
	"github.com/harborbank/concierge/internal/task"
)

func testApp(t *testing.T) *App {
	t.Helper()
	mem := store.NewMemory()
	mgr, err := engine.NewManager(mem)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	exec, err := engine.NewExecutor(banking.NewMock())
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	ag, err := agent.New(mgr, exec, intent.NewClassifier(), task.DefaultLibrary(), mem)
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	app, err := New(ag, "user123")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	app.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return app
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(nil, "user123"); err == nil {
		t.Fatal("New accepted a nil agent")
	}
	mem := store.NewMemory()
	mgr, _ := engine.NewManager(mem)
	exec, _ := engine.NewExecutor(banking.NewMock())
	ag, _ := agent.New(mgr, exec, intent.NewClassifier(), task.DefaultLibrary(), mem)
	if _, err := New(ag, ""); err == nil {
		t.Fatal("New accepted an empty user id")
	}
}

func TestGreetingShownOnStartup(t *testing.T) {
	app := testApp(t)
	view := app.View()
	if !strings.Contains(view, "banking concierge") {
		t.Fatalf("view missing greeting:\n%s", view)
	}
	if !strings.Contains(view, "no task in progress") {
		t.Fatalf("view missing idle status:\n%s", view)
	}
}

func TestTurnRoundTrip(t *testing.T) {
	app := testApp(t)
	app.input.SetValue("apply for loan")

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter did not dispatch a turn")
	}
	msg := cmd()
	reply, ok := msg.(replyMsg)
	if !ok {
		t.Fatalf("cmd returned %T, want replyMsg", msg)
	}
	app.Update(reply)

	view := app.View()
	if !strings.Contains(view, "How much would you like to borrow") {
		t.Fatalf("view missing loan prompt:\n%s", view)
	}
	if !strings.Contains(view, "loan application") {
		t.Fatalf("status bar missing active task:\n%s", view)
	}
	if !strings.Contains(view, "You:") {
		t.Fatalf("transcript missing the user's line:\n%s", view)
	}
}

func TestEmptyInputIgnored(t *testing.T) {
	app := testApp(t)
	app.input.SetValue("   ")
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatal("blank input dispatched a turn")
	}
}

func TestMenuOptionsRendered(t *testing.T) {
	app := testApp(t)
	app.input.SetValue("block my card")
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	reply := cmd().(replyMsg)
	app.Update(reply)

	view := app.View()
	if !strings.Contains(view, "1.") || !strings.Contains(view, "ending in") {
		t.Fatalf("view missing the card menu:\n%s", view)
	}
}
