// Package tui is the terminal chat client. It uses bubbletea's Elm
// architecture: the App model holds all state, Update folds messages into a
// new model, and View renders the transcript, menu options and status bar.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harborbank/concierge/internal/agent"
	"github.com/harborbank/concierge/internal/task"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	optionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	activeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// replyMsg carries a completed turn back into the update loop.
type replyMsg struct {
	utterance string
	reply     agent.Reply
}

// transcriptLine is one rendered entry of the conversation.
type transcriptLine struct {
	speaker string
	text    string
}

// App is the chat application model.
type App struct {
	agent  *agent.Agent
	userID string

	input      textinput.Model
	view       viewport.Model
	transcript []transcriptLine
	options    []task.Option
	status     agent.StatusSnapshot
	waiting    bool
	ready      bool
	err        error

	width  int
	height int
}

// New builds the chat model for the given user session.
func New(ag *agent.Agent, userID string) (*App, error) {
	if ag == nil {
		return nil, fmt.Errorf("tui: agent is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("tui: user id is required")
	}
	input := textinput.New()
	input.Placeholder = "Ask about loans, cards or your balance..."
	input.Prompt = "> "
	input.CharLimit = 256
	input.Focus()

	return &App{
		agent:  ag,
		userID: userID,
		input:  input,
		transcript: []transcriptLine{{
			speaker: "concierge",
			text:    "Hello! I'm your banking concierge. I can help with loan applications, card services and balance inquiries.",
		}},
	}, nil
}

// Init is part of tea.Model.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update is part of tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		viewHeight := msg.Height - 5
		if viewHeight < 3 {
			viewHeight = 3
		}
		if !a.ready {
			a.view = viewport.New(msg.Width, viewHeight)
			a.ready = true
		} else {
			a.view.Width = msg.Width
			a.view.Height = viewHeight
		}
		a.input.Width = msg.Width - 4
		a.refreshTranscript()
		return a, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return a, tea.Quit
		case tea.KeyEnter:
			if a.waiting {
				return a, nil
			}
			utterance := strings.TrimSpace(a.input.Value())
			if utterance == "" {
				return a, nil
			}
			a.input.Reset()
			a.waiting = true
			a.transcript = append(a.transcript, transcriptLine{speaker: "you", text: utterance})
			a.refreshTranscript()
			return a, a.sendTurn(utterance)
		}

	case replyMsg:
		a.waiting = false
		a.options = msg.reply.Options
		a.status = msg.reply.Status
		a.transcript = append(a.transcript, transcriptLine{speaker: "concierge", text: msg.reply.Text})
		a.refreshTranscript()
		return a, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)
	a.view, cmd = a.view.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

// sendTurn runs the turn off the update loop so typing stays responsive.
func (a *App) sendTurn(utterance string) tea.Cmd {
	return func() tea.Msg {
		reply := a.agent.HandleTurn(context.Background(), a.userID, utterance, "")
		return replyMsg{utterance: utterance, reply: reply}
	}
}

// View is part of tea.Model.
func (a *App) View() string {
	if !a.ready {
		return "starting..."
	}
	var b strings.Builder
	b.WriteString(a.view.View())
	b.WriteString("\n")
	b.WriteString(a.statusLine())
	b.WriteString("\n")
	if a.waiting {
		b.WriteString(statusStyle.Render("thinking..."))
	} else {
		b.WriteString(a.input.View())
	}
	b.WriteString("\n")
	b.WriteString(statusStyle.Render("enter to send, esc to quit"))
	return b.String()
}

func (a *App) statusLine() string {
	if a.err != nil {
		return errorStyle.Render(a.err.Error())
	}
	if a.status.Idle || a.status.ActiveTitle == "" {
		return statusStyle.Render("no task in progress")
	}
	line := activeStyle.Render(a.status.ActiveTitle) +
		statusStyle.Render(fmt.Sprintf(" (step %d)", a.status.ActiveStep+1))
	if n := len(a.status.Suspended); n > 0 {
		line += statusStyle.Render(fmt.Sprintf("  |  %d on hold", n))
	}
	return line
}

func (a *App) refreshTranscript() {
	if !a.ready {
		return
	}
	var b strings.Builder
	for _, line := range a.transcript {
		switch line.speaker {
		case "you":
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(line.text)
		default:
			b.WriteString(assistantStyle.Render("Concierge: "))
			b.WriteString(line.text)
		}
		b.WriteString("\n\n")
	}
	if len(a.options) > 0 {
		for i, opt := range a.options {
			b.WriteString(optionStyle.Render(fmt.Sprintf("  %d. %s", i+1, opt.Text)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	a.view.SetContent(lipgloss.NewStyle().Width(a.view.Width).Render(b.String()))
	a.view.GotoBottom()
}
