// Command concierge runs the terminal banking assistant.
//
// Flow:
// 1. Load environment and .concierge/config.yaml from the working directory
// 2. Open the configured state store and task definition catalog
// 3. Wire the classifier, workflow executor and agent
// 4. Launch the chat TUI
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/harborbank/concierge/internal/agent"
	"github.com/harborbank/concierge/internal/banking"
	"github.com/harborbank/concierge/internal/config"
	"github.com/harborbank/concierge/internal/engine"
	"github.com/harborbank/concierge/internal/intent"
	"github.com/harborbank/concierge/internal/logbook"
	"github.com/harborbank/concierge/internal/nlu"
	"github.com/harborbank/concierge/internal/store"
	"github.com/harborbank/concierge/internal/task"
	"github.com/harborbank/concierge/internal/tui"
)

func main() {
	userFlag := flag.String("user", "", "account to chat as (overrides config)")
	flag.Parse()

	// A local .env can carry CONCIERGE_NLU_KEY; absence is fine.
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		fatal("get working directory: %v", err)
	}
	if err := config.InitConciergeDir(cwd); err != nil {
		fatal("initialize %s: %v", config.ConciergeDir, err)
	}
	cfg, err := config.New(cwd)
	if err != nil {
		fatal("load configuration: %v", err)
	}

	log, err := logbook.New(cfg.LogPath())
	if err != nil {
		fatal("open logbook: %v", err)
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		fatal("open %s store: %v", cfg.StoreBackend(), err)
	}
	defer closeStore()

	library := task.DefaultLibrary()
	if err := library.LoadDir(cfg.TasksDir()); err != nil {
		fatal("load task definitions: %v", err)
	}

	classifier := buildClassifier(cfg, log)

	manager, err := engine.NewManager(st)
	if err != nil {
		fatal("build stack manager: %v", err)
	}
	executor, err := engine.NewExecutor(banking.NewMock())
	if err != nil {
		fatal("build step executor: %v", err)
	}
	ag, err := agent.New(manager, executor, classifier, library, st, agent.WithLogbook(log))
	if err != nil {
		fatal("build agent: %v", err)
	}

	userID := cfg.DefaultUser()
	if *userFlag != "" {
		userID = *userFlag
	}
	app, err := tui.New(ag, userID)
	if err != nil {
		fatal("build chat ui: %v", err)
	}

	log.Appendf(logbook.LevelInfo, "concierge started: store=%s user=%s nlu=%v",
		cfg.StoreBackend(), userID, cfg.NLUEndpoint() != "")
	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		fatal("run chat ui: %v", err)
	}
}

// openStore builds the configured persistence backend and returns a cleanup
// function for backends that hold resources.
func openStore(cfg *config.Config) (engine.Store, func(), error) {
	switch cfg.StoreBackend() {
	case "sqlite":
		st, err := store.NewSQLite(cfg.SQLitePath())
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "file":
		st, err := store.NewFile(cfg.DataDir())
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	case "memory":
		return store.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.StoreBackend())
	}
}

// buildClassifier wires the external NLU collaborator when an endpoint is
// configured; otherwise classification is keyword-only.
func buildClassifier(cfg *config.Config, log *logbook.Logbook) *intent.Classifier {
	opts := []intent.Option{intent.WithConfidenceThreshold(cfg.NLUThreshold())}
	if endpoint := cfg.NLUEndpoint(); endpoint != "" {
		client, err := nlu.NewClient(endpoint,
			nlu.WithAPIKey(cfg.NLUKey()),
			nlu.WithModel(cfg.NLUModel()),
			nlu.WithTimeout(cfg.NLUTimeout()),
		)
		if err != nil {
			log.Appendf(logbook.LevelWarn, "nlu disabled: %v", err)
		} else {
			opts = append(opts, intent.WithCollaborator(client))
		}
	}
	return intent.NewClassifier(opts...)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "concierge: "+format+"\n", args...)
	os.Exit(1)
}
