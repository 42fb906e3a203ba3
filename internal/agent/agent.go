// Package agent exposes the single conversational entry point. Each turn is
// classified, applied to the user's context stack, executed against the
// active workflow and durably persisted before the reply is returned.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harborbank/concierge/internal/engine"
	"github.com/harborbank/concierge/internal/intent"
	"github.com/harborbank/concierge/internal/logbook"
	"github.com/harborbank/concierge/internal/task"
)

// Reply is what the presentation layer renders for one turn.
type Reply struct {
	Text    string
	Options []task.Option
	Status  StatusSnapshot
}

// StatusSnapshot summarizes the user's stack after the turn.
type StatusSnapshot struct {
	Idle        bool
	ActiveType  task.Type
	ActiveTitle string
	ActiveStep  int
	Suspended   []task.Type
}

// Agent orchestrates one conversational turn end to end.
type Agent struct {
	manager    *engine.Manager
	exec       *engine.Executor
	classifier *intent.Classifier
	library    *task.Library
	store      engine.Store
	log        *logbook.Logbook
	fallback   fallbackRouter
	clock      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// AgentOption customizes the agent.
type AgentOption func(*Agent)

// WithLogbook attaches the operational log.
func WithLogbook(log *logbook.Logbook) AgentOption {
	return func(a *Agent) { a.log = log }
}

// WithAgentClock injects a deterministic clock.
func WithAgentClock(clock func() time.Time) AgentOption {
	return func(a *Agent) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// New wires the agent. All collaborators are required except the logbook.
func New(manager *engine.Manager, exec *engine.Executor, classifier *intent.Classifier, library *task.Library, store engine.Store, opts ...AgentOption) (*Agent, error) {
	if manager == nil || exec == nil || classifier == nil || library == nil || store == nil {
		return nil, fmt.Errorf("agent: manager, executor, classifier, library and store are all required")
	}
	a := &Agent{
		manager:    manager,
		exec:       exec,
		classifier: classifier,
		library:    library,
		store:      store,
		fallback:   fallbackRouter{library: library},
		clock:      time.Now,
		locks:      map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// HandleTurn processes one utterance for one user. Turns for the same user
// are serialized; turns for different users run independently. It never
// returns an error: every failure is folded into the reply text, and state is
// persisted before the reply is handed back so a crash after the response
// cannot lose progress.
func (a *Agent) HandleTurn(ctx context.Context, userID, utterance, selection string) Reply {
	lock := a.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := a.manager.Begin(userID)
	if err != nil {
		a.log.Appendf(logbook.LevelError, "begin turn for %s: %v", userID, err)
		return a.unavailableReply()
	}

	reply, err := a.processTurn(ctx, sess, utterance, selection)
	if err != nil {
		a.log.Appendf(logbook.LevelError, "process turn for %s: %v", userID, err)
		return a.troubleReply()
	}
	if err := sess.Commit(); err != nil {
		a.log.Appendf(logbook.LevelError, "commit turn for %s: %v", userID, err)
		return a.unavailableReply()
	}
	reply.Status = a.snapshot(sess)

	turn := engine.HistoryTurn{UserID: userID, Utterance: utterance, Reply: reply.Text, At: a.clock()}
	if err := a.store.AppendHistory(turn); err != nil {
		a.log.Appendf(logbook.LevelWarn, "append history for %s: %v", userID, err)
	}
	return reply
}

// History returns the user's most recent turns, oldest first.
func (a *Agent) History(userID string, limit int) ([]engine.HistoryTurn, error) {
	return a.store.History(userID, limit)
}

func (a *Agent) processTurn(ctx context.Context, sess *engine.Session, utterance, selection string) (Reply, error) {
	snap, err := a.intentSnapshot(sess)
	if err != nil {
		return Reply{}, err
	}

	var verdict intent.Intent
	if selection != "" {
		verdict = intent.Intent{Kind: intent.KindSelectOption, OptionID: selection}
	} else {
		verdict = a.classifier.Classify(ctx, utterance, snap)
	}
	a.log.Appendf(logbook.LevelInfo, "turn: intent=%s task=%s", verdict.Kind, verdict.TaskType)

	switch verdict.Kind {
	case intent.KindStartTask, intent.KindSwitchTask:
		return a.startTask(ctx, sess, verdict.TaskType)
	case intent.KindContinue:
		return a.repromptActive(ctx, sess, "")
	case intent.KindResumeTask:
		return a.resumeTask(ctx, sess)
	case intent.KindCancelTask:
		return a.cancelTask(ctx, sess)
	case intent.KindProvideValue:
		return a.advanceActive(ctx, sess, verdict.Value)
	case intent.KindSelectOption:
		return a.advanceActive(ctx, sess, verdict.OptionID)
	default:
		return a.unrecognized(ctx, sess, snap)
	}
}

// startTask begins or switches to a task, suspending whatever was active.
func (a *Agent) startTask(ctx context.Context, sess *engine.Session, t task.Type) (Reply, error) {
	def, ok := a.library.Get(t)
	if !ok {
		return Reply{Text: "I can't help with that yet.\n\n" + a.fallback.menuText()}, nil
	}

	prev, hadActive, err := sess.Active()
	if err != nil {
		return Reply{}, err
	}
	inst, err := sess.Start(t)
	if err != nil {
		return Reply{}, err
	}

	var prefix string
	if hadActive && prev.TaskType != t {
		prefix = fmt.Sprintf("I've put your %s on hold; say \"continue\" to get back to it.\n\n", a.title(prev.TaskType))
	}
	if inst.CurrentStep > 0 || len(inst.Collected) > 0 {
		prefix += fmt.Sprintf("Picking your %s back up where we left off.\n\n", strings.ToLower(def.Title))
	}

	outcome, err := a.exec.Prompt(ctx, def, inst)
	if err != nil {
		return Reply{}, err
	}
	return a.renderOutcome(ctx, sess, outcome, prefix)
}

// resumeTask reactivates the most recently suspended task.
func (a *Agent) resumeTask(ctx context.Context, sess *engine.Session) (Reply, error) {
	inst, err := sess.Resume()
	if errors.Is(err, engine.ErrNothingSuspended) {
		return Reply{Text: "There's nothing on hold to go back to.\n\n" + a.fallback.menuText()}, nil
	}
	if errors.Is(err, engine.ErrNotFound) {
		return Reply{Text: "I couldn't find that task anymore, so I've left everything as it was. " +
			"You can start it again whenever you like.\n\n" + a.fallback.menuText()}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	def, ok := a.library.Get(inst.TaskType)
	if !ok {
		return Reply{}, fmt.Errorf("agent: no definition for resumed task type %s", inst.TaskType)
	}
	outcome, err := a.exec.Prompt(ctx, def, inst)
	if err != nil {
		return Reply{}, err
	}
	prefix := fmt.Sprintf("Back to your %s.\n\n", strings.ToLower(def.Title))
	return a.renderOutcome(ctx, sess, outcome, prefix)
}

// cancelTask abandons the active task and surfaces whatever pops next.
func (a *Agent) cancelTask(ctx context.Context, sess *engine.Session) (Reply, error) {
	active, hadActive, err := sess.Active()
	if err != nil {
		return Reply{}, err
	}
	if !hadActive {
		return Reply{Text: "There's nothing in progress to cancel.\n\n" + a.fallback.menuText()}, nil
	}
	next, ok, err := sess.Cancel()
	if err != nil {
		return Reply{}, err
	}
	text := fmt.Sprintf("Okay, I've cancelled your %s.", a.title(active.TaskType))
	if !ok {
		return Reply{Text: text + " " + a.fallback.menuHint()}, nil
	}
	def, found := a.library.Get(next.TaskType)
	if !found {
		return Reply{}, fmt.Errorf("agent: no definition for popped task type %s", next.TaskType)
	}
	outcome, err := a.exec.Prompt(ctx, def, next)
	if err != nil {
		return Reply{}, err
	}
	reply, err := a.renderOutcome(ctx, sess, outcome, fmt.Sprintf("Back to your %s.\n\n", strings.ToLower(def.Title)))
	if err != nil {
		return Reply{}, err
	}
	reply.Text = text + "\n\n" + reply.Text
	return reply, nil
}

// advanceActive feeds step input to the active task.
func (a *Agent) advanceActive(ctx context.Context, sess *engine.Session, value string) (Reply, error) {
	active, ok, err := sess.Active()
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return Reply{Text: "There's no task in progress right now.\n\n" + a.fallback.menuText()}, nil
	}
	def, found := a.library.Get(active.TaskType)
	if !found {
		return Reply{}, fmt.Errorf("agent: no definition for active task type %s", active.TaskType)
	}
	outcome, err := a.exec.Advance(ctx, def, active, value)
	if err != nil {
		return Reply{}, err
	}
	return a.renderOutcome(ctx, sess, outcome, "")
}

// repromptActive re-issues the active step's prompt, optionally prefixed.
func (a *Agent) repromptActive(ctx context.Context, sess *engine.Session, prefix string) (Reply, error) {
	active, ok, err := sess.Active()
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return Reply{Text: a.fallback.menuText()}, nil
	}
	def, found := a.library.Get(active.TaskType)
	if !found {
		return Reply{}, fmt.Errorf("agent: no definition for active task type %s", active.TaskType)
	}
	outcome, err := a.exec.Prompt(ctx, def, active)
	if err != nil {
		return Reply{}, err
	}
	return a.renderOutcome(ctx, sess, outcome, prefix)
}

// unrecognized is the fallback path: re-prompt when a task is in flight,
// otherwise show the top-level menu.
func (a *Agent) unrecognized(ctx context.Context, sess *engine.Session, snap intent.Snapshot) (Reply, error) {
	if snap.HasActive {
		return a.repromptActive(ctx, sess, "I didn't quite catch that, so let's keep going.\n\n")
	}
	return Reply{Text: a.fallback.menuText()}, nil
}

// renderOutcome applies an executor outcome to the stack. Terminal outcomes
// evict the instance and fall through to whichever suspended task pops next;
// everything else records progress and shows the next prompt.
func (a *Agent) renderOutcome(ctx context.Context, sess *engine.Session, outcome engine.Outcome, prefix string) (Reply, error) {
	var parts []string
	if prefix != "" {
		parts = append(parts, strings.TrimRight(prefix, "\n"))
	}
	for outcome.Done {
		parts = append(parts, outcome.Prompt)
		next, ok, err := sess.Finish(outcome.Instance)
		if err != nil {
			return Reply{}, err
		}
		if !ok {
			return Reply{Text: strings.Join(parts, "\n\n")}, nil
		}
		def, found := a.library.Get(next.TaskType)
		if !found {
			return Reply{}, fmt.Errorf("agent: no definition for popped task type %s", next.TaskType)
		}
		parts = append(parts, fmt.Sprintf("Back to your %s.", strings.ToLower(def.Title)))
		outcome, err = a.exec.Prompt(ctx, def, next)
		if err != nil {
			return Reply{}, err
		}
	}
	sess.Put(outcome.Instance)
	parts = append(parts, outcome.Prompt)
	return Reply{
		Text:    strings.Join(parts, "\n\n"),
		Options: outcome.Options,
	}, nil
}

func (a *Agent) intentSnapshot(sess *engine.Session) (intent.Snapshot, error) {
	var snap intent.Snapshot
	active, ok, err := sess.Active()
	if err != nil {
		return intent.Snapshot{}, err
	}
	if ok {
		snap.HasActive = true
		snap.ActiveType = active.TaskType
		snap.MenuOptions = active.PendingOptions
	}
	suspended, err := sess.Suspended()
	if err != nil {
		return intent.Snapshot{}, err
	}
	for _, inst := range suspended {
		snap.SuspendedTypes = append(snap.SuspendedTypes, inst.TaskType)
	}
	return snap, nil
}

func (a *Agent) snapshot(sess *engine.Session) StatusSnapshot {
	var snap StatusSnapshot
	active, ok, err := sess.Active()
	if err == nil && ok {
		snap.ActiveType = active.TaskType
		snap.ActiveTitle = a.title(active.TaskType)
		snap.ActiveStep = active.CurrentStep
	}
	suspended, err := sess.Suspended()
	if err == nil {
		for _, inst := range suspended {
			snap.Suspended = append(snap.Suspended, inst.TaskType)
		}
	}
	snap.Idle = !ok && len(snap.Suspended) == 0
	return snap
}

func (a *Agent) title(t task.Type) string {
	if def, ok := a.library.Get(t); ok {
		return strings.ToLower(def.Title)
	}
	return string(t)
}

func (a *Agent) userLock(userID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[userID] = lock
	}
	return lock
}

func (a *Agent) unavailableReply() Reply {
	return Reply{Text: "I'm having trouble reaching my records right now, so I haven't changed anything. Please try again in a moment."}
}

func (a *Agent) troubleReply() Reply {
	return Reply{Text: "Something went wrong on my end and I've left your tasks untouched. Please try that again."}
}
