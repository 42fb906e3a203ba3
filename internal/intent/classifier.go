package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/harborbank/concierge/internal/nlu"
	"github.com/harborbank/concierge/internal/task"
)

// taskRule maps trigger phrases to a task type. Rules are evaluated in order;
// card application sits before the loan rule so "apply for new card" is never
// swallowed by the looser loan phrases.
type taskRule struct {
	taskType task.Type
	phrases  []string
}

var defaultRules = []taskRule{
	{task.TypeCardApply, []string{
		"apply for new card", "new card application", "apply new card", "get new card", "apply for a card",
	}},
	{task.TypeCardBlock, []string{
		"block card", "block my card", "block the card", "lost my card", "card stolen", "freeze my card",
	}},
	{task.TypeLimitChange, []string{
		"change limit", "change my limit", "credit limit", "increase limit", "raise my limit", "modify limit", "limit change",
	}},
	{task.TypeBalance, []string{
		"balance", "account balance", "my balance", "show balance", "what's my balance", "whats my balance", "how much money",
	}},
	{task.TypeLoan, []string{
		"apply for loan", "apply for a loan", "loan application", "new loan", "apply loan", "borrow money", "need money", "loan",
	}},
}

var cancelPhrases = []string{
	"cancel", "never mind", "nevermind", "stop", "abort", "forget it", "quit",
}

var resumePhrases = []string{
	"continue", "resume", "go back", "pick up where i left off", "where were we",
}

// switchPattern captures "continue/resume/switch to/back to <something>".
var switchPattern = regexp.MustCompile(`^(?:continue|resume|switch to|go back to|back to)\s+(?:my\s+|the\s+)?(.+)$`)

var amountPattern = regexp.MustCompile(`^\$?[0-9][0-9,]*(?:\.[0-9]{1,2})?$`)

// Classifier resolves utterances against the phrase table first and consults
// the external collaborator only when no rule applies. The collaborator is
// optional; without it classification is purely keyword driven.
type Classifier struct {
	rules     []taskRule
	collab    nlu.Classifier
	threshold float64
}

// Option customizes the classifier.
type Option func(*Classifier)

// WithCollaborator wires the external NLU service.
func WithCollaborator(c nlu.Classifier) Option {
	return func(cl *Classifier) { cl.collab = c }
}

// WithConfidenceThreshold sets the minimum collaborator confidence accepted
// before falling back to Unrecognized.
func WithConfidenceThreshold(threshold float64) Option {
	return func(cl *Classifier) {
		if threshold > 0 {
			cl.threshold = threshold
		}
	}
}

// NewClassifier builds a classifier over the default phrase table.
func NewClassifier(opts ...Option) *Classifier {
	cl := &Classifier{rules: defaultRules, threshold: 0.7}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// Classify maps an utterance plus the current state snapshot to an intent.
// It never returns an error: collaborator failures degrade to the keyword
// path, and the keyword path degrades to Unrecognized.
func (cl *Classifier) Classify(ctx context.Context, utterance string, snap Snapshot) Intent {
	normalized := normalize(utterance)
	if normalized == "" {
		return Intent{Kind: KindUnrecognized, Value: utterance}
	}

	// Bare numbers while a task is in flight are always step input, never a
	// trigger phrase.
	if snap.HasActive && amountPattern.MatchString(normalized) {
		return Intent{Kind: KindProvideValue, Value: strings.TrimSpace(utterance)}
	}
	if matchesAny(normalized, cancelPhrases) {
		return Intent{Kind: KindCancelTask}
	}
	if matchesWhole(normalized, resumePhrases) {
		return Intent{Kind: KindResumeTask}
	}
	if t, ok := cl.matchSwitchTarget(normalized); ok {
		return cl.taskIntent(t, snap)
	}
	if t, ok := cl.matchTaskPhrase(normalized); ok {
		return cl.taskIntent(t, snap)
	}
	if id, ok := matchMenuOption(snap.MenuOptions, normalized); ok {
		return Intent{Kind: KindSelectOption, OptionID: id}
	}
	if snap.HasActive {
		return Intent{Kind: KindProvideValue, Value: strings.TrimSpace(utterance)}
	}
	if verdict, ok := cl.askCollaborator(ctx, utterance, snap); ok {
		return verdict
	}
	return Intent{Kind: KindUnrecognized, Value: utterance}
}

// taskIntent decides what a recognized task type means in context: working
// the active task, returning to a suspended one, or starting fresh.
func (cl *Classifier) taskIntent(t task.Type, snap Snapshot) Intent {
	switch {
	case snap.HasActive && snap.ActiveType == t:
		return Intent{Kind: KindContinue, TaskType: t}
	case snap.suspendedHas(t):
		return Intent{Kind: KindSwitchTask, TaskType: t}
	case snap.HasActive:
		return Intent{Kind: KindSwitchTask, TaskType: t}
	default:
		return Intent{Kind: KindStartTask, TaskType: t}
	}
}

func (cl *Classifier) matchSwitchTarget(normalized string) (task.Type, bool) {
	m := switchPattern.FindStringSubmatch(normalized)
	if m == nil {
		return "", false
	}
	return cl.matchTaskPhrase(m[1])
}

func (cl *Classifier) matchTaskPhrase(normalized string) (task.Type, bool) {
	for _, rule := range cl.rules {
		for _, phrase := range rule.phrases {
			if containsPhrase(normalized, phrase) {
				return rule.taskType, true
			}
		}
	}
	return "", false
}

// askCollaborator is the only non-deterministic branch and is reached only
// when every keyword rule missed with no task in flight.
func (cl *Classifier) askCollaborator(ctx context.Context, utterance string, snap Snapshot) (Intent, bool) {
	if cl.collab == nil {
		return Intent{}, false
	}
	result, err := cl.collab.Classify(ctx, utterance, contextHint(snap))
	if err != nil || result.Confidence < cl.threshold {
		return Intent{}, false
	}
	switch result.Intent {
	case nlu.IntentStartTask:
		if result.TaskType == "" {
			return Intent{}, false
		}
		return cl.taskIntent(result.TaskType, snap), true
	case nlu.IntentResumeTask:
		return Intent{Kind: KindResumeTask}, true
	case nlu.IntentCancelTask:
		return Intent{Kind: KindCancelTask}, true
	default:
		return Intent{}, false
	}
}

func contextHint(snap Snapshot) string {
	if snap.HasActive {
		return fmt.Sprintf("active:%s suspended:%d", snap.ActiveType, len(snap.SuspendedTypes))
	}
	if len(snap.SuspendedTypes) > 0 {
		return fmt.Sprintf("idle suspended:%d", len(snap.SuspendedTypes))
	}
	return "idle"
}

// matchMenuOption resolves a selection the same way the executor will:
// by ID, 1-based position, or text fragment.
func matchMenuOption(options []task.Option, normalized string) (string, bool) {
	if len(options) == 0 {
		return "", false
	}
	for _, opt := range options {
		if strings.EqualFold(opt.ID, normalized) {
			return opt.ID, true
		}
	}
	for i, opt := range options {
		if normalized == fmt.Sprintf("%d", i+1) || normalized == fmt.Sprintf("option %d", i+1) {
			return opt.ID, true
		}
	}
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt.Text), normalized) {
			return opt.ID, true
		}
	}
	return "", false
}

func normalize(utterance string) string {
	out := strings.ToLower(strings.TrimSpace(utterance))
	out = strings.Trim(out, ".!?")
	return strings.Join(strings.Fields(out), " ")
}

func matchesAny(normalized string, phrases []string) bool {
	for _, phrase := range phrases {
		if containsPhrase(normalized, phrase) {
			return true
		}
	}
	return false
}

// matchesWhole requires the utterance to be exactly one of the phrases, so a
// bare "continue" resumes but "continue loan" routes through the switch rule.
func matchesWhole(normalized string, phrases []string) bool {
	for _, phrase := range phrases {
		if normalized == phrase {
			return true
		}
	}
	return false
}

// containsPhrase matches on word boundaries so "loan" does not fire inside
// "standalone".
func containsPhrase(normalized, phrase string) bool {
	idx := strings.Index(normalized, phrase)
	for idx >= 0 {
		before := idx == 0 || normalized[idx-1] == ' '
		end := idx + len(phrase)
		after := end == len(normalized) || normalized[end] == ' '
		if before && after {
			return true
		}
		next := strings.Index(normalized[idx+1:], phrase)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}
