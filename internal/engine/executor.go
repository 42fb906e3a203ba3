package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harborbank/concierge/internal/banking"
	"github.com/harborbank/concierge/internal/task"
)

// Outcome describes one executor step result for the caller to render.
type Outcome struct {
	Instance Instance
	// Prompt is the text to show the user next: the next step's prompt, a
	// re-prompt after invalid input, or the terminal action message.
	Prompt string
	// Options is the menu for the current step, when it has one.
	Options []task.Option
	// Reprompted is true when validation refused the input and the instance
	// is unchanged.
	Reprompted bool
	// Done is true when the instance reached a terminal status this turn.
	Done bool
}

// Executor advances a task instance through its definition's step sequence
// and invokes the business action when the final step lands.
type Executor struct {
	bank  banking.Service
	clock func() time.Time
}

// ExecutorOption customizes the executor.
type ExecutorOption func(*Executor)

// WithExecutorClock injects a deterministic clock.
func WithExecutorClock(clock func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewExecutor wires a step executor to the business-action collaborator.
func NewExecutor(bank banking.Service, opts ...ExecutorOption) (*Executor, error) {
	if bank == nil {
		return nil, fmt.Errorf("engine: banking service is required")
	}
	e := &Executor{bank: bank, clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Prompt emits the current step's prompt for an active instance, resolving
// dynamic menu options through the banking collaborator. Zero-step tasks and
// instances already past their last step run the business action immediately.
func (e *Executor) Prompt(ctx context.Context, def task.Definition, inst Instance) (Outcome, error) {
	if inst.CurrentStep >= len(def.Steps) {
		return e.complete(ctx, def, inst)
	}
	step := def.Steps[inst.CurrentStep]
	options, err := e.stepOptions(ctx, step, &inst)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Instance: inst, Prompt: step.Prompt, Options: options}, nil
}

// Advance validates user input against the current step. Valid input is
// stored and the step index moves forward; invalid input re-prompts and
// leaves the instance exactly as it was.
func (e *Executor) Advance(ctx context.Context, def task.Definition, inst Instance, raw string) (Outcome, error) {
	if inst.CurrentStep >= len(def.Steps) {
		return e.complete(ctx, def, inst)
	}
	step := def.Steps[inst.CurrentStep]

	var value string
	if step.Kind == task.KindOption {
		option, ok := matchOption(inst.PendingOptions, raw)
		if !ok {
			return Outcome{
				Instance:   inst,
				Prompt:     fmt.Sprintf("That didn't match any of the options. %s", step.Prompt),
				Options:    inst.PendingOptions,
				Reprompted: true,
			}, nil
		}
		value = option.ID
	} else {
		validated, err := step.ValidateValue(raw)
		var verr *task.ValidationError
		if errors.As(err, &verr) {
			return Outcome{
				Instance:   inst,
				Prompt:     fmt.Sprintf("That doesn't look right: %s.\n%s", verr.Hint, step.Prompt),
				Reprompted: true,
			}, nil
		}
		if err != nil {
			return Outcome{}, err
		}
		value = validated
	}

	if inst.Collected == nil {
		inst.Collected = map[string]string{}
	}
	inst.Collected[step.Name] = value
	inst.CurrentStep++
	inst.PendingOptions = nil
	inst.UpdatedAt = e.clock()

	if inst.CurrentStep >= len(def.Steps) {
		return e.complete(ctx, def, inst)
	}
	return e.Prompt(ctx, def, inst)
}

// complete invokes the business action and marks the instance Completed or
// Failed. A banking Rejection is a terminal business refusal, not an engine
// error; anything else (timeouts included) also fails the instance because a
// financial action must never be silently retried.
func (e *Executor) complete(ctx context.Context, def task.Definition, inst Instance) (Outcome, error) {
	receipt, err := e.bank.Execute(ctx, inst.UserID, inst.TaskType, inst.Collected)
	inst.UpdatedAt = e.clock()
	inst.PendingOptions = nil
	if err != nil {
		inst.Status = StatusFailed
		if rej, ok := banking.AsRejection(err); ok {
			inst.FailReason = rej.Reason
		} else {
			inst.FailReason = "the banking service could not process the request"
		}
		return Outcome{
			Instance: inst,
			Prompt:   fmt.Sprintf("I'm sorry, your %s could not be completed: %s. You can start it again whenever you're ready.", strings.ToLower(def.Title), inst.FailReason),
			Done:     true,
		}, nil
	}
	inst.Status = StatusCompleted
	inst.Reference = receipt.Reference
	return Outcome{Instance: inst, Prompt: receipt.Message, Done: true}, nil
}

func (e *Executor) stepOptions(ctx context.Context, step task.StepSpec, inst *Instance) ([]task.Option, error) {
	if step.Kind != task.KindOption {
		inst.PendingOptions = nil
		return nil, nil
	}
	options, err := e.bank.Options(ctx, inst.UserID, step.OptionsFrom)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve options for step %s: %w", step.Name, err)
	}
	inst.PendingOptions = options
	return options, nil
}

// matchOption resolves user input against a presented menu by option ID,
// 1-based position, or a case-insensitive text match.
func matchOption(options []task.Option, raw string) (task.Option, bool) {
	input := strings.ToLower(strings.TrimSpace(raw))
	if input == "" || len(options) == 0 {
		return task.Option{}, false
	}
	for _, opt := range options {
		if strings.EqualFold(opt.ID, input) {
			return opt, true
		}
	}
	for i, opt := range options {
		if input == fmt.Sprintf("%d", i+1) || input == fmt.Sprintf("option %d", i+1) {
			return opt, true
		}
	}
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt.Text), input) {
			return opt, true
		}
	}
	return task.Option{}, false
}
