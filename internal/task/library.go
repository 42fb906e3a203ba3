package task

import (
	"fmt"
	"sort"
)

// Library is the immutable registry of task definitions, keyed by type.
type Library struct {
	defs map[Type]Definition
}

// NewLibrary builds a library from the given definitions.
func NewLibrary(defs ...Definition) (*Library, error) {
	lib := &Library{defs: map[Type]Definition{}}
	for _, def := range defs {
		if err := lib.register(def); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

// DefaultLibrary returns the built-in banking task catalog.
func DefaultLibrary() *Library {
	lib, err := NewLibrary(Builtins()...)
	if err != nil {
		panic(fmt.Sprintf("task: built-in definitions invalid: %v", err))
	}
	return lib
}

func (l *Library) register(def Definition) error {
	normalized, err := def.Normalized()
	if err != nil {
		return err
	}
	if _, exists := l.defs[normalized.Type]; exists {
		return fmt.Errorf("task: duplicate definition for type %s", normalized.Type)
	}
	l.defs[normalized.Type] = normalized
	return nil
}

// Override replaces or adds a definition, used when YAML files customize the
// built-in catalog at startup.
func (l *Library) Override(def Definition) error {
	normalized, err := def.Normalized()
	if err != nil {
		return err
	}
	l.defs[normalized.Type] = normalized
	return nil
}

// Get returns the definition for a task type.
func (l *Library) Get(t Type) (Definition, bool) {
	def, ok := l.defs[t]
	if !ok {
		return Definition{}, false
	}
	return def.Clone(), true
}

// Types returns the registered task types in stable order.
func (l *Library) Types() []Type {
	out := make([]Type, 0, len(l.defs))
	for t := range l.defs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Titles returns type -> display title for menu rendering.
func (l *Library) Titles() map[Type]string {
	out := make(map[Type]string, len(l.defs))
	for t, def := range l.defs {
		out[t] = def.Title
	}
	return out
}

// Builtins declares the default banking workflows. Step sequences mirror the
// bank's intake flows: loans collect amount, purpose and income; card flows
// drive dynamic selection menus; balance inquiry needs no input at all.
func Builtins() []Definition {
	return []Definition{
		{
			Type:  TypeLoan,
			Title: "Loan application",
			Steps: []StepSpec{
				{
					Name:     "amount",
					Prompt:   "How much would you like to borrow? (Minimum: $1,000, Maximum: $50,000)",
					Kind:     KindAmount,
					Min:      1000,
					Max:      50000,
					Hint:     "please provide a loan amount between $1,000 and $50,000, for example $15,000",
					Required: true,
				},
				{
					Name:     "purpose",
					Prompt:   "What will you use this loan for? (e.g. Home Improvement, Debt Consolidation, Auto Purchase, Medical Expenses)",
					Kind:     KindText,
					Hint:     "please describe the purpose, for example 'home renovation' or 'debt consolidation'",
					Required: true,
				},
				{
					Name:     "income",
					Prompt:   "What is your annual gross income? This helps determine your eligibility and interest rate.",
					Kind:     KindIncome,
					Hint:     "please provide your annual gross income, for example $75,000",
					Required: true,
				},
			},
		},
		{
			Type:  TypeCardBlock,
			Title: "Block a card",
			Steps: []StepSpec{
				{
					Name:        "card",
					Prompt:      "Here are your cards. Please select which card you'd like to block:",
					Kind:        KindOption,
					OptionsFrom: "cards",
					Required:    true,
				},
			},
		},
		{
			Type:  TypeCardApply,
			Title: "Apply for a new card",
			Steps: []StepSpec{
				{
					Name:        "card_type",
					Prompt:      "What kind of card would you like to apply for?",
					Kind:        KindOption,
					OptionsFrom: "card_types",
					Required:    true,
				},
				{
					Name:        "brand",
					Prompt:      "Which brand would you prefer?",
					Kind:        KindOption,
					OptionsFrom: "card_brands",
					Required:    true,
				},
			},
		},
		{
			Type:  TypeLimitChange,
			Title: "Change a credit limit",
			Steps: []StepSpec{
				{
					Name:        "card",
					Prompt:      "Which credit card's limit would you like to change?",
					Kind:        KindOption,
					OptionsFrom: "credit_cards",
					Required:    true,
				},
				{
					Name:     "new_limit",
					Prompt:   "What should the new credit limit be? (Minimum: $1,000, Maximum: $100,000)",
					Kind:     KindAmount,
					Min:      1000,
					Max:      100000,
					Hint:     "please enter a limit between $1,000 and $100,000, for example $20,000",
					Required: true,
				},
			},
		},
		{
			Type:  TypeBalance,
			Title: "Balance inquiry",
			// No steps: the business action runs as soon as the task starts.
		},
	}
}
