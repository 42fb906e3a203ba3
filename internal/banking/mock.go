package banking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harborbank/concierge/internal/task"
)

// Account is a bank customer with a checking balance and a set of cards.
type Account struct {
	UserID        string
	Name          string
	AccountNumber string
	AccountType   string
	Balance       float64
	Available     float64
	Pending       float64
}

// Card is a payment card on an account.
type Card struct {
	ID        string
	UserID    string
	Type      string // "credit" or "debit"
	Brand     string
	LastFour  string
	Status    string // "active" or "blocked"
	Limit     float64
	AvailCred float64
}

// Loan is a submitted loan application.
type Loan struct {
	Reference string
	UserID    string
	Amount    float64
	Purpose   string
	Income    float64
	Rate      float64
	Monthly   float64
	Status    string
}

// Mock is an in-memory banking backend with seeded sample data. It stands in
// for the real banking APIs behind the Service interface.
type Mock struct {
	mu       sync.Mutex
	accounts map[string]*Account
	cards    map[string]*Card
	loans    []*Loan
	newCards int
	clock    func() time.Time
}

// MockOption customizes the mock backend.
type MockOption func(*Mock)

// WithMockClock injects a deterministic clock for tests.
func WithMockClock(clock func() time.Time) MockOption {
	return func(m *Mock) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewMock returns a mock bank seeded with one sample customer.
func NewMock(opts ...MockOption) *Mock {
	m := &Mock{
		accounts: map[string]*Account{},
		cards:    map[string]*Card{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.seed()
	return m
}

func (m *Mock) seed() {
	m.accounts["user123"] = &Account{
		UserID:        "user123",
		Name:          "John Doe",
		AccountNumber: "ACC-2025-001",
		AccountType:   "Premium Checking",
		Balance:       28750.50,
		Available:     28750.50,
		Pending:       125.75,
	}
	seedCards := []*Card{
		{ID: "card_001", UserID: "user123", Type: "credit", Brand: "Visa Platinum", LastFour: "1234", Status: "active", Limit: 15000, AvailCred: 12500},
		{ID: "card_002", UserID: "user123", Type: "debit", Brand: "Mastercard", LastFour: "5678", Status: "active"},
		{ID: "card_003", UserID: "user123", Type: "credit", Brand: "American Express Gold", LastFour: "9012", Status: "active", Limit: 25000, AvailCred: 18750},
		{ID: "card_004", UserID: "user123", Type: "debit", Brand: "Visa", LastFour: "3456", Status: "active"},
		{ID: "card_005", UserID: "user123", Type: "credit", Brand: "Visa Classic", LastFour: "7890", Status: "blocked", Limit: 10000, AvailCred: 8500},
	}
	for _, card := range seedCards {
		m.cards[card.ID] = card
	}
	m.loans = append(m.loans, &Loan{
		Reference: "LOAN001",
		UserID:    "user123",
		Amount:    25000,
		Purpose:   "Home Renovation",
		Rate:      5.2,
		Monthly:   471.78,
		Status:    "approved",
	})
}

// Execute runs the terminal business action for a completed workflow.
func (m *Mock) Execute(ctx context.Context, userID string, taskType task.Type, values map[string]string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[userID]
	if !ok {
		return Receipt{}, &Rejection{Reason: "account not found"}
	}
	switch taskType {
	case task.TypeLoan:
		return m.submitLoan(account, values)
	case task.TypeCardBlock:
		return m.blockCard(account, values)
	case task.TypeCardApply:
		return m.applyCard(account, values)
	case task.TypeLimitChange:
		return m.changeLimit(account, values)
	case task.TypeBalance:
		return m.balance(account)
	default:
		return Receipt{}, fmt.Errorf("banking: no action registered for task type %s", taskType)
	}
}

func (m *Mock) submitLoan(account *Account, values map[string]string) (Receipt, error) {
	amount := parseAmount(values["amount"])
	income := parseAmount(values["income"])
	purpose := values["purpose"]
	if amount <= 0 || income <= 0 {
		return Receipt{}, &Rejection{Reason: "incomplete loan details"}
	}
	ratio := (amount * 12) / income
	var rate float64
	switch {
	case ratio < 0.1:
		rate = 5.2
	case ratio < 0.2:
		rate = 6.5
	case ratio < 0.3:
		rate = 8.2
	case amount <= income:
		rate = 10.5
	default:
		// Borrowing more than a full year's income is declined outright.
		return Receipt{}, &Rejection{Reason: "the requested amount is too high for the stated income"}
	}
	monthlyRate := rate / 100 / 12
	const termMonths = 60
	factor := math.Pow(1+monthlyRate, termMonths)
	monthly := math.Round(amount*monthlyRate*factor/(factor-1)*100) / 100

	reference := fmt.Sprintf("LOAN%03d", len(m.loans)+1)
	m.loans = append(m.loans, &Loan{
		Reference: reference,
		UserID:    account.UserID,
		Amount:    amount,
		Purpose:   purpose,
		Income:    income,
		Rate:      rate,
		Monthly:   monthly,
		Status:    "in_review",
	})
	message := fmt.Sprintf(
		"Your loan application has been submitted.\nApplication ID: %s\nAmount: $%.2f for %s\nEstimated rate: %.1f%%, monthly payment: $%.2f over %d months.\nYou'll receive a decision within 2-3 business days.",
		reference, amount, purpose, rate, monthly, termMonths)
	return Receipt{Reference: reference, Message: message}, nil
}

func (m *Mock) blockCard(account *Account, values map[string]string) (Receipt, error) {
	card, ok := m.cards[values["card"]]
	if !ok || card.UserID != account.UserID {
		return Receipt{}, &Rejection{Reason: "card not found"}
	}
	if card.Status == "blocked" {
		return Receipt{}, &Rejection{Reason: fmt.Sprintf("the %s card ending in %s is already blocked", card.Brand, card.LastFour)}
	}
	card.Status = "blocked"
	code := fmt.Sprintf("BLK%s%s", card.LastFour, m.clock().Format("1504"))
	message := fmt.Sprintf(
		"Successfully blocked your %s %s card ending in %s.\nConfirmation code: %s\nA replacement card will arrive within 3-5 business days.",
		card.Brand, card.Type, card.LastFour, code)
	return Receipt{Reference: code, Message: message}, nil
}

func (m *Mock) applyCard(account *Account, values map[string]string) (Receipt, error) {
	cardType := values["card_type"]
	brand := values["brand"]
	if cardType == "" || brand == "" {
		return Receipt{}, &Rejection{Reason: "card type and brand are both required"}
	}
	m.newCards++
	reference := fmt.Sprintf("CARDAPP%03d", m.newCards)
	message := fmt.Sprintf(
		"Your %s %s card application has been received.\nApplication ID: %s\nExpected delivery: 7-10 business days after approval.",
		capitalize(brand), cardType, reference)
	return Receipt{Reference: reference, Message: message}, nil
}

func (m *Mock) changeLimit(account *Account, values map[string]string) (Receipt, error) {
	card, ok := m.cards[values["card"]]
	if !ok || card.UserID != account.UserID {
		return Receipt{}, &Rejection{Reason: "card not found"}
	}
	if card.Type != "credit" {
		return Receipt{}, &Rejection{Reason: "limit changes are only available for credit cards"}
	}
	newLimit := parseAmount(values["new_limit"])
	if newLimit < 1000 {
		return Receipt{}, &Rejection{Reason: "the minimum credit limit is $1,000"}
	}
	if newLimit > 100000 {
		return Receipt{}, &Rejection{Reason: "the maximum credit limit is $100,000"}
	}
	utilized := card.Limit - card.AvailCred
	card.AvailCred = newLimit - utilized
	oldLimit := card.Limit
	card.Limit = newLimit
	direction := "increased"
	if newLimit < oldLimit {
		direction = "decreased"
	}
	reference := fmt.Sprintf("LIM%s%s", card.LastFour, m.clock().Format("1504"))
	message := fmt.Sprintf(
		"Credit limit %s for your %s card ending in %s.\nPrevious limit: $%.2f, new limit: $%.2f, available credit: $%.2f.\nThe change is effective immediately.",
		direction, card.Brand, card.LastFour, oldLimit, newLimit, card.AvailCred)
	return Receipt{Reference: reference, Message: message}, nil
}

func (m *Mock) balance(account *Account) (Receipt, error) {
	var totalLimit, totalAvail float64
	for _, card := range m.userCards(account.UserID) {
		if card.Type == "credit" {
			totalLimit += card.Limit
			totalAvail += card.AvailCred
		}
	}
	utilization := "0%"
	if totalLimit > 0 {
		utilization = fmt.Sprintf("%.1f%%", (totalLimit-totalAvail)/totalLimit*100)
	}
	message := fmt.Sprintf(
		"Hi %s, here's your account summary.\nCurrent balance: $%.2f\nAvailable balance: $%.2f\nPending transactions: $%.2f\nAccount: %s (%s)\nCredit limit across cards: $%.2f, available credit: $%.2f, utilization: %s",
		account.Name, account.Balance, account.Available, account.Pending,
		account.AccountNumber, account.AccountType, totalLimit, totalAvail, utilization)
	return Receipt{Reference: account.AccountNumber, Message: message}, nil
}

// Options resolves the enumerated choices for an option step.
func (m *Mock) Options(ctx context.Context, userID, provider string) ([]task.Option, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch provider {
	case "cards":
		var out []task.Option
		for _, card := range m.userCards(userID) {
			out = append(out, task.Option{
				ID:   card.ID,
				Text: fmt.Sprintf("%s %s card ending in %s (%s)", card.Brand, card.Type, card.LastFour, card.Status),
			})
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("banking: no cards found for user %s", userID)
		}
		return out, nil
	case "credit_cards":
		var out []task.Option
		for _, card := range m.userCards(userID) {
			if card.Type != "credit" || card.Status != "active" {
				continue
			}
			out = append(out, task.Option{
				ID:   card.ID,
				Text: fmt.Sprintf("%s ending in %s (limit $%.2f)", card.Brand, card.LastFour, card.Limit),
			})
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("banking: no active credit cards for user %s", userID)
		}
		return out, nil
	case "card_types":
		return []task.Option{
			{ID: "credit", Text: "Credit card"},
			{ID: "debit", Text: "Debit card"},
		}, nil
	case "card_brands":
		return []task.Option{
			{ID: "visa", Text: "Visa"},
			{ID: "mastercard", Text: "Mastercard"},
			{ID: "rupay", Text: "RuPay"},
		}, nil
	default:
		return nil, fmt.Errorf("banking: unknown option provider %q", provider)
	}
}

// Loans returns the user's loan applications, oldest first.
func (m *Mock) Loans(userID string) []Loan {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Loan
	for _, loan := range m.loans {
		if loan.UserID == userID {
			out = append(out, *loan)
		}
	}
	return out
}

// CardStatus reports a card's current status, for tests and displays.
func (m *Mock) CardStatus(cardID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[cardID]
	if !ok {
		return "", false
	}
	return card.Status, true
}

func (m *Mock) userCards(userID string) []*Card {
	var out []*Card
	for _, card := range m.cards {
		if card.UserID == userID {
			out = append(out, card)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func parseAmount(raw string) float64 {
	cleaned := strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(raw), "$"), ",", "")
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return value
}
