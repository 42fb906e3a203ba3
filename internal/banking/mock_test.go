package banking

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/harborbank/concierge/internal/task"
)

func testMock() *Mock {
	return NewMock(WithMockClock(func() time.Time {
		return time.Date(2026, 3, 1, 15, 4, 0, 0, time.UTC)
	}))
}

func TestSubmitLoanApproved(t *testing.T) {
	m := testMock()
	receipt, err := m.Execute(context.Background(), "user123", task.TypeLoan, map[string]string{
		"amount":  "15000.00",
		"purpose": "home renovation",
		"income":  "85000.00",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if receipt.Reference != "LOAN002" {
		t.Fatalf("reference = %q, want LOAN002 after the seeded application", receipt.Reference)
	}
	if !strings.Contains(receipt.Message, "10.5%") {
		t.Fatalf("message = %q, want the top-tier rate for this ratio", receipt.Message)
	}
	if !strings.Contains(receipt.Message, "60 months") {
		t.Fatalf("message = %q, want the 60 month term", receipt.Message)
	}
}

func TestSubmitLoanRateTiers(t *testing.T) {
	cases := []struct {
		amount string
		income string
		want   string
	}{
		{"1000.00", "200000.00", "5.2%"},  // ratio 0.06
		{"1500.00", "120000.00", "6.5%"},  // ratio 0.15
		{"2000.00", "100000.00", "8.2%"},  // ratio 0.24
		{"20000.00", "60000.00", "10.5%"}, // ratio 4.0
	}
	for _, tc := range cases {
		m := testMock()
		receipt, err := m.Execute(context.Background(), "user123", task.TypeLoan, map[string]string{
			"amount": tc.amount, "purpose": "test", "income": tc.income,
		})
		if err != nil {
			t.Fatalf("Execute(%s/%s): %v", tc.amount, tc.income, err)
		}
		if !strings.Contains(receipt.Message, tc.want) {
			t.Errorf("amount %s income %s: message %q, want rate %s", tc.amount, tc.income, receipt.Message, tc.want)
		}
	}
}

func TestSubmitLoanRejectedWhenAmountExceedsIncome(t *testing.T) {
	m := testMock()
	_, err := m.Execute(context.Background(), "user123", task.TypeLoan, map[string]string{
		"amount": "50000.00", "purpose": "a boat", "income": "10000.00",
	})
	rej, ok := AsRejection(err)
	if !ok {
		t.Fatalf("err = %v, want a rejection", err)
	}
	if !strings.Contains(rej.Reason, "too high") {
		t.Fatalf("reason = %q", rej.Reason)
	}
}

func TestBlockCard(t *testing.T) {
	m := testMock()
	receipt, err := m.Execute(context.Background(), "user123", task.TypeCardBlock, map[string]string{"card": "card_001"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Confirmation code is BLK + last four + HHMM of the injected clock.
	if receipt.Reference != "BLK12341504" {
		t.Fatalf("reference = %q, want BLK12341504", receipt.Reference)
	}
	if status, ok := m.CardStatus("card_001"); !ok || status != "blocked" {
		t.Fatalf("card status = %q ok=%v", status, ok)
	}

	// Blocking the same card again is refused.
	_, err = m.Execute(context.Background(), "user123", task.TypeCardBlock, map[string]string{"card": "card_001"})
	if _, ok := AsRejection(err); !ok {
		t.Fatalf("second block = %v, want a rejection", err)
	}
}

func TestBlockUnknownCardRejected(t *testing.T) {
	m := testMock()
	_, err := m.Execute(context.Background(), "user123", task.TypeCardBlock, map[string]string{"card": "card_999"})
	if _, ok := AsRejection(err); !ok {
		t.Fatalf("err = %v, want a rejection", err)
	}
}

func TestApplyCard(t *testing.T) {
	m := testMock()
	receipt, err := m.Execute(context.Background(), "user123", task.TypeCardApply, map[string]string{
		"card_type": "credit", "brand": "visa",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if receipt.Reference != "CARDAPP001" {
		t.Fatalf("reference = %q", receipt.Reference)
	}
	if !strings.Contains(receipt.Message, "Visa credit") {
		t.Fatalf("message = %q", receipt.Message)
	}
}

func TestChangeLimitPreservesUtilization(t *testing.T) {
	m := testMock()
	// card_001 starts at limit 15000 with 12500 available (2500 utilized).
	receipt, err := m.Execute(context.Background(), "user123", task.TypeLimitChange, map[string]string{
		"card": "card_001", "new_limit": "20000.00",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(receipt.Message, "increased") {
		t.Fatalf("message = %q", receipt.Message)
	}
	if !strings.Contains(receipt.Message, "17500.00") {
		t.Fatalf("message = %q, want available credit 17500.00", receipt.Message)
	}
}

func TestChangeLimitOnDebitCardRejected(t *testing.T) {
	m := testMock()
	_, err := m.Execute(context.Background(), "user123", task.TypeLimitChange, map[string]string{
		"card": "card_002", "new_limit": "5000.00",
	})
	rej, ok := AsRejection(err)
	if !ok {
		t.Fatalf("err = %v, want a rejection", err)
	}
	if !strings.Contains(rej.Reason, "credit cards") {
		t.Fatalf("reason = %q", rej.Reason)
	}
}

func TestBalanceSummary(t *testing.T) {
	m := testMock()
	receipt, err := m.Execute(context.Background(), "user123", task.TypeBalance, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(receipt.Message, "John Doe") || !strings.Contains(receipt.Message, "28750.50") {
		t.Fatalf("message = %q", receipt.Message)
	}
}

func TestOptionsProviders(t *testing.T) {
	m := testMock()
	ctx := context.Background()

	cards, err := m.Options(ctx, "user123", "cards")
	if err != nil {
		t.Fatalf("Options(cards): %v", err)
	}
	if len(cards) == 0 {
		t.Fatal("no cards listed")
	}

	credit, err := m.Options(ctx, "user123", "credit_cards")
	if err != nil {
		t.Fatalf("Options(credit_cards): %v", err)
	}
	for _, opt := range credit {
		if opt.ID == "card_002" || opt.ID == "card_004" {
			t.Fatalf("debit card %s offered for a limit change", opt.ID)
		}
	}

	types, err := m.Options(ctx, "user123", "card_types")
	if err != nil {
		t.Fatalf("Options(card_types): %v", err)
	}
	if len(types) != 2 {
		t.Fatalf("card types = %v, want credit and debit", types)
	}

	if _, err := m.Options(ctx, "user123", "nonsense"); err == nil {
		t.Fatal("unknown provider accepted")
	}
}

func TestUnknownUserRejected(t *testing.T) {
	m := testMock()
	_, err := m.Execute(context.Background(), "ghost", task.TypeBalance, nil)
	if _, ok := AsRejection(err); !ok {
		t.Fatalf("err = %v, want a rejection", err)
	}
}
