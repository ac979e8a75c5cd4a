package mandate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	lederr "github.com/vitewallet/ledger/internal/errors"
	"github.com/vitewallet/ledger/internal/metrics"
	"github.com/vitewallet/ledger/internal/repository/memory"
	"github.com/vitewallet/ledger/internal/transaction"
	"github.com/vitewallet/ledger/internal/types"
)

type nopPublisher struct{}

func (nopPublisher) Publish([]byte) error { return nil }

func newTestCharger(repo *memory.Repo) (*Charger, *transaction.Service) {
	m := metrics.New(prometheus.NewRegistry())
	txs := transaction.New(&transaction.Config{}, repo, nopPublisher{}, m)
	charger := New(&Config{
		BatchSize:    50,
		PollInterval: time.Second,
		DBTimeout:    time.Second,
	}, repo, txs, m)

	return charger, txs
}

func TestCreateMandateValidation(t *testing.T) {
	repo := memory.New()
	charger, _ := newTestCharger(repo)
	ctx := context.Background()

	payer := repo.AddWallet(types.WalletActive)
	payee := repo.AddWallet(types.WalletActive)
	now := time.Now().UTC()

	valid := CreateRequest{
		Payer:            payer,
		Payee:            payee,
		Currency:         "KES",
		AmountLimit:      500,
		StartDate:        now,
		EndDate:          now.AddDate(1, 0, 0),
		NumberOfPayments: 12,
		Frequency:        types.FrequencyMonthly,
	}

	cases := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"zero amount", func(r *CreateRequest) { r.AmountLimit = 0 }},
		{"missing currency", func(r *CreateRequest) { r.Currency = "" }},
		{"payer is payee", func(r *CreateRequest) { r.Payee = r.Payer }},
		{"no payments", func(r *CreateRequest) { r.NumberOfPayments = 0 }},
		{"end before start", func(r *CreateRequest) { r.EndDate = r.StartDate.AddDate(0, 0, -1) }},
		{"bad frequency", func(r *CreateRequest) { r.Frequency = "hourly" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)

			_, err := charger.CreateMandate(ctx, req)

			var validation *lederr.ValidationError
			if !errors.As(err, &validation) {
				t.Errorf("got %v, want ValidationError", err)
			}
		})
	}

	m, err := charger.CreateMandate(ctx, valid)
	if err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	if m.Status != types.MandateActive || !m.NextChargeAt.Equal(valid.StartDate) {
		t.Errorf("mandate = %+v, want active with first charge at start date", m)
	}
}

func TestChargeDueMovesMoneyAndReschedules(t *testing.T) {
	repo := memory.New()
	charger, txs := newTestCharger(repo)
	ctx := context.Background()

	payer := repo.AddWallet(types.WalletActive)
	payee := repo.AddWallet(types.WalletActive)
	if _, err := txs.Deposit(ctx, payer, 10_000, "KES"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m, err := charger.CreateMandate(ctx, CreateRequest{
		Payer:            payer,
		Payee:            payee,
		Currency:         "KES",
		AmountLimit:      500,
		StartDate:        start,
		EndDate:          start.AddDate(1, 0, 0),
		NumberOfPayments: 3,
		Frequency:        types.FrequencyMonthly,
	})
	if err != nil {
		t.Fatalf("create mandate: %v", err)
	}

	// Before the start date nothing is due.
	if err := charger.ChargeDue(ctx, start.AddDate(0, 0, -1)); err != nil {
		t.Fatalf("early sweep: %v", err)
	}

	got, _ := charger.GetMandate(ctx, m.MandateRef)
	if got.ChargesMade != 0 {
		t.Fatalf("charged before start date")
	}

	if err := charger.ChargeDue(ctx, start); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, _ = charger.GetMandate(ctx, m.MandateRef)
	if got.ChargesMade != 1 || got.RemainingPayments != 2 {
		t.Fatalf("after first sweep mandate = %+v", got)
	}

	wantNext := start.AddDate(0, 1, 0)
	if !got.NextChargeAt.Equal(wantNext) {
		t.Errorf("nextChargeAt = %v, want %v", got.NextChargeAt, wantNext)
	}

	// A second sweep at the same instant must not charge again.
	if err := charger.ChargeDue(ctx, start); err != nil {
		t.Fatalf("repeat sweep: %v", err)
	}

	got, _ = charger.GetMandate(ctx, m.MandateRef)
	if got.ChargesMade != 1 {
		t.Fatalf("repeat sweep double-charged: %+v", got)
	}

	balances, err := txs.Balances(ctx, payee)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}

	if balances.Uncleared != 500 {
		t.Errorf("payee uncleared = %d, want 500", balances.Uncleared)
	}
}

func TestMandateExhaustionDeactivates(t *testing.T) {
	repo := memory.New()
	charger, txs := newTestCharger(repo)
	ctx := context.Background()

	payer := repo.AddWallet(types.WalletActive)
	payee := repo.AddWallet(types.WalletActive)
	if _, err := txs.Deposit(ctx, payer, 10_000, "KES"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m, err := charger.CreateMandate(ctx, CreateRequest{
		Payer:            payer,
		Payee:            payee,
		Currency:         "KES",
		AmountLimit:      100,
		StartDate:        start,
		EndDate:          start.AddDate(1, 0, 0),
		NumberOfPayments: 2,
		Frequency:        types.FrequencyDaily,
	})
	if err != nil {
		t.Fatalf("create mandate: %v", err)
	}

	for day := 0; day < 5; day++ {
		if err := charger.ChargeDue(ctx, start.AddDate(0, 0, day)); err != nil {
			t.Fatalf("sweep day %d: %v", day, err)
		}
	}

	got, _ := charger.GetMandate(ctx, m.MandateRef)
	if got.ChargesMade != 2 || got.Status != types.MandateInactive {
		t.Errorf("after exhaustion mandate = %+v, want 2 charges and inactive", got)
	}
}

func TestInsufficientFundsKeepsMandateDue(t *testing.T) {
	repo := memory.New()
	charger, txs := newTestCharger(repo)
	ctx := context.Background()

	payer := repo.AddWallet(types.WalletActive)
	payee := repo.AddWallet(types.WalletActive)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m, err := charger.CreateMandate(ctx, CreateRequest{
		Payer:            payer,
		Payee:            payee,
		Currency:         "KES",
		AmountLimit:      300,
		StartDate:        start,
		EndDate:          start.AddDate(1, 0, 0),
		NumberOfPayments: 1,
		Frequency:        types.FrequencyMonthly,
	})
	if err != nil {
		t.Fatalf("create mandate: %v", err)
	}

	if err := charger.ChargeDue(ctx, start); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, _ := charger.GetMandate(ctx, m.MandateRef)
	if got.ChargesMade != 0 || got.Status != types.MandateActive {
		t.Fatalf("broke mandate on failed charge: %+v", got)
	}

	// Top up and retry: the same mandate settles.
	if _, err := txs.Deposit(ctx, payer, 1000, "KES"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := charger.ChargeDue(ctx, start.Add(time.Hour)); err != nil {
		t.Fatalf("retry sweep: %v", err)
	}

	got, _ = charger.GetMandate(ctx, m.MandateRef)
	if got.ChargesMade != 1 {
		t.Errorf("retry after top-up did not charge: %+v", got)
	}
}

func TestCancelMandate(t *testing.T) {
	repo := memory.New()
	charger, _ := newTestCharger(repo)
	ctx := context.Background()

	payer := repo.AddWallet(types.WalletActive)
	payee := repo.AddWallet(types.WalletActive)

	start := time.Now().UTC()
	m, err := charger.CreateMandate(ctx, CreateRequest{
		Payer:            payer,
		Payee:            payee,
		Currency:         "KES",
		AmountLimit:      100,
		StartDate:        start,
		EndDate:          start.AddDate(1, 0, 0),
		NumberOfPayments: 6,
		Frequency:        types.FrequencyWeekly,
	})
	if err != nil {
		t.Fatalf("create mandate: %v", err)
	}

	cancelled, err := charger.CancelMandate(ctx, m.MandateRef)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if cancelled.Status != types.MandateInactive {
		t.Errorf("status = %s, want inactive", cancelled.Status)
	}

	// Cancelling again is a no-op.
	if _, err := charger.CancelMandate(ctx, m.MandateRef); err != nil {
		t.Errorf("repeat cancel: %v", err)
	}

	if err := charger.ChargeDue(ctx, start.AddDate(0, 0, 7)); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, _ := charger.GetMandate(ctx, m.MandateRef)
	if got.ChargesMade != 0 {
		t.Errorf("cancelled mandate was charged: %+v", got)
	}

	if _, err := charger.CancelMandate(ctx, uuid.New()); !errors.Is(err, lederr.ErrNotFound) {
		t.Errorf("unknown mandate: got %v, want ErrNotFound", err)
	}
}
