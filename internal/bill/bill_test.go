package bill

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

func newTestBill(repo *memory.Repo) (*Service, *transaction.Service) {
	m := metrics.New(prometheus.NewRegistry())
	txs := transaction.New(&transaction.Config{}, repo, nopPublisher{}, m)

	return New(repo, txs), txs
}

// settle walks a billpay transaction through PIN confirmation to completed.
func settle(t *testing.T, txs *transaction.Service, trid uuid.UUID) {
	t.Helper()

	if _, _, err := txs.AdvanceTransaction(context.Background(), trid); err != nil {
		t.Fatalf("advance %s: %v", trid, err)
	}

	if _, err := txs.ConfirmTransaction(context.Background(), trid, true); err != nil {
		t.Fatalf("confirm %s: %v", trid, err)
	}
}

func TestCreateBillValidation(t *testing.T) {
	repo := memory.New()
	svc, _ := newTestBill(repo)
	ctx := context.Background()

	biller := repo.AddWallet(types.WalletActive)
	billee := repo.AddWallet(types.WalletActive)

	valid := CreateRequest{
		Biller:       biller,
		Billee:       billee,
		Currency:     "KES",
		AmountDue:    1200,
		MinAmountDue: 400,
		DueDate:      time.Now().UTC().AddDate(0, 0, 14),
	}

	cases := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"zero amount", func(r *CreateRequest) { r.AmountDue = 0 }},
		{"zero minimum", func(r *CreateRequest) { r.MinAmountDue = 0 }},
		{"minimum above amount", func(r *CreateRequest) { r.MinAmountDue = 2000 }},
		{"missing currency", func(r *CreateRequest) { r.Currency = "" }},
		{"self-billing", func(r *CreateRequest) { r.Billee = r.Biller }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)

			_, err := svc.CreateBill(ctx, req)

			var validation *lederr.ValidationError
			if !errors.As(err, &validation) {
				t.Errorf("got %v, want ValidationError", err)
			}
		})
	}

	if _, err := svc.CreateBill(ctx, valid); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
}

func TestPayBillDerivesPaidState(t *testing.T) {
	repo := memory.New()
	svc, txs := newTestBill(repo)
	ctx := context.Background()

	biller := repo.AddWallet(types.WalletActive)
	billee := repo.AddWallet(types.WalletActive)
	if _, err := txs.Deposit(ctx, billee, 5000, "KES"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	b, err := svc.CreateBill(ctx, CreateRequest{
		Biller:       biller,
		Billee:       billee,
		Currency:     "KES",
		AmountDue:    1200,
		MinAmountDue: 400,
		DueDate:      time.Now().UTC().AddDate(0, 0, 14),
		Description:  "March electricity",
	})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}

	status, err := svc.GetBill(ctx, b.BillRef)
	if err != nil {
		t.Fatalf("get bill: %v", err)
	}
	if status.Paid {
		t.Fatal("fresh bill reported paid")
	}

	// Zero amount pays the full amount due.
	tx, err := svc.PayBill(ctx, b.BillRef, 0, uuid.Nil)
	if err != nil {
		t.Fatalf("pay bill: %v", err)
	}

	if tx.Amount != 1200 || tx.Type != types.TypeBillPay {
		t.Fatalf("payment = %+v, want billpay of 1200", tx)
	}
	if tx.BillRef == nil || *tx.BillRef != b.BillRef {
		t.Fatalf("payment not linked to bill: %+v", tx.BillRef)
	}

	// A pending payment does not mark the bill paid.
	status, _ = svc.GetBill(ctx, b.BillRef)
	if status.Paid {
		t.Fatal("bill reported paid before the payment completed")
	}

	settle(t, txs, tx.TRID)

	status, _ = svc.GetBill(ctx, b.BillRef)
	if !status.Paid {
		t.Fatal("bill not reported paid after the payment completed")
	}

	// A paid bill cannot be paid again.
	_, err = svc.PayBill(ctx, b.BillRef, 400, uuid.Nil)

	var validation *lederr.ValidationError
	if !errors.As(err, &validation) {
		t.Errorf("repaying a paid bill: got %v, want ValidationError", err)
	}
}

func TestPayBillAmountBounds(t *testing.T) {
	repo := memory.New()
	svc, txs := newTestBill(repo)
	ctx := context.Background()

	biller := repo.AddWallet(types.WalletActive)
	billee := repo.AddWallet(types.WalletActive)
	if _, err := txs.Deposit(ctx, billee, 5000, "KES"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	b, err := svc.CreateBill(ctx, CreateRequest{
		Biller:       biller,
		Billee:       billee,
		Currency:     "KES",
		AmountDue:    1000,
		MinAmountDue: 300,
		DueDate:      time.Now().UTC().AddDate(0, 0, 7),
	})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}

	var validation *lederr.ValidationError

	if _, err := svc.PayBill(ctx, b.BillRef, 200, uuid.Nil); !errors.As(err, &validation) {
		t.Errorf("below minimum: got %v, want ValidationError", err)
	}

	if _, err := svc.PayBill(ctx, b.BillRef, 1500, uuid.Nil); !errors.As(err, &validation) {
		t.Errorf("above amount due: got %v, want ValidationError", err)
	}

	// A partial payment at the minimum is accepted.
	if _, err := svc.PayBill(ctx, b.BillRef, 300, uuid.Nil); err != nil {
		t.Errorf("minimum payment rejected: %v", err)
	}
}

func TestOutstandingBills(t *testing.T) {
	repo := memory.New()
	svc, txs := newTestBill(repo)
	ctx := context.Background()

	biller := repo.AddWallet(types.WalletActive)
	billee := repo.AddWallet(types.WalletActive)
	other := repo.AddWallet(types.WalletActive)
	if _, err := txs.Deposit(ctx, billee, 5000, "KES"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	due := time.Now().UTC()
	first, err := svc.CreateBill(ctx, CreateRequest{
		Biller: biller, Billee: billee, Currency: "KES",
		AmountDue: 500, MinAmountDue: 500, DueDate: due.AddDate(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("create first bill: %v", err)
	}

	if _, err := svc.CreateBill(ctx, CreateRequest{
		Biller: biller, Billee: billee, Currency: "KES",
		AmountDue: 700, MinAmountDue: 700, DueDate: due.AddDate(0, 0, 2),
	}); err != nil {
		t.Fatalf("create second bill: %v", err)
	}

	if _, err := svc.CreateBill(ctx, CreateRequest{
		Biller: biller, Billee: other, Currency: "KES",
		AmountDue: 900, MinAmountDue: 900, DueDate: due.AddDate(0, 0, 3),
	}); err != nil {
		t.Fatalf("create foreign bill: %v", err)
	}

	tx, err := svc.PayBill(ctx, first.BillRef, 0, uuid.Nil)
	if err != nil {
		t.Fatalf("pay first bill: %v", err)
	}
	settle(t, txs, tx.TRID)

	statuses, err := svc.OutstandingBills(ctx, billee)
	if err != nil {
		t.Fatalf("outstanding: %v", err)
	}

	if len(statuses) != 2 {
		t.Fatalf("got %d bills for billee, want 2", len(statuses))
	}

	if !statuses[0].Paid || statuses[1].Paid {
		t.Errorf("paid flags = %v/%v, want first paid and second outstanding",
			statuses[0].Paid, statuses[1].Paid)
	}
}

func TestPayUnknownBill(t *testing.T) {
	repo := memory.New()
	svc, _ := newTestBill(repo)

	_, err := svc.PayBill(context.Background(), uuid.New(), 100, uuid.Nil)
	if !errors.Is(err, lederr.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
