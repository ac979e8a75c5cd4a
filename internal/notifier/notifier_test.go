package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vitewallet/ledger/internal/metrics"
	"github.com/vitewallet/ledger/internal/repository/memory"
	"github.com/vitewallet/ledger/internal/transaction"
	"github.com/vitewallet/ledger/internal/types"
)

type nopPublisher struct{}

func (nopPublisher) Publish([]byte) error { return nil }

// fakeDispatcher fails the first failures deliveries, then succeeds.
type fakeDispatcher struct {
	mu       sync.Mutex
	failures int
	push     int
	normal   int
}

func (d *fakeDispatcher) SendPush(_ context.Context, _, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.push++
	if d.failures > 0 {
		d.failures--
		return errors.New("gateway unreachable")
	}

	return nil
}

func (d *fakeDispatcher) SendNormal(_ context.Context, _, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.normal++
	if d.failures > 0 {
		d.failures--
		return errors.New("gateway unreachable")
	}

	return nil
}

func newTestNotifier(repo *memory.Repo, dispatcher Dispatcher) (*Notifier, *transaction.Service) {
	m := metrics.New(prometheus.NewRegistry())
	txs := transaction.New(&transaction.Config{}, repo, nopPublisher{}, m)
	n := New(&Config{
		Prefetch:      10,
		MaxAttempts:   3,
		RetryBackoff:  time.Millisecond,
		SendTimeout:   time.Second,
		SweepInterval: time.Minute,
		SweepAge:      0,
		SweepSize:     50,
		DBTimeout:     time.Second,
	}, nil, repo, dispatcher, txs, m)

	return n, txs
}

// placeTransfer creates a transfer and advances it to completed, which
// produces a normal notification for the destination.
func placeTransfer(t *testing.T, repo *memory.Repo, txs *transaction.Service) *types.Notification {
	t.Helper()
	ctx := context.Background()

	source := repo.AddWallet(types.WalletActive)
	dest := repo.AddWallet(types.WalletActive)
	if _, err := txs.Deposit(ctx, source, 1000, "KES"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	tx, err := txs.CreateTransaction(ctx, transaction.CreateRequest{
		Source: source, Destination: dest, Amount: 600,
		Currency: "KES", Type: types.TypeTransfer,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, notification, err := txs.AdvanceTransaction(ctx, tx.TRID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if notification == nil {
		t.Fatal("settlement produced no notification")
	}

	return notification
}

// placeMerchantPay creates a merchantpay and advances it, which produces a
// push notification while the transaction waits in progress for the PIN.
func placeMerchantPay(t *testing.T, repo *memory.Repo, txs *transaction.Service) (*types.Transaction, *types.Notification) {
	t.Helper()
	ctx := context.Background()

	source := repo.AddWallet(types.WalletActive)
	merchant := repo.AddWallet(types.WalletActive)
	if _, err := txs.Deposit(ctx, source, 1000, "KES"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	tx, err := txs.CreateTransaction(ctx, transaction.CreateRequest{
		Source: source, Destination: merchant, Amount: 250,
		Currency: "KES", Type: types.TypeMerchantPay,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tx, notification, err := txs.AdvanceTransaction(ctx, tx.TRID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if notification == nil || notification.Type != types.NotificationPush {
		t.Fatalf("got notification %+v, want push", notification)
	}

	return tx, notification
}

func TestDeliverSuccess(t *testing.T) {
	repo := memory.New()
	dispatcher := &fakeDispatcher{}
	n, txs := newTestNotifier(repo, dispatcher)

	row := placeTransfer(t, repo, txs)

	if err := n.Deliver(context.Background(), row.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	got, _ := repo.GetNotification(context.Background(), row.ID)
	if got.State != types.NotificationSuccess || got.Attempts != 1 {
		t.Errorf("row = %+v, want success after 1 attempt", got)
	}

	if dispatcher.normal != 1 || dispatcher.push != 0 {
		t.Errorf("dispatcher calls normal=%d push=%d, want 1/0",
			dispatcher.normal, dispatcher.push)
	}
}

func TestDeliverRetriesTransientFailure(t *testing.T) {
	repo := memory.New()
	dispatcher := &fakeDispatcher{failures: 2}
	n, txs := newTestNotifier(repo, dispatcher)

	row := placeTransfer(t, repo, txs)

	if err := n.Deliver(context.Background(), row.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	got, _ := repo.GetNotification(context.Background(), row.ID)
	if got.State != types.NotificationSuccess || got.Attempts != 3 {
		t.Errorf("row = %+v, want success after 3 attempts", got)
	}
}

func TestDeliverIsIdempotentOnTerminalRow(t *testing.T) {
	repo := memory.New()
	dispatcher := &fakeDispatcher{}
	n, txs := newTestNotifier(repo, dispatcher)

	row := placeTransfer(t, repo, txs)

	if err := n.Deliver(context.Background(), row.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	// Queue redelivery of the same job changes nothing.
	if err := n.Deliver(context.Background(), row.ID); err != nil {
		t.Fatalf("redeliver: %v", err)
	}

	if dispatcher.normal != 1 {
		t.Errorf("dispatcher called %d times, want 1", dispatcher.normal)
	}
}

func TestPermanentPushFailureFailsTransaction(t *testing.T) {
	repo := memory.New()
	dispatcher := &fakeDispatcher{failures: 100}
	n, txs := newTestNotifier(repo, dispatcher)
	ctx := context.Background()

	tx, row := placeMerchantPay(t, repo, txs)

	if err := n.Deliver(ctx, row.ID); err == nil {
		t.Fatal("expected a delivery error")
	}

	got, _ := repo.GetNotification(ctx, row.ID)
	if got.State != types.NotificationFailed || got.Attempts != 3 {
		t.Errorf("row = %+v, want failed after 3 attempts", got)
	}

	// The payer can never be asked for their PIN, so the transaction fails
	// and the reserved funds are released.
	failed, err := txs.GetByReference(ctx, tx.TRID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if failed.State != types.StateFailed {
		t.Errorf("transaction state = %s, want failed", failed.State)
	}

	balances, err := txs.Balances(ctx, failed.Source)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if balances.Available != 1000 || balances.Reserved != 0 {
		t.Errorf("source balances = %+v, want everything released", balances)
	}
}

func TestSweepPendingDeliversOrphanedRows(t *testing.T) {
	repo := memory.New()
	dispatcher := &fakeDispatcher{}
	n, txs := newTestNotifier(repo, dispatcher)
	ctx := context.Background()

	first := placeTransfer(t, repo, txs)
	second := placeTransfer(t, repo, txs)

	if err := n.SweepPending(ctx, time.Now().UTC().Add(time.Second)); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		got, _ := repo.GetNotification(ctx, id)
		if got.State != types.NotificationSuccess {
			t.Errorf("row %s state = %s, want success", id, got.State)
		}
	}

	// A second sweep finds nothing left to do.
	if err := n.SweepPending(ctx, time.Now().UTC().Add(time.Second)); err != nil {
		t.Fatalf("repeat sweep: %v", err)
	}

	if dispatcher.normal != 2 {
		t.Errorf("dispatcher called %d times, want 2", dispatcher.normal)
	}
}

func TestHTTPDispatcher(t *testing.T) {
	var gotPath, gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path

		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewHTTPDispatcher(server.URL, time.Second)

	if err := d.SendPush(context.Background(), "254700000001", "Please enter PIN"); err != nil {
		t.Fatalf("send push: %v", err)
	}

	if gotPath != "/push" {
		t.Errorf("path = %q, want /push", gotPath)
	}

	want := `{"msisdn":"254700000001","message":"Please enter PIN"}`
	if gotBody != want {
		t.Errorf("body = %q, want %q", gotBody, want)
	}

	server.Close()

	if err := d.SendNormal(context.Background(), "254700000001", "hello"); err == nil {
		t.Error("expected an error against a closed server")
	}
}
