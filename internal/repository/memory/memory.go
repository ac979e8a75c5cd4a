// Package memory is an in-memory repository with the same contracts as the
// postgres implementation: the funds check and the insert run as one atomic
// unit, state transitions are compare-and-set, and balance snapshots are
// consistent. It backs the test suites and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	lederr "github.com/vitewallet/ledger/internal/errors"
	"github.com/vitewallet/ledger/internal/ledger"
	"github.com/vitewallet/ledger/internal/types"
)

type Repo struct {
	mu            sync.Mutex
	wallets       map[uuid.UUID]*types.Wallet
	txs           map[uuid.UUID]*types.Transaction
	byCorrelation map[uuid.UUID]uuid.UUID
	topups        []types.Topup
	batches       map[uuid.UUID]*types.BatchTransaction
	lookups       []types.BatchLookup
	mandates      map[uuid.UUID]*types.DebitMandate
	bills         map[uuid.UUID]*types.Bill
	notifications map[uuid.UUID]*types.Notification

	// forcedCollisions makes the next N transaction inserts fail with a
	// reference collision, for exercising the bounded retry loop.
	forcedCollisions int
}

func New() *Repo {
	return &Repo{
		wallets:       make(map[uuid.UUID]*types.Wallet),
		txs:           make(map[uuid.UUID]*types.Transaction),
		byCorrelation: make(map[uuid.UUID]uuid.UUID),
		batches:       make(map[uuid.UUID]*types.BatchTransaction),
		mandates:      make(map[uuid.UUID]*types.DebitMandate),
		bills:         make(map[uuid.UUID]*types.Bill),
		notifications: make(map[uuid.UUID]*types.Notification),
	}
}

// ForceReferenceCollisions makes the next n inserts collide on the
// transaction reference.
func (r *Repo) ForceReferenceCollisions(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.forcedCollisions = n
}

// --- wallets ---

func (r *Repo) CreateWallet(_ context.Context, w *types.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *w
	r.wallets[w.ID] = &copied

	return nil
}

// AddWallet creates an active wallet with generated identifiers and returns
// its id.
func (r *Repo) AddWallet(status types.WalletStatus) uuid.UUID {
	id := uuid.New()
	_ = r.CreateWallet(context.Background(), &types.Wallet{
		ID:     id,
		MSISDN: "+2547" + id.String()[:8],
		Token:  "token-" + id.String()[:8],
		Name:   "wallet " + id.String()[:8],
		Status: status,
		Type:   types.WalletNormal,
	})

	return id
}

func (r *Repo) GetWallet(_ context.Context, id uuid.UUID) (*types.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wallet, ok := r.wallets[id]
	if !ok {
		return nil, lederr.ErrWalletNotFound
	}

	copied := *wallet

	return &copied, nil
}

func (r *Repo) GetWalletByMSISDN(_ context.Context, msisdn string) (*types.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, wallet := range r.wallets {
		if wallet.MSISDN == msisdn {
			copied := *wallet
			return &copied, nil
		}
	}

	return nil, lederr.ErrWalletNotFound
}

func (r *Repo) RefreshBalanceHint(_ context.Context, id uuid.UUID, balance int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wallet, ok := r.wallets[id]
	if !ok {
		return lederr.ErrWalletNotFound
	}

	wallet.Balance = balance
	wallet.UpdatedAt = time.Now().UTC()

	return nil
}

// --- transactions ---

func (r *Repo) CreateWithFundsCheck(_ context.Context, tx *types.Transaction, enforceFunds bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.forcedCollisions > 0 {
		r.forcedCollisions--
		return lederr.ErrDuplicateReference
	}

	if _, ok := r.byCorrelation[tx.ServerCorrelationID]; ok {
		return lederr.ErrDuplicateCorrelationID
	}

	if _, ok := r.txs[tx.TRID]; ok {
		return lederr.ErrDuplicateReference
	}

	if enforceFunds {
		balances := ledger.Compute(tx.Source, r.snapshotLocked(tx.Source), r.topupsLocked(tx.Source))
		if balances.Available < tx.Amount {
			return &lederr.InsufficientFundsError{
				Available: balances.Available,
				Requested: tx.Amount,
			}
		}
	}

	copied := *tx
	copied.CreatedAt = time.Now().UTC()
	r.txs[tx.TRID] = &copied
	r.byCorrelation[tx.ServerCorrelationID] = tx.TRID

	return nil
}

func (r *Repo) GetTransaction(_ context.Context, trid uuid.UUID) (*types.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.txs[trid]
	if !ok {
		return nil, lederr.ErrNotFound
	}

	copied := *tx

	return &copied, nil
}

func (r *Repo) GetByCorrelationID(_ context.Context, id uuid.UUID) (*types.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	trid, ok := r.byCorrelation[id]
	if !ok {
		return nil, lederr.ErrNotFound
	}

	copied := *r.txs[trid]

	return &copied, nil
}

func (r *Repo) AdvanceState(_ context.Context, trid uuid.UUID, from, to types.TxState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.txs[trid]
	if !ok {
		return false, lederr.ErrNotFound
	}

	if tx.State != from {
		return false, nil
	}

	tx.State = to
	tx.UpdatedAt = time.Now().UTC()

	return true, nil
}

func (r *Repo) BalanceSnapshot(_ context.Context, walletID uuid.UUID) ([]types.Transaction, []types.Topup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked(walletID), r.topupsLocked(walletID), nil
}

func (r *Repo) CreateTopup(_ context.Context, topup *types.Topup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	topup.ID = int64(len(r.topups) + 1)
	r.topups = append(r.topups, *topup)

	return nil
}

// --- batches ---

func (r *Repo) CreateBatch(_ context.Context, b *types.BatchTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *b
	r.batches[b.BatchTRID] = &copied

	return nil
}

func (r *Repo) AddLookup(_ context.Context, lookup *types.BatchLookup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lookups = append(r.lookups, *lookup)

	return nil
}

func (r *Repo) GetBatch(_ context.Context, batchTRID uuid.UUID) (*types.BatchTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.batches[batchTRID]
	if !ok {
		return nil, lederr.ErrNotFound
	}

	copied := *b

	return &copied, nil
}

func (r *Repo) GetMemberTransactions(_ context.Context, batchTRID uuid.UUID) ([]types.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var members []types.Transaction
	for _, lookup := range r.lookups {
		if lookup.BatchTRID != batchTRID {
			continue
		}

		if tx, ok := r.txs[lookup.TRID]; ok {
			members = append(members, *tx)
		}
	}

	return members, nil
}

// --- debit mandates ---

func (r *Repo) CreateMandate(_ context.Context, m *types.DebitMandate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *m
	r.mandates[m.MandateRef] = &copied

	return nil
}

func (r *Repo) GetMandate(_ context.Context, ref uuid.UUID) (*types.DebitMandate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mandates[ref]
	if !ok {
		return nil, lederr.ErrNotFound
	}

	copied := *m

	return &copied, nil
}

func (r *Repo) DueMandates(_ context.Context, now time.Time, limit int) ([]types.DebitMandate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []types.DebitMandate
	for _, m := range r.mandates {
		if m.Chargeable(now) {
			due = append(due, *m)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextChargeAt.Before(due[j].NextChargeAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (r *Repo) RecordCharge(_ context.Context, ref uuid.UUID, nextCharge time.Time, remaining int, status types.MandateStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mandates[ref]
	if !ok {
		return lederr.ErrNotFound
	}

	m.NextChargeAt = nextCharge
	m.RemainingPayments = remaining
	m.ChargesMade++
	m.Status = status
	m.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *Repo) SetMandateStatus(_ context.Context, ref uuid.UUID, status types.MandateStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mandates[ref]
	if !ok {
		return lederr.ErrNotFound
	}

	m.Status = status
	m.UpdatedAt = time.Now().UTC()

	return nil
}

// --- bills ---

func (r *Repo) CreateBill(_ context.Context, b *types.Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *b
	r.bills[b.BillRef] = &copied

	return nil
}

func (r *Repo) GetBill(_ context.Context, ref uuid.UUID) (*types.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bills[ref]
	if !ok {
		return nil, lederr.ErrNotFound
	}

	copied := *b

	return &copied, nil
}

func (r *Repo) BillsForBillee(_ context.Context, billee uuid.UUID) ([]types.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var bills []types.Bill
	for _, b := range r.bills {
		if b.Billee == billee {
			bills = append(bills, *b)
		}
	}

	sort.Slice(bills, func(i, j int) bool {
		return bills[i].DueDate.Before(bills[j].DueDate)
	})

	return bills, nil
}

func (r *Repo) BillPaid(_ context.Context, ref uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tx := range r.txs {
		if tx.BillRef != nil && *tx.BillRef == ref &&
			tx.Type == types.TypeBillPay && tx.State == types.StateCompleted {
			return true, nil
		}
	}

	return false, nil
}

// --- notifications ---

func (r *Repo) CreateNotification(_ context.Context, n *types.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *n
	r.notifications[n.ID] = &copied

	return nil
}

func (r *Repo) GetNotification(_ context.Context, id uuid.UUID) (*types.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok {
		return nil, lederr.ErrNotFound
	}

	copied := *n

	return &copied, nil
}

func (r *Repo) NotificationForTransaction(_ context.Context, trid uuid.UUID) (*types.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *types.Notification
	for _, n := range r.notifications {
		if n.TRID != trid {
			continue
		}

		if oldest == nil || n.CreatedAt.Before(oldest.CreatedAt) {
			oldest = n
		}
	}

	if oldest == nil {
		return nil, lederr.ErrNotFound
	}

	copied := *oldest

	return &copied, nil
}

func (r *Repo) UpdateNotificationState(_ context.Context, id uuid.UUID, state types.NotificationState, attempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok {
		return lederr.ErrNotFound
	}

	n.State = state
	n.Attempts = attempts
	n.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *Repo) PendingNotifications(_ context.Context, olderThan time.Time, limit int) ([]types.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []types.Notification
	for _, n := range r.notifications {
		if n.State == types.NotificationPending && n.CreatedAt.Before(olderThan) {
			pending = append(pending, *n)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

func (r *Repo) snapshotLocked(walletID uuid.UUID) []types.Transaction {
	var txs []types.Transaction
	for _, tx := range r.txs {
		if tx.Source == walletID || tx.Destination == walletID {
			txs = append(txs, *tx)
		}
	}

	return txs
}

func (r *Repo) topupsLocked(walletID uuid.UUID) []types.Topup {
	var topups []types.Topup
	for _, topup := range r.topups {
		if topup.WalletID == walletID {
			topups = append(topups, topup)
		}
	}

	return topups
}
