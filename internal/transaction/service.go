// Package transaction orchestrates the transaction lifecycle: idempotent
// creation with a derived-balance funds check, and the state machine driven by
// worker pickup, PIN confirmation and reversal events.
package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	lederr "github.com/vitewallet/ledger/internal/errors"
	"github.com/vitewallet/ledger/internal/ledger"
	"github.com/vitewallet/ledger/internal/metrics"
	"github.com/vitewallet/ledger/internal/types"
)

// AdvanceJob is the message published for every accepted transaction and
// consumed by the processor worker. Delivery is at-least-once; advancing an
// already-terminal transaction is a no-op.
type AdvanceJob struct {
	TRID uuid.UUID `json:"trid"`
}

type Config struct {
	// RefRetryLimit bounds how many times a colliding transaction
	// reference is regenerated before giving up.
	RefRetryLimit int
}

// Repository is the persistence surface the service needs. The postgres
// implementation backs production; tests use an in-memory fake.
type Repository interface {
	GetWallet(ctx context.Context, id uuid.UUID) (*types.Wallet, error)
	GetWalletByMSISDN(ctx context.Context, msisdn string) (*types.Wallet, error)

	// CreateWithFundsCheck inserts the pending transaction. When
	// enforceFunds is set, the derived available balance of the source
	// wallet is checked under a row lock in the same database transaction,
	// so no concurrent debit can pass the check against stale funds.
	CreateWithFundsCheck(ctx context.Context, tx *types.Transaction, enforceFunds bool) error

	GetTransaction(ctx context.Context, trid uuid.UUID) (*types.Transaction, error)
	GetByCorrelationID(ctx context.Context, id uuid.UUID) (*types.Transaction, error)

	// NotificationForTransaction returns the oldest notification for the
	// transaction, or ErrNotFound when none exists. It makes notification
	// creation on the advance path idempotent across redeliveries.
	NotificationForTransaction(ctx context.Context, trid uuid.UUID) (*types.Notification, error)

	// AdvanceState applies from -> to only if the row is still in from,
	// reporting whether the update won. Lost races are resolved by the
	// caller re-reading the row.
	AdvanceState(ctx context.Context, trid uuid.UUID, from, to types.TxState) (bool, error)

	BalanceSnapshot(ctx context.Context, walletID uuid.UUID) ([]types.Transaction, []types.Topup, error)
	RefreshBalanceHint(ctx context.Context, id uuid.UUID, balance int64) error
	CreateTopup(ctx context.Context, topup *types.Topup) error
	CreateNotification(ctx context.Context, n *types.Notification) error
}

// Publisher is the fire-and-forget job dispatch used after creation.
type Publisher interface {
	Publish(message []byte) error
}

type Service struct {
	config  *Config
	repo    Repository
	advance Publisher
	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(config *Config, repo Repository, advance Publisher, m *metrics.Metrics) *Service {
	if config.RefRetryLimit <= 0 {
		config.RefRetryLimit = 10
	}

	return &Service{
		config:  config,
		repo:    repo,
		advance: advance,
		metrics: m,
		log:     slog.With("component", "transaction-service"),
	}
}

type CreateRequest struct {
	Source        uuid.UUID
	Destination   uuid.UUID
	Amount        int64
	Currency      string
	Type          types.TxType
	CorrelationID uuid.UUID
	CallbackURL   string
	Description   string
	BillRef       *uuid.UUID
}

func (r *CreateRequest) validate() error {
	if r.Amount <= 0 {
		return &lederr.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	if r.Currency == "" {
		return &lederr.ValidationError{Field: "currency", Reason: "is required"}
	}

	if !types.ValidTxType(r.Type) {
		return &lederr.ValidationError{Field: "type", Reason: "unknown transaction type"}
	}

	if r.Source == r.Destination {
		return &lederr.ValidationError{Field: "creditParty", Reason: "debit and credit party must differ"}
	}

	return nil
}

// CreateTransaction validates the request, runs the funds check and the insert
// as one atomic unit, and enqueues the asynchronous state advance. The caller
// gets the transaction back in pending state: accepted, not settled.
func (s *Service) CreateTransaction(ctx context.Context, req CreateRequest) (*types.Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if _, err := s.activeWallet(ctx, req.Source); err != nil {
		return nil, err
	}

	if _, err := s.activeWallet(ctx, req.Destination); err != nil {
		return nil, err
	}

	correlationID := req.CorrelationID
	if correlationID == uuid.Nil {
		correlationID = uuid.New()
	}

	now := time.Now().UTC()
	tx := &types.Transaction{
		TRID:                uuid.New(),
		ServerCorrelationID: correlationID,
		Source:              req.Source,
		Destination:         req.Destination,
		Amount:              req.Amount,
		Currency:            req.Currency,
		Type:                req.Type,
		State:               types.StatePending,
		CallbackURL:         req.CallbackURL,
		Description:         req.Description,
		BillRef:             req.BillRef,
		RequestDate:         now,
	}

	inserted := false
	for attempt := 1; attempt <= s.config.RefRetryLimit; attempt++ {
		err := s.repo.CreateWithFundsCheck(ctx, tx, req.Type.RequiresFunds())
		if err == nil {
			inserted = true
			break
		}

		// A reference collision is the only retryable outcome. A
		// correlation id collision means a duplicate client request and
		// must surface as such, never as a silent retry.
		if errors.Is(err, lederr.ErrDuplicateReference) {
			s.metrics.ReferenceCollisions.Inc()
			s.log.Warn("transaction reference collision, regenerating",
				"trid", tx.TRID, "attempt", attempt)
			tx.TRID = uuid.New()
			continue
		}

		var insufficient *lederr.InsufficientFundsError
		if errors.As(err, &insufficient) {
			s.metrics.InsufficientFunds.Inc()
		}

		return nil, err
	}

	if !inserted {
		return nil, lederr.ErrReferenceExhausted
	}

	s.metrics.TransactionsCreated.WithLabelValues(string(tx.Type)).Inc()
	s.log.Info("transaction accepted",
		"trid", tx.TRID,
		"serverCorrelationId", tx.ServerCorrelationID,
		"type", tx.Type,
		"amount", tx.Amount,
	)

	job, err := json.Marshal(AdvanceJob{TRID: tx.TRID})
	if err == nil {
		err = s.advance.Publish(job)
	}
	if err != nil {
		// Fire-and-forget: the creation already committed, so the caller
		// still gets its pending transaction. The row stays pending until
		// a requeue or an operator advance.
		s.log.Error("couldn't enqueue advance job", "trid", tx.TRID, "error", err)
	}

	return tx, nil
}

// AdvanceTransaction drives pending -> in_progress and, for types that do not
// need PIN confirmation, straight to completed. It returns the notification
// row owed to the destination wallet, if one was created. Calling it on an
// already-terminal transaction is a no-op.
func (s *Service) AdvanceTransaction(ctx context.Context, trid uuid.UUID) (*types.Transaction, *types.Notification, error) {
	started := time.Now()
	defer func() {
		s.metrics.AdvanceDuration.Observe(time.Since(started).Seconds())
	}()

	tx, err := s.repo.GetTransaction(ctx, trid)
	if err != nil {
		return nil, nil, err
	}

	if tx.State.Terminal() {
		s.log.Debug("advance on terminal transaction, skipping",
			"trid", trid, "state", tx.State)
		return tx, nil, nil
	}

	if tx.State == types.StatePending {
		tx, _, err = s.applyTransition(ctx, tx, types.StatePending, types.StateInProgress)
		if err != nil || tx.State.Terminal() {
			return tx, nil, err
		}
	}

	if tx.Type.RequiresConfirmation() {
		// The PIN prompt must survive a crash between the state change and
		// the notification insert, so the guard is the stored notification
		// row, not winning the state race: a redelivered job creates the
		// prompt if and only if it is still missing.
		if _, err := s.repo.NotificationForTransaction(ctx, tx.TRID); err == nil {
			return tx, nil, nil
		} else if !errors.Is(err, lederr.ErrNotFound) {
			return tx, nil, err
		}

		notification := newNotification(tx, tx.Source, types.NotificationPush,
			"Please enter PIN to complete transaction")
		if err := s.repo.CreateNotification(ctx, notification); err != nil {
			return tx, nil, err
		}

		s.log.Info("transaction awaiting PIN confirmation", "trid", trid)
		return tx, notification, nil
	}

	var won bool
	tx, won, err = s.applyTransition(ctx, tx, types.StateInProgress, types.StateCompleted)
	if err != nil || !won {
		return tx, nil, err
	}

	notification := newNotification(tx, tx.Destination, types.NotificationNormal,
		"You have transacted with the vite mobile wallet")
	if err := s.repo.CreateNotification(ctx, notification); err != nil {
		return tx, nil, err
	}

	return tx, notification, nil
}

// ConfirmTransaction resolves the PIN confirmation sub-flow: a verified PIN
// completes the transaction, a rejected one fails it and releases the
// reserved funds. Confirming an already-terminal transaction returns the
// current row unchanged.
func (s *Service) ConfirmTransaction(ctx context.Context, trid uuid.UUID, pinVerified bool) (*types.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, trid)
	if err != nil {
		return nil, err
	}

	if tx.State.Terminal() {
		return tx, nil
	}

	target := types.StateCompleted
	if !pinVerified {
		target = types.StateFailed
	}

	if tx.State != types.StateInProgress {
		return nil, &lederr.InvalidStateTransitionError{
			From: string(tx.State),
			To:   string(target),
		}
	}

	tx, _, err = s.applyTransition(ctx, tx, types.StateInProgress, target)
	if err != nil {
		return nil, err
	}

	s.log.Info("transaction confirmed", "trid", trid, "pinVerified", pinVerified,
		"state", tx.State)

	return tx, nil
}

// ReverseTransaction handles an explicit reversal request, legal only before
// processing started. A reversed row keeps counting in the balance fold, so
// the reversal also settles a compensating row in the opposite direction and
// the pair nets to zero for both parties. Reversing an already-reversed
// transaction only makes sure the pair exists.
func (s *Service) ReverseTransaction(ctx context.Context, trid uuid.UUID) (*types.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, trid)
	if err != nil {
		return nil, err
	}

	if tx.State == types.StateReversed {
		return tx, s.ensureReversalPair(ctx, tx)
	}

	if tx.State != types.StatePending {
		return nil, &lederr.InvalidStateTransitionError{
			From: string(tx.State),
			To:   string(types.StateReversed),
		}
	}

	tx, _, err = s.applyTransition(ctx, tx, types.StatePending, types.StateReversed)
	if err != nil {
		return nil, err
	}

	// A lost race means another caller moved the row on; only a row that
	// actually ended up reversed gets the compensating credit.
	if tx.State != types.StateReversed {
		return nil, &lederr.InvalidStateTransitionError{
			From: string(tx.State),
			To:   string(types.StateReversed),
		}
	}

	return tx, s.ensureReversalPair(ctx, tx)
}

// ensureReversalPair settles the compensating row for a reversed transaction.
// Its correlation id is derived from the reversed reference, so crash retries
// and repeated reversal requests insert it at most once.
func (s *Service) ensureReversalPair(ctx context.Context, tx *types.Transaction) error {
	correlationID := uuid.NewSHA1(tx.TRID, []byte("reversal"))

	if _, err := s.repo.GetByCorrelationID(ctx, correlationID); err == nil {
		return nil
	} else if !errors.Is(err, lederr.ErrNotFound) {
		return err
	}

	pair := &types.Transaction{
		TRID:                uuid.New(),
		ServerCorrelationID: correlationID,
		Source:              tx.Destination,
		Destination:         tx.Source,
		Amount:              tx.Amount,
		Currency:            tx.Currency,
		Type:                types.TypeReversal,
		State:               types.StateCompleted,
		Description:         fmt.Sprintf("Reversal of %s", tx.TRID),
		RequestDate:         time.Now().UTC(),
	}

	for attempt := 1; attempt <= s.config.RefRetryLimit; attempt++ {
		err := s.repo.CreateWithFundsCheck(ctx, pair, false)
		if err == nil {
			s.metrics.TransactionsCreated.WithLabelValues(string(pair.Type)).Inc()
			s.log.Info("reversal pair settled", "trid", tx.TRID, "pairTrid", pair.TRID)
			return nil
		}

		if errors.Is(err, lederr.ErrDuplicateReference) {
			s.metrics.ReferenceCollisions.Inc()
			pair.TRID = uuid.New()
			continue
		}

		// Another caller settled the pair first.
		if errors.Is(err, lederr.ErrDuplicateCorrelationID) {
			return nil
		}

		return err
	}

	return lederr.ErrReferenceExhausted
}

// Deposit records an external top-up for the wallet. Top-ups are the only
// money entering the system from outside and feed straight into the derived
// balances.
func (s *Service) Deposit(ctx context.Context, walletID uuid.UUID, amount int64, currency string) (*types.Topup, error) {
	if amount <= 0 {
		return nil, &lederr.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	if _, err := s.activeWallet(ctx, walletID); err != nil {
		return nil, err
	}

	topup := &types.Topup{
		WalletID:  walletID,
		Amount:    amount,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateTopup(ctx, topup); err != nil {
		return nil, err
	}

	s.log.Info("top-up recorded", "walletId", walletID, "amount", amount)

	return topup, nil
}

// Balances derives all four balance views from one consistent snapshot of the
// wallet's transaction set. Nothing here is cached: the answer always reflects
// the latest committed ledger state.
func (s *Service) Balances(ctx context.Context, walletID uuid.UUID) (ledger.Balances, error) {
	if _, err := s.repo.GetWallet(ctx, walletID); err != nil {
		return ledger.Balances{}, err
	}

	txs, topups, err := s.repo.BalanceSnapshot(ctx, walletID)
	if err != nil {
		return ledger.Balances{}, err
	}

	balances := ledger.Compute(walletID, txs, topups)

	// The wallet row carries a legacy balance column used for display
	// only. Keep it roughly current; a failed refresh never fails the read.
	if err := s.repo.RefreshBalanceHint(ctx, walletID, balances.Actual); err != nil {
		s.log.Warn("balance hint refresh failed", "wallet", walletID, "error", err)
	}

	return balances, nil
}

// GetByReference fetches a transaction by its trid.
func (s *Service) GetByReference(ctx context.Context, trid uuid.UUID) (*types.Transaction, error) {
	return s.repo.GetTransaction(ctx, trid)
}

// GetByCorrelationID fetches a transaction by the caller-supplied idempotency
// key, backing the request-state polling endpoint.
func (s *Service) GetByCorrelationID(ctx context.Context, id uuid.UUID) (*types.Transaction, error) {
	return s.repo.GetByCorrelationID(ctx, id)
}

// StatementEntry is a single statement line resolved down to msisdns.
type StatementEntry struct {
	Transaction  *types.Transaction `json:"transaction"`
	DebitMSISDN  string             `json:"debitMsisdn"`
	CreditMSISDN string             `json:"creditMsisdn"`
}

// Statement resolves a transaction and both parties for statement display.
func (s *Service) Statement(ctx context.Context, trid uuid.UUID) (*StatementEntry, error) {
	tx, err := s.repo.GetTransaction(ctx, trid)
	if err != nil {
		return nil, err
	}

	source, err := s.repo.GetWallet(ctx, tx.Source)
	if err != nil {
		return nil, err
	}

	destination, err := s.repo.GetWallet(ctx, tx.Destination)
	if err != nil {
		return nil, err
	}

	return &StatementEntry{
		Transaction:  tx,
		DebitMSISDN:  source.MSISDN,
		CreditMSISDN: destination.MSISDN,
	}, nil
}

// WalletByMSISDN resolves the phone-number identifier used on the wire to a
// wallet.
func (s *Service) WalletByMSISDN(ctx context.Context, msisdn string) (*types.Wallet, error) {
	return s.repo.GetWalletByMSISDN(ctx, msisdn)
}

func (s *Service) activeWallet(ctx context.Context, id uuid.UUID) (*types.Wallet, error) {
	wallet, err := s.repo.GetWallet(ctx, id)
	if err != nil {
		return nil, err
	}

	if !wallet.IsActive() {
		return nil, lederr.ErrWalletInactive
	}

	return wallet, nil
}

// applyTransition performs an optimistic compare-and-set on the state column.
// A lost race is resolved by re-reading: if someone else drove the row to a
// terminal state, that result stands.
func (s *Service) applyTransition(ctx context.Context, tx *types.Transaction, from, to types.TxState) (*types.Transaction, bool, error) {
	if !from.CanTransitionTo(to) {
		return nil, false, &lederr.InvalidStateTransitionError{From: string(from), To: string(to)}
	}

	won, err := s.repo.AdvanceState(ctx, tx.TRID, from, to)
	if err != nil {
		return nil, false, err
	}

	if !won {
		current, err := s.repo.GetTransaction(ctx, tx.TRID)
		if err != nil {
			return nil, false, err
		}

		s.log.Debug("lost state transition race",
			"trid", tx.TRID, "wanted", to, "actual", current.State)

		return current, false, nil
	}

	s.metrics.StateTransitions.WithLabelValues(string(from), string(to)).Inc()

	updated := *tx
	updated.State = to

	return &updated, true, nil
}

func newNotification(tx *types.Transaction, recipient uuid.UUID, kind types.NotificationType, message string) *types.Notification {
	return &types.Notification{
		ID:        uuid.New(),
		WalletID:  recipient,
		TRID:      tx.TRID,
		Message:   message,
		Type:      kind,
		State:     types.NotificationPending,
		CreatedAt: time.Now().UTC(),
	}
}
