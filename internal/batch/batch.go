// Package batch groups transactions created from one request and aggregates
// their completion status. Partial failure is tolerated by design: a batch can
// hold a mix of accepted and rejected line items.
package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	lederr "github.com/vitewallet/ledger/internal/errors"
	"github.com/vitewallet/ledger/internal/metrics"
	"github.com/vitewallet/ledger/internal/transaction"
	"github.com/vitewallet/ledger/internal/types"
)

// Filter selects which member transactions a status query returns.
type Filter string

const (
	FilterNone        Filter = ""
	FilterCompletions Filter = "completions"
	FilterRejections  Filter = "rejections"
)

type Repository interface {
	CreateBatch(ctx context.Context, b *types.BatchTransaction) error
	AddLookup(ctx context.Context, lookup *types.BatchLookup) error
	GetBatch(ctx context.Context, batchTRID uuid.UUID) (*types.BatchTransaction, error)
	// GetMemberTransactions returns the member transactions joined through
	// the lookup table, in creation order.
	GetMemberTransactions(ctx context.Context, batchTRID uuid.UUID) ([]types.Transaction, error)
}

type Service struct {
	repo    Repository
	txs     *transaction.Service
	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(repo Repository, txs *transaction.Service, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		txs:     txs,
		metrics: m,
		log:     slog.With("component", "batch"),
	}
}

// ItemResult reports the outcome of one member request. Exactly one of
// Transaction and Err is set.
type ItemResult struct {
	Index       int
	Transaction *types.Transaction
	Err         error
}

// CreateBatch creates the batch record, then drives every member request
// through the transaction service. Failed members are reported in their
// result slot; they never roll back the batch or their siblings.
func (s *Service) CreateBatch(ctx context.Context, merchant uuid.UUID, title string, requests []transaction.CreateRequest) (*types.BatchTransaction, []ItemResult, error) {
	if len(requests) == 0 {
		return nil, nil, &lederr.ValidationError{Field: "transactions", Reason: "batch has no members"}
	}

	b := &types.BatchTransaction{
		BatchTRID: uuid.New(),
		Merchant:  merchant,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateBatch(ctx, b); err != nil {
		return nil, nil, err
	}

	s.metrics.BatchesCreated.Inc()

	results := make([]ItemResult, len(requests))
	for i, req := range requests {
		tx, err := s.txs.CreateTransaction(ctx, req)
		results[i] = ItemResult{Index: i, Transaction: tx, Err: err}

		if err != nil {
			s.log.Warn("batch member rejected",
				"batchTrid", b.BatchTRID, "index", i, "error", err)
			continue
		}

		lookup := &types.BatchLookup{
			BatchTRID: b.BatchTRID,
			TRID:      tx.TRID,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.repo.AddLookup(ctx, lookup); err != nil {
			// The member transaction exists and will settle; only its
			// batch membership is lost. Surface that on the item.
			s.log.Error("couldn't link batch member",
				"batchTrid", b.BatchTRID, "trid", tx.TRID, "error", err)
			results[i].Err = err
		}
	}

	s.log.Info("batch created", "batchTrid", b.BatchTRID,
		"members", len(requests))

	return b, results, nil
}

// Status is the aggregate view of one batch.
type Status struct {
	Reference    uuid.UUID           `json:"batchReference"`
	Status       types.BatchStatus   `json:"status"`
	Transactions []types.Transaction `json:"transactions"`
}

// GetBatchStatus returns the batch members, optionally filtered to
// completions (completed or reversed) or rejections (failed). The finished
// flag is computed from the members: it is never stored.
func (s *Service) GetBatchStatus(ctx context.Context, batchTRID uuid.UUID, filter Filter) (*Status, error) {
	switch filter {
	case FilterNone, FilterCompletions, FilterRejections:
	default:
		return nil, lederr.ErrInvalidFilter
	}

	b, err := s.repo.GetBatch(ctx, batchTRID)
	if err != nil {
		return nil, err
	}

	members, err := s.repo.GetMemberTransactions(ctx, batchTRID)
	if err != nil {
		return nil, err
	}

	status := types.BatchFinished
	for _, tx := range members {
		if !tx.State.Terminal() {
			status = types.BatchCreated
			break
		}
	}

	selected := members[:0:0]
	for _, tx := range members {
		switch filter {
		case FilterCompletions:
			if tx.State == types.StateCompleted || tx.State == types.StateReversed {
				selected = append(selected, tx)
			}
		case FilterRejections:
			if tx.State == types.StateFailed {
				selected = append(selected, tx)
			}
		default:
			selected = append(selected, tx)
		}
	}

	return &Status{
		Reference:    b.BatchTRID,
		Status:       status,
		Transactions: selected,
	}, nil
}
