// Package bill issues bills and pays them through billpay transactions. A
// bill's paid state is derived from the transaction log, never stored.
package bill

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	lederr "github.com/vitewallet/ledger/internal/errors"
	"github.com/vitewallet/ledger/internal/transaction"
	"github.com/vitewallet/ledger/internal/types"
)

type Repository interface {
	CreateBill(ctx context.Context, b *types.Bill) error
	GetBill(ctx context.Context, ref uuid.UUID) (*types.Bill, error)
	BillsForBillee(ctx context.Context, billee uuid.UUID) ([]types.Bill, error)
	// BillPaid reports whether a completed billpay transaction references
	// the bill.
	BillPaid(ctx context.Context, ref uuid.UUID) (bool, error)
}

type Service struct {
	repo Repository
	txs  *transaction.Service
	log  *slog.Logger
}

func New(repo Repository, txs *transaction.Service) *Service {
	return &Service{
		repo: repo,
		txs:  txs,
		log:  slog.With("component", "bill"),
	}
}

type CreateRequest struct {
	Biller       uuid.UUID
	Billee       uuid.UUID
	Currency     string
	AmountDue    int64
	MinAmountDue int64
	DueDate      time.Time
	Description  string
}

func (r *CreateRequest) validate() error {
	if r.AmountDue <= 0 {
		return &lederr.ValidationError{Field: "amountDue", Reason: "must be positive"}
	}

	if r.MinAmountDue <= 0 || r.MinAmountDue > r.AmountDue {
		return &lederr.ValidationError{Field: "minAmountDue", Reason: "must be positive and at most amountDue"}
	}

	if r.Currency == "" {
		return &lederr.ValidationError{Field: "currency", Reason: "is required"}
	}

	if r.Biller == r.Billee {
		return &lederr.ValidationError{Field: "billee", Reason: "biller and billee must differ"}
	}

	return nil
}

func (s *Service) CreateBill(ctx context.Context, req CreateRequest) (*types.Bill, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	b := &types.Bill{
		BillRef:      uuid.New(),
		Biller:       req.Biller,
		Billee:       req.Billee,
		Currency:     req.Currency,
		AmountDue:    req.AmountDue,
		MinAmountDue: req.MinAmountDue,
		DueDate:      req.DueDate,
		Description:  req.Description,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.CreateBill(ctx, b); err != nil {
		return nil, err
	}

	s.log.Info("bill created", "billReference", b.BillRef,
		"biller", b.Biller, "billee", b.Billee, "amountDue", b.AmountDue)

	return b, nil
}

func (s *Service) GetBill(ctx context.Context, ref uuid.UUID) (*types.BillStatus, error) {
	b, err := s.repo.GetBill(ctx, ref)
	if err != nil {
		return nil, err
	}

	paid, err := s.repo.BillPaid(ctx, ref)
	if err != nil {
		return nil, err
	}

	return &types.BillStatus{Bill: *b, Paid: paid}, nil
}

// OutstandingBills lists the billee's bills with their derived paid state,
// ordered by due date.
func (s *Service) OutstandingBills(ctx context.Context, billee uuid.UUID) ([]types.BillStatus, error) {
	bills, err := s.repo.BillsForBillee(ctx, billee)
	if err != nil {
		return nil, err
	}

	statuses := make([]types.BillStatus, len(bills))
	for i, b := range bills {
		paid, err := s.repo.BillPaid(ctx, b.BillRef)
		if err != nil {
			return nil, err
		}

		statuses[i] = types.BillStatus{Bill: b, Paid: paid}
	}

	return statuses, nil
}

// PayBill creates a billpay transaction for the bill. The amount must be at
// least the bill's minimum; zero means pay the full amount due. An already
// paid bill cannot be paid again.
func (s *Service) PayBill(ctx context.Context, ref uuid.UUID, amount int64, correlationID uuid.UUID) (*types.Transaction, error) {
	b, err := s.repo.GetBill(ctx, ref)
	if err != nil {
		return nil, err
	}

	paid, err := s.repo.BillPaid(ctx, ref)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, &lederr.ValidationError{Field: "billReference", Reason: "bill is already paid"}
	}

	if amount == 0 {
		amount = b.AmountDue
	}
	if amount < b.MinAmountDue {
		return nil, &lederr.ValidationError{Field: "amount", Reason: "below the bill's minimum amount due"}
	}
	if amount > b.AmountDue {
		return nil, &lederr.ValidationError{Field: "amount", Reason: "exceeds the bill's amount due"}
	}

	billRef := b.BillRef
	tx, err := s.txs.CreateTransaction(ctx, transaction.CreateRequest{
		Source:        b.Billee,
		Destination:   b.Biller,
		Amount:        amount,
		Currency:      b.Currency,
		Type:          types.TypeBillPay,
		CorrelationID: correlationID,
		Description:   b.Description,
		BillRef:       &billRef,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("bill payment placed", "billReference", ref,
		"trid", tx.TRID, "amount", amount)

	return tx, nil
}
