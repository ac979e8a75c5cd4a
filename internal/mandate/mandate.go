// Package mandate manages standing debit mandates and runs the recurring
// charge loop that turns due mandates into transactions.
package mandate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	lederr "github.com/vitewallet/ledger/internal/errors"
	"github.com/vitewallet/ledger/internal/metrics"
	"github.com/vitewallet/ledger/internal/transaction"
	"github.com/vitewallet/ledger/internal/types"
)

type Config struct {
	BatchSize    int
	PollInterval time.Duration
	DBTimeout    time.Duration
}

type Repository interface {
	CreateMandate(ctx context.Context, m *types.DebitMandate) error
	GetMandate(ctx context.Context, ref uuid.UUID) (*types.DebitMandate, error)
	DueMandates(ctx context.Context, now time.Time, limit int) ([]types.DebitMandate, error)
	// RecordCharge advances the mandate schedule after a successful charge.
	RecordCharge(ctx context.Context, ref uuid.UUID, nextCharge time.Time, remaining int, status types.MandateStatus) error
	SetMandateStatus(ctx context.Context, ref uuid.UUID, status types.MandateStatus) error
}

type Charger struct {
	config  *Config
	repo    Repository
	txs     *transaction.Service
	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(config *Config, repo Repository, txs *transaction.Service, m *metrics.Metrics) *Charger {
	return &Charger{
		config:  config,
		repo:    repo,
		txs:     txs,
		metrics: m,
		log:     slog.With("component", "mandate-charger"),
	}
}

type CreateRequest struct {
	Payer            uuid.UUID
	Payee            uuid.UUID
	Currency         string
	AmountLimit      int64
	StartDate        time.Time
	EndDate          time.Time
	NumberOfPayments int
	Frequency        types.MandateFrequency
}

func (r *CreateRequest) validate() error {
	if r.AmountLimit <= 0 {
		return &lederr.ValidationError{Field: "amountLimit", Reason: "must be positive"}
	}

	if r.Currency == "" {
		return &lederr.ValidationError{Field: "currency", Reason: "is required"}
	}

	if r.Payer == r.Payee {
		return &lederr.ValidationError{Field: "payee", Reason: "payer and payee must differ"}
	}

	if r.NumberOfPayments <= 0 {
		return &lederr.ValidationError{Field: "numberOfPayments", Reason: "must be positive"}
	}

	if !r.EndDate.After(r.StartDate) {
		return &lederr.ValidationError{Field: "endDate", Reason: "must be after startDate"}
	}

	switch r.Frequency {
	case types.FrequencyDaily, types.FrequencyWeekly, types.FrequencyBiweekly,
		types.FrequencyMonthly, types.FrequencyYearly:
	default:
		return &lederr.ValidationError{Field: "frequencyType", Reason: "unknown frequency"}
	}

	return nil
}

// CreateMandate registers the mandate. The first charge is due at StartDate.
func (c *Charger) CreateMandate(ctx context.Context, req CreateRequest) (*types.DebitMandate, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	m := &types.DebitMandate{
		MandateRef:        uuid.New(),
		Payer:             req.Payer,
		Payee:             req.Payee,
		Currency:          req.Currency,
		AmountLimit:       req.AmountLimit,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		NextChargeAt:      req.StartDate,
		RemainingPayments: req.NumberOfPayments,
		Frequency:         req.Frequency,
		Status:            types.MandateActive,
		CreatedAt:         now,
	}

	if err := c.repo.CreateMandate(ctx, m); err != nil {
		return nil, err
	}

	c.log.Info("mandate created", "mandateReference", m.MandateRef,
		"payer", m.Payer, "payee", m.Payee, "frequency", m.Frequency)

	return m, nil
}

func (c *Charger) GetMandate(ctx context.Context, ref uuid.UUID) (*types.DebitMandate, error) {
	return c.repo.GetMandate(ctx, ref)
}

// CancelMandate deactivates the mandate. Cancelling an inactive mandate is a
// no-op.
func (c *Charger) CancelMandate(ctx context.Context, ref uuid.UUID) (*types.DebitMandate, error) {
	m, err := c.repo.GetMandate(ctx, ref)
	if err != nil {
		return nil, err
	}

	if m.Status == types.MandateInactive {
		return m, nil
	}

	if err := c.repo.SetMandateStatus(ctx, ref, types.MandateInactive); err != nil {
		return nil, err
	}

	m.Status = types.MandateInactive
	c.log.Info("mandate cancelled", "mandateReference", ref)

	return m, nil
}

func (c *Charger) Start(ctx context.Context) error {
	c.log.Info("Starting mandate charger...")

	pollInterval := time.Duration(0)

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Stopping mandate charger.")
			return nil

		case <-time.After(pollInterval):
			pollInterval = c.config.PollInterval

			if err := c.ChargeDue(ctx, time.Now().UTC()); err != nil {
				c.log.Error("charge sweep failed", "error", err)
			}
		}
	}
}

// ChargeDue charges every mandate due at now, up to the batch size. Each
// mandate is handled independently; one failed charge never blocks the rest.
func (c *Charger) ChargeDue(ctx context.Context, now time.Time) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, c.config.DBTimeout)
	defer cancel()

	due, err := c.repo.DueMandates(ctxWithTimeout, now, c.config.BatchSize)
	if err != nil {
		return fmt.Errorf("couldn't list due mandates: %w", err)
	}

	for _, m := range due {
		if err := c.charge(ctx, &m); err != nil {
			c.log.Warn("mandate charge failed",
				"mandateReference", m.MandateRef, "error", err)
		}
	}

	return nil
}

func (c *Charger) charge(ctx context.Context, m *types.DebitMandate) error {
	// The correlation id is derived from the mandate and the charge ordinal,
	// so a sweep that crashed between the insert and the schedule update
	// resolves to a duplicate instead of double-charging the payer.
	ordinal := m.ChargesMade + 1
	correlationID := uuid.NewSHA1(m.MandateRef, []byte(fmt.Sprintf("charge-%d", ordinal)))

	_, err := c.txs.CreateTransaction(ctx, transaction.CreateRequest{
		Source:        m.Payer,
		Destination:   m.Payee,
		Amount:        m.AmountLimit,
		Currency:      m.Currency,
		Type:          types.TypeTransfer,
		CorrelationID: correlationID,
		Description:   fmt.Sprintf("Debit mandate charge %d", ordinal),
	})

	switch {
	case err == nil:
	case errors.Is(err, lederr.ErrDuplicateCorrelationID):
		// Charge already placed by an earlier sweep; fall through and
		// advance the schedule.
		c.log.Info("mandate charge already placed",
			"mandateReference", m.MandateRef, "ordinal", ordinal)

	default:
		var insufficient *lederr.InsufficientFundsError
		if errors.As(err, &insufficient) {
			// The payer may be topped up before the next sweep; keep the
			// mandate due and retry then.
			c.metrics.MandateCharges.WithLabelValues("insufficient_funds").Inc()
			return err
		}

		c.metrics.MandateCharges.WithLabelValues("error").Inc()
		return err
	}

	remaining := m.RemainingPayments - 1
	status := types.MandateActive
	if remaining <= 0 {
		status = types.MandateInactive
	}

	next := m.NextCharge(m.NextChargeAt)
	if err := c.repo.RecordCharge(ctx, m.MandateRef, next, remaining, status); err != nil {
		return fmt.Errorf("couldn't record charge: %w", err)
	}

	c.metrics.MandateCharges.WithLabelValues("charged").Inc()
	c.log.Info("mandate charged", "mandateReference", m.MandateRef,
		"ordinal", ordinal, "nextChargeAt", next, "remaining", remaining)

	return nil
}
