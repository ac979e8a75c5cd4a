package types

import (
	"time"

	"github.com/google/uuid"
)

type MandateStatus string

const (
	MandateActive   MandateStatus = "active"
	MandateInactive MandateStatus = "inactive"
)

type MandateFrequency string

const (
	FrequencyDaily    MandateFrequency = "daily"
	FrequencyWeekly   MandateFrequency = "weekly"
	FrequencyBiweekly MandateFrequency = "biweekly"
	FrequencyMonthly  MandateFrequency = "monthly"
	FrequencyYearly   MandateFrequency = "yearly"
)

// DebitMandate is a standing pre-authorization for recurring charges from the
// payer to the payee. Each successful charge decrements RemainingPayments and
// schedules the next one by frequency.
type DebitMandate struct {
	MandateRef        uuid.UUID        `db:"mandate_reference" json:"mandateReference"`
	Payer             uuid.UUID        `db:"payer" json:"payer"`
	Payee             uuid.UUID        `db:"payee" json:"payee"`
	Currency          string           `db:"currency" json:"currency"`
	AmountLimit       int64            `db:"amount_limit" json:"amountLimit"`
	StartDate         time.Time        `db:"start_date" json:"startDate"`
	EndDate           time.Time        `db:"end_date" json:"endDate"`
	NextChargeAt      time.Time        `db:"next_charge_at" json:"nextChargeAt"`
	RemainingPayments int              `db:"number_of_payments" json:"numberOfPayments"`
	ChargesMade       int              `db:"charges_made" json:"chargesMade"`
	Frequency         MandateFrequency `db:"frequency_type" json:"frequencyType"`
	Status            MandateStatus    `db:"mandate_status" json:"mandateStatus"`
	CreatedAt         time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time        `db:"modified_at" json:"updatedAt"`
}

// NextCharge returns the charge time following from, per the mandate schedule.
func (m *DebitMandate) NextCharge(from time.Time) time.Time {
	switch m.Frequency {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return from.AddDate(0, 0, 14)
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0)
	case FrequencyYearly:
		return from.AddDate(1, 0, 0)
	}

	return from.AddDate(0, 1, 0)
}

// Chargeable reports whether the mandate may be charged at the given time.
func (m *DebitMandate) Chargeable(now time.Time) bool {
	if m.Status != MandateActive {
		return false
	}

	if m.RemainingPayments <= 0 {
		return false
	}

	if now.Before(m.StartDate) || now.After(m.EndDate) {
		return false
	}

	return !now.Before(m.NextChargeAt)
}
