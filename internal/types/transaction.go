package types

import (
	"time"

	"github.com/google/uuid"

	lederr "github.com/vitewallet/ledger/internal/errors"
)

type TxState string

const (
	StatePending    TxState = "pending"
	StateInProgress TxState = "in_progress"
	StateCompleted  TxState = "completed"
	StateFailed     TxState = "failed"
	StateReversed   TxState = "reversed"
)

type TxType string

const (
	TypeReversal     TxType = "reversal"
	TypeBillPay      TxType = "billpay"
	TypeDeposit      TxType = "deposit"
	TypeTransfer     TxType = "transfer"
	TypeWithdrawal   TxType = "withdrawal"
	TypeDisbursement TxType = "disbursement"
	TypeMerchantPay  TxType = "merchantpay"
)

// allowedTransitions is the whole state machine. Any mutation not listed here
// is rejected; states are never assigned freely.
var allowedTransitions = map[TxState][]TxState{
	StatePending:    {StateInProgress, StateReversed},
	StateInProgress: {StateCompleted, StateFailed},
	StateCompleted:  {},
	StateFailed:     {},
	StateReversed:   {},
}

// Terminal reports whether no further transitions exist from the state.
func (s TxState) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// CanTransitionTo checks the allowed-transition table.
func (s TxState) CanTransitionTo(next TxState) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// ValidTxType reports whether t is one of the known transaction types.
func ValidTxType(t TxType) bool {
	switch t {
	case TypeReversal, TypeBillPay, TypeDeposit, TypeTransfer,
		TypeWithdrawal, TypeDisbursement, TypeMerchantPay:
		return true
	}

	return false
}

// RequiresConfirmation reports whether the type routes through the PIN
// confirmation sub-flow instead of completing on processing.
func (t TxType) RequiresConfirmation() bool {
	return t == TypeMerchantPay || t == TypeBillPay
}

// RequiresFunds reports whether creation must pass the derived available
// balance check on the source wallet.
func (t TxType) RequiresFunds() bool {
	switch t {
	case TypeTransfer, TypeWithdrawal, TypeMerchantPay, TypeBillPay,
		TypeDisbursement:
		return true
	}

	return false
}

// Transaction is one directed movement of money between two wallets. Rows are
// append-only; the state column is the only field that ever mutates, and only
// via the transition table.
type Transaction struct {
	TRID                uuid.UUID  `db:"trid" json:"reference"`
	ServerCorrelationID uuid.UUID  `db:"server_correlation_id" json:"serverCorrelationId"`
	Source              uuid.UUID  `db:"source" json:"debitParty"`
	Destination         uuid.UUID  `db:"destination" json:"creditParty"`
	Amount              int64      `db:"amount" json:"amount"`
	Currency            string     `db:"currency" json:"currency"`
	Type                TxType     `db:"transaction_type" json:"type"`
	State               TxState    `db:"state" json:"status"`
	CallbackURL         string     `db:"callback_url" json:"callbackUrl,omitempty"`
	Description         string     `db:"description_text" json:"descriptionText,omitempty"`
	BillRef             *uuid.UUID `db:"bill_ref" json:"billReference,omitempty"`
	RequestDate         time.Time  `db:"request_date" json:"requestDate"`
	CreatedAt           time.Time  `db:"created_at" json:"creationDate"`
	UpdatedAt           time.Time  `db:"modified_at" json:"modificationDate"`
}

// TransitionTo mutates the state through the allowed-transition table and
// fails with InvalidStateTransitionError otherwise.
func (t *Transaction) TransitionTo(next TxState) error {
	if !t.State.CanTransitionTo(next) {
		return &lederr.InvalidStateTransitionError{
			From: string(t.State),
			To:   string(next),
		}
	}

	t.State = next

	return nil
}

// Outgoing reports whether the transaction debits the given wallet.
func (t *Transaction) Outgoing(walletID uuid.UUID) bool {
	return t.Source == walletID
}

// Incoming reports whether the transaction credits the given wallet.
func (t *Transaction) Incoming(walletID uuid.UUID) bool {
	return t.Destination == walletID
}
