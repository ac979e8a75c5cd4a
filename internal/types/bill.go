package types

import (
	"time"

	"github.com/google/uuid"
)

// Bill is an outstanding amount the billee owes the biller. "Paid" is never a
// stored flag: a bill is paid once a completed billpay transaction references
// it.
type Bill struct {
	BillRef      uuid.UUID `db:"bill_reference" json:"billReference"`
	Biller       uuid.UUID `db:"biller" json:"biller"`
	Billee       uuid.UUID `db:"billee" json:"billee"`
	Currency     string    `db:"currency" json:"currency"`
	AmountDue    int64     `db:"amount_due" json:"amountDue"`
	MinAmountDue int64     `db:"min_amount_due" json:"minAmountDue"`
	DueDate      time.Time `db:"due_date" json:"dueDate"`
	Description  string    `db:"bill_description" json:"billDescription,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"modified_at" json:"updatedAt"`
}

// BillStatus pairs a bill with its derived paid state.
type BillStatus struct {
	Bill Bill `json:"bill"`
	Paid bool `json:"paid"`
}
