package types

import (
	"time"

	"github.com/google/uuid"
)

type BatchStatus string

const (
	BatchCreated  BatchStatus = "created"
	BatchFinished BatchStatus = "finished"
)

// BatchTransaction groups member transactions created from one request. Its
// status is derived from the members' states, never stored redundantly.
type BatchTransaction struct {
	BatchTRID  uuid.UUID `db:"batch_trid" json:"batchReference"`
	Merchant   uuid.UUID `db:"merchant" json:"merchant"`
	Title      string    `db:"batch_title" json:"title"`
	Processing bool      `db:"processing" json:"processing"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"modified_at" json:"updatedAt"`
}

// BatchLookup joins one member transaction to its batch.
type BatchLookup struct {
	BatchTRID uuid.UUID `db:"batch_trid" json:"batchReference"`
	TRID      uuid.UUID `db:"trid" json:"reference"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
