package types

import (
	"time"

	"github.com/google/uuid"
)

type WalletStatus string

const (
	WalletActive   WalletStatus = "active"
	WalletDormant  WalletStatus = "dormant"
	WalletInactive WalletStatus = "inactive"
)

type WalletType string

const (
	WalletNormal   WalletType = "normal"
	WalletMerchant WalletType = "merchant"
)

// Wallet is a customer account identified by msisdn. The Balance field is a
// legacy display hint refreshed lazily from the ledger; financial decisions
// are always made against the derived balance, never this column.
type Wallet struct {
	ID        uuid.UUID    `db:"wallet_id" json:"walletId"`
	MSISDN    string       `db:"msisdn" json:"msisdn"`
	Token     string       `db:"token" json:"-"`
	Name      string       `db:"name" json:"name"`
	Status    WalletStatus `db:"status" json:"status"`
	Type      WalletType   `db:"type" json:"type"`
	Balance   int64        `db:"balance" json:"balance"`
	CreatedAt time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time    `db:"updated_at" json:"updatedAt"`
}

func (w *Wallet) IsActive() bool {
	return w.Status == WalletActive
}

// Topup is a simple external top-up record credited to a wallet. It is the
// only way money enters the system from outside.
type Topup struct {
	ID        int64     `db:"id" json:"id"`
	WalletID  uuid.UUID `db:"wallet_id" json:"walletId"`
	Amount    int64     `db:"amount" json:"amount"`
	Currency  string    `db:"currency" json:"currency"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
