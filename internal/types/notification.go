package types

import (
	"time"

	"github.com/google/uuid"
)

type NotificationState string

const (
	NotificationPending    NotificationState = "pending"
	NotificationInProgress NotificationState = "in_progress"
	NotificationSuccess    NotificationState = "success"
	NotificationFailed     NotificationState = "failed"
)

type NotificationType string

const (
	NotificationPush   NotificationType = "push"
	NotificationNormal NotificationType = "normal"
)

// Notification is a message owed to a wallet owner. Delivery itself is an
// external collaborator; the core only records outcomes and, for push
// confirmations, drives the owning transaction on permanent failure.
type Notification struct {
	ID        uuid.UUID         `db:"notid" json:"notificationId"`
	WalletID  uuid.UUID         `db:"wallet_id" json:"walletId"`
	TRID      uuid.UUID         `db:"trid" json:"reference"`
	Message   string            `db:"message" json:"message"`
	Type      NotificationType  `db:"notification_type" json:"type"`
	State     NotificationState `db:"state" json:"state"`
	Attempts  int               `db:"attempts" json:"attempts"`
	CreatedAt time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time         `db:"modified_at" json:"updatedAt"`
}
